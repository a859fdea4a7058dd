package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(t.TempDir())
}

func sampleDocument() Document {
	due := "2024-04-01"
	return Document{
		ID:           "DOC_2024_0001",
		Title:        "Budget Memo",
		Content:      "<p>Quarterly budget.</p>",
		Status:       StatusDraft,
		CurrentOwner: "alice",
		DueDate:      &due,
		History: []HistoryEntry{{
			Action: "created",
			To:     "alice",
			By:     "alice",
			Time:   "2024-03-01T10:00:00Z",
		}},
		NoteSheet:   []Note{},
		Attachments: []Attachment{},
	}
}

func TestSaveAndLoadDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := sampleDocument()

	if err := s.SaveDocument(ctx, "finance", doc); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}

	loaded, err := s.LoadDocument(ctx, "finance", doc.ID)
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if loaded.Title != doc.Title || loaded.CurrentOwner != doc.CurrentOwner || loaded.Status != doc.Status {
		t.Errorf("loaded document does not match saved: %+v", loaded)
	}
	if loaded.DueDate == nil || *loaded.DueDate != "2024-04-01" {
		t.Errorf("due date not preserved: %v", loaded.DueDate)
	}
	if len(loaded.History) != 1 || loaded.History[0].Action != "created" {
		t.Errorf("history not preserved: %+v", loaded.History)
	}
}

func TestSaveLoadSaveIsByteStable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := sampleDocument()

	if err := s.SaveDocument(ctx, "finance", doc); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	path := filepath.Join(s.Root(), "departments", "finance", "documents", doc.ID+".json")
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}

	loaded, err := s.LoadDocument(ctx, "finance", doc.ID)
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if err := s.SaveDocument(ctx, "finance", loaded); err != nil {
		t.Fatalf("second SaveDocument failed: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read record again: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("save(load(d)) changed the persisted bytes")
	}
}

func TestLoadDocumentNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadDocument(context.Background(), "finance", "DOC_2024_0001")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadDocumentRejectsBadIdentifiers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LoadDocument(ctx, "finance", "../../../etc/passwd"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for traversal id, got %v", err)
	}
	if _, err := s.LoadDocument(ctx, "../finance", "DOC_2024_0001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for traversal department, got %v", err)
	}
}

func TestSaveDocumentNormalizesNilSlices(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := sampleDocument()
	doc.History = nil
	doc.NoteSheet = nil
	doc.Attachments = nil

	if err := s.SaveDocument(ctx, "finance", doc); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}

	path := filepath.Join(s.Root(), "departments", "finance", "documents", doc.ID+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if strings.Contains(string(raw), "null,") || strings.Contains(string(raw), `"history": null`) {
		t.Errorf("record serialized with null collections: %s", raw)
	}

	loaded, err := s.LoadDocument(ctx, "finance", doc.ID)
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if loaded.History == nil || loaded.NoteSheet == nil || loaded.Attachments == nil {
		t.Errorf("collections not normalized on save: %+v", loaded)
	}
}

func TestSaveDocumentLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveDocument(ctx, "finance", sampleDocument()); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}

	dir := filepath.Join(s.Root(), "departments", "finance", "documents")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read documents dir: %v", err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %s", entry.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one record, got %d entries", len(entries))
	}
}

func TestCreateDepartmentBootstrap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dept := Department{ID: "finance", Name: "Finance", CreatedAt: "2024-03-01T10:00:00Z"}
	roles := []Role{{ID: "admin.finance", Name: "Department Administrator", Permissions: []string{"ALL"}}}
	users := []User{{ID: "user.admin.finance", PasswordHash: "$2a$10$fake", Roles: []string{"admin.finance"}}}

	if err := s.CreateDepartment(ctx, dept, roles, users); err != nil {
		t.Fatalf("CreateDepartment failed: %v", err)
	}

	loadedDept, err := s.LoadDepartment(ctx, "finance")
	if err != nil {
		t.Fatalf("LoadDepartment failed: %v", err)
	}
	if loadedDept.Name != "Finance" {
		t.Errorf("expected department name Finance, got %q", loadedDept.Name)
	}

	loadedUsers, err := s.LoadUsers(ctx, "finance")
	if err != nil {
		t.Fatalf("LoadUsers failed: %v", err)
	}
	if len(loadedUsers) != 1 || loadedUsers[0].ID != "user.admin.finance" {
		t.Errorf("unexpected roster: %+v", loadedUsers)
	}

	loadedRoles, err := s.LoadRoles(ctx, "finance")
	if err != nil {
		t.Fatalf("LoadRoles failed: %v", err)
	}
	if len(loadedRoles) != 1 || len(loadedRoles[0].Permissions) != 1 || loadedRoles[0].Permissions[0] != "ALL" {
		t.Errorf("unexpected roles: %+v", loadedRoles)
	}

	for _, sub := range []string{"documents", "data", "logs", "templates"} {
		info, err := os.Stat(filepath.Join(s.Root(), "departments", "finance", sub))
		if err != nil || !info.IsDir() {
			t.Errorf("expected bootstrap directory %s: %v", sub, err)
		}
	}

	if err := s.CreateDepartment(ctx, dept, roles, users); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists on duplicate department, got %v", err)
	}
}

func TestListDepartmentsAndDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, deptID := range []string{"records", "finance"} {
		dept := Department{ID: deptID, Name: deptID, CreatedAt: "2024-03-01T10:00:00Z"}
		if err := s.CreateDepartment(ctx, dept, nil, nil); err != nil {
			t.Fatalf("CreateDepartment %s failed: %v", deptID, err)
		}
	}

	depts, err := s.ListDepartments(ctx)
	if err != nil {
		t.Fatalf("ListDepartments failed: %v", err)
	}
	if len(depts) != 2 || depts[0] != "finance" || depts[1] != "records" {
		t.Errorf("expected sorted department list, got %v", depts)
	}

	doc := sampleDocument()
	if err := s.SaveDocument(ctx, "finance", doc); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	// A stray non-record file must not surface as a document.
	stray := filepath.Join(s.Root(), "departments", "finance", "documents", "notes.txt")
	if err := os.WriteFile(stray, []byte("stray"), 0o644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	ids, err := s.ListDocumentIDs(ctx, "finance")
	if err != nil {
		t.Fatalf("ListDocumentIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "DOC_2024_0001" {
		t.Errorf("expected single record id, got %v", ids)
	}
}

func TestDocCountersRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	counters, err := s.LoadDocCounters(ctx, "finance")
	if err != nil {
		t.Fatalf("LoadDocCounters failed: %v", err)
	}
	if len(counters) != 0 {
		t.Errorf("expected empty counters, got %v", counters)
	}

	counters["2024"] = 41
	if err := s.SaveDocCounters(ctx, "finance", counters); err != nil {
		t.Fatalf("SaveDocCounters failed: %v", err)
	}

	reloaded, err := s.LoadDocCounters(ctx, "finance")
	if err != nil {
		t.Fatalf("LoadDocCounters after save failed: %v", err)
	}
	if reloaded["2024"] != 41 {
		t.Errorf("expected counter 41, got %v", reloaded)
	}
}

func TestSlugifyDepartmentID(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"Finance", "finance"},
		{"  Records & Archives ", "recordsarchives"},
		{"ops_north-2", "ops_north-2"},
		{"///", ""},
	}
	for _, tc := range cases {
		if got := SlugifyDepartmentID(tc.raw); got != tc.want {
			t.Errorf("SlugifyDepartmentID(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
