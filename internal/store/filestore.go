// Package store is the file-backed data layer: one directory per department,
// one JSON file per record, an append-only master log per department. All
// writes replace the full record atomically; no partial-field update exists.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrExists   = errors.New("record already exists")
)

var (
	deptIDPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)
	docIDPattern  = regexp.MustCompile(`^DOC_(\d{4})_(\d{4,})$`)
)

// FileStore is the sole gateway to the on-disk representation. Callers load a
// full record, mutate it in memory, and save the full record back; the
// critical-section locking around that sequence lives with the caller.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) departmentDir(deptID string) string {
	return filepath.Join(s.root, "departments", deptID)
}

func (s *FileStore) documentsDir(deptID string) string {
	return filepath.Join(s.departmentDir(deptID), "documents")
}

// DocumentKey is the department-relative storage path for a document record.
// It doubles as the lock key for the record's critical sections.
func (s *FileStore) DocumentKey(deptID, docID string) string {
	return filepath.Join("departments", deptID, "documents", docID+".json")
}

// DocumentsKey is the lock key covering a department's documents directory,
// used by the identifier generator's scan-propose-verify sequence.
func (s *FileStore) DocumentsKey(deptID string) string {
	return filepath.Join("departments", deptID, "documents")
}

// UsersKey is the lock key for a department's user roster file.
func (s *FileStore) UsersKey(deptID string) string {
	return filepath.Join("departments", deptID, "users", "users.json")
}

func (s *FileStore) documentPath(deptID, docID string) string {
	return filepath.Join(s.documentsDir(deptID), docID+".json")
}

func ValidDepartmentID(deptID string) bool {
	return deptIDPattern.MatchString(deptID)
}

func ValidDocumentID(docID string) bool {
	return docIDPattern.MatchString(docID)
}

// SlugifyDepartmentID normalizes a raw identifier the way department slugs
// have always been stored: lowercased, stripped to [a-z0-9_-].
func SlugifyDepartmentID(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	for _, ch := range lowered {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '-' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

func (s *FileStore) checkDeptID(deptID string) error {
	if !ValidDepartmentID(deptID) {
		return fmt.Errorf("department id %q: %w", deptID, ErrNotFound)
	}
	return nil
}

func (s *FileStore) checkDocID(docID string) error {
	if !ValidDocumentID(docID) {
		return fmt.Errorf("document id %q: %w", docID, ErrNotFound)
	}
	return nil
}

func (s *FileStore) LoadDepartment(ctx context.Context, deptID string) (Department, error) {
	if err := s.checkDeptID(deptID); err != nil {
		return Department{}, err
	}
	var dept Department
	if err := readJSON(filepath.Join(s.departmentDir(deptID), "department.json"), &dept); err != nil {
		return Department{}, err
	}
	return dept, nil
}

// ListDepartments returns the identifiers of all provisioned departments,
// sorted for deterministic iteration.
func (s *FileStore) ListDepartments(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "departments"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && ValidDepartmentID(entry.Name()) {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) DepartmentExists(deptID string) bool {
	if !ValidDepartmentID(deptID) {
		return false
	}
	info, err := os.Stat(s.departmentDir(deptID))
	return err == nil && info.IsDir()
}

// CreateDepartment provisions the directory tree and bootstrap files for a new
// department: metadata, the initial role roster, and the initial user roster.
func (s *FileStore) CreateDepartment(ctx context.Context, dept Department, roles []Role, users []User) error {
	if err := s.checkDeptID(dept.ID); err != nil {
		return err
	}
	base := s.departmentDir(dept.ID)
	if _, err := os.Stat(base); err == nil {
		return fmt.Errorf("department %s: %w", dept.ID, ErrExists)
	}

	for _, dir := range []string{
		base,
		filepath.Join(base, "users"),
		filepath.Join(base, "roles"),
		filepath.Join(base, "documents"),
		filepath.Join(base, "data"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "templates"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if err := writeJSON(filepath.Join(base, "roles", "roles.json"), roles); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(base, "users", "users.json"), users); err != nil {
		return err
	}
	return writeJSON(filepath.Join(base, "department.json"), dept)
}

func (s *FileStore) LoadDocument(ctx context.Context, deptID, docID string) (Document, error) {
	if err := s.checkDeptID(deptID); err != nil {
		return Document{}, err
	}
	if err := s.checkDocID(docID); err != nil {
		return Document{}, err
	}
	var doc Document
	if err := readJSON(s.documentPath(deptID, docID), &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// SaveDocument persists the full record. Slices are normalized so a record
// never serializes with null history/note_sheet/attachments fields.
func (s *FileStore) SaveDocument(ctx context.Context, deptID string, doc Document) error {
	if err := s.checkDeptID(deptID); err != nil {
		return err
	}
	if err := s.checkDocID(doc.ID); err != nil {
		return err
	}
	if doc.History == nil {
		doc.History = []HistoryEntry{}
	}
	if doc.NoteSheet == nil {
		doc.NoteSheet = []Note{}
	}
	if doc.Attachments == nil {
		doc.Attachments = []Attachment{}
	}
	return writeJSON(s.documentPath(deptID, doc.ID), doc)
}

func (s *FileStore) DocumentExists(deptID, docID string) (bool, error) {
	if !ValidDepartmentID(deptID) || !ValidDocumentID(docID) {
		return false, nil
	}
	_, err := os.Stat(s.documentPath(deptID, docID))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", docID, err)
	}
	return true, nil
}

// ListDocumentIDs returns every document identifier in the department. The
// documents directory is created on first use so a freshly provisioned or
// partially restored department lists as empty rather than failing.
func (s *FileStore) ListDocumentIDs(ctx context.Context, deptID string) ([]string, error) {
	if err := s.checkDeptID(deptID); err != nil {
		return nil, err
	}
	dir := s.documentsDir(deptID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if ValidDocumentID(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) LoadUsers(ctx context.Context, deptID string) ([]User, error) {
	if err := s.checkDeptID(deptID); err != nil {
		return nil, err
	}
	var users []User
	err := readJSON(filepath.Join(s.departmentDir(deptID), "users", "users.json"), &users)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *FileStore) SaveUsers(ctx context.Context, deptID string, users []User) error {
	if err := s.checkDeptID(deptID); err != nil {
		return err
	}
	if users == nil {
		users = []User{}
	}
	return writeJSON(filepath.Join(s.departmentDir(deptID), "users", "users.json"), users)
}

// LoadDocCounters reads the persisted per-year document counters. A missing
// file yields an empty map; the identifier generator treats that as a signal
// to bootstrap from a directory scan.
func (s *FileStore) LoadDocCounters(ctx context.Context, deptID string) (map[string]int, error) {
	if err := s.checkDeptID(deptID); err != nil {
		return nil, err
	}
	counters := make(map[string]int)
	err := readJSON(filepath.Join(s.departmentDir(deptID), "data", "doc_counters.json"), &counters)
	if errors.Is(err, ErrNotFound) {
		return counters, nil
	}
	if err != nil {
		return nil, err
	}
	return counters, nil
}

func (s *FileStore) SaveDocCounters(ctx context.Context, deptID string, counters map[string]int) error {
	if err := s.checkDeptID(deptID); err != nil {
		return err
	}
	return writeJSON(filepath.Join(s.departmentDir(deptID), "data", "doc_counters.json"), counters)
}

func (s *FileStore) LoadRoles(ctx context.Context, deptID string) ([]Role, error) {
	if err := s.checkDeptID(deptID); err != nil {
		return nil, err
	}
	var roles []Role
	err := readJSON(filepath.Join(s.departmentDir(deptID), "roles", "roles.json"), &roles)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return roles, nil
}
