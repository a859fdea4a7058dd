// Package app implements the workflow engine: the only component with
// cross-entity business logic. Every mutating operation is a single critical
// section — lock, load, validate, mutate, persist, log — keyed by the
// document's storage path. The engine trusts the identities handed to it;
// authentication and authorization belong to the calling layer.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docflow/internal/auditlog"
	"docflow/internal/authpw"
	"docflow/internal/docid"
	"docflow/internal/lockmgr"
	"docflow/internal/store"
)

type dataStore interface {
	LoadDepartment(ctx context.Context, deptID string) (store.Department, error)
	ListDepartments(ctx context.Context) ([]string, error)
	DepartmentExists(deptID string) bool
	CreateDepartment(ctx context.Context, dept store.Department, roles []store.Role, users []store.User) error
	LoadDocument(ctx context.Context, deptID, docID string) (store.Document, error)
	SaveDocument(ctx context.Context, deptID string, doc store.Document) error
	DocumentExists(deptID, docID string) (bool, error)
	LoadUsers(ctx context.Context, deptID string) ([]store.User, error)
	LoadRoles(ctx context.Context, deptID string) ([]store.Role, error)
	DocumentKey(deptID, docID string) string
}

type locker interface {
	Acquire(ctx context.Context, key string) (*lockmgr.Lease, error)
}

type idGenerator interface {
	Next(ctx context.Context, deptID string) (string, error)
}

type auditAppender interface {
	Append(ctx context.Context, deptID, line string) error
}

type credentialService interface {
	ChangePassword(ctx context.Context, deptID, userID, oldPassword, newPassword string) error
}

type Service struct {
	store dataStore
	locks locker
	ids   idGenerator
	audit auditAppender
	creds credentialService
	now   func() time.Time
}

func New(dataStore *store.FileStore, locks *lockmgr.Manager, ids *docid.Generator, audit *auditlog.Log, creds *authpw.Service) *Service {
	return &Service{
		store: dataStore,
		locks: locks,
		ids:   ids,
		audit: audit,
		creds: creds,
		now:   time.Now,
	}
}

// TransferInput carries the optional fields of a transfer. A nil NewStatus
// leaves the status untouched; a nil DueDate never clears a prior due date.
type TransferInput struct {
	TargetUserID string
	InitiatorID  string
	NewStatus    *string
	DueDate      *string
}

// Transfer hands the document to another user in the same department. The
// mutation, the save, and the master-log line form one logical unit: if the
// save fails, no audit line is written and nothing is visible to readers.
func (s *Service) Transfer(ctx context.Context, deptID, docID string, input TransferInput) (store.Document, error) {
	if strings.TrimSpace(input.TargetUserID) == "" {
		return store.Document{}, errValidation("Target user is required.")
	}
	if input.DueDate != nil {
		if _, err := time.Parse(store.DueDateLayout, *input.DueDate); err != nil {
			return store.Document{}, errValidation("Due date must be in YYYY-MM-DD format.")
		}
	}

	// Existence is checked against the current roster snapshot, not against
	// anything embedded in the document.
	users, err := s.store.LoadUsers(ctx, deptID)
	if err != nil {
		return store.Document{}, coerceError(err)
	}
	if !rosterContains(users, input.TargetUserID) {
		return store.Document{}, errNotFound("Target user does not exist in this department.")
	}

	lease, err := s.locks.Acquire(ctx, s.store.DocumentKey(deptID, docID))
	if err != nil {
		return store.Document{}, coerceError(err)
	}
	defer lease.Release()

	doc, err := s.store.LoadDocument(ctx, deptID, docID)
	if err != nil {
		return store.Document{}, coerceError(err)
	}

	previousOwner := doc.CurrentOwner
	doc.CurrentOwner = input.TargetUserID
	if input.NewStatus != nil {
		doc.Status = *input.NewStatus
	}
	if input.DueDate != nil {
		doc.DueDate = input.DueDate
	}

	entry := store.HistoryEntry{
		Action: "moved",
		From:   previousOwner,
		To:     input.TargetUserID,
		By:     input.InitiatorID,
		Time:   s.now().Format(store.TimeLayout),
	}
	if doc.DueDate != nil {
		entry.DueDate = doc.DueDate
	}
	doc.History = append(doc.History, entry)

	if err := s.store.SaveDocument(ctx, deptID, doc); err != nil {
		return store.Document{}, coerceError(err)
	}

	from := previousOwner
	if from == "" {
		from = "unknown"
	}
	line := fmt.Sprintf("%s moved from %s to %s", docID, from, input.TargetUserID)
	if err := s.audit.Append(ctx, deptID, line); err != nil {
		return store.Document{}, coerceError(err)
	}
	return doc, nil
}

// Edit overwrites title and content. Allowed only while the document sits in
// an editable status and only for the current owner; status and owner are
// never changed here.
func (s *Service) Edit(ctx context.Context, deptID, docID, actorID, newTitle, newContent string) (store.Document, error) {
	title := strings.TrimSpace(newTitle)
	if title == "" {
		return store.Document{}, errValidation("Title is required.")
	}

	lease, err := s.locks.Acquire(ctx, s.store.DocumentKey(deptID, docID))
	if err != nil {
		return store.Document{}, coerceError(err)
	}
	defer lease.Release()

	doc, err := s.store.LoadDocument(ctx, deptID, docID)
	if err != nil {
		return store.Document{}, coerceError(err)
	}
	if doc.CurrentOwner != actorID {
		return store.Document{}, errNotOwner("Only the current owner can edit this document.")
	}
	if !store.IsEditableStatus(doc.Status) {
		return store.Document{}, errValidation("Editing is only allowed in draft or correction status.")
	}

	doc.Title = title
	doc.Content = newContent
	doc.History = append(doc.History, store.HistoryEntry{
		Action: "edited",
		By:     actorID,
		Time:   s.now().Format(store.TimeLayout),
	})

	if err := s.store.SaveDocument(ctx, deptID, doc); err != nil {
		return store.Document{}, coerceError(err)
	}
	return doc, nil
}

// AddNote appends one permanent note sheet entry and its history record.
// Notes are not ownership-gated; any department member may annotate. No
// operation anywhere can edit or remove an existing entry.
func (s *Service) AddNote(ctx context.Context, deptID, docID, actorID, authorLabel, text string) (store.Document, error) {
	noteText := strings.TrimSpace(text)
	if noteText == "" {
		return store.Document{}, errValidation("Note text cannot be empty.")
	}
	label := strings.TrimSpace(authorLabel)
	if label == "" {
		label = actorID
	}

	lease, err := s.locks.Acquire(ctx, s.store.DocumentKey(deptID, docID))
	if err != nil {
		return store.Document{}, coerceError(err)
	}
	defer lease.Release()

	doc, err := s.store.LoadDocument(ctx, deptID, docID)
	if err != nil {
		return store.Document{}, coerceError(err)
	}

	doc.NoteSheet = append(doc.NoteSheet, store.Note{
		User:      label,
		Note:      noteText,
		Timestamp: s.now().Format(store.NoteTimeLayout),
	})
	doc.History = append(doc.History, store.HistoryEntry{
		Action: "note_added",
		From:   doc.CurrentOwner,
		To:     doc.CurrentOwner,
		By:     actorID,
		Time:   s.now().Format(store.TimeLayout),
	})

	if err := s.store.SaveDocument(ctx, deptID, doc); err != nil {
		return store.Document{}, coerceError(err)
	}
	return doc, nil
}

// CreateDocument allocates a fresh identifier and writes the initial record
// in draft status, owned by its creator.
func (s *Service) CreateDocument(ctx context.Context, deptID, title, content, createdBy string) (store.Document, error) {
	if strings.TrimSpace(title) == "" {
		return store.Document{}, errValidation("Title is required.")
	}
	if !s.store.DepartmentExists(deptID) {
		return store.Document{}, errNotFound("Department not found.")
	}

	users, err := s.store.LoadUsers(ctx, deptID)
	if err != nil {
		return store.Document{}, coerceError(err)
	}
	if !rosterContains(users, createdBy) {
		return store.Document{}, errNotFound("Creating user does not exist in this department.")
	}

	docID, err := s.ids.Next(ctx, deptID)
	if err != nil {
		return store.Document{}, coerceError(err)
	}

	doc := store.Document{
		ID:           docID,
		Title:        strings.TrimSpace(title),
		Content:      content,
		Status:       store.StatusDraft,
		CurrentOwner: createdBy,
		History: []store.HistoryEntry{{
			Action: "created",
			To:     createdBy,
			By:     createdBy,
			Time:   s.now().Format(store.TimeLayout),
		}},
		NoteSheet:   []store.Note{},
		Attachments: []store.Attachment{},
	}

	if err := s.store.SaveDocument(ctx, deptID, doc); err != nil {
		return store.Document{}, coerceError(err)
	}
	if err := s.audit.Append(ctx, deptID, fmt.Sprintf("%s created by %s", docID, createdBy)); err != nil {
		return store.Document{}, coerceError(err)
	}
	return doc, nil
}

// GetDocument returns the full record, history and note sheet included, for
// rendering by collaborators. Reads need no lock: saves replace the record
// atomically, so a reader sees a complete record or none.
func (s *Service) GetDocument(ctx context.Context, deptID, docID string) (store.Document, error) {
	doc, err := s.store.LoadDocument(ctx, deptID, docID)
	if err != nil {
		return store.Document{}, coerceError(err)
	}
	return doc, nil
}

// CreateDepartment provisions a department with its admin role and admin
// user. The admin credential is stored as a bcrypt hash.
func (s *Service) CreateDepartment(ctx context.Context, rawID, name, adminPassword string) (store.Department, error) {
	deptID := store.SlugifyDepartmentID(rawID)
	if deptID == "" {
		return store.Department{}, errValidation("Department ID cannot be empty.")
	}
	if strings.TrimSpace(name) == "" {
		return store.Department{}, errValidation("Department name is required.")
	}
	if adminPassword == "" {
		return store.Department{}, errValidation("Administrator password is required.")
	}
	if s.store.DepartmentExists(deptID) {
		return store.Department{}, errConflict("Department ID already exists.")
	}

	hash, err := authpw.HashPassword(adminPassword)
	if err != nil {
		return store.Department{}, coerceError(err)
	}

	roleID := "admin." + deptID
	dept := store.Department{
		ID:        deptID,
		Name:      strings.TrimSpace(name),
		CreatedAt: s.now().Format(store.TimeLayout),
	}
	roles := []store.Role{{
		ID:          roleID,
		Name:        "Department Administrator",
		Permissions: []string{"ALL"},
	}}
	users := []store.User{{
		ID:           "user.admin." + deptID,
		PasswordHash: hash,
		Roles:        []string{roleID},
	}}

	if err := s.store.CreateDepartment(ctx, dept, roles, users); err != nil {
		return store.Department{}, coerceError(err)
	}
	return dept, nil
}

// TrackResult is the public tracking view of a document: no content, no
// history, just where the document sits.
type TrackResult struct {
	Department   string `json:"department"`
	Status       string `json:"status"`
	CurrentOwner string `json:"current_owner"`
	Since        string `json:"since"`
}

// Track locates a document by reference across all departments and reports
// its status, the display name of the owner's primary role, and when it
// entered the system.
func (s *Service) Track(ctx context.Context, ref string) (TrackResult, error) {
	if !store.ValidDocumentID(strings.TrimSpace(ref)) {
		return TrackResult{}, errNotFound("No document found with that reference number.")
	}
	ref = strings.TrimSpace(ref)

	deptIDs, err := s.store.ListDepartments(ctx)
	if err != nil {
		return TrackResult{}, coerceError(err)
	}

	for _, deptID := range deptIDs {
		exists, err := s.store.DocumentExists(deptID, ref)
		if err != nil || !exists {
			continue
		}
		doc, err := s.store.LoadDocument(ctx, deptID, ref)
		if err != nil {
			continue
		}

		deptName := deptID
		if dept, err := s.store.LoadDepartment(ctx, deptID); err == nil && dept.Name != "" {
			deptName = dept.Name
		}

		result := TrackResult{
			Department:   deptName,
			Status:       doc.Status,
			CurrentOwner: s.ownerRoleName(ctx, deptID, doc.CurrentOwner),
		}
		if len(doc.History) > 0 {
			result.Since = doc.History[0].Time
		}
		return result, nil
	}
	return TrackResult{}, errNotFound("No document found with that reference number.")
}

// ownerRoleName resolves the display name of the owner's primary role. The
// public view deliberately names the desk, not the person.
func (s *Service) ownerRoleName(ctx context.Context, deptID, ownerID string) string {
	users, err := s.store.LoadUsers(ctx, deptID)
	if err != nil {
		return "Unassigned"
	}
	var primaryRole string
	for _, user := range users {
		if user.ID == ownerID && len(user.Roles) > 0 {
			primaryRole = user.Roles[0]
			break
		}
	}
	if primaryRole == "" {
		return "Unassigned"
	}
	roles, err := s.store.LoadRoles(ctx, deptID)
	if err == nil {
		for _, role := range roles {
			if role.ID == primaryRole && role.Name != "" {
				return role.Name
			}
		}
	}
	return primaryRole
}

// ChangePassword rotates a roster credential and records it in the master
// log.
func (s *Service) ChangePassword(ctx context.Context, deptID, userID, oldPassword, newPassword string) error {
	if !s.store.DepartmentExists(deptID) {
		return errNotFound("Department not found.")
	}
	if newPassword == "" {
		return errValidation("New password is required.")
	}

	err := s.creds.ChangePassword(ctx, deptID, userID, oldPassword, newPassword)
	if errors.Is(err, authpw.ErrUserNotFound) {
		return errNotFound("User record not found.")
	}
	if errors.Is(err, authpw.ErrWrongPassword) {
		return errValidation("Old password is incorrect.")
	}
	if err != nil {
		return coerceError(err)
	}

	if err := s.audit.Append(ctx, deptID, fmt.Sprintf("User %s changed password", userID)); err != nil {
		return coerceError(err)
	}
	return nil
}

// ActorPermissions collects the permission set of every role the actor holds,
// for the transport layer's management gates.
func (s *Service) ActorPermissions(ctx context.Context, deptID, actorID string) ([][]string, error) {
	users, err := s.store.LoadUsers(ctx, deptID)
	if err != nil {
		return nil, coerceError(err)
	}
	var roleIDs []string
	for _, user := range users {
		if user.ID == actorID {
			roleIDs = user.Roles
			break
		}
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}

	roles, err := s.store.LoadRoles(ctx, deptID)
	if err != nil {
		return nil, coerceError(err)
	}
	grants := make([][]string, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		for _, role := range roles {
			if role.ID == roleID {
				grants = append(grants, role.Permissions)
				break
			}
		}
	}
	return grants, nil
}

func rosterContains(users []store.User, userID string) bool {
	for _, user := range users {
		if user.ID == userID {
			return true
		}
	}
	return false
}
