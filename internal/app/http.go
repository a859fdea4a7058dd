package app

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docflow/internal/rbac"
)

// HTTPServer is the thin JSON surface over the workflow engine. It performs
// no authentication: the session collaborator in front of it resolves
// identities and forwards them as X-Actor-Id / X-Role-Id headers, which are
// passed through as opaque strings.
type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     zerolog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && parts[1] == "health" && len(parts) == 2 {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && parts[1] == "track" && len(parts) == 2 {
		s.handleTrack(w, r)
		return
	}

	if parts[1] == "departments" {
		switch {
		case len(parts) == 2 && r.Method == http.MethodPost:
			s.handleCreateDepartment(w, r)
			return
		case len(parts) == 4 && parts[3] == "documents" && r.Method == http.MethodPost:
			s.handleCreateDocument(w, r, parts[2])
			return
		case len(parts) == 5 && parts[3] == "documents" && r.Method == http.MethodGet:
			s.handleGetDocument(w, r, parts[2], parts[4])
			return
		case len(parts) == 6 && parts[3] == "documents" && r.Method == http.MethodPost:
			s.handleDocumentAction(w, r, parts[2], parts[4], parts[5])
			return
		case len(parts) == 6 && parts[3] == "users" && parts[5] == "password" && r.Method == http.MethodPost:
			s.handleChangePassword(w, r, parts[2], parts[4])
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTrack(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(r.URL.Query().Get("ref"))
	if ref == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "ref query parameter is required", nil)
		return
	}
	result, err := s.service.Track(r.Context(), ref)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		AdminPassword string `json:"admin_password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	dept, err := s.service.CreateDepartment(r.Context(), body.ID, body.Name, body.AdminPassword)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dept)
}

func (s *HTTPServer) handleCreateDocument(w http.ResponseWriter, r *http.Request, deptID string) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "X-Actor-Id header is required", nil)
		return
	}
	var body struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	doc, err := s.service.CreateDocument(r.Context(), deptID, body.Title, body.Content, actor)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *HTTPServer) handleGetDocument(w http.ResponseWriter, r *http.Request, deptID, docID string) {
	doc, err := s.service.GetDocument(r.Context(), deptID, docID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *HTTPServer) handleDocumentAction(w http.ResponseWriter, r *http.Request, deptID, docID, action string) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "X-Actor-Id header is required", nil)
		return
	}

	switch action {
	case "transfer":
		var body struct {
			TargetUserID string  `json:"target_user_id"`
			NewStatus    *string `json:"new_status"`
			DueDate      *string `json:"due_date"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		// The owner gate lives here at the edge, as in the original flow;
		// the engine itself stays authorization-free.
		current, err := s.service.GetDocument(r.Context(), deptID, docID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		if current.CurrentOwner != actor {
			writeError(w, http.StatusForbidden, "NOT_OWNER", "Only the current owner can forward this document.", nil)
			return
		}
		doc, err := s.service.Transfer(r.Context(), deptID, docID, TransferInput{
			TargetUserID: body.TargetUserID,
			InitiatorID:  actor,
			NewStatus:    body.NewStatus,
			DueDate:      body.DueDate,
		})
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Document moved successfully.", "document": doc})
	case "edits":
		var body struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		doc, err := s.service.Edit(r.Context(), deptID, docID, actor, body.Title, body.Content)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Document updated successfully.", "document": doc})
	case "notes":
		var body struct {
			AuthorLabel string `json:"author_label"`
			Text        string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		label := body.AuthorLabel
		if label == "" {
			label = noteAuthorLabel(r, actor)
		}
		doc, err := s.service.AddNote(r.Context(), deptID, docID, actor, label, body.Text)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Note added to departmental sheet.", "document": doc})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleChangePassword(w http.ResponseWriter, r *http.Request, deptID, userID string) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "X-Actor-Id header is required", nil)
		return
	}
	if actor != userID {
		grants, err := s.service.ActorPermissions(r.Context(), deptID, actor)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		if !rbac.CanAny(grants, "users.manage") {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Only an administrator can change another user's password.", nil)
			return
		}
	}

	var body struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.ChangePassword(r.Context(), deptID, userID, body.OldPassword, body.NewPassword); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Password updated successfully."})
}

func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

// actorID is the identity resolved by the session collaborator in front of
// this service.
func actorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Actor-Id"))
}

// noteAuthorLabel builds the legacy note author label from the forwarded
// role and actor identity: "<role> (<actor>)".
func noteAuthorLabel(r *http.Request, actor string) string {
	role := strings.TrimSpace(r.Header.Get("X-Role-Id"))
	if role == "" {
		return actor
	}
	return fmt.Sprintf("%s (%s)", role, actor)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, origin string) {
	header.Set("Access-Control-Allow-Origin", origin)
	header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Actor-Id, X-Role-Id, X-Request-ID")
	header.Set("Content-Type", "application/json")
}

func randomRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
