package store

// Timestamp layouts preserved from legacy records. History entries and the
// department metadata carry RFC 3339 strings; note sheet entries carry the
// older space-separated layout. Both are kept verbatim so that loading and
// re-saving a record never rewrites existing entries.
const (
	TimeLayout     = "2006-01-02T15:04:05Z07:00"
	NoteTimeLayout = "2006-01-02 15:04:05"
	DueDateLayout  = "2006-01-02"
)

type Department struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type User struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	PasswordHash string   `json:"password_hash"`
	Roles        []string `json:"roles"`
}

type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// HistoryEntry is one transition record inside a document. History is
// append-only: entries are never edited, removed, or reordered.
type HistoryEntry struct {
	Action  string  `json:"action"`
	From    string  `json:"from,omitempty"`
	To      string  `json:"to,omitempty"`
	By      string  `json:"by"`
	Time    string  `json:"time"`
	DueDate *string `json:"due_date,omitempty"`
}

// Note is one note sheet entry. The author label is stored denormalized,
// exactly as supplied at write time, to stay consistent with legacy records.
type Note struct {
	User      string `json:"user"`
	Note      string `json:"note"`
	Timestamp string `json:"timestamp"`
}

type Attachment struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// Document is the full on-disk record for one routed document.
type Document struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	Status       string         `json:"status"`
	CurrentOwner string         `json:"current_owner"`
	DueDate      *string        `json:"due_date"`
	History      []HistoryEntry `json:"history"`
	NoteSheet    []Note         `json:"note_sheet"`
	Attachments  []Attachment   `json:"attachments"`
}

const (
	StatusDraft      = "draft"
	StatusPending    = "pending"
	StatusCorrection = "correction"
)

// IsEditableStatus reports whether the owner may alter title/content.
// Status values are otherwise opaque to the engine.
func IsEditableStatus(status string) bool {
	return status == StatusDraft || status == StatusCorrection
}
