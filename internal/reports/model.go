package reports

import (
	"time"

	"github.com/google/uuid"
)

// Status is a report's position in its lifecycle. Pending means "awaiting
// operator action", not "unclassified" — a validated report stays pending
// with its classification fields filled in.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusResolved   Status = "resolved"
	StatusInvalid    Status = "invalid"
)

// Terminal reports whether s is a scoring-relevant terminal status.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusInvalid
}

// allowedTransitions are the operator-driven status edits. The validator's
// own pending→invalid write bypasses this table (and scoring) entirely.
var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusResolved, StatusInvalid},
	StatusInProgress: {StatusResolved, StatusInvalid},
}

// CanTransition reports whether an operator may move a report from one
// status to another.
func CanTransition(from, to Status) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Report is a single submitted civic issue.
type Report struct {
	ID          uuid.UUID `json:"id"                    db:"id"`
	UserID      uuid.UUID `json:"user_id"               db:"user_id"`
	Username    string    `json:"username,omitempty"    db:"-"`
	Description string    `json:"description"           db:"description"`
	IssueType   string    `json:"issue_type"            db:"issue_type"`
	Location    string    `json:"location,omitempty"    db:"location"`
	Latitude    *float64  `json:"latitude,omitempty"    db:"latitude"`
	Longitude   *float64  `json:"longitude,omitempty"   db:"longitude"`
	PhotoPath   string    `json:"photo,omitempty"       db:"photo_path"`
	VoicePath   string    `json:"voice_note,omitempty"  db:"voice_path"`
	Status      Status    `json:"status"                db:"status"`

	// Classification triple: all null until the validator succeeds, then
	// all set together in one write.
	Category     *string `json:"category"      db:"category"`
	Severity     *string `json:"severity"      db:"severity"`
	ResponseTime *string `json:"response_time" db:"response_time"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Classified reports whether the classification triple is populated.
func (r *Report) Classified() bool {
	return r.Category != nil && r.Severity != nil && r.ResponseTime != nil
}

// SeverityOrEmpty returns the severity string, or "" when unclassified.
func (r *Report) SeverityOrEmpty() string {
	if r.Severity == nil {
		return ""
	}
	return *r.Severity
}

// StatusCounts is the per-status aggregation served by the stats endpoint.
type StatusCounts struct {
	Total      int `json:"total_reports"`
	Resolved   int `json:"resolved"`
	InProgress int `json:"in_progress"`
	Pending    int `json:"pending"`
	Invalid    int `json:"invalid"`
}

// ModelOutput is the audit record written by the interactive
// classification path. Kept separate from Report's own classification
// fields; retained for audit.
type ModelOutput struct {
	ID                  uuid.UUID `json:"id"                   db:"id"`
	UserID              uuid.UUID `json:"user_id"              db:"user_id"`
	Severity            string    `json:"severity"             db:"severity"`
	DepartmentAllocated string    `json:"department_allocated" db:"department_allocated"`
	ResolutionTime      string    `json:"resolution_time"      db:"resolution_time"`
	CreatedAt           time.Time `json:"created_at"           db:"created_at"`
}

// departments maps a classified category to the municipal department the
// issue is routed to.
var departments = map[string]string{
	"garbage":      "Sanitation",
	"road":         "Road Maintenance",
	"fire":         "Fire Services",
	"water":        "Water Board",
	"construction": "Building Authority",
	"air":          "Pollution Control",
}

// DepartmentFor returns the department responsible for a category.
func DepartmentFor(category string) string {
	if d, ok := departments[category]; ok {
		return d
	}
	return "General Administration"
}
