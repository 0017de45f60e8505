package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// IncidentStatus enumerates the lifecycle states of an incident.
type IncidentStatus string

const (
	StatusPending  IncidentStatus = "Pending"
	StatusInReview IncidentStatus = "In Review"
	StatusResolved IncidentStatus = "Resolved"
)

// Valid reports whether the status is a member of the enum.
func (s IncidentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInReview, StatusResolved:
		return true
	default:
		return false
	}
}

// statusRank orders statuses along the normal lifecycle direction.
func statusRank(s IncidentStatus) int {
	switch s {
	case StatusPending:
		return 0
	case StatusInReview:
		return 1
	case StatusResolved:
		return 2
	default:
		return -1
	}
}

// IsBackwardTransition reports whether moving from one status to another runs
// against the normal lifecycle direction. Backward moves require a note.
func IsBackwardTransition(from, to IncidentStatus) bool {
	return statusRank(to) < statusRank(from)
}

// IncidentType enumerates the closed set of request types.
type IncidentType string

const (
	TypeNewRequest    IncidentType = "New Request"
	TypeBugFixing     IncidentType = "Bug Fixing"
	TypeUpdateRequest IncidentType = "Update Request"
)

// Valid reports whether the type is a member of the enum.
func (t IncidentType) Valid() bool {
	switch t {
	case TypeNewRequest, TypeBugFixing, TypeUpdateRequest:
		return true
	default:
		return false
	}
}

// IncidentPriority enumerates priority levels.
type IncidentPriority string

const (
	PriorityLow      IncidentPriority = "Low"
	PriorityMedium   IncidentPriority = "Medium"
	PriorityHigh     IncidentPriority = "High"
	PriorityCritical IncidentPriority = "Critical"
)

// Valid reports whether the priority is a member of the enum.
func (p IncidentPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// HistoryEntry is one immutable record of the incident audit trail. Entries are
// only ever appended with server-assigned timestamps.
type HistoryEntry struct {
	Status    IncidentStatus `json:"status"`
	ChangedBy string         `json:"changedBy"`
	Note      string         `json:"note"`
	ChangedAt time.Time      `json:"changedAt"`
}

// History is the ordered append-only audit trail, persisted as a JSONB array.
type History []HistoryEntry

// Value marshals the history for persistence.
func (h History) Value() (driver.Value, error) {
	if h == nil {
		h = History{}
	}
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB payload into the history list.
func (h *History) Scan(value interface{}) error {
	return scanJSON(value, h, "history")
}

// Attachment holds metadata for one uploaded file. Byte storage lives outside
// this service; only the metadata travels through it.
type Attachment struct {
	ID         string    `json:"id"`
	FileName   string    `json:"fileName"`
	FilePath   string    `json:"filePath"`
	FileURL    string    `json:"fileUrl"`
	FileSize   int64     `json:"fileSize"`
	FileType   string    `json:"fileType"`
	Comment    string    `json:"comment"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Attachments is the ordered attachment metadata list, persisted as JSONB.
type Attachments []Attachment

// Value marshals the attachment list for persistence.
func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		a = Attachments{}
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal attachments: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB payload into the attachment list.
func (a *Attachments) Scan(value interface{}) error {
	return scanJSON(value, a, "attachments")
}

func scanJSON(value, dest interface{}, what string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported %s column type %T", what, value)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return nil
}

// Incident is the persisted incident record. History and attachments are
// embedded ordered collections owned by the incident; reporter and assignee
// are weak references to users.
type Incident struct {
	ID           string           `db:"id" json:"id"`
	ReferenceID  string           `db:"reference_id" json:"reference_id"`
	Title        string           `db:"title" json:"title"`
	Description  string           `db:"description" json:"description"`
	Type         IncidentType     `db:"type" json:"type"`
	Category     pq.StringArray   `db:"category" json:"category"`
	Location     *string          `db:"location" json:"location,omitempty"`
	IncidentDate *time.Time       `db:"incident_date" json:"incident_date,omitempty"`
	IsAnonymous  bool             `db:"is_anonymous" json:"is_anonymous"`
	ReporterID   *string          `db:"reporter_id" json:"reporter_id,omitempty"`
	AssignedTo   *string          `db:"assigned_to" json:"assigned_to,omitempty"`
	Status       IncidentStatus   `db:"status" json:"status"`
	Priority     IncidentPriority `db:"priority" json:"priority"`
	Attachments  Attachments      `db:"attachments" json:"attachments"`
	History      History          `db:"history" json:"history"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`

	// Joined user projections for display. Nil when the referenced user is
	// gone or the incident is anonymous.
	ReporterName  *string `db:"reporter_name" json:"reporter_name,omitempty"`
	ReporterEmail *string `db:"reporter_email" json:"reporter_email,omitempty"`
	AssigneeName  *string `db:"assignee_name" json:"assignee_name,omitempty"`
	AssigneeEmail *string `db:"assignee_email" json:"assignee_email,omitempty"`
}

// Redact strips reporter identity from anonymous incidents. Applied on every
// read path regardless of the caller's role.
func (i *Incident) Redact() {
	if i == nil || !i.IsAnonymous {
		return
	}
	i.ReporterID = nil
	i.ReporterName = nil
	i.ReporterEmail = nil
}

// IncidentCounts is the flat aggregate row backing the dashboard counters.
type IncidentCounts struct {
	Total      int `db:"total"`
	Unassigned int `db:"unassigned"`
	Anonymous  int `db:"anonymous"`
	Pending    int `db:"pending"`
	InReview   int `db:"in_review"`
	Resolved   int `db:"resolved"`
	Low        int `db:"low"`
	Medium     int `db:"medium"`
	High       int `db:"high"`
	Critical   int `db:"critical"`
}

// IncidentFilter captures list filters for the admin view.
type IncidentFilter struct {
	Status   *IncidentStatus
	Priority *IncidentPriority
	Category string
	Page     int
	PageSize int
}

// IncidentScope is the visibility predicate computed per principal. Exactly
// one of the boolean/id fields drives the query shape.
type IncidentScope struct {
	// All grants unrestricted listing (admin).
	All bool
	// AssignedTo limits results to incidents assigned to the given user (staff).
	AssignedTo string
	// ReporterOrAnonymous limits results to incidents reported by the given
	// user plus anonymous ones (students and staff listing their own).
	ReporterOrAnonymous string
}
