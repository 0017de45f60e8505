package dto

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sentra-platform/incident-api/internal/models"
)

// CategoryList normalises the category field at the boundary. Clients have
// historically sent either a JSON array or a single string holding a JSON
// array or a comma-separated list; the core only ever sees the canonical
// non-empty ordered list of strings.
type CategoryList []string

// UnmarshalJSON accepts both encodings and canonicalises them.
func (c *CategoryList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*c = normalizeCategories(arr)
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var nested []string
	if err := json.Unmarshal([]byte(raw), &nested); err == nil {
		*c = normalizeCategories(nested)
		return nil
	}
	*c = normalizeCategories(strings.Split(raw, ","))
	return nil
}

func normalizeCategories(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// AttachmentInput carries metadata for one uploaded file. Bytes are stored by
// the upload collaborator; only their description reaches this service.
type AttachmentInput struct {
	FileName string `json:"file_name" validate:"required"`
	FilePath string `json:"file_path" validate:"required"`
	FileURL  string `json:"file_url" validate:"required"`
	FileSize int64  `json:"file_size" validate:"gte=0"`
	FileType string `json:"file_type" validate:"required"`
	Comment  string `json:"comment"`
}

// CreateIncidentRequest is the create payload.
type CreateIncidentRequest struct {
	Title        string            `json:"title" validate:"required"`
	Description  string            `json:"description" validate:"required"`
	Type         string            `json:"type" validate:"required"`
	Category     CategoryList      `json:"category" validate:"required,min=1"`
	Location     *string           `json:"location"`
	IncidentDate *time.Time        `json:"incident_date"`
	IsAnonymous  bool              `json:"is_anonymous"`
	Priority     string            `json:"priority"`
	Attachments  []AttachmentInput `json:"attachments" validate:"dive"`
}

// CreateIncidentResponse returns the identifiers of the new incident.
type CreateIncidentResponse struct {
	ID          string `json:"id"`
	ReferenceID string `json:"reference_id"`
}

// UpdateStatusRequest changes the incident status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note"`
}

// AssignIncidentRequest binds an incident to a staff member.
type AssignIncidentRequest struct {
	AssignedTo string `json:"assigned_to" validate:"required"`
}

// EditIncidentRequest is the partial field set the reporter may change while
// the incident is still pending. Nil means "leave unchanged".
type EditIncidentRequest struct {
	Title        *string      `json:"title"`
	Description  *string      `json:"description"`
	Category     CategoryList `json:"category"`
	Location     *string      `json:"location"`
	IncidentDate *time.Time   `json:"incident_date"`
	Priority     *string      `json:"priority"`
}

// EditIncidentResponse returns the updated record plus the change summary.
type EditIncidentResponse struct {
	Incident *models.Incident `json:"incident"`
	Changes  []string         `json:"changes"`
}

// IncidentListQuery captures the admin list filters.
type IncidentListQuery struct {
	Status   string `form:"status"`
	Priority string `form:"priority"`
	Category string `form:"category"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// IncidentStats is the admin dashboard counters payload.
type IncidentStats struct {
	Total       int                             `json:"total"`
	Unassigned  int                             `json:"unassigned"`
	Anonymous   int                             `json:"anonymous"`
	ByStatus    map[models.IncidentStatus]int   `json:"by_status"`
	ByPriority  map[models.IncidentPriority]int `json:"by_priority"`
	GeneratedAt time.Time                       `json:"generated_at"`
}

// ExportRequest asks for an asynchronous incident report export.
type ExportRequest struct {
	Format   string `json:"format" validate:"required,oneof=csv pdf"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
	Category string `json:"category"`
}
