package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sentra-platform/incident-api/internal/models"
)

// incidentColumns is the projection shared by all incident reads. Reporter and
// assignee are weak references: the LEFT JOINs tolerate deleted users.
const incidentColumns = `i.id, i.reference_id, i.title, i.description, i.type, i.category,
	i.location, i.incident_date, i.is_anonymous, i.reporter_id, i.assigned_to,
	i.status, i.priority, i.attachments, i.history, i.created_at, i.updated_at,
	r.name AS reporter_name, r.email AS reporter_email,
	a.name AS assignee_name, a.email AS assignee_email`

const incidentJoins = ` FROM incidents i
	LEFT JOIN users r ON r.id = i.reporter_id
	LEFT JOIN users a ON a.id = i.assigned_to`

// IncidentRepository provides database access for incident records.
type IncidentRepository struct {
	db *sqlx.DB
}

// NewIncidentRepository creates a new instance of IncidentRepository.
func NewIncidentRepository(db *sqlx.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

// IsUniqueViolation reports whether the error is a Postgres unique constraint
// violation (duplicate reference id or email).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Create inserts a new incident including its initial history entry.
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	if incident.ID == "" {
		incident.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = now
	}
	incident.UpdatedAt = now

	const query = `INSERT INTO incidents (id, reference_id, title, description, type, category,
		location, incident_date, is_anonymous, reporter_id, assigned_to, status, priority,
		attachments, history, created_at, updated_at)
		VALUES (:id, :reference_id, :title, :description, :type, :category,
		:location, :incident_date, :is_anonymous, :reporter_id, :assigned_to, :status, :priority,
		:attachments, :history, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, incident); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// FindByID returns a single incident with its joined user projections.
func (r *IncidentRepository) FindByID(ctx context.Context, id string) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + incidentJoins + ` WHERE i.id = $1 LIMIT 1`
	var incident models.Incident
	if err := r.db.GetContext(ctx, &incident, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find incident by id: %w", err)
	}
	return &incident, nil
}

// List returns incidents visible under the given scope, newest first with a
// stable id tie-break, plus the unpaginated total.
func (r *IncidentRepository) List(ctx context.Context, scope models.IncidentScope, filter models.IncidentFilter) ([]models.Incident, int, error) {
	var conditions []string
	var args []interface{}

	switch {
	case scope.All:
		// no scope restriction
	case scope.AssignedTo != "":
		conditions = append(conditions, fmt.Sprintf("i.assigned_to = $%d", len(args)+1))
		args = append(args, scope.AssignedTo)
	case scope.ReporterOrAnonymous != "":
		conditions = append(conditions, fmt.Sprintf("(i.reporter_id = $%d OR i.is_anonymous = TRUE)", len(args)+1))
		args = append(args, scope.ReporterOrAnonymous)
	default:
		return []models.Incident{}, 0, nil
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("i.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Priority != nil {
		conditions = append(conditions, fmt.Sprintf("i.priority = $%d", len(args)+1))
		args = append(args, *filter.Priority)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(i.category)", len(args)+1))
		args = append(args, filter.Category)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s%s%s ORDER BY i.created_at DESC, i.id DESC LIMIT %d OFFSET %d",
		incidentColumns, incidentJoins, where, pageSize, offset)

	var incidents []models.Incident
	if err := r.db.SelectContext(ctx, &incidents, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list incidents: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM incidents i" + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count incidents: %w", err)
	}

	return incidents, total, nil
}

// ListForExport returns every incident matching the filter, newest first,
// without pagination.
func (r *IncidentRepository) ListForExport(ctx context.Context, filter models.IncidentFilter) ([]models.Incident, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("i.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Priority != nil {
		conditions = append(conditions, fmt.Sprintf("i.priority = $%d", len(args)+1))
		args = append(args, *filter.Priority)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(i.category)", len(args)+1))
		args = append(args, filter.Category)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := "SELECT " + incidentColumns + incidentJoins + where + " ORDER BY i.created_at DESC, i.id DESC"
	var incidents []models.Incident
	if err := r.db.SelectContext(ctx, &incidents, query, args...); err != nil {
		return nil, fmt.Errorf("list incidents for export: %w", err)
	}
	return incidents, nil
}

// UpdateStatus sets the status and appends the history entry as one atomic
// row update. A concurrent reader never observes one without the other, and
// concurrent appends to history both survive. Returns sql.ErrNoRows when the
// incident vanished between check and write.
func (r *IncidentRepository) UpdateStatus(ctx context.Context, id string, status models.IncidentStatus, entry models.HistoryEntry) error {
	const query = `UPDATE incidents
		SET status = $2, history = history || $3::jsonb, updated_at = $4
		WHERE id = $1`
	return r.execOnRow(ctx, query, id, status, models.History{entry}, time.Now().UTC())
}

// Assign sets the assignee and appends the history entry atomically, with the
// same discipline as UpdateStatus. Status is left untouched.
func (r *IncidentRepository) Assign(ctx context.Context, id, assigneeID string, entry models.HistoryEntry) error {
	const query = `UPDATE incidents
		SET assigned_to = $2, history = history || $3::jsonb, updated_at = $4
		WHERE id = $1`
	return r.execOnRow(ctx, query, id, assigneeID, models.History{entry}, time.Now().UTC())
}

// UpdateDetails rewrites the editable fields and appends the change summary
// entry in one statement. The status guard in the WHERE clause closes the
// race between the pending-status check and the write.
func (r *IncidentRepository) UpdateDetails(ctx context.Context, incident *models.Incident, entry models.HistoryEntry) error {
	const query = `UPDATE incidents
		SET title = $2, description = $3, category = $4, location = $5,
			incident_date = $6, priority = $7, history = history || $8::jsonb, updated_at = $9
		WHERE id = $1 AND status = $10`
	return r.execOnRow(ctx, query,
		incident.ID, incident.Title, incident.Description, incident.Category,
		incident.Location, incident.IncidentDate, incident.Priority,
		models.History{entry}, time.Now().UTC(), models.StatusPending)
}

// AddAttachment appends attachment metadata atomically.
func (r *IncidentRepository) AddAttachment(ctx context.Context, id string, attachment models.Attachment) error {
	const query = `UPDATE incidents
		SET attachments = attachments || $2::jsonb, updated_at = $3
		WHERE id = $1`
	return r.execOnRow(ctx, query, id, models.Attachments{attachment}, time.Now().UTC())
}

// RemoveAttachment filters one attachment out of the metadata list atomically.
func (r *IncidentRepository) RemoveAttachment(ctx context.Context, id, attachmentID string) error {
	const query = `UPDATE incidents
		SET attachments = (
			SELECT COALESCE(jsonb_agg(elem), '[]'::jsonb)
			FROM jsonb_array_elements(attachments) elem
			WHERE elem->>'id' <> $2
		), updated_at = $3
		WHERE id = $1`
	return r.execOnRow(ctx, query, id, attachmentID, time.Now().UTC())
}

// Counts aggregates the dashboard counters in one query.
func (r *IncidentRepository) Counts(ctx context.Context) (*models.IncidentCounts, error) {
	const query = `SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE assigned_to IS NULL) AS unassigned,
		COUNT(*) FILTER (WHERE is_anonymous) AS anonymous,
		COUNT(*) FILTER (WHERE status = 'Pending') AS pending,
		COUNT(*) FILTER (WHERE status = 'In Review') AS in_review,
		COUNT(*) FILTER (WHERE status = 'Resolved') AS resolved,
		COUNT(*) FILTER (WHERE priority = 'Low') AS low,
		COUNT(*) FILTER (WHERE priority = 'Medium') AS medium,
		COUNT(*) FILTER (WHERE priority = 'High') AS high,
		COUNT(*) FILTER (WHERE priority = 'Critical') AS critical
		FROM incidents`
	var counts models.IncidentCounts
	if err := r.db.GetContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count incidents: %w", err)
	}
	return &counts, nil
}

func (r *IncidentRepository) execOnRow(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update incident rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
