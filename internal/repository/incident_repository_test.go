package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-platform/incident-api/internal/models"
)

var incidentTestColumns = []string{
	"id", "reference_id", "title", "description", "type", "category",
	"location", "incident_date", "is_anonymous", "reporter_id", "assigned_to",
	"status", "priority", "attachments", "history", "created_at", "updated_at",
	"reporter_name", "reporter_email", "assignee_name", "assignee_email",
}

func addIncidentRow(rows *sqlmock.Rows, id, status string, anonymous bool) {
	now := time.Now()
	var reporter interface{}
	if !anonymous {
		reporter = "u1"
	}
	rows.AddRow(
		id, "INC-20260101-ABC234", "Broken door", "The lab door is broken", "Bug Fixing",
		pq.StringArray{"Facilities"}, nil, nil, anonymous, reporter, nil,
		status, "Medium", []byte(`[]`), []byte(`[]`), now, now,
		nil, nil, nil, nil,
	)
}

func TestFindIncidentByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncidentRepository(db)

	rows := sqlmock.NewRows(incidentTestColumns)
	addIncidentRow(rows, "i1", "Pending", false)
	mock.ExpectQuery("SELECT i.id, i.reference_id").
		WithArgs("i1").
		WillReturnRows(rows)

	incident, err := repo.FindByID(context.Background(), "i1")
	require.NoError(t, err)
	assert.Equal(t, "i1", incident.ID)
	assert.Equal(t, models.StatusPending, incident.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindIncidentByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncidentRepository(db)

	mock.ExpectQuery("SELECT i.id, i.reference_id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListIncidentsOwnScope(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncidentRepository(db)

	rows := sqlmock.NewRows(incidentTestColumns)
	addIncidentRow(rows, "i1", "Pending", false)
	addIncidentRow(rows, "i2", "Resolved", true)

	mock.ExpectQuery(regexp.QuoteMeta("(i.reporter_id = $1 OR i.is_anonymous = TRUE)")).
		WithArgs("u1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM incidents i")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	incidents, total, err := repo.List(context.Background(), models.IncidentScope{ReporterOrAnonymous: "u1"}, models.IncidentFilter{})
	require.NoError(t, err)
	assert.Len(t, incidents, 2)
	assert.Equal(t, 2, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListIncidentsEmptyScope(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncidentRepository(db)

	incidents, total, err := repo.List(context.Background(), models.IncidentScope{}, models.IncidentFilter{})
	require.NoError(t, err)
	assert.Empty(t, incidents)
	assert.Zero(t, total)
}

func TestUpdateStatusSingleStatement(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncidentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET status = $2, history = history || $3::jsonb")).
		WithArgs("i1", models.StatusInReview, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := models.HistoryEntry{Status: models.StatusInReview, ChangedBy: "staff-1", Note: "Taking a look", ChangedAt: time.Now()}
	err := repo.UpdateStatus(context.Background(), "i1", models.StatusInReview, entry)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusMissingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncidentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET status = $2, history = history || $3::jsonb")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", models.StatusResolved, models.HistoryEntry{})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignSingleStatement(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncidentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET assigned_to = $2, history = history || $3::jsonb")).
		WithArgs("i1", "staff-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := models.HistoryEntry{Status: models.StatusPending, ChangedBy: "admin-1", Note: "Incident assigned to Jo", ChangedAt: time.Now()}
	err := repo.Assign(context.Background(), "i1", "staff-1", entry)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDetailsGuardsPendingStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncidentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = $10")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	incident := &models.Incident{ID: "i1", Title: "Edited", Description: "Edited", Category: pq.StringArray{"IT"}, Priority: models.PriorityHigh}
	err := repo.UpdateDetails(context.Background(), incident, models.HistoryEntry{})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncidentCounts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncidentRepository(db)

	rows := sqlmock.NewRows([]string{"total", "unassigned", "anonymous", "pending", "in_review", "resolved", "low", "medium", "high", "critical"}).
		AddRow(10, 4, 2, 5, 3, 2, 1, 6, 2, 1)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	counts, err := repo.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, counts.Total)
	assert.Equal(t, 3, counts.InReview)
	assert.NoError(t, mock.ExpectationsWereMet())
}
