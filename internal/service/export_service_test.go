package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-platform/incident-api/internal/dto"
	"github.com/sentra-platform/incident-api/internal/models"
	appErrors "github.com/sentra-platform/incident-api/pkg/errors"
	"github.com/sentra-platform/incident-api/pkg/jobs"
	"github.com/sentra-platform/incident-api/pkg/storage"
)

type mockExportLister struct {
	incidents []models.Incident
}

func (m *mockExportLister) ListForExport(ctx context.Context, filter models.IncidentFilter) ([]models.Incident, error) {
	return m.incidents, nil
}

func newExportService(t *testing.T, lister *mockExportLister) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportService(lister, store, signer, nil, nil, ExportServiceConfig{WorkerConcurrency: 1, WorkerRetries: 1}, nil)
}

func TestExportCreateJobAdminOnly(t *testing.T) {
	svc := newExportService(t, &mockExportLister{})

	_, err := svc.CreateJob(context.Background(), Principal{ID: "staff-1", Role: models.RoleStaff}, dto.ExportRequest{Format: "csv"})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestExportCreateJobRejectsUnknownFormat(t *testing.T) {
	svc := newExportService(t, &mockExportLister{})

	_, err := svc.CreateJob(context.Background(), Principal{ID: "admin-1", Role: models.RoleAdmin}, dto.ExportRequest{Format: "xlsx"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestExportCreateJobQueues(t *testing.T) {
	svc := newExportService(t, &mockExportLister{})
	svc.Start(context.Background())
	defer svc.Stop()

	job, err := svc.CreateJob(context.Background(), Principal{ID: "admin-1", Role: models.RoleAdmin}, dto.ExportRequest{Format: "pdf"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.ExportFormatPDF, job.Format)
}

func TestExportProcessRendersCSVAndSignsDownload(t *testing.T) {
	incident := *pendingIncident("student-1")
	incident.CreatedAt = time.Now()
	svc := newExportService(t, &mockExportLister{incidents: []models.Incident{incident}})

	job := &models.ExportJob{ID: "job-1", Format: models.ExportFormatCSV, Status: models.ExportStatusQueued, CreatedBy: "admin-1", CreatedAt: time.Now()}
	svc.store.Put(job)

	err := svc.process(context.Background(), jobs.Job{ID: "job-1", Type: "incident-export"})
	require.NoError(t, err)

	finished := svc.store.Get("job-1")
	require.NotNil(t, finished)
	assert.Equal(t, models.ExportStatusFinished, finished.Status)
	require.NotNil(t, finished.DownloadURL)
	require.NotNil(t, finished.FinishedAt)

	token := strings.TrimPrefix(*finished.DownloadURL, "/api/exports/download/")
	download, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()

	assert.Equal(t, "text/csv", download.ContentType)
	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(body), "INC-20260101-ABC234")
	assert.Contains(t, string(body), "Broken projector")
}

func TestExportAnonymousReporterHidden(t *testing.T) {
	incident := *pendingIncident("")
	incident.ReporterName = strPtr("Leaked")
	incident.CreatedAt = time.Now()
	svc := newExportService(t, &mockExportLister{incidents: []models.Incident{incident}})

	job := &models.ExportJob{ID: "job-1", Format: models.ExportFormatCSV, Status: models.ExportStatusQueued, CreatedBy: "admin-1", CreatedAt: time.Now()}
	svc.store.Put(job)

	require.NoError(t, svc.process(context.Background(), jobs.Job{ID: "job-1"}))

	finished := svc.store.Get("job-1")
	token := strings.TrimPrefix(*finished.DownloadURL, "/api/exports/download/")
	download, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()

	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Anonymous")
	assert.NotContains(t, string(body), "Leaked")
}

func TestExportResolveDownloadRejectsBadToken(t *testing.T) {
	svc := newExportService(t, &mockExportLister{})

	_, err := svc.ResolveDownload(context.Background(), "not-a-token")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestExportStatusUnknownJob(t *testing.T) {
	svc := newExportService(t, &mockExportLister{})

	_, err := svc.GetStatus(context.Background(), Principal{ID: "admin-1", Role: models.RoleAdmin}, "ghost")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
