package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentra-platform/incident-api/internal/dto"
	"github.com/sentra-platform/incident-api/internal/models"
	"github.com/sentra-platform/incident-api/pkg/export"
	appErrors "github.com/sentra-platform/incident-api/pkg/errors"
	"github.com/sentra-platform/incident-api/pkg/jobs"
	"github.com/sentra-platform/incident-api/pkg/storage"
)

type incidentExportLister interface {
	ListForExport(ctx context.Context, filter models.IncidentFilter) ([]models.Incident, error)
}

// ExportDownload bundles an open file handle with response metadata.
type ExportDownload struct {
	File        *os.File
	FileName    string
	ContentType string
}

// ExportService produces incident report files asynchronously: jobs go onto
// an in-memory queue, workers render CSV or PDF, and finished files become
// reachable through HMAC-signed download tokens.
type ExportService struct {
	incidents incidentExportLister
	store     *models.ExportJobStore
	queue     *jobs.Queue
	storage   *storage.LocalStorage
	signer    *storage.SignedURLSigner
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	authz     *AuthorizationPolicy
	metrics   *MetricsService
	logger    *zap.Logger
}

// ExportServiceConfig tunes worker behaviour.
type ExportServiceConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
}

// NewExportService constructs the service and its worker queue.
func NewExportService(incidents incidentExportLister, store *storage.LocalStorage, signer *storage.SignedURLSigner, authz *AuthorizationPolicy, metrics *MetricsService, cfg ExportServiceConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if authz == nil {
		authz = NewAuthorizationPolicy()
	}
	s := &ExportService{
		incidents: incidents,
		store:     models.NewExportJobStore(),
		storage:   store,
		signer:    signer,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		authz:     authz,
		metrics:   metrics,
		logger:    logger,
	}
	s.queue = jobs.NewQueue("incident-exports", s.process, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// CreateJob enqueues a new export, admin only.
func (s *ExportService) CreateJob(ctx context.Context, actor Principal, req dto.ExportRequest) (*models.ExportJob, error) {
	if !s.authz.CanListAll(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "exporting incidents requires an admin role")
	}
	format := models.ExportFormat(strings.ToLower(req.Format))
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown export format %q", req.Format))
	}
	filter, err := filterFromQuery(dto.IncidentListQuery{Status: req.Status, Priority: req.Priority, Category: req.Category})
	if err != nil {
		return nil, err
	}

	job := &models.ExportJob{
		ID:        uuid.NewString(),
		Format:    format,
		Filter:    *filter,
		Status:    models.ExportStatusQueued,
		CreatedBy: actor.ID,
		CreatedAt: time.Now().UTC(),
	}
	s.store.Put(job)

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "incident-export"}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export")
	}
	return job, nil
}

// GetStatus returns the job snapshot, admin only.
func (s *ExportService) GetStatus(ctx context.Context, actor Principal, id string) (*models.ExportJob, error) {
	if !s.authz.CanListAll(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "exporting incidents requires an admin role")
	}
	job := s.store.Get(id)
	if job == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	return job, nil
}

// ResolveDownload validates a signed token and opens the rendered file.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job := s.store.Get(jobID)
	if job == nil || job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not available")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file missing")
	}

	contentType := "text/csv"
	if job.Format == models.ExportFormatPDF {
		contentType = "application/pdf"
	}
	return &ExportDownload{
		File:        file,
		FileName:    path.Base(relPath),
		ContentType: contentType,
	}, nil
}

func (s *ExportService) process(ctx context.Context, qjob jobs.Job) error {
	job := s.store.Get(qjob.ID)
	if job == nil {
		return nil
	}

	job.Status = models.ExportStatusProcessing
	s.store.Put(job)

	if err := s.render(ctx, job); err != nil {
		msg := err.Error()
		job.Status = models.ExportStatusFailed
		job.ErrorMessage = &msg
		s.store.Put(job)
		s.metrics.RecordExportJob(string(job.Format), false)
		return err
	}

	now := time.Now().UTC()
	job.Status = models.ExportStatusFinished
	job.FinishedAt = &now
	job.ErrorMessage = nil
	s.store.Put(job)
	s.metrics.RecordExportJob(string(job.Format), true)
	return nil
}

func (s *ExportService) render(ctx context.Context, job *models.ExportJob) error {
	incidents, err := s.incidents.ListForExport(ctx, job.Filter)
	if err != nil {
		return fmt.Errorf("load incidents: %w", err)
	}

	dataset := buildIncidentDataset(incidents)

	var payload []byte
	switch job.Format {
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Incident Report")
	default:
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		return fmt.Errorf("render export: %w", err)
	}

	relPath := fmt.Sprintf("incidents/%s.%s", job.ID, job.Format)
	if _, err := s.storage.Save(relPath, payload); err != nil {
		return fmt.Errorf("store export: %w", err)
	}
	job.FilePath = relPath

	token, _, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return fmt.Errorf("sign download url: %w", err)
	}
	url := "/api/exports/download/" + token
	job.DownloadURL = &url
	return nil
}

func buildIncidentDataset(incidents []models.Incident) export.Dataset {
	headers := []string{"Reference", "Title", "Type", "Status", "Priority", "Category", "Reporter", "Assignee", "Created"}
	rows := make([]map[string]string, 0, len(incidents))
	for i := range incidents {
		incident := &incidents[i]
		incident.Redact()
		rows = append(rows, map[string]string{
			"Reference": incident.ReferenceID,
			"Title":     incident.Title,
			"Type":      string(incident.Type),
			"Status":    string(incident.Status),
			"Priority":  string(incident.Priority),
			"Category":  strings.Join(incident.Category, "; "),
			"Reporter":  reporterLabel(incident),
			"Assignee":  userLabel(incident.AssigneeName, incident.AssignedTo),
			"Created":   incident.CreatedAt.Format(time.RFC3339),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func reporterLabel(incident *models.Incident) string {
	if incident.IsAnonymous {
		return "Anonymous"
	}
	return userLabel(incident.ReporterName, incident.ReporterID)
}

func userLabel(name *string, id *string) string {
	switch {
	case name != nil:
		return *name
	case id != nil:
		return "unknown"
	default:
		return ""
	}
}
