package models

import (
	"sync"
	"time"
)

// ExportFormat enumerates supported export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// Valid reports whether the format is supported.
func (f ExportFormat) Valid() bool {
	return f == ExportFormatCSV || f == ExportFormatPDF
}

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob tracks one asynchronous incident report export.
type ExportJob struct {
	ID           string         `json:"id"`
	Format       ExportFormat   `json:"format"`
	Filter       IncidentFilter `json:"-"`
	Status       ExportStatus   `json:"status"`
	FilePath     string         `json:"-"`
	DownloadURL  *string        `json:"download_url,omitempty"`
	CreatedBy    string         `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
}

// ExportJobStore is an in-memory registry of export jobs. Jobs are ephemeral
// process state; the files they produce live on disk with their own TTL.
type ExportJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*ExportJob
}

// NewExportJobStore builds an empty store.
func NewExportJobStore() *ExportJobStore {
	return &ExportJobStore{jobs: make(map[string]*ExportJob)}
}

// Put inserts or replaces a job snapshot.
func (s *ExportJobStore) Put(job *ExportJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
}

// Get returns a copy of the job, or nil when unknown.
func (s *ExportJobStore) Get(id string) *ExportJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}
