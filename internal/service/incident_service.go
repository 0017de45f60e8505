package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentra-platform/incident-api/internal/dto"
	"github.com/sentra-platform/incident-api/internal/models"
	"github.com/sentra-platform/incident-api/internal/repository"
	appErrors "github.com/sentra-platform/incident-api/pkg/errors"
)

type incidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	FindByID(ctx context.Context, id string) (*models.Incident, error)
	List(ctx context.Context, scope models.IncidentScope, filter models.IncidentFilter) ([]models.Incident, int, error)
	UpdateStatus(ctx context.Context, id string, status models.IncidentStatus, entry models.HistoryEntry) error
	Assign(ctx context.Context, id, assigneeID string, entry models.HistoryEntry) error
	UpdateDetails(ctx context.Context, incident *models.Incident, entry models.HistoryEntry) error
	AddAttachment(ctx context.Context, id string, attachment models.Attachment) error
	RemoveAttachment(ctx context.Context, id, attachmentID string) error
}

type incidentUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// IncidentService orchestrates the incident lifecycle: it gates every call
// through the authorization policy, applies mutations through the repository's
// atomic row updates, and projects reads through the visibility policy.
type IncidentService struct {
	repo       incidentRepository
	users      incidentUserReader
	authz      *AuthorizationPolicy
	visibility *VisibilityPolicy
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewIncidentService constructs the service with its injected policies.
func NewIncidentService(repo incidentRepository, users incidentUserReader, authz *AuthorizationPolicy, visibility *VisibilityPolicy, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *IncidentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if authz == nil {
		authz = NewAuthorizationPolicy()
	}
	if visibility == nil {
		visibility = NewVisibilityPolicy()
	}
	return &IncidentService{
		repo:       repo,
		users:      users,
		authz:      authz,
		visibility: visibility,
		cache:      cache,
		validator:  validate,
		logger:     logger,
	}
}

const statsCacheKey = "stats:incidents"

// Create registers a new incident with its initial history entry. When the
// caller requests anonymity the reporter reference stays absent permanently,
// but the creator is still recorded as the author of the first history entry.
func (s *IncidentService) Create(ctx context.Context, actor Principal, req dto.CreateIncidentRequest) (*dto.CreateIncidentResponse, error) {
	if !s.authz.CanCreate(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to report incidents")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid incident payload")
	}

	incidentType := models.IncidentType(req.Type)
	if !incidentType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown incident type %q", req.Type))
	}
	priority := models.PriorityMedium
	if req.Priority != "" {
		priority = models.IncidentPriority(req.Priority)
		if !priority.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown priority %q", req.Priority))
		}
	}

	now := time.Now().UTC()
	attachments := make(models.Attachments, 0, len(req.Attachments))
	for _, in := range req.Attachments {
		attachments = append(attachments, models.Attachment{
			ID:         uuid.NewString(),
			FileName:   in.FileName,
			FilePath:   in.FilePath,
			FileURL:    in.FileURL,
			FileSize:   in.FileSize,
			FileType:   in.FileType,
			Comment:    in.Comment,
			UploadedAt: now,
		})
	}

	note := "Incident created"
	if len(attachments) > 0 {
		note = fmt.Sprintf("Incident created with %d attachment(s)", len(attachments))
	}

	incident := &models.Incident{
		ID:           uuid.NewString(),
		ReferenceID:  generateReferenceID(now),
		Title:        req.Title,
		Description:  req.Description,
		Type:         incidentType,
		Category:     []string(req.Category),
		Location:     req.Location,
		IncidentDate: req.IncidentDate,
		IsAnonymous:  req.IsAnonymous,
		Status:       models.StatusPending,
		Priority:     priority,
		Attachments:  attachments,
		History: models.History{{
			Status:    models.StatusPending,
			ChangedBy: actor.ID,
			Note:      note,
			ChangedAt: now,
		}},
	}
	if !req.IsAnonymous {
		reporterID := actor.ID
		incident.ReporterID = &reporterID
	}

	if err := s.repo.Create(ctx, incident); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "reference id collision, retry the request")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create incident")
	}

	s.invalidateStats(ctx)
	return &dto.CreateIncidentResponse{ID: incident.ID, ReferenceID: incident.ReferenceID}, nil
}

// ListMine returns the caller's own incidents plus anonymous ones.
func (s *IncidentService) ListMine(ctx context.Context, actor Principal, page, pageSize int) ([]models.Incident, *models.Pagination, error) {
	if !s.authz.CanListOwn(actor) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "listing own incidents requires a student or staff role")
	}
	return s.list(ctx, s.visibility.ScopeOwn(actor), models.IncidentFilter{Page: page, PageSize: pageSize})
}

// ListAll returns every incident, admin only, with optional filters.
func (s *IncidentService) ListAll(ctx context.Context, actor Principal, query dto.IncidentListQuery) ([]models.Incident, *models.Pagination, error) {
	if !s.authz.CanListAll(actor) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "listing all incidents requires an admin role")
	}
	filter, err := filterFromQuery(query)
	if err != nil {
		return nil, nil, err
	}
	return s.list(ctx, s.visibility.ScopeAll(), *filter)
}

// ListAssigned returns the incidents assigned to the calling staff member.
func (s *IncidentService) ListAssigned(ctx context.Context, actor Principal, page, pageSize int) ([]models.Incident, *models.Pagination, error) {
	if !s.authz.CanListAssigned(actor) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "listing assigned incidents requires a staff role")
	}
	return s.list(ctx, s.visibility.ScopeAssigned(actor), models.IncidentFilter{Page: page, PageSize: pageSize})
}

// Get returns a single incident with its full history, subject to the view
// authorization rules.
func (s *IncidentService) Get(ctx context.Context, actor Principal, id string) (*models.Incident, error) {
	incident, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanView(actor, incident) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not authorized to view this incident")
	}
	incident.Redact()
	return incident, nil
}

// GetHistory returns the ordered audit trail, gated like Get.
func (s *IncidentService) GetHistory(ctx context.Context, actor Principal, id string) (models.History, error) {
	incident, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return incident.History, nil
}

// UpdateStatus applies a validated status transition and its audit entry as
// one atomic write. Backward transitions require an explanatory note.
func (s *IncidentService) UpdateStatus(ctx context.Context, actor Principal, id string, req dto.UpdateStatusRequest) (*models.Incident, error) {
	if !s.authz.CanUpdateStatus(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "updating status requires a staff or admin role")
	}
	newStatus := models.IncidentStatus(req.Status)
	if !newStatus.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", req.Status))
	}

	incident, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	note := strings.TrimSpace(req.Note)
	if models.IsBackwardTransition(incident.Status, newStatus) && note == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("reverting %s to %s requires a note", incident.Status, newStatus))
	}
	if note == "" {
		note = "Status updated"
	}

	entry := models.HistoryEntry{
		Status:    newStatus,
		ChangedBy: actor.ID,
		Note:      note,
		ChangedAt: time.Now().UTC(),
	}
	if err := s.repo.UpdateStatus(ctx, id, newStatus, entry); err != nil {
		return nil, s.mutationError(err, "failed to update status")
	}

	s.invalidateStats(ctx)
	return s.reload(ctx, actor, id)
}

// Assign binds the incident to a staff member and records the change. The
// assignee must resolve to an existing user with the staff role; assignment
// never touches the status field.
func (s *IncidentService) Assign(ctx context.Context, actor Principal, id string, req dto.AssignIncidentRequest) (*models.Incident, error) {
	if !s.authz.CanAssign(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "assigning incidents requires an admin role")
	}
	if req.AssignedTo == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assigned_to is required")
	}

	assignee, err := s.users.FindByID(ctx, req.AssignedTo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "assignee does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve assignee")
	}
	if assignee.Role != models.RoleStaff {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignee must have the staff role")
	}

	incident, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	entry := models.HistoryEntry{
		Status:    incident.Status,
		ChangedBy: actor.ID,
		Note:      fmt.Sprintf("Incident assigned to %s", assignee.Name),
		ChangedAt: time.Now().UTC(),
	}
	if err := s.repo.Assign(ctx, id, assignee.ID, entry); err != nil {
		return nil, s.mutationError(err, "failed to assign incident")
	}

	s.invalidateStats(ctx)
	return s.reload(ctx, actor, id)
}

// EditDetails lets the reporter amend a pending incident. The field diff is
// summarized in a single history entry; no entry is written when nothing
// actually changed.
func (s *IncidentService) EditDetails(ctx context.Context, actor Principal, id string, req dto.EditIncidentRequest) (*dto.EditIncidentResponse, error) {
	incident, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanEdit(actor, incident) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the reporter can edit a pending incident")
	}

	changes := applyEdits(incident, req)
	if err := validateEdited(incident); err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		incident.Redact()
		return &dto.EditIncidentResponse{Incident: incident, Changes: nil}, nil
	}

	entry := models.HistoryEntry{
		Status:    incident.Status,
		ChangedBy: actor.ID,
		Note:      "Incident updated: " + strings.Join(changes, ", "),
		ChangedAt: time.Now().UTC(),
	}
	if err := s.repo.UpdateDetails(ctx, incident, entry); err != nil {
		return nil, s.mutationError(err, "failed to edit incident")
	}

	s.invalidateStats(ctx)
	updated, err := s.reload(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return &dto.EditIncidentResponse{Incident: updated, Changes: changes}, nil
}

// AddAttachment appends attachment metadata under the same edit rules as
// detail changes: reporter only, while pending.
func (s *IncidentService) AddAttachment(ctx context.Context, actor Principal, id string, in dto.AttachmentInput) (*models.Incident, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attachment payload")
	}
	incident, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanEdit(actor, incident) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the reporter can attach files to a pending incident")
	}

	attachment := models.Attachment{
		ID:         uuid.NewString(),
		FileName:   in.FileName,
		FilePath:   in.FilePath,
		FileURL:    in.FileURL,
		FileSize:   in.FileSize,
		FileType:   in.FileType,
		Comment:    in.Comment,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.repo.AddAttachment(ctx, id, attachment); err != nil {
		return nil, s.mutationError(err, "failed to add attachment")
	}
	return s.reload(ctx, actor, id)
}

// RemoveAttachment drops one attachment's metadata. Admins may always remove;
// the reporter may remove while the incident is pending.
func (s *IncidentService) RemoveAttachment(ctx context.Context, actor Principal, id, attachmentID string) (*models.Incident, error) {
	incident, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && !s.authz.CanEdit(actor, incident) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to remove this attachment")
	}

	found := false
	for _, a := range incident.Attachments {
		if a.ID == attachmentID {
			found = true
			break
		}
	}
	if !found {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
	}

	if err := s.repo.RemoveAttachment(ctx, id, attachmentID); err != nil {
		return nil, s.mutationError(err, "failed to remove attachment")
	}
	return s.reload(ctx, actor, id)
}

func (s *IncidentService) list(ctx context.Context, scope models.IncidentScope, filter models.IncidentFilter) ([]models.Incident, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	incidents, total, err := s.repo.List(ctx, scope, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list incidents")
	}
	for i := range incidents {
		incidents[i].Redact()
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return incidents, pagination, nil
}

func (s *IncidentService) load(ctx context.Context, id string) (*models.Incident, error) {
	incident, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "incident not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load incident")
	}
	return incident, nil
}

func (s *IncidentService) reload(ctx context.Context, actor Principal, id string) (*models.Incident, error) {
	incident, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	incident.Redact()
	return incident, nil
}

// mutationError maps a zero-rows-affected update to not-found: the record
// vanished between the read and the write.
func (s *IncidentService) mutationError(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "incident no longer exists")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
}

func (s *IncidentService) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statsCacheKey); err != nil {
		s.logger.Warn("failed to invalidate stats cache", zap.Error(err))
	}
}

func filterFromQuery(query dto.IncidentListQuery) (*models.IncidentFilter, error) {
	filter := models.IncidentFilter{
		Category: strings.TrimSpace(query.Category),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if query.Status != "" {
		status := models.IncidentStatus(query.Status)
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status filter %q", query.Status))
		}
		filter.Status = &status
	}
	if query.Priority != "" {
		priority := models.IncidentPriority(query.Priority)
		if !priority.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown priority filter %q", query.Priority))
		}
		filter.Priority = &priority
	}
	return &filter, nil
}

// applyEdits mutates the incident in place and returns human-readable change
// descriptions, one per actually-changed field.
func applyEdits(incident *models.Incident, req dto.EditIncidentRequest) []string {
	var changes []string

	if req.Title != nil && *req.Title != incident.Title {
		changes = append(changes, fmt.Sprintf("Title changed from %q to %q", incident.Title, *req.Title))
		incident.Title = *req.Title
	}
	if req.Description != nil && *req.Description != incident.Description {
		changes = append(changes, "Description updated")
		incident.Description = *req.Description
	}
	if req.Category != nil && !sameStringSet(incident.Category, req.Category) {
		changes = append(changes, fmt.Sprintf("Category changed from %q to %q",
			strings.Join(incident.Category, ", "), strings.Join(req.Category, ", ")))
		incident.Category = []string(req.Category)
	}
	if req.Location != nil {
		old := ""
		if incident.Location != nil {
			old = *incident.Location
		}
		if *req.Location != old {
			switch {
			case old == "":
				changes = append(changes, fmt.Sprintf("Location set to %q", *req.Location))
			case *req.Location == "":
				changes = append(changes, fmt.Sprintf("Location removed (was %q)", old))
			default:
				changes = append(changes, fmt.Sprintf("Location changed from %q to %q", old, *req.Location))
			}
			if *req.Location == "" {
				incident.Location = nil
			} else {
				incident.Location = req.Location
			}
		}
	}
	if req.IncidentDate != nil {
		if incident.IncidentDate == nil || !incident.IncidentDate.Equal(*req.IncidentDate) {
			changes = append(changes, "Incident date updated")
			incident.IncidentDate = req.IncidentDate
		}
	}
	if req.Priority != nil && models.IncidentPriority(*req.Priority) != incident.Priority {
		changes = append(changes, fmt.Sprintf("Priority changed from %s to %s", incident.Priority, *req.Priority))
		incident.Priority = models.IncidentPriority(*req.Priority)
	}

	return changes
}

// validateEdited re-checks invariants the edit may have touched.
func validateEdited(incident *models.Incident) error {
	if strings.TrimSpace(incident.Title) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "title must not be empty")
	}
	if strings.TrimSpace(incident.Description) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "description must not be empty")
	}
	if len(incident.Category) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "category must not be empty")
	}
	if !incident.Priority.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown priority %q", incident.Priority))
	}
	return nil
}

func sameStringSet(a []string, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		if seen[v] == 0 {
			return false
		}
		seen[v]--
	}
	return true
}

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateReferenceID builds the human-facing identifier, e.g.
// INC-20250114-7GK2QD. Uniqueness is enforced by the database constraint.
func generateReferenceID(now time.Time) string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = referenceAlphabet[int(b)%len(referenceAlphabet)]
	}
	return fmt.Sprintf("INC-%s-%s", now.Format("20060102"), string(buf))
}
