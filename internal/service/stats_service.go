package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sentra-platform/incident-api/internal/dto"
	"github.com/sentra-platform/incident-api/internal/models"
	appErrors "github.com/sentra-platform/incident-api/pkg/errors"
)

type incidentCounter interface {
	Counts(ctx context.Context) (*models.IncidentCounts, error)
}

// StatsService computes the admin dashboard counters, caching the aggregate
// until the next incident mutation invalidates it.
type StatsService struct {
	repo     incidentCounter
	authz    *AuthorizationPolicy
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewStatsService constructs the service.
func NewStatsService(repo incidentCounter, authz *AuthorizationPolicy, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if authz == nil {
		authz = NewAuthorizationPolicy()
	}
	return &StatsService{repo: repo, authz: authz, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Overview returns the dashboard counters, admin only.
func (s *StatsService) Overview(ctx context.Context, actor Principal) (*dto.IncidentStats, error) {
	if !s.authz.CanListAll(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "incident statistics require an admin role")
	}

	var cached dto.IncidentStats
	if hit, err := s.cache.Get(ctx, statsCacheKey, &cached); err == nil && hit {
		return &cached, nil
	}

	counts, err := s.repo.Counts(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate incident stats")
	}

	stats := &dto.IncidentStats{
		Total:      counts.Total,
		Unassigned: counts.Unassigned,
		Anonymous:  counts.Anonymous,
		ByStatus: map[models.IncidentStatus]int{
			models.StatusPending:  counts.Pending,
			models.StatusInReview: counts.InReview,
			models.StatusResolved: counts.Resolved,
		},
		ByPriority: map[models.IncidentPriority]int{
			models.PriorityLow:      counts.Low,
			models.PriorityMedium:   counts.Medium,
			models.PriorityHigh:     counts.High,
			models.PriorityCritical: counts.Critical,
		},
		GeneratedAt: time.Now().UTC(),
	}

	if err := s.cache.Set(ctx, statsCacheKey, stats, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache incident stats", zap.Error(err))
	}

	return stats, nil
}
