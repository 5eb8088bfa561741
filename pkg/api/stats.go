package api

import (
	"context"
	"database/sql"
	"time"

	"github.com/bubbleup/bubbleup/pkg/observability"
	"github.com/bubbleup/bubbleup/pkg/rbac"
	"github.com/bubbleup/bubbleup/pkg/stories"
)

// StatsSampler refreshes the gauge metrics that describe current state
// rather than events: connection pool usage and domain row counts.
type StatsSampler struct {
	db         *sql.DB
	roleStore  *rbac.Store
	storyStore *stories.Store
	metrics    *observability.Metrics
	logger     *observability.Logger
}

// NewStatsSampler creates a sampler over the given database.
func NewStatsSampler(db *sql.DB, metrics *observability.Metrics, logger *observability.Logger) *StatsSampler {
	return &StatsSampler{
		db:         db,
		roleStore:  rbac.NewStore(db),
		storyStore: stories.NewStore(db),
		metrics:    metrics,
		logger:     logger,
	}
}

// SampleOnce takes one reading of every gauge. Count failures are logged
// and skipped; a degraded database shows up through the health checker,
// not through stale gauges aborting the sampler.
func (s *StatsSampler) SampleOnce(ctx context.Context) {
	s.metrics.ObserveDBStats(s.db.Stats())

	if count, err := s.storyStore.CountStories(ctx); err != nil {
		s.logger.WithError(err).Warn("failed to count stories for metrics")
	} else {
		s.metrics.StoriesTotal.Set(float64(count))
	}

	if count, err := s.roleStore.CountAssignments(ctx); err != nil {
		s.logger.WithError(err).Warn("failed to count role assignments for metrics")
	} else {
		s.metrics.RoleAssignmentsTotal.Set(float64(count))
	}
}

// Run samples on the given interval until the context is cancelled.
func (s *StatsSampler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.SampleOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SampleOnce(ctx)
		}
	}
}
