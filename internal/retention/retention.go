// Package retention bounds storage growth by age-based bulk pruning. The
// subsystem exposes only the operation; scheduling belongs to an external
// cron-equivalent (or the optional in-process ticker wired in main).
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opencampus/trail/internal/domain"
)

// DefaultDaysToKeep is the retention window when none is configured.
const DefaultDaysToKeep = 365

// EventSink records the outcome of a pass into the trail itself. The write is
// synchronous so the pass entry is durable before Run returns to the
// scheduler. *capture.Recorder satisfies this.
type EventSink interface {
	RecordSync(ctx context.Context, e *domain.AuditEvent) (uuid.UUID, error)
}

type Service struct {
	repo  domain.EventRepository
	audit EventSink // nil disables the self-audit entry

	now func() time.Time
}

func NewService(repo domain.EventRepository, audit EventSink) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// SetClock overrides the cutoff time source. Test hook only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Run deletes events strictly older than now minus daysToKeep. Idempotent and
// safe under concurrent writes: an event inserted during the pass carries a
// fresh timestamp and can never be a candidate for that pass.
func (s *Service) Run(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep <= 0 {
		daysToKeep = DefaultDaysToKeep
	}
	cutoff := s.now().AddDate(0, 0, -daysToKeep)

	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention.Service.Run: %w", err)
	}

	log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("retention pass complete")

	if s.audit != nil {
		e := &domain.AuditEvent{
			ActorType: domain.ActorSystem,
			ActorName: "System",
			Category:  domain.CategorySystem,
			Action:    "retention_completed",
			Details:   fmt.Sprintf("Deleted %d audit events older than %d days", deleted, daysToKeep),
			Status:    domain.StatusSuccess,
			Metadata:  domain.Metadata{"deleted": deleted, "daysToKeep": daysToKeep},
		}
		if _, auditErr := s.audit.RecordSync(ctx, e); auditErr != nil {
			log.Warn().Err(auditErr).Msg("retention pass not recorded in trail")
		}
	}

	return deleted, nil
}

// RunEvery drives Run on a fixed interval until ctx is cancelled. Convenience
// for deployments without an external scheduler.
func (s *Service) RunEvery(ctx context.Context, interval time.Duration, daysToKeep int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx, daysToKeep); err != nil {
				log.Error().Err(err).Msg("retention pass failed")
			}
		}
	}
}
