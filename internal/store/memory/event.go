// Package memory provides an in-memory EventRepository. It backs unit tests
// and the single-binary self-hosted mode where PostgreSQL is not available.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opencampus/trail/internal/domain"
)

type storedEvent struct {
	event *domain.AuditEvent
	seq   uint64 // insertion order, tie-break for identical timestamps
}

type EventRepo struct {
	mu     sync.RWMutex
	events []storedEvent
	seq    uint64

	// now is swappable so retention boundary tests can control time.
	now func() time.Time
}

func NewEventRepo() *EventRepo {
	return &EventRepo{now: time.Now}
}

// SetClock overrides the timestamp source. Test hook only.
func (r *EventRepo) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Append stores a copy of the event with a fresh UUIDv7 ID and the
// server-assigned timestamp. The caller's timestamp is never trusted.
func (r *EventRepo) Append(_ context.Context, e *domain.AuditEvent) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *e
	stored.ID = id
	stored.Timestamp = r.now()

	r.seq++
	r.events = append(r.events, storedEvent{event: &stored, seq: r.seq})

	e.ID = stored.ID
	e.Timestamp = stored.Timestamp

	return id, nil
}

func (r *EventRepo) Search(_ context.Context, f domain.Filter, limit, offset int) ([]*domain.AuditEvent, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.filtered(f)

	sort.Slice(matched, func(i, j int) bool {
		ti, tj := matched[i].event.Timestamp, matched[j].event.Timestamp
		if ti.Equal(tj) {
			return matched[i].seq > matched[j].seq
		}
		return ti.After(tj)
	})

	total := len(matched)
	if offset >= total {
		return []*domain.AuditEvent{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}

	page := make([]*domain.AuditEvent, 0, end-offset)
	for _, se := range matched[offset:end] {
		ev := *se.event
		page = append(page, &ev)
	}
	return page, total, nil
}

func (r *EventRepo) Stats(_ context.Context, f domain.Filter) (*domain.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &domain.Stats{}
	categories := map[string]struct{}{}
	userTypes := map[string]struct{}{}

	for _, se := range r.filtered(f) {
		stats.TotalLogs++
		switch se.event.Status {
		case domain.StatusSuccess:
			stats.SuccessCount++
		case domain.StatusFailure:
			stats.FailureCount++
		case domain.StatusWarning:
			stats.WarningCount++
		}
		categories[string(se.event.Category)] = struct{}{}
		userTypes[string(se.event.ActorType)] = struct{}{}
	}

	stats.Categories = sortedKeys(categories)
	stats.UserTypes = sortedKeys(userTypes)
	return stats, nil
}

func (r *EventRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.events[:0]
	var deleted int64
	for _, se := range r.events {
		if se.event.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, se)
	}
	r.events = kept
	return deleted, nil
}

// filtered returns matching entries without copying events. Callers hold the lock.
func (r *EventRepo) filtered(f domain.Filter) []storedEvent {
	var out []storedEvent
	for _, se := range r.events {
		if matches(se.event, f) {
			out = append(out, se)
		}
	}
	return out
}

func matches(e *domain.AuditEvent, f domain.Filter) bool {
	if f.ActorID != nil && (e.ActorID == nil || *e.ActorID != *f.ActorID) {
		return false
	}
	if f.ActorType != "" && e.ActorType != f.ActorType {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.ResourceType != nil && (e.ResourceType == nil || *e.ResourceType != *f.ResourceType) {
		return false
	}
	if f.ResourceID != nil && (e.ResourceID == nil || *e.ResourceID != *f.ResourceID) {
		return false
	}
	if f.Start != nil && e.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && e.Timestamp.After(*f.End) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(e.Details), needle) &&
			!strings.Contains(strings.ToLower(e.ActorName), needle) &&
			!strings.Contains(strings.ToLower(e.Action), needle) {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
