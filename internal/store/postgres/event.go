package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opencampus/trail/internal/domain"
)

const eventColumns = `id, actor_id, actor_type, actor_name, actor_email, action, category,
	resource_type, resource_id, resource_name, details, status, ts, metadata`

type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Append writes a single validated event. The ID (UUIDv7, time-ordered) is
// assigned here and the timestamp is assigned by the database, so callers can
// never forge ordering. There is no update path for this table.
func (r *EventRepo) Append(ctx context.Context, e *domain.AuditEvent) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("eventRepo.Append: new id: %w", err)
	}

	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("eventRepo.Append: marshal metadata: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO audit_events (id, actor_id, actor_type, actor_name, actor_email, action, category,
			resource_type, resource_id, resource_name, details, status, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING ts`,
		id, e.ActorID, e.ActorType, e.ActorName, e.ActorEmail, e.Action, e.Category,
		e.ResourceType, e.ResourceID, e.ResourceName, e.Details, e.Status, metadata,
	)
	if err := row.Scan(&e.Timestamp); err != nil {
		return uuid.Nil, fmt.Errorf("eventRepo.Append: %w: %w", domain.ErrStorageUnavailable, err)
	}

	e.ID = id
	return id, nil
}

// Search returns one page ordered by (ts DESC, id DESC) plus the total count
// of the filtered set. UUIDv7 IDs sort by insertion order, which gives the
// stable tie-break for events written within the same timestamp resolution.
func (r *EventRepo) Search(ctx context.Context, f domain.Filter, limit, offset int) ([]*domain.AuditEvent, int, error) {
	where, args := buildWhere(f)

	var total int
	err := r.pool.QueryRow(ctx, "SELECT count(*) FROM audit_events"+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("eventRepo.Search: count: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM audit_events%s ORDER BY ts DESC, id DESC LIMIT $%d OFFSET $%d",
		eventColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("eventRepo.Search: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows, "eventRepo.Search")
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// Stats aggregates over the full filtered set, not a page.
func (r *EventRepo) Stats(ctx context.Context, f domain.Filter) (*domain.Stats, error) {
	where, args := buildWhere(f)

	query := `SELECT count(*),
		count(*) FILTER (WHERE status = 'success'),
		count(*) FILTER (WHERE status = 'failure'),
		count(*) FILTER (WHERE status = 'warning'),
		COALESCE(array_agg(DISTINCT category) FILTER (WHERE category IS NOT NULL), '{}'),
		COALESCE(array_agg(DISTINCT actor_type) FILTER (WHERE actor_type IS NOT NULL), '{}')
		FROM audit_events` + where

	stats := &domain.Stats{}
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&stats.TotalLogs, &stats.SuccessCount, &stats.FailureCount, &stats.WarningCount,
		&stats.Categories, &stats.UserTypes,
	)
	if err != nil {
		return nil, fmt.Errorf("eventRepo.Stats: %w", err)
	}
	return stats, nil
}

func (r *EventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_events WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("eventRepo.DeleteOlderThan: %w", err)
	}
	return tag.RowsAffected(), nil
}

// buildWhere assembles the WHERE clause from the optional filter fields.
func buildWhere(f domain.Filter) (string, []any) {
	var conditions []string
	var args []any

	add := func(condition string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if f.ActorID != nil {
		add("actor_id = $%d", *f.ActorID)
	}
	if f.ActorType != "" {
		add("actor_type = $%d", f.ActorType)
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.ResourceType != nil {
		add("resource_type = $%d", *f.ResourceType)
	}
	if f.ResourceID != nil {
		add("resource_id = $%d", *f.ResourceID)
	}
	if f.Start != nil {
		add("ts >= $%d", *f.Start)
	}
	if f.End != nil {
		add("ts <= $%d", *f.End)
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(details ILIKE $%d OR actor_name ILIKE $%d OR action ILIKE $%d)", n, n, n))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanEvents(rows pgx.Rows, caller string) ([]*domain.AuditEvent, error) {
	events := []*domain.AuditEvent{}
	for rows.Next() {
		var e domain.AuditEvent
		var metadata []byte

		if err := rows.Scan(
			&e.ID, &e.ActorID, &e.ActorType, &e.ActorName, &e.ActorEmail, &e.Action, &e.Category,
			&e.ResourceType, &e.ResourceID, &e.ResourceName, &e.Details, &e.Status, &e.Timestamp, &metadata,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("%s: unmarshal metadata: %w", caller, err)
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return events, nil
}
