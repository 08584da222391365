package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool   *pgxpool.Pool
	events *EventRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:   pool,
		events: NewEventRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Events() *EventRepo { return s.events }

// EnsureSchema creates the audit_events table and its index set if they do
// not exist. One composite index per hot filter column plus timestamp, a pair
// index for resource lookups, and a prefix index over action for text search
// keep the filter dimensions interactive as the table grows.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS audit_events (
    id            UUID PRIMARY KEY,
    actor_id      TEXT,
    actor_type    TEXT NOT NULL,
    actor_name    TEXT NOT NULL DEFAULT '',
    actor_email   TEXT,
    action        TEXT NOT NULL,
    category      TEXT NOT NULL,
    resource_type TEXT,
    resource_id   TEXT,
    resource_name TEXT,
    details       TEXT NOT NULL,
    status        TEXT NOT NULL,
    ts            TIMESTAMPTZ NOT NULL DEFAULT now(),
    metadata      JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS audit_events_actor_ts_idx    ON audit_events (actor_id, ts DESC);
CREATE INDEX IF NOT EXISTS audit_events_category_ts_idx ON audit_events (category, ts DESC);
CREATE INDEX IF NOT EXISTS audit_events_status_ts_idx   ON audit_events (status, ts DESC);
CREATE INDEX IF NOT EXISTS audit_events_resource_ts_idx ON audit_events (resource_type, resource_id, ts DESC);
CREATE INDEX IF NOT EXISTS audit_events_action_idx      ON audit_events (action text_pattern_ops);
CREATE INDEX IF NOT EXISTS audit_events_ts_idx          ON audit_events (ts DESC, id DESC);
`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres.Store.EnsureSchema: %w", err)
	}
	return nil
}
