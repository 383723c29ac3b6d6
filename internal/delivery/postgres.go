// Package delivery persists which records were already delivered so
// reruns do not redeliver unchanged content.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thefass/ub-tools/internal/harvester"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresStoreConfig controls the Postgres connection pool backing
// the delivery tracker.
type PostgresStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type queryExecCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// PostgresStore is a Postgres-backed harvester.DeliveryTracker.
type PostgresStore struct {
	pool    queryExecCloser
	table   string
	builder sq.StatementBuilderType
}

// NewPostgresStore creates a delivery tracker using the provided config.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgresStoreWithPool(pool, cfg.Table)
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool queryExecCloser, table string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "delivered_records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresStore{
		pool:    pool,
		table:   table,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// HasAlreadyDelivered looks up the latest delivery for (mode, url). The
// first result is true only when that delivery carries the same
// checksum and succeeded; an entry with a recorded error never
// suppresses a retry.
func (s *PostgresStore) HasAlreadyDelivered(ctx context.Context, mode harvester.DeliveryMode, url, checksum string) (bool, *harvester.DeliveryEntry, error) {
	query, args, err := s.builder.
		Select("id", "delivery_mode", "url", "journal_name", "checksum", "error_message", "delivered_at").
		From(s.table).
		Where(sq.Eq{"delivery_mode": string(mode), "url": url}).
		OrderBy("delivered_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return false, nil, fmt.Errorf("build delivery query: %w", err)
	}

	var entry harvester.DeliveryEntry
	var entryMode string
	err = s.pool.QueryRow(ctx, query, args...).Scan(
		&entry.ID,
		&entryMode,
		&entry.URL,
		&entry.JournalName,
		&entry.Checksum,
		&entry.ErrorMessage,
		&entry.DeliveredAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("query delivery: %w", err)
	}
	entry.Mode = harvester.DeliveryMode(entryMode)
	delivered := entry.Checksum == checksum && entry.ErrorMessage == ""
	return delivered, &entry, nil
}

// RecordDelivery upserts the delivery row for (mode, url), replacing
// any previous delivery of the same URL.
func (s *PostgresStore) RecordDelivery(ctx context.Context, entry harvester.DeliveryEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("delivery id is required")
	}
	query, args, err := s.builder.
		Insert(s.table).
		Columns("id", "delivery_mode", "url", "journal_name", "checksum", "error_message", "delivered_at").
		Values(entry.ID, string(entry.Mode), entry.URL, entry.JournalName, entry.Checksum, entry.ErrorMessage, entry.DeliveredAt).
		Suffix(`ON CONFLICT (delivery_mode, url) DO UPDATE SET
			id = EXCLUDED.id,
			journal_name = EXCLUDED.journal_name,
			checksum = EXCLUDED.checksum,
			error_message = EXCLUDED.error_message,
			delivered_at = EXCLUDED.delivered_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delivery insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}
