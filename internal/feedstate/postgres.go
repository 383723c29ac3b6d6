// Package feedstate persists per-feed build dates, harvest times and
// processed item ids so RSS harvesting can skip stale feeds and seen
// items.
package feedstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryExecCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// PostgresStore is a Postgres-backed harvester.FeedStateStore using the
// rss_feeds and rss_items tables.
type PostgresStore struct {
	pool    queryExecCloser
	builder sq.StatementBuilderType
}

// NewPostgresStore connects a feed state store to the database at dsn.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgresStoreWithPool(pool)
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool queryExecCloser) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStore{
		pool:    pool,
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

// FeedState returns the stored build date and last harvest time for
// feedURL. The third result is false when the feed was never seen.
func (s *PostgresStore) FeedState(ctx context.Context, feedURL string) (time.Time, time.Time, bool, error) {
	query, args, err := s.builder.
		Select("last_build_date", "last_harvested_at").
		From("rss_feeds").
		Where(sq.Eq{"feed_url": feedURL}).
		ToSql()
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("build feed query: %w", err)
	}

	var lastBuild, lastHarvest time.Time
	err = s.pool.QueryRow(ctx, query, args...).Scan(&lastBuild, &lastHarvest)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("query feed state: %w", err)
	}
	return lastBuild, lastHarvest, true, nil
}

// UpsertFeed stores the feed's build date and harvest time, inserting
// the row on first contact.
func (s *PostgresStore) UpsertFeed(ctx context.Context, feedURL string, lastBuild, harvestedAt time.Time) error {
	query, args, err := s.builder.
		Insert("rss_feeds").
		Columns("feed_url", "last_build_date", "last_harvested_at").
		Values(feedURL, lastBuild, harvestedAt).
		Suffix(`ON CONFLICT (feed_url) DO UPDATE SET
			last_build_date = EXCLUDED.last_build_date,
			last_harvested_at = EXCLUDED.last_harvested_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build feed upsert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert feed state: %w", err)
	}
	return nil
}

// ItemProcessed reports whether an item of a feed was handled before.
func (s *PostgresStore) ItemProcessed(ctx context.Context, feedURL, itemID string) (bool, error) {
	query, args, err := s.builder.
		Select("1").
		From("rss_items").
		Where(sq.Eq{"feed_url": feedURL, "item_id": itemID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build item query: %w", err)
	}

	var one int
	err = s.pool.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query item state: %w", err)
	}
	return true, nil
}

// MarkItemProcessed records that an item of a feed was handled.
func (s *PostgresStore) MarkItemProcessed(ctx context.Context, feedURL, itemID string) error {
	query, args, err := s.builder.
		Insert("rss_items").
		Columns("feed_url", "item_id", "processed_at").
		Values(feedURL, itemID, time.Now().UTC()).
		Suffix("ON CONFLICT (feed_url, item_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build item insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert item state: %w", err)
	}
	return nil
}
