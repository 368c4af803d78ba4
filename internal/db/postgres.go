package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"trip-tracker/internal/store"
)

// Querier is the subset of *pgxpool.Pool the record table uses; pgxmock
// pools satisfy it too.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return pool.Ping(ctx)
}

// RecordTable stores key/payload pairs in a single Postgres table.
type RecordTable struct {
	q     Querier
	table string
}

func NewRecordTable(q Querier, table string) *RecordTable {
	if table == "" {
		table = "active_trip_records"
	}
	return &RecordTable{q: q, table: pgx.Identifier{table}.Sanitize()}
}

func (t *RecordTable) EnsureSchema(ctx context.Context) error {
	_, err := t.q.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+t.table+` (
  key      TEXT PRIMARY KEY,
  payload  JSONB NOT NULL,
  saved_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	if err != nil {
		return fmt.Errorf("create %s: %w", t.table, err)
	}
	return nil
}

func (t *RecordTable) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := t.q.QueryRow(ctx, `SELECT payload FROM `+t.table+` WHERE key = $1`, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select record: %w", err)
	}
	return payload, nil
}

func (t *RecordTable) Set(ctx context.Context, key string, value []byte) error {
	_, err := t.q.Exec(ctx, `INSERT INTO `+t.table+` (key, payload, saved_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, saved_at = EXCLUDED.saved_at`, key, value)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (t *RecordTable) Delete(ctx context.Context, key string) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM `+t.table+` WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}
