// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// l3.go: PostgreSQL persistence tier: one table per entry kind holding
// (id, timestamp_added, timestamp_changed, payload) rows; insert with
// server-assigned ids, update, upsert, bulk COPY, delete, and row queries,
// with optional read-replica routing via a secondary pgxpool.

// Package l3 provides the PostgreSQL persistence tier adapter.
package l3

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoRow is returned when the requested row does not exist.
var ErrNoRow = errors.New("l3: no row")

// Columns lists the entry table columns in scan order.
var Columns = []string{"id", "timestamp_added", "timestamp_changed", "payload"}

// Row is one stored entry with its payload in text form.
type Row struct {
	ID               int64
	TimestampAdded   int64
	TimestampChanged int64
	Payload          string
}

// Store is the L3 PostgreSQL adapter.
type Store struct {
	pool    *pgxpool.Pool
	replica *pgxpool.Pool
}

// New creates a Store from an existing pool and an optional read replica.
func New(pool *pgxpool.Pool, replica *pgxpool.Pool) *Store {
	return &Store{pool: pool, replica: replica}
}

func (s *Store) readPool() *pgxpool.Pool {
	if s.replica != nil {
		return s.replica
	}
	return s.pool
}

// Ident quotes a table name for interpolation into SQL.
func Ident(table string) string {
	return pgx.Identifier{table}.Sanitize()
}

// CreateTableSQL returns the DDL for an entry table.
func CreateTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
id                BIGSERIAL PRIMARY KEY,
timestamp_added   BIGINT NOT NULL,
timestamp_changed BIGINT NOT NULL,
payload           TEXT   NOT NULL
)`, Ident(table))
}

// Ping verifies the primary pool is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Insert stores a new row and returns the id the database assigned.
func (s *Store) Insert(ctx context.Context, table string, added, changed int64, payload string) (int64, error) {
	sql := fmt.Sprintf(
		"INSERT INTO %s (timestamp_added, timestamp_changed, payload) VALUES ($1, $2, $3) RETURNING id",
		Ident(table))
	var id int64
	if err := s.pool.QueryRow(ctx, sql, added, changed, payload).Scan(&id); err != nil {
		return 0, fmt.Errorf("l3 insert %s: %w", table, err)
	}
	return id, nil
}

// Update replaces the payload and change timestamp of row id. It returns
// ErrNoRow when the row does not exist.
func (s *Store) Update(ctx context.Context, table string, id, changed int64, payload string) error {
	sql := fmt.Sprintf("UPDATE %s SET timestamp_changed = $2, payload = $3 WHERE id = $1", Ident(table))
	tag, err := s.pool.Exec(ctx, sql, id, changed, payload)
	if err != nil {
		return fmt.Errorf("l3 update %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRow
	}
	return nil
}

// Upsert writes r as-is, keeping its id, and advances the table's id
// sequence past it.
func (s *Store) Upsert(ctx context.Context, table string, r Row) error {
	sql := fmt.Sprintf(`INSERT INTO %s (id, timestamp_added, timestamp_changed, payload)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
timestamp_added = EXCLUDED.timestamp_added,
timestamp_changed = EXCLUDED.timestamp_changed,
payload = EXCLUDED.payload`, Ident(table))
	if _, err := s.pool.Exec(ctx, sql, r.ID, r.TimestampAdded, r.TimestampChanged, r.Payload); err != nil {
		return fmt.Errorf("l3 upsert %s: %w", table, err)
	}
	return s.SyncSequence(ctx, table)
}

// CopyRows bulk-loads rows with COPY; ids must not already exist.
func (s *Store) CopyRows(ctx context.Context, table string, rows []Row) (int64, error) {
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{table}, Columns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.ID, r.TimestampAdded, r.TimestampChanged, r.Payload}, nil
		}))
	if err != nil {
		return 0, fmt.Errorf("l3 copy %s: %w", table, err)
	}
	return n, s.SyncSequence(ctx, table)
}

// SyncSequence moves the id sequence of table past its largest id.
func (s *Store) SyncSequence(ctx context.Context, table string) error {
	sql := fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence('%s', 'id'), (SELECT COALESCE(MAX(id), 0) + 1 FROM %s), false)",
		Ident(table), Ident(table))
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("l3 sync sequence %s: %w", table, err)
	}
	return nil
}

// Get reads row id, returning ErrNoRow when it does not exist.
func (s *Store) Get(ctx context.Context, table string, id int64) (Row, error) {
	sql := fmt.Sprintf("SELECT id, timestamp_added, timestamp_changed, payload FROM %s WHERE id = $1", Ident(table))
	var r Row
	err := s.readPool().QueryRow(ctx, sql, id).Scan(&r.ID, &r.TimestampAdded, &r.TimestampChanged, &r.Payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, ErrNoRow
		}
		return Row{}, fmt.Errorf("l3 get %s: %w", table, err)
	}
	return r, nil
}

// Query runs a SELECT returning the entry columns in Columns order.
func (s *Store) Query(ctx context.Context, sql string, args []any) ([]Row, error) {
	rows, err := s.readPool().Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("l3 query: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Row, error) {
		var r Row
		err := row.Scan(&r.ID, &r.TimestampAdded, &r.TimestampChanged, &r.Payload)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("l3 query: %w", err)
	}
	return out, nil
}

// Delete removes row id; deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, table string, id int64) error {
	sql := fmt.Sprintf("DELETE FROM %s WHERE id = $1", Ident(table))
	if _, err := s.pool.Exec(ctx, sql, id); err != nil {
		return fmt.Errorf("l3 delete %s: %w", table, err)
	}
	return nil
}

// Exists reports whether row id exists.
func (s *Store) Exists(ctx context.Context, table string, id int64) (bool, error) {
	sql := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", Ident(table))
	var ok bool
	if err := s.readPool().QueryRow(ctx, sql, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("l3 exists %s: %w", table, err)
	}
	return ok, nil
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.readPool().QueryRow(ctx, "SELECT COUNT(*) FROM "+Ident(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("l3 count %s: %w", table, err)
	}
	return n, nil
}

// Exec runs a statement on the primary.
func (s *Store) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := s.pool.Exec(ctx, sql, args...)
	return err
}

// BeginTx starts a transaction on the primary.
func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

// Close shuts down the pools.
func (s *Store) Close() {
	s.pool.Close()
	if s.replica != nil {
		s.replica.Close()
	}
}
