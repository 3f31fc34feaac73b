package exadb

import (
	"context"
	"fmt"
	"time"

	"github.com/AndrewDonelson/exadb/internal/l3"
	"github.com/jackc/pgx/v5"
)

const migrationTable = "_exadb_migrations"

// MigrationRecord describes one table creation recorded by Migrate.
type MigrationRecord struct {
	ID        int       `db:"id"`
	Table     string    `db:"table_name"`
	Step      string    `db:"step"`
	AppliedAt time.Time `db:"applied_at"`
}

// Migrate creates the storage table of every DbTable that does not exist
// yet. It is idempotent and a no-op without PostgreSQL.
func (s *Store) Migrate(ctx context.Context) error {
	if s.closed.Load() {
		return ErrUnavailable
	}
	if s.l3 == nil {
		return nil
	}
	if err := s.l3.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
id         SERIAL PRIMARY KEY,
table_name TEXT NOT NULL,
step       TEXT NOT NULL,
applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, migrationTable)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, t := range Tables() {
		if err := s.migrateTable(ctx, t); err != nil {
			return fmt.Errorf("migrate table %q: %w", t, err)
		}
	}
	return nil
}

func (s *Store) migrateTable(ctx context.Context, t DbTable) error {
	tx, err := s.l3.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1)`,
		t.String(),
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := tx.Exec(ctx, l3.CreateTableSQL(t.String())); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (table_name, step) VALUES ($1, $2)", migrationTable),
		t.String(), "create_table",
	); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Info("exadb: created table", "table", t.String())
	return nil
}

// MigrationStatus returns the recorded migrations in the order applied.
func (s *Store) MigrationStatus(ctx context.Context) ([]MigrationRecord, error) {
	if s.closed.Load() {
		return nil, ErrUnavailable
	}
	if s.l3 == nil {
		return nil, ErrL3Unavailable
	}
	tx, err := s.l3.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	rows, err := tx.Query(ctx,
		fmt.Sprintf("SELECT id, table_name, step, applied_at FROM %s ORDER BY id", migrationTable))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[MigrationRecord])
}
