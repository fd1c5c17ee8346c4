// Package sqlite persists the budget state as a single SQLite row.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pario-ai/quotaguard/pkg/models"
	"github.com/pario-ai/quotaguard/pkg/sqlitedb"
)

const createTable = `
CREATE TABLE IF NOT EXISTS budget_state (
	id             INTEGER PRIMARY KEY CHECK (id = 1),
	daily_limit    INTEGER NOT NULL,
	current_usage  INTEGER NOT NULL,
	reset_at       INTEGER NOT NULL,
	admin_override INTEGER NOT NULL DEFAULT 0,
	updated_at     INTEGER NOT NULL DEFAULT (CAST(strftime('%s','now') AS INTEGER))
);
`

// Store implements budget.Store on SQLite. Several processes may share the
// file; the last Save wins.
type Store struct {
	db *sql.DB
}

// New opens the store at dbPath and creates the table.
func New(dbPath string) (*Store, error) {
	db, err := sqlitedb.Open(dbPath, createTable)
	if err != nil {
		return nil, fmt.Errorf("open budget db: %w", err)
	}
	return &Store{db: db}, nil
}

// Load reads the budget row.
func (s *Store) Load(ctx context.Context) (models.BudgetState, bool, error) {
	var (
		st       models.BudgetState
		resetMs  int64
		override int
		updated  int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT daily_limit, current_usage, reset_at, admin_override, updated_at
		 FROM budget_state WHERE id = 1`,
	).Scan(&st.DailyLimit, &st.CurrentUsage, &resetMs, &override, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return models.BudgetState{}, false, nil
	}
	if err != nil {
		return models.BudgetState{}, false, fmt.Errorf("load budget: %w", err)
	}
	st.ResetAt = time.UnixMilli(resetMs).UTC()
	st.AdminOverride = override != 0
	st.UpdatedAt = time.Unix(updated, 0).UTC()
	return st, true, nil
}

// Save upserts the budget row. updated_at is set by SQLite.
func (s *Store) Save(ctx context.Context, st models.BudgetState) error {
	override := 0
	if st.AdminOverride {
		override = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO budget_state (id, daily_limit, current_usage, reset_at, admin_override, updated_at)
		 VALUES (1, ?, ?, ?, ?, CAST(strftime('%s','now') AS INTEGER))
		 ON CONFLICT(id) DO UPDATE SET
			daily_limit = excluded.daily_limit,
			current_usage = excluded.current_usage,
			reset_at = excluded.reset_at,
			admin_override = excluded.admin_override,
			updated_at = excluded.updated_at`,
		st.DailyLimit, st.CurrentUsage, st.ResetAt.UnixMilli(), override,
	)
	if err != nil {
		return fmt.Errorf("save budget: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
