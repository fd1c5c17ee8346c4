package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/quotaguard/pkg/models"
	"github.com/pario-ai/quotaguard/pkg/sqlitedb"
)

// DefaultTail is the number of rows Tail returns when n <= 0.
const DefaultTail = 50

// Ledger is the append-only record of metered provider calls.
type Ledger interface {
	// Append stores one entry. ID and CreatedAt are filled in when empty.
	Append(ctx context.Context, e models.LedgerEntry) error
	// Tail returns the n most recent entries, newest first.
	Tail(ctx context.Context, n int) ([]models.LedgerEntry, error)
	// Summary groups calls and cost by endpoint and category since a time.
	Summary(ctx context.Context, since time.Time) ([]models.LedgerSummary, error)
	// SummaryBetween is Summary bounded above by until.
	SummaryBetween(ctx context.Context, since, until time.Time) ([]models.LedgerSummary, error)
	// Hourly counts calls per UTC hour since a time, oldest first.
	Hourly(ctx context.Context, since time.Time) ([]models.HourlyUsage, error)
	// Count returns the total number of entries.
	Count(ctx context.Context) (int64, error)
	// Close releases resources.
	Close() error
}

// SQLiteLedger implements Ledger with a SQLite database.
type SQLiteLedger struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS usage_ledger (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	endpoint TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	cost INTEGER NOT NULL CHECK (cost >= 1),
	total_usage_after INTEGER NOT NULL,
	remaining_after INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_time ON usage_ledger(created_at);
`

// New creates a SQLiteLedger and runs auto-migration.
func New(dbPath string) (*SQLiteLedger, error) {
	db, err := sqlitedb.Open(dbPath, createTable)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// Append inserts e.
func (l *SQLiteLedger) Append(ctx context.Context, e models.LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Cost < 1 {
		return fmt.Errorf("append ledger: cost must be >= 1, got %d", e.Cost)
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO usage_ledger (id, endpoint, category, cost, total_usage_after, remaining_after, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Endpoint, e.Category, e.Cost, e.TotalUsageAfter, e.RemainingAfter, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	return nil
}

// Tail returns the most recent entries in reverse append order.
func (l *SQLiteLedger) Tail(ctx context.Context, n int) ([]models.LedgerEntry, error) {
	if n <= 0 {
		n = DefaultTail
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, endpoint, category, cost, total_usage_after, remaining_after, created_at
		 FROM usage_ledger ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("tail ledger: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var ms int64
		if err := rows.Scan(&e.ID, &e.Endpoint, &e.Category, &e.Cost,
			&e.TotalUsageAfter, &e.RemainingAfter, &ms); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		e.CreatedAt = time.UnixMilli(ms).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summary aggregates entries created at or after since.
func (l *SQLiteLedger) Summary(ctx context.Context, since time.Time) ([]models.LedgerSummary, error) {
	return l.SummaryBetween(ctx, since, time.Time{})
}

// SummaryBetween aggregates entries created in [since, until). A zero until
// leaves the window open.
func (l *SQLiteLedger) SummaryBetween(ctx context.Context, since, until time.Time) ([]models.LedgerSummary, error) {
	q := `SELECT endpoint, category, COUNT(*), SUM(cost)
		 FROM usage_ledger WHERE created_at >= ?`
	args := []any{since.UnixMilli()}
	if !until.IsZero() {
		q += ` AND created_at < ?`
		args = append(args, until.UnixMilli())
	}
	q += ` GROUP BY endpoint, category ORDER BY SUM(cost) DESC, endpoint`

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger summary: %w", err)
	}
	defer rows.Close()

	var out []models.LedgerSummary
	for rows.Next() {
		var s models.LedgerSummary
		if err := rows.Scan(&s.Endpoint, &s.Category, &s.Calls, &s.Cost); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Hourly buckets entries created at or after since by UTC hour.
func (l *SQLiteLedger) Hourly(ctx context.Context, since time.Time) ([]models.HourlyUsage, error) {
	const hourMs = int64(time.Hour / time.Millisecond)
	rows, err := l.db.QueryContext(ctx,
		`SELECT created_at / ? AS bucket, COUNT(*)
		 FROM usage_ledger WHERE created_at >= ?
		 GROUP BY bucket ORDER BY bucket`,
		hourMs, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("ledger hourly: %w", err)
	}
	defer rows.Close()

	var out []models.HourlyUsage
	for rows.Next() {
		var bucket int64
		var h models.HourlyUsage
		if err := rows.Scan(&bucket, &h.Calls); err != nil {
			return nil, fmt.Errorf("scan hourly: %w", err)
		}
		h.Hour = time.UnixMilli(bucket * hourMs).UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}

// Count returns the number of rows in the ledger.
func (l *SQLiteLedger) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage_ledger`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger: %w", err)
	}
	return n, nil
}

// Close releases the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
