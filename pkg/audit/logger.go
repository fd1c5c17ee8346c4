package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/quotaguard/pkg/models"
	"github.com/pario-ai/quotaguard/pkg/sqlitedb"
)

// Logger writes and queries admin actions in SQLite.
type Logger struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS admin_actions (
	id         TEXT PRIMARY KEY,
	action     TEXT NOT NULL,
	actor_id   TEXT NOT NULL,
	before_val TEXT NOT NULL,
	after_val  TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_admin_created ON admin_actions(created_at);
CREATE INDEX IF NOT EXISTS idx_admin_actor ON admin_actions(actor_id);
`

// New opens the audit database at dbPath and creates the schema.
func New(dbPath string) (*Logger, error) {
	db, err := sqlitedb.Open(dbPath, createTable)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	return &Logger{db: db}, nil
}

// Log inserts an admin action. A nil Logger discards it.
func (l *Logger) Log(ctx context.Context, a models.AdminAction) error {
	if l == nil || l.db == nil {
		return nil
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO admin_actions (id, action, actor_id, before_val, after_val, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Action), a.ActorID, a.Before, a.After, a.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("log admin action: %w", err)
	}
	return nil
}

// Query returns admin actions matching opts, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AdminQueryOpts) ([]models.AdminAction, error) {
	q := `SELECT id, action, actor_id, before_val, after_val, created_at FROM admin_actions WHERE 1=1`
	var args []any

	if opts.Action != "" {
		q += " AND action = ?"
		args = append(args, string(opts.Action))
	}
	if opts.ActorID != "" {
		q += " AND actor_id = ?"
		args = append(args, opts.ActorID)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UnixMilli())
	}

	q += " ORDER BY created_at DESC, rowid DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query admin actions: %w", err)
	}
	defer rows.Close()

	var out []models.AdminAction
	for rows.Next() {
		var a models.AdminAction
		var action string
		var ms int64
		if err := rows.Scan(&a.ID, &action, &a.ActorID, &a.Before, &a.After, &ms); err != nil {
			return nil, fmt.Errorf("scan admin action: %w", err)
		}
		a.Action = models.AdminActionType(action)
		a.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close closes the database.
func (l *Logger) Close() error {
	return l.db.Close()
}
