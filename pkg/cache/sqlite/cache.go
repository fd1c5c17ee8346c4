package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/quotaguard/pkg/cache"
	"github.com/pario-ai/quotaguard/pkg/models"
	"github.com/pario-ai/quotaguard/pkg/sqlitedb"
)

var _ cache.Store = (*Cache)(nil)

// Cache is a namespaced response cache backed by SQLite. Each entry carries
// its own TTL and is evicted the first time it is read after expiring.
type Cache struct {
	db        *sql.DB
	namespace string
	log       *zap.Logger
	now       func() time.Time
	hits      atomic.Int64
	misses    atomic.Int64
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	data BLOB NOT NULL,
	cached_at INTEGER NOT NULL,
	ttl_ms INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
);
`

// New opens the cache at dbPath. Entries are scoped to namespace.
func New(dbPath, namespace string, logger *zap.Logger) (*Cache, error) {
	db, err := sqlitedb.Open(dbPath, createCacheTable)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{db: db, namespace: namespace, log: logger, now: time.Now}, nil
}

// Get returns the cached value for key if it has not expired. An expired
// row is deleted. Storage errors count as a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	var (
		data     []byte
		cachedAt int64
		ttlMs    int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT data, cached_at, ttl_ms FROM cache_entries WHERE namespace = ? AND key = ?`,
		c.namespace, key,
	).Scan(&data, &cachedAt, &ttlMs)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		c.misses.Add(1)
		return nil, false
	}

	entry := models.CacheEntry{
		CachedAt: time.Unix(0, cachedAt),
		TTL:      time.Duration(ttlMs) * time.Millisecond,
	}
	if !entry.Valid(c.now()) {
		if _, err := c.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE namespace = ? AND key = ? AND cached_at = ?`,
			c.namespace, key, cachedAt,
		); err != nil {
			c.log.Warn("cache evict failed", zap.String("key", key), zap.Error(err))
		}
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return data, true
}

// Put stores value under key, replacing any existing entry.
func (c *Cache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (namespace, key, data, cached_at, ttl_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		c.namespace, key, value, c.now().UnixNano(), ttl.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Stats returns the entry count of this namespace and the hit/miss counters
// of this process.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	var count int64
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache_entries WHERE namespace = ?`, c.namespace,
	).Scan(&count)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Entries: count,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// ClearAll removes every entry in this namespace.
func (c *Cache) ClearAll(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE namespace = ?`, c.namespace,
	); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// ClearExpired removes expired entries in this namespace and returns how
// many were deleted.
func (c *Cache) ClearExpired(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE namespace = ? AND cached_at + ttl_ms * 1000000 <= ?`,
		c.namespace, c.now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("cache clear expired: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
