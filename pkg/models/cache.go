package models

import "time"

// CacheEntry stores a cached provider response.
type CacheEntry struct {
	Key       string        `json:"key"`
	Namespace string        `json:"namespace"`
	Data      []byte        `json:"data"`
	CachedAt  time.Time     `json:"cached_at"`
	TTL       time.Duration `json:"ttl"`
}

// Valid reports whether the entry is still fresh at now.
func (e CacheEntry) Valid(now time.Time) bool {
	return now.Before(e.CachedAt.Add(e.TTL))
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
