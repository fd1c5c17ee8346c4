// Package cache defines the response cache contract and its key function.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/url"
	"time"

	"github.com/pario-ai/quotaguard/pkg/models"
)

// Store is a best-effort response cache. Get reports storage errors as a
// miss.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	ClearAll(ctx context.Context) error
	Stats(ctx context.Context) (models.CacheStats, error)
}

// Key fingerprints a parameter set. Parameter order does not matter.
func Key(params map[string]string) string {
	sum := sha256.Sum256([]byte(encode(params)))
	return fmt.Sprintf("%x", sum)
}

// CategoryKey fingerprints params within category, so one parameter set
// fetched under two categories gets two entries.
func CategoryKey(category string, params map[string]string) string {
	sum := sha256.Sum256([]byte(url.QueryEscape(category) + "\n" + encode(params)))
	return fmt.Sprintf("%x", sum)
}

func encode(params map[string]string) string {
	v := make(url.Values, len(params))
	for k, val := range params {
		v.Set(k, val)
	}
	return v.Encode()
}
