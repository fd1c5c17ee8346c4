package provider

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"
)

// MockFetcher answers every call with a small JSON document echoing the
// parameters. It is used for local development and tests.
type MockFetcher struct {
	name  string
	calls atomic.Int64
	now   func() time.Time
}

// NewMockFetcher returns a MockFetcher.
func NewMockFetcher(name string) *MockFetcher {
	if name == "" {
		name = "mock"
	}
	return &MockFetcher{name: name, now: time.Now}
}

func (m *MockFetcher) Name() string { return m.name }

// Calls returns the number of Fetch calls so far.
func (m *MockFetcher) Calls() int64 { return m.calls.Load() }

func (m *MockFetcher) Fetch(ctx context.Context, params map[string]string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Provider: m.name, Kind: KindCanceled, Err: err}
	}
	m.calls.Add(1)
	return json.Marshal(map[string]any{
		"provider":   m.name,
		"params":     params,
		"fetched_at": m.now().UTC().Format(time.RFC3339),
	})
}
