// Package redis shares the budget state between instances through a single
// Redis key.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/pario-ai/quotaguard/pkg/models"
)

// DefaultKey is the key the state is stored under when none is configured.
const DefaultKey = "quotaguard:budget"

// Config holds connection parameters.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	Key      string
}

// Store implements budget.Store via rueidis.
type Store struct {
	client rueidis.Client
	key    string
}

// New connects to Redis.
func New(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}
	return newWithClient(client, cfg.Key), nil
}

func newWithClient(c rueidis.Client, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: c, key: key}
}

type record struct {
	DailyLimit    int   `json:"daily_limit"`
	CurrentUsage  int   `json:"current_usage"`
	ResetAt       int64 `json:"reset_at_ms"`
	AdminOverride bool  `json:"admin_override"`
	UpdatedAt     int64 `json:"updated_at_ms"`
}

// Load reads and decodes the state.
func (s *Store) Load(ctx context.Context) (models.BudgetState, bool, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return models.BudgetState{}, false, nil
		}
		return models.BudgetState{}, false, fmt.Errorf("load budget: %w", err)
	}
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return models.BudgetState{}, false, fmt.Errorf("decode budget: %w", err)
	}
	return models.BudgetState{
		DailyLimit:    r.DailyLimit,
		CurrentUsage:  r.CurrentUsage,
		ResetAt:       time.UnixMilli(r.ResetAt).UTC(),
		AdminOverride: r.AdminOverride,
		UpdatedAt:     time.UnixMilli(r.UpdatedAt).UTC(),
	}, true, nil
}

// Save stamps the state with the Redis server clock and writes it.
func (s *Store) Save(ctx context.Context, st models.BudgetState) error {
	now, err := s.serverTime(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(record{
		DailyLimit:    st.DailyLimit,
		CurrentUsage:  st.CurrentUsage,
		ResetAt:       st.ResetAt.UnixMilli(),
		AdminOverride: st.AdminOverride,
		UpdatedAt:     now.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode budget: %w", err)
	}
	cmd := s.client.B().Set().Key(s.key).Value(string(data)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("save budget: %w", err)
	}
	return nil
}

func (s *Store) serverTime(ctx context.Context) (time.Time, error) {
	parts, err := s.client.Do(ctx, s.client.B().Time().Build()).AsStrSlice()
	if err != nil {
		return time.Time{}, fmt.Errorf("redis time: %w", err)
	}
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("redis time: unexpected reply %v", parts)
	}
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis time: %w", err)
	}
	usec, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis time: %w", err)
	}
	return time.Unix(sec, usec*int64(time.Microsecond)).UTC(), nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}
