package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/pario-ai/quotaguard/pkg/budget"
)

// Config holds all quotaguard configuration.
type Config struct {
	Listen    string           `yaml:"listen"`
	DBPath    string           `yaml:"db_path"`
	Logging   LoggingConfig    `yaml:"logging"`
	Providers []ProviderConfig `yaml:"providers"`
	Cache     CacheConfig      `yaml:"cache"`
	Budget    BudgetConfig     `yaml:"budget"`
	Router    RouterConfig     `yaml:"router"`
	Worker    WorkerConfig     `yaml:"worker"`
	Schedule  ScheduleConfig   `yaml:"schedule"`
}

// LoggingConfig selects the zap preset and level.
type LoggingConfig struct {
	Env   string `yaml:"env"`   // prod, dev, local
	Level string `yaml:"level"` // debug, info, warn, error
}

// ProviderConfig defines an upstream market-data provider.
// Type is "http" (default) or "mock".
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	URL         string        `yaml:"url"`
	APIKey      string        `yaml:"api_key"`
	APIKeyParam string        `yaml:"api_key_param"`
	Type        string        `yaml:"type"`
	Timeout     time.Duration `yaml:"timeout"`
	Proxy       string        `yaml:"proxy"`
	// ErrorFields are gjson paths whose presence in a response body marks
	// the call as failed.
	ErrorFields []string `yaml:"error_fields"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Consistency modes for admission.
const (
	ConsistencyRelaxed = "relaxed"
	ConsistencyStrict  = "strict"
)

// BudgetConfig controls the daily quota.
type BudgetConfig struct {
	DefaultLimit int               `yaml:"default_limit"`
	Bounds       budget.Bounds     `yaml:"bounds"`
	Thresholds   budget.Thresholds `yaml:"thresholds"`
	Consistency  string            `yaml:"consistency"`
	Store        StoreConfig       `yaml:"store"`
}

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// StoreConfig selects where the budget state lives.
type StoreConfig struct {
	Driver string      `yaml:"driver"`
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Key      string   `yaml:"key"`
}

// RouterConfig maps operation categories to cache TTLs and providers.
type RouterConfig struct {
	DefaultTTL time.Duration    `yaml:"default_ttl"`
	Categories []CategoryConfig `yaml:"categories"`
}

// CategoryConfig is one category's TTL and optional provider chain.
type CategoryConfig struct {
	Name      string        `yaml:"name"`
	TTL       time.Duration `yaml:"ttl"`
	Providers []string      `yaml:"providers"`
}

// WorkerConfig sizes the background queue for ledger and audit writes.
type WorkerConfig struct {
	QueueSize  int           `yaml:"queue_size"`
	JobTimeout time.Duration `yaml:"job_timeout"`
}

// ScheduleConfig controls the cron jobs run by serve. Expressions have a
// leading seconds field and run in UTC.
type ScheduleConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ReportCron string `yaml:"report_cron"`
	GaugeCron  string `yaml:"gauge_cron"`
	SweepCron  string `yaml:"sweep_cron"`
}

// CronParser parses schedule expressions.
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:  ":8080",
		DBPath:  "quotaguard.db",
		Logging: LoggingConfig{Env: "prod", Level: "info"},
		Cache: CacheConfig{
			Enabled:   true,
			Namespace: "market",
		},
		Budget: BudgetConfig{
			DefaultLimit: budget.DefaultLimit,
			Bounds:       budget.DefaultBounds(),
			Thresholds:   budget.DefaultThresholds(),
			Consistency:  ConsistencyRelaxed,
			Store:        StoreConfig{Driver: DriverSQLite},
		},
		Router: RouterConfig{
			DefaultTTL: 30 * time.Minute,
			Categories: []CategoryConfig{
				{Name: "quote", TTL: 30 * time.Minute},
				{Name: "series", TTL: 4 * time.Hour},
				{Name: "news", TTL: 12 * time.Hour},
			},
		},
		Worker: WorkerConfig{
			QueueSize:  256,
			JobTimeout: 5 * time.Second,
		},
		Schedule: ScheduleConfig{
			Enabled:    true,
			ReportCron: "0 5 0 * * *",
			GaugeCron:  "0 * * * * *",
			SweepCron:  "0 30 * * * *",
		},
	}
}

// Load reads a YAML config file, expands environment variables and
// validates the result. A .env file next to the config is loaded first;
// variables already set in the environment win.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(expandEnvVars(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Type == "" {
			p.Type = "http"
		}
		if p.APIKeyParam == "" {
			p.APIKeyParam = "apikey"
		}
		if p.Timeout <= 0 {
			p.Timeout = 10 * time.Second
		}
	}
	if c.Router.DefaultTTL <= 0 {
		c.Router.DefaultTTL = 30 * time.Minute
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	b := c.Budget
	if b.Bounds.Min < 1 || b.Bounds.Min > b.Bounds.Max {
		return fmt.Errorf("budget.bounds must satisfy 1 <= min <= max, got [%d, %d]", b.Bounds.Min, b.Bounds.Max)
	}
	if !b.Bounds.Contains(b.DefaultLimit) {
		return fmt.Errorf("budget.default_limit %d outside bounds [%d, %d]", b.DefaultLimit, b.Bounds.Min, b.Bounds.Max)
	}
	if err := b.Thresholds.Validate(); err != nil {
		return fmt.Errorf("budget.thresholds: %w", err)
	}
	switch b.Consistency {
	case ConsistencyRelaxed, ConsistencyStrict:
	default:
		return fmt.Errorf("budget.consistency must be %q or %q, got %q", ConsistencyRelaxed, ConsistencyStrict, b.Consistency)
	}
	switch b.Store.Driver {
	case DriverSQLite, DriverMemory:
	case DriverRedis:
		if len(b.Store.Redis.Addrs) == 0 {
			return errors.New("budget.store.redis.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("budget.store.driver must be sqlite, redis or memory, got %q", b.Store.Driver)
	}

	names := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return errors.New("providers: name is required")
		}
		if names[p.Name] {
			return fmt.Errorf("providers: duplicate name %q", p.Name)
		}
		names[p.Name] = true
		switch p.Type {
		case "http":
			if p.URL == "" {
				return fmt.Errorf("providers.%s: url is required", p.Name)
			}
		case "mock":
		default:
			return fmt.Errorf("providers.%s: unknown type %q", p.Name, p.Type)
		}
	}

	seen := make(map[string]bool, len(c.Router.Categories))
	for _, cat := range c.Router.Categories {
		if cat.Name == "" {
			return errors.New("router.categories: name is required")
		}
		if seen[cat.Name] {
			return fmt.Errorf("router.categories: duplicate %q", cat.Name)
		}
		seen[cat.Name] = true
		if cat.TTL <= 0 {
			return fmt.Errorf("router.categories.%s: ttl must be positive", cat.Name)
		}
		for _, p := range cat.Providers {
			if !names[p] {
				return fmt.Errorf("router.categories.%s: unknown provider %q", cat.Name, p)
			}
		}
	}

	if c.Schedule.Enabled {
		for field, expr := range map[string]string{
			"report_cron": c.Schedule.ReportCron,
			"gauge_cron":  c.Schedule.GaugeCron,
			"sweep_cron":  c.Schedule.SweepCron,
		} {
			if expr == "" {
				continue
			}
			if _, err := CronParser.Parse(expr); err != nil {
				return fmt.Errorf("schedule.%s: %w", field, err)
			}
		}
	}
	return nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		name, def, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(name)
		if val == "" && hasDefault {
			val = def
		}
		return []byte(val)
	})
}
