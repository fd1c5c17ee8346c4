package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pario-ai/quotaguard/pkg/budget"
	"github.com/pario-ai/quotaguard/pkg/cache"
	"github.com/pario-ai/quotaguard/pkg/config"
	"github.com/pario-ai/quotaguard/pkg/ledger"
	"github.com/pario-ai/quotaguard/pkg/logging"
	"github.com/pario-ai/quotaguard/pkg/metrics"
	"github.com/pario-ai/quotaguard/pkg/models"
	"github.com/pario-ai/quotaguard/pkg/provider"
	"github.com/pario-ai/quotaguard/pkg/router"
)

// Deps wires an Orchestrator. Cache may be nil to disable caching.
type Deps struct {
	Budget   *budget.Manager
	Cache    cache.Store
	Ledger   ledger.Ledger
	Router   *router.Router
	Fetchers map[string]provider.Fetcher
	Queue    budget.Dispatcher
	Logger   *zap.Logger
	Now      func() time.Time
}

// Orchestrator is the entry point consumers call for market data. It serves
// from cache when it can, spends quota only on admitted calls, and meters
// only calls that succeed.
type Orchestrator struct {
	budget   *budget.Manager
	cache    cache.Store
	ledger   ledger.Ledger
	router   atomic.Pointer[router.Router]
	fetchers map[string]provider.Fetcher
	queue    budget.Dispatcher
	log      *zap.Logger
	now      func() time.Time
}

// New validates d and returns an Orchestrator.
func New(d Deps) (*Orchestrator, error) {
	if d.Budget == nil || d.Ledger == nil || d.Router == nil || d.Queue == nil {
		return nil, errors.New("orchestrator: budget, ledger, router and queue are required")
	}
	if err := checkFetchers(d.Router, d.Fetchers); err != nil {
		return nil, err
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	o := &Orchestrator{
		budget:   d.Budget,
		cache:    d.Cache,
		ledger:   d.Ledger,
		fetchers: d.Fetchers,
		queue:    d.Queue,
		log:      d.Logger,
		now:      d.Now,
	}
	o.router.Store(d.Router)
	return o, nil
}

func checkFetchers(r *router.Router, fetchers map[string]provider.Fetcher) error {
	routes := []router.Route{r.MustResolve("")}
	for _, c := range r.Categories() {
		routes = append(routes, r.MustResolve(c))
	}
	for _, route := range routes {
		for _, p := range route.Providers {
			if _, ok := fetchers[p.Name]; !ok {
				return fmt.Errorf("orchestrator: no fetcher for provider %q", p.Name)
			}
		}
	}
	return nil
}

// ValidateCategory reports whether category can be fetched.
func (o *Orchestrator) ValidateCategory(category string) error {
	_, err := o.router.Load().Resolve(category)
	return err
}

// FetchWithBudget returns data for req, or false when the request was denied
// by the budget or the provider call failed. An unknown category panics;
// callers taking categories from outside should check ValidateCategory
// first.
func (o *Orchestrator) FetchWithBudget(ctx context.Context, req models.FetchRequest) ([]byte, bool) {
	res := o.Fetch(ctx, req)
	return res.Data, res.OK
}

// Result is the outcome of Fetch.
type Result struct {
	Data   []byte
	OK     bool
	Cached bool
}

// Fetch is FetchWithBudget that also reports whether the data came from
// cache.
func (o *Orchestrator) Fetch(ctx context.Context, req models.FetchRequest) Result {
	route := o.router.Load().MustResolve(req.Category)
	key := fingerprint(route, req.Params)
	log := logging.FromContextOr(ctx, o.log).With(
		zap.String("category", route.Category),
		zap.String("priority", string(req.Priority)),
		zap.String("endpoint", req.Endpoint()),
	)

	if o.cache != nil {
		if data, ok := o.cache.Get(ctx, key); ok {
			metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
			log.Debug("cache hit", zap.String("key", key))
			return Result{Data: data, OK: true, Cached: true}
		}
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	cost := req.Units()
	var rsv *budget.Reservation
	if o.budget.Strict() {
		r, ok := o.budget.Reserve(ctx, req.Priority, cost)
		if !ok {
			metrics.AdmissionsTotal.WithLabelValues(string(req.Priority), "denied").Inc()
			return Result{}
		}
		rsv = r
	} else if !o.budget.Admit(ctx, req.Priority) {
		metrics.AdmissionsTotal.WithLabelValues(string(req.Priority), "denied").Inc()
		return Result{}
	}
	metrics.AdmissionsTotal.WithLabelValues(string(req.Priority), "admitted").Inc()

	data, err := o.fetch(ctx, route, req.Params, log)
	// Past this point the caller may be gone; bookkeeping still has to land.
	bg := context.WithoutCancel(ctx)
	if err != nil {
		if rsv != nil {
			rsv.Release(bg)
		}
		log.Error("provider call failed, no usage recorded",
			zap.Any("params", redact(route, req.Params)),
			zap.String("kind", string(provider.KindOf(err))),
			zap.Error(err),
		)
		return Result{}
	}

	var st models.BudgetState
	if rsv != nil {
		st = rsv.Commit()
	} else {
		st = o.budget.Record(bg, cost)
	}
	metrics.ObserveBudget(models.StatsFor(st))

	entry := models.LedgerEntry{
		ID:              uuid.NewString(),
		Endpoint:        req.Endpoint(),
		Category:        route.Category,
		Cost:            cost,
		TotalUsageAfter: st.CurrentUsage,
		RemainingAfter:  st.Remaining(),
		CreatedAt:       o.now().UTC(),
	}
	o.queue.Go("ledger", func(ctx context.Context) error {
		return o.ledger.Append(ctx, entry)
	})

	if o.cache != nil {
		if err := o.cache.Put(bg, key, data, route.TTL); err != nil {
			log.Warn("cache put failed", zap.Error(err))
		}
	}
	return Result{Data: data, OK: true}
}

// fetch tries each provider of route in order. It moves on only after a
// transport error or a 5xx status.
func (o *Orchestrator) fetch(ctx context.Context, route router.Route, params map[string]string, log *zap.Logger) ([]byte, error) {
	var lastErr error
	for i, p := range route.Providers {
		f := o.fetchers[p.Name]
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		start := time.Now()
		data, err := f.Fetch(callCtx, params)
		cancel()
		metrics.UpstreamRequestDuration.WithLabelValues(p.Name).Observe(time.Since(start).Seconds())

		outcome := "ok"
		if err != nil {
			outcome = string(provider.KindOf(err))
			if outcome == "" {
				outcome = "error"
			}
		}
		metrics.UpstreamRequestsTotal.WithLabelValues(p.Name, route.Category, outcome).Inc()

		if err == nil {
			return data, nil
		}
		lastErr = err
		if !isRetryable(err) || ctx.Err() != nil {
			break
		}
		if i < len(route.Providers)-1 {
			log.Warn("provider failed, trying next",
				zap.String("provider", p.Name),
				zap.String("next", route.Providers[i+1].Name),
				zap.Error(err),
			)
		}
	}
	return nil, lastErr
}

// isRetryable returns true if the error warrants trying the next provider.
func isRetryable(err error) bool {
	var pe *provider.Error
	if !errors.As(err, &pe) {
		return true
	}
	switch pe.Kind {
	case provider.KindTransport:
		return true
	case provider.KindStatus:
		return pe.Status >= 500
	}
	return false
}

var secretParams = []string{"apikey", "api_key", "token", "key"}

func isSecret(name string, route router.Route) bool {
	for _, s := range secretParams {
		if strings.EqualFold(name, s) {
			return true
		}
	}
	for _, p := range route.Providers {
		if p.APIKeyParam != "" && strings.EqualFold(name, p.APIKeyParam) {
			return true
		}
	}
	return false
}

// fingerprint is the cache key of params under route, minus credentials.
func fingerprint(route router.Route, params map[string]string) string {
	kept := make(map[string]string, len(params))
	for k, v := range params {
		if !isSecret(k, route) {
			kept[k] = v
		}
	}
	return cache.CategoryKey(route.Category, kept)
}

func redact(route router.Route, params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
		if isSecret(k, route) {
			out[k] = "***"
		}
	}
	return out
}

// FetchJSON fetches req and decodes the body into T.
func FetchJSON[T any](ctx context.Context, o *Orchestrator, req models.FetchRequest) (T, bool) {
	var v T
	data, ok := o.FetchWithBudget(ctx, req)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		o.log.Error("decode provider response", zap.String("category", req.Category), zap.Error(err))
		return v, false
	}
	return v, true
}

// GetUsageStats returns the current budget for dashboards.
func (o *Orchestrator) GetUsageStats(ctx context.Context) models.UsageStats {
	stats := o.budget.Stats(ctx)
	metrics.ObserveBudget(stats)
	return stats
}

// UpdateAdminLimit sets the daily limit. Out-of-range limits return a
// *budget.ValidationError.
func (o *Orchestrator) UpdateAdminLimit(ctx context.Context, limit int, actorID string) (models.UsageStats, error) {
	if _, err := o.budget.SetLimit(ctx, limit, actorID); err != nil {
		return models.UsageStats{}, err
	}
	o.log.Info("daily limit changed", zap.Int("limit", limit), zap.String("actor_id", actorID))
	return o.GetUsageStats(ctx), nil
}

// ToggleAdminOverride switches the admin override.
func (o *Orchestrator) ToggleAdminOverride(ctx context.Context, enabled bool, actorID string) models.UsageStats {
	o.budget.SetOverride(ctx, enabled, actorID)
	o.log.Info("admin override changed", zap.Bool("enabled", enabled), zap.String("actor_id", actorID))
	return o.GetUsageStats(ctx)
}

// ClearCache removes every cached response.
func (o *Orchestrator) ClearCache(ctx context.Context) error {
	if o.cache == nil {
		return nil
	}
	return o.cache.ClearAll(ctx)
}

// CacheStats reports cache size and hit rate.
func (o *Orchestrator) CacheStats(ctx context.Context) (models.CacheStats, error) {
	if o.cache == nil {
		return models.CacheStats{}, nil
	}
	return o.cache.Stats(ctx)
}

// Ledger returns the n most recent metered calls.
func (o *Orchestrator) Ledger(ctx context.Context, n int) ([]models.LedgerEntry, error) {
	return o.ledger.Tail(ctx, n)
}

// UpdateTuning applies thresholds and the category table from a reloaded
// config. Providers cannot be added at runtime.
func (o *Orchestrator) UpdateTuning(cfg *config.Config) error {
	r, err := router.New(cfg)
	if err != nil {
		return err
	}
	if err := checkFetchers(r, o.fetchers); err != nil {
		return err
	}
	if err := o.budget.SetThresholds(cfg.Budget.Thresholds); err != nil {
		return err
	}
	o.router.Store(r)
	return nil
}
