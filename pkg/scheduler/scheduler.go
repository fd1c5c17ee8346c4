// Package scheduler runs the periodic quota housekeeping jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pario-ai/quotaguard/pkg/config"
	"github.com/pario-ai/quotaguard/pkg/metrics"
	"github.com/pario-ai/quotaguard/pkg/models"
)

// UsageReader loads the budget, applying any due rollover.
type UsageReader interface {
	Stats(ctx context.Context) models.UsageStats
}

// Summarizer groups ledger rows in a time window.
type Summarizer interface {
	SummaryBetween(ctx context.Context, since, until time.Time) ([]models.LedgerSummary, error)
}

// Sweeper deletes expired cache entries.
type Sweeper interface {
	ClearExpired(ctx context.Context) (int64, error)
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron    *cron.Cron
	usage   UsageReader
	ledger  Summarizer
	sweeper Sweeper
	log     *zap.Logger
	now     func() time.Time
	timeout time.Duration
}

// New creates a Scheduler. sweeper may be nil when caching is disabled.
func New(usage UsageReader, ledger Summarizer, sweeper Sweeper, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(config.CronParser),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger{logger.Sugar()})),
		),
		usage:   usage,
		ledger:  ledger,
		sweeper: sweeper,
		log:     logger,
		now:     time.Now,
		timeout: 30 * time.Second,
	}
}

// Register adds the jobs named in cfg. Empty expressions are skipped.
func (s *Scheduler) Register(cfg config.ScheduleConfig) error {
	jobs := []struct {
		name string
		expr string
		fn   func(context.Context)
	}{
		{"report", cfg.ReportCron, s.DailyReport},
		{"gauges", cfg.GaugeCron, s.RefreshGauges},
		{"sweep", cfg.SweepCron, s.SweepCache},
	}
	for _, j := range jobs {
		if j.expr == "" {
			continue
		}
		if j.name == "sweep" && s.sweeper == nil {
			continue
		}
		fn := j.fn
		if _, err := s.cron.AddFunc(j.expr, func() { s.run(fn) }); err != nil {
			return fmt.Errorf("register %s job: %w", j.name, err)
		}
		s.log.Debug("scheduled job", zap.String("job", j.name), zap.String("expr", j.expr))
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// cronLogger routes cron's own messages to zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

func (s *Scheduler) run(fn func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	fn(ctx)
}

// DailyReport logs the previous UTC day's metered calls.
func (s *Scheduler) DailyReport(ctx context.Context) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.Add(-24 * time.Hour)

	rows, err := s.ledger.SummaryBetween(ctx, since, today)
	if err != nil {
		s.log.Error("daily report", zap.Error(err))
		return
	}
	var calls, cost int
	for _, r := range rows {
		calls += r.Calls
		cost += r.Cost
		s.log.Info("daily usage",
			zap.String("endpoint", r.Endpoint),
			zap.String("category", r.Category),
			zap.Int("calls", r.Calls),
			zap.Int("cost", r.Cost),
		)
	}
	stats := s.usage.Stats(ctx)
	s.log.Info("daily usage report",
		zap.Time("since", since),
		zap.Int("calls", calls),
		zap.Int("cost", cost),
		zap.Int("limit", stats.Limit),
		zap.Int("used_today", stats.Used),
	)
}

// RefreshGauges loads the budget and copies it into the Prometheus gauges.
// Loading also rolls the budget over once the reset time has passed.
func (s *Scheduler) RefreshGauges(ctx context.Context) {
	metrics.ObserveBudget(s.usage.Stats(ctx))
}

// SweepCache deletes expired cache entries.
func (s *Scheduler) SweepCache(ctx context.Context) {
	if s.sweeper == nil {
		return
	}
	n, err := s.sweeper.ClearExpired(ctx)
	if err != nil {
		s.log.Warn("cache sweep", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("cache sweep", zap.Int64("deleted", n))
	}
}
