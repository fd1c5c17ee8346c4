package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pario-ai/quotaguard/pkg/config"
	"github.com/pario-ai/quotaguard/pkg/metrics"
	"github.com/pario-ai/quotaguard/pkg/models"
)

type fakeUsage struct {
	stats models.UsageStats
	calls int
}

func (f *fakeUsage) Stats(context.Context) models.UsageStats {
	f.calls++
	return f.stats
}

type fakeLedger struct {
	rows         []models.LedgerSummary
	err          error
	since, until time.Time
}

func (f *fakeLedger) SummaryBetween(_ context.Context, since, until time.Time) ([]models.LedgerSummary, error) {
	f.since, f.until = since, until
	return f.rows, f.err
}

type fakeSweeper struct {
	deleted int64
	err     error
	calls   int
}

func (f *fakeSweeper) ClearExpired(context.Context) (int64, error) {
	f.calls++
	return f.deleted, f.err
}

func TestDailyReportCoversPreviousDay(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := &fakeLedger{rows: []models.LedgerSummary{
		{Endpoint: "GLOBAL_QUOTE", Category: "quote", Calls: 3, Cost: 3},
		{Endpoint: "NEWS_SENTIMENT", Category: "news", Calls: 1, Cost: 2},
	}}
	s := New(&fakeUsage{stats: models.UsageStats{Limit: 25}}, l, nil, zap.New(core))
	s.now = func() time.Time { return time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC) }

	s.DailyReport(context.Background())

	if want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC); !l.since.Equal(want) {
		t.Errorf("since = %v, want %v", l.since, want)
	}
	if want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC); !l.until.Equal(want) {
		t.Errorf("until = %v, want %v", l.until, want)
	}

	report := logs.FilterMessage("daily usage report").All()
	if len(report) != 1 {
		t.Fatalf("expected one report line, got %d", len(report))
	}
	fields := report[0].ContextMap()
	if fields["calls"] != int64(4) || fields["cost"] != int64(5) {
		t.Errorf("unexpected totals %v", fields)
	}
	if n := logs.FilterMessage("daily usage").Len(); n != 2 {
		t.Errorf("expected 2 per-endpoint lines, got %d", n)
	}
}

func TestDailyReportLedgerError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	s := New(&fakeUsage{}, &fakeLedger{err: errors.New("locked")}, nil, zap.New(core))

	s.DailyReport(context.Background())

	if logs.FilterMessage("daily report").Len() != 1 {
		t.Error("expected ledger error to be logged")
	}
}

func TestRefreshGauges(t *testing.T) {
	u := &fakeUsage{stats: models.UsageStats{Limit: 40, Used: 12, Remaining: 28}}
	s := New(u, &fakeLedger{}, nil, nil)

	s.RefreshGauges(context.Background())

	if u.calls != 1 {
		t.Errorf("expected budget to be loaded once, got %d", u.calls)
	}
	if v := testutil.ToFloat64(metrics.BudgetCalls.WithLabelValues("remaining")); v != 28 {
		t.Errorf("expected remaining gauge 28, got %f", v)
	}
}

func TestSweepCache(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sw := &fakeSweeper{deleted: 3}
	s := New(&fakeUsage{}, &fakeLedger{}, sw, zap.New(core))

	s.SweepCache(context.Background())
	if sw.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sw.calls)
	}
	if logs.FilterMessage("cache sweep").Len() != 1 {
		t.Error("expected sweep to be logged")
	}

	sw.err = errors.New("busy")
	s.SweepCache(context.Background())
	if logs.FilterMessage("cache sweep").FilterLevelExact(zapcore.WarnLevel).Len() != 1 {
		t.Error("expected sweep error to be logged")
	}
}

func TestRegister(t *testing.T) {
	cfg := config.Default().Schedule

	s := New(&fakeUsage{}, &fakeLedger{}, &fakeSweeper{}, nil)
	if err := s.Register(cfg); err != nil {
		t.Fatal(err)
	}
	if n := len(s.cron.Entries()); n != 3 {
		t.Errorf("expected 3 jobs, got %d", n)
	}

	noCache := New(&fakeUsage{}, &fakeLedger{}, nil, nil)
	if err := noCache.Register(cfg); err != nil {
		t.Fatal(err)
	}
	if n := len(noCache.cron.Entries()); n != 2 {
		t.Errorf("expected sweep to be skipped without a cache, got %d jobs", n)
	}

	cfg.GaugeCron = "every minute"
	if err := New(&fakeUsage{}, &fakeLedger{}, nil, nil).Register(cfg); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestStartStop(t *testing.T) {
	u := &fakeUsage{}
	s := New(u, &fakeLedger{}, nil, nil)
	if err := s.Register(config.ScheduleConfig{GaugeCron: "* * * * * *"}); err != nil {
		t.Fatal(err)
	}
	s.Start()
	time.Sleep(1100 * time.Millisecond)
	s.Stop()
	// The job runs on the cron goroutine; Stop waits for it to finish.
	if u.calls == 0 {
		t.Error("expected the gauge job to have run")
	}
}
