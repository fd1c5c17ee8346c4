package budget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pario-ai/quotaguard/pkg/models"
)

type fakeStore struct {
	mu      sync.Mutex
	state   models.BudgetState
	found   bool
	saves   int
	loadErr error
	saveErr error
}

func (f *fakeStore) Load(context.Context) (models.BudgetState, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return models.BudgetState{}, false, f.loadErr
	}
	return f.state, f.found, nil
}

func (f *fakeStore) Save(_ context.Context, s models.BudgetState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.state = s
	f.found = true
	f.saves++
	return nil
}

func (f *fakeStore) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadErr = err
	f.saveErr = err
}

type fakeAudit struct {
	mu      sync.Mutex
	actions []models.AdminAction
}

func (f *fakeAudit) Log(_ context.Context, a models.AdminAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, a)
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T, strict bool) (*Manager, *fakeStore, *fakeAudit, *clock) {
	t.Helper()
	st := &fakeStore{}
	au := &fakeAudit{}
	c := &clock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	m := NewManager(st, Options{Strict: strict, Audit: au, Now: c.Now})
	return m, st, au, c
}

func TestLoadInitialisesDefaults(t *testing.T) {
	m, st, _, _ := setup(t, false)
	ctx := context.Background()

	s := m.Load(ctx)
	if s.DailyLimit != 25 || s.CurrentUsage != 0 || s.AdminOverride {
		t.Errorf("unexpected defaults: %+v", s)
	}
	if !st.found || st.saves != 1 {
		t.Errorf("expected defaults persisted once, saves=%d", st.saves)
	}

	m.Load(ctx)
	if st.saves != 1 {
		t.Errorf("second load should not save, saves=%d", st.saves)
	}
}

func TestLoadPersistsRollover(t *testing.T) {
	m, st, _, c := setup(t, false)
	ctx := context.Background()

	m.Record(ctx, 20)
	c.Advance(24 * time.Hour)

	s := m.Load(ctx)
	if s.CurrentUsage != 0 {
		t.Errorf("expected rollover, usage=%d", s.CurrentUsage)
	}
	if st.state.CurrentUsage != 0 {
		t.Errorf("rollover not persisted, stored usage=%d", st.state.CurrentUsage)
	}
}

func TestRecordPersists(t *testing.T) {
	m, st, _, _ := setup(t, false)
	ctx := context.Background()

	m.Record(ctx, 1)
	got := m.Record(ctx, 2)
	if got.CurrentUsage != 3 {
		t.Errorf("expected 3, got %d", got.CurrentUsage)
	}
	if st.state.CurrentUsage != 3 {
		t.Errorf("expected stored 3, got %d", st.state.CurrentUsage)
	}
}

func TestAdmitUsesThresholds(t *testing.T) {
	m, _, _, _ := setup(t, false)
	ctx := context.Background()
	m.Record(ctx, 20)

	if !m.Admit(ctx, models.PriorityCritical) {
		t.Error("critical should be admitted")
	}
	if m.Admit(ctx, models.PriorityHigh) {
		t.Error("high should be denied at remaining 5")
	}

	if err := m.SetThresholds(Thresholds{Critical: 0, High: 4, Medium: 10, Low: 15}); err != nil {
		t.Fatal(err)
	}
	if !m.Admit(ctx, models.PriorityHigh) {
		t.Error("high should be admitted after tuning")
	}
	if err := m.SetThresholds(Thresholds{Critical: 5, High: 0}); err == nil {
		t.Error("expected invalid thresholds to be rejected")
	}
}

func TestSetLimitAudited(t *testing.T) {
	m, _, au, _ := setup(t, false)
	ctx := context.Background()

	if _, err := m.SetLimit(ctx, 10, "admin-1"); !errors.Is(err, ErrLimitOutOfRange) {
		t.Errorf("expected ErrLimitOutOfRange, got %v", err)
	}
	if _, err := m.SetLimit(ctx, 501, "admin-1"); err == nil {
		t.Error("expected error for 501")
	}
	if len(au.actions) != 0 {
		t.Errorf("rejected changes must not be audited, got %d", len(au.actions))
	}

	s, err := m.SetLimit(ctx, 100, "admin-1")
	if err != nil {
		t.Fatal(err)
	}
	if s.DailyLimit != 100 {
		t.Errorf("expected 100, got %d", s.DailyLimit)
	}
	if stats := m.Stats(ctx); stats.Limit != 100 {
		t.Errorf("stats limit = %d, want 100", stats.Limit)
	}

	if len(au.actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(au.actions))
	}
	a := au.actions[0]
	if a.Action != models.ActionLimitChange || a.ActorID != "admin-1" || a.Before != "25" || a.After != "100" {
		t.Errorf("unexpected action: %+v", a)
	}
	if a.ID == "" {
		t.Error("expected action ID")
	}
}

func TestSetOverrideAudited(t *testing.T) {
	m, _, au, _ := setup(t, false)
	ctx := context.Background()
	m.Record(ctx, 30)

	if m.Admit(ctx, models.PriorityCritical) {
		t.Fatal("expected denial over limit")
	}
	m.SetOverride(ctx, true, "ops")
	if !m.Admit(ctx, models.PriorityLow) {
		t.Error("override should admit")
	}
	if !m.Stats(ctx).AdminOverride {
		t.Error("stats should show override")
	}
	if len(au.actions) != 1 || au.actions[0].Action != models.ActionOverrideToggle ||
		au.actions[0].Before != "false" || au.actions[0].After != "true" {
		t.Errorf("unexpected actions: %+v", au.actions)
	}
}

func TestStatsClampRemaining(t *testing.T) {
	m, _, _, _ := setup(t, false)
	ctx := context.Background()
	m.Record(ctx, 30)
	stats := m.Stats(ctx)
	if stats.Remaining != 0 || stats.Used != 30 || stats.PercentUsed != 120 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestDegradedMode(t *testing.T) {
	m, st, _, _ := setup(t, false)
	ctx := context.Background()
	m.Record(ctx, 4)

	st.fail(errors.New("connection refused"))
	s := m.Load(ctx)
	if s.CurrentUsage != 4 {
		t.Errorf("expected last known usage 4, got %d", s.CurrentUsage)
	}
	m.Record(ctx, 1)
	stats := m.Stats(ctx)
	if !stats.Degraded {
		t.Error("expected degraded stats")
	}
	if stats.Used != 5 {
		t.Errorf("expected in-memory usage 5, got %d", stats.Used)
	}

	st.fail(nil)
	if m.Stats(ctx).Degraded {
		t.Error("expected recovery after successful load")
	}
}

func TestDegradedWithoutHistoryUsesDefaults(t *testing.T) {
	m, st, _, _ := setup(t, false)
	st.fail(errors.New("down"))

	s := m.Load(context.Background())
	if s.DailyLimit != 25 || s.CurrentUsage != 0 {
		t.Errorf("expected default budget, got %+v", s)
	}
	if !m.Degraded() {
		t.Error("expected degraded")
	}
}

// The relaxed path checks and records in separate steps, so callers that
// read the same state can all get in over the last slot.
func TestRelaxedAdmissionRace(t *testing.T) {
	m, _, _, _ := setup(t, false)
	ctx := context.Background()
	m.Record(ctx, 24)

	const callers = 4
	var wg sync.WaitGroup
	admitted := make(chan bool, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			admitted <- m.Admit(ctx, models.PriorityCritical)
		}()
	}
	close(start)
	wg.Wait()
	close(admitted)

	n := 0
	for ok := range admitted {
		if ok {
			n++
			m.Record(ctx, 1)
		}
	}
	if n != callers {
		t.Fatalf("expected all %d callers admitted over one slot, got %d", callers, n)
	}
	if used := m.Load(ctx).CurrentUsage; used != 24+callers {
		t.Errorf("expected usage %d past the limit, got %d", 24+callers, used)
	}
}

func TestStrictReserveClosesRace(t *testing.T) {
	m, _, _, _ := setup(t, true)
	ctx := context.Background()
	m.Record(ctx, 24)

	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var got []*Reservation
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r, ok := m.Reserve(ctx, models.PriorityCritical, 1); ok {
				mu.Lock()
				got = append(got, r)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(got) != 1 {
		t.Fatalf("expected exactly one reservation, got %d", len(got))
	}
	if s := got[0].Commit(); s.CurrentUsage != 25 {
		t.Errorf("expected usage 25, got %d", s.CurrentUsage)
	}
}

func TestReservationRelease(t *testing.T) {
	m, _, _, _ := setup(t, true)
	ctx := context.Background()

	r, ok := m.Reserve(ctx, models.PriorityLow, 2)
	if !ok {
		t.Fatal("expected reservation")
	}
	if m.Load(ctx).CurrentUsage != 2 {
		t.Fatal("reservation should count immediately")
	}
	r.Release(ctx)
	r.Release(ctx)
	if used := m.Load(ctx).CurrentUsage; used != 0 {
		t.Errorf("expected usage 0 after release, got %d", used)
	}

	r, _ = m.Reserve(ctx, models.PriorityLow, 1)
	r.Commit()
	r.Release(ctx)
	if used := m.Load(ctx).CurrentUsage; used != 1 {
		t.Errorf("release after commit must be a no-op, got %d", used)
	}
}

func TestReleaseAfterRolloverIsNoop(t *testing.T) {
	m, _, _, c := setup(t, true)
	ctx := context.Background()

	r, _ := m.Reserve(ctx, models.PriorityLow, 1)
	c.Advance(24 * time.Hour)
	m.Record(ctx, 3)
	r.Release(ctx)
	if used := m.Load(ctx).CurrentUsage; used != 3 {
		t.Errorf("expected new period usage untouched, got %d", used)
	}
}
