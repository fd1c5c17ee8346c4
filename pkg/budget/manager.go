package budget

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pario-ai/quotaguard/pkg/models"
)

// Store persists the single shared budget record.
type Store interface {
	// Load returns the stored state. found is false when nothing has been
	// saved yet.
	Load(ctx context.Context) (state models.BudgetState, found bool, err error)
	Save(ctx context.Context, state models.BudgetState) error
}

// AuditLog receives admin actions.
type AuditLog interface {
	Log(ctx context.Context, a models.AdminAction) error
}

// Dispatcher runs best-effort side effects off the request path.
type Dispatcher interface {
	Go(name string, fn func(ctx context.Context) error)
}

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	DefaultLimit int
	Bounds       Bounds
	Thresholds   Thresholds
	// Strict serializes admission and usage recording inside this process.
	Strict     bool
	Audit      AuditLog
	Dispatcher Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time
}

// Manager owns the load, transform, persist cycle of the budget state.
// When the store fails it keeps serving from the last state it knew, or a
// fresh default, and reports itself as degraded.
type Manager struct {
	store      Store
	bounds     Bounds
	defLimit   int
	strict     bool
	audit      AuditLog
	dispatcher Dispatcher
	log        *zap.Logger
	now        func() time.Time
	thresholds atomic.Pointer[Thresholds]

	// writeMu orders read-modify-write cycles issued by this process.
	writeMu sync.Mutex

	mu       sync.Mutex
	last     models.BudgetState
	haveLast bool
	degraded bool
}

// NewManager creates a Manager over store.
func NewManager(store Store, opts Options) *Manager {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}
	if opts.Bounds == (Bounds{}) {
		opts.Bounds = DefaultBounds()
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Manager{
		store:      store,
		bounds:     opts.Bounds,
		defLimit:   opts.DefaultLimit,
		strict:     opts.Strict,
		audit:      opts.Audit,
		dispatcher: opts.Dispatcher,
		log:        opts.Logger,
		now:        opts.Now,
	}
	t := opts.Thresholds
	m.thresholds.Store(&t)
	return m
}

// Strict reports whether admission and recording are serialized.
func (m *Manager) Strict() bool { return m.strict }

// Thresholds returns the thresholds currently in force.
func (m *Manager) Thresholds() Thresholds { return *m.thresholds.Load() }

// SetThresholds swaps the thresholds used by later admissions.
func (m *Manager) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	m.thresholds.Store(&t)
	return nil
}

// Bounds returns the admin limit bounds.
func (m *Manager) Bounds() Bounds { return m.bounds }

// Degraded reports whether the last store interaction failed.
func (m *Manager) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

// Load returns the current state with rollover applied. A missing record is
// initialised and persisted first.
func (m *Manager) Load(ctx context.Context) models.BudgetState {
	now := m.now()
	st, found, err := m.store.Load(ctx)
	if err != nil {
		m.degrade("load", err)
		return m.fallback(now)
	}
	if !found {
		st = NewState(m.defLimit, now)
		m.persist(ctx, st)
		return st
	}
	st, rolled := rollover(st, now)
	if rolled {
		m.log.Info("budget rolled over", zap.Time("reset_at", st.ResetAt))
		m.persist(ctx, st)
		return st
	}
	m.remember(st, false)
	return st
}

// Stats returns the dashboard view of the current state.
func (m *Manager) Stats(ctx context.Context) models.UsageStats {
	st := m.Load(ctx)
	stats := models.StatsFor(st)
	stats.Degraded = m.Degraded()
	return stats
}

// Admit loads the state and decides whether p may spend quota. It does not
// reserve anything: concurrent callers that read the same state can all be
// admitted, and the last save wins.
func (m *Manager) Admit(ctx context.Context, p models.Priority) bool {
	st := m.Load(ctx)
	ok := Admit(st, p, m.Thresholds(), m.now())
	if !ok {
		m.log.Warn("budget denied",
			zap.String("priority", string(p)),
			zap.Int("used", st.CurrentUsage),
			zap.Int("limit", st.DailyLimit),
		)
	}
	return ok
}

// Record adds cost to the usage and persists it before returning.
func (m *Manager) Record(ctx context.Context, cost int) models.BudgetState {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	st := RecordUsage(m.Load(ctx), cost)
	m.persist(ctx, st)
	return st
}

// SetLimit changes the daily limit on behalf of actorID. Out-of-range values
// return a *ValidationError and leave the state untouched.
func (m *Manager) SetLimit(ctx context.Context, limit int, actorID string) (models.BudgetState, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	before := m.Load(ctx)
	after, err := SetLimit(before, limit, m.bounds)
	if err != nil {
		return before, err
	}
	m.persist(ctx, after)
	m.logAction(models.ActionLimitChange, actorID,
		strconv.Itoa(before.DailyLimit), strconv.Itoa(after.DailyLimit))
	return after, nil
}

// SetOverride switches the admin override on behalf of actorID.
func (m *Manager) SetOverride(ctx context.Context, enabled bool, actorID string) models.BudgetState {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	before := m.Load(ctx)
	after := SetOverride(before, enabled)
	m.persist(ctx, after)
	m.logAction(models.ActionOverrideToggle, actorID,
		strconv.FormatBool(before.AdminOverride), strconv.FormatBool(after.AdminOverride))
	return after
}

// Reservation is quota taken ahead of a remote call in strict mode.
type Reservation struct {
	m       *Manager
	cost    int
	resetAt time.Time
	state   models.BudgetState
	done    atomic.Bool
}

// State is the budget right after the reservation was taken.
func (r *Reservation) State() models.BudgetState { return r.state }

// Commit keeps the reserved usage.
func (r *Reservation) Commit() models.BudgetState {
	r.done.Store(true)
	return r.state
}

// Release gives the reserved usage back. It is a no-op after Commit, after a
// previous Release, or once the budget has rolled over.
func (r *Reservation) Release(ctx context.Context) {
	if !r.done.CompareAndSwap(false, true) {
		return
	}
	m := r.m
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	st := m.Load(ctx)
	if !st.ResetAt.Equal(r.resetAt) {
		return
	}
	st.CurrentUsage -= r.cost
	if st.CurrentUsage < 0 {
		st.CurrentUsage = 0
	}
	m.persist(ctx, st)
}

// Reserve admits p and records cost in one step while holding the write
// lock, so two callers in this process cannot both take the last slot.
// Other processes sharing the store are not excluded.
func (m *Manager) Reserve(ctx context.Context, p models.Priority, cost int) (*Reservation, bool) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	st := m.Load(ctx)
	if !Admit(st, p, m.Thresholds(), m.now()) {
		m.log.Warn("budget denied",
			zap.String("priority", string(p)),
			zap.Int("used", st.CurrentUsage),
			zap.Int("limit", st.DailyLimit),
		)
		return nil, false
	}
	st = RecordUsage(st, cost)
	m.persist(ctx, st)
	return &Reservation{m: m, cost: cost, resetAt: st.ResetAt, state: st}, true
}

// persist saves st and makes it the in-process authority. A failed save is
// logged and the manager keeps serving st from memory.
func (m *Manager) persist(ctx context.Context, st models.BudgetState) {
	if err := m.store.Save(ctx, st); err != nil {
		m.degrade("save", err)
		m.remember(st, true)
		return
	}
	m.remember(st, false)
}

func (m *Manager) remember(st models.BudgetState, degraded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.degraded && !degraded {
		m.log.Info("budget store recovered")
	}
	m.last = st
	m.haveLast = true
	m.degraded = degraded
}

func (m *Manager) fallback(now time.Time) models.BudgetState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.haveLast {
		m.last = NewState(m.defLimit, now)
		m.haveLast = true
	}
	m.last = RolloverIfDue(m.last, now)
	m.degraded = true
	return m.last
}

func (m *Manager) degrade(op string, err error) {
	m.log.Warn("budget store unavailable, using in-memory budget",
		zap.String("op", op),
		zap.Error(err),
	)
}

func (m *Manager) logAction(action models.AdminActionType, actorID, before, after string) {
	if m.audit == nil {
		return
	}
	entry := models.AdminAction{
		ID:        uuid.NewString(),
		Action:    action,
		ActorID:   actorID,
		Before:    before,
		After:     after,
		CreatedAt: m.now().UTC(),
	}
	write := func(ctx context.Context) error { return m.audit.Log(ctx, entry) }
	if m.dispatcher == nil {
		if err := write(context.Background()); err != nil {
			m.log.Error("audit admin action", zap.String("action", string(action)), zap.Error(err))
		}
		return
	}
	m.dispatcher.Go("audit", write)
}
