package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"momentum/internal/core"
	applog "momentum/internal/log"
	"momentum/internal/render"
	"momentum/internal/store"
)

// ControllerConfig configures a live dashboard.
type ControllerConfig struct {
	Options Options
	// DisplayDays clips the debt and motivation charts to the last n days.
	// Zero shows the full history.
	DisplayDays int
	// WindowCheck is how often the controller checks whether the rolling
	// finance period has moved and redraws if it has. Zero means a minute.
	WindowCheck time.Duration
}

// snapshot is the latest delivered state of every collection. Slices are
// replaced wholesale on delivery and never mutated.
type snapshot struct {
	records    []core.Record
	settings   *core.FixedSettings
	debt       *core.DebtStatus
	repayments []core.RepaymentLogEntry
	goals      []core.Goal
	logs       []core.MotivationLog
}

// Controller keeps one owner's dashboard rendered. It subscribes to every
// collection the dashboard reads and redraws all views through a chart
// registry whenever any of them changes. Bursts of changes coalesce into one
// redraw, and a redraw superseded by a newer one is discarded.
type Controller struct {
	store    store.Store
	finance  *Finance
	cfg      ControllerConfig
	registry *render.Registry
	now      func() time.Time
	log      *applog.Logger

	mu          sync.Mutex
	state       snapshot
	loaded      map[string]bool
	windowStart time.Time
	subs        []store.Subscription
	cancel      context.CancelFunc
	done        chan struct{}

	wake chan struct{}
}

func NewController(st store.Store, sink render.Renderer, cfg ControllerConfig) *Controller {
	cfg.Options = cfg.Options.withDefaults()
	if cfg.WindowCheck <= 0 {
		cfg.WindowCheck = time.Minute
	}
	return &Controller{
		store:    st,
		finance:  NewFinance(st, cfg.Options),
		cfg:      cfg,
		registry: render.NewRegistry(sink),
		now:      time.Now,
		log:      applog.Default(applog.ComponentDashboard),
		wake:     make(chan struct{}, 1),
	}
}

// Registry exposes the charts currently drawn.
func (c *Controller) Registry() *render.Registry { return c.registry }

// Start subscribes to owner's data and begins redrawing. The first draw
// happens once every collection has delivered its initial snapshot or failed
// to; a failed collection is drawn empty until it delivers.
func (c *Controller) Start(ctx context.Context, owner string) error {
	if owner == "" {
		return core.ErrUnauthenticated
	}
	if _, err := c.finance.windowStart(c.now(), c.cfg.Options.Period); err != nil {
		return err
	}
	// The period cut is applied on every refresh, so the subscription spans
	// the owner's full history.
	financeQuery := store.NewQuery(core.CollectionFinance).
		Owner(owner).
		Order(store.FieldTimestamp, store.Asc)

	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return errors.New("controller already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.loaded = make(map[string]bool)
	c.mu.Unlock()

	go c.run(runCtx)

	queries := []struct {
		q     store.Query
		apply func(*snapshot, []store.Document)
	}{
		{financeQuery, func(s *snapshot, d []store.Document) { s.records = RecordsFromDocuments(d) }},
		{store.NewQuery(core.CollectionSettings).Owner(owner), func(s *snapshot, d []store.Document) {
			s.settings = nil
			if len(d) > 0 {
				fs := core.SettingsFromFields(d[0].Fields)
				s.settings = &fs
			}
		}},
		{store.NewQuery(core.CollectionDebtStatus).Owner(owner), func(s *snapshot, d []store.Document) {
			s.debt = nil
			if len(d) > 0 {
				ds := core.DebtStatusFromFields(d[0].Fields)
				s.debt = &ds
			}
		}},
		{RepaymentQuery(owner), func(s *snapshot, d []store.Document) { s.repayments = RepaymentsFromDocuments(d) }},
		{GoalQuery(owner), func(s *snapshot, d []store.Document) { s.goals = GoalsFromDocuments(d) }},
		{MotivationQuery(owner), func(s *snapshot, d []store.Document) { s.logs = LogsFromDocuments(d) }},
	}
	for _, q := range queries {
		sub, err := c.store.Subscribe(runCtx, q.q, func(docs []store.Document, err error) {
			if err != nil {
				c.log.ErrorContext(runCtx, "Snapshot failed", applog.NewFields().
					WithOwner(owner).WithDocument(q.q.Collection, "").WithError(err).ToSlice()...)
				c.mu.Lock()
				first := !c.loaded[q.q.Collection]
				c.loaded[q.q.Collection] = true
				c.mu.Unlock()
				if first {
					// Draw the other views with this collection empty until it delivers.
					c.kick()
				}
				return
			}
			c.mu.Lock()
			q.apply(&c.state, docs)
			c.loaded[q.q.Collection] = true
			c.mu.Unlock()
			c.kick()
		})
		if err != nil {
			c.Stop()
			return fmt.Errorf("subscribe %s: %w", q.q.Collection, err)
		}
		c.mu.Lock()
		c.subs = append(c.subs, sub)
		c.mu.Unlock()
	}
	c.log.InfoContext(ctx, "Live dashboard started", applog.FieldOwner, owner, applog.FieldPeriod, string(c.cfg.Options.Period))
	return nil
}

const collectionCount = 6

func (c *Controller) kick() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.WindowCheck)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		case <-ticker.C:
			if !c.windowMoved() {
				continue
			}
		}
		c.mu.Lock()
		ready := len(c.loaded) == collectionCount
		c.mu.Unlock()
		if !ready {
			continue
		}
		if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
			c.log.ErrorContext(ctx, "Dashboard render failed", applog.FieldError, err)
		}
	}
}

// windowMoved reports whether the rolling finance period has moved since the
// last refresh.
func (c *Controller) windowMoved() bool {
	start, err := c.finance.windowStart(c.now(), c.cfg.Options.Period)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !start.Equal(c.windowStart)
}

// Refresh recomputes every view from the latest snapshots and draws them.
// A refresh overtaken by a newer one stops drawing and returns nil.
func (c *Controller) Refresh(ctx context.Context) error {
	frame := c.registry.Begin()
	now := c.now()
	start, err := c.finance.windowStart(now, c.cfg.Options.Period)
	if err != nil {
		return err
	}
	c.mu.Lock()
	st := c.state
	c.windowStart = start
	c.mu.Unlock()

	records := recordsSince(st.records, start.UnixMilli())
	window := LastDays(now, c.cfg.DisplayDays)
	var (
		fv FinanceView
		dv DebtView
		mv MotivationView
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		fv, err = ComputeFinance(records, st.settings, c.cfg.Options)
		return err
	})
	g.Go(func() error {
		dv = ComputeDebt(st.debt, st.repayments, window)
		return nil
	})
	g.Go(func() error {
		mv = ComputeMotivation(st.logs, st.goals, window)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	err = draw(ctx, frame, fv, dv, mv, ActiveGoals(st.goals))
	if errors.Is(err, render.ErrStale) {
		c.log.DebugContext(ctx, "Discarded stale render", applog.FieldGeneration, c.registry.Generation())
		return nil
	}
	return err
}

// recordsSince returns the records stamped at or after from. records is
// ordered by timestamp.
func recordsSince(records []core.Record, from int64) []core.Record {
	i := sort.Search(len(records), func(i int) bool { return records[i].Timestamp >= from })
	return records[i:]
}

func draw(ctx context.Context, f render.Frame, fv FinanceView, dv DebtView, mv MotivationView, active []core.Goal) error {
	if err := f.Metrics(ctx, SectionFinance, fv.Metrics); err != nil {
		return err
	}
	for _, ch := range fv.Charts {
		if err := f.Chart(ctx, ch); err != nil {
			return fmt.Errorf("chart %s: %w", ch.ID, err)
		}
	}
	if err := f.Metrics(ctx, SectionDebt, dv.Metrics); err != nil {
		return err
	}
	if err := f.Chart(ctx, dv.Chart); err != nil {
		return fmt.Errorf("chart %s: %w", dv.Chart.ID, err)
	}
	if err := f.Metrics(ctx, SectionMotivation, mv.Metrics); err != nil {
		return err
	}
	for _, ch := range []render.Chart{mv.Score, mv.GoalScores} {
		if err := f.Chart(ctx, ch); err != nil {
			return fmt.Errorf("chart %s: %w", ch.ID, err)
		}
	}
	if err := f.List(ctx, ListActivity, mv.Activity); err != nil {
		return err
	}
	if err := f.List(ctx, ListGoals, GoalItems(active)); err != nil {
		return err
	}
	return f.Commit(ctx)
}

// Stop cancels the subscriptions and waits for the render loop to exit.
func (c *Controller) Stop() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
	if cancel != nil {
		cancel()
		<-done
	}
}
