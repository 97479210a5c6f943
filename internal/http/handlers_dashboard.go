package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"momentum/internal/auth"
	"momentum/internal/cache"
	"momentum/internal/core"
	"momentum/internal/dashboard"
	"momentum/internal/render"
)

type dashboardJSON struct {
	Period      string                   `json:"period"`
	Days        int                      `json:"days"`
	Finance     dashboard.FinanceView    `json:"finance"`
	Debt        dashboard.DebtView       `json:"debt"`
	Motivation  dashboard.MotivationView `json:"motivation"`
	ActiveGoals []render.ListItem        `json:"active_goals"`
}

// handleDashboard returns every view for the caller in one response. The
// three views load concurrently.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	owner, err := auth.Require(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	period, err := parsePeriod(r, s.period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	win, days, err := s.window(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	out := dashboardJSON{Period: string(period), Days: days}
	var active []core.Goal
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Finance, err = cached(gctx, s.financeCache, cache.Key(owner, "finance", string(period)), func() (dashboard.FinanceView, error) {
			return s.services.Finance.View(gctx, period)
		})
		return err
	})
	g.Go(func() (err error) {
		out.Debt, err = cached(gctx, s.debtCache, cache.Key(owner, "debt", strconv.Itoa(days), dayStamp()), func() (dashboard.DebtView, error) {
			return s.services.Debt.View(gctx, win)
		})
		return err
	})
	g.Go(func() (err error) {
		out.Motivation, err = cached(gctx, s.motivationCache, cache.Key(owner, "motivation", strconv.Itoa(days), dayStamp()), func() (dashboard.MotivationView, error) {
			return s.services.Motivation.View(gctx, win)
		})
		return err
	})
	g.Go(func() (err error) {
		active, err = s.services.Goals.Active(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(w, r, err)
		return
	}
	out.ActiveGoals = dashboard.GoalItems(active)
	NewJSONResponse().Body(out).Write(w)
}

// handleLiveDashboard serves the snapshot kept current by the live
// controller. Only its owner can see it.
func (s *Server) handleLiveDashboard(w http.ResponseWriter, r *http.Request) {
	owner, err := auth.Require(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.live == nil || s.live.Owner != owner {
		writeError(w, r, core.ErrNotFound)
		return
	}
	NewJSONResponse().Body(s.live.Snapshot.View()).Write(w)
}
