package http

import (
	"net/http"
	"strconv"
	"time"

	"momentum/internal/auth"
	"momentum/internal/cache"
	"momentum/internal/dashboard"
)

// window converts ?days= into the display window ending now.
func (s *Server) window(r *http.Request) (dashboard.Window, int, error) {
	days, err := parseDays(r, s.displayDays)
	if err != nil {
		return dashboard.Window{}, 0, err
	}
	return dashboard.LastDays(time.Now(), days), days, nil
}

func (s *Server) handleDebtView(w http.ResponseWriter, r *http.Request) {
	owner, err := auth.Require(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	win, days, err := s.window(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := cached(r.Context(), s.debtCache, cache.Key(owner, "debt", strconv.Itoa(days), dayStamp()), func() (dashboard.DebtView, error) {
		return s.services.Debt.View(r.Context(), win)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(view).Write(w)
}

func (s *Server) handleDebtStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.services.Debt.Status(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"configured": status != nil, "status": toDebtStatus(status)}).Write(w)
}

// handleInitialiseDebt resets the tracker to a new initial amount.
func (s *Server) handleInitialiseDebt(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, r, err)
		return
	}
	initial, err := p.Amount("initialDebt")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.services.Debt.Initialise(r.Context(), initial); err != nil {
		writeError(w, r, err)
		return
	}
	owner, _ := auth.CurrentUser(r.Context())
	s.invalidate(r.Context(), owner)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleListRepayments(w http.ResponseWriter, r *http.Request) {
	entries, err := s.services.Debt.Log(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"repayments": toRepayments(entries)}).Write(w)
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := p.Amount("amount")
	if err != nil {
		writeError(w, r, err)
		return
	}
	remaining, err := s.services.Debt.Repay(r.Context(), amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	owner, _ := auth.CurrentUser(r.Context())
	s.invalidate(r.Context(), owner)
	NewJSONResponse().Status(http.StatusCreated).Body(map[string]any{"remainingDebt": remaining}).Write(w)
}

// dayStamp keys windowed views by date so a cached view does not outlive
// the day its window ends on.
func dayStamp() string {
	return time.Now().Format(time.DateOnly)
}
