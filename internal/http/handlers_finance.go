package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"momentum/internal/auth"
	"momentum/internal/cache"
	"momentum/internal/dashboard"
)

func (s *Server) handleFinanceView(w http.ResponseWriter, r *http.Request) {
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
	view, err := cached(r.Context(), s.financeCache, cache.Key(owner, "finance", string(period)), func() (dashboard.FinanceView, error) {
		return s.services.Finance.View(r.Context(), period)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(view).Write(w)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r, s.period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := s.services.Finance.Records(r.Context(), period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"period": period, "records": toRecords(records)}).Write(w)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
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
	id, err := s.services.Finance.Add(r.Context(), p.Get("type"), amount, p.Get("description"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	owner, _ := auth.CurrentUser(r.Context())
	s.invalidate(r.Context(), owner)
	NewJSONResponse().Status(http.StatusCreated).Location("/api/finance/records/" + id).Body(idJSON{ID: id}).Write(w)
}

func (s *Server) handleEditRecord(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, r, err)
		return
	}
	var change dashboard.RecordChange
	amount, err := p.OptionalAmount("amount")
	if err != nil {
		writeError(w, r, err)
		return
	}
	change.Amount = amount
	if p.Has("description") {
		d := p.Get("description")
		change.Description = &d
	}
	if err := s.services.Finance.Edit(r.Context(), r.PathValue("id"), change); err != nil {
		writeError(w, r, err)
		return
	}
	owner, _ := auth.CurrentUser(r.Context())
	s.invalidate(r.Context(), owner)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Finance.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	owner, _ := auth.CurrentUser(r.Context())
	s.invalidate(r.Context(), owner)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.services.Finance.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"settings": toSettings(settings)}).Write(w)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, r, err)
		return
	}
	var values [3]decimal.Decimal
	for i, key := range []string{"fixedSalary", "fixedDebt", "fixedSavings"} {
		d, err := p.Amount(key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		values[i] = d
	}
	if err := s.services.Finance.PutSettings(r.Context(), values[0], values[1], values[2]); err != nil {
		writeError(w, r, err)
		return
	}
	owner, _ := auth.CurrentUser(r.Context())
	s.invalidate(r.Context(), owner)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
