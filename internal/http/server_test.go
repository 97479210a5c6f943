package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"momentum/internal/auth"
	"momentum/internal/core"
	"momentum/internal/dashboard"
	"momentum/internal/render"
	"momentum/internal/store"
)

func newTestServer(t *testing.T, provider auth.Provider, live *Live) *Server {
	t.Helper()
	st := store.NewMemory(store.Options{})
	t.Cleanup(func() { st.Close() })
	srv := NewServer(":0", Dependencies{
		Store:       st,
		Services:    dashboard.NewServices(st, dashboard.DefaultOptions()),
		Auth:        provider,
		Live:        live,
		CacheTTL:    time.Minute,
		CacheSize:   16,
		DisplayDays: 7,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func metric(ms []render.Metric, name string) string {
	for _, m := range ms {
		if m.Name == name {
			return m.Value
		}
	}
	return ""
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, auth.Static{UserID: "alice"}, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: missing X-Request-ID", path)
		}
	}

	rr := do(t, srv, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "momentum_http_requests_total") {
		t.Fatalf("metrics status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestFinanceFlow(t *testing.T) {
	srv := newTestServer(t, auth.Static{UserID: "alice"}, nil)

	for _, body := range []string{
		`{"type":"Income","amount":1000}`,
		`{"type":"Expense","amount":"400","description":"rent"}`,
		`{"type":"Savings_Deposit","amount":100}`,
	} {
		if rr := do(t, srv, http.MethodPost, "/api/finance/records", body); rr.Code != http.StatusCreated {
			t.Fatalf("create %s: status=%d body=%s", body, rr.Code, rr.Body.String())
		}
	}

	rr := do(t, srv, http.MethodGet, "/api/finance", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("finance status=%d", rr.Code)
	}
	var view dashboard.FinanceView
	decode(t, rr, &view)
	if got := metric(view.Metrics, "Net Income (Income - Expenses)"); got != "600.00" {
		t.Errorf("net income = %q, want 600.00", got)
	}

	// A write must invalidate the cached view.
	if rr := do(t, srv, http.MethodPost, "/api/finance/records", `{"type":"Expense","amount":100}`); rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d", rr.Code)
	}
	decode(t, do(t, srv, http.MethodGet, "/api/finance", ""), &view)
	if got := metric(view.Metrics, "Net Income (Income - Expenses)"); got != "500.00" {
		t.Errorf("net income after write = %q, want 500.00", got)
	}

	var list struct {
		Records []recordJSON `json:"records"`
	}
	decode(t, do(t, srv, http.MethodGet, "/api/finance/records?period=year", ""), &list)
	if len(list.Records) != 4 {
		t.Fatalf("records = %d, want 4", len(list.Records))
	}
	id := list.Records[1].ID
	if rr := do(t, srv, http.MethodPatch, "/api/finance/records/"+id, `{"amount":"450.50"}`); rr.Code != http.StatusNoContent {
		t.Fatalf("edit status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := do(t, srv, http.MethodDelete, "/api/finance/records/"+id, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if rr := do(t, srv, http.MethodDelete, "/api/finance/records/"+id, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d, want 404", rr.Code)
	}
}

func TestValidationErrors(t *testing.T) {
	srv := newTestServer(t, auth.Static{UserID: "alice"}, nil)
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown kind", http.MethodPost, "/api/finance/records", `{"type":"Lottery","amount":1}`, http.StatusUnprocessableEntity},
		{"negative amount", http.MethodPost, "/api/finance/records", `{"type":"Expense","amount":-5}`, http.StatusUnprocessableEntity},
		{"non-numeric amount", http.MethodPost, "/api/finance/records", `{"type":"Expense","amount":"abc"}`, http.StatusUnprocessableEntity},
		{"malformed json", http.MethodPost, "/api/finance/records", `{"type":`, http.StatusBadRequest},
		{"array body", http.MethodPost, "/api/goals", `[1,2]`, http.StatusBadRequest},
		{"empty goal title", http.MethodPost, "/api/goals", `{"title":"  "}`, http.StatusUnprocessableEntity},
		{"unknown period", http.MethodGet, "/api/finance?period=fortnight", "", http.StatusUnprocessableEntity},
		{"bad days", http.MethodGet, "/api/debt?days=-1", "", http.StatusUnprocessableEntity},
		{"repay before init", http.MethodPost, "/api/debt/repayments", `{"amount":10}`, http.StatusConflict},
		{"goal not found", http.MethodGet, "/api/goals/missing", "", http.StatusNotFound},
		{"empty goal update", http.MethodPatch, "/api/goals/missing", `{}`, http.StatusBadRequest},
		{"wrong method", http.MethodPut, "/api/finance/records", `{}`, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.path, tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status=%d, want %d (body=%s)", rr.Code, tt.want, rr.Body.String())
			}
			if tt.want != http.StatusMethodNotAllowed {
				var e errorBody
				decode(t, rr, &e)
				if e.Error == "" || e.RequestID == "" {
					t.Errorf("error body = %+v", e)
				}
			}
		})
	}
}

func TestUnauthenticated(t *testing.T) {
	srv := newTestServer(t, auth.Static{}, nil)
	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/finance", ""},
		{http.MethodGet, "/api/dashboard", ""},
		{http.MethodPost, "/api/goals", `{"title":"Run"}`},
		{http.MethodPost, "/api/finance/records", `{"type":"Income","amount":"abc"}`},
		{http.MethodPut, "/api/settings", `{not json`},
		{http.MethodPost, "/api/debt/repayments", `{"amount":-5}`},
		{http.MethodPatch, "/api/goals/g1", `{}`},
	} {
		rr := do(t, srv, tc.method, tc.path, tc.body)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status=%d, want 401", tc.method, tc.path, rr.Code)
		}
		if rr.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Errorf("%s %s: missing WWW-Authenticate", tc.method, tc.path)
		}
	}
	if rr := do(t, srv, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Errorf("healthz should not need auth, got %d", rr.Code)
	}
}

func TestJWTSeparatesOwners(t *testing.T) {
	j, err := auth.NewJWT(strings.Repeat("s", 32), "momentum")
	if err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, j, nil)
	token := func(user string) string {
		tok, err := j.Issue(user, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		return "Bearer " + tok
	}
	call := func(user, method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", token(user))
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, req)
		return rr
	}

	rr := call("alice", http.MethodPost, "/api/goals", `{"title":"Run"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create goal status=%d", rr.Code)
	}
	var goal goalJSON
	decode(t, rr, &goal)

	if rr := call("bob", http.MethodGet, "/api/goals/"+goal.ID, ""); rr.Code != http.StatusNotFound {
		t.Errorf("bob reading alice's goal: status=%d, want 404", rr.Code)
	}
	var list struct {
		Goals []goalJSON `json:"goals"`
	}
	decode(t, call("bob", http.MethodGet, "/api/goals", ""), &list)
	if len(list.Goals) != 0 {
		t.Errorf("bob sees %d goals", len(list.Goals))
	}
}

func TestDebtFlow(t *testing.T) {
	srv := newTestServer(t, auth.Static{UserID: "alice"}, nil)

	var status struct {
		Configured bool `json:"configured"`
	}
	decode(t, do(t, srv, http.MethodGet, "/api/debt/status", ""), &status)
	if status.Configured {
		t.Fatal("debt configured before init")
	}

	if rr := do(t, srv, http.MethodPut, "/api/debt", `{"initialDebt":1000}`); rr.Code != http.StatusNoContent {
		t.Fatalf("init status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr := do(t, srv, http.MethodPost, "/api/debt/repayments", `{"amount":1200}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("repay status=%d", rr.Code)
	}
	var repaid struct {
		RemainingDebt decimal.Decimal `json:"remainingDebt"`
	}
	decode(t, rr, &repaid)
	if !repaid.RemainingDebt.IsZero() {
		t.Errorf("remaining = %q, want clamped to 0", repaid.RemainingDebt)
	}

	var view dashboard.DebtView
	decode(t, do(t, srv, http.MethodGet, "/api/debt?days=3", ""), &view)
	if !view.Configured || metric(view.Metrics, "Repaid") != "100.0%" {
		t.Errorf("debt view = %+v", view.Metrics)
	}
	if len(view.Chart.Labels) != 3 {
		t.Errorf("chart labels = %v, want 3 days", view.Chart.Labels)
	}

	var log struct {
		Repayments []repaymentJSON `json:"repayments"`
	}
	decode(t, do(t, srv, http.MethodGet, "/api/debt/repayments", ""), &log)
	if len(log.Repayments) != 2 {
		t.Errorf("repayments = %d, want 2", len(log.Repayments))
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	srv := newTestServer(t, auth.Static{UserID: "alice"}, nil)
	var got struct {
		Settings *settingsJSON `json:"settings"`
	}
	decode(t, do(t, srv, http.MethodGet, "/api/settings", ""), &got)
	if got.Settings != nil {
		t.Fatalf("settings before put = %+v", got.Settings)
	}
	if rr := do(t, srv, http.MethodPut, "/api/settings", `{"fixedSalary":2000,"fixedDebt":0,"fixedSavings":"150,5"}`); rr.Code != http.StatusNoContent {
		t.Fatalf("put status=%d body=%s", rr.Code, rr.Body.String())
	}
	decode(t, do(t, srv, http.MethodGet, "/api/settings", ""), &got)
	if got.Settings == nil || got.Settings.FixedSavings.String() != "150.5" {
		t.Errorf("settings = %+v", got.Settings)
	}
	if rr := do(t, srv, http.MethodPut, "/api/settings", `{"fixedSalary":2000}`); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("partial settings status=%d, want 422", rr.Code)
	}
}

func TestGoalsAndMotivationFlow(t *testing.T) {
	srv := newTestServer(t, auth.Static{UserID: "alice"}, nil)

	var goal goalJSON
	decode(t, do(t, srv, http.MethodPost, "/api/goals", `{"title":"Run"}`), &goal)
	if goal.Status != string(core.GoalInProgress) {
		t.Fatalf("new goal = %+v", goal)
	}

	rr := do(t, srv, http.MethodPut, "/api/goals/"+goal.ID+"/subgoals", `{"subgoals":[{"text":"5k"},{"text":"10k","status":"done"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("subgoals status=%d body=%s", rr.Code, rr.Body.String())
	}
	decode(t, rr, &goal)
	if len(goal.Subgoals) != 2 || goal.Subgoals[0].ID == "" {
		t.Errorf("subgoals = %+v", goal.Subgoals)
	}

	if rr := do(t, srv, http.MethodPost, "/api/motivation/logs", `{"goalId":"`+goal.ID+`","score":3,"notes":"felt good"}`); rr.Code != http.StatusCreated {
		t.Fatalf("log status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := do(t, srv, http.MethodPost, "/api/motivation/logs", `{"goalId":"`+goal.ID+`","score":-1}`); rr.Code != http.StatusCreated {
		t.Fatalf("log status=%d", rr.Code)
	}

	var mv dashboard.MotivationView
	decode(t, do(t, srv, http.MethodGet, "/api/motivation", ""), &mv)
	if mv.TotalScore != 2 || len(mv.Activity) != 2 {
		t.Errorf("motivation = %d, %d items", mv.TotalScore, len(mv.Activity))
	}

	rr = do(t, srv, http.MethodPatch, "/api/goals/"+goal.ID, `{"status":"failed"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status update=%d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/api/motivation/logs", `{"goalId":"`+goal.ID+`","score":1}`); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("log on failed goal status=%d, want 422", rr.Code)
	}
	if rr := do(t, srv, http.MethodPatch, "/api/goals/"+goal.ID, `{"status":"paused"}`); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid status=%d, want 422", rr.Code)
	}

	if rr := do(t, srv, http.MethodDelete, "/api/goals/"+goal.ID, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete goal status=%d", rr.Code)
	}
	var logs struct {
		Logs []motivationLogJSON `json:"logs"`
	}
	decode(t, do(t, srv, http.MethodGet, "/api/motivation/logs", ""), &logs)
	if len(logs.Logs) != 2 {
		t.Fatalf("logs after goal delete = %d, want 2", len(logs.Logs))
	}
	if rr := do(t, srv, http.MethodDelete, "/api/motivation/logs/"+logs.Logs[0].ID, ""); rr.Code != http.StatusNoContent {
		t.Errorf("delete log status=%d", rr.Code)
	}
}

func TestDashboardCombined(t *testing.T) {
	srv := newTestServer(t, auth.Static{UserID: "alice"}, nil)
	do(t, srv, http.MethodPost, "/api/finance/records", `{"type":"Income","amount":50}`)
	do(t, srv, http.MethodPost, "/api/goals", `{"title":"Read"}`)

	rr := do(t, srv, http.MethodGet, "/api/dashboard?days=5&period=week", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard status=%d body=%s", rr.Code, rr.Body.String())
	}
	var d dashboardJSON
	decode(t, rr, &d)
	if d.Period != "week" || d.Days != 5 {
		t.Errorf("period/days = %s/%d", d.Period, d.Days)
	}
	if metric(d.Finance.Metrics, "Total Income") != "50.00" {
		t.Errorf("finance metrics = %+v", d.Finance.Metrics)
	}
	if d.Debt.Configured {
		t.Error("debt should not be configured")
	}
	if len(d.ActiveGoals) != 1 || d.ActiveGoals[0].Title != "Read" {
		t.Errorf("active goals = %+v", d.ActiveGoals)
	}
	if len(d.Motivation.Score.Labels) != 5 {
		t.Errorf("score labels = %v", d.Motivation.Score.Labels)
	}
}

func TestLiveDashboardOwnerOnly(t *testing.T) {
	snap := render.NewSnapshot()
	_ = snap.RenderMetrics(context.Background(), dashboard.SectionFinance, []render.Metric{{Name: "Total Income", Value: "1.00"}})
	live := &Live{Owner: "alice", Snapshot: snap}

	srv := newTestServer(t, auth.Static{UserID: "alice"}, live)
	rr := do(t, srv, http.MethodGet, "/api/dashboard/live", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("live status=%d", rr.Code)
	}
	var v render.View
	decode(t, rr, &v)
	if metric(v.Metrics[dashboard.SectionFinance], "Total Income") != "1.00" {
		t.Errorf("live view = %+v", v.Metrics)
	}

	other := newTestServer(t, auth.Static{UserID: "bob"}, live)
	if rr := do(t, other, http.MethodGet, "/api/dashboard/live", ""); rr.Code != http.StatusNotFound {
		t.Errorf("other owner status=%d, want 404", rr.Code)
	}
}

func TestSecurityHeadersAndBlockedMethods(t *testing.T) {
	srv := newTestServer(t, auth.Static{UserID: "alice"}, nil)
	rr := do(t, srv, http.MethodGet, "/healthz", "")
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("missing nosniff header")
	}
	if rr := do(t, srv, "TRACE", "/healthz", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("TRACE status=%d, want 405", rr.Code)
	}
}

func TestWriteRateLimit(t *testing.T) {
	st := store.NewMemory(store.Options{})
	t.Cleanup(func() { st.Close() })
	srv := NewServer(":0", Dependencies{
		Store:           st,
		Services:        dashboard.NewServices(st, dashboard.DefaultOptions()),
		Auth:            auth.Static{UserID: "alice"},
		WritesPerMinute: 2,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	for i := 0; i < 2; i++ {
		if rr := do(t, srv, http.MethodPost, "/api/goals", `{"title":"g"}`); rr.Code != http.StatusCreated {
			t.Fatalf("write %d status=%d", i, rr.Code)
		}
	}
	rr := do(t, srv, http.MethodPost, "/api/goals", `{"title":"g"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third write status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if rr := do(t, srv, http.MethodGet, "/api/goals", ""); rr.Code != http.StatusOK {
		t.Errorf("reads are not limited, got %d", rr.Code)
	}
}

func TestCreateRecordLogsOnce(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	srv := newTestServer(t, auth.Static{UserID: "alice"}, nil)
	rr := do(t, srv, http.MethodPost, "/api/finance/records", `{"type":"Income","amount":"10"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	out := buf.String()
	if n := strings.Count(out, `msg="Record created"`); n != 1 {
		t.Errorf("Record created logged %d times:\n%s", n, out)
	}
	if !strings.Contains(out, "component=finance") {
		t.Errorf("record log missing finance component:\n%s", out)
	}
}
