package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"momentum/internal/core"
	"momentum/internal/store"
)

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

var probeQuery = store.Query{Collection: core.CollectionSettings, Limit: 1}

// handleReady checks the store answers a query.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]any{}

	if s.store == nil {
		checks["store"] = "not_configured"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else if _, err := s.store.GetOnce(ctx, probeQuery); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	checks["cache"] = map[string]int{
		"finance_entries":    s.financeCache.Size(),
		"debt_entries":       s.debtCache.Size(),
		"motivation_entries": s.motivationCache.Size(),
	}
	checks["rate_limiter"] = map[string]int{"active_clients": s.limiter.ActiveClients()}
	if s.live != nil {
		checks["live_dashboard"] = map[string]any{"owner": s.live.Owner, "updated_at": s.live.Snapshot.View().UpdatedAt}
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics exposes counters in plain text.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	tm := s.tracer.GetMetrics()
	rm := s.limiter.GetMetrics()
	sm := s.detector.GetMetrics()

	var b strings.Builder
	line := func(name string, v any) { fmt.Fprintf(&b, "%s %v\n", name, v) }
	line("momentum_uptime_seconds", int64(time.Since(s.started).Seconds()))
	line("momentum_http_requests_total", tm.TotalRequests)
	line("momentum_http_requests_failed_total", tm.FailedRequests)
	line("momentum_http_response_time_avg_microseconds", tm.AverageResponseTime.Microseconds())
	line("momentum_rate_limit_hits_total", rm.TotalHits)
	line("momentum_rate_limit_clients", rm.ClientCount)
	line("momentum_security_suspicious_requests_total", sm.SuspiciousRequests)
	line("momentum_security_blocked_requests_total", sm.BlockedRequests)
	line("momentum_cache_finance_entries", s.financeCache.Size())
	line("momentum_cache_debt_entries", s.debtCache.Size())
	line("momentum_cache_motivation_entries", s.motivationCache.Size())

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}
