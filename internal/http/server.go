package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"momentum/internal/auth"
	"momentum/internal/bucket"
	"momentum/internal/cache"
	"momentum/internal/dashboard"
	applog "momentum/internal/log"
	"momentum/internal/middleware/ratelimit"
	"momentum/internal/middleware/security"
	"momentum/internal/middleware/trace"
	"momentum/internal/render"
	"momentum/internal/store"
)

// Live is a dashboard kept rendered by a dashboard.Controller for one owner.
type Live struct {
	Owner    string
	Snapshot *render.Snapshot
}

// Dependencies is what the server needs to run.
type Dependencies struct {
	Store    store.Store
	Services *dashboard.Services
	Auth     auth.Provider
	Logger   *applog.Logger

	// Live is optional.
	Live *Live

	CacheTTL    time.Duration
	CacheSize   int
	DisplayDays int
	// WritesPerMinute caps mutating requests per client; zero uses the default.
	WritesPerMinute int
}

type Server struct {
	http.Server

	store       store.Store
	services    *dashboard.Services
	live        *Live
	period      bucket.Granularity
	displayDays int
	started     time.Time
	log         *applog.Logger

	financeCache    *cache.LRUCache[dashboard.FinanceView]
	debtCache       *cache.LRUCache[dashboard.DebtView]
	motivationCache *cache.LRUCache[dashboard.MotivationView]
	cacheManager    *cache.Manager

	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.Default(applog.ComponentHTTP)
	}
	if deps.Auth == nil {
		deps.Auth = auth.Static{}
	}
	if deps.CacheSize <= 0 {
		deps.CacheSize = 256
	}

	s := &Server{
		store:           deps.Store,
		services:        deps.Services,
		live:            deps.Live,
		period:          deps.Services.Finance.Options().Period,
		displayDays:     deps.DisplayDays,
		started:         time.Now(),
		log:             deps.Logger,
		financeCache:    cache.NewLRUCache[dashboard.FinanceView](deps.CacheSize, deps.CacheTTL),
		debtCache:       cache.NewLRUCache[dashboard.DebtView](deps.CacheSize, deps.CacheTTL),
		motivationCache: cache.NewLRUCache[dashboard.MotivationView](deps.CacheSize, deps.CacheTTL),
		cacheManager:    cache.NewManager(),
		tracer:          trace.NewMiddleware(),
		limiter:         ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.WritesPerMinute}),
		detector:        security.NewDetector(),
	}
	s.cacheManager.Register(s.financeCache)
	s.cacheManager.Register(s.debtCache)
	s.cacheManager.Register(s.motivationCache)
	s.cacheManager.StartCleanup(context.Background(), 5*time.Minute)

	mux := http.NewServeMux()
	s.routes(mux)

	onLimit := func(w http.ResponseWriter, r *http.Request) {
		s.log.WarnContext(r.Context(), "Rate limit exceeded", applog.FieldClientIP, s.detector.ExtractClientIP(r))
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").WithRequestID(trace.RequestID(r)).Write(w)
	}

	var h http.Handler = mux
	h = auth.Middleware(deps.Auth)(h)
	h = s.limiter.Middleware(s.detector.ExtractClientIP, onLimit,
		http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete)(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = applog.AccessLog(h)
	h = applog.RequestIDMiddleware(trace.RequestID)(h)
	h = s.tracer.Middleware(h)
	h = applog.Middleware(deps.Logger)(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	api := func(pattern string, h http.HandlerFunc) { mux.Handle(pattern, requireUser(h)) }

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	api("GET /api/dashboard", s.handleDashboard)
	api("GET /api/dashboard/live", s.handleLiveDashboard)

	api("GET /api/finance", s.handleFinanceView)
	api("GET /api/finance/records", s.handleListRecords)
	api("POST /api/finance/records", s.handleCreateRecord)
	api("PATCH /api/finance/records/{id}", s.handleEditRecord)
	api("DELETE /api/finance/records/{id}", s.handleDeleteRecord)
	api("GET /api/settings", s.handleGetSettings)
	api("PUT /api/settings", s.handlePutSettings)

	api("GET /api/debt", s.handleDebtView)
	api("GET /api/debt/status", s.handleDebtStatus)
	api("PUT /api/debt", s.handleInitialiseDebt)
	api("GET /api/debt/repayments", s.handleListRepayments)
	api("POST /api/debt/repayments", s.handleRepay)

	api("GET /api/goals", s.handleListGoals)
	api("POST /api/goals", s.handleCreateGoal)
	api("GET /api/goals/{id}", s.handleGetGoal)
	api("PATCH /api/goals/{id}", s.handleUpdateGoal)
	api("PUT /api/goals/{id}/subgoals", s.handleReplaceSubgoals)
	api("DELETE /api/goals/{id}", s.handleDeleteGoal)

	api("GET /api/motivation", s.handleMotivationView)
	api("GET /api/motivation/logs", s.handleListLogs)
	api("POST /api/motivation/logs", s.handleCreateLog)
	api("DELETE /api/motivation/logs/{id}", s.handleDeleteLog)
}

// requireUser rejects requests without a current user before the handler
// reads the body.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.Require(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// invalidate drops every cached view of owner after a write.
func (s *Server) invalidate(ctx context.Context, owner string) {
	prefix := cache.OwnerPrefix(owner)
	n := s.financeCache.DeletePrefix(prefix) + s.debtCache.DeletePrefix(prefix) + s.motivationCache.DeletePrefix(prefix)
	if n > 0 {
		s.log.DebugContext(ctx, "Invalidated cached views", applog.FieldOwner, owner, "entries", n)
	}
}

// Shutdown stops background work and then the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
