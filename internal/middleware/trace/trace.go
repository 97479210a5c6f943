// Package trace stamps every request with an id and keeps request counters.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

type contextKey struct{}

// HeaderRequestID carries the id back to the client and accepts one from a
// trusted upstream.
const HeaderRequestID = "X-Request-ID"

type Middleware struct {
	totalRequests atomic.Int64
	failed        atomic.Int64
	totalMicros   atomic.Int64
	// TrustIncoming reuses a well-formed X-Request-ID from the request.
	TrustIncoming bool
}

// Metrics is a point-in-time copy of the counters.
type Metrics struct {
	TotalRequests       int64
	FailedRequests      int64
	AverageResponseTime time.Duration
}

func NewMiddleware() *Middleware {
	return &Middleware{}
}

// Middleware assigns the request id before next runs and records the outcome.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := ""
		if m.TrustIncoming {
			id = sanitizeID(r.Header.Get(HeaderRequestID))
		}
		if id == "" {
			id = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, id)
		r = r.WithContext(WithRequestID(r.Context(), id))

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		m.totalRequests.Add(1)
		m.totalMicros.Add(time.Since(start).Microseconds())
		if rw.statusCode >= 500 {
			m.failed.Add(1)
		}
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers work through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// sanitizeID accepts short ids made of safe characters only.
func sanitizeID(id string) string {
	if id == "" || len(id) > 64 {
		return ""
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return ""
		}
	}
	return id
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// GetRequestID returns the id assigned to the request in ctx, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// RequestID is GetRequestID for an *http.Request.
func RequestID(r *http.Request) string { return GetRequestID(r.Context()) }

func (m *Middleware) GetMetrics() Metrics {
	total := m.totalRequests.Load()
	out := Metrics{TotalRequests: total, FailedRequests: m.failed.Load()}
	if total > 0 {
		out.AverageResponseTime = time.Duration(m.totalMicros.Load()/total) * time.Microsecond
	}
	return out
}
