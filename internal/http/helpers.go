package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"momentum/internal/bucket"
	"momentum/internal/cache"
	"momentum/internal/core"
	"momentum/internal/dashboard"
	applog "momentum/internal/log"
	"momentum/internal/middleware/trace"
)

var validationErrors = []error{
	core.ErrInvalidAmount,
	core.ErrEmptyTitle,
	core.ErrEmptyKind,
	core.ErrInvalidStatus,
	core.ErrTooLong,
	core.ErrEmptyText,
	dashboard.ErrUnknownKind,
	bucket.ErrUnknownGranularity,
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrNotConfigured):
		return http.StatusConflict
	case errors.Is(err, errMalformedBody):
		return http.StatusBadRequest
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// writeError responds with the status for err. Server errors are logged and
// their detail kept from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	var resp *ResponseBuilder
	switch status {
	case http.StatusUnauthorized:
		resp = UnauthorizedError()
	case http.StatusInternalServerError:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.NewFields().WithOperation(r.Method+" "+r.Pattern).WithError(err).ToSlice()...)
		resp = InternalServerError()
	default:
		resp = ErrorResponse(status, err.Error())
	}
	resp.WithRequestID(trace.RequestID(r)).Write(w)
}

// parsePeriod reads ?period=, falling back to def.
func parsePeriod(r *http.Request, def bucket.Granularity) (bucket.Granularity, error) {
	v := strings.TrimSpace(r.URL.Query().Get("period"))
	if v == "" {
		return def, nil
	}
	return bucket.ParseGranularity(v)
}

// parseDays reads ?days=, falling back to def. Zero means full history.
func parseDays(r *http.Request, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("days"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 3660 {
		return 0, core.ErrInvalidAmount
	}
	return n, nil
}

// cached returns the entry for key, computing and storing it on a miss.
func cached[T any](ctx context.Context, c *cache.LRUCache[T], key string, load func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		applog.FromContext(ctx).DebugContext(ctx, "View cache hit", "key", strings.ReplaceAll(key, "\x00", "/"))
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}
