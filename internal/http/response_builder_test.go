package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"momentum/internal/bucket"
	"momentum/internal/core"
	"momentum/internal/dashboard"
)

func TestResponseBuilder_Body(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Location("/api/goals/g1").
		Header("X-Custom", "v").
		Body(idJSON{ID: "g1"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status = %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if w.Header().Get("Location") != "/api/goals/g1" || w.Header().Get("X-Custom") != "v" {
		t.Errorf("headers = %v", w.Header())
	}
	var got idJSON
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got.ID != "g1" {
		t.Errorf("body = %s (%v)", w.Body.String(), err)
	}
}

func TestResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("got %d with %q", w.Code, w.Body.String())
	}
	if w.Header().Get("Content-Type") != "" {
		t.Error("Content-Type set on empty body")
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		builder *ResponseBuilder
		status  int
		message string
	}{
		{"bad request", BadRequestError("bad"), http.StatusBadRequest, "bad"},
		{"unauthorized", UnauthorizedError(), http.StatusUnauthorized, "authentication required"},
		{"not found", NotFoundError("nope"), http.StatusNotFound, "nope"},
		{"unprocessable", UnprocessableEntityError("invalid"), http.StatusUnprocessableEntity, "invalid"},
		{"internal", InternalServerError(), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.WithRequestID("req_1").Write(w)
			if w.Code != tt.status {
				t.Errorf("Status = %d, want %d", w.Code, tt.status)
			}
			var body errorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Error != tt.message || body.RequestID != "req_1" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestWithRequestIDIgnoresNonErrorBodies(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Body(idJSON{ID: "x"}).WithRequestID("req_1").Write(w)
	if w.Body.String() != "{\"id\":\"x\"}\n" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrUnauthenticated, http.StatusUnauthorized},
		{fmt.Errorf("goal g1: %w", core.ErrNotFound), http.StatusNotFound},
		{core.ErrNotConfigured, http.StatusConflict},
		{fmt.Errorf("%w: eof", errMalformedBody), http.StatusBadRequest},
		{fmt.Errorf("amount: %w", core.ErrInvalidAmount), http.StatusUnprocessableEntity},
		{dashboard.ErrUnknownKind, http.StatusUnprocessableEntity},
		{bucket.ErrUnknownGranularity, http.StatusUnprocessableEntity},
		{core.ErrTooLong, http.StatusUnprocessableEntity},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
