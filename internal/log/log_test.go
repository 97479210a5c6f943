package log

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentDashboard, Output: &buf})
	l.Info("rendered", FieldChartID, "score")
	l.WithComponent(ComponentRender).Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "component=dashboard") || !strings.Contains(out, "chart_id=score") {
		t.Errorf("log line = %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug entry written at info level: %q", out)
	}
}

func TestFieldsBuilder(t *testing.T) {
	f := NewFields().WithOwner("u1").WithDocument("goals", "").WithError(nil).WithError(errors.New("boom"))
	if f[FieldOwner] != "u1" || f[FieldCollection] != "goals" || f[FieldError] != "boom" {
		t.Errorf("fields = %v", f)
	}
	if _, ok := f[FieldDocumentID]; ok {
		t.Error("empty document id should be omitted")
	}
	if len(f.ToSlice()) != 2*len(f) {
		t.Errorf("ToSlice length = %d", len(f.ToSlice()))
	}
}

func TestAccessLogLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Output: &buf})
	h := Middleware(l)(AccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/goals/x", nil))

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "status_code=404") {
		t.Errorf("access log = %q", out)
	}
}
