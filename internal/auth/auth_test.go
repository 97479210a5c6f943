package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"momentum/internal/core"
)

func TestRequire(t *testing.T) {
	if _, err := Require(context.Background()); !errors.Is(err, core.ErrUnauthenticated) {
		t.Errorf("Require(empty) error = %v, want ErrUnauthenticated", err)
	}
	if _, err := Require(WithUser(context.Background(), "")); !errors.Is(err, core.ErrUnauthenticated) {
		t.Errorf("empty user id should not authenticate, got %v", err)
	}
	id, err := Require(WithUser(context.Background(), "alice"))
	if err != nil || id != "alice" {
		t.Errorf("Require = %q, %v", id, err)
	}
}

func TestStatic(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if id, ok := (Static{UserID: "owner"}).Authenticate(r); !ok || id != "owner" {
		t.Errorf("Static = %q, %v", id, ok)
	}
	if _, ok := (Static{}).Authenticate(r); ok {
		t.Error("empty Static should be anonymous")
	}
}

func TestJWT(t *testing.T) {
	j, err := NewJWT("s3cret", "momentum")
	if err != nil {
		t.Fatal(err)
	}
	token, err := j.Issue("alice", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	other, _ := NewJWT("other", "momentum")
	foreign, _ := other.Issue("mallory", time.Hour)

	wrongIssuer, _ := NewJWT("s3cret", "someone-else")
	misissued, _ := wrongIssuer.Issue("alice", time.Hour)

	expiredIssuer, _ := NewJWT("s3cret", "momentum")
	expiredIssuer.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	expired, _ := expiredIssuer.Issue("alice", time.Hour)

	tests := []struct {
		name   string
		header string
		wantID string
		wantOK bool
	}{
		{"valid", "Bearer " + token, "alice", true},
		{"lowercase scheme", "bearer " + token, "alice", true},
		{"missing", "", "", false},
		{"not bearer", "Basic abc", "", false},
		{"bad signature", "Bearer " + foreign, "", false},
		{"wrong issuer", "Bearer " + misissued, "", false},
		{"expired", "Bearer " + expired, "", false},
		{"garbage", "Bearer not.a.token", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			id, ok := j.Authenticate(r)
			if ok != tt.wantOK || id != tt.wantID {
				t.Errorf("Authenticate = %q, %v; want %q, %v", id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestNewJWTRequiresSecret(t *testing.T) {
	if _, err := NewJWT("", ""); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestMiddleware(t *testing.T) {
	var got string
	var ok bool
	h := Middleware(Static{UserID: "owner"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = CurrentUser(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !ok || got != "owner" {
		t.Errorf("CurrentUser = %q, %v", got, ok)
	}

	h = Middleware(Static{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = CurrentUser(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if ok {
		t.Error("anonymous request should carry no user")
	}
}
