// Package auth resolves the current user. Everything downstream only needs
// "a user id, or none"; how that id is established is a Provider concern.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"momentum/internal/core"
)

type ctxKey struct{}

// WithUser returns a context carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// CurrentUser returns the authenticated user in ctx, if any.
func CurrentUser(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Require returns the current user or core.ErrUnauthenticated.
func Require(ctx context.Context) (string, error) {
	id, ok := CurrentUser(ctx)
	if !ok {
		return "", core.ErrUnauthenticated
	}
	return id, nil
}

// Provider authenticates an incoming request. ok=false means anonymous.
type Provider interface {
	Authenticate(r *http.Request) (userID string, ok bool)
}

// Static authenticates every request as the same user. It suits a
// single-owner, local deployment. An empty id authenticates nobody.
type Static struct {
	UserID string
}

func (s Static) Authenticate(*http.Request) (string, bool) {
	return s.UserID, s.UserID != ""
}

// Claims is the token payload. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// JWT authenticates HS256 bearer tokens.
type JWT struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWT(secret, issuer string) (*JWT, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWT{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue signs a token for userID valid for ttl (24h when ttl <= 0).
func (j *JWT) Issue(userID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := j.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// Parse validates a token and returns its subject.
func (j *JWT) Parse(tokenStr string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.Subject, nil
}

func (j *JWT) Authenticate(r *http.Request) (string, bool) {
	tokenStr := bearer(r)
	if tokenStr == "" {
		return "", false
	}
	id, err := j.Parse(tokenStr)
	if err != nil {
		return "", false
	}
	return id, true
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	parts := strings.SplitN(h, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Middleware attaches the authenticated user to the request context.
// Anonymous requests pass through; operations that need a user reject them.
func Middleware(p Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := p.Authenticate(r); ok {
				r = r.WithContext(WithUser(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
