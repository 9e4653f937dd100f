// Package auth resolves the dashboard user behind an HTTP request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/deplai/deplai-connector/internal/config"
	"github.com/golang-jwt/jwt/v4"
)

// ErrUnauthenticated means the request carries no valid session.
var ErrUnauthenticated = errors.New("unauthenticated")

// User is the authenticated dashboard user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Resolver maps a request to its session user.
type Resolver interface {
	Resolve(r *http.Request) (*User, error)
}

type sessionClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// CookieSessions validates HS256 session tokens shared with the dashboard.
// The token is read from the session cookie, or from an
// "Authorization: Bearer" header for CLI clients.
type CookieSessions struct {
	secret []byte
	cookie string
}

// NewCookieSessions returns a resolver for cfg. With an empty secret every
// request is unauthenticated.
func NewCookieSessions(cfg config.AuthConfig) *CookieSessions {
	name := cfg.CookieName
	if name == "" {
		name = "deplai_session"
	}
	return &CookieSessions{secret: []byte(cfg.SessionSecret), cookie: name}
}

// CookieName is the cookie the token is read from.
func (s *CookieSessions) CookieName() string { return s.cookie }

func (s *CookieSessions) Resolve(r *http.Request) (*User, error) {
	if len(s.secret) == 0 {
		return nil, ErrUnauthenticated
	}
	raw := bearerToken(r)
	if raw == "" {
		if c, err := r.Cookie(s.cookie); err == nil {
			raw = c.Value
		}
	}
	if raw == "" {
		return nil, ErrUnauthenticated
	}

	var claims sessionClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return &User{ID: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

// IssueToken signs a session token for u valid for ttl.
func (s *CookieSessions) IssueToken(u User, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("auth.session_secret is not set")
	}
	if u.ID == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now()
	claims := sessionClaims{
		Email: u.Email,
		Name:  u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

type ctxKey struct{}

// WithUser stores u in ctx.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the user stored by WithUser, or nil.
func UserFrom(ctx context.Context) *User {
	u, _ := ctx.Value(ctxKey{}).(*User)
	return u
}
