// Package session carries the verified buyer identity across requests in a
// signed HttpOnly cookie. The cookie value is an HS256 JWT whose subject is
// the normalized email; the access gate trusts nothing else.
package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// DefaultCookieName is used when Config.CookieName is empty.
const DefaultCookieName = "loops_session"

const defaultTTL = 30 * 24 * time.Hour

var (
	ErrNoSecret     = errors.New("session: signing secret required")
	ErrInvalidToken = errors.New("session: invalid token")
)

// Config configures a Manager. Zero values get sensible defaults except
// Secret, which is mandatory.
type Config struct {
	Secret     []byte
	CookieName string
	TTL        time.Duration

	// Insecure drops the Secure cookie attribute for local development.
	Insecure bool
}

// Manager issues and verifies identity tokens and builds the cookies that
// carry them.
type Manager struct {
	secret     []byte
	cookieName string
	ttl        time.Duration
	secure     bool
}

// New creates a Manager from cfg.
func New(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrNoSecret
	}
	name := strings.TrimSpace(cfg.CookieName)
	if name == "" {
		name = DefaultCookieName
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Manager{secret: cfg.Secret, cookieName: name, ttl: ttl, secure: !cfg.Insecure}, nil
}

// CookieName returns the configured cookie name.
func (m *Manager) CookieName() string { return m.cookieName }

// Issue signs a token for identity, valid for the configured TTL.
func (m *Manager) Issue(identity string) (string, error) {
	if strings.TrimSpace(identity) == "" {
		return "", ErrInvalidToken
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   identity,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify checks the token signature and expiry and returns its identity.
func (m *Manager) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Cookie wraps a signed token in the session cookie (HttpOnly, SameSite=Lax,
// Secure unless configured for local dev).
func (m *Manager) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
