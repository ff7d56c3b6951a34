package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of tokens issued without an explicit TTL.
const DefaultTokenTTL = 24 * time.Hour

const tokenIssuer = "taskgraph"

// Auth checks HS256 bearer tokens signed with a shared secret
type Auth struct {
	secret []byte
	now    func() time.Time
}

// NewAuth returns an Auth for secret, or nil when secret is empty so that
// the dashboard runs unauthenticated.
func NewAuth(secret string) *Auth {
	if secret == "" {
		return nil
	}
	return &Auth{secret: []byte(secret), now: time.Now}
}

// IssueToken creates a signed token for subject valid for ttl.
func (a *Auth) IssueToken(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a signed token.
func (a *Auth) Verify(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Middleware rejects requests without a valid token. The token is read from
// the Authorization header, the token query parameter or the session cookie.
// A valid query token is stored in the cookie so links between pages keep
// working in a browser.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, fromQuery, err := bearerToken(r)
		var claims *jwt.RegisteredClaims
		if err == nil {
			claims, err = a.Verify(raw)
		}
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="taskgraph"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if fromQuery {
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    raw,
				Path:     "/",
				Expires:  claims.ExpiresAt.Time,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r)
	})
}

const sessionCookie = "taskgraph_token"

var errNoToken = errors.New("missing bearer token")

// bearerToken extracts the token and reports whether it came from the query.
func bearerToken(r *http.Request) (string, bool, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", false, errNoToken
		}
		return strings.TrimSpace(token), false, nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true, nil
	}
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value, false, nil
	}
	return "", false, errNoToken
}
