package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// TokenAuth validates a static bearer token for the admin API. The plaintext
// token is hashed once at construction so only the bcrypt digest stays in
// memory.
type TokenAuth struct {
	hash    []byte
	limiter *IPRateLimiter
}

// NewTokenAuth creates a TokenAuth for the given plaintext token. An empty
// token disables authentication entirely.
func NewTokenAuth(token string) (*TokenAuth, error) {
	if token == "" {
		return &TokenAuth{limiter: NewIPRateLimiter()}, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &TokenAuth{hash: hash, limiter: NewIPRateLimiter()}, nil
}

// Enabled reports whether a token is configured.
func (a *TokenAuth) Enabled() bool {
	return a.hash != nil
}

// Middleware rejects requests without a valid bearer token. Failed attempts
// are rate limited per client IP.
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearer(r)
		if token == "" || bcrypt.CompareHashAndPassword(a.hash, []byte(token)) != nil {
			// Only failed attempts consume rate-limit budget.
			if !a.limiter.Allow(r) {
				http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
				return
			}
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
