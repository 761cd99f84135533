package gateway

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// authMiddleware returns a chi-compatible middleware that validates Bearer
// token or Basic auth credentials using constant-time comparison. Each
// failed attempt spends a limiter token; once none are left every request
// is refused before any comparison until the bucket refills.
func authMiddleware(cfg AuthConfig, limiter *rate.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	fail := func(w http.ResponseWriter, r *http.Request, detail string) {
		logAuthFailure(logger, r, detail)
		if limiter != nil {
			limiter.Allow()
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && limiter.Tokens() < 1 {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				fail(w, r, "missing authorization header")
				return
			}

			if cfg.BearerToken != "" {
				if after, ok := strings.CutPrefix(auth, "Bearer "); ok && constantTimeEqual(after, cfg.BearerToken) {
					next.ServeHTTP(w, r)
					return
				}
			}

			if cfg.BasicUser != "" && cfg.BasicPass != "" {
				user, pass, ok := r.BasicAuth()
				if ok && constantTimeEqual(user, cfg.BasicUser) && constantTimeEqual(pass, cfg.BasicPass) {
					next.ServeHTTP(w, r)
					return
				}
			}

			fail(w, r, "invalid credentials")
		})
	}
}

func logAuthFailure(logger *slog.Logger, r *http.Request, detail string) {
	if logger == nil {
		return
	}
	logger.Warn("gateway: auth failure",
		"detail", detail,
		"remote_addr", r.RemoteAddr,
		"method", r.Method,
		"path", r.URL.Path,
	)
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
