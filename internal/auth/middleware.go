package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// Config configures Middleware.
type Config struct {
	// APIKey is the expected key. When empty every guarded request is
	// rejected unless NoAuth is set.
	APIKey string
	NoAuth bool

	// PublicPaths are served without credentials. A trailing slash matches
	// the whole subtree, except for "/" which matches only the root.
	PublicPaths []string

	// Limiter, when set, blocks clients after repeated failures.
	Limiter *RateLimiter
}

func (c Config) public(path string) bool {
	for _, p := range c.PublicPaths {
		if path == p || (p != "/" && strings.HasSuffix(p, "/") && strings.HasPrefix(path, p)) {
			return true
		}
	}
	return false
}

// Middleware enforces API key authentication.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.NoAuth || cfg.public(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			rl := cfg.Limiter
			if rl != nil {
				if left := rl.AuthBlocked(ip); left > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(left.Seconds())+1))
					writeError(w, http.StatusTooManyRequests, "auth_blocked", "Too many failed authentication attempts. Try again later.")
					return
				}
			}

			if cfg.APIKey == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "API key not configured")
				return
			}

			key, err := RequestKey(r)
			if err == nil && !ValidateKey(key, cfg.APIKey) {
				err = errors.New("invalid API key")
			}
			if err != nil {
				if rl != nil {
					rl.AuthFailure(ip)
				}
				writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			if rl != nil {
				rl.AuthSuccess(ip)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
