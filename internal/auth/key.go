// Package auth guards the HTTP surface with a bearer API key and per-client
// rate limits.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// HeaderAPIKey is accepted as an alternative to a bearer token.
const HeaderAPIKey = "X-API-Key"

var (
	// ErrMissingKey is returned when a request carries no credentials.
	ErrMissingKey = errors.New("missing API key")

	// ErrMalformedAuth is returned for an Authorization header that is not a
	// bearer token.
	ErrMalformedAuth = errors.New("invalid Authorization format, expected 'Bearer <key>'")
)

// ValidateKey compares the provided key with the expected one in constant
// time. An empty expected key never matches.
func ValidateKey(provided, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// RequestKey extracts the API key from the Authorization header or, failing
// that, from X-API-Key.
func RequestKey(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if !strings.HasPrefix(h, prefix) {
			return "", ErrMalformedAuth
		}
		return strings.TrimSpace(strings.TrimPrefix(h, prefix)), nil
	}
	if k := r.Header.Get(HeaderAPIKey); k != "" {
		return k, nil
	}
	return "", ErrMissingKey
}
