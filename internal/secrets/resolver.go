// Package secrets resolves secret references found in configuration, such
// as env(GOOGLE_MAPS_API_KEY) or vault(versailles/maps#key).
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a reference points at a secret that does
// not exist.
var ErrNotFound = errors.New("secret not found")

// Resolver resolves secret references to their values.
type Resolver interface {
	// Resolve looks up a secret reference and returns its value.
	Resolve(ctx context.Context, ref string) (string, error)
}

// Scheme returns the scheme of a reference ("env" for env(NAME)) and whether
// s is a reference at all.
func Scheme(s string) (string, bool) {
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return "", false
	}
	scheme := s[:open]
	for _, r := range scheme {
		if r < 'a' || r > 'z' {
			return "", false
		}
	}
	return scheme, true
}

func argument(ref, scheme string) (string, error) {
	prefix := scheme + "("
	if !strings.HasPrefix(ref, prefix) || !strings.HasSuffix(ref, ")") {
		return "", fmt.Errorf("unsupported secret reference %q (expected %s(...))", ref, scheme)
	}
	arg := ref[len(prefix) : len(ref)-1]
	if arg == "" {
		return "", fmt.Errorf("empty secret reference %q", ref)
	}
	return arg, nil
}

// Chain dispatches references to a resolver by scheme.
type Chain map[string]Resolver

// Resolve resolves ref with the resolver registered for its scheme.
func (c Chain) Resolve(ctx context.Context, ref string) (string, error) {
	scheme, ok := Scheme(ref)
	if !ok {
		return "", fmt.Errorf("not a secret reference: %q", ref)
	}
	r, ok := c[scheme]
	if !ok {
		return "", fmt.Errorf("no resolver for %s() references", scheme)
	}
	return r.Resolve(ctx, ref)
}

// Expand returns s unchanged unless it is a reference, in which case the
// resolved value is returned. A missing secret yields "" and ErrNotFound.
func Expand(ctx context.Context, r Resolver, s string) (string, error) {
	if _, ok := Scheme(s); !ok {
		return s, nil
	}
	return r.Resolve(ctx, s)
}
