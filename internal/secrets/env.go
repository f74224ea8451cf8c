package secrets

import (
	"context"
	"fmt"
	"os"
)

// EnvResolver resolves env(NAME) references from the process environment.
type EnvResolver struct {
	lookup func(string) (string, bool)
}

// NewEnvResolver creates an environment variable secret resolver.
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{lookup: os.LookupEnv}
}

// Resolve returns the value of the referenced variable.
func (r *EnvResolver) Resolve(_ context.Context, ref string) (string, error) {
	name, err := argument(ref, "env")
	if err != nil {
		return "", err
	}
	value, ok := r.lookup(name)
	if !ok {
		return "", fmt.Errorf("environment variable %q: %w", name, ErrNotFound)
	}
	return value, nil
}
