package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const maxVaultResponse = 1 << 20

// VaultResolver resolves vault(path#key) references against a Vault KV v2
// mount. Values are cached for CacheTTL.
type VaultResolver struct {
	Address   string
	Token     string
	MountPath string
	CacheTTL  time.Duration

	client *http.Client
	mu     sync.RWMutex
	cache  map[string]cachedSecret
}

type cachedSecret struct {
	value   string
	expires time.Time
}

// NewVaultResolver creates a Vault resolver with the "secret" mount and a
// five minute cache.
func NewVaultResolver(address, token string) *VaultResolver {
	return &VaultResolver{
		Address:   strings.TrimRight(address, "/"),
		Token:     token,
		MountPath: "secret",
		CacheTTL:  5 * time.Minute,
		client:    &http.Client{Timeout: 10 * time.Second},
		cache:     make(map[string]cachedSecret),
	}
}

// Resolve returns the referenced key, "value" when the reference names none.
func (v *VaultResolver) Resolve(ctx context.Context, ref string) (string, error) {
	arg, err := argument(ref, "vault")
	if err != nil {
		return "", err
	}
	path, key, ok := strings.Cut(arg, "#")
	if !ok || key == "" {
		key = "value"
	}
	cacheKey := path + "#" + key

	v.mu.RLock()
	entry, hit := v.cache[cacheKey]
	v.mu.RUnlock()
	if hit && time.Now().Before(entry.expires) {
		return entry.value, nil
	}

	data, err := v.read(ctx, path)
	if err != nil {
		return "", err
	}
	raw, ok := data[key]
	if !ok {
		return "", fmt.Errorf("vault %s#%s: %w", path, key, ErrNotFound)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("vault %s#%s is a %T, not a string", path, key, raw)
	}

	v.mu.Lock()
	v.cache[cacheKey] = cachedSecret{value: value, expires: time.Now().Add(v.CacheTTL)}
	v.mu.Unlock()
	return value, nil
}

func (v *VaultResolver) read(ctx context.Context, path string) (map[string]any, error) {
	url := fmt.Sprintf("%s/v1/%s/data/%s", v.Address, v.MountPath, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", v.Token)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVaultResponse))
	if err != nil {
		return nil, fmt.Errorf("read vault response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("vault %s: %w", path, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("vault error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var kv struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &kv); err != nil {
		return nil, fmt.Errorf("parse vault response: %w", err)
	}
	return kv.Data.Data, nil
}
