// Package config loads the assistant configuration from YAML, the
// environment and secret references.
package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/szaher/versailles/internal/secrets"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreEtcd     = "etcd"
	StoreS3       = "s3"
)

// Config is the complete assistant configuration.
type Config struct {
	Locale   string `yaml:"locale"`
	LogLevel string `yaml:"log_level"`

	Model   ModelConfig   `yaml:"model"`
	Redis   RedisConfig   `yaml:"redis"`
	Store   StoreConfig   `yaml:"store"`
	Memory  MemoryConfig  `yaml:"memory"`
	Tools   ToolsConfig   `yaml:"tools"`
	Server  ServerConfig  `yaml:"server"`
	Secrets SecretsConfig `yaml:"secrets"`
}

// ModelConfig selects and tunes the language model.
type ModelConfig struct {
	// Name is a model string such as "claude-sonnet-4-20250514" or "ollama/mistral".
	Name             string        `yaml:"name"`
	MaxTokens        int           `yaml:"max_tokens"`
	Temperature      *float64      `yaml:"temperature"`
	MaxIterations    int           `yaml:"max_iterations"`
	GenerateTimeout  time.Duration `yaml:"generate_timeout"`
	SystemPromptFile string        `yaml:"system_prompt_file"`
}

// RedisConfig locates the networked backend.
type RedisConfig struct {
	Enabled      *bool         `yaml:"enabled"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	HistoryTTL   time.Duration `yaml:"history_ttl"`
	HistoryKey   string        `yaml:"history_prefix"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// On reports whether the networked backend should be probed at all.
func (r RedisConfig) On() bool {
	return r.Enabled == nil || *r.Enabled
}

// StoreConfig selects the durable session store.
type StoreConfig struct {
	Backend string        `yaml:"backend"`
	Prefix  string        `yaml:"prefix"`
	TTL     time.Duration `yaml:"ttl"`

	// Fallback keeps a process-local echo so turns survive primary outages.
	Fallback *bool `yaml:"fallback"`

	Dir       string   `yaml:"dir"`
	DSN       string   `yaml:"dsn"`
	Table     string   `yaml:"table"`
	Endpoints []string `yaml:"endpoints"`
	Bucket    string   `yaml:"bucket"`
	Region    string   `yaml:"region"`

	Retention      time.Duration `yaml:"retention"`
	SweepSchedule  string        `yaml:"sweep_schedule"`
	HealthSchedule string        `yaml:"health_schedule"`
}

// FallbackOn reports whether the fallback echo is enabled.
func (s StoreConfig) FallbackOn() bool {
	return s.Fallback == nil || *s.Fallback
}

// MemoryConfig tunes local conversation memory.
type MemoryConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// ToolsConfig locates the services behind the tools.
type ToolsConfig struct {
	RATPBaseURL    string        `yaml:"ratp_base_url"`
	WeatherBaseURL string        `yaml:"weather_base_url"`
	MapsBaseURL    string        `yaml:"maps_base_url"`
	MapsAPIKey     string        `yaml:"maps_api_key"`
	SiteBaseURL    string        `yaml:"site_base_url"`
	Timeout        time.Duration `yaml:"timeout"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr      string  `yaml:"addr"`
	APIKey    string  `yaml:"api_key"`
	NoAuth    bool    `yaml:"no_auth"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
	UI        *bool   `yaml:"ui"`
}

// UIOn reports whether the embedded chat page is served.
func (s ServerConfig) UIOn() bool {
	return s.UI == nil || *s.UI
}

// SecretsConfig enables resolvers beyond env().
type SecretsConfig struct {
	VaultAddr  string `yaml:"vault_addr"`
	VaultToken string `yaml:"vault_token"`
	VaultMount string `yaml:"vault_mount"`
}

// Load reads the optional .env files, the optional YAML file at path, then
// applies environment overrides and defaults, and validates the result.
// Secret references are left in place; see ResolveSecrets.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadDotenv(envFiles); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotenv loads the given files, or ./.env when none are given and it
// exists. Variables already set in the environment win.
func loadDotenv(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("loading env files: %w", err)
	}
	return nil
}

// applyEnv overlays the environment on the file configuration.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	str("VERSAILLES_LOCALE", &c.Locale)
	str("VERSAILLES_LOG_LEVEL", &c.LogLevel)
	str("VERSAILLES_MODEL", &c.Model.Name)
	str("VERSAILLES_SYSTEM_PROMPT_FILE", &c.Model.SystemPromptFile)
	str("VERSAILLES_STORE", &c.Store.Backend)
	str("VERSAILLES_STORE_DSN", &c.Store.DSN)
	str("VERSAILLES_ADDR", &c.Server.Addr)
	str("REDIS_HOST", &c.Redis.Host)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("VAULT_ADDR", &c.Secrets.VaultAddr)

	if v, ok := lookup("REDIS_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_PORT: invalid port %q", v)
		}
		c.Redis.Port = port
	}
	if v, ok := lookup("VERSAILLES_GENERATE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("VERSAILLES_GENERATE_TIMEOUT: %w", err)
		}
		c.Model.GenerateTimeout = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Locale == "" {
		c.Locale = "fr"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	m := &c.Model
	if m.Name == "" {
		m.Name = "claude-sonnet-4-20250514"
	}
	if m.MaxTokens == 0 {
		m.MaxTokens = 1024
	}
	if m.MaxIterations == 0 {
		m.MaxIterations = 5
	}
	if m.GenerateTimeout == 0 {
		m.GenerateTimeout = 60 * time.Second
	}

	r := &c.Redis
	if r.Host == "" {
		r.Host = "localhost"
	}
	if r.Port == 0 {
		r.Port = 6379
	}
	if r.ProbeTimeout == 0 {
		r.ProbeTimeout = 2 * time.Second
	}

	s := &c.Store
	if s.Backend == "" {
		s.Backend = StoreRedis
	}
	if s.Dir == "" {
		s.Dir = "sessions"
	}
	if s.SweepSchedule == "" {
		s.SweepSchedule = "@every 1h"
	}
	if s.HealthSchedule == "" {
		s.HealthSchedule = "@every 30s"
	}

	t := &c.Tools
	if t.MapsAPIKey == "" {
		t.MapsAPIKey = "env(GOOGLE_MAPS_API_KEY)"
	}
	if t.Timeout == 0 {
		t.Timeout = 10 * time.Second
	}

	sv := &c.Server
	if sv.Addr == "" {
		sv.Addr = ":8080"
	}
	if sv.APIKey == "" {
		sv.APIKey = "env(VERSAILLES_API_KEY)"
	}
	if sv.RateLimit == 0 {
		sv.RateLimit = 2
	}
	if sv.RateBurst == 0 {
		sv.RateBurst = 10
	}

	if c.Secrets.VaultToken == "" {
		c.Secrets.VaultToken = "env(VAULT_TOKEN)"
	}
	if c.Secrets.VaultMount == "" {
		c.Secrets.VaultMount = "secret"
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case StoreMemory, StoreFile, StoreRedis:
	case StorePostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres backend"))
		}
	case StoreEtcd:
		if len(c.Store.Endpoints) == 0 {
			errs = append(errs, errors.New("store.endpoints is required for the etcd backend"))
		}
	case StoreS3:
		if c.Store.Bucket == "" {
			errs = append(errs, errors.New("store.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of memory, file, redis, postgres, etcd, s3", c.Store.Backend))
	}
	if c.Store.Backend == StoreRedis && !c.Redis.On() {
		errs = append(errs, errors.New("store.backend redis needs redis.enabled"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("redis.port %d out of range", c.Redis.Port))
	}
	if c.Model.MaxIterations < 0 || c.Model.MaxTokens < 0 {
		errs = append(errs, errors.New("model.max_iterations and model.max_tokens must not be negative"))
	}
	if c.Model.GenerateTimeout < 0 || c.Store.Retention < 0 || c.Store.TTL < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.Memory.BufferSize < 0 {
		errs = append(errs, errors.New("memory.buffer_size must not be negative"))
	}
	if t := c.Model.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("model.temperature %v out of range [0, 2]", *t))
	}
	switch strings.ToLower(c.Locale) {
	case "fr", "en":
	default:
		errs = append(errs, fmt.Errorf("locale %q is not fr or en", c.Locale))
	}
	return errors.Join(errs...)
}

// Resolver returns the secret resolver for this configuration: env() always,
// vault() when a Vault address is configured.
func (c *Config) Resolver(ctx context.Context) secrets.Resolver {
	chain := secrets.Chain{"env": secrets.NewEnvResolver()}
	if c.Secrets.VaultAddr != "" {
		token, _ := secrets.Expand(ctx, chain, c.Secrets.VaultToken)
		v := secrets.NewVaultResolver(c.Secrets.VaultAddr, token)
		v.MountPath = c.Secrets.VaultMount
		chain["vault"] = v
	}
	return chain
}

// ResolveSecrets replaces secret references with their values and returns
// the resolved values. Optional secrets that do not exist resolve to "".
func (c *Config) ResolveSecrets(ctx context.Context, r secrets.Resolver) ([]string, error) {
	fields := []*string{
		&c.Redis.Password,
		&c.Tools.MapsAPIKey,
		&c.Server.APIKey,
		&c.Store.DSN,
	}
	var resolved []string
	for _, f := range fields {
		if _, ok := secrets.Scheme(*f); !ok {
			continue
		}
		v, err := r.Resolve(ctx, *f)
		switch {
		case errors.Is(err, secrets.ErrNotFound):
			v = ""
		case err != nil:
			return nil, fmt.Errorf("resolving %s: %w", *f, err)
		}
		*f = v
		if v != "" {
			resolved = append(resolved, v)
		}
	}
	return resolved, nil
}
