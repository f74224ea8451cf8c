// Package runtime assembles the assistant from its configuration and serves
// it over HTTP.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/szaher/versailles/internal/agent"
	"github.com/szaher/versailles/internal/auth"
	"github.com/szaher/versailles/internal/backend"
	"github.com/szaher/versailles/internal/config"
	"github.com/szaher/versailles/internal/history"
	"github.com/szaher/versailles/internal/llm"
	"github.com/szaher/versailles/internal/memory"
	"github.com/szaher/versailles/internal/orchestrator"
	"github.com/szaher/versailles/internal/secrets"
	"github.com/szaher/versailles/internal/session"
	"github.com/szaher/versailles/internal/telemetry"
	"github.com/szaher/versailles/internal/tools"
)

const etcdDialTimeout = 5 * time.Second

// Options overrides parts of the assembly.
type Options struct {
	Logger *slog.Logger

	// Redactor receives every resolved secret value.
	Redactor *secrets.RedactHandler

	// LLMClient replaces the client selected from the model name.
	LLMClient llm.Client

	// Redis replaces the connection built from the configuration.
	Redis *backend.Redis

	// HTTPClient replaces the client used by the network tools.
	HTTPClient *http.Client
}

// Runtime holds the assembled components.
type Runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *telemetry.Metrics

	redis    *backend.Redis
	status   backend.Status
	primary  session.Store
	store    session.Store
	fallback *session.FallbackStore
	provider *memory.Provider
	registry *tools.Registry
	agent    *agent.Agent
	orch     *orchestrator.Orchestrator
	janitor  *session.Janitor

	checks  []func(context.Context) error
	closers []func() error
}

// New builds every component described by cfg. The networked backend is
// probed once here; its status is fixed for the life of the runtime.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *Runtime, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{cfg: cfg, logger: logger, metrics: telemetry.NewMetrics()}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	values, err := cfg.ResolveSecrets(ctx, cfg.Resolver(ctx))
	if err != nil {
		return nil, err
	}
	if opts.Redactor != nil {
		for _, v := range values {
			opts.Redactor.AddSecret(v)
		}
	}

	rt.connectRedis(ctx, opts.Redis)

	if err := rt.buildStore(ctx); err != nil {
		return nil, err
	}

	rt.provider = memory.NewProvider(memory.ProviderConfig{
		Status:     rt.status,
		Factory:    rt.historyFactory(),
		BufferSize: cfg.Memory.BufferSize,
		Logger:     logger,
		Recorder:   rt.metrics,
	})

	rt.registry, err = tools.NewDefaultRegistry(tools.Config{
		RATPBaseURL:    cfg.Tools.RATPBaseURL,
		WeatherBaseURL: cfg.Tools.WeatherBaseURL,
		MapsBaseURL:    cfg.Tools.MapsBaseURL,
		MapsAPIKey:     cfg.Tools.MapsAPIKey,
		SiteBaseURL:    cfg.Tools.SiteBaseURL,
		Timeout:        cfg.Tools.Timeout,
		HTTPClient:     opts.HTTPClient,
	}, nil, tools.WithLogger(logger), tools.WithRecorder(rt.metrics))
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	client, model := opts.LLMClient, ""
	if client == nil {
		client, model = llm.NewClientForModel(cfg.Model.Name)
	} else {
		_, model = llm.ParseModelString(cfg.Model.Name)
	}

	var system string
	if path := cfg.Model.SystemPromptFile; path != "" {
		if system, err = config.LoadPrompt(path); err != nil {
			return nil, err
		}
	}
	rt.agent = agent.New(client, rt.registry, agent.Config{
		Model:         model,
		System:        system,
		MaxIterations: cfg.Model.MaxIterations,
		MaxTokens:     cfg.Model.MaxTokens,
		Temperature:   cfg.Model.Temperature,
	}, agent.WithLogger(logger))

	rt.orch = orchestrator.New(rt.store, rt.provider, rt.agent,
		orchestrator.WithLabels(orchestrator.LabelsFor(cfg.Locale)),
		orchestrator.WithGenerateTimeout(cfg.Model.GenerateTimeout),
		orchestrator.WithLogger(logger),
		orchestrator.WithRecorder(rt.metrics),
	)

	var health session.HealthFunc
	if len(rt.checks) > 0 {
		health = rt.Health
	}
	rt.janitor, err = session.NewJanitor(session.JanitorConfig{
		Retention:      cfg.Store.Retention,
		SweepSchedule:  cfg.Store.SweepSchedule,
		HealthSchedule: cfg.Store.HealthSchedule,
		HealthTimeout:  cfg.Redis.ProbeTimeout,
	}, rt.primary, health, rt.metrics.BackendHealth, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("runtime assembled",
		"model", model,
		"store", cfg.Store.Backend,
		"memory", string(rt.memoryBackend()),
		"tools", rt.registry.Names(),
	)
	return rt, nil
}

func (rt *Runtime) connectRedis(ctx context.Context, r *backend.Redis) {
	rc := rt.cfg.Redis
	if !rc.On() {
		rt.status = backend.Probe(ctx, nil, 0)
		rt.logger.Info("networked backend disabled, using local memory")
		return
	}
	if r == nil {
		r = backend.NewRedis(backend.RedisOptions{
			Addr:        rc.Addr(),
			Password:    rc.Password,
			DB:          rc.DB,
			DialTimeout: rc.ProbeTimeout,
		})
	}
	rt.redis = r
	rt.closers = append(rt.closers, r.Close)
	rt.checks = append(rt.checks, r.Ping)

	rt.status = backend.Probe(ctx, r, rc.ProbeTimeout)
	rt.metrics.BackendHealth(rt.status.Err)
	if rt.status.Reachable {
		rt.logger.Info("networked backend reachable", "addr", rc.Addr(), "latency", rt.status.Latency)
	} else {
		rt.logger.Warn("networked backend unreachable, using local memory", "addr", rc.Addr(), "error", rt.status.Err)
	}
}

func (rt *Runtime) buildStore(ctx context.Context) error {
	sc := rt.cfg.Store
	networked := true
	switch sc.Backend {
	case config.StoreMemory:
		rt.primary, networked = session.NewMemoryStore(), false
	case config.StoreFile:
		fs, err := session.NewFileStore(sc.Dir)
		if err != nil {
			return err
		}
		rt.primary, networked = fs, false
	case config.StoreRedis:
		var opts []session.RedisStoreOption
		if sc.Prefix != "" {
			opts = append(opts, session.WithPrefix(sc.Prefix))
		}
		if sc.TTL > 0 {
			opts = append(opts, session.WithTTL(sc.TTL))
		}
		rt.primary = session.NewRedisStore(rt.redis, opts...)
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, sc.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		rt.checks = append(rt.checks, pool.Ping)
		var opts []session.PostgresOption
		if sc.Table != "" {
			opts = append(opts, session.WithTable(sc.Table))
		}
		ps := session.NewPostgresStore(pool, opts...)
		if err := ps.EnsureSchema(ctx); err != nil {
			rt.logger.Warn("postgres schema check failed", "error", err)
		}
		rt.primary = ps
	case config.StoreEtcd:
		cli, err := clientv3.New(clientv3.Config{Endpoints: sc.Endpoints, DialTimeout: etcdDialTimeout})
		if err != nil {
			return fmt.Errorf("connect etcd: %w", err)
		}
		rt.closers = append(rt.closers, cli.Close)
		rt.checks = append(rt.checks, func(ctx context.Context) error {
			_, err := cli.Get(ctx, sc.Prefix, clientv3.WithCountOnly())
			return err
		})
		rt.primary = session.NewEtcdStore(cli, sc.Prefix)
	case config.StoreS3:
		var loadOpts []func(*awsconfig.LoadOptions) error
		if sc.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(sc.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg)
		rt.checks = append(rt.checks, func(ctx context.Context) error {
			_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(sc.Bucket)})
			return err
		})
		rt.primary = session.NewS3Store(client, sc.Bucket, sc.Prefix)
	default:
		return fmt.Errorf("unknown store backend %q", sc.Backend)
	}

	rt.store = rt.primary
	if networked && sc.FallbackOn() {
		rt.fallback = session.NewFallbackStore(rt.primary,
			session.WithFallbackLogger(rt.logger),
			session.WithFallbackRecorder(rt.metrics),
		)
		rt.store = rt.fallback
	}
	return nil
}

func (rt *Runtime) historyFactory() memory.HistoryFactory {
	if rt.redis == nil {
		return nil
	}
	var opts []history.Option
	if p := rt.cfg.Redis.HistoryKey; p != "" {
		opts = append(opts, history.WithKeyPrefix(p))
	}
	if ttl := rt.cfg.Redis.HistoryTTL; ttl > 0 {
		opts = append(opts, history.WithTTL(ttl))
	}
	r := rt.redis
	return func(sessionID string) (history.ChatHistory, error) {
		return history.NewRedisHistory(r, sessionID, opts...)
	}
}

func (rt *Runtime) memoryBackend() memory.Backend {
	if rt.provider.Networked() {
		return memory.BackendNetworked
	}
	return memory.BackendLocal
}

// Start runs the maintenance jobs and, when a system prompt file is
// configured, reloads it on change until ctx is done.
func (rt *Runtime) Start(ctx context.Context) error {
	if path := rt.cfg.Model.SystemPromptFile; path != "" {
		w, err := config.NewPromptWatcher(path, rt.agent.SetSystem, rt.logger)
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				rt.logger.Warn("system prompt watcher stopped", "error", err)
			}
		}()
	}
	rt.janitor.Start()
	return nil
}

// Serve exposes the orchestrator over HTTP until ctx is done.
func (rt *Runtime) Serve(ctx context.Context) error {
	sc := rt.cfg.Server
	srv := NewServer(rt.orch,
		WithAPIKey(sc.APIKey),
		WithNoAuth(sc.NoAuth),
		WithRateLimit(auth.RateLimitConfig{RequestsPerSecond: sc.RateLimit, Burst: sc.RateBurst}),
		WithLogger(rt.logger),
		WithUI(sc.UIOn()),
		WithMetrics(rt.metrics.Handler()),
		WithSnapshot(rt.Snapshot),
	)
	return srv.Serve(ctx, sc.Addr)
}

// Health runs every backend check. A nil result means all are healthy.
func (rt *Runtime) Health(ctx context.Context) error {
	var errs []error
	for _, check := range rt.checks {
		if err := check(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops the maintenance jobs and releases connections.
func (rt *Runtime) Close() error {
	if rt.janitor != nil {
		rt.janitor.Stop()
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// Orchestrator returns the turn orchestrator.
func (rt *Runtime) Orchestrator() *orchestrator.Orchestrator { return rt.orch }

// Registry returns the tool registry.
func (rt *Runtime) Registry() *tools.Registry { return rt.registry }

// Metrics returns the metrics collectors.
func (rt *Runtime) Metrics() *telemetry.Metrics { return rt.metrics }

// Status returns the start-up probe result.
func (rt *Runtime) Status() backend.Status { return rt.status }

// Agent returns the generator.
func (rt *Runtime) Agent() *agent.Agent { return rt.agent }

// Snapshot describes the runtime for the health endpoint.
func (rt *Runtime) Snapshot() Snapshot {
	s := Snapshot{
		Memory:  string(rt.memoryBackend()),
		Store:   rt.cfg.Store.Backend,
		Backend: rt.status.String(),
	}
	if rt.fallback != nil {
		s.PendingSync = rt.fallback.Pending()
	}
	return s
}
