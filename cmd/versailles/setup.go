package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/szaher/versailles/internal/config"
	"github.com/szaher/versailles/internal/runtime"
	"github.com/szaher/versailles/internal/secrets"
	"github.com/szaher/versailles/internal/session"
	"github.com/szaher/versailles/internal/telemetry"
)

type logFormat int

const (
	logText logFormat = iota
	logJSON
)

// resolveConfigPath returns the --config value, or the default file when it
// exists in the working directory.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}

// newLogger builds the redacting logger. Interactive commands log warnings
// only unless --verbose is set.
func newLogger(cfg *config.Config, format logFormat, interactive bool) (*slog.Logger, *secrets.RedactHandler, error) {
	level, err := telemetry.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if interactive && level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	if verbose {
		level = slog.LevelDebug
	}

	var base *slog.Logger
	if format == logJSON {
		base = telemetry.NewLogger(os.Stderr, level)
	} else {
		base = telemetry.NewTextLogger(os.Stderr, level)
	}
	redactor := secrets.NewRedactHandler(base.Handler())
	return slog.New(redactor), redactor, nil
}

// startRuntime loads the configuration and assembles the runtime.
func startRuntime(ctx context.Context, format logFormat, interactive bool) (*runtime.Runtime, *config.Config, *slog.Logger, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, nil, err
	}
	logger, redactor, err := newLogger(cfg, format, interactive)
	if err != nil {
		return nil, nil, nil, err
	}
	rt, err := runtime.New(ctx, cfg, runtime.Options{Logger: logger, Redactor: redactor})
	if err != nil {
		return nil, nil, nil, err
	}
	return rt, cfg, logger, nil
}

// currentSession returns --session or a fresh id.
func currentSession() string {
	if sessionID != "" {
		return sessionID
	}
	return session.NewID()
}
