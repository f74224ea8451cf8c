package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const promptDebounce = 100 * time.Millisecond

// LoadPrompt reads a system prompt file. Surrounding whitespace is trimmed.
func LoadPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading system prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("system prompt %q is empty", path)
	}
	return prompt, nil
}

// PromptWatcher reloads a system prompt file when it changes on disk.
type PromptWatcher struct {
	path     string
	onChange func(string)
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
}

// NewPromptWatcher watches path and calls onChange with each new valid
// content. The parent directory is watched so editors that replace the file
// by rename are followed.
func NewPromptWatcher(path string, onChange func(string), logger *slog.Logger) (*PromptWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating prompt watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	return &PromptWatcher{path: abs, onChange: onChange, logger: logger, watcher: w}, nil
}

// Run delivers reloads until ctx is done, then closes the watcher.
func (p *PromptWatcher) Run(ctx context.Context) error {
	defer func() { _ = p.watcher.Close() }()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != p.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(promptDebounce)
			} else {
				timer.Reset(promptDebounce)
			}
			fire = timer.C
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("prompt watcher error", "error", err)
		case <-fire:
			fire = nil
			p.reload()
		}
	}
}

func (p *PromptWatcher) reload() {
	prompt, err := LoadPrompt(p.path)
	if err != nil {
		p.logger.Warn("system prompt not reloaded", "path", p.path, "error", err)
		return
	}
	p.onChange(prompt)
	p.logger.Info("system prompt reloaded", "path", p.path, "bytes", len(prompt))
}
