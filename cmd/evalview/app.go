package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pario-ai/evalview/pkg/audit"
	"github.com/pario-ai/evalview/pkg/cache"
	cachesqlite "github.com/pario-ai/evalview/pkg/cache/sqlite"
	"github.com/pario-ai/evalview/pkg/client"
	"github.com/pario-ai/evalview/pkg/config"
	"github.com/pario-ai/evalview/pkg/coordinator"
	"github.com/pario-ai/evalview/pkg/render"
)

// app is everything one CLI invocation needs.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	sessionID string
	client    *client.Client
	store     *cache.Store
	persisted *cachesqlite.Cache
	audit     *audit.Logger
	term      *render.Terminal
	session   *coordinator.Session
}

func loadConfig(cmd *cobra.Command, opts *globalOpts) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(opts.configPath, !cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	if opts.baseURL != "" {
		cfg.API.BaseURL = opts.baseURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("parse log.level: %w", err)
		}
	}
	hopts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return slog.New(slog.NewTextHandler(w, hopts)), nil
}

// openApp wires config, logging, backend client, cache, history and a
// viewer session. Renders go to out.
func openApp(cmd *cobra.Command, opts *globalOpts, out io.Writer) (*app, error) {
	if err := validFormat(opts.format); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, sessionID: uuid.NewString()}

	a.client, err = client.New(cfg.API.BaseURL, client.Options{
		Token:      cfg.API.Token,
		HTTPClient: &http.Client{Timeout: cfg.API.Timeout},
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	var backing cache.Backing
	if cfg.Cache.Persist {
		a.persisted, err = cachesqlite.New(cfg.Cache.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open cache db: %w", err)
		}
		backing = a.persisted
	}
	a.store = cache.New(backing, logger)

	sopts := coordinator.Options{
		API:          a.client,
		Cache:        a.store,
		PollInterval: cfg.Poll.Interval,
		GracePeriod:  cfg.Operations.GracePeriod,
		Logger:       logger,
	}
	if cfg.Audit.Enabled {
		a.audit, err = audit.New(cfg.Audit, a.sessionID, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open audit db: %w", err)
		}
		sopts.Recorder = a.audit
	}

	a.term = render.New(out, render.Options{Format: opts.format, Quiet: opts.quiet})
	sopts.Renderer = a.term
	a.session = coordinator.New(sopts)

	logger.Debug("session opened", "session_id", a.sessionID, "api", cfg.API.BaseURL, "persist_cache", cfg.Cache.Persist)
	return a, nil
}

// Close waits for background work, then releases storage.
func (a *app) Close() {
	if a.session != nil {
		a.session.Close()
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.logger.Warn("close audit db", "error", err)
		}
	}
	if a.persisted != nil {
		if err := a.persisted.Close(); err != nil {
			a.logger.Warn("close cache db", "error", err)
		}
	}
}

func validFormat(format string) error {
	switch format {
	case render.FormatTable, render.FormatJSON:
		return nil
	}
	return fmt.Errorf("unknown --format %q (use table or json)", format)
}
