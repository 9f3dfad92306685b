package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/common"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/config"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/engine"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/mealie"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/metrics"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/session"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/storage"
	"github.com/spf13/viper"
)

// errNoSession is returned by commands that need an existing session.
var errNoSession = errors.New("no saved session; run 'mealie-parser parse' first")

// app bundles the services a command works with.
type app struct {
	cfg        *config.Config
	client     *mealie.Client
	store      *storage.SQLiteStorage
	sessions   *session.Store
	metrics    *metrics.Metrics
	parser     *engine.BatchParser
	reconciler *engine.Reconciler
}

// initStorage opens the history database with proper path expansion and migrates it.
func initStorage(ctx context.Context, dbPath string) (*storage.SQLiteStorage, error) {
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// newApp loads configuration and wires the client, storage and engine.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, common.NewUserError("Set MEALIE_URL and MEALIE_API_KEY in .env or the config file", err)
	}

	m := metrics.New()
	policy := cfg.Retry.Policy()
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		common.LogDebug("Retrying request", common.Fields{
			"attempt": attempt + 1,
			"delay":   delay,
			"reason":  common.UserMessage(err),
		})
	}

	client, err := mealie.NewClient(mealie.Options{
		BaseURL:           cfg.MealieURL,
		APIKey:            cfg.APIKey,
		Retry:             policy,
		Timeout:           cfg.Timeout,
		CatalogTTL:        cfg.CatalogTTL,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore(cfg.SessionDir)
	parser := engine.NewBatchParser(client, nil, nil, m)
	reconciler := engine.NewReconciler(engine.ReconcilerConfig{
		Store:    client,
		Updater:  client,
		Parser:   parser,
		Sessions: sessions,
		Patterns: store,
		Reports:  store,
		Recorder: m,
	})

	return &app{
		cfg:        cfg,
		client:     client,
		store:      store,
		sessions:   sessions,
		metrics:    m,
		parser:     parser,
		reconciler: reconciler,
	}, nil
}

// Close releases the database and writes the metrics textfile when configured.
func (a *app) Close() {
	if a.cfg.MetricsPath != "" {
		if err := a.metrics.WriteTextfile(a.cfg.MetricsPath); err != nil {
			slog.Warn("Failed to write metrics", "path", a.cfg.MetricsPath, "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close storage", "error", err)
	}
}

// loadSession returns the saved session, or a new one when none exists and
// required is false.
func (a *app) loadSession(required bool) (*model.SessionState, error) {
	state, err := a.sessions.Load()
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}
	if required {
		return nil, errNoSession
	}
	return model.NewSessionState(), nil
}

// savePatterns stores the snapshot even when ctx was canceled by an interrupt.
func (a *app) savePatterns(ctx context.Context, patterns []*model.Pattern) error {
	if err := a.store.SavePatterns(context.WithoutCancel(ctx), patterns); err != nil {
		return fmt.Errorf("failed to save patterns: %w", err)
	}
	return nil
}

// updatePattern returns a batch hook that writes each parsed pattern to the
// snapshot, so a killed parse keeps the results it already has.
func (a *app) updatePattern(ctx context.Context) func(*model.Pattern) {
	ctx = context.WithoutCancel(ctx)
	return func(p *model.Pattern) {
		if err := a.store.UpdatePatterns(ctx, []*model.Pattern{p}); err != nil {
			slog.Warn("Failed to save parsed pattern", "pattern", p.Text, "error", err)
		}
	}
}

// loadStoredPatterns returns the snapshot left by the last parse.
func (a *app) loadStoredPatterns(ctx context.Context) ([]*model.Pattern, error) {
	patterns, err := a.store.LoadPatterns(ctx)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return nil, errNoSession
	}
	return patterns, nil
}
