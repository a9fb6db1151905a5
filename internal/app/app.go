// Package app wires one instance of every store for a process.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/racenotes/internal/config"
	"github.com/kalambet/racenotes/internal/domain"
	"github.com/kalambet/racenotes/internal/editor"
	"github.com/kalambet/racenotes/internal/gateway"
	"github.com/kalambet/racenotes/internal/storage"
	"github.com/kalambet/racenotes/internal/store"
)

// App holds the stores and their shared dependencies.
type App struct {
	Config      config.Config
	Logger      *zap.Logger
	Notifier    store.Notifier
	Gateway     *gateway.Client
	Snapshots   *storage.Store // nil when snapshots are disabled
	Races       *store.RaceStore
	Annotations *store.AnnotationStore
	Betting     *store.BettingStore
	Stats       *store.StatsStore
}

// New builds the containers for cfg. Close releases the snapshot database.
func New(cfg config.Config, logger *zap.Logger, notifier store.Notifier) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = store.Discard
	}

	gw := gateway.New(gateway.Options{
		BaseURL:   cfg.Gateway.BaseURL,
		Timeout:   cfg.Gateway.Timeout,
		Token:     cfg.Gateway.Token,
		RateLimit: cfg.Gateway.RateLimit,
		Burst:     cfg.Gateway.Burst,
		Logger:    logger.Named("gateway"),
	})

	a := &App{Config: cfg, Logger: logger, Notifier: notifier, Gateway: gw}

	opts := []store.Option{
		store.WithNotifier(notifier),
		store.WithLogger(logger.Named("store")),
		store.WithCacheTTL(cfg.Stats.CacheTTL),
	}
	if cfg.Storage.Snapshots {
		snaps, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening snapshot storage: %w", err)
		}
		a.Snapshots = snaps
		opts = append(opts, store.WithSnapshots(snaps))
	}

	a.Races = store.NewRaceStore(gw, opts...)
	a.Annotations = store.NewAnnotationStore(gw, opts...)
	a.Betting = store.NewBettingStore(gw, opts...)
	a.Stats = store.NewStatsStore(gw, opts...)
	a.Betting.OnRecord(a.Stats.Invalidate)
	return a, nil
}

// Close releases resources held by the App.
func (a *App) Close() error {
	if a.Snapshots != nil {
		return a.Snapshots.Close()
	}
	return nil
}

// NewEditor returns an autosave editor for raceID using the configured
// delay.
func (a *App) NewEditor(ctx context.Context, raceID int64) *editor.Editor {
	return editor.New(raceID, a.Annotations,
		editor.WithDelay(a.Config.Autosave.Delay),
		editor.WithNotifier(a.Notifier),
		editor.WithLogger(a.Logger.Named("editor")),
		editor.WithContext(ctx),
	)
}

// RacePage is everything needed to show one race.
type RacePage struct {
	Detail      *domain.RaceDetail
	Annotations []domain.Annotation
}

// LoadRacePage fetches a race's detail and its annotations concurrently.
// Each fetch runs to completion and updates its own store; the first
// failure is returned.
func (a *App) LoadRacePage(ctx context.Context, raceID int64) (RacePage, error) {
	var page RacePage
	var g errgroup.Group
	g.Go(func() error {
		d, err := a.Races.FetchRaceDetail(ctx, raceID)
		if err != nil {
			return err
		}
		page.Detail = d
		return nil
	})
	g.Go(func() error {
		notes, err := a.Annotations.Fetch(ctx, domain.AnnotationFilter{RaceID: raceID})
		if err != nil {
			return err
		}
		page.Annotations = notes
		return nil
	})
	if err := g.Wait(); err != nil {
		return RacePage{}, err
	}
	return page, nil
}
