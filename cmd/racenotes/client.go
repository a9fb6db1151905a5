package main

import (
	"fmt"
	"strconv"

	"github.com/kalambet/racenotes/internal/app"
	"github.com/kalambet/racenotes/internal/config"
	"github.com/kalambet/racenotes/internal/logging"
)

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

// newApp builds the stores one command works against.
var newApp = func() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, logger, notifier)
}

// withApp runs fn against a fresh App and closes it afterwards.
func withApp(fn func(a *app.App) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			printWarning("closing storage: %v", err)
		}
		_ = a.Logger.Sync()
	}()
	return fn(a)
}

func parseID(name, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", name, s)
	}
	return id, nil
}
