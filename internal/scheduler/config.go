package scheduler

import (
	"time"

	"github.com/smallbiznis/subkit/internal/config"
)

// Config controls job intervals, batch sizes and per-run timeouts.
type Config struct {
	Enabled             bool
	SweepInterval       time.Duration
	SweepBatchSize      int
	SweepTimeout        time.Duration
	CatalogSyncInterval time.Duration
	CatalogSyncTimeout  time.Duration
	CatalogSyncOnStart  bool
}

func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		SweepInterval:       15 * time.Minute,
		SweepBatchSize:      50,
		SweepTimeout:        2 * time.Minute,
		CatalogSyncInterval: time.Hour,
		CatalogSyncTimeout:  time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:             cfg.Scheduler.Enabled,
		SweepInterval:       cfg.Scheduler.SweepInterval,
		SweepBatchSize:      cfg.Scheduler.SweepBatchSize,
		CatalogSyncInterval: cfg.Scheduler.CatalogSyncInterval,
		CatalogSyncOnStart:  cfg.Scheduler.CatalogSyncOnStart,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaults.SweepInterval
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = defaults.SweepBatchSize
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = defaults.SweepTimeout
	}
	if c.CatalogSyncInterval <= 0 {
		c.CatalogSyncInterval = defaults.CatalogSyncInterval
	}
	if c.CatalogSyncTimeout <= 0 {
		c.CatalogSyncTimeout = defaults.CatalogSyncTimeout
	}
	return c
}
