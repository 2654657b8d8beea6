package app

import (
	"time"

	"github.com/MKWorldWide/MKronoSphere/internal/broadcast"
	"github.com/MKWorldWide/MKronoSphere/internal/config"
	"github.com/MKWorldWide/MKronoSphere/internal/storage"
	"github.com/MKWorldWide/MKronoSphere/internal/syncer"
	"github.com/MKWorldWide/MKronoSphere/pkg/logx"
)

// Mapping from the on-disk config to per-component configs. Kept in one
// place so New and the reload loop cannot drift apart.

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Log.Level,
		Console: cfg.ConsoleLog(),
		File: logx.FileConfig{
			Enabled: cfg.Log.File.Enabled,
			Path:    cfg.Log.File.Path,
		},
	}
}

func syncConfig(cfg *config.Config) syncer.Config {
	return syncer.Config{
		MaxConcurrent:  cfg.Sync.MaxConcurrent,
		Timeout:        cfg.SyncTimeout(),
		RetryEnabled:   cfg.RetryEnabled(),
		RetryMax:       cfg.Sync.Retry.Max,
		RetryBaseDelay: cfg.RetryBaseDelay(),
	}
}

func broadcastConfig(cfg *config.Config) broadcast.Config {
	return broadcast.Config{
		MaxConcurrent: cfg.Broadcast.MaxConcurrent,
		Timeout:       cfg.BroadcastTimeout(),
		RatePerSec:    cfg.Broadcast.RatePerSec,
		Filter: broadcast.Filter{
			MinPriority:        cfg.Broadcast.Filter.MinPriority,
			RequiredTags:       cfg.Broadcast.Filter.RequiredTags,
			ExcludedCategories: broadcast.ParseCategories(cfg.Broadcast.Filter.ExcludedCategories),
		},
	}
}

func storageConfig(cfg *config.Config) storage.Config {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		busy = 5 * time.Second
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}
}
