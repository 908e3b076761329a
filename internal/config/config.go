// Package config loads the viewer's runtime tunables from an INI file
// using gopkg.in/ini.v1, falling back to the documented defaults for any
// key left unset.
package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// Config holds every tunable the streamer, queue, and cache read at
// startup.
type Config struct {
	WorkerCount          int
	CacheCapacityBytes   int64
	RemoteRequestTimeoutSeconds int
	MaxTilesLocalPerFrame  int
	MaxTilesRemotePerFrame int
	CompletionDrainBudgetMS int
	TileLoadBatchMax       int
}

// Default matches the values named throughout the rest of the system:
// MAX_THREAD_COUNT=128 worker ceiling (runtime.NumCPU used when lower),
// 10 local / 3 remote tiles loaded per frame, a 5 second remote I/O
// timeout, and a 7ms per-frame completion-drain budget.
func Default() Config {
	return Config{
		WorkerCount:                 0, // 0 means runtime.NumCPU(), clamped to 128
		CacheCapacityBytes:          512 << 20,
		RemoteRequestTimeoutSeconds: 5,
		MaxTilesLocalPerFrame:       10,
		MaxTilesRemotePerFrame:      3,
		CompletionDrainBudgetMS:     7,
		TileLoadBatchMax:            32,
	}
}

// Load reads path as an INI file under a single [wsicore] section,
// overriding Default()'s values with whatever keys are present.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := ini.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: loading %s: %w", path, err)
	}
	sec := f.Section("wsicore")

	if sec.HasKey("worker_count") {
		cfg.WorkerCount = sec.Key("worker_count").MustInt(cfg.WorkerCount)
	}
	if sec.HasKey("cache_capacity_bytes") {
		cfg.CacheCapacityBytes = sec.Key("cache_capacity_bytes").MustInt64(cfg.CacheCapacityBytes)
	}
	if sec.HasKey("remote_request_timeout_seconds") {
		cfg.RemoteRequestTimeoutSeconds = sec.Key("remote_request_timeout_seconds").MustInt(cfg.RemoteRequestTimeoutSeconds)
	}
	if sec.HasKey("max_tiles_local_per_frame") {
		cfg.MaxTilesLocalPerFrame = sec.Key("max_tiles_local_per_frame").MustInt(cfg.MaxTilesLocalPerFrame)
	}
	if sec.HasKey("max_tiles_remote_per_frame") {
		cfg.MaxTilesRemotePerFrame = sec.Key("max_tiles_remote_per_frame").MustInt(cfg.MaxTilesRemotePerFrame)
	}
	if sec.HasKey("completion_drain_budget_ms") {
		cfg.CompletionDrainBudgetMS = sec.Key("completion_drain_budget_ms").MustInt(cfg.CompletionDrainBudgetMS)
	}
	if sec.HasKey("tile_load_batch_max") {
		cfg.TileLoadBatchMax = sec.Key("tile_load_batch_max").MustInt(cfg.TileLoadBatchMax)
	}

	return cfg, nil
}
