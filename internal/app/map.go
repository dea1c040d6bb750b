package app

import (
	"time"

	"dailybot/internal/config"
	"dailybot/internal/housekeeping"
	"dailybot/internal/notifier"
	"dailybot/internal/observability/debug"
	"dailybot/internal/reminder/dispatch"
	"dailybot/internal/storage"
)

// Mapping functions translate raw config sections (durations as strings)
// into typed service configs. They double as reload validation: a section
// that fails to map is rejected before commit.

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	path := cfg.Storage.Path
	if path == "" {
		path = "dailybot.db"
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Path: path, BusyTimeout: busy}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	var out dispatch.Config
	if cfg.Dispatch == nil {
		return out, nil
	}
	var err error
	if out.IdleCeiling, err = config.ParseDurationField("dispatch.idle_ceiling", cfg.Dispatch.IdleCeiling); err != nil {
		return out, err
	}
	if out.RetryBackoff, err = config.ParseDurationField("dispatch.retry_backoff", cfg.Dispatch.RetryBackoff); err != nil {
		return out, err
	}
	if out.ErrorBackoff, err = config.ParseDurationField("dispatch.error_backoff", cfg.Dispatch.ErrorBackoff); err != nil {
		return out, err
	}
	return out, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	var out notifier.Config
	if cfg.Notifier == nil {
		return out, nil
	}
	out.RatePerSec = cfg.Notifier.RatePerSec
	out.Burst = cfg.Notifier.Burst
	var err error
	if out.Timeout, err = config.ParseDurationField("notifier.send_timeout", cfg.Notifier.SendTimeout); err != nil {
		return out, err
	}
	return out, nil
}

func mapHousekeepingConfig(cfg *config.Config) (housekeeping.Config, error) {
	var out housekeeping.Config
	if cfg.Housekeeping == nil {
		// Maintenance defaults on; it only touches local state.
		out.Enabled = true
		return out, nil
	}
	out.Enabled = cfg.Housekeeping.Enabled
	var err error
	if out.CompactEvery, err = config.ParseDurationField("housekeeping.compact_every", cfg.Housekeeping.CompactEvery); err != nil {
		return out, err
	}
	if out.PruneEvery, err = config.ParseDurationField("housekeeping.prune_every", cfg.Housekeeping.PruneEvery); err != nil {
		return out, err
	}
	if out.AuditRetention, err = config.ParseDurationField("housekeeping.audit_retention", cfg.Housekeeping.AuditRetention); err != nil {
		return out, err
	}
	if out.JobTimeout, err = config.ParseDurationField("housekeeping.job_timeout", cfg.Housekeeping.JobTimeout); err != nil {
		return out, err
	}
	return out, nil
}

func mapDebugConfig(cfg *config.Config) (debug.Config, error) {
	var out debug.Config
	if cfg.Debug == nil {
		return out, nil
	}
	out.Enabled = cfg.Debug.Enabled
	out.Addr = cfg.Debug.Addr
	out.Token = cfg.Debug.Token
	var err error
	if out.ReadTimeout, err = config.ParseDurationField("debug.read_timeout", cfg.Debug.ReadTimeout); err != nil {
		return out, err
	}
	if out.WriteTimeout, err = config.ParseDurationField("debug.write_timeout", cfg.Debug.WriteTimeout); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = config.ParseDurationField("debug.idle_timeout", cfg.Debug.IdleTimeout); err != nil {
		return out, err
	}
	return out, nil
}
