package scheduler

import (
	"errors"
	"time"

	"github.com/smallbiznis/marketpay/internal/config"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval   time.Duration
	BatchSize     int
	CascadeMinAge time.Duration
	JobTimeout    time.Duration
	LockTTL       time.Duration
	EnabledJobs   []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:   time.Minute,
		BatchSize:     100,
		CascadeMinAge: 2 * time.Minute,
		JobTimeout:    30 * time.Second,
		LockTTL:       55 * time.Second,
	}
}

// ProvideConfig maps the application config onto scheduler settings.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:   cfg.Scheduler.Interval,
		BatchSize:     cfg.Scheduler.BatchSize,
		CascadeMinAge: cfg.Scheduler.CascadeMinAge,
		JobTimeout:    cfg.Scheduler.JobTimeout,
		LockTTL:       cfg.Scheduler.LockTTL,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.CascadeMinAge <= 0 {
		c.CascadeMinAge = defaults.CascadeMinAge
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	// The lock must outlive the job so a slow run is never joined by another replica.
	if c.LockTTL <= c.JobTimeout {
		c.LockTTL = c.JobTimeout + 5*time.Second
	}
	return c
}
