package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/warrantyhub/internal/config"
)

// Config controls maintenance intervals and batch sizes.
type Config struct {
	Disabled       bool
	RunInterval    time.Duration
	JobTimeout     time.Duration
	LockTTL        time.Duration
	RelayBatchSize int
	EnabledJobs    []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    5 * time.Minute,
		JobTimeout:     30 * time.Second,
		LockTTL:        time.Minute,
		RelayBatchSize: 100,
	}
}

// ProvideConfig derives scheduler settings from the application config. A
// zero maintenance interval turns the loop off.
func ProvideConfig(cfg config.Config) Config {
	c := Config{
		Disabled:    cfg.Tenancy.MaintenanceInterval <= 0,
		RunInterval: cfg.Tenancy.MaintenanceInterval,
	}
	for _, job := range strings.Split(cfg.Tenancy.MaintenanceJobs, ",") {
		if job = strings.TrimSpace(job); job != "" {
			c.EnabledJobs = append(c.EnabledJobs, job)
		}
	}
	return c.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.RelayBatchSize <= 0 {
		c.RelayBatchSize = defaults.RelayBatchSize
	}
	return c
}
