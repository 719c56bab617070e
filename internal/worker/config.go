// Package worker provides background job processing for Consentry.
package worker

import (
	"time"
)

// RefreshConfig holds configuration for the vendor list refresh job.
type RefreshConfig struct {
	// Interval is how often the vendor list is refetched when running
	// on a schedule. Default: 12 hours
	Interval time.Duration

	// Timeout is the timeout for one refresh run.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts after a
	// failed fetch. Default: 3
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 1 second
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 1 minute
	MaxInterval time.Duration

	// PurgeExpired enables purging expired consent records from the
	// durable store after each refresh. Default: true
	PurgeExpired bool
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Interval:        12 * time.Hour,
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     1 * time.Minute,
		PurgeExpired:    true,
	}
}

// withDefaults fills zero fields with the default values.
func (c RefreshConfig) withDefaults() RefreshConfig {
	def := DefaultRefreshConfig()
	if c.Interval == 0 {
		c.Interval = def.Interval
	}
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.InitialInterval == 0 {
		c.InitialInterval = def.InitialInterval
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = def.MaxInterval
	}
	return c
}
