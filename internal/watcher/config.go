package watcher

import "time"

// Config configures the Watcher.
type Config struct {
	// PrimaryURL is the upstream WebSocket endpoint including credentials.
	PrimaryURL string
	// BackupURL is an optional second endpoint with a different credential.
	BackupURL string
	// BackupGrace delays the backup connection.
	BackupGrace time.Duration
	// WatchedAddresses scopes the transaction subscription.
	WatchedAddresses []string

	CacheSize int
	DedupTTL  time.Duration

	HealthInterval   time.Duration
	SilenceThreshold time.Duration
	PingInterval     time.Duration

	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	MaxReconnects int

	// RestoreLimit bounds the entries reloaded from the durable store on open.
	RestoreLimit int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BackupGrace:      5 * time.Second,
		CacheSize:        1000,
		DedupTTL:         60 * time.Second,
		HealthInterval:   5 * time.Second,
		SilenceThreshold: 10 * time.Second,
		PingInterval:     30 * time.Second,
		BaseBackoff:      5 * time.Second,
		MaxBackoff:       60 * time.Second,
		MaxReconnects:    10,
		RestoreLimit:     300,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BackupGrace <= 0 {
		c.BackupGrace = d.BackupGrace
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = d.DedupTTL
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = d.HealthInterval
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = d.SilenceThreshold
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = d.MaxReconnects
	}
	if c.RestoreLimit < 0 {
		c.RestoreLimit = 0
	}
	return c
}
