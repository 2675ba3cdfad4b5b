package cache

import (
	"fmt"
	"time"
)

// Config holds the tuning knobs for the in-process cache store.
type Config struct {
	// Capacity defines the maximum number of entries the store can hold.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of store shards for concurrent access.
	// Higher values improve concurrency at the cost of memory overhead.
	NumShards int

	// DefaultTTL caps the lifetime of any entry. Per-call TTLs shorter than
	// this are enforced logically by the store; longer ones are clamped.
	DefaultTTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict when
	// the store reaches capacity. Must be between 1 and 100.
	EvictionPercentage int

	// EvictionInterval sets how often the store sweeps expired entries.
	// Zero uses the backend default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          64,
		DefaultTTL:         15 * time.Minute,
		EvictionPercentage: 10,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.DefaultTTL <= 0 {
		return &ConfigError{Field: "DefaultTTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	return nil
}

// ConfigError describes an invalid cache configuration value.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cache config error in field %s: %s", e.Field, e.Message)
}
