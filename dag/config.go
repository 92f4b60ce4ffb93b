package dag

import "fmt"

// Config holds executor tuning.
type Config struct {
	// MaxParallel limits concurrent nodes per level (0 = unlimited).
	MaxParallel int `mapstructure:"max_parallel"`

	// KeysBatchSize caps how many entities a keys node looks up per
	// MultiGet round trip. Lookups start with one entity and double.
	KeysBatchSize int `mapstructure:"keys_batch_size"`

	// TolerateStoreErrors makes keys nodes treat an unreachable state
	// store as absent state instead of failing.
	TolerateStoreErrors bool `mapstructure:"tolerate_store_errors"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.KeysBatchSize <= 0 {
		c.KeysBatchSize = 100
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.MaxParallel < 0 {
		return fmt.Errorf("executor: max_parallel must be >= 0, got %d", c.MaxParallel)
	}
	if c.KeysBatchSize <= 0 {
		return fmt.Errorf("executor: keys_batch_size must be > 0, got %d", c.KeysBatchSize)
	}
	return nil
}
