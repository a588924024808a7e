package registry

import "time"

// Config configures a Registry process (spec §6: port, health_interval,
// health_timeout, cleanup_interval).
type Config struct {
	Port            int
	HealthInterval  time.Duration
	HealthTimeout   time.Duration
	CleanupInterval time.Duration
}

// WithDefaults returns a copy of c with any zero-valued field replaced by
// its documented default.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = 8081
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = DefaultHealthTimeout
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	return c
}
