package babysitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{Backend: BackendMock, Port: 9000}.WithDefaults()
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, "mock-9000", cfg.Name)
	assert.Equal(t, DefaultMaxRestarts, cfg.MaxRestarts)
	assert.Equal(t, DefaultRestartDelay, cfg.RestartDelay)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval)
}

func TestConfigWithDefaultsPreservesExplicitName(t *testing.T) {
	cfg := Config{Name: "custom", Backend: BackendMock, Port: 9000}.WithDefaults()
	assert.Equal(t, "custom", cfg.Name)
}
