// Package babysitter supervises a single worker process: it spawns and
// restarts the child, waits for it to become ready, registers both
// itself and the worker with the Registry, and exposes a small local
// control HTTP surface.
package babysitter

import (
	"strconv"
	"time"
)

// Backend is the tagged discriminant over supported worker kinds (spec
// §4.4, §9). Each variant carries its own command-construction rule in
// backend.go.
type Backend string

const (
	BackendCommand      Backend = "command"
	BackendInfiniLM     Backend = "InfiniLM"
	BackendInfiniLMRust Backend = "InfiniLM-Rust"
	BackendVLLM         Backend = "vLLM"
	BackendMock         Backend = "mock"
)

const (
	DefaultMaxRestarts       = 10000
	DefaultRestartDelay      = 5 * time.Second
	DefaultHeartbeatInterval = 15 * time.Second
)

// BackendConfig is the structured, backend-specific form that may
// arrive via Config.ConfigFile instead of bare Command/Args (spec §6:
// "optional config_file, alternative structured form tagged by backend
// kind").
type BackendConfig struct {
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	WorkDir string            `yaml:"work_dir,omitempty" json:"work_dir,omitempty"`
}

// Config is a Babysitter process's full configuration surface (spec §6).
type Config struct {
	Name     string
	Host     string
	Port     int
	Backend  Backend
	Path     string
	Command  string
	Args     []string
	WorkDir  string
	Env      map[string]string

	RegistryURL string

	MaxRestarts       int
	RestartDelay      time.Duration
	HeartbeatInterval time.Duration

	ConfigFile *BackendConfig
	Metadata   map[string]any
}

// WithDefaults returns a copy of c with documented defaults applied to
// any zero-valued field, and a generated Name if none was supplied
// (spec §6: "name?").
func (c Config) WithDefaults() Config {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Name == "" {
		c.Name = defaultServiceName(string(c.Backend), c.Port)
	}
	if c.MaxRestarts <= 0 {
		c.MaxRestarts = DefaultMaxRestarts
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = DefaultRestartDelay
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return c
}

func defaultServiceName(backend string, port int) string {
	if backend == "" {
		backend = "worker"
	}
	return backend + "-" + strconv.Itoa(port)
}
