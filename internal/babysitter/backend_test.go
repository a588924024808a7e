package babysitter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCommandMockBackend(t *testing.T) {
	cmd, err := buildCommand(context.Background(), Config{Backend: BackendMock, Port: 9000})
	require.NoError(t, err)
	assert.Contains(t, cmd.Args, "9000")
}

func TestBuildCommandCommandBackendRequiresCommand(t *testing.T) {
	_, err := buildCommand(context.Background(), Config{Backend: BackendCommand})
	assert.Error(t, err)
}

func TestBuildCommandConfigFileOverridesDerivedCommand(t *testing.T) {
	cfg := Config{
		Backend: BackendMock,
		Port:    9000,
		ConfigFile: &BackendConfig{
			Command: "/opt/custom-worker",
			Args:    []string{"--flag"},
			Env:     map[string]string{"FOO": "bar"},
		},
	}
	cmd, err := buildCommand(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "/opt/custom-worker", cmd.Path)
	assert.Contains(t, cmd.Args, "--flag")

	found := false
	for _, kv := range cmd.Env {
		if kv == "FOO=bar" {
			found = true
		}
	}
	assert.True(t, found, "config-file env must be merged into the child's environment")
}

func TestBuildCommandUnknownBackend(t *testing.T) {
	_, err := buildCommand(context.Background(), Config{Backend: "nonsense"})
	assert.Error(t, err)
}
