package babysitter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBackendConfigFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"command":"/bin/worker","args":["--flag"],"work_dir":"/tmp"}`), 0o644))

	cfg, err := LoadBackendConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/bin/worker", cfg.Command)
	assert.Equal(t, []string{"--flag"}, cfg.Args)
	assert.Equal(t, "/tmp", cfg.WorkDir)
}

func TestLoadBackendConfigFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("command: /bin/worker\nargs:\n  - --flag\nenv:\n  FOO: bar\n"), 0o644))

	cfg, err := LoadBackendConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/bin/worker", cfg.Command)
	assert.Equal(t, map[string]string{"FOO": "bar"}, cfg.Env)
}

func TestLoadBackendConfigFileMissingErrors(t *testing.T) {
	_, err := LoadBackendConfigFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
