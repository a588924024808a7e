package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadStaticServicesFileBareArrayJSON(t *testing.T) {
	path := writeTempFile(t, "svc.json", `[{"name":"a","host":"h","port":1}]`)
	entries, err := LoadStaticServicesFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a", entries[0].Name)
}

func TestLoadStaticServicesFileServicesWrapperJSON(t *testing.T) {
	path := writeTempFile(t, "svc.json", `{"services":[{"name":"a","host":"h","port":1}]}`)
	entries, err := LoadStaticServicesFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a", entries[0].Name)
}

func TestLoadStaticServicesFileNestedStaticServicesJSON(t *testing.T) {
	path := writeTempFile(t, "svc.json", `{"static_services":{"services":[{"name":"a","host":"h","port":1}]}}`)
	entries, err := LoadStaticServicesFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a", entries[0].Name)
}

func TestLoadStaticServicesFileYAML(t *testing.T) {
	path := writeTempFile(t, "svc.yaml", "services:\n  - name: a\n    host: h\n    port: 1\n")
	entries, err := LoadStaticServicesFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a", entries[0].Name)
}

func TestLoadStaticServicesFileUnrecognizedShapeErrors(t *testing.T) {
	path := writeTempFile(t, "svc.json", `{"unrelated":true}`)
	_, err := LoadStaticServicesFile(path)
	assert.Error(t, err)
}

func TestLoadStaticServicesFileMissingFileErrors(t *testing.T) {
	_, err := LoadStaticServicesFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
