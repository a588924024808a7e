package babysitter

import (
	"encoding/json"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadBackendConfigFile parses path (JSON or YAML, chosen by extension)
// into a BackendConfig, the structured override form named by spec §6's
// optional config_file.
func LoadBackendConfigFile(path string) (*BackendConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg BackendConfig
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
