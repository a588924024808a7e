package router

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// staticFileWrapped / staticFileNested mirror the two object shapes of
// the static services file (spec §6); the third accepted shape, a bare
// array, decodes straight into []StaticEntry.
type staticFileWrapped struct {
	Services []StaticEntry `json:"services" yaml:"services"`
}

type staticFileNested struct {
	StaticServices staticFileWrapped `json:"static_services" yaml:"static_services"`
}

// LoadStaticServicesFile parses path, accepting JSON or YAML and any of
// the three documented shapes: a bare array, `{services:[...]}`, or
// `{static_services:{services:[...]}}`.
func LoadStaticServicesFile(path string) ([]StaticEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return parseStaticServices(data, yaml.Unmarshal)
	}
	return parseStaticServices(data, json.Unmarshal)
}

func parseStaticServices(data []byte, unmarshal func([]byte, any) error) ([]StaticEntry, error) {
	var arr []StaticEntry
	if unmarshal(data, &arr) == nil && len(arr) > 0 {
		return arr, nil
	}

	var nested staticFileNested
	if unmarshal(data, &nested) == nil && len(nested.StaticServices.Services) > 0 {
		return nested.StaticServices.Services, nil
	}

	var wrapped staticFileWrapped
	if unmarshal(data, &wrapped) == nil && len(wrapped.Services) > 0 {
		return wrapped.Services, nil
	}

	return nil, fmt.Errorf("router: static services file matched none of the three accepted shapes")
}
