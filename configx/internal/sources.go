package internal

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvSnapshot returns every environment variable whose name starts with prefix.
// An empty prefix returns the whole environment.
func EnvSnapshot(prefix string) map[string]string {
	snapshot := make(map[string]string)
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		snapshot[key] = value
	}
	return snapshot
}

// DecodeYAMLFile decodes the YAML document at path into target.
// Fields absent from the document keep their current values.
func DecodeYAMLFile(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}
