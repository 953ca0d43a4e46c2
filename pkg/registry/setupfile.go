package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SetupFile maps device names to named setups.
type SetupFile map[string]map[string]Setup

// ParseSetupFile parses setups from YAML bytes.
func ParseSetupFile(data []byte) (SetupFile, error) {
	var f SetupFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing setup file: %w", err)
	}
	return f, nil
}

// LoadSetupFile reads a setup file and adds its setups to the registry.
// Every device named in the file must be registered.
func (r *Registry) LoadSetupFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := ParseSetupFile(data)
	if err != nil {
		return err
	}

	for deviceName := range f {
		if _, err := r.Lookup(deviceName); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	for deviceName, setups := range f {
		if err := r.AddSetups(deviceName, setups); err != nil {
			return err
		}
	}
	return nil
}
