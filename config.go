package throttle

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadGroupConfig parses a YAML document into a GroupConfig and validates it.
//
// Example:
//
//	kind: bucketed
//	rate: 100
//	max_seconds: 16
//	buckets_per_second: 4
//	interval: 10
//	idle_timeout: 10m
//
// The hooks (TimeFunc, SleepFunc, Logger, Registerer) are left empty.
func LoadGroupConfig(data []byte) (*GroupConfig, error) {
	var config GroupConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			// raised by the enum fields
			return nil, cfgErr
		}
		return nil, &ConfigurationError{
			Parameter: "yaml",
			Reason:    err.Error(),
		}
	}

	if _, err := validateGroupConfiguration(&config, NewNoOpLogger()); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadGroupConfigFile reads and parses a YAML configuration file.
func LoadGroupConfigFile(path string) (*GroupConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading throttle configuration: %w", err)
	}
	return LoadGroupConfig(data)
}
