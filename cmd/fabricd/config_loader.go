package main

import (
	"fmt"
	"os"

	"github.com/agentfabric/coordinator/pkg/config"
	"gopkg.in/yaml.v3"
)

// loadConfigFile reads and parses a fabricd config file, starting from
// config.DefaultConfig so omitted fields keep their defaults.
func loadConfigFile(path string) (*config.Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is an operator-supplied CLI flag or well-known config path
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := config.DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
