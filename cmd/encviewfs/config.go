package main

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
)

// fileConfig is the YAML configuration file. Command line flags override it;
// its Options are applied before the -o options.
type fileConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
	CacheSize   int
	Options     string
}

func loadConfig(path string) (*fileConfig, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}
