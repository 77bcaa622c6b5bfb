package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level slicenet configuration.
type Config struct {
	Slice SliceConfig `yaml:"slice"`
}

// SliceConfig configures one infrastructure slice.
type SliceConfig struct {
	// Name of the slice. Service names are unique within a slice.
	Name string `yaml:"name"`

	// StatePath is where the topology snapshot is persisted.
	StatePath string `yaml:"statePath"`

	// DefaultVLAN is the tag applied to both ends of a new point-to-point
	// link when neither interface carries one.
	DefaultVLAN string `yaml:"defaultVLAN"`

	// ListenAddr for the read-only inspection API, empty to disable.
	ListenAddr string `yaml:"listenAddr"`
}

// Load reads and parses a config file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills in unset fields.
func (c *Config) ApplyDefaults() {
	if c.Slice.DefaultVLAN == "" {
		c.Slice.DefaultVLAN = "100"
	}
}
