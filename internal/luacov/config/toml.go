package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// LoadTOMLConfig loads a declarative luacov.toml configuration file.
func LoadTOMLConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing TOML config %s: %w", path, err)
	}
	return cfg, nil
}
