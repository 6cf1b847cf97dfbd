// Package config loads the optional YAML defaults file for collab's host
// and join commands. Precedence (highest first) is command-line flags,
// then environment variables, then this file, then the built-in defaults
// below — cmd wires flags and environment through viper on top of what
// Load returns here.
package config

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Config holds the on-disk defaults for collab host/join.
type Config struct {
	Bind        string   `yaml:"bind"`
	Port        int      `yaml:"port"`
	Token       string   `yaml:"token"`
	ExtraIgnore []string `yaml:"extra_ignore"`
	Backup      *bool    `yaml:"backup"`
}

// ShouldBackup returns whether join's pre-sync backup copy is enabled.
// Defaults to true when not explicitly set, matching join's --backup
// default.
func (c *Config) ShouldBackup() bool {
	if c.Backup == nil {
		return true
	}
	return *c.Backup
}

// applyDefaults fills in zero-value fields with the built-in defaults.
func applyDefaults(cfg *Config) {
	if cfg.Bind == "" {
		cfg.Bind = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 7420
	}
}

// Dir returns the collab configuration directory, ~/.vasc-collab.
func Dir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".vasc-collab"), nil
}

// Path returns the default config file path, ~/.vasc-collab/config.yaml.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config file at path (or the default location if path is
// empty) and returns it with defaults applied. A missing file is not an
// error; it yields the built-in defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = Path()
		if err != nil {
			return nil, err
		}
	}

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}
