package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"

	ftp "github.com/gonzalop/resumable-ftp"
)

const defaultConfigPath = "~/.ftpclient.yml"

// fileConfig is the YAML layout of the config file: the session settings
// plus client-side transfer tuning.
type fileConfig struct {
	ftp.Config `yaml:",inline"`

	// IdleTimeout switches the receive deadline from a total ceiling to an
	// idle timeout.
	IdleTimeout bool `yaml:"idle_timeout"`

	// Limit caps throughput in bytes per second.
	Limit int64 `yaml:"limit"`
}

// loadConfigFile reads a YAML config. A missing file is only an error when
// required is set.
func loadConfigFile(path string, required bool) (fileConfig, error) {
	var cfg fileConfig

	expanded, err := homedir.Expand(path)
	if err != nil {
		return cfg, fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", expanded, err)
	}
	return cfg, nil
}

// resolveConfig loads the config file named by --config and lets flags and
// their environment variables override it.
func resolveConfig(c *cli.Context) (fileConfig, error) {
	cfg, err := loadConfigFile(c.GlobalString("config"), c.GlobalIsSet("config"))
	if err != nil {
		return cfg, err
	}

	if c.GlobalIsSet("host") {
		cfg.Host = c.GlobalString("host")
	}
	if c.GlobalIsSet("port") {
		cfg.Port = c.GlobalInt("port")
	}
	if c.GlobalIsSet("user") {
		cfg.Username = c.GlobalString("user")
	}
	if c.GlobalIsSet("password") {
		cfg.Password = c.GlobalString("password")
	}
	if c.GlobalIsSet("path") {
		cfg.Path = c.GlobalString("path")
	}
	if c.GlobalIsSet("timeout") {
		cfg.Timeout = c.GlobalDuration("timeout")
	}
	if c.GlobalIsSet("limit") {
		cfg.Limit = c.GlobalInt64("limit")
	}
	if c.GlobalBool("verbose") {
		cfg.Verbose = true
	}
	if c.GlobalBool("idle-timeout") {
		cfg.IdleTimeout = true
	}

	if cfg.Username == "" {
		cfg.Username = "anonymous"
	}
	return cfg, nil
}
