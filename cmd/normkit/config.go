package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the normkit configuration file (~/.config/normkit/config.yaml).
// Numeric fields are pointers so we can distinguish "not set" from zero values.
type Config struct {
	Device           string `yaml:"device"`
	MaxWorkGroupSize *int64 `yaml:"max_work_group_size"`
	ComputeUnits     *int64 `yaml:"compute_units"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
	MaxElements   *int64 `yaml:"max_elements"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "normkit", "config.yaml")
}

// applyRootConfig applies config file defaults to the global flags when the
// corresponding flag was not explicitly set.
func applyRootConfig(c *cli.Command, cfg Config) {
	if cfg.Device != "" && !c.IsSet("device") {
		deviceProfile = cfg.Device
	}
	if cfg.MaxWorkGroupSize != nil && !c.IsSet("max-work-group-size") {
		maxWorkGroupSize = *cfg.MaxWorkGroupSize
	}
	if cfg.ComputeUnits != nil && !c.IsSet("compute-units") {
		computeUnits = *cfg.ComputeUnits
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string, maxElements *int64) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.MaxElements != nil && !c.IsSet("max-elements") {
		*maxElements = *cfg.MaxElements
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	cfg, err := loadConfigFile(path)
	if err != nil {
		return Config{}
	}
	return cfg
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
