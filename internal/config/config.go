package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds server settings loadable from a YAML file.
// Flags override file values; file values override defaults.
type Config struct {
	Port         int    `yaml:"port"`
	DBPath       string `yaml:"db"`
	CompanyName  string `yaml:"company_name"`
	SessionHours int    `yaml:"session_hours"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:         9000,
		DBPath:       "partsdesk.db",
		CompanyName:  "Your Shop",
		SessionHours: 24,
	}
}

// Load reads a YAML config file, applying its values over the defaults.
// A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Port == 0 {
		cfg.Port = 9000
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "partsdesk.db"
	}
	if cfg.SessionHours <= 0 {
		cfg.SessionHours = 24
	}
	return cfg, nil
}
