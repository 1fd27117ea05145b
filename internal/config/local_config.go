package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig is the subset of config.yaml read directly from disk,
// bypassing the viper singleton. Useful when the working directory has
// changed since Initialize, or before Initialize has run.
type LocalConfig struct {
	DB      string `yaml:"db"`
	Engine  string `yaml:"engine"`
	Remote  remote `yaml:"remote"`
	Mapping mapp   `yaml:"mapping"`
	JSON    bool   `yaml:"json"`
}

type remote struct {
	DSN    string `yaml:"dsn"`
	Engine string `yaml:"engine"`
}

type mapp struct {
	Path string `yaml:"path"`
}

// LoadLocalConfig reads config.yaml from the given project directory.
// Returns an empty LocalConfig (not nil) if the file is missing or
// unparseable.
func LoadLocalConfig(dir string) *LocalConfig {
	path := filepath.Join(dir, ConfigFileName)
	data, err := os.ReadFile(path) // #nosec G304 -- path derives from the project directory
	if err != nil {
		return &LocalConfig{}
	}

	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &LocalConfig{}
	}
	return &cfg
}

// LoadLocalConfigWithEnv reads config.yaml and applies environment
// overrides. Environment variables win over file values.
func LoadLocalConfigWithEnv(dir string) *LocalConfig {
	cfg := LoadLocalConfig(dir)

	if dsn := os.Getenv("TANDEM_REMOTE_DSN"); dsn != "" {
		cfg.Remote.DSN = dsn
	}
	if engine := os.Getenv("TANDEM_REMOTE_ENGINE"); engine != "" {
		cfg.Remote.Engine = engine
	}
	return cfg
}
