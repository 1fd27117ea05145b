// Package configfile reads and writes the project's metadata.json, the
// small JSON file inside .tandem/ that records where the database and
// mapping config live. Settings that affect behavior belong in
// config.yaml; metadata.json only locates files.
package configfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const ConfigFileName = "metadata.json"

type Config struct {
	Database string `json:"database"`
	Engine   string `json:"engine,omitempty"`

	// MappingFile names the table mapping config, relative to the
	// project directory, when one is in use.
	MappingFile string `json:"mapping_file,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: "tandem.db",
		Engine:   "sqlite",
	}
}

func ConfigPath(projectDir string) string {
	return filepath.Join(projectDir, ConfigFileName)
}

// Load reads metadata.json from the project directory. Returns
// (nil, nil) when the file does not exist.
func Load(projectDir string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(projectDir)) // #nosec G304 -- controlled path from project dir
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Save(projectDir string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	if err := os.WriteFile(ConfigPath(projectDir), data, 0o600); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

// DatabasePath resolves the database location. Absolute paths and
// non-sqlite DSNs pass through untouched; plain file names resolve
// inside the project directory.
func (c *Config) DatabasePath(projectDir string) string {
	if c.Engine != "" && c.Engine != "sqlite" {
		return c.Database
	}
	if filepath.IsAbs(c.Database) {
		return c.Database
	}
	return filepath.Join(projectDir, c.Database)
}

// MappingPath resolves the mapping config location, or "" when no
// mapping file is configured.
func (c *Config) MappingPath(projectDir string) string {
	if c.MappingFile == "" {
		return ""
	}
	if filepath.IsAbs(c.MappingFile) {
		return c.MappingFile
	}
	return filepath.Join(projectDir, c.MappingFile)
}
