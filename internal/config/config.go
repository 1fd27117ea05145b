// Package config loads host configuration for tandem from the project's
// .tandem/config.yaml, with TANDEM_* environment overrides layered on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProjectDirName is the per-project directory holding config and state.
const ProjectDirName = ".tandem"

// ConfigFileName is the yaml config file inside the project directory.
const ConfigFileName = "config.yaml"

var v *viper.Viper

// Initialize loads config.yaml from the nearest .tandem directory at or
// above the current working directory, applies defaults, and enables
// TANDEM_* environment overrides (dots become underscores, e.g.
// TANDEM_REMOTE_DSN for remote.dsn). Missing config files are not an
// error; defaults and environment still apply.
func Initialize() error {
	dir, _ := FindProjectDir()
	return InitializeFrom(dir)
}

// InitializeFrom is Initialize with an explicit project directory. An
// empty dir skips file loading entirely.
func InitializeFrom(dir string) error {
	nv := viper.New()
	nv.SetConfigType("yaml")
	nv.SetEnvPrefix("TANDEM")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	nv.AutomaticEnv()

	setDefaults(nv)

	if dir != "" {
		path := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			nv.SetConfigFile(path)
			if err := nv.ReadInConfig(); err != nil {
				return fmt.Errorf("reading %s: %w", ConfigFileName, err)
			}
		}
	}

	v = nv
	return nil
}

func setDefaults(nv *viper.Viper) {
	nv.SetDefault("db", "tandem.db")
	nv.SetDefault("engine", "sqlite")
	nv.SetDefault("remote.engine", "sqlite")
	nv.SetDefault("sync.batch-size", 500)
	nv.SetDefault("sync.with-hash", false)
	nv.SetDefault("conflict.strategy", "last-write-wins")
	nv.SetDefault("clients.stale-window", "30d")
}

// FindProjectDir walks up from the working directory looking for a
// .tandem directory.
func FindProjectDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, ProjectDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		if dir == filepath.Dir(dir) {
			break
		}
	}
	return "", fmt.Errorf("no %s directory found (run 'tandem init' first)", ProjectDirName)
}

// Accessors are nil-safe so callers can read config before Initialize
// (they see zero values).

func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// Set overrides a key in the live config (flag binding). It does not
// persist; use SetYamlConfig for that.
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// ValidKeys lists the recognized config.yaml keys and their purpose.
// `tandem config set` warns on anything not listed here.
var ValidKeys = map[string]string{
	"db":                   "local database path or DSN",
	"engine":               "local database engine (sqlite, mysql, dolt)",
	"remote.dsn":           "remote peer DSN",
	"remote.engine":        "remote peer engine (sqlite, mysql, dolt)",
	"sync.batch-size":      "entries fetched per batch",
	"sync.with-hash":       "attach integrity hashes to batches",
	"conflict.strategy":    "conflict policy (last-write-wins, server-wins, client-wins)",
	"mapping.path":         "table mapping config file",
	"clients.stale-window": "inactivity window before a client counts as stale",
	"json":                 "machine-readable output by default",
}

// IsValidKey reports whether key is a recognized configuration key.
func IsValidKey(key string) bool {
	_, ok := ValidKeys[key]
	return ok
}

// Validate cross-checks the loaded configuration and returns one message
// per problem found. An empty slice means the config is usable.
func Validate() []string {
	var issues []string

	validEngines := map[string]bool{"sqlite": true, "mysql": true, "dolt": true}
	if e := GetString("engine"); !validEngines[e] {
		issues = append(issues, fmt.Sprintf("engine: %q is invalid (valid values: sqlite, mysql, dolt)", e))
	}
	if e := GetString("remote.engine"); e != "" && !validEngines[e] {
		issues = append(issues, fmt.Sprintf("remote.engine: %q is invalid (valid values: sqlite, mysql, dolt)", e))
	}

	validStrategies := map[string]bool{
		"":                true,
		"last-write-wins": true,
		"server-wins":     true,
		"client-wins":     true,
	}
	if s := GetString("conflict.strategy"); !validStrategies[s] {
		issues = append(issues, fmt.Sprintf("conflict.strategy: %q is invalid (valid values: last-write-wins, server-wins, client-wins)", s))
	}

	if n := GetInt("sync.batch-size"); n < 0 {
		issues = append(issues, fmt.Sprintf("sync.batch-size: %d is invalid (must be positive)", n))
	}

	if p := GetString("mapping.path"); p != "" {
		if _, err := os.Stat(p); err != nil {
			issues = append(issues, fmt.Sprintf("mapping.path: %q does not exist", p))
		}
	}

	return issues
}
