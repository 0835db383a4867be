// Package config resolves chronicle's settings from its config file,
// environment and defaults, plus the per-device identity that sync
// depends on.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix makes every setting reachable as CHRONICLE_<KEY>, with
	// dots replaced by underscores (CHRONICLE_SYNC_INTERVAL and so on).
	EnvPrefix = "CHRONICLE"

	// baseDirName under the user's home holds config, device identity
	// and, by default, the data root.
	baseDirName = ".chronicle"

	configName = "config"
	configType = "yaml"
)

// Config is the resolved runtime configuration.
type Config struct {
	// BaseDir holds config.yaml and device.json. Never synced.
	BaseDir string
	// DataRoot is the synced tree: objects/, sessions/ and the local
	// index database.
	DataRoot string
	// Remote is the git URL sync pushes to and pulls from. Empty means
	// local-only operation.
	Remote string
	// SyncInterval drives the background scheduler; zero disables it.
	SyncInterval time.Duration
	// ContextMaxChars bounds how much conversation Recent packs.
	ContextMaxChars int
	// SearchLimit is the default result count for searches.
	SearchLimit int
	// LogLevel is debug, info, warn or error.
	LogLevel string
	// LogJSON switches the log handler to JSON output.
	LogJSON bool
}

// Load resolves configuration from baseDir/config.yaml, the environment
// and defaults, in that order of increasing precedence for env over
// file. An empty baseDir means ~/.chronicle. A missing config file is
// fine; a malformed one is not.
func Load(v *viper.Viper, baseDir string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	if baseDir == "" {
		if env := os.Getenv(EnvPrefix + "_HOME"); env != "" {
			baseDir = env
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("resolve home directory: %w", err)
			}
			baseDir = filepath.Join(home, baseDirName)
		}
	}

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(baseDir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_root", filepath.Join(baseDir, "data"))
	v.SetDefault("sync.remote", "")
	v.SetDefault("sync.interval", "5m")
	v.SetDefault("context.max_chars", 8000)
	v.SetDefault("search.limit", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		BaseDir:         baseDir,
		DataRoot:        v.GetString("data_root"),
		Remote:          v.GetString("sync.remote"),
		SyncInterval:    v.GetDuration("sync.interval"),
		ContextMaxChars: v.GetInt("context.max_chars"),
		SearchLimit:     v.GetInt("search.limit"),
		LogLevel:        v.GetString("log.level"),
		LogJSON:         v.GetBool("log.json"),
	}
	if cfg.DataRoot == "" {
		return nil, errors.New("data_root is empty")
	}
	if cfg.ContextMaxChars <= 0 {
		cfg.ContextMaxChars = 8000
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 10
	}
	return cfg, nil
}
