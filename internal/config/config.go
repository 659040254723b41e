// Package config holds the viper-backed configuration singleton.
// Precedence: env vars (SCHEDCU_*) > config file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the configuration singleton. Call once at startup,
// before any accessor. configFile, when non-empty, wins over the search
// path.
func Initialize(configFile string) error {
	v = viper.New()
	v.SetConfigType("yaml")

	fileSet := false
	if configFile != "" {
		v.SetConfigFile(configFile)
		fileSet = true
	}

	// Walk up from CWD so subdirectory invocations find the project
	// config.
	if !fileSet {
		if cwd, err := os.Getwd(); err == nil {
			for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
				path := filepath.Join(dir, "schedcu.yaml")
				if _, err := os.Stat(path); err == nil {
					v.SetConfigFile(path)
					fileSet = true
					break
				}
			}
		}
	}
	if !fileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			path := filepath.Join(configDir, "schedcu", "config.yaml")
			if _, err := os.Stat(path); err == nil {
				v.SetConfigFile(path)
				fileSet = true
			}
		}
	}

	v.SetEnvPrefix("SCHEDCU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if fileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data-dir", ".schedcu")
	v.SetDefault("locale", "en_US")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max-size-mb", 50)
	v.SetDefault("log.max-backups", 3)
	v.SetDefault("log.max-age-days", 28)

	// Empty addr selects the in-process KV backend.
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("scheduler.max-concurrent", 10)
	v.SetDefault("scheduler.lock-ttl", "300s")

	v.SetDefault("import.drop-dir", "")
	v.SetDefault("import.require-existing-blocks", false)
	v.SetDefault("import.resolution", "upsert")

	v.SetDefault("calendar.host", "localhost:8080")

	v.SetDefault("search.cache-ttl", "5m")
	v.SetDefault("search.max-facet-values", 20)
	v.SetDefault("search.dynamic-ordering", false)

	v.SetDefault("webhook.allowed-sources", []string{})
	v.SetDefault("webhook.timestamp-tolerance", "300s")

	v.SetDefault("compliance.sweep-cron", "0 2 * * *")
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

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

func GetStringSlice(key string) []string {
	if v == nil {
		return nil
	}
	return v.GetStringSlice(key)
}

// Set overrides a value at runtime. Used by CLI flag binding and tests.
func Set(key string, value any) {
	if v == nil {
		v = viper.New()
		setDefaults(v)
	}
	v.Set(key, value)
}

// Reset clears the singleton. Test use only.
func Reset() { v = nil }
