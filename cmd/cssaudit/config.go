package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yacobolo/cssaudit/internal/store"
)

const defaultConfigPath = ".cssaudit.yaml"

var k = koanf.New(".")

// loadConfig loads configuration with precedence: flags > env > file > defaults.
// It must be called after cobra parses flags (in PreRunE or RunE).
func loadConfig(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	if err := loadConfigFromPath(configPath); err != nil {
		return err
	}

	// CLI flags (highest precedence, only flags that were explicitly set).
	// Unset flag defaults must not shadow the file's section keys.
	fs := cmd.Flags()
	changed := func(f *pflag.Flag) (string, any) {
		if !f.Changed {
			return "", nil
		}
		return f.Name, posflag.FlagVal(fs, f)
	}
	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, changed), nil); err != nil {
		return fmt.Errorf("loading command flags: %w", err)
	}

	return nil
}

// loadConfigFromPath loads configuration from a file and environment variables.
// This is separated from loadConfig to allow testing without a cobra command.
func loadConfigFromPath(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("CSSAUDIT_", ".", envKey), nil); err != nil {
		return fmt.Errorf("loading environment variables: %w", err)
	}

	return nil
}

// envKey maps an environment variable to a config key. A single underscore
// separates sections and a double underscore stands for a hyphen:
//
//	CSSAUDIT_VERBOSE              -> verbose
//	CSSAUDIT_STORE_DSN            -> store.dsn
//	CSSAUDIT_SCAN_MAX__PAGES      -> scan.max-pages
//	CSSAUDIT_SERVER_RATE__LIMIT_RPS -> server.rate-limit.rps
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "CSSAUDIT_"))
	s = strings.ReplaceAll(s, "__", "-")
	return strings.ReplaceAll(s, "_", ".")
}

// buildSettings constructs the initial scan settings from koanf state.
// Stored settings win over these once a store has been seeded.
func buildSettings() store.Settings {
	defaults := store.DefaultSettings()
	return store.Settings{
		BaseURL:                   getStringWithFallback("base-url", "scan.base-url", ""),
		MaxPages:                  getIntWithFallback("max-pages", "scan.max-pages", defaults.MaxPages),
		ExcludePatterns:           getStringsWithFallback("exclude", "scan.exclude", []string{}),
		MonitoringIntervalMinutes: getIntWithFallback("interval", "monitoring.interval", defaults.MonitoringIntervalMinutes),
		MonitoringEnabled:         getBoolWithFallback("monitor", "monitoring.enabled", false),
		Fetch: store.FetchSettings{
			TimeoutMs:       int(getDurationWithFallback("timeout", "fetch.timeout", time.Duration(defaults.Fetch.TimeoutMs)*time.Millisecond) / time.Millisecond),
			ViewportWidth:   getIntWithFallback("viewport-width", "fetch.viewport-width", defaults.Fetch.ViewportWidth),
			ViewportHeight:  getIntWithFallback("viewport-height", "fetch.viewport-height", defaults.Fetch.ViewportHeight),
			UserAgent:       getStringWithFallback("user-agent", "fetch.user-agent", ""),
			WaitForSelector: getStringWithFallback("wait-for-selector", "fetch.wait-for-selector", ""),
		},
	}
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(getStringWithFallback("log-level", "log-level", "info"))); err != nil {
		level = slog.LevelInfo
	}
	if getBoolWithFallback("verbose", "verbose", false) {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// getStringWithFallback checks the flag key first, then the config file key, then returns the default.
func getStringWithFallback(flagKey, configKey, defaultVal string) string {
	if v := k.String(flagKey); v != "" {
		return v
	}
	if v := k.String(configKey); v != "" {
		return v
	}
	return defaultVal
}

// getStringsWithFallback is getStringWithFallback for lists.
func getStringsWithFallback(flagKey, configKey string, defaultVal []string) []string {
	if v := k.Strings(flagKey); len(v) > 0 {
		return v
	}
	if v := k.Strings(configKey); len(v) > 0 {
		return v
	}
	return defaultVal
}

// getBoolWithFallback checks the flag key first, then the config file key, then returns the default.
func getBoolWithFallback(flagKey, configKey string, defaultVal bool) bool {
	if k.Exists(flagKey) {
		return k.Bool(flagKey)
	}
	if k.Exists(configKey) {
		return k.Bool(configKey)
	}
	return defaultVal
}

// getIntWithFallback checks the flag key first, then the config file key, then returns the default.
func getIntWithFallback(flagKey, configKey string, defaultVal int) int {
	if k.Exists(flagKey) {
		return k.Int(flagKey)
	}
	if k.Exists(configKey) {
		return k.Int(configKey)
	}
	return defaultVal
}

// getFloat64WithFallback checks the flag key first, then the config file key, then returns the default.
func getFloat64WithFallback(flagKey, configKey string, defaultVal float64) float64 {
	if k.Exists(flagKey) {
		return k.Float64(flagKey)
	}
	if k.Exists(configKey) {
		return k.Float64(configKey)
	}
	return defaultVal
}

// getDurationWithFallback checks the flag key first, then the config file key, then returns the default.
func getDurationWithFallback(flagKey, configKey string, defaultVal time.Duration) time.Duration {
	if k.Exists(flagKey) {
		return k.Duration(flagKey)
	}
	if k.Exists(configKey) {
		return k.Duration(configKey)
	}
	return defaultVal
}
