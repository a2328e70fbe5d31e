package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Settings holds the host settings of the probekit agent.
// They configure the host itself, not the plugins: plugin sections live in the
// TOML document named by PluginConfig.
type Settings struct {
	// Plugin discovery
	PluginDirs []string
	Libraries  []string

	// PluginConfig is the path of the TOML document with one table per plugin
	PluginConfig string

	// Reload configuration
	Reload ReloadConfig

	// Journal configuration
	Journal JournalConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ReloadConfig controls when the running plugins are restarted in a new session
// besides SIGHUP.
type ReloadConfig struct {
	// WatchConfig restarts the session when the plugin configuration file changes
	WatchConfig bool
	Debounce    time.Duration

	// Schedule is a cron expression; empty disables scheduled restarts
	Schedule string
}

// JournalConfig selects where plugin lifecycle events are recorded.
// Both may be set; both empty disables the journal.
type JournalConfig struct {
	Dir string
	// DSN is sqlite3://PATH or postgres://...
	DSN string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Status server (metrics and health); disabled when empty
	StatusAddr string

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// Setting keys, shared with the command line flags
const (
	KeyPluginDirs    = "plugin-dirs"
	KeyLibraries     = "libraries"
	KeyPluginConfig  = "plugin-config"
	KeySettingsFile  = "settings"
	KeyLogLevel      = "log-level"
	KeyLogFormat     = "log-format"
	KeyStatusAddr    = "status-addr"
	KeyOTelEnabled   = "otel-enabled"
	KeyOTelEndpoint  = "otel-endpoint"
	KeyOTelService   = "otel-service-name"
	KeyOTelVersion   = "otel-service-version"
	KeyOTelInsecure  = "otel-insecure"
	KeyWatchConfig   = "watch-config"
	KeyWatchDebounce = "watch-debounce"
	KeySchedule      = "restart-schedule"
	KeyJournalDir    = "journal-dir"
	KeyJournalDSN    = "journal-dsn"
	envPrefix        = "PROBEKIT"
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// NewViper returns a viper instance with the defaults and environment binding
// used by LoadSettings. Environment variables use the PROBEKIT_ prefix, e.g.
// PROBEKIT_LOG_LEVEL or PROBEKIT_PLUGIN_DIRS.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyPluginDirs, []string{})
	v.SetDefault(KeyLibraries, []string{})
	v.SetDefault(KeyPluginConfig, "probekit.toml")
	v.SetDefault(KeyLogLevel, defaultLogLevel)
	v.SetDefault(KeyLogFormat, defaultLogFormat)
	v.SetDefault(KeyStatusAddr, "")
	v.SetDefault(KeyOTelEnabled, false)
	v.SetDefault(KeyOTelEndpoint, "localhost:4317")
	v.SetDefault(KeyOTelService, "probekit")
	v.SetDefault(KeyOTelVersion, "1.0.0")
	v.SetDefault(KeyOTelInsecure, true)
	v.SetDefault(KeyWatchConfig, false)
	v.SetDefault(KeyWatchDebounce, time.Second)
	v.SetDefault(KeySchedule, "")
	v.SetDefault(KeyJournalDir, "")
	v.SetDefault(KeyJournalDSN, "")
	return v
}

// LoadSettings reads the settings from v. When the "settings" key names a
// YAML file, it is merged below flags and environment variables.
func LoadSettings(v *viper.Viper) (*Settings, error) {
	if path := v.GetString(KeySettingsFile); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
		}
	}

	s := &Settings{
		PluginDirs:   v.GetStringSlice(KeyPluginDirs),
		Libraries:    v.GetStringSlice(KeyLibraries),
		PluginConfig: v.GetString(KeyPluginConfig),
		Reload: ReloadConfig{
			WatchConfig: v.GetBool(KeyWatchConfig),
			Debounce:    v.GetDuration(KeyWatchDebounce),
			Schedule:    strings.TrimSpace(v.GetString(KeySchedule)),
		},
		Journal: JournalConfig{
			Dir: v.GetString(KeyJournalDir),
			DSN: v.GetString(KeyJournalDSN),
		},
		Observability: ObservabilityConfig{
			LogLevel:           strings.ToLower(v.GetString(KeyLogLevel)),
			LogFormat:          strings.ToLower(v.GetString(KeyLogFormat)),
			StatusAddr:         v.GetString(KeyStatusAddr),
			OTelEnabled:        v.GetBool(KeyOTelEnabled),
			OTelEndpoint:       v.GetString(KeyOTelEndpoint),
			OTelServiceName:    v.GetString(KeyOTelService),
			OTelServiceVersion: v.GetString(KeyOTelVersion),
			OTelInsecure:       v.GetBool(KeyOTelInsecure),
		},
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

// Validate checks if the settings are valid
func (s *Settings) Validate() error {
	switch s.Observability.LogLevel {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be trace, debug, info, warn, or error)", s.Observability.LogLevel)
	}

	switch s.Observability.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", s.Observability.LogFormat)
	}

	// Validate OpenTelemetry config
	if s.Observability.OTelEnabled {
		if s.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if s.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	if s.Reload.Debounce < 0 {
		return fmt.Errorf("invalid watch debounce: %s (must not be negative)", s.Reload.Debounce)
	}
	if s.Reload.Schedule != "" {
		if _, err := cron.ParseStandard(s.Reload.Schedule); err != nil {
			return fmt.Errorf("invalid restart schedule %q: %w", s.Reload.Schedule, err)
		}
	}

	if dsn := s.Journal.DSN; dsn != "" &&
		!strings.HasPrefix(dsn, "sqlite3://") && !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return fmt.Errorf("invalid journal DSN: must start with sqlite3://, postgres:// or postgresql://")
	}

	return nil
}
