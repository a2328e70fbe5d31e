package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Defaults(t *testing.T) {
	s, err := LoadSettings(NewViper())
	require.NoError(t, err)

	assert.Empty(t, s.PluginDirs)
	assert.Empty(t, s.Libraries)
	assert.Equal(t, "probekit.toml", s.PluginConfig)
	assert.Equal(t, "info", s.Observability.LogLevel)
	assert.Equal(t, "text", s.Observability.LogFormat)
	assert.Empty(t, s.Observability.StatusAddr)
	assert.False(t, s.Observability.OTelEnabled)
	assert.False(t, s.Reload.WatchConfig)
	assert.Equal(t, time.Second, s.Reload.Debounce)
	assert.Empty(t, s.Reload.Schedule)
	assert.Empty(t, s.Journal.DSN)
}

func TestLoadSettings_Environment(t *testing.T) {
	t.Setenv("PROBEKIT_LOG_LEVEL", "DEBUG")
	t.Setenv("PROBEKIT_STATUS_ADDR", ":9090")
	t.Setenv("PROBEKIT_PLUGIN_CONFIG", "/etc/probekit/probekit.toml")

	s, err := LoadSettings(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "debug", s.Observability.LogLevel)
	assert.Equal(t, ":9090", s.Observability.StatusAddr)
	assert.Equal(t, "/etc/probekit/probekit.toml", s.PluginConfig)
}

func TestLoadSettings_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `
plugin-dirs:
  - /opt/plugins
  - /usr/lib/probekit
log-format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	v := NewViper()
	v.Set(KeySettingsFile, path)

	s, err := LoadSettings(v)
	require.NoError(t, err)

	assert.Equal(t, []string{"/opt/plugins", "/usr/lib/probekit"}, s.PluginDirs)
	assert.Equal(t, "json", s.Observability.LogFormat)
}

func TestLoadSettings_MissingFile(t *testing.T) {
	v := NewViper()
	v.Set(KeySettingsFile, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := LoadSettings(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read settings file")
}

func TestSettings_Validate(t *testing.T) {
	valid := func() *Settings {
		return &Settings{
			Observability: ObservabilityConfig{
				LogLevel:        "info",
				LogFormat:       "text",
				OTelEndpoint:    "localhost:4317",
				OTelServiceName: "probekit",
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Settings) {},
		},
		{
			name:    "bad log level",
			mutate:  func(s *Settings) { s.Observability.LogLevel = "loud" },
			wantErr: "invalid log level",
		},
		{
			name:    "bad log format",
			mutate:  func(s *Settings) { s.Observability.LogFormat = "xml" },
			wantErr: "invalid log format",
		},
		{
			name: "otel without endpoint",
			mutate: func(s *Settings) {
				s.Observability.OTelEnabled = true
				s.Observability.OTelEndpoint = ""
			},
			wantErr: "endpoint is required",
		},
		{
			name: "otel without service name",
			mutate: func(s *Settings) {
				s.Observability.OTelEnabled = true
				s.Observability.OTelServiceName = ""
			},
			wantErr: "service name is required",
		},
		{
			name:   "restart schedule",
			mutate: func(s *Settings) { s.Reload.Schedule = "0 3 * * *" },
		},
		{
			name:    "bad restart schedule",
			mutate:  func(s *Settings) { s.Reload.Schedule = "every day" },
			wantErr: "invalid restart schedule",
		},
		{
			name:    "negative debounce",
			mutate:  func(s *Settings) { s.Reload.Debounce = -time.Second },
			wantErr: "invalid watch debounce",
		},
		{
			name:   "sqlite journal",
			mutate: func(s *Settings) { s.Journal.DSN = "sqlite3:///var/lib/probekit/journal.db" },
		},
		{
			name:    "unknown journal driver",
			mutate:  func(s *Settings) { s.Journal.DSN = "mysql://localhost/journal" },
			wantErr: "invalid journal DSN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
