package plugins

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/probekit/pkg/config"
)

func TestSubConfig(t *testing.T) {
	doc, err := config.Parse([]byte(`
scalar = 42
list = [1, 2]

[demo]
interval_ms = 100

[other]
enabled = true
`))
	require.NoError(t, err)

	sub, err := SubConfig("demo", doc)
	require.NoError(t, err)
	interval, ok := sub.Integer("interval_ms")
	require.True(t, ok)
	assert.Equal(t, int64(100), interval)

	// the section is removed, not copied
	_, present := doc.Get("demo")
	assert.False(t, present)
	assert.Equal(t, []string{"scalar", "list", "other"}, doc.Keys())

	tests := []struct {
		name     string
		plugin   string
		sentinel error
		found    config.Kind
		errMsg   string
	}{
		{
			name:     "re-extracting is missing",
			plugin:   "demo",
			sentinel: ErrMissingConfig,
			errMsg:   "missing plugin configuration for 'demo'",
		},
		{
			name:     "unknown plugin",
			plugin:   "absent",
			sentinel: ErrMissingConfig,
			errMsg:   "missing plugin configuration for 'absent'",
		},
		{
			name:     "scalar section",
			plugin:   "scalar",
			sentinel: ErrConfigType,
			found:    config.KindInteger,
			errMsg:   "invalid plugin configuration for 'scalar': the value must be a table, not a integer",
		},
		{
			name:     "array section",
			plugin:   "list",
			sentinel: ErrConfigType,
			found:    config.KindArray,
			errMsg:   "the value must be a table, not a array",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SubConfig(tt.plugin, doc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel))

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.plugin, cfgErr.Plugin)
			if tt.sentinel == ErrConfigType {
				assert.Equal(t, tt.found, cfgErr.Found)
			}
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	// the other section is untouched
	other, err := SubConfig("other", doc)
	require.NoError(t, err)
	enabled, _ := other.Boolean("enabled")
	assert.True(t, enabled)
}

func TestSubConfig_NilDocument(t *testing.T) {
	_, err := SubConfig("demo", nil)
	assert.True(t, errors.Is(err, ErrMissingConfig))
}
