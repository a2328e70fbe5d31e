package dylib

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/probekit/pkg/config"
)

func TestFromConfig(t *testing.T) {
	nested := config.NewTable()
	nested.Set("depth", config.Integer(2))

	table := config.NewTable()
	table.Set("interval_ms", config.Integer(100))
	table.Set("name", config.String("demo"))
	table.Set("ratio", config.Float(0.5))
	table.Set("enabled", config.Boolean(true))
	table.Set("since", config.Datetime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	table.Set("zones", config.Array(config.Integer(0), config.Integer(1)))
	table.Set("nested", config.TableValue(nested))

	abi, err := FromConfig(table)
	require.NoError(t, err)
	require.Len(t, abi.Entries, 7)

	keys := make([]string, 0, len(abi.Entries))
	for _, e := range abi.Entries {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, table.Keys(), keys, "entries keep the table order")

	v, ok := abi.Lookup("interval_ms")
	require.True(t, ok)
	assert.Equal(t, ValueInteger, v.Kind)
	assert.Equal(t, int64(100), v.Integer)

	v, _ = abi.Lookup("name")
	assert.Equal(t, ValueString, v.Kind)
	assert.Equal(t, "demo", v.String)

	v, _ = abi.Lookup("ratio")
	assert.Equal(t, ValueFloat, v.Kind)
	assert.Equal(t, 0.5, v.Float)

	v, _ = abi.Lookup("enabled")
	assert.Equal(t, ValueBoolean, v.Kind)
	assert.True(t, v.Boolean)

	v, _ = abi.Lookup("since")
	assert.Equal(t, ValueString, v.Kind)
	assert.Equal(t, "2024-01-02T03:04:05Z", v.String)

	v, _ = abi.Lookup("zones")
	assert.Equal(t, ValueArray, v.Kind)
	require.Len(t, v.Array, 2)
	assert.Equal(t, int64(1), v.Array[1].Integer)

	v, _ = abi.Lookup("nested")
	assert.Equal(t, ValueTable, v.Kind)
	depth, ok := v.Table.Lookup("depth")
	require.True(t, ok)
	assert.Equal(t, int64(2), depth.Integer)

	_, ok = abi.Lookup("missing")
	assert.False(t, ok)
}

func TestFromConfig_RejectsNULBytes(t *testing.T) {
	tests := []struct {
		name  string
		table func() *config.Table
		want  string
	}{
		{
			name: "key",
			table: func() *config.Table {
				t := config.NewTable()
				t.Set("bad\x00key", config.Integer(1))
				return t
			},
			want: "contains a NUL byte",
		},
		{
			name: "nested string",
			table: func() *config.Table {
				inner := config.NewTable()
				inner.Set("path", config.String("a\x00b"))
				t := config.NewTable()
				t.Set("outer", config.TableValue(inner))
				return t
			},
			want: `"outer.path"`,
		},
		{
			name: "array item",
			table: func() *config.Table {
				t := config.NewTable()
				t.Set("list", config.Array(config.String("ok"), config.String("no\x00")))
				return t
			},
			want: `"list[1]"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromConfig(tt.table())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFromConfig_Empty(t *testing.T) {
	abi, err := FromConfig(config.NewTable())
	require.NoError(t, err)
	assert.Empty(t, abi.Entries)
}
