package dylib

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/probekit/pkg/config"
)

// ValueKind is the ABI tag of a ConfigValue.
// The numeric values are part of the plugin ABI and must not change.
type ValueKind uint8

const (
	ValueString  ValueKind = 0
	ValueInteger ValueKind = 1
	ValueFloat   ValueKind = 2
	ValueBoolean ValueKind = 3
	ValueArray   ValueKind = 4
	ValueTable   ValueKind = 5
)

// ConfigValue is a configuration value in the form exposed to dynamic plugins
type ConfigValue struct {
	Kind    ValueKind
	String  string
	Integer int64
	Float   float64
	Boolean bool
	Array   []ConfigValue
	Table   *ConfigTable
}

// ConfigEntry is one key of a ConfigTable
type ConfigEntry struct {
	Key   string
	Value ConfigValue
}

// ConfigTable is the ABI-stable form of a configuration table: an ordered list
// of entries with typed leaves. Datetimes are converted to RFC 3339 strings.
type ConfigTable struct {
	Entries []ConfigEntry
}

// FromConfig converts a configuration table for a dynamic plugin.
// Keys and strings cross the boundary as C strings and must not contain NUL bytes.
func FromConfig(t *config.Table) (*ConfigTable, error) {
	return convertTable(t, "")
}

// Lookup returns the value stored under key
func (t *ConfigTable) Lookup(key string) (ConfigValue, bool) {
	if t == nil {
		return ConfigValue{}, false
	}
	for _, e := range t.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return ConfigValue{}, false
}

// Path returns the value at a dotted path: "server.port" descends into
// tables and "targets.0" indexes arrays. Keys containing a dot are only
// reachable with Lookup.
func (t *ConfigTable) Path(path string) (ConfigValue, bool) {
	segments := strings.Split(path, ".")
	v, ok := t.Lookup(segments[0])
	for _, seg := range segments[1:] {
		if !ok {
			break
		}
		switch v.Kind {
		case ValueTable:
			v, ok = v.Table.Lookup(seg)
		case ValueArray:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v.Array) {
				return ConfigValue{}, false
			}
			v = v.Array[i]
		default:
			return ConfigValue{}, false
		}
	}
	if !ok {
		return ConfigValue{}, false
	}
	return v, true
}

func convertTable(t *config.Table, prefix string) (*ConfigTable, error) {
	out := &ConfigTable{Entries: make([]ConfigEntry, 0, t.Len())}
	for _, key := range t.Keys() {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if strings.IndexByte(key, 0) >= 0 {
			return nil, fmt.Errorf("key %q contains a NUL byte", path)
		}
		v, _ := t.Get(key)
		converted, err := convertValue(v, path)
		if err != nil {
			return nil, err
		}
		out.Entries = append(out.Entries, ConfigEntry{Key: key, Value: converted})
	}
	return out, nil
}

func convertValue(v config.Value, path string) (ConfigValue, error) {
	switch v.Kind() {
	case config.KindString:
		s, _ := v.AsString()
		if strings.IndexByte(s, 0) >= 0 {
			return ConfigValue{}, fmt.Errorf("value of %q contains a NUL byte", path)
		}
		return ConfigValue{Kind: ValueString, String: s}, nil
	case config.KindInteger:
		i, _ := v.AsInteger()
		return ConfigValue{Kind: ValueInteger, Integer: i}, nil
	case config.KindFloat:
		f, _ := v.AsFloat()
		return ConfigValue{Kind: ValueFloat, Float: f}, nil
	case config.KindBoolean:
		b, _ := v.AsBoolean()
		return ConfigValue{Kind: ValueBoolean, Boolean: b}, nil
	case config.KindDatetime:
		t, _ := v.AsDatetime()
		return ConfigValue{Kind: ValueString, String: t.Format(time.RFC3339Nano)}, nil
	case config.KindArray:
		items, _ := v.AsArray()
		arr := make([]ConfigValue, 0, len(items))
		for i, item := range items {
			converted, err := convertValue(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return ConfigValue{}, err
			}
			arr = append(arr, converted)
		}
		return ConfigValue{Kind: ValueArray, Array: arr}, nil
	case config.KindTable:
		sub, _ := v.AsTable()
		table, err := convertTable(sub, path)
		if err != nil {
			return ConfigValue{}, err
		}
		return ConfigValue{Kind: ValueTable, Table: table}, nil
	default:
		return ConfigValue{}, fmt.Errorf("unsupported value kind %s at %q", v.Kind(), path)
	}
}
