package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Parse decodes a TOML document into an ordered Table.
// Keys keep the order in which they appear in the document.
func Parse(data []byte) (*Table, error) {
	var raw map[string]any
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	order := make(map[string]int, len(md.Keys()))
	for i, key := range md.Keys() {
		path := keyPath(key)
		if _, seen := order[path]; !seen {
			order[path] = i
		}
	}

	return buildTable(raw, nil, order)
}

// Load reads and parses a TOML file
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	return Parse(data)
}

func keyPath(key []string) string {
	return strings.Join(key, "\x00")
}

func buildTable(raw map[string]any, parent []string, order map[string]int) (*Table, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	position := func(k string) (int, bool) {
		p, ok := order[keyPath(append(append([]string(nil), parent...), k))]
		return p, ok
	}
	sort.SliceStable(keys, func(i, j int) bool {
		pi, oki := position(keys[i])
		pj, okj := position(keys[j])
		switch {
		case oki && okj:
			return pi < pj
		case oki != okj:
			return oki
		default:
			return keys[i] < keys[j]
		}
	})

	table := NewTable()
	for _, k := range keys {
		path := append(append([]string(nil), parent...), k)
		v, err := convert(raw[k], path, order)
		if err != nil {
			return nil, err
		}
		table.Set(k, v)
	}
	return table, nil
}

func convert(raw any, path []string, order map[string]int) (Value, error) {
	switch v := raw.(type) {
	case string:
		return String(v), nil
	case int64:
		return Integer(v), nil
	case float64:
		return Float(v), nil
	case bool:
		return Boolean(v), nil
	case time.Time:
		return Datetime(v), nil
	case map[string]any:
		t, err := buildTable(v, path, order)
		if err != nil {
			return Value{}, err
		}
		return TableValue(t), nil
	case []map[string]any:
		items := make([]Value, 0, len(v))
		for _, m := range v {
			t, err := buildTable(m, path, order)
			if err != nil {
				return Value{}, err
			}
			items = append(items, TableValue(t))
		}
		return Array(items...), nil
	case []any:
		items := make([]Value, 0, len(v))
		for _, item := range v {
			converted, err := convert(item, path, order)
			if err != nil {
				return Value{}, err
			}
			items = append(items, converted)
		}
		return Array(items...), nil
	default:
		return Value{}, fmt.Errorf("unsupported value of type %T at %s", raw, strings.Join(path, "."))
	}
}
