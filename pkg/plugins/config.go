package plugins

import (
	"errors"

	"github.com/platinummonkey/probekit/pkg/config"
)

// SubConfig removes the section of plugin name from the global configuration
// document and returns it. Each section can be taken only once.
func SubConfig(name string, global *config.Table) (*config.Table, error) {
	value, err := global.Take(name)
	if err != nil {
		if errors.Is(err, config.ErrKeyNotFound) {
			return nil, &ConfigError{Plugin: name, Err: ErrMissingConfig}
		}
		return nil, &ConfigError{Plugin: name, Err: err}
	}

	table, ok := value.AsTable()
	if !ok {
		return nil, &ConfigError{Plugin: name, Found: value.Kind(), Err: ErrConfigType}
	}
	return table, nil
}
