package plugins

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/probekit/pkg/config"
)

// Sentinel errors, usable with errors.Is
var (
	// ErrPluginNotFound is returned when no plugin is registered under a name.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrNameConflict is returned when a plugin name is already registered.
	ErrNameConflict = errors.New("plugin name already registered")

	// ErrMissingConfig is returned when the configuration has no section for a plugin.
	ErrMissingConfig = errors.New("missing plugin configuration")

	// ErrConfigType is returned when a plugin's configuration section is not a table.
	ErrConfigType = errors.New("plugin configuration must be a table")

	// ErrConfigConversion is returned when a configuration section cannot cross the ABI boundary.
	ErrConfigConversion = errors.New("conversion to ffi-safe configuration failed")
)

// LibraryLoadError reports that a shared library could not be opened or linked
type LibraryLoadError struct {
	Path string
	Err  error
}

func (e *LibraryLoadError) Error() string {
	return fmt.Sprintf("failed to load shared library %s: %v", e.Path, e.Err)
}

func (e *LibraryLoadError) Unwrap() error { return e.Err }

// SymbolError reports a required export that is missing, ill-typed or undecodable
type SymbolError struct {
	// Path is the library the symbol was looked up in.
	Path   string
	Symbol string
	Err    error
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("invalid value for symbol %s in %s: %v", e.Symbol, e.Path, e.Err)
}

func (e *SymbolError) Unwrap() error { return e.Err }

// VersionParseError reports a malformed version string
type VersionParseError struct {
	Input  string
	Reason string
}

func (e *VersionParseError) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Input, e.Reason)
}

// VersionError reports a plugin that requires a host API the host does not provide
type VersionError struct {
	Plugin    string
	Required  Version
	Available Version
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("plugin %s requires host API %s, but this host provides %s", e.Plugin, e.Required, e.Available)
}

// InitError reports that a plugin could not be constructed.
// For dynamic plugins the foreign side only signals failure through a NULL
// instance, so Err is nil in that case.
type InitError struct {
	Plugin string
	Err    error
}

func (e *InitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("plugin %s: plugin_init returned NULL", e.Plugin)
	}
	return fmt.Sprintf("plugin %s: initialization failed: %v", e.Plugin, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// ConfigError reports a configuration section that cannot be handed to a plugin
type ConfigError struct {
	Plugin string
	// Found is the kind of value found in place of a table, for ErrConfigType.
	Found config.Kind
	Err   error
}

func (e *ConfigError) Error() string {
	switch {
	case errors.Is(e.Err, ErrMissingConfig):
		return fmt.Sprintf("missing plugin configuration for '%s'", e.Plugin)
	case errors.Is(e.Err, ErrConfigType):
		return fmt.Sprintf("invalid plugin configuration for '%s': the value must be a table, not a %s", e.Plugin, e.Found)
	default:
		return fmt.Sprintf("plugin configuration for '%s': %v", e.Plugin, e.Err)
	}
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ConflictError reports a duplicate plugin name at registration
type ConflictError struct {
	Plugin string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("plugin already registered: %s", e.Plugin)
}

func (e *ConflictError) Unwrap() error { return ErrNameConflict }

// StateError reports a lifecycle call that is illegal in the plugin's current state
type StateError struct {
	Plugin string
	Op     string
	State  State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("plugin %s: cannot %s in state %s", e.Plugin, e.Op, e.State)
}

// LifecycleError wraps a failure returned by a plugin's own lifecycle method
type LifecycleError struct {
	Plugin string
	Op     string
	Err    error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("plugin %s: %s failed: %v", e.Plugin, e.Op, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }
