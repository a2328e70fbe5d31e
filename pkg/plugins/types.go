package plugins

import (
	"github.com/google/uuid"

	"github.com/platinummonkey/probekit/pkg/pipeline"
)

// Plugin is the interface every constructed plugin exposes, whatever its kind.
// Code downstream of construction never needs to know whether a plugin was
// compiled in or loaded from a shared library.
type Plugin interface {
	// Name returns the unique name of the plugin.
	Name() string

	// Version returns the version of the plugin itself.
	Version() string

	// Start registers the plugin's sources, transforms and outputs.
	Start(host *pipeline.Start) error

	// Stop withdraws what Start registered. Resources acquired at
	// construction are kept so that the plugin can be started again.
	Stop() error

	// PostStartup runs once per session, after every plugin has started.
	PostStartup(startup *Startup) error

	// Close releases every resource held by the plugin. No other method
	// may be called afterwards.
	Close() error
}

// Kind tells how a plugin is provided to the host
type Kind string

const (
	KindStatic  Kind = "static"
	KindDynamic Kind = "dynamic"
)

// State is a position in the plugin lifecycle
type State int

const (
	// StateLoaded means a descriptor exists but nothing is instantiated.
	StateLoaded State = iota
	// StateConstructed means the instance exists but has not registered anything.
	StateConstructed
	// StateStarted means the instance has registered its pipeline elements.
	StateStarted
	// StateStopped means registrations are withdrawn; resources are still held.
	StateStopped
	// StateDestroyed means the instance and all its resources are released.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateConstructed:
		return "constructed"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Startup is handed to every plugin once all plugins of a session have started
type Startup struct {
	SessionID uuid.UUID

	// Metrics holds every metric registered by the started plugins.
	Metrics *pipeline.MetricRegistry

	// Plugins lists the started plugins in start order.
	Plugins []string
}

// Info describes a plugin without constructing it
type Info struct {
	Name            string `json:"name" yaml:"name"`
	Version         string `json:"version" yaml:"version"`
	RequiredVersion string `json:"required_version" yaml:"required_version"`
	Kind            Kind   `json:"kind" yaml:"kind"`
	Path            string `json:"path,omitempty" yaml:"path,omitempty"`
}
