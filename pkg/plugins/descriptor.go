package plugins

import (
	"fmt"

	"github.com/platinummonkey/probekit/pkg/config"
)

// Descriptor is a plugin that has been found and validated but not constructed.
//
// Construct consumes the descriptor; calling it a second time is a bug in the
// host and panics. A dynamic descriptor that is never constructed keeps its
// library open until Discard is called.
type Descriptor struct {
	name     string
	version  string
	required Version
	kind     Kind
	path     string

	construct func(cfg *config.Table) (Plugin, error)
	release   func() error
	consumed  bool
}

// Name returns the name the plugin declares
func (d *Descriptor) Name() string { return d.name }

// Version returns the version of the plugin itself
func (d *Descriptor) Version() string { return d.version }

// RequiredVersion returns the minimum host API version the plugin needs
func (d *Descriptor) RequiredVersion() Version { return d.required }

// Kind tells whether the plugin is compiled in or a shared library
func (d *Descriptor) Kind() Kind { return d.kind }

// Path returns the shared library of a dynamic plugin, empty for static ones
func (d *Descriptor) Path() string { return d.path }

// Construct builds the plugin from its configuration section
func (d *Descriptor) Construct(cfg *config.Table) (Plugin, error) {
	if d.consumed {
		panic(fmt.Sprintf("plugins: descriptor of %s used after being consumed", d.name))
	}
	d.consumed = true
	if cfg == nil {
		cfg = config.NewTable()
	}
	return d.construct(cfg)
}

// Discard releases a descriptor that will not be constructed.
// It does nothing if the descriptor was already consumed.
func (d *Descriptor) Discard() error {
	if d.consumed {
		return nil
	}
	d.consumed = true
	if d.release == nil {
		return nil
	}
	return d.release()
}

// Consumed reports whether Construct or Discard was called
func (d *Descriptor) Consumed() bool {
	return d.consumed
}

// Info returns the metadata of the descriptor
func (d *Descriptor) Info() Info {
	return Info{
		Name:            d.name,
		Version:         d.version,
		RequiredVersion: d.required.String(),
		Kind:            d.kind,
		Path:            d.path,
	}
}
