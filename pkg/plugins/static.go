package plugins

import (
	"io"

	"github.com/platinummonkey/probekit/pkg/config"
	"github.com/platinummonkey/probekit/pkg/pipeline"
)

// Static is implemented by plugins compiled into the host
type Static interface {
	Start(host *pipeline.Start) error
	Stop() error
}

// PostStarter is implemented by static plugins that need to observe the
// state registered by every plugin before measurements flow.
type PostStarter interface {
	PostStartup(startup *Startup) error
}

// NewStaticDescriptor describes a compiled-in plugin.
// init receives the plugin's configuration section and returns its typed state;
// if the state implements PostStarter or io.Closer those are wired too.
func NewStaticDescriptor[P Static](name, version string, init func(cfg *config.Table) (P, error)) *Descriptor {
	return &Descriptor{
		name:     name,
		version:  version,
		required: MustParseVersion(HostAPIVersion),
		kind:     KindStatic,
		construct: func(cfg *config.Table) (Plugin, error) {
			inner, err := init(cfg)
			if err != nil {
				return nil, &InitError{Plugin: name, Err: err}
			}
			return &staticPlugin[P]{name: name, version: version, inner: inner}, nil
		},
	}
}

// staticPlugin erases the concrete type of a compiled-in plugin
type staticPlugin[P Static] struct {
	name    string
	version string
	inner   P
}

func (p *staticPlugin[P]) Name() string    { return p.name }
func (p *staticPlugin[P]) Version() string { return p.version }

func (p *staticPlugin[P]) Start(host *pipeline.Start) error {
	return p.inner.Start(host)
}

func (p *staticPlugin[P]) Stop() error {
	return p.inner.Stop()
}

func (p *staticPlugin[P]) PostStartup(startup *Startup) error {
	if ps, ok := any(p.inner).(PostStarter); ok {
		return ps.PostStartup(startup)
	}
	return nil
}

func (p *staticPlugin[P]) Close() error {
	if c, ok := any(p.inner).(io.Closer); ok {
		return c.Close()
	}
	return nil
}
