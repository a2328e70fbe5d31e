package plugins

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/probekit/pkg/dylib"
	"github.com/platinummonkey/probekit/pkg/pipeline"
)

// entryPoints are the functions exported by a dynamic plugin.
// Instances are opaque pointers owned by the library, carried as uintptr so
// that the Go runtime never treats them as Go memory.
type entryPoints struct {
	init  func(host uintptr, config uintptr) uintptr
	start func(instance uintptr, start uintptr)
	stop  func(instance uintptr)
	drop  func(instance uintptr)
}

// dylibPlugin is a plugin instance living in a shared library.
//
// It owns both the instance and the library: the entry points are only valid
// while the library is loaded, so the library is closed strictly after
// plugin_drop has released the instance.
type dylibPlugin struct {
	name     string
	version  string
	instance uintptr
	fns      entryPoints
	lib      dylib.Library
	host     *Host
	// scope is the handle of the pipeline registration scope while started.
	scope  dylib.Handle
	closed bool
	log    *logrus.Entry
}

var errPluginClosed = errors.New("plugin is closed")

func (p *dylibPlugin) Name() string    { return p.name }
func (p *dylibPlugin) Version() string { return p.version }

func (p *dylibPlugin) Start(host *pipeline.Start) error {
	if p.closed {
		return errPluginClosed
	}
	p.scope = p.host.handles.New(host)
	p.fns.start(p.instance, uintptr(p.scope))
	return nil
}

func (p *dylibPlugin) Stop() error {
	if p.closed {
		return errPluginClosed
	}
	p.fns.stop(p.instance)
	p.releaseHost()
	return nil
}

// PostStartup is not part of the shared library contract
func (p *dylibPlugin) PostStartup(*Startup) error {
	return nil
}

func (p *dylibPlugin) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.releaseHost()

	p.log.Debug("Dropping plugin instance")
	p.fns.drop(p.instance)
	p.instance = 0
	p.fns = entryPoints{}

	return p.lib.Close()
}

func (p *dylibPlugin) releaseHost() {
	if p.scope != 0 {
		p.host.handles.Delete(p.scope)
		p.scope = 0
	}
}
