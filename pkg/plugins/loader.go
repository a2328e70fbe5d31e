package plugins

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/probekit/pkg/audit"
	"github.com/platinummonkey/probekit/pkg/config"
	"github.com/platinummonkey/probekit/pkg/dylib"
	"github.com/platinummonkey/probekit/pkg/observability"
)

// Symbols every dynamic plugin must export
const (
	SymbolName       = "PLUGIN_NAME"
	SymbolVersion    = "PLUGIN_VERSION"
	SymbolAPIVersion = "PLUGIN_API_VERSION"
	SymbolInit       = "plugin_init"
	SymbolStart      = "plugin_start"
	SymbolStop       = "plugin_stop"
	SymbolDrop       = "plugin_drop"
)

// Loader opens shared libraries and turns them into plugin descriptors
type Loader struct {
	hostVersion Version
	open        dylib.Opener
	host        *Host
	metrics     *observability.Metrics
	journal     audit.Logger
	log         *logrus.Logger
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithOpener replaces the function used to open shared libraries
func WithOpener(open dylib.Opener) LoaderOption {
	return func(l *Loader) { l.open = open }
}

// WithHostVersion sets the host API version plugins are checked against
func WithHostVersion(v Version) LoaderOption {
	return func(l *Loader) { l.hostVersion = v }
}

// WithHandles sets the table host values are published in for foreign code.
// Each table gets its own host API.
func WithHandles(h *dylib.Handles) LoaderOption {
	return func(l *Loader) { l.host = NewHost(h) }
}

// WithLoaderMetrics records load attempts in m
func WithLoaderMetrics(m *observability.Metrics) LoaderOption {
	return func(l *Loader) { l.metrics = m }
}

// WithLoaderJournal records load attempts in journal
func WithLoaderJournal(journal audit.Logger) LoaderOption {
	return func(l *Loader) {
		if journal != nil {
			l.journal = journal
		}
	}
}

// NewLoader creates a new plugin loader
func NewLoader(log *logrus.Logger, opts ...LoaderOption) *Loader {
	if log == nil {
		log = logrus.New()
	}

	l := &Loader{
		hostVersion: MustParseVersion(HostAPIVersion),
		open:        dylib.Open,
		host:        defaultHost,
		journal:     audit.NoOp(),
		log:         log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// HostVersion returns the host API version of the loader
func (l *Loader) HostVersion() Version {
	return l.hostVersion
}

// Load opens the shared library at path, checks its exports and its
// required host version, and returns a descriptor. plugin_init is not called.
// On error the library is closed and no descriptor is returned.
func (l *Loader) Load(path string) (*Descriptor, error) {
	begin := time.Now()
	d, err := l.load(path)
	l.metrics.RecordLoad(string(KindDynamic), err)

	event := audit.NewEvent(audit.EventTypePluginLoad, err).WithDuration(time.Since(begin))
	event.Kind = string(KindDynamic)
	event.Path = path
	if d != nil {
		event.Plugin = d.Name()
		event.PluginVersion = d.Version()
	}
	if jErr := l.journal.Log(context.Background(), event); jErr != nil {
		l.log.WithError(jErr).Warn("Failed to journal plugin load")
	}

	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"plugin":  d.Name(),
		"version": d.Version(),
		"path":    path,
	}).Infof("Loaded plugin: %s v%s (requires host API %s)", d.Name(), d.Version(), d.RequiredVersion())
	return d, nil
}

func (l *Loader) load(path string) (_ *Descriptor, err error) {
	lib, err := l.open(path)
	if err != nil {
		return nil, &LibraryLoadError{Path: path, Err: err}
	}
	defer func() {
		if err == nil {
			return
		}
		if closeErr := lib.Close(); closeErr != nil {
			l.log.Warnf("Failed to unload %s: %v", path, closeErr)
		}
	}()

	texts := map[string]string{}
	for _, sym := range []string{SymbolName, SymbolVersion, SymbolAPIVersion} {
		s, err := lib.CString(sym)
		if err != nil {
			return nil, &SymbolError{Path: path, Symbol: sym, Err: err}
		}
		texts[sym] = s
	}

	var fns entryPoints
	bindings := []struct {
		symbol string
		fptr   any
	}{
		{SymbolInit, &fns.init},
		{SymbolStart, &fns.start},
		{SymbolStop, &fns.stop},
		{SymbolDrop, &fns.drop},
	}
	for _, b := range bindings {
		if err := lib.Func(b.fptr, b.symbol); err != nil {
			return nil, &SymbolError{Path: path, Symbol: b.symbol, Err: err}
		}
	}

	name := texts[SymbolName]
	if name == "" {
		return nil, &SymbolError{Path: path, Symbol: SymbolName, Err: errors.New("plugin name is empty")}
	}

	required, err := ParseVersion(texts[SymbolAPIVersion])
	if err != nil {
		return nil, &SymbolError{Path: path, Symbol: SymbolAPIVersion, Err: err}
	}
	if !CanLoad(l.hostVersion, required) {
		return nil, &VersionError{Plugin: name, Required: required, Available: l.hostVersion}
	}

	version := texts[SymbolVersion]
	host := l.host
	log := l.log.WithField("plugin", name)

	return &Descriptor{
		name:     name,
		version:  version,
		required: required,
		kind:     KindDynamic,
		path:     path,
		construct: func(cfg *config.Table) (Plugin, error) {
			return construct(name, version, cfg, lib, fns, host, log)
		},
		release: lib.Close,
	}, nil
}

// construct calls plugin_init and wraps the instance with its library
func construct(name, version string, cfg *config.Table, lib dylib.Library, fns entryPoints, host *Host, log *logrus.Entry) (Plugin, error) {
	abi, err := dylib.FromConfig(cfg)
	if err != nil {
		closeLibrary(lib, log)
		return nil, &ConfigError{Plugin: name, Err: fmt.Errorf("%w: %w", ErrConfigConversion, err)}
	}

	table, err := host.Table()
	if err != nil {
		closeLibrary(lib, log)
		return nil, &InitError{Plugin: name, Err: err}
	}

	// The configuration handle is only valid for the duration of plugin_init.
	h := host.handles.New(abi)
	instance := fns.init(table, uintptr(h))
	host.handles.Delete(h)

	if instance == 0 {
		closeLibrary(lib, log)
		return nil, &InitError{Plugin: name}
	}

	return &dylibPlugin{
		name:     name,
		version:  version,
		instance: instance,
		fns:      fns,
		lib:      lib,
		host:     host,
		log:      log,
	}, nil
}

func closeLibrary(lib dylib.Library, log *logrus.Entry) {
	if err := lib.Close(); err != nil {
		log.Warnf("Failed to unload %s: %v", lib.Path(), err)
	}
}

// Discover loads every shared library found directly in dirs.
// Libraries that fail to load are logged and skipped; their errors are joined
// into the returned error. Missing directories are ignored.
func (l *Loader) Discover(dirs []string) ([]*Descriptor, error) {
	var (
		descriptors []*Descriptor
		errs        []error
	)

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			l.log.Debugf("Plugin directory does not exist: %s", dir)
			continue
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			l.log.Warnf("Failed to read plugin directory %s: %v", dir, err)
			errs = append(errs, fmt.Errorf("failed to read plugin directory %s: %w", dir, err))
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() || !isSharedLibrary(entry.Name()) {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			d, err := l.Load(path)
			if err != nil {
				l.log.Warnf("Failed to load plugin from %s: %v", path, err)
				errs = append(errs, err)
				continue
			}
			descriptors = append(descriptors, d)
		}
	}

	return descriptors, errors.Join(errs...)
}

func isSharedLibrary(name string) bool {
	return slices.Contains(dylib.SharedLibraryExtensions, strings.ToLower(filepath.Ext(name)))
}

// DefaultPluginDirectories returns the default plugin search directories
func DefaultPluginDirectories() []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.TempDir()
	}

	return []string{
		filepath.Join(homeDir, ".probekit", "plugins"),
		"/usr/local/lib/probekit/plugins",
		"./plugins",
	}
}
