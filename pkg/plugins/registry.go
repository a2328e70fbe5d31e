package plugins

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/probekit/pkg/audit"
	"github.com/platinummonkey/probekit/pkg/observability"
	"github.com/platinummonkey/probekit/pkg/pipeline"
)

// Lifecycle transitions, as reported in logs and metrics
const (
	TransitionStart       = "start"
	TransitionStop        = "stop"
	TransitionPostStartup = "post_startup"
	TransitionClose       = "close"
)

// Entry is a registered plugin together with its lifecycle state.
// All lifecycle calls on a plugin go through its entry, which rejects the
// ones that are illegal in the current state.
type Entry struct {
	plugin   Plugin
	kind     Kind
	state    State
	host     *pipeline.Start
	postDone bool
	registry *Registry
	log      *logrus.Entry
}

// Plugin returns the registered plugin
func (e *Entry) Plugin() Plugin { return e.plugin }

// Name returns the name of the registered plugin
func (e *Entry) Name() string { return e.plugin.Name() }

// State returns the lifecycle state of the plugin
func (e *Entry) State() State { return e.state }

// Start lets the plugin register its pipeline elements through host.
// It is legal in the Constructed and Stopped states. If the plugin fails,
// whatever it registered is withdrawn and the state is unchanged.
func (e *Entry) Start(host *pipeline.Start) (err error) {
	if e.state != StateConstructed && e.state != StateStopped {
		return &StateError{Plugin: e.Name(), Op: TransitionStart, State: e.state}
	}

	begin := time.Now()
	defer func() { e.registry.record(e, TransitionStart, begin, err) }()
	defer func() {
		if err != nil {
			host.Withdraw()
		}
	}()
	defer observability.RecoverToError(&err, e.log, "start "+e.Name())

	if startErr := e.plugin.Start(host); startErr != nil {
		return &LifecycleError{Plugin: e.Name(), Op: TransitionStart, Err: startErr}
	}

	e.host = host
	e.state = StateStarted
	e.postDone = false
	return nil
}

// Stop makes the plugin withdraw its pipeline elements.
// It is legal in the Started state. The plugin ends up Stopped even if its
// Stop method fails, and its registrations are withdrawn in any case.
func (e *Entry) Stop() (err error) {
	if e.state != StateStarted {
		return &StateError{Plugin: e.Name(), Op: TransitionStop, State: e.state}
	}

	begin := time.Now()
	defer func() { e.registry.record(e, TransitionStop, begin, err) }()
	defer observability.RecoverToError(&err, e.log, "stop "+e.Name())
	defer func() {
		if e.host != nil {
			e.host.Withdraw()
			e.host = nil
		}
		e.state = StateStopped
	}()

	if stopErr := e.plugin.Stop(); stopErr != nil {
		return &LifecycleError{Plugin: e.Name(), Op: TransitionStop, Err: stopErr}
	}
	return nil
}

// PostStartup runs the plugin's post-startup hook.
// It is legal once per start, in the Started state.
func (e *Entry) PostStartup(startup *Startup) (err error) {
	if e.state != StateStarted || e.postDone {
		return &StateError{Plugin: e.Name(), Op: TransitionPostStartup, State: e.state}
	}

	begin := time.Now()
	defer func() { e.registry.record(e, TransitionPostStartup, begin, err) }()
	defer observability.RecoverToError(&err, e.log, "post-startup "+e.Name())

	e.postDone = true
	if postErr := e.plugin.PostStartup(startup); postErr != nil {
		return &LifecycleError{Plugin: e.Name(), Op: TransitionPostStartup, Err: postErr}
	}
	return nil
}

// destroy releases the plugin, stopping it first if needed
func (e *Entry) destroy() error {
	var errs []error
	if e.state == StateStarted {
		errs = append(errs, e.Stop())
	}

	begin := time.Now()
	err := func() (err error) {
		defer observability.RecoverToError(&err, e.log, "close "+e.Name())
		if closeErr := e.plugin.Close(); closeErr != nil {
			return &LifecycleError{Plugin: e.Name(), Op: TransitionClose, Err: closeErr}
		}
		return nil
	}()
	e.state = StateDestroyed
	e.registry.record(e, TransitionClose, begin, err)

	return errors.Join(append(errs, err)...)
}

// Registry owns the constructed plugins of a host, indexed by name.
//
// Plugins are kept in registration order: they are started in that order and
// stopped and destroyed in reverse. The registry is driven by a single
// orchestration goroutine and is not safe for concurrent use.
type Registry struct {
	entries map[string]*Entry
	order   []string
	metrics *observability.Metrics
	board   *observability.StatusBoard
	journal audit.Logger
	session string
	log     *logrus.Logger
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithRegistryMetrics records lifecycle transitions in m
func WithRegistryMetrics(m *observability.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithStatusBoard publishes plugin states to board
func WithStatusBoard(board *observability.StatusBoard) RegistryOption {
	return func(r *Registry) { r.board = board }
}

// WithJournal records lifecycle transitions in journal
func WithJournal(journal audit.Logger) RegistryOption {
	return func(r *Registry) {
		if journal != nil {
			r.journal = journal
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry(log *logrus.Logger, opts ...RegistryOption) *Registry {
	if log == nil {
		log = logrus.New()
	}
	r := &Registry{
		entries: make(map[string]*Entry),
		journal: audit.NoOp(),
		log:     log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a constructed plugin.
// A plugin whose name is already registered is rejected; the registered one stays.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("cannot register nil plugin")
	}

	name := p.Name()
	if _, exists := r.entries[name]; exists {
		return &ConflictError{Plugin: name}
	}

	e := &Entry{
		plugin:   p,
		kind:     kindOf(p),
		state:    StateConstructed,
		registry: r,
		log:      r.log.WithField("plugin", name),
	}
	r.entries[name] = e
	r.order = append(r.order, name)

	r.metrics.SetRegistered(len(r.order))
	r.publish(e)
	e.log.Debugf("Registered %s plugin %s v%s", e.kind, name, p.Version())
	return nil
}

// Lookup returns the entry of a registered plugin
func (r *Registry) Lookup(name string) (*Entry, error) {
	e, exists := r.entries[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return e, nil
}

// Has reports whether a plugin is registered under name
func (r *Registry) Has(name string) bool {
	_, exists := r.entries[name]
	return exists
}

// Names returns the registered plugin names in registration order
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered plugins
func (r *Registry) Len() int {
	return len(r.order)
}

// Remove unregisters a plugin and destroys it, stopping it first if it is started
func (r *Registry) Remove(name string) error {
	e, err := r.Lookup(name)
	if err != nil {
		return err
	}

	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	err = e.destroy()
	r.metrics.SetRegistered(len(r.order))
	r.board.Delete(name)
	if err != nil {
		e.log.WithError(err).Warn("Plugin destroyed with errors")
	} else {
		e.log.Debug("Plugin destroyed")
	}
	return err
}

// Close destroys every plugin in reverse registration order
func (r *Registry) Close() error {
	var errs []error
	for i := len(r.order) - 1; i >= 0; i-- {
		errs = append(errs, r.Remove(r.order[i]))
	}
	return errors.Join(errs...)
}

// StartAll starts every plugin that is not started yet, in registration order.
// A plugin that fails to start is removed from the registry and destroyed;
// the others keep going. The returned error joins every failure.
func (r *Registry) StartAll(builder *pipeline.Builder) error {
	var errs []error
	for _, name := range r.Names() {
		e := r.entries[name]
		if e.state == StateStarted {
			continue
		}

		if err := e.Start(builder.For(name)); err != nil {
			e.log.WithError(err).Error("Plugin failed to start, removing it")
			errs = append(errs, err)
			if rmErr := r.Remove(name); rmErr != nil {
				errs = append(errs, rmErr)
			}
			continue
		}
		e.log.Infof("Plugin started: %s v%s", name, e.plugin.Version())
	}
	return errors.Join(errs...)
}

// PostStartupAll runs the post-startup hook of every started plugin
func (r *Registry) PostStartupAll(startup *Startup) error {
	var errs []error
	for _, name := range r.order {
		e := r.entries[name]
		if e.state != StateStarted {
			continue
		}
		if err := e.PostStartup(startup); err != nil {
			e.log.WithError(err).Error("Plugin post-startup failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every started plugin in reverse registration order
func (r *Registry) StopAll() error {
	var errs []error
	for i := len(r.order) - 1; i >= 0; i-- {
		e := r.entries[r.order[i]]
		if e.state != StateStarted {
			continue
		}
		if err := e.Stop(); err != nil {
			e.log.WithError(err).Error("Plugin failed to stop")
			errs = append(errs, err)
			continue
		}
		e.log.Infof("Plugin stopped: %s", e.Name())
	}
	return errors.Join(errs...)
}

// Started returns the names of the started plugins in registration order
func (r *Registry) Started() []string {
	var names []string
	for _, name := range r.order {
		if r.entries[name].state == StateStarted {
			names = append(names, name)
		}
	}
	return names
}

func (r *Registry) record(e *Entry, transition string, begin time.Time, err error) {
	elapsed := time.Since(begin)
	r.metrics.RecordTransition(e.Name(), transition, elapsed, err)
	r.publish(e)

	event := audit.NewEvent(audit.PluginEventType(transition), err).WithDuration(elapsed)
	event.Plugin = e.Name()
	event.PluginVersion = e.plugin.Version()
	event.Kind = string(e.kind)
	r.journalEvent(event)
}

// journalEvent records event in the journal, tagged with the current session.
// Journal failures are logged and never fail the transition.
func (r *Registry) journalEvent(event *audit.Event) {
	event.Session = r.session
	if err := r.journal.Log(context.Background(), event); err != nil {
		r.log.WithError(err).Warnf("Failed to journal %s event", event.EventType)
	}
}

func (r *Registry) publish(e *Entry) {
	r.board.Set(observability.PluginStatus{
		Name:    e.Name(),
		Version: e.plugin.Version(),
		Kind:    string(e.kind),
		State:   e.state.String(),
		Running: e.state == StateStarted,
	})
}

func kindOf(p Plugin) Kind {
	if _, ok := p.(*dylibPlugin); ok {
		return KindDynamic
	}
	return KindStatic
}
