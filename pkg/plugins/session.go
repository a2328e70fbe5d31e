package plugins

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/probekit/pkg/audit"
	"github.com/platinummonkey/probekit/pkg/config"
	"github.com/platinummonkey/probekit/pkg/observability"
	"github.com/platinummonkey/probekit/pkg/pipeline"
)

const tracerName = "github.com/platinummonkey/probekit/pkg/plugins"

// ErrSessionNotStarted is returned when stopping a session that is not running
var ErrSessionNotStarted = errors.New("session not started")

// Session drives the plugins of a host through one or more start/stop cycles.
//
// Every call to Start begins a new session id; post-startup hooks run once
// per id. Like the Registry, a Session is driven by one goroutine.
type Session struct {
	registry *Registry
	builder  *pipeline.Builder
	board    *observability.StatusBoard
	tracer   trace.Tracer
	meter    metric.Meter
	starts   metric.Int64Counter
	active   metric.Int64Gauge
	log      *logrus.Logger
	id       uuid.UUID
	started  bool
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithTracerProvider creates session spans with tp instead of the global provider
func WithTracerProvider(tp trace.TracerProvider) SessionOption {
	return func(s *Session) { s.tracer = tp.Tracer(tracerName) }
}

// WithMeterProvider records session metrics with mp instead of the global provider
func WithMeterProvider(mp metric.MeterProvider) SessionOption {
	return func(s *Session) { s.meter = mp.Meter(tracerName) }
}

// WithSessionBoard publishes the current session id to board
func WithSessionBoard(board *observability.StatusBoard) SessionOption {
	return func(s *Session) { s.board = board }
}

// NewSession creates a session over registry.
// Pipeline elements registered by the plugins are collected in builder.
func NewSession(registry *Registry, builder *pipeline.Builder, log *logrus.Logger, opts ...SessionOption) *Session {
	if log == nil {
		log = logrus.New()
	}
	if builder == nil {
		builder = pipeline.NewBuilder()
	}
	s := &Session{
		registry: registry,
		builder:  builder,
		tracer:   otel.Tracer(tracerName),
		meter:    otel.Meter(tracerName),
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.instruments()
	return s
}

func (s *Session) instruments() {
	var err error
	s.starts, err = s.meter.Int64Counter("probekit.session.starts",
		metric.WithDescription("Number of plugin sessions started"))
	if err != nil {
		s.log.WithError(err).Warn("Failed to create session counter")
		s.starts = noop.Int64Counter{}
	}
	s.active, err = s.meter.Int64Gauge("probekit.session.plugins",
		metric.WithDescription("Number of plugins running in the current session"))
	if err != nil {
		s.log.WithError(err).Warn("Failed to create session gauge")
		s.active = noop.Int64Gauge{}
	}
}

// ID returns the id of the current or last session, or uuid.Nil before the first start
func (s *Session) ID() uuid.UUID { return s.id }

// Running reports whether the plugins are started
func (s *Session) Running() bool { return s.started }

// Registry returns the registry driven by the session
func (s *Session) Registry() *Registry { return s.registry }

// Builder returns the pipeline builder the plugins register into
func (s *Session) Builder() *pipeline.Builder { return s.builder }

// Add constructs every descriptor with its section of cfg and registers the result.
//
// Failures are isolated: a plugin whose configuration is missing or malformed,
// whose construction fails, or whose name is taken is skipped and its
// descriptor released. The returned error joins every failure.
func (s *Session) Add(ctx context.Context, descriptors []*Descriptor, cfg *config.Table) error {
	_, span := s.tracer.Start(ctx, "plugins.add",
		trace.WithAttributes(attribute.Int("plugins.count", len(descriptors))))
	defer span.End()

	var errs []error
	for _, d := range descriptors {
		if err := s.add(d, cfg); err != nil {
			s.log.WithField("plugin", d.Name()).WithError(err).Error("Failed to add plugin")
			span.RecordError(err, trace.WithAttributes(attribute.String("plugin", d.Name())))
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	endSpan(span, err)
	return err
}

func (s *Session) add(d *Descriptor, cfg *config.Table) error {
	name := d.Name()
	// The section is taken even from a rejected plugin, so that it is not
	// reported as unclaimed afterwards.
	sub, err := SubConfig(name, cfg)
	if s.registry.Has(name) {
		s.discard(d)
		return &ConflictError{Plugin: name}
	}
	if err != nil {
		s.discard(d)
		return err
	}

	p, err := d.Construct(sub)
	if err != nil {
		return err
	}

	if err := s.registry.Register(p); err != nil {
		if closeErr := p.Close(); closeErr != nil {
			s.log.WithField("plugin", name).WithError(closeErr).Warn("Failed to release rejected plugin")
		}
		return err
	}

	s.log.WithField("plugin", name).Infof("Plugin constructed: %s v%s (%s)", name, d.Version(), d.Kind())
	return nil
}

func (s *Session) discard(d *Descriptor) {
	if err := d.Discard(); err != nil {
		s.log.WithField("plugin", d.Name()).WithError(err).Warn("Failed to release plugin descriptor")
	}
}

// Start starts every registered plugin, then runs their post-startup hooks.
//
// Plugins that fail to start are removed; post-startup then runs on the
// plugins that did start. The returned Startup describes the new session even
// when an error is returned.
func (s *Session) Start(ctx context.Context) (*Startup, error) {
	if s.started {
		return nil, fmt.Errorf("session %s is already running", s.id)
	}

	begin := time.Now()
	s.id = uuid.New()
	s.registry.session = s.id.String()
	s.board.SetSession(s.id.String())
	ctx, span := s.tracer.Start(ctx, "plugins.session",
		trace.WithAttributes(attribute.String("session.id", s.id.String())))
	defer span.End()

	log := observability.WithTraceContext(ctx, s.log.WithField("session", s.id.String()))

	_, startSpan := s.tracer.Start(ctx, "plugins.start")
	startErr := s.registry.StartAll(s.builder)
	endSpan(startSpan, startErr)
	startSpan.End()

	s.started = true
	startup := &Startup{
		SessionID: s.id,
		Metrics:   s.builder.Metrics(),
		Plugins:   s.registry.Started(),
	}

	_, postSpan := s.tracer.Start(ctx, "plugins.post_startup")
	postErr := s.registry.PostStartupAll(startup)
	endSpan(postSpan, postErr)
	postSpan.End()

	err := errors.Join(startErr, postErr)
	endSpan(span, err)
	s.starts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(err))))
	s.active.Record(ctx, int64(len(startup.Plugins)))
	s.journal(audit.EventTypeSessionStart, begin, err, fmt.Sprintf("%d plugin(s) started", len(startup.Plugins)))
	log.Infof("Session started with %d plugin(s)", len(startup.Plugins))
	return startup, err
}

// Stop stops every started plugin
func (s *Session) Stop(ctx context.Context) error {
	if !s.started {
		return ErrSessionNotStarted
	}

	ctx, span := s.tracer.Start(ctx, "plugins.stop",
		trace.WithAttributes(attribute.String("session.id", s.id.String())))
	defer span.End()

	begin := time.Now()
	err := s.registry.StopAll()
	s.started = false
	s.active.Record(ctx, 0)
	endSpan(span, err)
	s.journal(audit.EventTypeSessionStop, begin, err, "")
	s.log.WithField("session", s.id.String()).Info("Session stopped")
	return err
}

// Restart stops the plugins and starts them again in a new session,
// as done when the host switches its operating mode.
func (s *Session) Restart(ctx context.Context) (*Startup, error) {
	var stopErr error
	if s.started {
		stopErr = s.Stop(ctx)
	}
	startup, startErr := s.Start(ctx)
	return startup, errors.Join(stopErr, startErr)
}

// Close stops the session if needed and destroys every plugin
func (s *Session) Close(ctx context.Context) error {
	_, span := s.tracer.Start(ctx, "plugins.close")
	defer span.End()

	var stopErr error
	if s.started {
		stopErr = s.Stop(ctx)
	}
	err := errors.Join(stopErr, s.registry.Close())
	endSpan(span, err)
	return err
}

func (s *Session) journal(eventType audit.EventType, begin time.Time, err error, message string) {
	event := audit.NewEvent(eventType, err).WithDuration(time.Since(begin))
	event.Message = message
	s.registry.journalEvent(event)
}

func outcome(err error) string {
	if err != nil {
		return observability.OutcomeError
	}
	return observability.OutcomeSuccess
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
