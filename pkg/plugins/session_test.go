package plugins

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/platinummonkey/probekit/pkg/config"
	"github.com/platinummonkey/probekit/pkg/dylib"
	"github.com/platinummonkey/probekit/pkg/observability"
	"github.com/platinummonkey/probekit/pkg/pipeline"
)

func newTracedSession(t *testing.T, registry *Registry, builder *pipeline.Builder) (*Session, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewSession(registry, builder, nil, WithTracerProvider(tp)), recorder
}

func spanNames(recorder *tracetest.SpanRecorder) []string {
	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	return names
}

func TestSession_EndToEnd(t *testing.T) {
	ctx := context.Background()
	handles := dylib.NewHandles()
	log := &callLog{}
	foreign := newForeignPlugin(handles, log)
	lib := foreign.library("/plugins/libdemo.so", "demo", "1.0.0")

	loader := newTestLoader(handles, lib)
	d, err := loader.Load(lib.path)
	require.NoError(t, err)

	doc, err := config.Parse([]byte("[demo]\ninterval_ms = 100\n"))
	require.NoError(t, err)

	board := observability.NewStatusBoard()
	registry := NewRegistry(nil, WithStatusBoard(board))
	builder := pipeline.NewBuilder()
	session, recorder := newTracedSession(t, registry, builder)

	require.NoError(t, session.Add(ctx, []*Descriptor{d}, doc))
	assert.Equal(t, 0, doc.Len(), "the demo section was handed to the plugin")

	startup, err := session.Start(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, startup.SessionID)
	assert.Equal(t, session.ID(), startup.SessionID)
	assert.Equal(t, []string{"demo"}, startup.Plugins)
	assert.True(t, session.Running())

	// the plugin registered a source through the host handle
	elements := builder.ElementsOf("demo")
	require.Len(t, elements, 1)
	require.Equal(t, pipeline.ElementSource, elements[0].Kind)
	points, err := elements[0].Source.Poll(time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 100.0, points[0].Value)
	assert.Equal(t, 1, handles.Len(), "the host handle lives while started")
	assert.Equal(t, observability.StatusHealthy, board.Snapshot().Status)

	require.NoError(t, session.Stop(ctx))
	assert.Empty(t, builder.Elements())
	assert.Equal(t, 0, handles.Len())

	e, err := registry.Lookup("demo")
	require.NoError(t, err)
	p := e.Plugin().(*dylibPlugin)

	require.NoError(t, session.Close(ctx))
	assert.Equal(t, 0, registry.Len())
	assert.Empty(t, foreign.live, "every foreign allocation is released")

	// drop runs before the library is unloaded, and nothing runs after
	assert.Equal(t, []string{"init", "start", "stop", "drop", "dlclose /plugins/libdemo.so"}, log.calls)
	assert.Equal(t, 1, lib.closed)

	// the entry points are gone with the library
	assert.Nil(t, p.fns.start)
	assert.Nil(t, p.fns.drop)
	assert.Zero(t, p.instance)
	assert.ErrorIs(t, p.Start(builder.For("demo")), errPluginClosed)
	assert.NoError(t, p.Close())
	assert.Equal(t, 1, lib.closed)

	assert.Subset(t, spanNames(recorder), []string{
		"plugins.add", "plugins.start", "plugins.post_startup", "plugins.session", "plugins.stop", "plugins.close",
	})
}

func TestSession_PartialFailures(t *testing.T) {
	ctx := context.Background()
	handles := dylib.NewHandles()
	log := &callLog{}

	good := newForeignPlugin(handles, log)
	goodLib := good.library("/plugins/libgood.so", "good", "1.0.0")
	noConfig := newForeignPlugin(handles, &callLog{})
	noConfigLib := noConfig.library("/plugins/libnoconfig.so", "noconfig", "1.0.0")
	failing := newForeignPlugin(handles, &callLog{})
	failing.failInit = true
	failingLib := failing.library("/plugins/libfailing.so", "failing", "1.0.0")

	loader := newTestLoader(handles, goodLib, noConfigLib, failingLib)
	var descriptors []*Descriptor
	for _, path := range []string{goodLib.path, noConfigLib.path, failingLib.path} {
		d, err := loader.Load(path)
		require.NoError(t, err)
		descriptors = append(descriptors, d)
	}

	static := &recordingPlugin{name: "static", log: &callLog{}}
	descriptors = append(descriptors, NewStaticDescriptor("static", "1.0.0", func(*config.Table) (*recordingPlugin, error) {
		return static, nil
	}))
	// a second plugin named like the first is rejected
	duplicate := newForeignPlugin(handles, &callLog{})
	duplicateLib := duplicate.library("/plugins/libgood2.so", "good", "1.0.0")
	d, err := newTestLoader(handles, duplicateLib).Load(duplicateLib.path)
	require.NoError(t, err)
	descriptors = append(descriptors, d)

	doc, err := config.Parse([]byte(`
[good]
interval_ms = 10

[failing]
interval_ms = 10

[static]
`))
	require.NoError(t, err)

	registry := NewRegistry(nil)
	session, recorder := newTracedSession(t, registry, nil)

	err = session.Add(ctx, descriptors, doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingConfig))
	assert.True(t, errors.Is(err, ErrNameConflict))
	var initErr *InitError
	require.True(t, errors.As(err, &initErr))
	assert.Equal(t, "failing", initErr.Plugin)

	assert.Equal(t, []string{"good", "static"}, registry.Names())
	assert.Equal(t, 1, noConfigLib.closed)
	assert.Equal(t, 1, failingLib.closed)
	assert.Equal(t, 1, duplicateLib.closed)
	assert.Equal(t, 0, duplicate.initCalls)

	startup, err := session.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"good", "static"}, startup.Plugins)
	require.Len(t, static.startups, 1)
	assert.Equal(t, 1, startup.Metrics.Len())

	require.NoError(t, session.Close(ctx))
	assert.Equal(t, 1, goodLib.closed)
	assert.Equal(t, 1, static.closed)

	var addSpan sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() == "plugins.add" {
			addSpan = s
		}
	}
	require.NotNil(t, addSpan)
	assert.Equal(t, codes.Error, addSpan.Status().Code)
}

func TestSession_StartFailureKeepsOthersRunning(t *testing.T) {
	ctx := context.Background()
	log := &callLog{}
	ok := &recordingPlugin{name: "ok", log: log}
	bad := &recordingPlugin{name: "bad", log: log, startErr: errors.New("no device")}

	registry := NewRegistry(nil)
	require.NoError(t, registry.Register(bad))
	require.NoError(t, registry.Register(ok))

	session, _ := newTracedSession(t, registry, nil)
	startup, err := session.Start(ctx)
	require.Error(t, err)
	require.NotNil(t, startup)
	assert.Equal(t, []string{"ok"}, startup.Plugins)
	assert.Len(t, ok.startups, 1)
	assert.Empty(t, bad.startups)
	assert.False(t, registry.Has("bad"))

	require.NoError(t, session.Close(ctx))
}

func TestSession_Restart(t *testing.T) {
	ctx := context.Background()
	log := &callLog{}
	p := &recordingPlugin{name: "demo", log: log}

	registry := NewRegistry(nil)
	require.NoError(t, registry.Register(p))
	session, _ := newTracedSession(t, registry, nil)

	first, err := session.Start(ctx)
	require.NoError(t, err)

	_, err = session.Start(ctx)
	require.Error(t, err, "a running session cannot start again")

	second, err := session.Restart(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	require.NoError(t, session.Stop(ctx))
	assert.ErrorIs(t, session.Stop(ctx), ErrSessionNotStarted)
	require.NoError(t, session.Close(ctx))

	// stop always completes before the next start; post-startup once per session
	assert.Equal(t, []string{
		"demo.start", "demo.post_startup",
		"demo.stop",
		"demo.start", "demo.post_startup",
		"demo.stop",
		"demo.close",
	}, log.calls)
	require.Len(t, p.startups, 2)
	assert.Equal(t, first.SessionID, p.startups[0].SessionID)
	assert.Equal(t, second.SessionID, p.startups[1].SessionID)
}

func TestSession_CloseWhileRunning(t *testing.T) {
	ctx := context.Background()
	log := &callLog{}
	registry := NewRegistry(nil)
	require.NoError(t, registry.Register(&recordingPlugin{name: "demo", log: log}))

	session := NewSession(registry, nil, nil)
	_, err := session.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, session.Close(ctx))

	assert.Equal(t, []string{"demo.start", "demo.post_startup", "demo.stop", "demo.close"}, log.calls)
	assert.False(t, session.Running())
}

func TestSession_ConflictTakesSection(t *testing.T) {
	ctx := context.Background()
	handles := dylib.NewHandles()

	registry := NewRegistry(nil)
	require.NoError(t, registry.Register(&recordingPlugin{name: "demo", log: &callLog{}}))

	foreign := newForeignPlugin(handles, &callLog{})
	lib := foreign.library("/plugins/libdemo.so", "demo", "1.0.0")
	d, err := newTestLoader(handles, lib).Load(lib.path)
	require.NoError(t, err)

	doc, err := config.Parse([]byte("[demo]\ninterval_ms = 100\n"))
	require.NoError(t, err)

	session := NewSession(registry, nil, nil)
	err = session.Add(ctx, []*Descriptor{d}, doc)
	assert.ErrorIs(t, err, ErrNameConflict)
	assert.False(t, errors.Is(err, ErrMissingConfig))

	// the rejected plugin's section is not left behind as unclaimed
	assert.Empty(t, doc.Keys())
	assert.Equal(t, 0, foreign.initCalls)
	assert.Equal(t, 1, lib.closed)
	assert.Equal(t, []string{"demo"}, registry.Names())
}
