package plugins

import (
	"fmt"
	"reflect"

	"github.com/platinummonkey/probekit/pkg/dylib"
	"github.com/platinummonkey/probekit/pkg/pipeline"
)

// callLog records foreign calls and library events in order
type callLog struct {
	calls []string
}

func (c *callLog) add(format string, args ...any) {
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

// fakeLibrary stands in for a shared library opened with purego
type fakeLibrary struct {
	path   string
	texts  map[string]string
	funcs  map[string]any
	closed int
	log    *callLog
}

func (f *fakeLibrary) Path() string { return f.path }

func (f *fakeLibrary) Symbol(name string) (uintptr, error) {
	if _, ok := f.texts[name]; ok {
		return 1, nil
	}
	if _, ok := f.funcs[name]; ok {
		return 1, nil
	}
	return 0, fmt.Errorf("%w: %s", dylib.ErrSymbolNotFound, name)
}

func (f *fakeLibrary) CString(name string) (string, error) {
	s, ok := f.texts[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", dylib.ErrSymbolNotFound, name)
	}
	return s, nil
}

func (f *fakeLibrary) Func(fptr any, name string) error {
	fn, ok := f.funcs[name]
	if !ok {
		return fmt.Errorf("%w: %s", dylib.ErrSymbolNotFound, name)
	}
	dst := reflect.ValueOf(fptr).Elem()
	src := reflect.ValueOf(fn)
	if src.Type() != dst.Type() {
		return fmt.Errorf("%w: %s is %s, want %s", dylib.ErrBadSignature, name, src.Type(), dst.Type())
	}
	dst.Set(src)
	return nil
}

func (f *fakeLibrary) Close() error {
	f.closed++
	if f.log != nil {
		f.log.add("dlclose %s", f.path)
	}
	return nil
}

// foreignPlugin simulates the C side of a dynamic plugin.
// It reads its configuration and registers a source through the host API,
// as a real plugin does through the probekit_host table.
type foreignPlugin struct {
	host      *Host
	log       *callLog
	failInit  bool
	next      uintptr
	live      map[uintptr]int64
	metrics   map[uintptr]pipeline.MetricID
	initCalls int
	// table is the host table address received by the last plugin_init.
	table uintptr
}

func newForeignPlugin(handles *dylib.Handles, log *callLog) *foreignPlugin {
	return &foreignPlugin{
		host:    NewHost(handles),
		log:     log,
		next:    0x1000,
		live:    make(map[uintptr]int64),
		metrics: make(map[uintptr]pipeline.MetricID),
	}
}

func (p *foreignPlugin) init(host, cfg uintptr) uintptr {
	p.initCalls++
	p.table = host
	p.log.add("init")
	if p.failInit || host == 0 {
		return 0
	}
	interval, ok := p.host.Config(dylib.Handle(cfg), "interval_ms")
	if !ok || interval.Kind != dylib.ValueInteger {
		return 0
	}
	p.next += 0x10
	p.live[p.next] = interval.Integer
	return p.next
}

func (p *foreignPlugin) start(instance, start uintptr) {
	p.log.add("start")
	id := p.host.CreateMetric(dylib.Handle(start), "demo_counter", "1", "demo counter")
	if id == 0 {
		p.log.add("create_metric refused")
		return
	}
	p.metrics[instance] = id
	if !p.host.AddSource(dylib.Handle(start), p.poll, instance) {
		p.log.add("add_source refused")
	}
}

// poll pushes the configured interval, as the C example pushes its counter
func (p *foreignPlugin) poll(instance, acc uintptr, timestampNS int64) {
	p.host.Push(dylib.Handle(acc), p.metrics[instance], float64(p.live[instance]))
}

func (p *foreignPlugin) stop(instance uintptr) {
	p.log.add("stop")
}

func (p *foreignPlugin) drop(instance uintptr) {
	p.log.add("drop")
	delete(p.live, instance)
	delete(p.metrics, instance)
}

// library builds a fake library exporting every symbol of the plugin contract
func (p *foreignPlugin) library(path, name, apiVersion string) *fakeLibrary {
	return &fakeLibrary{
		path: path,
		texts: map[string]string{
			SymbolName:       name,
			SymbolVersion:    "0.1.0",
			SymbolAPIVersion: apiVersion,
		},
		funcs: map[string]any{
			SymbolInit:  p.init,
			SymbolStart: p.start,
			SymbolStop:  p.stop,
			SymbolDrop:  p.drop,
		},
		log: p.log,
	}
}

// openerFor returns an opener serving the given libraries by path
func openerFor(libs ...*fakeLibrary) dylib.Opener {
	byPath := make(map[string]*fakeLibrary, len(libs))
	for _, l := range libs {
		byPath[l.path] = l
	}
	return func(path string) (dylib.Library, error) {
		l, ok := byPath[path]
		if !ok {
			return nil, fmt.Errorf("cannot open shared object file %s: no such file", path)
		}
		return l, nil
	}
}

// recordingPlugin is a static plugin recording its lifecycle calls
type recordingPlugin struct {
	name     string
	log      *callLog
	startErr error
	stopErr  error
	postErr  error
	panicOn  string
	startups []*Startup
	closed   int
}

func (p *recordingPlugin) Name() string    { return p.name }
func (p *recordingPlugin) Version() string { return "1.0.0" }

func (p *recordingPlugin) Start(host *pipeline.Start) error {
	p.log.add("%s.start", p.name)
	if p.panicOn == "start" {
		panic("start exploded")
	}
	host.AddOutput(pipeline.OutputFunc(func(pipeline.Buffer, pipeline.OutputContext) error { return nil }))
	return p.startErr
}

func (p *recordingPlugin) Stop() error {
	p.log.add("%s.stop", p.name)
	return p.stopErr
}

func (p *recordingPlugin) PostStartup(s *Startup) error {
	p.log.add("%s.post_startup", p.name)
	p.startups = append(p.startups, s)
	return p.postErr
}

func (p *recordingPlugin) Close() error {
	p.log.add("%s.close", p.name)
	p.closed++
	return nil
}
