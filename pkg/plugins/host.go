package plugins

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/probekit/pkg/dylib"
	"github.com/platinummonkey/probekit/pkg/pipeline"
)

// pollFunc is the C signature of a foreign source:
// void (*)(void *source, uintptr_t accumulator, int64_t timestamp_ns)
type pollFunc func(source uintptr, acc uintptr, timestampNS int64)

// Host serves the host API to dynamic plugins.
//
// Foreign code only ever holds handles: the configuration handle during
// plugin_init, the registration handle from plugin_start to plugin_stop, and
// an accumulator handle for the duration of one poll. Every call resolves its
// handle in the table first, so stale or forged handles are refused.
type Host struct {
	handles *dylib.Handles

	once  sync.Once
	table *dylib.HostTable
	err   error
}

// NewHost creates a host API resolving handles in handles
func NewHost(handles *dylib.Handles) *Host {
	return &Host{handles: handles}
}

// defaultHost is shared by loaders using the global handle table, so that the
// C callbacks are created once per process.
var defaultHost = NewHost(dylib.Global)

// accumulator collects the points pushed during one poll
type accumulator struct {
	plugin    string
	timestamp time.Time
	metrics   *pipeline.MetricRegistry
	points    []pipeline.Point
}

// Config returns the value at path in the configuration published under cfg
func (h *Host) Config(cfg dylib.Handle, path string) (dylib.ConfigValue, bool) {
	v, ok := h.handles.Value(cfg)
	if !ok {
		return dylib.ConfigValue{}, false
	}
	table, ok := v.(*dylib.ConfigTable)
	if !ok {
		return dylib.ConfigValue{}, false
	}
	return table.Path(path)
}

func (h *Host) start(handle dylib.Handle) (*pipeline.Start, bool) {
	v, ok := h.handles.Value(handle)
	if !ok {
		return nil, false
	}
	s, ok := v.(*pipeline.Start)
	return s, ok
}

// CreateMetric registers a metric for the plugin started under start.
// Creating a metric the same plugin already owns returns its id, so that a
// restarted plugin finds its metrics again. It returns 0 on failure.
func (h *Host) CreateMetric(start dylib.Handle, name, unit, description string) pipeline.MetricID {
	scope, ok := h.start(start)
	if !ok {
		return 0
	}
	id, err := scope.CreateMetric(name, unit, description)
	if err == nil {
		return id
	}
	if errors.Is(err, pipeline.ErrMetricExists) {
		if m, ok := scope.Metrics().ByName(name); ok && m.Plugin == scope.Plugin() {
			return m.ID
		}
	}
	return 0
}

// AddSource registers a foreign source polled through poll with the given
// source pointer, owned by the plugin.
func (h *Host) AddSource(start dylib.Handle, poll pollFunc, source uintptr) bool {
	scope, ok := h.start(start)
	if !ok || poll == nil {
		return false
	}
	scope.AddSource(&foreignSource{
		host:    h,
		plugin:  scope.Plugin(),
		metrics: scope.Metrics(),
		poll:    poll,
		source:  source,
	})
	return true
}

// Push records a measurement in the accumulator of the current poll.
// The metric must exist and belong to the polled plugin.
func (h *Host) Push(acc dylib.Handle, metric pipeline.MetricID, value float64) bool {
	v, ok := h.handles.Value(acc)
	if !ok {
		return false
	}
	a, ok := v.(*accumulator)
	if !ok {
		return false
	}
	m, ok := a.metrics.ByID(metric)
	if !ok || m.Plugin != a.plugin {
		return false
	}
	a.points = append(a.points, pipeline.Point{
		Timestamp: a.timestamp,
		Metric:    metric,
		Resource:  pipeline.Resource{Kind: "plugin", ID: a.plugin},
		Value:     value,
	})
	return true
}

// foreignSource is a pipeline source implemented by a dynamic plugin
type foreignSource struct {
	host    *Host
	plugin  string
	metrics *pipeline.MetricRegistry
	poll    pollFunc
	source  uintptr
}

func (s *foreignSource) Poll(ts time.Time) ([]pipeline.Point, error) {
	acc := &accumulator{plugin: s.plugin, timestamp: ts, metrics: s.metrics}
	handle := s.host.handles.New(acc)
	defer s.host.handles.Delete(handle)

	s.poll(s.source, uintptr(handle), ts.UnixNano())
	return acc.points, nil
}

// Table returns the address of the C function table handed to plugin_init.
// The table is built on first use and lives as long as the Host.
func (h *Host) Table() (uintptr, error) {
	h.once.Do(func() {
		h.table, h.err = h.buildTable()
	})
	if h.err != nil {
		return 0, h.err
	}
	return h.table.Addr(), nil
}

func (h *Host) buildTable() (*dylib.HostTable, error) {
	t := &dylib.HostTable{}
	callbacks := []struct {
		name string
		fn   any
		dst  *uintptr
	}{
		{"config_int", h.cConfigInt, &t.ConfigInt},
		{"config_float", h.cConfigFloat, &t.ConfigFloat},
		{"config_bool", h.cConfigBool, &t.ConfigBool},
		{"config_string", h.cConfigString, &t.ConfigString},
		{"create_metric", h.cCreateMetric, &t.CreateMetric},
		{"add_source", h.cAddSource, &t.AddSource},
		{"push", h.cPush, &t.Push},
	}
	for _, cb := range callbacks {
		addr, err := dylib.NewCallback(cb.fn)
		if err != nil {
			return nil, fmt.Errorf("failed to export host function %s: %w", cb.name, err)
		}
		*cb.dst = addr
	}
	return t, nil
}

// The c* methods are the C entry points of the table. A panic must never
// unwind through foreign frames, so each one recovers into a failure result.

func cBool(ok bool) int32 {
	if ok {
		return 1
	}
	return 0
}

func recoverInto[T any](dst *T, failure T) {
	if r := recover(); r != nil {
		*dst = failure
	}
}

func (h *Host) configValue(cfg, key uintptr) (dylib.ConfigValue, bool) {
	path, err := dylib.GoString(key)
	if err != nil {
		return dylib.ConfigValue{}, false
	}
	return h.Config(dylib.Handle(cfg), path)
}

// int32_t config_int(uintptr_t config, const char *key, int64_t *out)
func (h *Host) cConfigInt(cfg, key, out uintptr) (ret int32) {
	defer recoverInto(&ret, 0)
	v, ok := h.configValue(cfg, key)
	if !ok || v.Kind != dylib.ValueInteger {
		return 0
	}
	dylib.StoreInt64(out, v.Integer)
	return 1
}

// int32_t config_float(uintptr_t config, const char *key, double *out)
// Integers are widened.
func (h *Host) cConfigFloat(cfg, key, out uintptr) (ret int32) {
	defer recoverInto(&ret, 0)
	v, ok := h.configValue(cfg, key)
	if !ok {
		return 0
	}
	switch v.Kind {
	case dylib.ValueFloat:
		dylib.StoreFloat64(out, v.Float)
	case dylib.ValueInteger:
		dylib.StoreFloat64(out, float64(v.Integer))
	default:
		return 0
	}
	return 1
}

// int32_t config_bool(uintptr_t config, const char *key, int32_t *out)
func (h *Host) cConfigBool(cfg, key, out uintptr) (ret int32) {
	defer recoverInto(&ret, 0)
	v, ok := h.configValue(cfg, key)
	if !ok || v.Kind != dylib.ValueBoolean {
		return 0
	}
	dylib.StoreInt32(out, cBool(v.Boolean))
	return 1
}

// int64_t config_string(uintptr_t config, const char *key, char *buf, size_t len)
func (h *Host) cConfigString(cfg, key, buf, size uintptr) (ret int64) {
	defer recoverInto(&ret, -1)
	v, ok := h.configValue(cfg, key)
	if !ok || v.Kind != dylib.ValueString {
		return -1
	}
	return dylib.CopyCString(buf, size, v.String)
}

// uint64_t create_metric(uintptr_t start, const char *name, const char *unit, const char *description)
func (h *Host) cCreateMetric(start, name, unit, description uintptr) (ret uint64) {
	defer recoverInto(&ret, 0)
	texts := make([]string, 3)
	for i, p := range []uintptr{name, unit, description} {
		if p == 0 && i > 0 {
			continue
		}
		s, err := dylib.GoString(p)
		if err != nil {
			return 0
		}
		texts[i] = s
	}
	return uint64(h.CreateMetric(dylib.Handle(start), texts[0], texts[1], texts[2]))
}

// int32_t add_source(uintptr_t start, void (*poll)(void *, uintptr_t, int64_t), void *source)
func (h *Host) cAddSource(start, poll, source uintptr) (ret int32) {
	defer recoverInto(&ret, 0)
	if _, ok := h.start(dylib.Handle(start)); !ok {
		return 0
	}
	var fn pollFunc
	if err := dylib.BindFunc(&fn, poll); err != nil {
		return 0
	}
	return cBool(h.AddSource(dylib.Handle(start), fn, source))
}

// int32_t push(uintptr_t accumulator, uint64_t metric, double value)
func (h *Host) cPush(acc uintptr, metric uint64, value float64) (ret int32) {
	defer recoverInto(&ret, 0)
	return cBool(h.Push(dylib.Handle(acc), pipeline.MetricID(metric), value))
}
