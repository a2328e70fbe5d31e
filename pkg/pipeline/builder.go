package pipeline

import (
	"errors"
	"fmt"
)

// ErrMetricExists is returned when creating a metric whose name is taken
var ErrMetricExists = errors.New("metric already exists")

// MetricRegistry stores metric definitions, indexed by id and by name
type MetricRegistry struct {
	byID   map[MetricID]Metric
	byName map[string]MetricID
	order  []MetricID
	nextID MetricID
}

// NewMetricRegistry creates an empty registry
func NewMetricRegistry() *MetricRegistry {
	return &MetricRegistry{
		byID:   make(map[MetricID]Metric),
		byName: make(map[string]MetricID),
	}
}

// Create registers a new metric and assigns its id
func (r *MetricRegistry) Create(m Metric) (MetricID, error) {
	if m.Name == "" {
		return 0, fmt.Errorf("metric name cannot be empty")
	}
	if _, exists := r.byName[m.Name]; exists {
		return 0, fmt.Errorf("%w: %s", ErrMetricExists, m.Name)
	}
	r.nextID++
	m.ID = r.nextID
	r.byID[m.ID] = m
	r.byName[m.Name] = m.ID
	r.order = append(r.order, m.ID)
	return m.ID, nil
}

// ByID returns a metric by id
func (r *MetricRegistry) ByID(id MetricID) (Metric, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// ByName returns a metric by name
func (r *MetricRegistry) ByName(name string) (Metric, bool) {
	id, ok := r.byName[name]
	if !ok {
		return Metric{}, false
	}
	return r.byID[id], true
}

// List returns every metric in creation order
func (r *MetricRegistry) List() []Metric {
	out := make([]Metric, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of metrics
func (r *MetricRegistry) Len() int {
	return len(r.order)
}

// Builder collects the elements registered by plugins while they start.
// It is the host side of the handle passed to Plugin.Start; running the
// elements is the job of the pipeline engine.
type Builder struct {
	metrics  *MetricRegistry
	elements []Element
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{metrics: NewMetricRegistry()}
}

// For returns the registration handle of one plugin
func (b *Builder) For(plugin string) *Start {
	return &Start{builder: b, plugin: plugin}
}

// Metrics returns the metric registry
func (b *Builder) Metrics() *MetricRegistry {
	return b.metrics
}

// Elements returns every registered element in registration order
func (b *Builder) Elements() []Element {
	return append([]Element(nil), b.elements...)
}

// ElementsOf returns the elements registered by one plugin
func (b *Builder) ElementsOf(plugin string) []Element {
	var out []Element
	for _, e := range b.elements {
		if e.Plugin == plugin {
			out = append(out, e)
		}
	}
	return out
}

// Withdraw removes every element registered by plugin and returns how many were removed.
// Metric definitions stay: ids handed out remain valid for the whole process.
func (b *Builder) Withdraw(plugin string) int {
	kept := b.elements[:0]
	removed := 0
	for _, e := range b.elements {
		if e.Plugin == plugin {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(b.elements); i++ {
		b.elements[i] = Element{}
	}
	b.elements = kept
	return removed
}

func (b *Builder) add(e Element) {
	b.elements = append(b.elements, e)
}

// Start is the registration handle given to one plugin during its start.
// Everything added through it is attributed to that plugin.
type Start struct {
	builder *Builder
	plugin  string
}

// Plugin returns the name of the plugin owning this handle
func (s *Start) Plugin() string {
	return s.plugin
}

// CreateMetric registers a metric definition
func (s *Start) CreateMetric(name, unit, description string) (MetricID, error) {
	return s.builder.metrics.Create(Metric{
		Name:        name,
		Unit:        unit,
		Description: description,
		Plugin:      s.plugin,
	})
}

// Metrics gives read access to every metric created so far
func (s *Start) Metrics() *MetricRegistry {
	return s.builder.metrics
}

// Withdraw removes everything added through this handle
func (s *Start) Withdraw() int {
	return s.builder.Withdraw(s.plugin)
}

// AddSource registers a source
func (s *Start) AddSource(src Source) {
	s.builder.add(Element{Plugin: s.plugin, Kind: ElementSource, Source: src})
}

// AddTransform registers a transform
func (s *Start) AddTransform(t Transform) {
	s.builder.add(Element{Plugin: s.plugin, Kind: ElementTransform, Transform: t})
}

// AddOutput registers an output
func (s *Start) AddOutput(o Output) {
	s.builder.add(Element{Plugin: s.plugin, Kind: ElementOutput, Output: o})
}
