package pipeline

import (
	"time"
)

// MetricID identifies a metric registered with the pipeline
type MetricID uint64

// Metric describes a measured quantity
type Metric struct {
	ID          MetricID
	Name        string
	Unit        string
	Description string
	// Plugin is the name of the plugin that created the metric.
	Plugin string
}

// Resource identifies what a measurement is about (a CPU package, a GPU, a process...)
type Resource struct {
	Kind string
	ID   string
}

// Point is a single measurement
type Point struct {
	Timestamp  time.Time
	Metric     MetricID
	Resource   Resource
	Value      float64
	Attributes map[string]any
}

// Buffer is a batch of measurements flowing through transforms and outputs
type Buffer []Point

// Source produces measurements when polled
type Source interface {
	Poll(timestamp time.Time) ([]Point, error)
}

// Transform modifies a buffer in place
type Transform interface {
	Apply(buf *Buffer) error
}

// Output writes measurements out of the pipeline
type Output interface {
	Write(buf Buffer, ctx OutputContext) error
}

// OutputContext gives outputs access to the metric definitions
type OutputContext struct {
	Metrics *MetricRegistry
}

// ElementKind distinguishes the three kinds of pipeline elements
type ElementKind string

const (
	ElementSource    ElementKind = "source"
	ElementTransform ElementKind = "transform"
	ElementOutput    ElementKind = "output"
)

// Element is a pipeline element registered by a plugin.
// Exactly one of Source, Transform and Output is set, according to Kind.
type Element struct {
	Plugin    string
	Kind      ElementKind
	Source    Source
	Transform Transform
	Output    Output
}

// SourceFunc adapts a function to the Source interface
type SourceFunc func(timestamp time.Time) ([]Point, error)

// Poll calls f(timestamp)
func (f SourceFunc) Poll(timestamp time.Time) ([]Point, error) { return f(timestamp) }

// TransformFunc adapts a function to the Transform interface
type TransformFunc func(buf *Buffer) error

// Apply calls f(buf)
func (f TransformFunc) Apply(buf *Buffer) error { return f(buf) }

// OutputFunc adapts a function to the Output interface
type OutputFunc func(buf Buffer, ctx OutputContext) error

// Write calls f(buf, ctx)
func (f OutputFunc) Write(buf Buffer, ctx OutputContext) error { return f(buf, ctx) }
