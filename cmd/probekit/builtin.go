package main

import (
	"runtime"
	"time"

	"github.com/platinummonkey/probekit/pkg/config"
	"github.com/platinummonkey/probekit/pkg/pipeline"
	"github.com/platinummonkey/probekit/pkg/plugins"
)

// builtinDescriptors returns the compiled-in plugins that have a section in doc.
// Built-in plugins are opt-in: an agent without a [runtime] table does not run one.
func builtinDescriptors(doc *config.Table) []*plugins.Descriptor {
	all := []*plugins.Descriptor{
		plugins.NewStaticDescriptor("runtime", version, newRuntimePlugin),
	}

	var enabled []*plugins.Descriptor
	for _, d := range all {
		if _, ok := doc.Get(d.Name()); ok {
			enabled = append(enabled, d)
			continue
		}
		_ = d.Discard()
	}
	return enabled
}

// runtimePlugin measures the agent itself
type runtimePlugin struct {
	resource   pipeline.Resource
	goroutines pipeline.MetricID
	heap       pipeline.MetricID
}

func newRuntimePlugin(cfg *config.Table) (*runtimePlugin, error) {
	id, ok := cfg.String("resource_id")
	if !ok {
		id = "self"
	}
	return &runtimePlugin{resource: pipeline.Resource{Kind: "process", ID: id}}, nil
}

func (p *runtimePlugin) Start(host *pipeline.Start) error {
	var err error
	if p.goroutines, err = metric(host, "runtime_goroutines", "1", "Number of goroutines of the agent"); err != nil {
		return err
	}
	if p.heap, err = metric(host, "runtime_heap_bytes", "B", "Heap memory in use by the agent"); err != nil {
		return err
	}
	host.AddSource(pipeline.SourceFunc(p.poll))
	return nil
}

func (p *runtimePlugin) Stop() error { return nil }

func (p *runtimePlugin) poll(ts time.Time) ([]pipeline.Point, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return []pipeline.Point{
		{Timestamp: ts, Metric: p.goroutines, Resource: p.resource, Value: float64(runtime.NumGoroutine())},
		{Timestamp: ts, Metric: p.heap, Resource: p.resource, Value: float64(mem.HeapInuse)},
	}, nil
}

// metric creates a metric, or reuses it when the plugin is restarted
func metric(host *pipeline.Start, name, unit, description string) (pipeline.MetricID, error) {
	if m, ok := host.Metrics().ByName(name); ok {
		return m.ID, nil
	}
	return host.CreateMetric(name, unit, description)
}
