package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricRegistry_Create(t *testing.T) {
	r := NewMetricRegistry()

	id, err := r.Create(Metric{Name: "cpu_time", Unit: "ns"})
	require.NoError(t, err)
	assert.Equal(t, MetricID(1), id)

	m, ok := r.ByID(id)
	require.True(t, ok)
	assert.Equal(t, "cpu_time", m.Name)

	m, ok = r.ByName("cpu_time")
	require.True(t, ok)
	assert.Equal(t, id, m.ID)

	_, err = r.Create(Metric{Name: "cpu_time"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMetricExists))

	_, err = r.Create(Metric{})
	require.Error(t, err)

	assert.Equal(t, 1, r.Len())
}

func TestBuilder_RegistrationsArePerPlugin(t *testing.T) {
	b := NewBuilder()

	noop := SourceFunc(func(time.Time) ([]Point, error) { return nil, nil })

	a := b.For("a")
	id, err := a.CreateMetric("a_metric", "W", "power")
	require.NoError(t, err)
	a.AddSource(noop)
	a.AddOutput(OutputFunc(func(Buffer, OutputContext) error { return nil }))

	c := b.For("c")
	c.AddTransform(TransformFunc(func(*Buffer) error { return nil }))

	assert.Len(t, b.Elements(), 3)
	assert.Len(t, b.ElementsOf("a"), 2)
	assert.Len(t, b.ElementsOf("c"), 1)
	assert.Equal(t, "a", a.Plugin())

	m, ok := b.Metrics().ByID(id)
	require.True(t, ok)
	assert.Equal(t, "a", m.Plugin)

	removed := b.Withdraw("a")
	assert.Equal(t, 2, removed)
	require.Len(t, b.Elements(), 1)
	assert.Equal(t, ElementTransform, b.Elements()[0].Kind)

	// metrics outlive the plugin that created them
	_, ok = b.Metrics().ByID(id)
	assert.True(t, ok)

	assert.Equal(t, 0, b.Withdraw("unknown"))
}

func TestFuncAdapters(t *testing.T) {
	ts := time.Unix(100, 0)
	src := SourceFunc(func(at time.Time) ([]Point, error) {
		return []Point{{Timestamp: at, Value: 1}}, nil
	})
	points, err := src.Poll(ts)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, ts, points[0].Timestamp)

	buf := Buffer(points)
	double := TransformFunc(func(b *Buffer) error {
		for i := range *b {
			(*b)[i].Value *= 2
		}
		return nil
	})
	require.NoError(t, double.Apply(&buf))
	assert.Equal(t, 2.0, buf[0].Value)

	var written int
	out := OutputFunc(func(b Buffer, _ OutputContext) error {
		written += len(b)
		return nil
	})
	require.NoError(t, out.Write(buf, OutputContext{Metrics: NewMetricRegistry()}))
	assert.Equal(t, 1, written)
}
