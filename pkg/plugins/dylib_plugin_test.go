//go:build darwin || freebsd || linux

package plugins

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/probekit/pkg/config"
	"github.com/platinummonkey/probekit/pkg/dylib"
	"github.com/platinummonkey/probekit/pkg/pipeline"
)

const counterSource = "../../examples/dynamic-plugin-c"

// buildCounter compiles the example C plugin into dir
func buildCounter(t *testing.T, dir, name string, flags ...string) string {
	t.Helper()
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("cc not available")
	}

	out := filepath.Join(dir, name)
	args := append([]string{"-shared", "-fPIC", "-I", counterSource, "-o", out}, flags...)
	args = append(args, filepath.Join(counterSource, "plugin.c"))
	output, err := exec.Command(cc, args...).CombinedOutput()
	require.NoError(t, err, "compile plugin.c: %s", output)
	return out
}

func TestDylibPlugin_Counter(t *testing.T) {
	ctx := context.Background()
	path := buildCounter(t, t.TempDir(), "libcounter.so")
	baseline := dylib.Global.Len()

	loader := NewLoader(nil)
	d, err := loader.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "counter", d.Name())
	assert.Equal(t, "0.1.0", d.Version())
	assert.Equal(t, path, d.Path())

	doc, err := config.Parse([]byte("[counter]\ninterval_ms = 100\nlabel = \"demo counter\"\n"))
	require.NoError(t, err)

	builder := pipeline.NewBuilder()
	session := NewSession(NewRegistry(nil), builder, nil)
	require.NoError(t, session.Add(ctx, []*Descriptor{d}, doc))
	assert.Equal(t, baseline, dylib.Global.Len(), "the config handle does not outlive plugin_init")

	_, err = session.Start(ctx)
	require.NoError(t, err)

	// the plugin read its configuration and registered through the host table
	m, ok := builder.Metrics().ByName("counter_elapsed")
	require.True(t, ok)
	assert.Equal(t, "ms", m.Unit)
	assert.Equal(t, "demo counter", m.Description)
	assert.Equal(t, "counter", m.Plugin)

	elements := builder.ElementsOf("counter")
	require.Len(t, elements, 1)
	require.Equal(t, pipeline.ElementSource, elements[0].Kind)

	for i, want := range []float64{100, 200} {
		points, err := elements[0].Source.Poll(time.Unix(10, 0))
		require.NoError(t, err)
		require.Len(t, points, 1, "poll %d", i)
		assert.Equal(t, want, points[0].Value)
		assert.Equal(t, m.ID, points[0].Metric)
		assert.Equal(t, time.Unix(10, 0), points[0].Timestamp)
		assert.Equal(t, pipeline.Resource{Kind: "plugin", ID: "counter"}, points[0].Resource)
	}
	assert.Equal(t, baseline+1, dylib.Global.Len(), "only the registration handle is live")

	// a restarted plugin finds its metric again
	_, err = session.Restart(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, builder.Metrics().Len())
	elements = builder.ElementsOf("counter")
	require.Len(t, elements, 1)
	points, err := elements[0].Source.Poll(time.Unix(11, 0))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, m.ID, points[0].Metric)
	assert.Equal(t, 300.0, points[0].Value)

	require.NoError(t, session.Stop(ctx))
	assert.Empty(t, builder.ElementsOf("counter"))
	require.NoError(t, session.Close(ctx))
	assert.Equal(t, baseline, dylib.Global.Len())
}

func TestDylibPlugin_InitRequiresInterval(t *testing.T) {
	path := buildCounter(t, t.TempDir(), "libcounter.so")

	d, err := NewLoader(nil).Load(path)
	require.NoError(t, err)

	cfg := config.NewTable()
	cfg.Set("interval_ms", config.String("fast"))
	p, err := d.Construct(cfg)
	assert.Nil(t, p)
	var initErr *InitError
	require.True(t, errors.As(err, &initErr))
	assert.Equal(t, "counter", initErr.Plugin)
	assert.NoError(t, initErr.Err, "plugin_init returned NULL")
}

func TestDylibPlugin_MissingStop(t *testing.T) {
	dir := t.TempDir()
	path := buildCounter(t, dir, "libnostop.so", "-DOMIT_STOP")

	d, err := NewLoader(nil).Load(path)
	require.Error(t, err)
	assert.Nil(t, d)

	var symErr *SymbolError
	require.True(t, errors.As(err, &symErr))
	assert.Equal(t, SymbolStop, symErr.Symbol)
	assert.Equal(t, path, symErr.Path)
	assert.ErrorIs(t, err, dylib.ErrSymbolNotFound)

	// discovery skips the broken library and keeps the good one
	buildCounter(t, dir, "libcounter.so")
	descriptors, err := NewLoader(nil).Discover([]string{dir})
	require.Error(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "counter", descriptors[0].Name())
	assert.NoError(t, descriptors[0].Discard())
}
