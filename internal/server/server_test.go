package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mj1618/abivis/internal/abi"
	"github.com/mj1618/abivis/internal/config"
	"github.com/mj1618/abivis/internal/selector"
	"github.com/mj1618/abivis/internal/toolchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type countingProber struct {
	mu      sync.Mutex
	calls   int
	signals toolchain.Signals
	err     error
}

func (p *countingProber) Probe(_ context.Context, _ toolchain.Compiler) (toolchain.Signals, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.signals, p.err
}

func (p *countingProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

var gccSignals = toolchain.Signals{"__GNUC__": "13", "__GNUC_MINOR__": "2"}

func testConfig() *config.Config {
	return &config.Config{
		FlagPrefix:    abi.DefaultFlagPrefix,
		Compiler:      "gcc",
		GCCMinVersion: "4",
		ProbeTimeout:  time.Second,
		Libraries:     []config.Library{{Name: "core", Prefix: "CORE"}},
	}
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content type %T", res.Content[0])
	return ""
}

func TestProbeCache_HitsWithinTTL(t *testing.T) {
	p := &countingProber{signals: gccSignals}
	c := NewProbeCache(p, time.Minute)
	cc := toolchain.Compiler{Command: []string{"gcc"}}

	for i := 0; i < 3; i++ {
		s, err := c.Probe(context.Background(), cc)
		require.NoError(t, err)
		assert.Equal(t, "13", s["__GNUC__"])
	}
	assert.Equal(t, 1, p.count())
	assert.Equal(t, 1, c.Len())

	// Different flags are a different key.
	_, err := c.Probe(context.Background(), toolchain.Compiler{Command: []string{"gcc"}, Flags: []string{"-m32"}})
	require.NoError(t, err)
	assert.Equal(t, 2, p.count())

	c.Invalidate(cc)
	_, err = c.Probe(context.Background(), cc)
	require.NoError(t, err)
	assert.Equal(t, 3, p.count())
}

func TestProbeCache_ReturnsCopies(t *testing.T) {
	p := &countingProber{signals: toolchain.Signals{"__GNUC__": "13"}}
	c := NewProbeCache(p, time.Minute)
	cc := toolchain.Compiler{Command: []string{"gcc"}}

	first, err := c.Probe(context.Background(), cc)
	require.NoError(t, err)
	first["__GNUC__"] = "99"
	first["_WIN32"] = "1"

	second, err := c.Probe(context.Background(), cc)
	require.NoError(t, err)
	assert.Equal(t, toolchain.Signals{"__GNUC__": "13"}, second)
	second["__GNUC__"] = "1"

	third, err := c.Probe(context.Background(), cc)
	require.NoError(t, err)
	assert.Equal(t, "13", third["__GNUC__"])
	assert.Equal(t, 1, p.count())
}

func TestProbeCache_Disabled(t *testing.T) {
	p := &countingProber{signals: gccSignals}
	c := NewProbeCache(p, 0)
	for i := 0; i < 2; i++ {
		_, err := c.Probe(context.Background(), toolchain.Compiler{Command: []string{"gcc"}})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, p.count())
	assert.Zero(t, c.Len())
}

func TestProbeCache_Expires(t *testing.T) {
	p := &countingProber{signals: gccSignals}
	c := NewProbeCache(p, 10*time.Millisecond)
	cc := toolchain.Compiler{Command: []string{"gcc"}}

	_, err := c.Probe(context.Background(), cc)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = c.Probe(context.Background(), cc)
	require.NoError(t, err)
	assert.Equal(t, 2, p.count())
}

func TestProbeCache_ErrorsNotCached(t *testing.T) {
	p := &countingProber{err: errors.Mark(errors.New("no compiler"), toolchain.ErrProbeFailed)}
	c := NewProbeCache(p, time.Minute)
	for i := 0; i < 2; i++ {
		_, err := c.Probe(context.Background(), toolchain.Compiler{Command: []string{"gcc"}})
		assert.True(t, errors.Is(err, toolchain.ErrProbeFailed))
	}
	assert.Equal(t, 2, p.count())
	assert.Zero(t, c.Len())
}

func TestHandleResolve(t *testing.T) {
	s := New(testConfig(), Options{CacheTTL: time.Minute}, &countingProber{signals: gccSignals})

	res, err := s.handleResolve(context.Background(), call(map[string]interface{}{
		"toolchain": "msvc",
		"libraries": []interface{}{"mylib"},
		"defines":   []interface{}{"E_ABI_mylib=1"},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var results []selector.Result
	require.NoError(t, yaml.Unmarshal([]byte(resultText(t, res)), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "mylib", results[0].Library)
	assert.Equal(t, abi.Export, results[0].Mode)
	assert.Equal(t, "__declspec(dllexport)", results[0].Annotation.Text)
}

func TestHandleResolve_ProbesOnceWithCache(t *testing.T) {
	p := &countingProber{signals: gccSignals}
	s := New(testConfig(), Options{CacheTTL: time.Minute}, p)

	args := map[string]interface{}{"libraries": "core, extra"}
	for i := 0; i < 2; i++ {
		res, err := s.handleResolve(context.Background(), call(args))
		require.NoError(t, err)
		require.False(t, res.IsError, resultText(t, res))
		assert.Contains(t, resultText(t, res), "library: extra")
	}
	assert.Equal(t, 1, p.count())

	args["refresh"] = true
	_, err := s.handleResolve(context.Background(), call(args))
	require.NoError(t, err)
	assert.Equal(t, 2, p.count())
}

func TestHandleResolve_Errors(t *testing.T) {
	s := New(testConfig(), Options{}, &countingProber{signals: toolchain.Signals{}})

	res, err := s.handleResolve(context.Background(), call(map[string]interface{}{"libraries": []interface{}{"mylib"}}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "hint:")

	res, err = s.handleResolve(context.Background(), call(map[string]interface{}{
		"toolchain": "gcc",
		"libraries": []interface{}{"bad-lib"},
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleMatrix(t *testing.T) {
	s := New(testConfig(), Options{}, &countingProber{})
	res, err := s.handleMatrix(context.Background(), call(nil))
	require.NoError(t, err)

	var rows []selector.MatrixRow
	require.NoError(t, yaml.Unmarshal([]byte(resultText(t, res)), &rows))
	assert.Len(t, rows, len(abi.Kinds)*len(abi.Modes))
}

func TestHandleDetect(t *testing.T) {
	s := New(testConfig(), Options{}, &countingProber{signals: toolchain.Signals{"_WIN32": "1", "__GNUC__": "12"}})

	res, err := s.handleDetect(context.Background(), call(map[string]interface{}{"compiler": "x86_64-w64-mingw32-gcc"}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var id selector.Identity
	require.NoError(t, yaml.Unmarshal([]byte(resultText(t, res)), &id))
	assert.Equal(t, abi.MinGW, id.Kind)
	assert.Equal(t, "x86_64-w64-mingw32-gcc", id.Compiler)
}

func TestHandleHeader(t *testing.T) {
	s := New(testConfig(), Options{}, &countingProber{})

	res, err := s.handleHeader(context.Background(), call(map[string]interface{}{"library": "core"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "#define CORE_EXPORT_H")

	res, err = s.handleHeader(context.Background(), call(map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestNew_RegistersTools(t *testing.T) {
	s := New(testConfig(), Options{}, &countingProber{})
	tools := s.MCP().ListTools()
	for _, name := range []string{"resolve", "matrix", "detect", "header"} {
		assert.Contains(t, tools, name)
	}
}

func TestServe_UnsupportedTransport(t *testing.T) {
	s := New(testConfig(), Options{}, &countingProber{})
	err := s.Serve(Options{Transport: "carrier-pigeon"})
	require.Error(t, err)
	assert.NotEmpty(t, errors.FlattenHints(err))
}

func TestStringsParam(t *testing.T) {
	params := map[string]interface{}{
		"arr":   []interface{}{"a", " b ", ""},
		"csv":   "x, y,,z",
		"typed": []string{"p"},
	}
	assert.Equal(t, []string{"a", "b"}, stringsParam(params, "arr"))
	assert.Equal(t, []string{"x", "y", "z"}, stringsParam(params, "csv"))
	assert.Equal(t, []string{"p"}, stringsParam(params, "typed"))
	assert.Nil(t, stringsParam(params, "missing"))
}
