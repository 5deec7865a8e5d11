package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"pkgbind/internal/builtin"
	"pkgbind/internal/config"
	"pkgbind/internal/value"
)

type repoCount int

func (c repoCount) Repositories() int { return int(c) }

func testRegistry() *builtin.Registry {
	reg := builtin.NewRegistry()
	reg.Register("Echo", []value.Kind{value.IntKind, value.SymbolKind}, func(_ context.Context, a builtin.Args) value.Value {
		return value.List(value.Int(a.Int(0)+1), value.Symbol(a.Symbol(1)))
	})
	return reg
}

func testRouter(collection Collection) fasthttp.RequestHandler {
	return SetupRouter(NewAPI(testRegistry(), config.Default(), collection))
}

func do(t *testing.T, handler fasthttp.RequestHandler, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	ctx.Request.SetBodyString(body)
	handler(&ctx)

	var out map[string]interface{}
	if ct := string(ctx.Response.Header.ContentType()); ct == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out), string(ctx.Response.Body()))
	}
	return ctx.Response.StatusCode(), out
}

func TestCall(t *testing.T) {
	handler := testRouter(nil)

	testCases := []struct {
		desc   string
		method string
		path   string
		body   string
		code   int
		status string
	}{
		{"ok", "POST", "/call/Echo", "[41, \"`done\"]", fasthttp.StatusOK, "success"},
		{"string as symbol", "POST", "/call/Echo", `[1, "done"]`, fasthttp.StatusOK, "success"},
		{"unknown builtin", "POST", "/call/Nope", `[]`, fasthttp.StatusNotFound, "error"},
		{"argument count", "POST", "/call/Echo", `[1]`, fasthttp.StatusBadRequest, "error"},
		{"argument type", "POST", "/call/Echo", `["x", "y"]`, fasthttp.StatusBadRequest, "error"},
		{"bad json", "POST", "/call/Echo", `[1,`, fasthttp.StatusBadRequest, "error"},
		{"wrong method", "GET", "/call/Echo", ``, fasthttp.StatusMethodNotAllowed, "error"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			code, out := do(t, handler, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.status, out["status"])
		})
	}

	_, out := do(t, handler, "POST", "/call/Echo", "[41, \"`done\"]")
	assert.Equal(t, "Echo", out["builtin"])
	assert.Equal(t, []interface{}{float64(42), "`done"}, out["result"])
	assert.NotContains(t, out, "error")
}

func TestBuiltinsAndProbes(t *testing.T) {
	handler := testRouter(nil)

	code, out := do(t, handler, "GET", "/builtins", "")
	require.Equal(t, fasthttp.StatusOK, code)
	assert.Equal(t, float64(1), out["count"])
	builtins := out["builtins"].([]interface{})
	require.Len(t, builtins, 1)
	assert.Equal(t, map[string]interface{}{"name": "Echo", "params": []interface{}{"integer", "symbol"}}, builtins[0])

	code, out = do(t, handler, "GET", "/health", "")
	assert.Equal(t, fasthttp.StatusOK, code)
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, serverName, out["server"])

	code, _ = do(t, handler, "GET", "/ready", "")
	assert.Equal(t, fasthttp.StatusServiceUnavailable, code)

	code, out = do(t, testRouter(repoCount(2)), "GET", "/ready", "")
	assert.Equal(t, fasthttp.StatusOK, code)
	assert.Equal(t, map[string]interface{}{"repositories": float64(2), "builtins": float64(1)}, out["checks"])

	code, _ = do(t, handler, "GET", "/missing", "")
	assert.Equal(t, fasthttp.StatusNotFound, code)
}

func TestReadyDuringLongBuiltin(t *testing.T) {
	reg := testRegistry()
	started, release := make(chan struct{}), make(chan struct{})
	reg.Register("SourceLoad", nil, func(context.Context, builtin.Args) value.Value {
		close(started)
		<-release
		return value.Bool(true)
	})
	handler := SetupRouter(NewAPI(reg, config.Default(), repoCount(3)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = reg.Call(context.Background(), "SourceLoad", nil)
	}()
	<-started

	code, out := do(t, handler, "GET", "/ready", "")
	close(release)
	<-done

	assert.Equal(t, fasthttp.StatusOK, code)
	assert.Equal(t, map[string]interface{}{"repositories": float64(3), "builtins": float64(2)}, out["checks"])
}

func TestMetricsEndpoint(t *testing.T) {
	handler := testRouter(nil)
	do(t, handler, "POST", "/call/Echo", `[1, "x"]`)

	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod("GET")
	ctx.Request.SetRequestURI("/metrics")
	handler(&ctx)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), `pkgbind_builtin_calls_total{builtin="Echo"}`)
}

func BenchmarkCall(b *testing.B) {
	handler := testRouter(nil)
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		var ctx fasthttp.RequestCtx
		for pb.Next() {
			ctx.Request.Reset()
			ctx.Response.Reset()
			ctx.Request.Header.SetMethod("POST")
			ctx.Request.SetRequestURI("/call/Echo")
			ctx.Request.SetBodyString(`[1, "x"]`)
			handler(&ctx)
		}
	})
}
