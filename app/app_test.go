package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkgbind/internal/builtin"
	"pkgbind/internal/config"
	"pkgbind/internal/value"
	_ "pkgbind/pkg"
)

func TestParseArgs(t *testing.T) {
	args := ParseArgs([]string{`1`, `true`, "\"`installed\"", `{"enabled": false}`, `plain text`, `[1, 2]`})
	require.Len(t, args, 6)

	testCases := []struct {
		desc string
		got  value.Value
		want value.Value
	}{
		{"int", args[0], value.Int(1)},
		{"bool", args[1], value.Bool(true)},
		{"symbol", args[2], value.Symbol("installed")},
		{"map", args[3], value.Map(map[string]value.Value{"enabled": value.Bool(false)})},
		{"not json", args[4], value.String("plain text")},
		{"list", args[5], value.Ints([]int64{1, 2})},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.True(t, value.Equal(tc.want, tc.got), "got %s", tc.got)
		})
	}
}

func TestInvoke(t *testing.T) {
	reg := builtin.NewRegistry()
	reg.Register("Double", []value.Kind{value.IntKind}, func(_ context.Context, a builtin.Args) value.Value {
		return value.Int(2 * a.Int(0))
	})

	var out bytes.Buffer
	require.NoError(t, invoke(context.Background(), reg, "Double", []value.Value{value.Int(21)}, &out))
	assert.JSONEq(t, `{"status":"success","builtin":"Double","result":42}`, out.String())

	out.Reset()
	assert.Error(t, invoke(context.Background(), reg, "Double", nil, &out))
	assert.Contains(t, out.String(), `"status":"error"`)

	out.Reset()
	require.NoError(t, listBuiltins(reg, &out))
	assert.Equal(t, "Double(integer)\n", out.String())
}

func TestAutorefresh(t *testing.T) {
	reg := builtin.NewRegistry()
	reg.Register("SourceGetCurrent", []value.Kind{value.BoolKind}, func(context.Context, builtin.Args) value.Value {
		return value.Ints([]int64{0, 1, 2})
	})
	reg.Register("SourceGeneralData", []value.Kind{value.IntKind}, func(_ context.Context, a builtin.Args) value.Value {
		return value.Map(map[string]value.Value{"autorefresh": value.Bool(a.Int(0) != 1)})
	})
	var refreshed []int64
	reg.Register("SourceRefreshNow", []value.Kind{value.IntKind}, func(_ context.Context, a builtin.Args) value.Value {
		refreshed = append(refreshed, a.Int(0))
		return value.Bool(a.Int(0) == 0)
	})

	e := &Engine{Registry: reg}
	assert.Equal(t, 1, e.Autorefresh(context.Background()))
	assert.Equal(t, []int64{0, 2}, refreshed)

	c, err := e.StartAutorefresh("")
	assert.NoError(t, err)
	assert.Nil(t, c)

	_, err = e.StartAutorefresh("not a schedule")
	assert.Error(t, err)

	c, err = e.StartAutorefresh("@every 1h")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Len(t, c.Entries(), 1)
	c.Stop()
}

func TestBuild(t *testing.T) {
	cfg := config.Default()
	cfg.SetRoot(t.TempDir())
	cfg.Arch = "x86_64"

	e, err := Build(cfg)
	require.NoError(t, err)
	defer e.Close()

	var out bytes.Buffer
	require.NoError(t, invoke(context.Background(), e.Registry, "GetArchitecture", nil, &out))
	assert.JSONEq(t, `{"status":"success","builtin":"GetArchitecture","result":"x86_64"}`, out.String())
	assert.True(t, e.Registry.Has("CallbackMediaChange"))
}
