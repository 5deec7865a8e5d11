package builtin

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkgbind/internal/value"
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.Register("Add", []value.Kind{value.IntKind, value.IntKind}, func(_ context.Context, a Args) value.Value {
		return value.Int(a.Int(0) + a.Int(1))
	})
	r.Register("Kind", []value.Kind{value.SymbolKind}, func(_ context.Context, a Args) value.Value {
		return value.String(a.Symbol(0))
	})
	r.RegisterOptional("Opt", []value.Kind{value.StringKind, value.BoolKind}, 1, func(_ context.Context, a Args) value.Value {
		return value.Bool(a.Optional(1).IsNil())
	})
	return r
}

func TestCall(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	res, err := r.Call(ctx, "Add", []value.Value{value.Int(2), value.Int(3)})
	require.NoError(t, err)
	assert.True(t, value.Equal(res, value.Int(5)))

	res, err = r.Call(ctx, "Kind", []value.Value{value.Symbol("patch")})
	require.NoError(t, err)
	assert.True(t, value.Equal(res, value.String("patch")))

	res, err = r.Call(ctx, "Kind", []value.Value{value.String("package")})
	require.NoError(t, err, "strings are accepted for symbols")
	assert.True(t, value.Equal(res, value.String("package")))

	res, err = r.Call(ctx, "Opt", []value.Value{value.String("x")})
	require.NoError(t, err)
	assert.True(t, value.Equal(res, value.Bool(true)))
}

func TestCallErrors(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	testCases := []struct {
		desc string
		name string
		args []value.Value
		err  error
	}{
		{"unknown", "Nope", nil, ErrUnknownBuiltin},
		{"too few", "Add", []value.Value{value.Int(1)}, ErrArgumentCount},
		{"too many", "Add", []value.Value{value.Int(1), value.Int(2), value.Int(3)}, ErrArgumentCount},
		{"wrong type", "Add", []value.Value{value.Int(1), value.String("2")}, ErrArgumentType},
		{"map for symbol", "Kind", []value.Value{value.Map(nil)}, ErrArgumentType},
		{"nil for int", "Add", []value.Value{value.Nil(), value.Int(4)}, ErrArgumentType},
		{"nil for symbol", "Kind", []value.Value{value.Nil()}, ErrArgumentType},
		{"nil for required string", "Opt", []value.Value{value.Nil()}, ErrArgumentType},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := r.Call(ctx, tc.name, tc.args)
			require.Error(t, err)
			assert.Equal(t, tc.err, errors.Cause(err))
		})
	}
}

func TestNilArguments(t *testing.T) {
	r := newTestRegistry()
	r.Register("Len", []value.Kind{value.ListKind, value.MapKind}, func(_ context.Context, a Args) value.Value {
		return value.Int(int64(len(a.List(0)) + len(a.Map(1))))
	})
	ctx := context.Background()

	res, err := r.Call(ctx, "Len", []value.Value{value.Nil(), value.Nil()})
	require.NoError(t, err, "nil stands for an empty list or map")
	assert.True(t, value.Equal(res, value.Int(0)))

	res, err = r.Call(ctx, "Opt", []value.Value{value.String("x"), value.Nil()})
	require.NoError(t, err, "nil may be passed for an optional argument")
	assert.True(t, value.Equal(res, value.Bool(true)))
}

func TestOptionalPaddingKeepsCallerArgs(t *testing.T) {
	r := newTestRegistry()
	backing := []value.Value{value.String("x"), value.Int(42)}
	args := backing[:1]
	_, err := r.Call(context.Background(), "Opt", args)
	require.NoError(t, err)
	assert.True(t, value.Equal(backing[1], value.Int(42)), "padding must not write into the caller's backing array")
}

func TestNames(t *testing.T) {
	r := newTestRegistry()
	assert.Equal(t, []string{"Add", "Kind", "Opt"}, r.Names())
	assert.True(t, r.Has("Opt"))

	params, ok := r.Signature("Add")
	require.True(t, ok)
	assert.Len(t, params, 2)
}

func TestUnlockedFromInsideCall(t *testing.T) {
	r := NewRegistry()
	r.RegisterUnlocked("Skip", nil, func(_ context.Context, _ Args) value.Value {
		return value.Bool(true)
	})
	r.Register("Outer", nil, func(ctx context.Context, _ Args) value.Value {
		res, err := r.Call(ctx, "Skip", nil)
		if err != nil {
			return value.Nil()
		}
		return res
	})

	res, err := r.Call(context.Background(), "Outer", nil)
	require.NoError(t, err)
	assert.True(t, value.Equal(res, value.Bool(true)))
}
