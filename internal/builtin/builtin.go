// Package builtin maps builtin names to typed functions and checks the
// arguments of every call against the declared signature.
package builtin

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"pkgbind/internal/log"
	"pkgbind/internal/metrics"
	"pkgbind/internal/value"
)

var (
	ErrUnknownBuiltin = errors.New("unknown builtin")
	ErrArgumentCount  = errors.New("wrong number of arguments")
	ErrArgumentType   = errors.New("wrong argument type")
)

// Args are the already checked call arguments.
type Args []value.Value

func (a Args) Int(i int) int64 {
	n, _ := a[i].AsInt()
	return n
}

func (a Args) Bool(i int) bool {
	b, _ := a[i].AsBool()
	return b
}

func (a Args) String(i int) string {
	s, _ := a[i].AsString()
	return s
}

// Symbol accepts both symbols and strings.
func (a Args) Symbol(i int) string {
	if s, ok := a[i].AsSymbol(); ok {
		return s
	}
	s, _ := a[i].AsString()
	return s
}

func (a Args) List(i int) []value.Value {
	l, _ := a[i].AsList()
	return l
}

func (a Args) Map(i int) map[string]value.Value {
	m, _ := a[i].AsMap()
	return m
}

// Optional returns the i-th argument or nil when it was omitted.
func (a Args) Optional(i int) value.Value {
	if i < len(a) {
		return a[i]
	}
	return value.Nil()
}

type Func func(ctx context.Context, a Args) value.Value

type entry struct {
	params   []value.Kind
	optional int
	unlocked bool
	fn       Func
}

// Registry holds the builtins. Calls are serialized so the bound state is
// only ever touched by one builtin at a time.
type Registry struct {
	mu      sync.Mutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds fn under name with the given parameter kinds.
func (r *Registry) Register(name string, params []value.Kind, fn Func) {
	r.RegisterOptional(name, params, 0, fn)
}

// RegisterOptional is Register where the last optional parameters may be
// omitted by the caller.
func (r *Registry) RegisterOptional(name string, params []value.Kind, optional int, fn Func) {
	if _, ok := r.entries[name]; ok {
		log.Logger.Warnf("Builtin %s registered twice", name)
	}
	r.entries[name] = entry{params: params, optional: optional, fn: fn}
}

// RegisterUnlocked adds a builtin that may run while another builtin is in
// progress, e.g. from a callback handler. fn must do its own locking.
func (r *Registry) RegisterUnlocked(name string, params []value.Kind, fn Func) {
	r.RegisterOptional(name, params, 0, fn)
	e := r.entries[name]
	e.unlocked = true
	r.entries[name] = e
}

func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Names returns the builtin names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Signature returns the declared parameter kinds of name.
func (r *Registry) Signature(name string) ([]value.Kind, bool) {
	e, ok := r.entries[name]
	return e.params, ok
}

// Call checks args against the signature of name and runs it.
func (r *Registry) Call(ctx context.Context, name string, args []value.Value) (value.Value, error) {
	e, ok := r.entries[name]
	if !ok {
		return value.Nil(), errors.Wrap(ErrUnknownBuiltin, name)
	}
	if err := check(name, e, args); err != nil {
		metrics.BuiltinFailures.WithLabelValues(name).Inc()
		return value.Nil(), err
	}

	// Omitted optional arguments are passed as nil. The caller's slice is
	// never written to.
	if len(args) < len(e.params) {
		padded := make([]value.Value, len(e.params))
		copy(padded, args)
		args = padded
	}

	if !e.unlocked {
		r.mu.Lock()
		defer r.mu.Unlock()
	}

	start := time.Now()
	result := e.fn(ctx, Args(args))
	metrics.BuiltinCalls.WithLabelValues(name).Inc()
	metrics.BuiltinDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	log.Logger.Debugf("%s(%v) -> %s", name, args, result)
	return result, nil
}

func check(name string, e entry, args []value.Value) error {
	if len(args) > len(e.params) || len(args) < len(e.params)-e.optional {
		return errors.Wrapf(ErrArgumentCount, "%s expects %d, got %d", name, len(e.params), len(args))
	}
	required := len(e.params) - e.optional
	for i, arg := range args {
		if arg.IsNil() && i >= required {
			continue
		}
		if !accepts(e.params[i], arg) {
			return errors.Wrapf(ErrArgumentType, "%s argument %d: expected %s, got %s",
				name, i+1, e.params[i], arg.Kind())
		}
	}
	return nil
}

// accepts reports whether arg can be passed for a parameter of kind want.
// nil stands for an empty list or map but never for a scalar.
func accepts(want value.Kind, arg value.Value) bool {
	switch {
	case want == value.AnyKind, arg.Kind() == want:
		return true
	case arg.IsNil():
		return want == value.ListKind || want == value.MapKind
	case want == value.SymbolKind && arg.Kind() == value.StringKind:
		return true
	case want == value.FloatKind && arg.Kind() == value.IntKind:
		return true
	}
	return false
}
