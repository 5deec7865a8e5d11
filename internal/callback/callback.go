// Package callback keeps the host-side handlers registered for engine
// events and dispatches events to them.
package callback

import (
	"context"
	"sync"

	"pkgbind/internal/log"
	"pkgbind/internal/value"
)

// ID names an event the host can subscribe to.
type ID string

const (
	InitDownload         ID = "InitDownload"
	DestDownload         ID = "DestDownload"
	StartDownload        ID = "StartDownload"
	ProgressDownload     ID = "ProgressDownload"
	DoneDownload         ID = "DoneDownload"
	SourceReportStart    ID = "SourceReportStart"
	SourceReportProgress ID = "SourceReportProgress"
	SourceReportError    ID = "SourceReportError"
	SourceReportEnd      ID = "SourceReportEnd"
	SourceReportInit     ID = "SourceReportInit"
	SourceReportDestroy  ID = "SourceReportDestroy"
	SourceCreateStart    ID = "SourceCreateStart"
	SourceCreateEnd      ID = "SourceCreateEnd"
	SourceProbeStart     ID = "SourceProbeStart"
	SourceProbeEnd       ID = "SourceProbeEnd"
	StartSourceRefresh   ID = "StartSourceRefresh"
	DoneSourceRefresh    ID = "DoneSourceRefresh"
	ProcessStart         ID = "ProcessStart"
	ProcessNextStage     ID = "ProcessNextStage"
	ProcessProgress      ID = "ProcessProgress"
	ProcessDone          ID = "ProcessDone"
	TrustedKeyAdded      ID = "TrustedKeyAdded"
	TrustedKeyRemoved    ID = "TrustedKeyRemoved"
	ImportGpgKey         ID = "ImportGpgKey"
	AcceptUnknownGpgKey  ID = "AcceptUnknownGpgKey"
	MediaChange          ID = "MediaChange"
	Message              ID = "Message"
)

// All lists every event in registration order.
var All = []ID{
	InitDownload, DestDownload, StartDownload, ProgressDownload, DoneDownload,
	SourceReportStart, SourceReportProgress, SourceReportError, SourceReportEnd,
	SourceReportInit, SourceReportDestroy,
	SourceCreateStart, SourceCreateEnd, SourceProbeStart, SourceProbeEnd,
	StartSourceRefresh, DoneSourceRefresh,
	ProcessStart, ProcessNextStage, ProcessProgress, ProcessDone,
	TrustedKeyAdded, TrustedKeyRemoved, ImportGpgKey, AcceptUnknownGpgKey,
	MediaChange, Message,
}

// Invoker evaluates a host handler with the given arguments.
type Invoker interface {
	Invoke(ctx context.Context, handler string, args []value.Value) (value.Value, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, handler string, args []value.Value) (value.Value, error)

func (f InvokerFunc) Invoke(ctx context.Context, handler string, args []value.Value) (value.Value, error) {
	return f(ctx, handler, args)
}

// Registry maps events to handler names.
type Registry struct {
	mu       sync.RWMutex
	handlers map[ID]string
	invoker  Invoker
}

func NewRegistry(invoker Invoker) *Registry {
	return &Registry{
		handlers: make(map[ID]string),
		invoker:  invoker,
	}
}

// Set registers handler for id; an empty handler unregisters.
func (r *Registry) Set(id ID, handler string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handler == "" {
		delete(r.handlers, id)
		return
	}
	r.handlers[id] = handler
}

func (r *Registry) Handler(id ID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[id]
}

// SetInvoker swaps the evaluation backend.
func (r *Registry) SetInvoker(invoker Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoker = invoker
}

// Call evaluates the handler registered for id. The second result is false
// when nothing is registered or evaluation failed; callers then use their
// default answer.
func (r *Registry) Call(ctx context.Context, id ID, args ...value.Value) (value.Value, bool) {
	r.mu.RLock()
	handler, ok := r.handlers[id]
	invoker := r.invoker
	r.mu.RUnlock()

	if !ok || invoker == nil {
		return value.Nil(), false
	}

	log.Logger.Debugf("Evaluating %s callback %s", id, handler)
	result, err := invoker.Invoke(ctx, handler, args)
	if err != nil {
		log.Logger.Errorf("Callback %s (%s) failed: %v", id, handler, err)
		return value.Nil(), false
	}
	return result, true
}

// CallBool evaluates a yes/no callback, falling back to def.
func (r *Registry) CallBool(ctx context.Context, def bool, id ID, args ...value.Value) bool {
	res, ok := r.Call(ctx, id, args...)
	if !ok {
		return def
	}
	if b, isBool := res.AsBool(); isBool {
		return b
	}
	return def
}

// CallString evaluates a callback returning a string, falling back to def.
func (r *Registry) CallString(ctx context.Context, def string, id ID, args ...value.Value) string {
	res, ok := r.Call(ctx, id, args...)
	if !ok {
		return def
	}
	if s, isString := res.AsString(); isString {
		return s
	}
	return def
}
