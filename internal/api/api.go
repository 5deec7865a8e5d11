package api

import (
	"fmt"
	"io"
	"regexp"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"pkgbind/internal/builtin"
	"pkgbind/internal/config"
	"pkgbind/internal/log"
	"pkgbind/internal/metrics"
	"pkgbind/internal/middleware"
	"pkgbind/internal/types"
	"pkgbind/internal/value"
)

const serverName = "pkgbind"

var callPattern = regexp.MustCompile(`^/call/([A-Za-z][A-Za-z0-9_]*)$`)

// Collection reports the number of live repositories. It must not wait
// for a running builtin.
type Collection interface {
	Repositories() int
}

type API struct {
	registry   *builtin.Registry
	config     *config.Config
	collection Collection
}

// NewAPI serves registry. A nil collection keeps /ready unavailable.
func NewAPI(registry *builtin.Registry, config *config.Config, collection Collection) *API {
	return &API{
		registry:   registry,
		config:     config,
		collection: collection,
	}
}

// Call runs builtin name with the JSON array in the request body as its
// arguments.
func (h *API) Call(ctx *fasthttp.RequestCtx, name string) {
	args, err := value.ParseList(ctx.PostBody())
	if err != nil {
		log.Logger.Debugf("Bad arguments for %s: %v", name, err)
		h.sendCallError(ctx, name, fmt.Sprintf("Invalid arguments: %v", err), fasthttp.StatusBadRequest)
		return
	}

	result, err := h.registry.Call(ctx, name, args)
	if err != nil {
		code := fasthttp.StatusBadRequest
		if errors.Cause(err) == builtin.ErrUnknownBuiltin {
			code = fasthttp.StatusNotFound
		}
		log.Logger.Debugf("Call %s rejected: %v", name, err)
		h.sendCallError(ctx, name, err.Error(), code)
		return
	}

	response := &types.CallResponse{
		Status:  "success",
		Builtin: name,
		Result:  result,
	}
	h.sendJSONResponse(ctx, response, fasthttp.StatusOK)
}

func (h *API) Builtins(ctx *fasthttp.RequestCtx) {
	names := h.registry.Names()
	response := &types.BuiltinList{
		Status:   types.Status{Status: "success"},
		Builtins: make([]types.BuiltinInfo, 0, len(names)),
		Count:    len(names),
	}
	for _, name := range names {
		params, _ := h.registry.Signature(name)
		info := types.BuiltinInfo{Name: name, Params: make([]string, len(params))}
		for i, k := range params {
			info.Params[i] = k.String()
		}
		response.Builtins = append(response.Builtins, info)
	}

	h.sendJSONResponse(ctx, response, fasthttp.StatusOK)
}

func (h *API) sendJSONResponse(ctx *fasthttp.RequestCtx, data io.WriterTo, statusCode int) {
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.SetStatusCode(statusCode)

	if _, err := data.WriteTo(ctx); err != nil {
		log.Logger.Debugf("Failed to encode JSON response: %v", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"status":"error","message":"Internal server error"}`)
	}
}

func (h *API) sendCallError(ctx *fasthttp.RequestCtx, name, message string, statusCode int) {
	response := &types.CallResponse{
		Status:  "error",
		Builtin: name,
		Result:  value.Nil(),
		Error:   message,
	}
	h.sendJSONResponse(ctx, response, statusCode)
}

func (h *API) sendJSONError(ctx *fasthttp.RequestCtx, message string, statusCode int) {
	response := &types.Status{
		Status:  "error",
		Message: message,
		Code:    statusCode,
	}
	h.sendJSONResponse(ctx, response, statusCode)
}

func (h *API) Health(ctx *fasthttp.RequestCtx) {
	totals := metrics.GetTotals()
	response := &types.Status{
		Status:  "healthy",
		Server:  serverName,
		Message: fmt.Sprintf("%d requests, %d errors, %d active", totals.Requests, totals.Errors, totals.ActiveRequests),
	}

	h.sendJSONResponse(ctx, response, fasthttp.StatusOK)
}

// Ready answers once the bindings are attached. It stays responsive while
// a long builtin such as SourceLoad holds the registry.
func (h *API) Ready(ctx *fasthttp.RequestCtx) {
	if h.collection == nil {
		h.sendJSONError(ctx, "Service not ready", fasthttp.StatusServiceUnavailable)
		return
	}

	response := &types.ReadyCheck{
		Status: types.Status{Status: "ready"},
		Checks: types.Checks{
			Repositories: h.collection.Repositories(),
			Builtins:     len(h.registry.Names()),
		},
	}
	h.sendJSONResponse(ctx, response, fasthttp.StatusOK)
}

func SetupRouter(h *API) fasthttp.RequestHandler {
	metricsHandler := metrics.Handler()

	router := func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		method := string(ctx.Method())

		log.Logger.Debugf("Request: %s %s", method, path)

		if m := callPattern.FindStringSubmatch(path); m != nil {
			if method != fasthttp.MethodPost {
				h.sendJSONError(ctx, "Method not allowed", fasthttp.StatusMethodNotAllowed)
				return
			}
			h.Call(ctx, m[1])
			return
		}

		if method != fasthttp.MethodGet {
			h.sendJSONError(ctx, "Method not allowed", fasthttp.StatusMethodNotAllowed)
			return
		}
		switch path {
		case "/builtins":
			h.Builtins(ctx)
		case "/health":
			h.Health(ctx)
		case "/ready":
			h.Ready(ctx)
		case "/metrics":
			metricsHandler(ctx)
		default:
			h.sendJSONError(ctx, "Not Found", fasthttp.StatusNotFound)
		}
	}

	return middleware.LoggingMiddleware(
		middleware.MetricsMiddleware(
			middleware.AuthMiddleware(h.config)(router),
		),
	)
}
