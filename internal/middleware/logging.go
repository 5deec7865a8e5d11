package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"pkgbind/internal/log"
)

const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware tags each request with an id and logs it when done.
func LoggingMiddleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()

		id := string(ctx.Request.Header.Peek(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		ctx.SetUserValue("request_id", id)
		ctx.Response.Header.Set(RequestIDHeader, id)

		next(ctx)

		log.Logger.Infow("request",
			"id", id,
			"method", string(ctx.Method()),
			"path", string(ctx.Path()),
			"status", ctx.Response.StatusCode(),
			"duration", time.Since(start),
		)
	}
}
