package middleware

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"pkgbind/internal/metrics"
)

func MetricsMiddleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		metrics.IncrementRequests()
		metrics.IncrementActiveRequests()

		defer func() {
			metrics.DecrementActiveRequests()
			metrics.RecordResponseTime(time.Since(start))
		}()

		next(ctx)

		code := ctx.Response.StatusCode()
		metrics.HTTPRequests.WithLabelValues(string(ctx.Method()), strconv.Itoa(code)).Inc()
		if code >= 400 {
			metrics.IncrementErrors()
		}
	}
}
