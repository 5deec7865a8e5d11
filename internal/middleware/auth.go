package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/valyala/fasthttp"

	"pkgbind/internal/config"
)

// AuthMiddleware accepts either a bearer token or an X-API-Key header.
// Probe endpoints stay open.
func AuthMiddleware(cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if !cfg.Auth.Enabled || isProbe(string(ctx.Path())) {
				next(ctx)
				return
			}

			if apiKey := string(ctx.Request.Header.Peek("X-API-Key")); apiKey != "" {
				if cfg.Auth.APIKey == "" || !equal(apiKey, cfg.Auth.APIKey) {
					ctx.Error("Invalid API key", fasthttp.StatusUnauthorized)
					return
				}
				next(ctx)
				return
			}

			authHeader := string(ctx.Request.Header.Peek("Authorization"))
			if authHeader == "" {
				ctx.Response.Header.Set("WWW-Authenticate", "Bearer")
				ctx.Error("Authorization required", fasthttp.StatusUnauthorized)
				return
			}
			if !strings.HasPrefix(authHeader, "Bearer ") {
				ctx.Error("Invalid authorization format", fasthttp.StatusUnauthorized)
				return
			}
			if cfg.Auth.Token == "" || !equal(strings.TrimPrefix(authHeader, "Bearer "), cfg.Auth.Token) {
				ctx.Error("Invalid token", fasthttp.StatusUnauthorized)
				return
			}

			next(ctx)
		}
	}
}

func isProbe(path string) bool {
	return path == "/health" || path == "/ready"
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
