package middleware

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

// AccessLog logs one line per request once the handler returns. Streamed
// bodies are still being written at that point, so size is the declared
// length.
func AccessLog(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)

		status := ctx.Response.StatusCode()
		event := log.Info()
		if status >= fasthttp.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("method", string(ctx.Method())).
			Str("path", string(ctx.Path())).
			Int("status", status).
			Int("contentLength", ctx.Response.Header.ContentLength()).
			Str("remoteAddr", ctx.RemoteAddr().String()).
			Dur("elapsed", time.Since(start)).
			Msg("Request handled")
	}
}
