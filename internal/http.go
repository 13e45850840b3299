package internal

import (
	"github.com/clipgrab/clipgrab_server/internal/download"
	"github.com/clipgrab/clipgrab_server/internal/health"
	"github.com/clipgrab/clipgrab_server/internal/middleware"
	"github.com/clipgrab/clipgrab_server/internal/status"
	"github.com/clipgrab/clipgrab_server/internal/websocket"
	"github.com/valyala/fasthttp"
)

func NewRequestHandler(config *Config, downloadEndpoints *download.Endpoints, statusEndpoints *status.StatusEndpoints, healthEndpoints *health.HealthEndpoints, wsHandler *websocket.Handler) fasthttp.RequestHandler {
	corsMiddleware := middleware.NewCORSMiddleware(config.Server.AllowedOrigins)

	handler := func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())

		switch path {
		case "/api/download":
			if ctx.IsPost() {
				downloadEndpoints.DownloadVideo(ctx)
			} else {
				ctx.Error("Method Not Allowed", fasthttp.StatusMethodNotAllowed)
			}
		case "/api/download-segment":
			if ctx.IsPost() {
				downloadEndpoints.DownloadSegment(ctx)
			} else {
				ctx.Error("Method Not Allowed", fasthttp.StatusMethodNotAllowed)
			}

		case "/health":
			healthEndpoints.Health(ctx)
		case "/status":
			statusEndpoints.Status(ctx)

		case "/ws":
			wsHandler.HandleFastHTTP(ctx)

		default:
			ctx.Error("Not Found", fasthttp.StatusNotFound)
		}
	}

	return middleware.AccessLog(corsMiddleware.Handle(handler))
}
