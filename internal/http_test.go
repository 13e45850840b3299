package internal

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/clipgrab/clipgrab_server/internal/download"
	"github.com/clipgrab/clipgrab_server/internal/extractor"
	"github.com/clipgrab/clipgrab_server/internal/health"
	"github.com/clipgrab/clipgrab_server/internal/media"
	"github.com/clipgrab/clipgrab_server/internal/status"
	"github.com/clipgrab/clipgrab_server/internal/websocket"
	"github.com/clipgrab/clipgrab_server/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type stagingExtractor struct{}

func (stagingExtractor) Extract(ctx context.Context, req *media.DownloadRequest, outputTemplate string) (*extractor.Result, error) {
	path := strings.Replace(outputTemplate, "%(ext)s", "webm", 1)
	if err := os.WriteFile(path, []byte("webm bytes"), 0644); err != nil {
		return nil, err
	}
	return &extractor.Result{Title: "Clip", Extension: "webm"}, nil
}

type stubProbe struct{}

func (stubProbe) VerifyInstalled(ctx context.Context) (string, error) { return "2024.08.06", nil }

func newTestHandler(t *testing.T) fasthttp.RequestHandler {
	t.Helper()
	manager, err := workspace.New(workspace.Config{Dir: t.TempDir(), ResolveAttempts: 1, ResolveInterval: time.Millisecond})
	require.NoError(t, err)
	hub := websocket.NewHub()
	service := download.NewService(manager, stagingExtractor{}, hub, time.Hour)
	config := &Config{Server: ServerConfig{AllowedOrigins: []string{"*"}}}

	return NewRequestHandler(
		config,
		download.NewEndpoints(service),
		status.NewEndpoints("test", manager, hub, time.Hour),
		health.NewEndpoints("test", stubProbe{}),
		websocket.NewHandler(hub, config.Server.AllowedOrigins),
	)
}

func serve(handler fasthttp.RequestHandler, method, path, contentType, body string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if contentType != "" {
		ctx.Request.Header.SetContentType(contentType)
	}
	ctx.Request.SetBodyString(body)
	handler(ctx)
	return ctx
}

func TestRequestHandler_ShouldRouteDownloads(t *testing.T) {
	handler := newTestHandler(t)

	ctx := serve(handler, fasthttp.MethodPost, "/api/download", "application/json", `{"url":"https://example.com/v"}`)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "webm bytes", string(ctx.Response.Body()))
	assert.Equal(t, "video/webm", string(ctx.Response.Header.ContentType()))
	assert.Equal(t, `attachment; filename="Clip.webm"`, string(ctx.Response.Header.Peek("Content-Disposition")))
	assert.Contains(t, string(ctx.Response.Header.Peek("Access-Control-Expose-Headers")), "Content-Disposition")
}

func TestRequestHandler_ShouldRouteSegmentDownloads(t *testing.T) {
	handler := newTestHandler(t)

	ctx := serve(handler, fasthttp.MethodPost, "/api/download-segment", "application/x-www-form-urlencoded",
		"videoId=abc&start_time=00:00:01&end_time=00:00:05")

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
}

func TestRequestHandler_ShouldRejectWrongMethodsAndUnknownPaths(t *testing.T) {
	handler := newTestHandler(t)

	assert.Equal(t, fasthttp.StatusMethodNotAllowed, serve(handler, fasthttp.MethodGet, "/api/download", "", "").Response.StatusCode())
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, serve(handler, fasthttp.MethodGet, "/api/download-segment", "", "").Response.StatusCode())
	assert.Equal(t, fasthttp.StatusNotFound, serve(handler, fasthttp.MethodGet, "/nope", "", "").Response.StatusCode())
}

func TestRequestHandler_ShouldAnswerPreflight(t *testing.T) {
	handler := newTestHandler(t)

	ctx := serve(handler, fasthttp.MethodOptions, "/api/download", "", "")

	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
}

func TestRequestHandler_ShouldServeHealthAndStatus(t *testing.T) {
	handler := newTestHandler(t)

	assert.Equal(t, fasthttp.StatusOK, serve(handler, fasthttp.MethodGet, "/health", "", "").Response.StatusCode())
	statusCtx := serve(handler, fasthttp.MethodGet, "/status", "", "")
	assert.Equal(t, fasthttp.StatusOK, statusCtx.Response.StatusCode())
	assert.Contains(t, string(statusCtx.Response.Body()), `"retention":"1h0m0s"`)
}
