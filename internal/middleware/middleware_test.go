package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func newCtx(method, origin string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI("/api/download")
	if origin != "" {
		ctx.Request.Header.Set("Origin", origin)
	}
	return ctx
}

func okHandler(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusOK)
}

func TestCORS_ShouldExposeDownloadHeaders(t *testing.T) {
	ctx := newCtx(fasthttp.MethodPost, "https://app.example")

	NewCORSMiddleware([]string{"https://app.example"}).Handle(okHandler)(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "https://app.example", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))
	exposed := string(ctx.Response.Header.Peek("Access-Control-Expose-Headers"))
	assert.Contains(t, exposed, "Content-Disposition")
	assert.Contains(t, exposed, "X-Work-Item-Id")
}

func TestCORS_ShouldAnswerPreflightWithoutCallingHandler(t *testing.T) {
	called := false
	ctx := newCtx(fasthttp.MethodOptions, "https://app.example")

	NewCORSMiddleware(nil).Handle(func(ctx *fasthttp.RequestCtx) { called = true })(ctx)

	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.Equal(t, "*", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))
}

func TestCORS_ShouldNotEchoUnknownOrigins(t *testing.T) {
	ctx := newCtx(fasthttp.MethodPost, "https://evil.example")

	NewCORSMiddleware([]string{"https://app.example"}).Handle(okHandler)(ctx)

	assert.Empty(t, ctx.Response.Header.Peek("Access-Control-Allow-Origin"))
}

func TestCORS_ShouldEchoLocalhostInDevMode(t *testing.T) {
	ctx := newCtx(fasthttp.MethodPost, "http://localhost:5173")

	NewCORSMiddleware([]string{"*"}).Handle(okHandler)(ctx)

	assert.Equal(t, "http://localhost:5173", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))
}

func TestAccessLog_ShouldPassThrough(t *testing.T) {
	ctx := newCtx(fasthttp.MethodGet, "")

	AccessLog(func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusTeapot) })(ctx)

	assert.Equal(t, fasthttp.StatusTeapot, ctx.Response.StatusCode())
}
