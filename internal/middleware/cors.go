package middleware

import (
	"regexp"
	"strings"

	"github.com/valyala/fasthttp"
)

// exposedHeaders are readable by browser clients so they can name the saved
// file and follow the work item over /ws.
var exposedHeaders = []string{"Content-Disposition", "Content-Length", "Content-Type", "X-Work-Item-Id"}

type CORSMiddleware struct {
	allowedOrigins []string
	localhostRegex *regexp.Regexp
}

func NewCORSMiddleware(allowedOrigins []string) *CORSMiddleware {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &CORSMiddleware{
		allowedOrigins: allowedOrigins,
		localhostRegex: regexp.MustCompile(`^https?://localhost:\d+$`),
	}
}

func (cm *CORSMiddleware) Handle(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		origin := string(ctx.Request.Header.Peek("Origin"))

		if origin != "" && cm.isOriginAllowed(origin) {
			ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
			ctx.Response.Header.Set("Vary", "Origin")
		} else if cm.wildcard() {
			ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
		}

		ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		ctx.Response.Header.Set("Access-Control-Allow-Headers", "Content-Type")
		ctx.Response.Header.Set("Access-Control-Expose-Headers", strings.Join(exposedHeaders, ", "))
		ctx.Response.Header.Set("Access-Control-Max-Age", "86400")

		if ctx.IsOptions() {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		next(ctx)
	}
}

func (cm *CORSMiddleware) wildcard() bool {
	return len(cm.allowedOrigins) == 1 && cm.allowedOrigins[0] == "*"
}

func (cm *CORSMiddleware) isOriginAllowed(origin string) bool {
	for _, allowed := range cm.allowedOrigins {
		if allowed == origin {
			return true
		}
		if allowed == "http://localhost:*" || allowed == "https://localhost:*" {
			if cm.localhostRegex.MatchString(origin) {
				return true
			}
		}
	}
	// dev mode: any localhost origin is echoed back
	if cm.wildcard() {
		return cm.localhostRegex.MatchString(origin)
	}
	return false
}
