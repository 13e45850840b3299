package health

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

const probeCacheTTL = time.Minute

// ToolProbe reports the installed extraction tool version.
type ToolProbe interface {
	VerifyInstalled(ctx context.Context) (string, error)
}

type HealthEndpoints struct {
	version string
	probe   ToolProbe

	mu         sync.Mutex
	checkedAt  time.Time
	toolResult string
	toolErr    error
	now        func() time.Time
}

func NewEndpoints(version string, probe ToolProbe) *HealthEndpoints {
	return &HealthEndpoints{
		version: version,
		probe:   probe,
		now:     time.Now,
	}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Extractor string `json:"extractor"`
}

// Health answers 200 while the extraction tool is runnable and 503 otherwise.
func (h *HealthEndpoints) Health(ctx *fasthttp.RequestCtx) {
	response := HealthResponse{
		Status:  "ok",
		Version: h.version,
	}
	statusCode := fasthttp.StatusOK

	toolVersion, err := h.toolVersion(ctx)
	if err != nil {
		response.Status = "degraded"
		response.Extractor = "unavailable"
		statusCode = fasthttp.StatusServiceUnavailable
	} else {
		response.Extractor = toolVersion
	}

	responseJSON, err := json.Marshal(response)
	if err != nil {
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(statusCode)
	ctx.SetBody(responseJSON)
}

func (h *HealthEndpoints) toolVersion(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.checkedAt.IsZero() && h.now().Sub(h.checkedAt) < probeCacheTTL {
		return h.toolResult, h.toolErr
	}

	h.toolResult, h.toolErr = h.probe.VerifyInstalled(ctx)
	h.checkedAt = h.now()
	if h.toolErr != nil {
		log.Warn().Err(h.toolErr).Msg("Extraction tool check failed")
	}
	return h.toolResult, h.toolErr
}
