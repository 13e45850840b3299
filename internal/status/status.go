package status

import (
	"time"

	"github.com/clipgrab/clipgrab_server/internal/workspace"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

type StagingStats interface {
	Stats() (workspace.Stats, error)
}

type FeedStats interface {
	GetStats() (totalClients, totalSubscriptions int)
}

type StatusEndpoints struct {
	version   string
	staging   StagingStats
	feed      FeedStats
	retention time.Duration
}

func NewEndpoints(version string, staging StagingStats, feed FeedStats, retention time.Duration) *StatusEndpoints {
	return &StatusEndpoints{
		version:   version,
		staging:   staging,
		feed:      feed,
		retention: retention,
	}
}

type StatusResponse struct {
	Health            string `json:"health"`
	Version           string `json:"version"`
	StagingFiles      int    `json:"stagingFiles"`
	StagingBytes      int64  `json:"stagingBytes"`
	Retention         string `json:"retention"`
	FeedClients       int    `json:"feedClients"`
	FeedSubscriptions int    `json:"feedSubscriptions"`
}

func (se *StatusEndpoints) Status(ctx *fasthttp.RequestCtx) {
	stats, err := se.staging.Stats()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read staging stats")
		ctx.Error("Staging storage unavailable", fasthttp.StatusInsufficientStorage)
		return
	}

	response := StatusResponse{
		Health:       "OK",
		Version:      se.version,
		StagingFiles: stats.Files,
		StagingBytes: stats.Bytes,
		Retention:    se.retention.String(),
	}
	if se.feed != nil {
		response.FeedClients, response.FeedSubscriptions = se.feed.GetStats()
	}

	responseJSON, err := json.Marshal(response)
	if err != nil {
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(responseJSON)
}
