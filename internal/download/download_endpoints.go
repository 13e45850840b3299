package download

import (
	"bytes"

	"github.com/clipgrab/clipgrab_server/internal/media"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

const WorkItemHeader = "X-Work-Item-Id"

type Endpoints struct {
	service *Service
}

func NewEndpoints(service *Service) *Endpoints {
	return &Endpoints{
		service: service,
	}
}

// downloadBody carries the fields of both forms; each endpoint reads its own.
type downloadBody struct {
	URL       string `json:"url"`
	VideoID   string `json:"videoId"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Quality   string `json:"quality"`
}

type ErrorResponse struct {
	Error string     `json:"error"`
	Code  media.Kind `json:"code"`
}

// DownloadVideo handles whole-video requests: JSON or form {url, quality}.
func (e *Endpoints) DownloadVideo(ctx *fasthttp.RequestCtx) {
	body, ok := e.parseBody(ctx)
	if !ok {
		return
	}

	req := media.NewWholeRequest(body.URL, media.Quality(body.Quality))
	e.serve(ctx, req)
}

// DownloadSegment handles clip requests: form or JSON
// {videoId, start_time, end_time, quality}.
func (e *Endpoints) DownloadSegment(ctx *fasthttp.RequestCtx) {
	body, ok := e.parseBody(ctx)
	if !ok {
		return
	}

	start, ok := parseOptionalTimestamp(ctx, "start_time", body.StartTime)
	if !ok {
		return
	}
	end, ok := parseOptionalTimestamp(ctx, "end_time", body.EndTime)
	if !ok {
		return
	}

	req := media.NewSegmentRequest(body.VideoID, start, end, media.Quality(body.Quality))
	e.serve(ctx, req)
}

func (e *Endpoints) serve(ctx *fasthttp.RequestCtx, req *media.DownloadRequest) {
	delivery, err := e.service.Download(ctx, req)
	if err != nil {
		writeError(ctx, err)
		return
	}

	artifact := delivery.Artifact
	ctx.Response.Header.Set(WorkItemHeader, delivery.Item.ID)
	ctx.Response.Header.Set("Content-Disposition", ContentDisposition(artifact.Filename()))
	ctx.SetContentType(contentTypeFor(artifact.Extension))
	ctx.SetStatusCode(fasthttp.StatusOK)
	// fasthttp closes the body once it is written or the connection drops
	ctx.SetBodyStream(delivery.Body, int(artifact.SizeBytes))
}

func (e *Endpoints) parseBody(ctx *fasthttp.RequestCtx) (*downloadBody, bool) {
	body := &downloadBody{}

	if bytes.HasPrefix(ctx.Request.Header.ContentType(), []byte("application/json")) {
		if err := json.Unmarshal(ctx.PostBody(), body); err != nil {
			writeError(ctx, media.Errorf(media.KindInvalidInput, "invalid JSON body"))
			return nil, false
		}
		return body, true
	}

	body.URL = string(ctx.FormValue("url"))
	body.VideoID = string(ctx.FormValue("videoId"))
	body.StartTime = string(ctx.FormValue("start_time"))
	body.EndTime = string(ctx.FormValue("end_time"))
	body.Quality = string(ctx.FormValue("quality"))
	return body, true
}

func parseOptionalTimestamp(ctx *fasthttp.RequestCtx, field, raw string) (*media.Timestamp, bool) {
	if raw == "" {
		return nil, true
	}
	ts, err := media.ParseTimestamp(raw)
	if err != nil {
		writeError(ctx, media.Errorf(media.KindInvalidInput, "%s: %v", field, err))
		return nil, false
	}
	return &ts, true
}

// StatusCode maps an error kind onto the HTTP status returned to callers.
func StatusCode(kind media.Kind) int {
	switch kind {
	case media.KindInvalidInput:
		return fasthttp.StatusBadRequest
	case media.KindToolUnavailable:
		return fasthttp.StatusServiceUnavailable
	case media.KindUnsupportedSource:
		return fasthttp.StatusUnprocessableEntity
	case media.KindSourceUnavailable:
		return fasthttp.StatusNotFound
	case media.KindTimeout:
		return fasthttp.StatusGatewayTimeout
	case media.KindStorageUnavailable:
		return fasthttp.StatusInsufficientStorage
	default:
		return fasthttp.StatusInternalServerError
	}
}

func writeError(ctx *fasthttp.RequestCtx, err error) {
	kind := media.KindOf(err)
	response := ErrorResponse{
		Error: media.PublicMessage(err),
		Code:  kind,
	}

	responseJSON, marshalErr := json.Marshal(response)
	if marshalErr != nil {
		log.Error().Err(marshalErr).Msg("Failed to encode error response")
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(StatusCode(kind))
	ctx.SetBody(responseJSON)
}
