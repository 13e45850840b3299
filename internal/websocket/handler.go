package websocket

import (
	"regexp"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

var localhostOrigin = regexp.MustCompile(`^https?://localhost(:\d+)?$`)

type Handler struct {
	hub      *Hub
	upgrader websocket.FastHTTPUpgrader
}

func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	h := &Handler{hub: hub}
	h.upgrader = websocket.FastHTTPUpgrader{
		CheckOrigin: func(ctx *fasthttp.RequestCtx) bool {
			return originAllowed(allowedOrigins, string(ctx.Request.Header.Peek("Origin")))
		},
	}
	return h
}

// originAllowed accepts requests without an Origin header (non-browser
// clients), any origin under "*", exact matches and localhost in dev mode.
func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
		if (a == "http://localhost:*" || a == "https://localhost:*") && localhostOrigin.MatchString(origin) {
			return true
		}
	}
	return false
}

// HandleFastHTTP upgrades the request and streams lifecycle messages for the
// work items the client subscribes to.
func (h *Handler) HandleFastHTTP(ctx *fasthttp.RequestCtx) {
	err := h.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		client := NewClient(h.hub, conn, uuid.NewString())
		client.send <- &OutgoingMessage{
			Type:     MessageTypeConnected,
			ClientID: client.id,
		}
		h.hub.Register(client)

		log.Info().
			Str("clientId", client.id).
			Str("remoteAddr", conn.RemoteAddr().String()).
			Msg("[WS] Client connected")

		go client.WritePump()
		client.ReadPump() // Blocks until disconnect
	})

	if err != nil {
		log.Error().Err(err).Msg("[WS] Failed to upgrade connection")
		return
	}
}
