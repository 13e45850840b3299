package websocket

import (
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeTimeout   = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4 * 1024
	sendBufferSize = 256
)

type Client struct {
	id            string
	hub           *Hub
	conn          *websocket.Conn
	send          chan interface{}
	subscriptions map[string]bool // workItemId -> subscribed
	closed        bool            // guarded by hub.mu
	mu            sync.RWMutex
}

func NewClient(hub *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		id:            id,
		hub:           hub,
		conn:          conn,
		send:          make(chan interface{}, sendBufferSize),
		subscriptions: make(map[string]bool),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Subscribe(workItemID string) {
	c.mu.Lock()
	c.subscriptions[workItemID] = true
	c.mu.Unlock()

	c.hub.Subscribe(c, workItemID)

	log.Debug().
		Str("clientId", c.id).
		Str("workItemId", workItemID).
		Msg("[WS] Client subscribed to work item")
}

func (c *Client) Unsubscribe(workItemID string) {
	c.mu.Lock()
	delete(c.subscriptions, workItemID)
	c.mu.Unlock()

	c.hub.Unsubscribe(c, workItemID)

	log.Debug().
		Str("clientId", c.id).
		Str("workItemId", workItemID).
		Msg("[WS] Client unsubscribed from work item")
}

func (c *Client) IsSubscribed(workItemID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions[workItemID]
}

func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subs := make([]string, 0, len(c.subscriptions))
	for id := range c.subscriptions {
		subs = append(subs, id)
	}
	return subs
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg IncomingMessage
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Debug().Str("clientId", c.id).Err(err).Msg("[WS] Read error")
			} else {
				log.Debug().Str("clientId", c.id).Msg("[WS] Client disconnected")
			}
			return
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *IncomingMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		if msg.WorkItemID == "" {
			c.hub.deliver(c, &OutgoingMessage{Type: MessageTypeError, Error: "workItemId is required"})
			return
		}
		c.Subscribe(msg.WorkItemID)
		c.hub.deliver(c, &OutgoingMessage{Type: MessageTypeSubscribed, WorkItemID: msg.WorkItemID})

	case MessageTypeUnsubscribe:
		if msg.WorkItemID == "" {
			return
		}
		c.Unsubscribe(msg.WorkItemID)
		c.hub.deliver(c, &OutgoingMessage{Type: MessageTypeUnsubscribed, WorkItemID: msg.WorkItemID})

	case MessageTypePing:
		c.hub.deliver(c, &OutgoingMessage{Type: MessageTypePong})

	default:
		log.Debug().
			Str("type", string(msg.Type)).
			Msg("[WS] Unknown message type")
		c.hub.deliver(c, &OutgoingMessage{Type: MessageTypeError, Error: "unknown message type"})
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				log.Debug().Str("clientId", c.id).Err(err).Msg("[WS] Write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Str("clientId", c.id).Err(err).Msg("[WS] Ping error")
				return
			}
		}
	}
}
