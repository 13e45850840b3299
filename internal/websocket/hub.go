package websocket

import (
	"sync"
	"time"

	"github.com/clipgrab/clipgrab_server/internal/media"
	"github.com/clipgrab/clipgrab_server/internal/workspace"
	"github.com/rs/zerolog/log"
)

const broadcastBufferSize = 256

// Hub fans work item transitions out to subscribed websocket clients.
type Hub struct {
	clients    map[*Client]bool
	byItem     map[string][]*Client // workItemId or "*" -> subscribers
	register   chan *Client
	unregister chan *Client
	broadcast  chan *LifecycleMessage
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	now        func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		byItem:     make(map[string][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *LifecycleMessage, broadcastBufferSize),
		done:       make(chan struct{}),
		now:        time.Now,
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastLifecycle(message)

		case <-h.done:
			h.closeAll()
			return
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// OnTransition queues a lifecycle message. It never blocks the download
// path: when the queue is full the message is dropped.
func (h *Hub) OnTransition(workItemID string, state workspace.State, kind media.Kind) {
	msg := &LifecycleMessage{
		Type:       MessageTypeLifecycle,
		WorkItemID: workItemID,
		State:      state,
		Kind:       kind,
		At:         h.now().UTC(),
	}

	select {
	case h.broadcast <- msg:
	default:
		log.Warn().
			Str("workItemId", workItemID).
			Str("state", string(state)).
			Msg("[WS] Broadcast queue full, dropping lifecycle message")
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	log.Info().
		Str("clientId", client.id).
		Int("totalClients", len(h.clients)).
		Msg("[WS] Client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	client.closed = true
	close(client.send)

	for _, id := range client.Subscriptions() {
		h.removeFromItemSubscribers(client, id)
	}

	log.Info().
		Str("clientId", client.id).
		Int("totalClients", len(h.clients)).
		Msg("[WS] Client unregistered")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.closed = true
		close(client.send)
	}
	h.clients = make(map[*Client]bool)
	h.byItem = make(map[string][]*Client)
}

func (h *Hub) removeFromItemSubscribers(client *Client, workItemID string) {
	itemClients := h.byItem[workItemID]
	for i, c := range itemClients {
		if c == client {
			h.byItem[workItemID] = append(itemClients[:i], itemClients[i+1:]...)
			break
		}
	}
	if len(h.byItem[workItemID]) == 0 {
		delete(h.byItem, workItemID)
	}
}

func (h *Hub) Subscribe(client *Client, workItemID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.byItem[workItemID] {
		if c == client {
			return
		}
	}

	h.byItem[workItemID] = append(h.byItem[workItemID], client)

	log.Debug().
		Str("workItemId", workItemID).
		Int("subscribers", len(h.byItem[workItemID])).
		Msg("[WS] Work item subscription added")
}

func (h *Hub) Unsubscribe(client *Client, workItemID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromItemSubscribers(client, workItemID)

	log.Debug().
		Str("workItemId", workItemID).
		Int("subscribers", len(h.byItem[workItemID])).
		Msg("[WS] Work item subscription removed")
}

func (h *Hub) broadcastLifecycle(msg *LifecycleMessage) {
	h.mu.RLock()
	recipients := make([]*Client, 0, len(h.byItem[msg.WorkItemID])+len(h.byItem[AllWorkItems]))
	recipients = append(recipients, h.byItem[msg.WorkItemID]...)
	for _, c := range h.byItem[AllWorkItems] {
		if !containsClient(recipients, c) {
			recipients = append(recipients, c)
		}
	}

	for _, client := range recipients {
		select {
		case client.send <- msg:
		default:
			log.Warn().
				Str("clientId", client.id).
				Str("workItemId", msg.WorkItemID).
				Msg("[WS] Client send buffer full, dropping message")
		}
	}
	h.mu.RUnlock()

	if len(recipients) > 0 {
		log.Debug().
			Str("workItemId", msg.WorkItemID).
			Str("state", string(msg.State)).
			Int("recipients", len(recipients)).
			Msg("[WS] Lifecycle broadcast complete")
	}
}

// deliver queues msg for one client unless it has already been closed.
func (h *Hub) deliver(client *Client, msg interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if client.closed {
		return
	}
	select {
	case client.send <- msg:
	default:
		log.Warn().Str("clientId", client.id).Msg("[WS] Client send buffer full, dropping message")
	}
}

func containsClient(clients []*Client, client *Client) bool {
	for _, c := range clients {
		if c == client {
			return true
		}
	}
	return false
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) GetStats() (totalClients, totalSubscriptions int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	totalClients = len(h.clients)
	for _, clients := range h.byItem {
		totalSubscriptions += len(clients)
	}
	return
}
