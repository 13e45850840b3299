package websocket

import (
	"time"

	"github.com/clipgrab/clipgrab_server/internal/media"
	"github.com/clipgrab/clipgrab_server/internal/workspace"
)

type MessageType string

const (
	MessageTypeLifecycle    MessageType = "lifecycle"
	MessageTypeConnected    MessageType = "connected"
	MessageTypeSubscribe    MessageType = "subscribe"
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeUnsubscribe  MessageType = "unsubscribe"
	MessageTypeUnsubscribed MessageType = "unsubscribed"
	MessageTypePing         MessageType = "ping"
	MessageTypePong         MessageType = "pong"
	MessageTypeError        MessageType = "error"
)

// AllWorkItems subscribes a client to every work item.
const AllWorkItems = "*"

type IncomingMessage struct {
	Type       MessageType `json:"type"`
	WorkItemID string      `json:"workItemId,omitempty"`
}

type OutgoingMessage struct {
	Type       MessageType `json:"type"`
	ClientID   string      `json:"clientId,omitempty"`
	WorkItemID string      `json:"workItemId,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type LifecycleMessage struct {
	Type       MessageType     `json:"type"`
	WorkItemID string          `json:"workItemId"`
	State      workspace.State `json:"state"`
	Kind       media.Kind      `json:"kind,omitempty"`
	At         time.Time       `json:"at"`
}
