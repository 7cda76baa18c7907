// Package wire defines the JSON messages exchanged with connected portal
// clients over the websocket.
package wire

import (
	"encoding/json"
	"time"
)

const (
	TypePing               = "ping"
	TypePong               = "pong"
	TypePresenceSnapshot   = "presence_snapshot"
	TypePresenceUpdate     = "presence_update"
	TypeNewMessage         = "new_message"
	TypeNewApprovalRequest = "new_approval_request"
	TypeApprovalResponse   = "approval_response"
	TypeNotification       = "notification"
)

// ClientMessage is the envelope for messages received from a client.
type ClientMessage struct {
	Type string `json:"type"`
}

type PresenceEntry struct {
	UserID   string    `json:"user_id"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

type presenceSnapshot struct {
	Type   string          `json:"type"`
	Online []PresenceEntry `json:"online"`
}

type presenceUpdate struct {
	Type string `json:"type"`
	PresenceEntry
}

type pong struct {
	Type string `json:"type"`
}

type newMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Message        any    `json:"message"`
}

type requestEvent struct {
	Type    string `json:"type"`
	Request any    `json:"request"`
	State   string `json:"state,omitempty"`
}

type notification struct {
	Type         string `json:"type"`
	Notification any    `json:"notification"`
}

func PresenceSnapshot(online []PresenceEntry) ([]byte, error) {
	if online == nil {
		online = []PresenceEntry{}
	}
	return json.Marshal(presenceSnapshot{Type: TypePresenceSnapshot, Online: online})
}

func PresenceUpdate(entry PresenceEntry) ([]byte, error) {
	return json.Marshal(presenceUpdate{Type: TypePresenceUpdate, PresenceEntry: entry})
}

func Pong() ([]byte, error) {
	return json.Marshal(pong{Type: TypePong})
}

func NewMessage(conversationID string, message any) ([]byte, error) {
	return json.Marshal(newMessage{Type: TypeNewMessage, ConversationID: conversationID, Message: message})
}

func NewApprovalRequest(request any) ([]byte, error) {
	return json.Marshal(requestEvent{Type: TypeNewApprovalRequest, Request: request})
}

func ApprovalResponse(request any, state string) ([]byte, error) {
	return json.Marshal(requestEvent{Type: TypeApprovalResponse, Request: request, State: state})
}

func Notification(n any) ([]byte, error) {
	return json.Marshal(notification{Type: TypeNotification, Notification: n})
}
