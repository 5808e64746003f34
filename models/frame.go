package models

import "encoding/json"

// Outbound frame types
const (
	OutboundMessage = "message"
	OutboundPing    = "ping"
)

// Inbound frame types
const (
	FrameHistory        = "history"
	FrameMessage        = "message"
	FrameOnlineCount    = "online_count"
	FrameUserJoin       = "user_join"
	FrameUserLeave      = "user_leave"
	FrameMessageDeleted = "message_deleted"
	FrameError          = "error"
	FramePong           = "pong"
)

// OutboundEnvelope is the format for frames sent by the client.
// A ping carries only its type.
type OutboundEnvelope struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	ReplyTo string `json:"replyTo,omitempty"`
	VideoID string `json:"videoId,omitempty"`
}

// Ping returns the heartbeat envelope
func Ping() OutboundEnvelope {
	return OutboundEnvelope{Type: OutboundPing}
}

// InboundFrame is the format for frames pushed by the server.
type InboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// HistoryPayload is the data of a history frame
type HistoryPayload struct {
	Messages []Message `json:"messages"`
}

// OnlineCountPayload is the data of an online_count frame
type OnlineCountPayload struct {
	Count int `json:"count"`
}

// MessageDeletedPayload is the data of a message_deleted frame
type MessageDeletedPayload struct {
	ID string `json:"id"`
}

// ErrorPayload is the data of an error frame
type ErrorPayload struct {
	Message string `json:"message"`
}
