package chat

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"communitychat/models"
)

// ErrMalformedFrame is returned for frames that cannot be decoded.
var ErrMalformedFrame = errors.New("malformed frame")

// Event is one decoded inbound frame. The set of implementations is closed;
// frame kinds this client does not know decode to UnknownEvent.
type Event interface {
	frameType() string
}

type HistoryEvent struct {
	Messages []models.Message
}

type MessageEvent struct {
	Message models.Message
}

type OnlineCountEvent struct {
	Count int
}

type MessageDeletedEvent struct {
	ID string
}

// ErrorEvent is diagnostic only.
type ErrorEvent struct {
	Message string
}

// PresenceEvent covers user_join and user_leave. Its payload is not consumed.
type PresenceEvent struct {
	Joined bool
}

type PongEvent struct{}

// UnknownEvent is a frame kind added by the server after this client was built.
type UnknownEvent struct {
	Type string
}

func (HistoryEvent) frameType() string        { return models.FrameHistory }
func (MessageEvent) frameType() string        { return models.FrameMessage }
func (OnlineCountEvent) frameType() string    { return models.FrameOnlineCount }
func (MessageDeletedEvent) frameType() string { return models.FrameMessageDeleted }
func (ErrorEvent) frameType() string          { return models.FrameError }
func (PongEvent) frameType() string           { return models.FramePong }
func (e UnknownEvent) frameType() string      { return e.Type }

func (e PresenceEvent) frameType() string {
	if e.Joined {
		return models.FrameUserJoin
	}
	return models.FrameUserLeave
}

// DecodeEvent decodes a raw inbound frame.
func DecodeEvent(raw []byte) (Event, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedFrame)
	}
	typ := gjson.GetBytes(raw, "type")
	if typ.Type != gjson.String || typ.Str == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	data := gjson.GetBytes(raw, "data")

	switch typ.Str {
	case models.FrameHistory:
		var p models.HistoryPayload
		if err := decodeData(typ.Str, data, &p); err != nil {
			return nil, err
		}
		return HistoryEvent{Messages: p.Messages}, nil

	case models.FrameMessage:
		var m models.Message
		if err := decodeData(typ.Str, data, &m); err != nil {
			return nil, err
		}
		if m.ID == "" {
			return nil, fmt.Errorf("%w: message without id", ErrMalformedFrame)
		}
		return MessageEvent{Message: m}, nil

	case models.FrameOnlineCount:
		var p models.OnlineCountPayload
		if err := decodeData(typ.Str, data, &p); err != nil {
			return nil, err
		}
		return OnlineCountEvent{Count: p.Count}, nil

	case models.FrameMessageDeleted:
		var p models.MessageDeletedPayload
		if err := decodeData(typ.Str, data, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%w: message_deleted without id", ErrMalformedFrame)
		}
		return MessageDeletedEvent{ID: p.ID}, nil

	case models.FrameError:
		var p models.ErrorPayload
		if data.IsObject() {
			if err := json.Unmarshal([]byte(data.Raw), &p); err != nil {
				return nil, fmt.Errorf("%w: error: %v", ErrMalformedFrame, err)
			}
		}
		return ErrorEvent{Message: p.Message}, nil

	case models.FrameUserJoin:
		return PresenceEvent{Joined: true}, nil

	case models.FrameUserLeave:
		return PresenceEvent{Joined: false}, nil

	case models.FramePong:
		return PongEvent{}, nil

	default:
		return UnknownEvent{Type: typ.Str}, nil
	}
}

func decodeData(frameType string, data gjson.Result, v any) error {
	if !data.Exists() || data.Type == gjson.Null {
		return fmt.Errorf("%w: %s without data", ErrMalformedFrame, frameType)
	}
	if err := json.Unmarshal([]byte(data.Raw), v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedFrame, frameType, err)
	}
	return nil
}
