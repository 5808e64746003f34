// Package chat applies realtime frames to the local room and composes
// outbound actions.
//
// The room log is strictly server-sourced: Send never inserts a local copy of
// the message, the authoritative copy arrives as a message frame and is
// deduplicated by ID.
package chat

import (
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"communitychat/models"
)

// Transmitter hands envelopes to the socket. It is satisfied by *realtime.Manager.
type Transmitter interface {
	Transmit(env models.OutboundEnvelope) bool
}

// SendOptions carries the optional parts of an outbound message.
type SendOptions struct {
	VideoID string
}

// ChangeKind identifies what a Change describes.
type ChangeKind int

const (
	ChangeHistory ChangeKind = iota + 1
	ChangeMessage
	ChangeDeleted
	ChangeOnlineCount
	ChangeConnection
	ChangeReply
)

// Change is reported to the observer after every room mutation.
type Change struct {
	Kind      ChangeKind
	Messages  []models.Message
	Message   *models.Message
	ID        string
	Count     int
	Connected bool
}

// Session owns the RoomState of one authenticated chat session.
type Session struct {
	log zerolog.Logger

	mu        sync.Mutex
	tx        Transmitter
	room      *RoomState
	connected bool
	observer  func(Change)
}

// NewSession creates a session with an empty room.
func NewSession(logger zerolog.Logger) *Session {
	return &Session{
		log:  logger.With().Str("component", "chat").Logger(),
		room: newRoomState(),
	}
}

// Bind attaches the transmitter used by Send.
func (s *Session) Bind(tx Transmitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tx = tx
}

// SetObserver registers a callback for room changes. It runs while the room
// is locked, in mutation order; it must not block or call back into the Session.
func (s *Session) SetObserver(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

func (s *Session) notifyLocked(c Change) {
	if s.observer != nil {
		s.observer(c)
	}
}

// Opened implements realtime.Listener.
func (s *Session) Opened() {
	s.setConnected(true)
}

// Closed implements realtime.Listener. Transport failures are not errors for
// the room; only the connected flag changes.
func (s *Session) Closed(err error) {
	s.setConnected(false)
}

func (s *Session) setConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected == connected {
		return
	}
	s.connected = connected
	s.notifyLocked(Change{Kind: ChangeConnection, Connected: connected})
}

// Frame implements realtime.Listener. Malformed frames are logged and dropped.
func (s *Session) Frame(raw []byte) {
	ev, err := DecodeEvent(raw)
	if err != nil {
		s.log.Warn().Err(err).Int("bytes", len(raw)).Msg("dropping inbound frame")
		return
	}
	s.Apply(ev)
}

// Apply mutates the room for one decoded event.
func (s *Session) Apply(ev Event) {
	switch e := ev.(type) {
	case HistoryEvent:
		s.mu.Lock()
		applied := s.room.replace(e.Messages)
		s.notifyLocked(Change{Kind: ChangeHistory, Messages: append([]models.Message(nil), applied...)})
		s.mu.Unlock()

	case MessageEvent:
		s.mu.Lock()
		if s.room.append(e.Message) {
			m := e.Message
			s.notifyLocked(Change{Kind: ChangeMessage, Message: &m})
		}
		s.mu.Unlock()

	case OnlineCountEvent:
		s.mu.Lock()
		s.room.onlineCount = e.Count
		s.notifyLocked(Change{Kind: ChangeOnlineCount, Count: e.Count})
		s.mu.Unlock()

	case MessageDeletedEvent:
		s.mu.Lock()
		if s.room.remove(e.ID) {
			s.notifyLocked(Change{Kind: ChangeDeleted, ID: e.ID})
		}
		if s.room.pendingReply != nil && s.room.pendingReply.ID == e.ID {
			s.room.pendingReply = nil
			s.notifyLocked(Change{Kind: ChangeReply})
		}
		s.mu.Unlock()

	case ErrorEvent:
		s.log.Warn().Str("message", e.Message).Msg("server reported error")

	case PresenceEvent, PongEvent:
		// not consumed by the room

	case UnknownEvent:
		s.log.Debug().Str("type", e.Type).Msg("ignoring unknown frame type")
	}
}

// Send transmits content as a message, quoting the pending reply if there is
// one. It reports whether the message went out; on false nothing changed.
func (s *Session) Send(content string, opts SendOptions) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}

	s.mu.Lock()
	tx := s.tx
	env := models.OutboundEnvelope{
		Type:    models.OutboundMessage,
		Content: content,
		VideoID: strings.TrimSpace(opts.VideoID),
	}
	if s.room.pendingReply != nil {
		env.ReplyTo = s.room.pendingReply.ID
	}
	s.mu.Unlock()

	if tx == nil || !tx.Transmit(env) {
		s.log.Debug().Msg("send dropped: not connected")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if env.ReplyTo != "" && s.room.pendingReply != nil && s.room.pendingReply.ID == env.ReplyTo {
		s.room.pendingReply = nil
		s.notifyLocked(Change{Kind: ChangeReply})
	}
	return true
}

// SetPendingReply sets the message the next Send quotes. Nil clears it.
func (s *Session) SetPendingReply(m *models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m == nil {
		s.room.pendingReply = nil
	} else {
		reply := m.Clone()
		s.room.pendingReply = &reply
	}
	s.notifyLocked(Change{Kind: ChangeReply, Message: s.room.pendingReply})
}

// ErrUnknownMessage is returned when a message ID is not in the room.
var ErrUnknownMessage = errors.New("message not in room")

// ReplyTo sets the pending reply by message ID.
func (s *Session) ReplyTo(id string) error {
	s.mu.Lock()
	m, ok := s.room.find(id)
	s.mu.Unlock()
	if !ok {
		return ErrUnknownMessage
	}
	s.SetPendingReply(&m)
	return nil
}

// PendingReply returns a copy of the pending reply, or nil.
func (s *Session) PendingReply() *models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room.pendingReply == nil {
		return nil
	}
	reply := s.room.pendingReply.Clone()
	return &reply
}

// Connected reports whether the realtime socket is open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Snapshot returns a copy of the room for rendering.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.snapshot(s.connected)
}

// SeedHistory fills the room from a non-realtime read. It is ignored while
// the socket is open, since the socket's own history frame wins.
func (s *Session) SeedHistory(messages []models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return false
	}
	applied := s.room.replace(messages)
	s.notifyLocked(Change{Kind: ChangeHistory, Messages: append([]models.Message(nil), applied...)})
	return true
}

// SetOnlineCount records a polled online count. Ignored while connected.
func (s *Session) SetOnlineCount(count int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return false
	}
	s.room.onlineCount = count
	s.notifyLocked(Change{Kind: ChangeOnlineCount, Count: count})
	return true
}
