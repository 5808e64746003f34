// Package realtime owns the single socket of an authenticated chat session:
// connect, heartbeat, reconnect and teardown. It knows nothing about what the
// frames mean.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"communitychat/models"
)

// State of the connection manager
type State int

const (
	Idle State = iota
	Connecting
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Listener receives connection events. Calls are serialized and never overlap.
// A listener must not call Disconnect or SetToken synchronously from a callback.
type Listener interface {
	Opened()
	Closed(err error)
	Frame(raw []byte)
}

// Config controls endpoint and timing.
type Config struct {
	APIBaseURL        string
	Path              string
	HeartbeatInterval time.Duration
	DialTimeout       time.Duration
	SendQueue         int
	Policy            ReconnectPolicy
}

const (
	DefaultHeartbeatInterval = 25 * time.Second
	DefaultReconnectDelay    = 3 * time.Second
	DefaultDialTimeout       = 10 * time.Second
	defaultSendQueue         = 64
)

var pingFrame = mustEnvelope(models.Ping())

// Manager maintains at most one live socket for the current token.
type Manager struct {
	cfg      Config
	dialer   Dialer
	sched    Scheduler
	listener Listener
	log      zerolog.Logger

	emitMu sync.Mutex

	mu         sync.Mutex
	state      State
	token      string
	gen        uint64
	conn       Conn
	send       chan []byte
	heartbeat  Timer
	reconnect  Timer
	attempts   int
	cancelDial context.CancelFunc
}

// New creates an idle manager. Nothing is dialed until a token is set.
func New(cfg Config, dialer Dialer, sched Scheduler, listener Listener, logger zerolog.Logger) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	if cfg.Policy == nil {
		cfg.Policy = FixedDelay(DefaultReconnectDelay)
	}
	if dialer == nil {
		dialer = WebsocketDialer{HandshakeTimeout: cfg.DialTimeout}
	}
	if sched == nil {
		sched = SystemScheduler{}
	}
	if listener == nil {
		listener = nopListener{}
	}
	return &Manager{
		cfg:      cfg,
		dialer:   dialer,
		sched:    sched,
		listener: listener,
		log:      logger.With().Str("component", "realtime").Logger(),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the socket is open.
func (m *Manager) Connected() bool {
	return m.State() == Open
}

// Attempts returns the number of reconnects scheduled since the last successful open.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// SetToken swaps the session credentials. A changed token tears down the
// current socket and dials again; an empty token leaves the manager idle.
func (m *Manager) SetToken(token string) {
	m.mu.Lock()
	if token == m.token {
		m.mu.Unlock()
		return
	}
	m.token = token
	m.mu.Unlock()

	m.Disconnect()
	if token != "" {
		m.Connect()
	}
}

// Connect starts dialing unless a socket is already open or being opened.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectLocked()
}

func (m *Manager) connectLocked() {
	if m.state == Open || m.state == Connecting {
		return
	}
	url, err := RealtimeURL(m.cfg.APIBaseURL, m.cfg.Path, m.token)
	if err != nil {
		if !errors.Is(err, ErrNoToken) {
			m.log.Error().Err(err).Msg("cannot build realtime url")
		}
		return
	}
	m.stopReconnectLocked()

	m.gen++
	gen := m.gen
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	m.cancelDial = cancel
	m.state = Connecting

	go m.dial(ctx, cancel, gen, url)
}

func (m *Manager) dial(ctx context.Context, cancel context.CancelFunc, gen uint64, url string) {
	defer cancel()
	log := m.log.With().Str("conn_id", uuid.NewString()).Logger()

	conn, err := m.dialer.Dial(ctx, url)

	m.mu.Lock()
	if gen != m.gen || m.state != Connecting {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	m.cancelDial = nil
	if err != nil {
		m.state = Closed
		m.mu.Unlock()
		log.Warn().Err(err).Msg("realtime dial failed")
		m.emit(gen, func() { m.listener.Closed(err) })
		m.scheduleReconnect(gen)
		return
	}

	send := make(chan []byte, m.cfg.SendQueue)
	m.conn = conn
	m.send = send
	m.state = Open
	m.attempts = 0
	m.cfg.Policy.Reset()
	m.startHeartbeatLocked(gen)
	m.mu.Unlock()

	log.Info().Msg("realtime connection open")
	m.emit(gen, m.listener.Opened)

	go m.writePump(conn, send)
	m.readPump(gen, conn, log)
}

func (m *Manager) readPump(gen uint64, conn Conn, log zerolog.Logger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.closed(gen, conn, err, log)
			return
		}
		m.emit(gen, func() { m.listener.Frame(data) })
	}
}

func (m *Manager) writePump(conn Conn, send <-chan []byte) {
	for data := range send {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			// The read side observes the close and drives the transition.
			_ = conn.Close()
			return
		}
	}
}

// closed handles Open -> Closed for socket errors and server-initiated closes.
func (m *Manager) closed(gen uint64, conn Conn, err error, log zerolog.Logger) {
	m.mu.Lock()
	if gen != m.gen || m.state != Open {
		m.mu.Unlock()
		return
	}
	m.teardownLocked()
	m.state = Closed
	m.mu.Unlock()
	_ = conn.Close()

	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		log.Warn().Err(err).Msg("realtime connection lost")
	} else {
		log.Info().Err(err).Msg("realtime connection closed")
	}
	m.emit(gen, func() { m.listener.Closed(err) })
	m.scheduleReconnect(gen)
}

func (m *Manager) scheduleReconnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state != Closed {
		return
	}
	m.stopReconnectLocked()
	delay := m.cfg.Policy.Next()
	m.attempts++
	m.log.Debug().Dur("delay", delay).Int("attempt", m.attempts).Msg("reconnect scheduled")
	m.reconnect = m.sched.AfterFunc(delay, func() { m.retry(gen) })
}

func (m *Manager) retry(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state != Closed {
		return
	}
	m.reconnect = nil
	if m.token == "" {
		m.state = Idle
		return
	}
	m.connectLocked()
}

// Disconnect tears everything down and returns to Idle. Pending timers are
// cancelled before it returns. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	prev := m.state
	m.gen++
	gen := m.gen
	m.stopReconnectLocked()
	conn := m.teardownLocked()
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.state = Idle
	m.attempts = 0
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if prev == Open || prev == Connecting {
		m.emit(gen, func() { m.listener.Closed(nil) })
	}
}

// Transmit queues env for the socket. It returns false, dropping env, unless
// the socket is open and the send queue has room.
func (m *Manager) Transmit(env models.OutboundEnvelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		m.log.Error().Err(err).Str("type", env.Type).Msg("failed to marshal envelope")
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enqueueLocked(data)
}

func (m *Manager) enqueueLocked(data []byte) bool {
	if m.state != Open || m.send == nil {
		return false
	}
	select {
	case m.send <- data:
		return true
	default:
		return false
	}
}

func (m *Manager) startHeartbeatLocked(gen uint64) {
	m.heartbeat = m.sched.AfterFunc(m.cfg.HeartbeatInterval, func() { m.beat(gen) })
}

func (m *Manager) beat(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state != Open {
		return
	}
	if !m.enqueueLocked(pingFrame) {
		m.log.Debug().Msg("heartbeat dropped")
	}
	m.startHeartbeatLocked(gen)
}

// teardownLocked stops the heartbeat and closes the send queue, returning the socket.
func (m *Manager) teardownLocked() Conn {
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
	if m.send != nil {
		close(m.send)
		m.send = nil
	}
	conn := m.conn
	m.conn = nil
	return conn
}

func (m *Manager) stopReconnectLocked() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
}

// emit delivers a listener call unless gen has been superseded.
func (m *Manager) emit(gen uint64, f func()) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	current := gen == m.gen
	m.mu.Unlock()
	if current {
		f()
	}
}

func mustEnvelope(env models.OutboundEnvelope) []byte {
	data, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	return data
}

type nopListener struct{}

func (nopListener) Opened()      {}
func (nopListener) Closed(error) {}
func (nopListener) Frame([]byte) {}
