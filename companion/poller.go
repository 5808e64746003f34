// Package companion keeps the chat sheet populated from the REST API while
// the realtime socket is down.
package companion

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"communitychat/models"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = 10 * time.Second

// Source is the REST side of the room. Satisfied by *restapi.Client.
type Source interface {
	RecentMessages(ctx context.Context, limit int) ([]models.Message, error)
	OnlineCount(ctx context.Context) (int, error)
}

// Sink receives polled state. Satisfied by *chat.Session, which ignores
// both writes once the socket is open.
type Sink interface {
	Connected() bool
	SeedHistory(messages []models.Message) bool
	SetOnlineCount(count int) bool
}

// Poller fetches recent messages and the online count on a fixed interval,
// only while the sheet is visible and the socket is not open.
type Poller struct {
	source   Source
	sink     Sink
	interval time.Duration
	limit    int
	log      zerolog.Logger
	kick     chan struct{}

	mu      sync.Mutex
	visible bool
}

// NewPoller creates a poller. The sheet starts hidden.
func NewPoller(source Source, sink Sink, interval time.Duration, limit int, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		source:   source,
		sink:     sink,
		interval: interval,
		limit:    limit,
		log:      logger.With().Str("component", "companion").Logger(),
		kick:     make(chan struct{}, 1),
	}
}

// SetVisible records whether the chat sheet is on screen. Opening the sheet
// while disconnected triggers an immediate poll.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	opened := visible && !p.visible
	p.visible = visible
	p.mu.Unlock()

	if opened && !p.sink.Connected() {
		select {
		case p.kick <- struct{}{}:
		default:
		}
	}
}

// Visible reports whether the sheet is on screen.
func (p *Poller) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		case <-p.kick:
			p.Poll(ctx)
		}
	}
}

// Poll runs one round of companion reads. It reports whether the reads were
// attempted; hidden sheets and open sockets skip them.
func (p *Poller) Poll(ctx context.Context) bool {
	if !p.Visible() || p.sink.Connected() {
		return false
	}

	messages, err := p.source.RecentMessages(ctx, p.limit)
	if err != nil {
		p.log.Debug().Err(err).Msg("recent messages poll failed")
	} else {
		p.sink.SeedHistory(messages)
	}

	count, err := p.source.OnlineCount(ctx)
	if err != nil {
		p.log.Debug().Err(err).Msg("online count poll failed")
	} else {
		p.sink.SetOnlineCount(count)
	}
	return true
}
