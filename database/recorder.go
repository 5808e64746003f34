package database

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"communitychat/chat"
)

const recorderQueue = 256

// Recorder feeds session changes into a Store from its own goroutine, so the
// session observer never waits on disk.
type Recorder struct {
	store *Store
	log   zerolog.Logger
	queue chan chat.Change

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store *Store, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store: store,
		log:   logger.With().Str("component", "archive").Logger(),
		queue: make(chan chat.Change, recorderQueue),
	}
}

// Observe queues c. It never blocks; changes beyond the queue are dropped.
func (r *Recorder) Observe(c chat.Change) {
	switch c.Kind {
	case chat.ChangeHistory, chat.ChangeMessage, chat.ChangeDeleted:
	default:
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- c:
	default:
		r.log.Warn().Int("kind", int(c.Kind)).Msg("archive queue full, dropping change")
	}
}

// Run writes queued changes until ctx is done or Close is called, then
// drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.Close()
			for c := range r.queue {
				r.write(c)
			}
			return
		case c, ok := <-r.queue:
			if !ok {
				return
			}
			r.write(c)
		}
	}
}

// Close stops accepting changes.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.queue)
}

func (r *Recorder) write(c chat.Change) {
	if err := r.store.Record(c); err != nil {
		r.log.Error().Err(err).Int("kind", int(c.Kind)).Msg("archive write failed")
	}
}
