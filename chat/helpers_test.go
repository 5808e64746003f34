package chat

import (
	"context"
	"sync"
	"time"

	"communitychat/models"
	"communitychat/realtime"
)

func testMessage(id string) models.Message {
	return models.Message{
		ID: id,
		User: models.Author{
			ID:          "u1",
			Username:    "alice",
			DisplayName: "Alice",
			Level:       3,
			LevelBadge:  "gold",
		},
		Content:   "hello " + id,
		CreatedAt: "2024-05-01T10:00:00Z",
	}
}

func ids(messages []models.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}

type fakeTransmitter struct {
	mu   sync.Mutex
	open bool
	sent []models.OutboundEnvelope
}

func (f *fakeTransmitter) Transmit(env models.OutboundEnvelope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return false
	}
	f.sent = append(f.sent, env)
	return true
}

func (f *fakeTransmitter) envelopes() []models.OutboundEnvelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OutboundEnvelope(nil), f.sent...)
}

type manualTimer struct {
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(_ time.Duration, f func()) realtime.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{f: f}
	s.timers = append(s.timers, t)
	return t
}

// flush fires every timer that has not been stopped.
func (s *manualScheduler) flush() {
	s.mu.Lock()
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.stopped {
			t.stopped = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type fakeSearcher struct {
	mu     sync.Mutex
	calls  map[string]int
	videos []models.Video
	err    error
}

func (f *fakeSearcher) SearchVideos(_ context.Context, query string) ([]models.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[query]++
	if f.err != nil {
		return nil, f.err
	}
	return f.videos, nil
}

func (f *fakeSearcher) count(query string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[query]
}

func (f *fakeSearcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}
