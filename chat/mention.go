package chat

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"communitychat/models"
	"communitychat/realtime"
)

// MinMentionQuery is the shortest query sent to the video search.
const MinMentionQuery = 2

const (
	DefaultMentionDebounce = 300 * time.Millisecond
	mentionSearchTimeout   = 5 * time.Second
	mentionCacheSize       = 32
)

// VideoSearcher looks up catalog videos for a mention query.
type VideoSearcher interface {
	SearchVideos(ctx context.Context, query string) ([]models.Video, error)
}

// MentionQuery extracts the query of a mention being typed: the text after
// the last '@', as long as no whitespace follows it.
func MentionQuery(text string) (string, bool) {
	at := strings.LastIndex(text, "@")
	if at < 0 {
		return "", false
	}
	tail := text[at+1:]
	if strings.IndexFunc(tail, unicode.IsSpace) >= 0 {
		return "", false
	}
	return tail, true
}

// MentionResolver resolves mention queries against the video catalog. Calls
// are debounced, identical in-flight searches are shared, and the results of
// recent distinct queries are reused. It never touches the room.
type MentionResolver struct {
	search VideoSearcher
	sched  realtime.Scheduler
	delay  time.Duration
	log    zerolog.Logger
	group  singleflight.Group

	mu    sync.Mutex
	timer realtime.Timer
	seq   uint64
	cache map[string][]models.Video
}

// NewMentionResolver creates a resolver. A nil scheduler uses the system timer.
func NewMentionResolver(search VideoSearcher, sched realtime.Scheduler, delay time.Duration, logger zerolog.Logger) *MentionResolver {
	if sched == nil {
		sched = realtime.SystemScheduler{}
	}
	if delay <= 0 {
		delay = DefaultMentionDebounce
	}
	return &MentionResolver{
		search: search,
		sched:  sched,
		delay:  delay,
		log:    logger.With().Str("component", "mentions").Logger(),
		cache:  make(map[string][]models.Video),
	}
}

// Resolve schedules a search for query and hands the results to deliver.
// A later Resolve or Cancel supersedes it; superseded results are discarded.
// Queries shorter than MinMentionQuery deliver no results right away.
func (r *MentionResolver) Resolve(query string, deliver func([]models.Video)) {
	query = strings.TrimSpace(query)

	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.stopLocked()
	if utf8.RuneCountInString(query) < MinMentionQuery {
		r.mu.Unlock()
		deliver([]models.Video{})
		return
	}
	if cached, ok := r.cache[query]; ok {
		r.mu.Unlock()
		deliver(cached)
		return
	}
	r.timer = r.sched.AfterFunc(r.delay, func() { r.fire(seq, query, deliver) })
	r.mu.Unlock()
}

// Cancel drops any pending or in-flight resolution.
func (r *MentionResolver) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.stopLocked()
}

func (r *MentionResolver) stopLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *MentionResolver) fire(seq uint64, query string, deliver func([]models.Video)) {
	r.mu.Lock()
	if seq != r.seq {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.mu.Unlock()

	videos := r.Search(context.Background(), query)

	r.mu.Lock()
	current := seq == r.seq
	r.mu.Unlock()
	if current {
		deliver(videos)
	}
}

// Search looks up query immediately. Failures yield no results.
func (r *MentionResolver) Search(ctx context.Context, query string) []models.Video {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinMentionQuery || r.search == nil {
		return []models.Video{}
	}

	r.mu.Lock()
	cached, ok := r.cache[query]
	r.mu.Unlock()
	if ok {
		return cached
	}

	v, err, _ := r.group.Do(query, func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, mentionSearchTimeout)
		defer cancel()
		return r.search.SearchVideos(ctx, query)
	})
	if err != nil {
		r.log.Debug().Err(err).Str("query", query).Msg("video search failed")
		return []models.Video{}
	}
	videos, _ := v.([]models.Video)
	if videos == nil {
		videos = []models.Video{}
	}

	r.mu.Lock()
	if len(r.cache) >= mentionCacheSize {
		r.cache = make(map[string][]models.Video)
	}
	r.cache[query] = videos
	r.mu.Unlock()
	return videos
}
