package chat

import (
	"strings"
	"sync"

	"communitychat/models"
)

// Composer holds the message being written: draft text, the selected video
// mention and the current mention suggestions.
type Composer struct {
	session  *Session
	mentions *MentionResolver

	mu          sync.Mutex
	draft       string
	video       *models.Video
	suggestions []models.Video
	onSuggest   func([]models.Video)
}

// NewComposer creates a composer sending through session.
func NewComposer(session *Session, mentions *MentionResolver) *Composer {
	return &Composer{session: session, mentions: mentions}
}

// OnSuggestions registers a callback for new mention suggestions.
func (c *Composer) OnSuggestions(fn func([]models.Video)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSuggest = fn
}

// SetDraft updates the draft text and starts mention resolution when the
// text ends in an @query.
func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	if c.video != nil && !strings.Contains(text, "@"+c.video.Code) {
		c.video = nil
	}
	c.mu.Unlock()

	if c.mentions == nil {
		return
	}
	if q, ok := MentionQuery(text); ok {
		c.mentions.Resolve(q, c.setSuggestions)
		return
	}
	c.mentions.Cancel()
	c.setSuggestions(nil)
}

func (c *Composer) setSuggestions(videos []models.Video) {
	c.mu.Lock()
	c.suggestions = videos
	fn := c.onSuggest
	c.mu.Unlock()
	if fn != nil {
		fn(videos)
	}
}

// SelectVideo attaches v as the mentioned video, replacing the @query being typed.
func (c *Composer) SelectVideo(v models.Video) {
	c.mu.Lock()
	if q, ok := MentionQuery(c.draft); ok {
		c.draft = c.draft[:len(c.draft)-len(q)-1] + "@" + v.Code + " "
	}
	c.video = &v
	c.suggestions = nil
	c.mu.Unlock()

	if c.mentions != nil {
		c.mentions.Cancel()
	}
}

// Submit sends the draft. The draft and mention are cleared only when the
// message went out, so a dropped send leaves the input for a manual retry.
func (c *Composer) Submit() bool {
	c.mu.Lock()
	draft := c.draft
	var videoID string
	if c.video != nil {
		videoID = c.video.ID
	}
	c.mu.Unlock()

	if !c.session.Send(draft, SendOptions{VideoID: videoID}) {
		return false
	}

	c.mu.Lock()
	c.draft = ""
	c.video = nil
	c.suggestions = nil
	c.mu.Unlock()
	if c.mentions != nil {
		c.mentions.Cancel()
	}
	return true
}

// Draft returns the current draft text.
func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Video returns the selected mention, or nil.
func (c *Composer) Video() *models.Video {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.video == nil {
		return nil
	}
	v := *c.video
	return &v
}

// Suggestions returns the latest mention suggestions.
func (c *Composer) Suggestions() []models.Video {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Video(nil), c.suggestions...)
}
