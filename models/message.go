package models

// Message represents a chat message as delivered by the server.
// Messages are immutable once received; the client never assigns an ID.
type Message struct {
	ID             string          `json:"id"`
	User           Author          `json:"user"`
	Content        string          `json:"content"`
	MentionedVideo *MentionedVideo `json:"mentionedVideo,omitempty"`
	ReplyTo        *Message        `json:"replyTo,omitempty"` // value copy of the quoted message
	CreatedAt      string          `json:"createdAt"` // ISO-8601, passed through as sent
}

// MentionedVideo is a weak reference into the video catalog.
type MentionedVideo struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

// Video is a search result returned by the catalog when resolving a mention.
type Video struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

// Clone returns a deep copy so callers cannot mutate room state through shared pointers.
func (m Message) Clone() Message {
	out := m
	if m.MentionedVideo != nil {
		v := *m.MentionedVideo
		out.MentionedVideo = &v
	}
	if m.ReplyTo != nil {
		r := m.ReplyTo.Clone()
		out.ReplyTo = &r
	}
	return out
}
