package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Event
	}{
		{
			name: "online count",
			raw:  `{"type":"online_count","data":{"count":12}}`,
			want: OnlineCountEvent{Count: 12},
		},
		{
			name: "message deleted",
			raw:  `{"type":"message_deleted","data":{"id":"m9"}}`,
			want: MessageDeletedEvent{ID: "m9"},
		},
		{
			name: "error",
			raw:  `{"type":"error","data":{"message":"rate limited"}}`,
			want: ErrorEvent{Message: "rate limited"},
		},
		{
			name: "error without data",
			raw:  `{"type":"error"}`,
			want: ErrorEvent{},
		},
		{
			name: "user join",
			raw:  `{"type":"user_join","data":{"userId":"u2"}}`,
			want: PresenceEvent{Joined: true},
		},
		{
			name: "user leave",
			raw:  `{"type":"user_leave"}`,
			want: PresenceEvent{Joined: false},
		},
		{
			name: "pong",
			raw:  `{"type":"pong"}`,
			want: PongEvent{},
		},
		{
			name: "unknown kind",
			raw:  `{"type":"typing","data":{"userId":"u2"}}`,
			want: UnknownEvent{Type: "typing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeMessageFrame(t *testing.T) {
	raw := `{"type":"message","data":{
		"id":"b",
		"user":{"id":"u1","username":"alice","displayName":"Alice","level":4,"levelBadge":"gold","avatar":"https://cdn/a.png"},
		"content":"look at this",
		"mentionedVideo":{"id":"v1","code":"abc123","title":"Trailer","thumbnail":"https://cdn/v1.jpg"},
		"replyTo":{"id":"a","user":{"id":"u2","username":"bob"},"content":"first","createdAt":"2024-05-01T09:59:00Z"},
		"createdAt":"2024-05-01T10:00:00.123Z"}}`

	ev, err := DecodeEvent([]byte(raw))
	require.NoError(t, err)

	msg, ok := ev.(MessageEvent)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, "b", msg.Message.ID)
	assert.Equal(t, "Alice", msg.Message.User.Name())
	assert.Equal(t, 4, msg.Message.User.Level)
	require.NotNil(t, msg.Message.MentionedVideo)
	assert.Equal(t, "abc123", msg.Message.MentionedVideo.Code)
	require.NotNil(t, msg.Message.ReplyTo)
	assert.Equal(t, "a", msg.Message.ReplyTo.ID)
	assert.Equal(t, "bob", msg.Message.ReplyTo.User.Name())
	assert.Equal(t, "2024-05-01T10:00:00.123Z", msg.Message.CreatedAt)
}

func TestDecodeHistoryFrame(t *testing.T) {
	raw := `{"type":"history","data":{"messages":[
		{"id":"a","user":{"id":"u1","username":"alice"},"content":"one","createdAt":"2024-05-01T10:00:00Z"},
		{"id":"b","user":{"id":"u2","username":"bob"},"content":"two","createdAt":"2024-05-01T10:01:00Z"}]}}`

	ev, err := DecodeEvent([]byte(raw))
	require.NoError(t, err)

	history, ok := ev.(HistoryEvent)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, []string{"a", "b"}, ids(history.Messages))
}

func TestDecodeKeepsTimestampsAsSent(t *testing.T) {
	raw := `{"type":"history","data":{"messages":[
		{"id":"a","user":{"id":"u1","username":"alice"},"content":"one","createdAt":"2024-05-01T10:02:00.123456"},
		{"id":"b","user":{"id":"u2","username":"bob"},"content":"two","createdAt":"2024-05-01T10:01:00+0700"}]}}`

	ev, err := DecodeEvent([]byte(raw))
	require.NoError(t, err)

	history, ok := ev.(HistoryEvent)
	require.True(t, ok, "got %T", ev)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "2024-05-01T10:02:00.123456", history.Messages[0].CreatedAt)
	assert.Equal(t, "2024-05-01T10:01:00+0700", history.Messages[1].CreatedAt)
}

func TestDecodeEventMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{"type":`},
		{name: "array", raw: `[1,2]`},
		{name: "missing type", raw: `{"data":{}}`},
		{name: "numeric type", raw: `{"type":7}`},
		{name: "message without data", raw: `{"type":"message"}`},
		{name: "message without id", raw: `{"type":"message","data":{"content":"x"}}`},
		{name: "message bad timestamp", raw: `{"type":"message","data":{"id":"x","createdAt":"yesterday"}}`},
		{name: "history null data", raw: `{"type":"history","data":null}`},
		{name: "online count wrong type", raw: `{"type":"online_count","data":{"count":"many"}}`},
		{name: "deleted without id", raw: `{"type":"message_deleted","data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}
