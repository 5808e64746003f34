// Package handlers serves the local HTTP bridge a presentation host uses to
// render the room and drive the composer.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"communitychat/chat"
	"communitychat/middleware"
	"communitychat/models"
)

// Visibility is told when the chat sheet opens or closes.
type Visibility interface {
	SetVisible(visible bool)
}

// Bridge exposes one chat session over HTTP.
type Bridge struct {
	session  *chat.Session
	composer *chat.Composer
	mentions *chat.MentionResolver
	sheet    Visibility
	hub      *Hub
	log      zerolog.Logger
}

// NewBridge creates a bridge. sheet and hub may be nil.
func NewBridge(session *chat.Session, composer *chat.Composer, mentions *chat.MentionResolver, sheet Visibility, hub *Hub, logger zerolog.Logger) *Bridge {
	return &Bridge{
		session:  session,
		composer: composer,
		mentions: mentions,
		sheet:    sheet,
		hub:      hub,
		log:      logger.With().Str("component", "bridge").Logger(),
	}
}

// Router builds the bridge routes. Everything but /up requires token when
// one is set.
func (b *Bridge) Router(token string) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Logger(b.log))

	r.HandleFunc("/up", b.Health).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(middleware.Auth(token))

	api.HandleFunc("/room", b.GetRoom).Methods(http.MethodGet)
	api.HandleFunc("/room/messages", b.SendMessage).Methods(http.MethodPost)
	api.HandleFunc("/room/reply", b.SetReply).Methods(http.MethodPut)
	api.HandleFunc("/room/reply", b.ClearReply).Methods(http.MethodDelete)
	api.HandleFunc("/room/visibility", b.SetVisibility).Methods(http.MethodPut)
	api.HandleFunc("/mentions", b.SearchMentions).Methods(http.MethodGet)

	api.HandleFunc("/composer", b.GetComposer).Methods(http.MethodGet)
	api.HandleFunc("/composer/draft", b.SetDraft).Methods(http.MethodPut)
	api.HandleFunc("/composer/video", b.SelectVideo).Methods(http.MethodPut)
	api.HandleFunc("/composer/submit", b.Submit).Methods(http.MethodPost)

	if b.hub != nil {
		api.HandleFunc("/room/events", b.hub.HandleEvents).Methods(http.MethodGet)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Health reports liveness and the socket state.
func (b *Bridge) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"connected": b.session.Connected(),
	})
}

// GetRoom returns a snapshot of the room
func (b *Bridge) GetRoom(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.session.Snapshot())
}

type sendMessageRequest struct {
	Content string `json:"content"`
	VideoID string `json:"videoId"`
}

// SendMessage hands a message to the socket. A dropped send is a 409 so the
// caller keeps its input for a manual retry.
func (b *Bridge) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "Message content is required")
		return
	}

	if !b.session.Send(req.Content, chat.SendOptions{VideoID: req.VideoID}) {
		writeJSON(w, http.StatusConflict, map[string]bool{"sent": false})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
}

type replyRequest struct {
	ID string `json:"id"`
}

// SetReply marks a room message as the one the next send quotes.
func (b *Bridge) SetReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "Message ID is required")
		return
	}

	if err := b.session.ReplyTo(req.ID); err != nil {
		if errors.Is(err, chat.ErrUnknownMessage) {
			writeError(w, http.StatusNotFound, "Message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to set reply")
		return
	}
	writeJSON(w, http.StatusOK, map[string]*models.Message{"pendingReply": b.session.PendingReply()})
}

// ClearReply drops the pending reply.
func (b *Bridge) ClearReply(w http.ResponseWriter, r *http.Request) {
	b.session.SetPendingReply(nil)
	w.WriteHeader(http.StatusNoContent)
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

// SetVisibility records whether the chat sheet is on screen.
func (b *Bridge) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if b.sheet != nil {
		b.sheet.SetVisible(req.Visible)
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchMentions looks up videos for a mention query. Short queries and
// search failures both return an empty list.
func (b *Bridge) SearchMentions(w http.ResponseWriter, r *http.Request) {
	videos := b.mentions.Search(r.Context(), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string][]models.Video{"videos": videos})
}

type composerState struct {
	Draft       string         `json:"draft"`
	Video       *models.Video  `json:"video,omitempty"`
	Suggestions []models.Video `json:"suggestions"`
}

func (b *Bridge) composerState() composerState {
	return composerState{
		Draft:       b.composer.Draft(),
		Video:       b.composer.Video(),
		Suggestions: b.composer.Suggestions(),
	}
}

// GetComposer returns the draft, the selected video and the latest suggestions.
func (b *Bridge) GetComposer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.composerState())
}

type draftRequest struct {
	Text string `json:"text"`
}

// SetDraft replaces the draft text. Suggestions for a trailing @query arrive
// later through GetComposer or the event stream.
func (b *Bridge) SetDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	b.composer.SetDraft(req.Text)
	writeJSON(w, http.StatusOK, b.composerState())
}

// SelectVideo attaches a suggested video to the draft.
func (b *Bridge) SelectVideo(w http.ResponseWriter, r *http.Request) {
	var v models.Video
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil || v.ID == "" || v.Code == "" {
		writeError(w, http.StatusBadRequest, "Video id and code are required")
		return
	}

	b.composer.SelectVideo(v)
	writeJSON(w, http.StatusOK, b.composerState())
}

// Submit sends the draft.
func (b *Bridge) Submit(w http.ResponseWriter, r *http.Request) {
	if !b.composer.Submit() {
		writeJSON(w, http.StatusConflict, map[string]bool{"sent": false})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
}
