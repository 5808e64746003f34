package chat

import "communitychat/models"

// RoomState is the local copy of the shared room. Messages are kept in
// arrival order and no two share an ID.
type RoomState struct {
	messages     []models.Message
	ids          map[string]struct{}
	onlineCount  int
	pendingReply *models.Message
}

func newRoomState() *RoomState {
	return &RoomState{ids: make(map[string]struct{})}
}

// replace swaps the whole log. Entries without an ID, and repeats of an ID
// earlier in the batch, are dropped.
func (r *RoomState) replace(batch []models.Message) []models.Message {
	messages := make([]models.Message, 0, len(batch))
	ids := make(map[string]struct{}, len(batch))
	for _, m := range batch {
		if m.ID == "" {
			continue
		}
		if _, ok := ids[m.ID]; ok {
			continue
		}
		ids[m.ID] = struct{}{}
		messages = append(messages, m)
	}
	r.messages = messages
	r.ids = ids
	return messages
}

func (r *RoomState) append(m models.Message) bool {
	if _, ok := r.ids[m.ID]; ok {
		return false
	}
	r.ids[m.ID] = struct{}{}
	r.messages = append(r.messages, m)
	return true
}

func (r *RoomState) remove(id string) bool {
	if _, ok := r.ids[id]; !ok {
		return false
	}
	delete(r.ids, id)
	for i := range r.messages {
		if r.messages[i].ID == id {
			r.messages = append(r.messages[:i:i], r.messages[i+1:]...)
			break
		}
	}
	return true
}

func (r *RoomState) find(id string) (models.Message, bool) {
	if _, ok := r.ids[id]; !ok {
		return models.Message{}, false
	}
	for _, m := range r.messages {
		if m.ID == id {
			return m, true
		}
	}
	return models.Message{}, false
}

// Snapshot is a read-only copy of the room for presentation.
type Snapshot struct {
	Connected    bool             `json:"connected"`
	OnlineCount  int              `json:"onlineCount"`
	PendingReply *models.Message  `json:"pendingReply,omitempty"`
	Messages     []models.Message `json:"messages"`
}

func (r *RoomState) snapshot(connected bool) Snapshot {
	out := Snapshot{
		Connected:   connected,
		OnlineCount: r.onlineCount,
		Messages:    make([]models.Message, len(r.messages)),
	}
	for i, m := range r.messages {
		out.Messages[i] = m.Clone()
	}
	if r.pendingReply != nil {
		reply := r.pendingReply.Clone()
		out.PendingReply = &reply
	}
	return out
}
