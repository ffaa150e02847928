package twin

import (
	"net/http"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/wondertwin-ai/apiprobe/internal/apimodel"
	"github.com/wondertwin-ai/apiprobe/internal/auth"
)

// maxMessageLength bounds chat message content, in characters.
const maxMessageLength = 2000

func (t *Twin) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req apimodel.CreateConversationRequest
	if err := decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		fail(w, http.StatusBadRequest, "Subject is required")
		return
	}

	c := sessionFrom(r)
	participants := []string{c.UserID}
	if req.ParticipantID != "" && req.ParticipantID != c.UserID {
		participants = append(participants, req.ParticipantID)
	}
	conv := apimodel.Conversation{
		ID:           t.convs.NextID(),
		Subject:      subject,
		CreatedBy:    c.UserID,
		Participants: participants,
		CreatedAt:    t.timestamp(),
	}
	t.convs.Set(conv.ID, conv)
	ok(w, conv)
}

func (t *Twin) handleListConversations(w http.ResponseWriter, r *http.Request) {
	c := sessionFrom(r)
	ok(w, t.convs.Filter(func(conv apimodel.Conversation) bool {
		return slices.Contains(conv.Participants, c.UserID)
	}))
}

// conversationFor loads the conversation in the URL and checks that the
// caller may see it. It writes the error response itself.
func (t *Twin) conversationFor(w http.ResponseWriter, r *http.Request) (apimodel.Conversation, bool) {
	conv, found := t.convs.Get(chi.URLParam(r, "id"))
	if !found {
		fail(w, http.StatusNotFound, "Conversation not found")
		return conv, false
	}
	c := sessionFrom(r)
	if c.Role != auth.RoleAdmin && !slices.Contains(conv.Participants, c.UserID) {
		fail(w, http.StatusForbidden, "You are not a participant in this conversation")
		return conv, false
	}
	return conv, true
}

func (t *Twin) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conv, allowed := t.conversationFor(w, r)
	if !allowed {
		return
	}
	ok(w, t.messages.Filter(func(m apimodel.Message) bool {
		return m.ConversationID == conv.ID
	}))
}

func (t *Twin) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	conv, allowed := t.conversationFor(w, r)
	if !allowed {
		return
	}
	var req apimodel.SendMessageRequest
	if err := decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	content := strings.TrimSpace(req.Content)
	switch {
	case content == "":
		fail(w, http.StatusBadRequest, "Message content is required")
		return
	case utf8.RuneCountInString(content) > maxMessageLength:
		fail(w, http.StatusBadRequest, "Message is too long")
		return
	}

	c := sessionFrom(r)
	msg := apimodel.Message{
		ID:             t.messages.NextID(),
		ConversationID: conv.ID,
		Content:        content,
		Sender:         apimodel.Sender{ID: c.UserID, Email: c.Email, Role: c.Role},
		CreatedAt:      t.timestamp(),
	}
	t.messages.Set(msg.ID, msg)
	ok(w, msg)
}
