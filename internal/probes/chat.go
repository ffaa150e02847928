package probes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wondertwin-ai/apiprobe/internal/apimodel"
	"github.com/wondertwin-ai/apiprobe/internal/auth"
	"github.com/wondertwin-ai/apiprobe/internal/harness"
)

const conversationsPath = "/api/chat/conversations"

func messagesPath(conversationID string) string {
	return conversationsPath + "/" + conversationID + "/messages"
}

func chatSuite(ctx context.Context, env *Env) {
	h := env.H

	h.Run(ctx, "Chat list unauthenticated", harness.Request{Path: conversationsPath, Expected: 401})

	owner := env.identity("chat", auth.RoleUser)
	if !env.impersonate("Chat session", owner) {
		return
	}

	h.Run(ctx, "Chat create without subject", harness.Request{
		Method: "POST", Path: conversationsPath, Expected: 400,
		JSON: apimodel.CreateConversationRequest{Subject: ""},
	})

	ok, resp := h.Run(ctx, "Chat create conversation", harness.Request{
		Method: "POST", Path: conversationsPath, Expected: 200,
		JSON: apimodel.CreateConversationRequest{Subject: "Probe conversation " + time.Now().Format(time.RFC3339)},
	})
	if !ok {
		return
	}
	convID := resp.String("data.id")
	if !h.Expect("Chat conversation id returned", convID != "", "data.id = "+convID) {
		return
	}

	h.Run(ctx, "Chat send empty message", harness.Request{
		Method: "POST", Path: messagesPath(convID), Expected: 400,
		JSON: apimodel.SendMessageRequest{Content: ""},
	})

	content := "probe message " + uuid.NewString()
	ok, resp = h.Run(ctx, "Chat send message", harness.Request{
		Method: "POST", Path: messagesPath(convID), Expected: 200,
		JSON: apimodel.SendMessageRequest{Content: content},
	})
	if ok {
		expectField(h, "Chat sender id matches session", resp, "data.sender.id", owner.UserID)
		expectField(h, "Chat sender email matches session", resp, "data.sender.email", owner.Email)
	}

	ok, resp = h.Run(ctx, "Chat list messages", harness.Request{Path: messagesPath(convID), Expected: 200})
	if ok {
		if e, decoded := envelope(h, "Chat sent message listed", resp); decoded {
			var msgs []apimodel.Message
			if err := e.DecodeData(&msgs); err != nil {
				h.Expect("Chat sent message listed", false, err.Error())
			} else {
				h.Expect("Chat sent message listed", containsMessage(msgs, content), fmt.Sprintf("%d message(s) listed", len(msgs)))
			}
		}
	}
	env.countRows(ctx, "Chat message stored", "chat_messages", map[string]string{"conversation_id": convID}, 1)

	if env.impersonate("Chat outsider session", env.identity("outsider", auth.RoleUser)) {
		h.Run(ctx, "Chat outsider reads conversation", harness.Request{Path: messagesPath(convID), Expected: 403})
	}

	h.Run(ctx, "Chat unknown conversation", harness.Request{Path: messagesPath(uuid.NewString()), Expected: 404})
}

func containsMessage(msgs []apimodel.Message, content string) bool {
	for _, m := range msgs {
		if m.Content == content {
			return true
		}
	}
	return false
}
