package session

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/peercall/broker/internal/v1/ident"
	"github.com/peercall/broker/internal/v1/store"
)

const (
	maxChatMessageLength = 1000
	maxEmojiLength       = 10
)

// handleChatMessage relays a chat message to the sender's room and enqueues
// it for durable persistence. The sender receives the fan-out copy too, so
// clients can settle optimistic UI against the server-assigned messageId
// and timestamp.
func (h *Hub) handleChatMessage(c *Client, raw json.RawMessage) string {
	var p chatMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" {
		c.sendError("Valid roomId is required")
		return "invalid"
	}

	var text string
	if err := json.Unmarshal(p.Message, &text); err != nil {
		c.sendError("Valid message is required")
		return "invalid"
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxChatMessageLength {
		c.sendError("Valid message is required")
		return "invalid"
	}

	room, ok := h.currentRoom(c, p.RoomID)
	if !ok {
		c.sendError("Valid roomId is required")
		return "invalid"
	}

	if !h.chatLimiter.Allow(string(c.ID)) {
		c.sendError("Chat rate limit exceeded. Slow down.")
		return "rate_limited"
	}

	msg := store.ChatMessage{
		MessageID: ident.MustShortID(6),
		UserID:    c.UserID,
		Username:  c.Username,
		Text:      trimmed,
		Timestamp: time.Now().UTC(),
		Reactions: map[string][]string{},
	}

	h.chat.EnqueueChat(p.RoomID, msg)

	for _, peer := range room.members() {
		peer.sendFrame(EventChatMessage, msg)
	}
	return "ok"
}

// handleChatReaction records an emoji reaction. Reactions require a
// persistent identity because the store deduplicates them per user.
func (h *Hub) handleChatReaction(c *Client, raw json.RawMessage) string {
	if !c.Authenticated {
		c.sendError("Must be authenticated to react")
		return "unauthorized"
	}

	var p chatReactionPayload
	if err := json.Unmarshal(raw, &p); err != nil ||
		p.RoomID == "" || p.MessageID == "" ||
		p.Emoji == "" || utf8.RuneCountInString(p.Emoji) > maxEmojiLength {
		return "invalid"
	}

	room, ok := h.currentRoom(c, p.RoomID)
	if !ok {
		return "invalid"
	}

	h.chat.EnqueueReaction(p.RoomID, p.MessageID, p.Emoji, c.UserID)

	payload := struct {
		MessageID string `json:"messageId"`
		Emoji     string `json:"emoji"`
		UserID    string `json:"userId"`
		Username  string `json:"username"`
	}{p.MessageID, p.Emoji, c.UserID, c.Username}
	for _, peer := range room.members() {
		peer.sendFrame(EventChatReaction, payload)
	}
	return "ok"
}
