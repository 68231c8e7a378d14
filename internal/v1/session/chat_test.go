package session

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peercall/broker/internal/v1/ratelimit"
	"github.com/peercall/broker/internal/v1/store"
)

func chatPayload(roomID, message string) json.RawMessage {
	return mustRaw(map[string]any{"roomId": roomID, "message": message})
}

func TestChatMessageFansOutIncludingSender(t *testing.T) {
	h, _, sink := newTestHub()
	a := newTestClient(h, "conn-a", "alice", "user-a")
	b := newTestClient(h, "conn-b", "bob", "")

	mustJoin(t, h, a, "room-1")
	mustJoin(t, h, b, "room-1")
	drain(a)

	h.route(a, Message{Event: EventChatMessage, Payload: chatPayload("room-1", "hello there")})

	var fromA, fromB store.ChatMessage
	msg := recvFrame(t, a)
	require.Equal(t, EventChatMessage, msg.Event)
	decodePayload(t, msg, &fromA)

	msg = recvFrame(t, b)
	require.Equal(t, EventChatMessage, msg.Event)
	decodePayload(t, msg, &fromB)

	assert.Equal(t, fromA.MessageID, fromB.MessageID)
	assert.Len(t, fromA.MessageID, 12)
	assert.Equal(t, "hello there", fromA.Text)
	assert.Equal(t, "alice", fromA.Username)
	assert.Equal(t, "user-a", fromA.UserID)
	assert.NotZero(t, fromA.Timestamp)
	assert.NotNil(t, fromA.Reactions)
	assert.Empty(t, fromA.Reactions)

	assert.Equal(t, 1, sink.chatCount())
}

func TestChatMessageTrimsWhitespace(t *testing.T) {
	h, _, sink := newTestHub()
	a := newTestClient(h, "conn-a", "alice", "")
	mustJoin(t, h, a, "room-1")

	h.route(a, Message{Event: EventChatMessage, Payload: chatPayload("room-1", "  padded  ")})

	var out store.ChatMessage
	decodePayload(t, recvFrame(t, a), &out)
	assert.Equal(t, "padded", out.Text)
	assert.Equal(t, 1, sink.chatCount())
}

func TestChatMessageValidation(t *testing.T) {
	h, _, sink := newTestHub()
	a := newTestClient(h, "conn-a", "alice", "")
	mustJoin(t, h, a, "room-1")

	cases := []struct {
		name    string
		payload json.RawMessage
		want    string
	}{
		{"missing roomId", chatPayload("", "hi"), "Valid roomId is required"},
		{"wrong room", chatPayload("other-room", "hi"), "Valid roomId is required"},
		{"non-string message", mustRaw(map[string]any{"roomId": "room-1", "message": 42}), "Valid message is required"},
		{"empty message", chatPayload("room-1", "   "), "Valid message is required"},
		{"too long", chatPayload("room-1", strings.Repeat("a", maxChatMessageLength+1)), "Valid message is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h.route(a, Message{Event: EventChatMessage, Payload: tc.payload})
			msg := recvFrame(t, a)
			require.Equal(t, EventErrorMessage, msg.Event)
			var ep errorPayload
			decodePayload(t, msg, &ep)
			assert.Equal(t, tc.want, ep.Message)
		})
	}
	assert.Equal(t, 0, sink.chatCount())
}

func TestChatRateLimitRejectsEleventhMessage(t *testing.T) {
	h, _, sink := newTestHub()
	a := newTestClient(h, "conn-a", "alice", "")
	b := newTestClient(h, "conn-b", "bob", "")
	mustJoin(t, h, a, "room-1")
	mustJoin(t, h, b, "room-1")
	drain(a)

	for i := 0; i < ratelimit.ChatLimit; i++ {
		h.route(a, Message{Event: EventChatMessage, Payload: chatPayload("room-1", "spam")})
		msg := recvFrame(t, a)
		require.Equal(t, EventChatMessage, msg.Event)
	}

	h.route(a, Message{Event: EventChatMessage, Payload: chatPayload("room-1", "one too many")})

	msg := recvFrame(t, a)
	require.Equal(t, EventErrorMessage, msg.Event)
	var ep errorPayload
	decodePayload(t, msg, &ep)
	assert.Equal(t, "Chat rate limit exceeded. Slow down.", ep.Message)

	// B saw the ten accepted messages and nothing more.
	for i := 0; i < ratelimit.ChatLimit; i++ {
		msg := recvFrame(t, b)
		assert.Equal(t, EventChatMessage, msg.Event)
	}
	requireNoFrame(t, b)
	assert.Equal(t, ratelimit.ChatLimit, sink.chatCount())
}

func TestChatReactionRequiresAuthentication(t *testing.T) {
	h, _, _ := newTestHub()
	guest := newTestClient(h, "conn-g", "Guest_abc123", "")
	mustJoin(t, h, guest, "room-1")

	h.route(guest, Message{Event: EventChatReaction, Payload: mustRaw(chatReactionPayload{
		RoomID: "room-1", MessageID: "msg-1", Emoji: "🔥",
	})})

	msg := recvFrame(t, guest)
	require.Equal(t, EventErrorMessage, msg.Event)
	var ep errorPayload
	decodePayload(t, msg, &ep)
	assert.Equal(t, "Must be authenticated to react", ep.Message)
}

func TestChatReactionFansOutAndPersists(t *testing.T) {
	h, _, sink := newTestHub()
	a := newTestClient(h, "conn-a", "alice", "user-a")
	b := newTestClient(h, "conn-b", "bob", "")
	mustJoin(t, h, a, "room-1")
	mustJoin(t, h, b, "room-1")
	drain(a)

	h.route(a, Message{Event: EventChatReaction, Payload: mustRaw(chatReactionPayload{
		RoomID: "room-1", MessageID: "msg-1", Emoji: "👍",
	})})

	for _, c := range []*Client{a, b} {
		msg := recvFrame(t, c)
		require.Equal(t, EventChatReaction, msg.Event)
		var p struct {
			MessageID string `json:"messageId"`
			Emoji     string `json:"emoji"`
			UserID    string `json:"userId"`
			Username  string `json:"username"`
		}
		decodePayload(t, msg, &p)
		assert.Equal(t, "msg-1", p.MessageID)
		assert.Equal(t, "👍", p.Emoji)
		assert.Equal(t, "user-a", p.UserID)
		assert.Equal(t, "alice", p.Username)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.reactions, 1)
	assert.Equal(t, "room-1/msg-1/👍/user-a", sink.reactions[0])
}

func TestChatReactionRejectsOversizeEmoji(t *testing.T) {
	h, _, sink := newTestHub()
	a := newTestClient(h, "conn-a", "alice", "user-a")
	mustJoin(t, h, a, "room-1")

	h.route(a, Message{Event: EventChatReaction, Payload: mustRaw(chatReactionPayload{
		RoomID: "room-1", MessageID: "msg-1", Emoji: strings.Repeat("👍", maxEmojiLength+1),
	})})

	requireNoFrame(t, a)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Empty(t, sink.reactions)
}
