package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/peercall/broker/internal/v1/auth"
	"github.com/peercall/broker/internal/v1/store"
)

// mockValidator implements TokenValidator.
type mockValidator struct {
	userID     string
	shouldFail bool
}

func (m *mockValidator) ValidateToken(tokenString string) (*auth.Claims, error) {
	if m.shouldFail {
		return nil, errors.New("invalid token")
	}
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: m.userID},
		UserID:           m.userID,
	}, nil
}

// mockUserLookup implements UserLookup.
type mockUserLookup struct {
	users map[string]*store.User
}

func (m *mockUserLookup) GetUser(ctx context.Context, userID string) (*store.User, error) {
	if u, ok := m.users[userID]; ok {
		return u, nil
	}
	return nil, store.ErrUserNotFound
}

// mockRoomRecords implements RoomRecords.
type mockRoomRecords struct {
	mu      sync.Mutex
	rooms   map[string]*store.Room
	updated map[string][]string
	getErr  error
}

func newMockRoomRecords() *mockRoomRecords {
	return &mockRoomRecords{
		rooms:   make(map[string]*store.Room),
		updated: make(map[string][]string),
	}
}

func (m *mockRoomRecords) Get(ctx context.Context, roomID string) (*store.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, store.ErrRoomNotFound
	}
	cp := *r
	cp.WaitingRoom = append([]string(nil), r.WaitingRoom...)
	return &cp, nil
}

func (m *mockRoomRecords) UpdateWaitingRoom(ctx context.Context, roomID string, userIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated[roomID] = append([]string(nil), userIDs...)
	if r, ok := m.rooms[roomID]; ok {
		r.WaitingRoom = append([]string(nil), userIDs...)
	}
	return nil
}

// mockChatSink implements ChatSink and records everything enqueued.
type mockChatSink struct {
	mu        sync.Mutex
	messages  []store.ChatMessage
	reactions []string
}

func (m *mockChatSink) EnqueueChat(roomID string, msg store.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func (m *mockChatSink) EnqueueReaction(roomID, messageID, emoji, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(m.reactions, roomID+"/"+messageID+"/"+emoji+"/"+userID)
}

func (m *mockChatSink) chatCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// mockConn satisfies wsConnection for clients that never run their pumps.
type mockConn struct {
	once   sync.Once
	closed chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{closed: make(chan struct{})}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	<-m.closed
	return 0, nil, errors.New("connection closed")
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error { return nil }

func (m *mockConn) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConn) SetReadLimit(limit int64)                  {}
func (m *mockConn) SetReadDeadline(t time.Time) error         { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error        { return nil }
func (m *mockConn) SetPongHandler(h func(string) error)       {}

func newTestHub() (*Hub, *mockRoomRecords, *mockChatSink) {
	records := newMockRoomRecords()
	sink := &mockChatSink{}
	hub := NewHub(
		&mockValidator{userID: "user-1"},
		&mockUserLookup{users: map[string]*store.User{}},
		records,
		sink,
		"*",
	)
	return hub, records, sink
}

// newTestClient registers a connection directly with the hub, bypassing the
// HTTP handshake.
func newTestClient(h *Hub, id ConnectionID, username, userID string) *Client {
	c := &Client{
		hub:           h,
		conn:          newMockConn(),
		send:          make(chan []byte, sendBufferSize),
		ID:            id,
		UserID:        userID,
		Username:      username,
		Authenticated: userID != "",
	}
	h.register(c)
	return c
}

// recvFrame pops one decoded frame off the client's send buffer.
func recvFrame(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("expected a frame, got none")
		return Message{}
	}
}

// requireNoFrame asserts the client's send buffer stays empty.
func requireNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("expected no frame, got %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

// decodePayload unmarshals a frame payload into out.
func decodePayload(t *testing.T, msg Message, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(msg.Payload, out))
}

// mustJoin drives a connection into a room and drains its roster frame.
func mustJoin(t *testing.T, h *Hub, c *Client, roomID string) {
	t.Helper()
	h.route(c, Message{Event: EventJoinRoom, Payload: mustRaw(joinRoomPayload{RoomID: roomID})})
	msg := recvFrame(t, c)
	require.Equal(t, EventRoomParticipants, msg.Event)
}

// drain empties any frames already buffered for the client.
func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}
