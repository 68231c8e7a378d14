package session

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/peercall/broker/internal/v1/auth"
	"github.com/peercall/broker/internal/v1/ident"
	"github.com/peercall/broker/internal/v1/logging"
	"github.com/peercall/broker/internal/v1/metrics"
	"github.com/peercall/broker/internal/v1/ratelimit"
	"github.com/peercall/broker/internal/v1/store"
)

// TokenValidator authenticates handshake tokens. Implemented by
// auth.Service in production and by mocks in tests.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// UserLookup resolves a userId to its stored profile for display names.
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*store.User, error)
}

// RoomRecords is the slice of the durable room store the hub needs for
// waiting-room management.
type RoomRecords interface {
	Get(ctx context.Context, roomID string) (*store.Room, error)
	UpdateWaitingRoom(ctx context.Context, roomID string, userIDs []string) error
}

// ChatSink receives chat traffic for durable persistence. Writes are
// fire-and-forget from the relay's perspective.
type ChatSink interface {
	EnqueueChat(roomID string, msg store.ChatMessage)
	EnqueueReaction(roomID, messageID, emoji, userID string)
}

// Hub is the central coordinator: it owns the connection registry, the room
// runtime, and the broadcast registry, and routes every inbound frame.
type Hub struct {
	mu        sync.RWMutex
	conns     map[ConnectionID]*Client
	userConns map[string]map[ConnectionID]*Client
	rooms     map[RoomID]*Room

	broadcasts  *BroadcastRegistry
	validator   TokenValidator
	users       UserLookup
	records     RoomRecords
	chat        ChatSink
	chatLimiter *ratelimit.ChatLimiter

	corsOrigin string
}

// NewHub wires the hub with its collaborators. corsOrigin is the single
// allowed browser origin; "*" disables the origin check.
func NewHub(validator TokenValidator, users UserLookup, records RoomRecords, chat ChatSink, corsOrigin string) *Hub {
	return &Hub{
		conns:       make(map[ConnectionID]*Client),
		userConns:   make(map[string]map[ConnectionID]*Client),
		rooms:       make(map[RoomID]*Room),
		broadcasts:  NewBroadcastRegistry(),
		validator:   validator,
		users:       users,
		records:     records,
		chat:        chat,
		chatLimiter: ratelimit.NewChatLimiter(),
		corsOrigin:  corsOrigin,
	}
}

// ServeWs upgrades the HTTP request to a WebSocket connection. A valid
// bearer token in the `token` query parameter yields an authenticated
// connection; anything else falls back to a first-class guest identity.
// The handshake never touches the database synchronously except for the
// authenticated display-name lookup, which is bounded by a short timeout.
func (h *Hub) ServeWs(c *gin.Context) {
	userID, username, authenticated := h.resolveIdentity(c.Request.Context(), c.Query("token"))

	upgrader := websocket.Upgrader{
		CheckOrigin: h.checkOrigin,
		WriteBufferPool: &sync.Pool{
			New: func() any { return make([]byte, 4096) },
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		ID:            ConnectionID(ident.MustShortID(8)),
		UserID:        userID,
		Username:      username,
		Authenticated: authenticated,
	}

	h.register(client)

	logging.Info(c.Request.Context(), "websocket connected",
		zap.String("connectionId", string(client.ID)),
		zap.String("username", client.Username),
		zap.Bool("authenticated", client.Authenticated))

	go client.writePump()
	go client.readPump()
}

// resolveIdentity validates the optional handshake token. Invalid or missing
// tokens produce a guest identity rather than a rejection.
func (h *Hub) resolveIdentity(ctx context.Context, token string) (userID, username string, authenticated bool) {
	if token == "" {
		return "", "Guest_" + ident.MustShortID(3), false
	}

	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		logging.Debug(ctx, "handshake token rejected, connecting as guest", zap.Error(err))
		return "", "Guest_" + ident.MustShortID(3), false
	}

	username = "User_" + claims.UserID
	lookupCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if user, err := h.users.GetUser(lookupCtx, claims.UserID); err == nil {
		username = user.Username
	} else {
		logging.Warn(ctx, "username lookup failed, using fallback",
			zap.String("userId", claims.UserID), zap.Error(err))
	}
	return claims.UserID, username, true
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.corsOrigin == "" || h.corsOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients carry no Origin header.
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	allowedURL, err := url.Parse(h.corsOrigin)
	if err != nil {
		return false
	}
	return originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[c.ID] = c
	if c.Authenticated {
		if h.userConns[c.UserID] == nil {
			h.userConns[c.UserID] = make(map[ConnectionID]*Client)
		}
		h.userConns[c.UserID][c.ID] = c
	}
	metrics.ActiveConnections.Inc()
}

// unregister tears down all broker state owned by the connection. It is
// called exactly once, from readPump's defer, but the room detach inside is
// idempotent against an earlier leave-room.
func (h *Hub) unregister(c *Client) {
	h.detachFromRoom(c)
	h.broadcasts.RemoveOwner(c.ID)
	h.chatLimiter.Forget(string(c.ID))

	h.mu.Lock()
	if _, ok := h.conns[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.ID)
	if c.Authenticated {
		if set := h.userConns[c.UserID]; set != nil {
			delete(set, c.ID)
			if len(set) == 0 {
				delete(h.userConns, c.UserID)
			}
		}
	}
	metrics.ActiveConnections.Dec()
	h.mu.Unlock()

	c.closeSend()

	logging.Info(context.Background(), "websocket disconnected",
		zap.String("connectionId", string(c.ID)),
		zap.String("username", c.Username))
}

// lookup finds a live connection by ID.
func (h *Hub) lookup(id ConnectionID) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

// connectionsOfUser snapshots every live connection for a userId.
func (h *Hub) connectionsOfUser(userID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.userConns[userID]
	out := make([]*Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// attachToRoom inserts the connection into the room's roster, creating the
// runtime entry on first join. Attach and detach both run under the hub lock
// so a join can never land on a room object that an emptying leave already
// dropped from the registry.
func (h *Hub) attachToRoom(c *Client, id RoomID) (roster []ParticipantInfo, others []*Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[id]
	if !ok {
		room = newRoom(id)
		h.rooms[id] = room
		metrics.ActiveRooms.Inc()
		logging.Info(context.Background(), "room runtime created", zap.String("roomId", string(id)))
	}
	roster, others = room.add(c)
	c.setRoom(id)
	metrics.RoomParticipants.WithLabelValues(string(id)).Set(float64(room.size()))
	return roster, others
}

// room returns the live room, if any.
func (h *Hub) room(id RoomID) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[id]
	return r, ok
}

// detachFromRoom removes the connection from whichever room it occupies and
// notifies the remaining participants. The takeRoom swap makes it idempotent:
// leave-room followed immediately by disconnect emits user-left once.
// An emptied room's runtime entry is dropped immediately.
func (h *Hub) detachFromRoom(c *Client) {
	roomID := c.takeRoom()
	if roomID == "" {
		return
	}

	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	removed, remaining, empty := room.remove(c)
	if removed {
		metrics.RoomParticipants.WithLabelValues(string(roomID)).Set(float64(room.size()))
	}
	if empty {
		delete(h.rooms, roomID)
		metrics.ActiveRooms.Dec()
		metrics.RoomParticipants.DeleteLabelValues(string(roomID))
		logging.Info(context.Background(), "room runtime removed", zap.String("roomId", string(roomID)))
	}
	h.mu.Unlock()

	if !removed {
		return
	}

	payload := userLeftPayload{ConnectionID: c.ID, Username: c.Username}
	for _, peer := range remaining {
		peer.sendFrame(EventUserLeft, payload)
	}
}

// ActiveRoomCount reports the number of live rooms, for the health endpoint.
func (h *Hub) ActiveRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Shutdown closes every live connection. Pump goroutines observe the closed
// transport and unwind through the normal unregister path.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.conn.Close()
	}
}
