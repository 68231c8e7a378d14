package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/peercall/broker/internal/v1/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Read limit on the transport. Larger than the 64 KiB envelope bound so
	// oversize envelopes reach the validator and are dropped per message
	// instead of killing the whole connection.
	maxReadLimit = 128 * 1024

	// Outgoing message buffer per connection. When full, frames to that
	// client are dropped rather than blocking room fan-out.
	sendBufferSize = 256
)

// wsConnection abstracts the gorilla connection so tests can substitute
// mock connections.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// Client represents one WebSocket connection. Guest and authenticated
// connections are both first-class; Authenticated only gates the few
// operations that demand a persistent identity.
type Client struct {
	hub  *Hub
	conn wsConnection
	send chan []byte

	ID            ConnectionID
	UserID        string // empty for guests
	Username      string
	Authenticated bool

	sendMu sync.Mutex
	closed bool

	mu            sync.RWMutex
	roomID        RoomID
	muted         bool
	videoOff      bool
	handRaised    bool
	screenSharing bool
}

// Room returns the room this connection currently occupies, or "".
func (c *Client) Room() RoomID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

func (c *Client) setRoom(id RoomID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = id
}

// takeRoom atomically clears the room membership and returns the prior
// value. Returning "" means another path already detached this connection,
// which is what keeps user-left single-fire under leave+disconnect races.
func (c *Client) takeRoom() RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	prior := c.roomID
	c.roomID = ""
	return prior
}

func (c *Client) info() ParticipantInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ParticipantInfo{
		ConnectionID:  c.ID,
		UserID:        c.UserID,
		Username:      c.Username,
		Muted:         c.muted,
		VideoOff:      c.videoOff,
		HandRaised:    c.handRaised,
		ScreenSharing: c.screenSharing,
	}
}

func (c *Client) setMuted(v bool)        { c.mu.Lock(); c.muted = v; c.mu.Unlock() }
func (c *Client) setVideoOff(v bool)     { c.mu.Lock(); c.videoOff = v; c.mu.Unlock() }
func (c *Client) setHandRaised(v bool)   { c.mu.Lock(); c.handRaised = v; c.mu.Unlock() }
func (c *Client) setScreenShare(v bool)  { c.mu.Lock(); c.screenSharing = v; c.mu.Unlock() }

// readPump reads frames off the wire and hands them to the hub router.
// It runs in its own goroutine; connection cleanup happens in its defer so
// every exit path (close, timeout, transport error) unregisters exactly once.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug(context.Background(), "websocket read error",
					zap.String("connectionId", string(c.ID)), zap.Error(err))
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Debug(context.Background(), "dropping unparseable frame",
				zap.String("connectionId", string(c.ID)), zap.Error(err))
			continue
		}

		c.hub.route(c, msg)
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendRaw queues a pre-encoded frame, dropping it if the client's buffer
// is full. A slow client never blocks the sender. Frames arriving after
// closeSend are dropped: fan-out works from roster snapshots taken outside
// the hub lock, so a send can race the recipient's teardown.
func (c *Client) sendRaw(data []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		logging.Warn(context.Background(), "client send buffer full, dropping frame",
			zap.String("connectionId", string(c.ID)))
	}
}

// closeSend closes the send channel exactly once. The flag is set under the
// same mutex sendRaw holds, so no send can land on the closed channel.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) sendFrame(event string, payload any) {
	data, err := json.Marshal(Message{Event: event, Payload: mustRaw(payload)})
	if err != nil {
		logging.Error(context.Background(), "failed to encode outbound frame",
			zap.String("event", event), zap.Error(err))
		return
	}
	c.sendRaw(data)
}

func (c *Client) sendError(message string) {
	c.sendFrame(EventErrorMessage, errorPayload{Message: message})
}

func mustRaw(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}
