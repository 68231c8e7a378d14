package session

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/peercall/broker/internal/v1/logging"
	"github.com/peercall/broker/internal/v1/metrics"
)

const maxRoomIDLength = 128

// route dispatches one inbound frame to its handler. Unknown events are
// dropped without a reply.
func (h *Hub) route(c *Client, msg Message) {
	start := time.Now()
	status := "ok"

	switch msg.Event {
	case EventJoinRoom:
		status = h.handleJoinRoom(c, msg.Payload)
	case EventLeaveRoom:
		h.detachFromRoom(c)
	case EventOffer, EventAnswer, EventICECandidate:
		status = h.handleSignal(c, msg.Event, msg.Payload)
	case EventChatMessage:
		status = h.handleChatMessage(c, msg.Payload)
	case EventChatReaction:
		status = h.handleChatReaction(c, msg.Payload)
	case EventToggleMute:
		status = h.handleToggleMute(c, msg.Payload)
	case EventToggleVideo:
		status = h.handleToggleVideo(c, msg.Payload)
	case EventHandRaise:
		status = h.handleHandRaise(c, msg.Payload)
	case EventScreenShareStart:
		status = h.handleScreenShare(c, msg.Payload, true)
	case EventScreenShareStop:
		status = h.handleScreenShare(c, msg.Payload, false)
	case EventApproveUser:
		status = h.handleWaitingRoom(c, msg.Payload, true)
	case EventRejectUser:
		status = h.handleWaitingRoom(c, msg.Payload, false)
	case EventCreateBroadcast:
		status = h.handleCreateBroadcast(c, msg.Payload)
	case EventJoinBroadcast:
		status = h.handleJoinBroadcast(c, msg.Payload)
	default:
		status = "unknown_event"
	}

	metrics.WebsocketEvents.WithLabelValues(msg.Event, status).Inc()
	metrics.MessageProcessingDuration.WithLabelValues(msg.Event).Observe(time.Since(start).Seconds())
}

// handleJoinRoom moves the connection into a room, leaving its current room
// first if it has one. The joiner alone receives the full roster snapshot;
// everyone already present receives user-joined.
func (h *Hub) handleJoinRoom(c *Client, raw json.RawMessage) string {
	var p joinRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" || len(p.RoomID) > maxRoomIDLength {
		c.sendError("Valid roomId is required")
		return "invalid"
	}

	h.detachFromRoom(c)

	roster, others := h.attachToRoom(c, RoomID(p.RoomID))

	joined := userJoinedPayload{ConnectionID: c.ID, UserID: c.UserID, Username: c.Username}
	for _, peer := range others {
		peer.sendFrame(EventUserJoined, joined)
	}
	c.sendFrame(EventRoomParticipants, roster)

	logging.Info(context.Background(), "participant joined room",
		zap.String("roomId", p.RoomID),
		zap.String("connectionId", string(c.ID)))
	return "ok"
}

// currentRoom resolves the live room the connection claims to be in.
// Presence events name a room explicitly; a mismatch with the connection's
// actual membership is rejected silently.
func (h *Hub) currentRoom(c *Client, claimedRoomID string) (*Room, bool) {
	if claimedRoomID == "" || RoomID(claimedRoomID) != c.Room() {
		return nil, false
	}
	return h.room(RoomID(claimedRoomID))
}

func (h *Hub) handleToggleMute(c *Client, raw json.RawMessage) string {
	var p toggleMutePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Muted == nil {
		return "invalid"
	}
	room, ok := h.currentRoom(c, p.RoomID)
	if !ok {
		return "invalid"
	}

	c.setMuted(*p.Muted)
	payload := struct {
		ConnectionID ConnectionID `json:"connectionId"`
		Muted        bool         `json:"muted"`
	}{c.ID, *p.Muted}
	for _, peer := range room.others(c.ID) {
		peer.sendFrame(EventUserToggleMute, payload)
	}
	return "ok"
}

func (h *Hub) handleToggleVideo(c *Client, raw json.RawMessage) string {
	var p toggleVideoPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.VideoOff == nil {
		return "invalid"
	}
	room, ok := h.currentRoom(c, p.RoomID)
	if !ok {
		return "invalid"
	}

	c.setVideoOff(*p.VideoOff)
	payload := struct {
		ConnectionID ConnectionID `json:"connectionId"`
		VideoOff     bool         `json:"videoOff"`
	}{c.ID, *p.VideoOff}
	for _, peer := range room.others(c.ID) {
		peer.sendFrame(EventUserToggleVideo, payload)
	}
	return "ok"
}

func (h *Hub) handleHandRaise(c *Client, raw json.RawMessage) string {
	var p handRaisePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Raised == nil {
		return "invalid"
	}
	room, ok := h.currentRoom(c, p.RoomID)
	if !ok {
		return "invalid"
	}

	c.setHandRaised(*p.Raised)
	payload := struct {
		ConnectionID ConnectionID `json:"connectionId"`
		Username     string       `json:"username"`
		Raised       bool         `json:"raised"`
	}{c.ID, c.Username, *p.Raised}
	for _, peer := range room.others(c.ID) {
		peer.sendFrame(EventUserHandRaise, payload)
	}
	return "ok"
}

func (h *Hub) handleScreenShare(c *Client, raw json.RawMessage, start bool) string {
	var p screenSharePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "invalid"
	}
	room, ok := h.currentRoom(c, p.RoomID)
	if !ok {
		return "invalid"
	}

	c.setScreenShare(start)
	if start {
		payload := struct {
			ConnectionID ConnectionID `json:"connectionId"`
			Username     string       `json:"username"`
		}{c.ID, c.Username}
		for _, peer := range room.others(c.ID) {
			peer.sendFrame(EventUserScreenShareStart, payload)
		}
	} else {
		payload := struct {
			ConnectionID ConnectionID `json:"connectionId"`
		}{c.ID}
		for _, peer := range room.others(c.ID) {
			peer.sendFrame(EventUserScreenShareStop, payload)
		}
	}
	return "ok"
}

// handleWaitingRoom approves or rejects a waiting user. The creator check is
// authoritative against the durable room record, not the live roster, so a
// reconnected host keeps their authority and a spoofed claim gains none.
func (h *Hub) handleWaitingRoom(c *Client, raw json.RawMessage, approve bool) string {
	var p waitingRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" || p.UserID == "" {
		return "invalid"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	record, err := h.records.Get(ctx, p.RoomID)
	if err != nil {
		logging.Warn(ctx, "waiting-room lookup failed",
			zap.String("roomId", p.RoomID), zap.Error(err))
		c.sendError("Only room creator can manage waiting room")
		return "error"
	}
	if !c.Authenticated || c.UserID != record.CreatorUserID {
		c.sendError("Only room creator can manage waiting room")
		return "forbidden"
	}

	waiting := set.New(record.WaitingRoom...)
	if waiting.Has(p.UserID) {
		updated := make([]string, 0, len(record.WaitingRoom)-1)
		for _, id := range record.WaitingRoom {
			if id != p.UserID {
				updated = append(updated, id)
			}
		}
		// Best effort: the in-memory decision stands even if the write fails.
		if err := h.records.UpdateWaitingRoom(ctx, p.RoomID, updated); err != nil {
			logging.Error(ctx, "waiting-room update failed",
				zap.String("roomId", p.RoomID), zap.Error(err))
		}
		record.WaitingRoom = updated
	}

	event := EventWaitingRoomRejected
	if approve {
		event = EventWaitingRoomApproved
	}
	decision := struct {
		RoomID string `json:"roomId"`
	}{p.RoomID}
	for _, target := range h.connectionsOfUser(p.UserID) {
		target.sendFrame(event, decision)
	}

	c.sendFrame(EventWaitingRoomUpdated, struct {
		WaitingRoom []string `json:"waitingRoom"`
	}{record.WaitingRoom})
	return "ok"
}

func (h *Hub) handleCreateBroadcast(c *Client, raw json.RawMessage) string {
	var p broadcastPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.BroadcastID == "" || len(p.BroadcastID) > maxBroadcastIDLength {
		c.sendError("Valid broadcastId is required")
		return "invalid"
	}

	if err := h.broadcasts.Register(p.BroadcastID, c.ID); err != nil {
		// Deliberately the same message as validation failure, so broadcast
		// IDs cannot be enumerated by probing.
		c.sendError("Valid broadcastId is required")
		return "conflict"
	}

	c.sendFrame(EventBroadcastCreated, struct {
		BroadcastID string `json:"broadcastId"`
	}{p.BroadcastID})
	return "ok"
}

func (h *Hub) handleJoinBroadcast(c *Client, raw json.RawMessage) string {
	var p broadcastPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.BroadcastID == "" {
		c.sendError("Valid broadcastId is required")
		return "invalid"
	}

	publisherID, ok := h.broadcasts.Lookup(p.BroadcastID)
	if !ok {
		c.sendFrame(EventBroadcastNotFound, struct {
			BroadcastID string `json:"broadcastId"`
		}{p.BroadcastID})
		return "not_found"
	}
	publisher, ok := h.lookup(publisherID)
	if !ok {
		c.sendFrame(EventBroadcastNotFound, struct {
			BroadcastID string `json:"broadcastId"`
		}{p.BroadcastID})
		return "not_found"
	}

	publisher.sendFrame(EventViewerJoined, struct {
		ViewerConnectionID ConnectionID `json:"viewerConnectionId"`
	}{c.ID})
	c.sendFrame(EventBroadcastJoined, struct {
		PublisherConnectionID ConnectionID `json:"publisherConnectionId"`
	}{publisherID})
	return "ok"
}
