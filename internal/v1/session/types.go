// Package session implements the real-time broker: WebSocket connection
// lifecycle, in-memory room rosters, the broadcast rendezvous registry,
// signaling relay, and chat fan-out.
package session

import "encoding/json"

// ConnectionID identifies a single WebSocket connection for its lifetime.
type ConnectionID string

// RoomID identifies a room. Newly minted IDs are 8 alphanumeric characters,
// but joins accept up to 128 characters for legacy IDs.
type RoomID string

// Client -> broker events.
const (
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventOffer            = "offer"
	EventAnswer           = "answer"
	EventICECandidate     = "ice-candidate"
	EventChatMessage      = "chat-message"
	EventChatReaction     = "chat-reaction"
	EventToggleMute       = "toggle-mute"
	EventToggleVideo      = "toggle-video"
	EventHandRaise        = "hand-raise"
	EventScreenShareStart = "screen-share-start"
	EventScreenShareStop  = "screen-share-stop"
	EventApproveUser      = "approve-user"
	EventRejectUser       = "reject-user"
	EventCreateBroadcast  = "create-broadcast"
	EventJoinBroadcast    = "join-broadcast"
)

// Broker -> client events.
const (
	EventRoomParticipants     = "room-participants"
	EventUserJoined           = "user-joined"
	EventUserLeft             = "user-left"
	EventUserToggleMute       = "user-toggle-mute"
	EventUserToggleVideo      = "user-toggle-video"
	EventUserHandRaise        = "user-hand-raise"
	EventUserScreenShareStart = "user-screen-share-start"
	EventUserScreenShareStop  = "user-screen-share-stop"
	EventWaitingRoomApproved  = "waiting-room-approved"
	EventWaitingRoomRejected  = "waiting-room-rejected"
	EventWaitingRoomUpdated   = "waiting-room-updated"
	EventBroadcastCreated     = "broadcast-created"
	EventBroadcastJoined      = "broadcast-joined"
	EventViewerJoined         = "viewer-joined"
	EventBroadcastNotFound    = "broadcast-not-found"
	EventErrorMessage         = "error-message"
)

// Message is the wire frame: a named event with a single JSON argument.
// The payload stays raw until the handler for the event decodes it, so
// malformed shapes are caught once at the edge.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParticipantInfo is the roster entry shared with clients.
type ParticipantInfo struct {
	ConnectionID ConnectionID `json:"connectionId"`
	UserID       string       `json:"userId,omitempty"`
	Username     string       `json:"username"`
	Muted        bool         `json:"muted"`
	VideoOff     bool         `json:"videoOff"`
	HandRaised   bool         `json:"handRaised"`
	ScreenSharing bool        `json:"screenSharing"`
}

// --- Inbound payload shapes ---

type joinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type chatMessagePayload struct {
	RoomID  string          `json:"roomId"`
	Message json.RawMessage `json:"message"`
}

type chatReactionPayload struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type toggleMutePayload struct {
	RoomID string `json:"roomId"`
	Muted  *bool  `json:"muted"`
}

type toggleVideoPayload struct {
	RoomID   string `json:"roomId"`
	VideoOff *bool  `json:"videoOff"`
}

type handRaisePayload struct {
	RoomID string `json:"roomId"`
	Raised *bool  `json:"raised"`
}

type screenSharePayload struct {
	RoomID string `json:"roomId"`
}

type waitingRoomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type broadcastPayload struct {
	BroadcastID string `json:"broadcastId"`
}

// --- Outbound payload shapes ---

type userJoinedPayload struct {
	ConnectionID ConnectionID `json:"connectionId"`
	UserID       string       `json:"userId,omitempty"`
	Username     string       `json:"username"`
}

type userLeftPayload struct {
	ConnectionID ConnectionID `json:"connectionId"`
	Username     string       `json:"username"`
}

type errorPayload struct {
	Message string `json:"message"`
}
