// Package store persists users and rooms in MongoDB and owns the async chat
// writer that keeps persistence off the relay path.
package store

import (
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrRoomNotFound is returned when no room matches the lookup.
	ErrRoomNotFound = errors.New("room not found")
	// ErrEmailTaken is returned when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUsernameTaken is returned when the username is already registered.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrIDExhausted is returned when room ID generation keeps colliding.
	ErrIDExhausted = errors.New("could not allocate a unique room ID")
)

// User is the persistent identity record. The password hash never leaves the
// process: it is excluded from JSON serialization.
type User struct {
	ID           string    `bson:"_id" json:"userId"`
	Email        string    `bson:"email" json:"email"`
	Username     string    `bson:"username" json:"username"`
	PasswordHash string    `bson:"passwordHash" json:"-"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

// ChatMessage is one entry of a room's append-only chat log. Reactions map an
// emoji to the set of user IDs that reacted with it.
type ChatMessage struct {
	MessageID string              `bson:"messageId" json:"messageId"`
	UserID    string              `bson:"userId,omitempty" json:"userId,omitempty"`
	Username  string              `bson:"username" json:"username"`
	Text      string              `bson:"text" json:"message"`
	Timestamp time.Time           `bson:"timestamp" json:"timestamp"`
	Reactions map[string][]string `bson:"reactions" json:"reactions"`
}

// Room is the persistent room record. The in-memory roster lives in the
// session package; this document carries everything that must survive the
// process.
type Room struct {
	ID                 string        `bson:"_id" json:"roomId"`
	Name               string        `bson:"name" json:"name"`
	CreatorUserID      string        `bson:"creatorUserId" json:"creatorUserId"`
	IsPrivate          bool          `bson:"isPrivate" json:"isPrivate"`
	PasswordHash       string        `bson:"passwordHash,omitempty" json:"-"`
	WaitingRoomEnabled bool          `bson:"waitingRoomEnabled" json:"waitingRoomEnabled"`
	WaitingRoom        []string      `bson:"waitingRoom" json:"waitingRoom"`
	ChatMessages       []ChatMessage `bson:"chatMessages" json:"chatMessages"`
	CreatedAt          time.Time     `bson:"createdAt" json:"createdAt"`
}
