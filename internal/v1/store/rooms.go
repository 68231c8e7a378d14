package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/peercall/broker/internal/v1/ident"
	"github.com/peercall/broker/internal/v1/logging"
)

const (
	// RoomIDLength is the length of newly minted room identifiers. Joins
	// accept longer legacy IDs; only minting is pinned to 8.
	RoomIDLength = 8

	// createRetries bounds the ID-collision retry loop in Create. With a
	// 62^8 space the second attempt is already vanishingly rare.
	createRetries = 5
)

// RoomStore persists rooms in the "rooms" collection, keyed by roomId.
type RoomStore struct {
	coll *mongo.Collection
}

// NewRoomInput carries the creator-supplied room attributes.
type NewRoomInput struct {
	Name               string
	CreatorUserID      string
	IsPrivate          bool
	PasswordHash       string
	WaitingRoomEnabled bool
}

// Create inserts a room under a freshly minted 8-character ID, retrying with
// a new ID when the unique _id constraint collides.
func (s *RoomStore) Create(ctx context.Context, input NewRoomInput) (*Room, error) {
	for attempt := 0; attempt < createRetries; attempt++ {
		roomID, err := ident.RoomID(RoomIDLength)
		if err != nil {
			return nil, fmt.Errorf("mint room ID: %w", err)
		}

		room := &Room{
			ID:                 roomID,
			Name:               input.Name,
			CreatorUserID:      input.CreatorUserID,
			IsPrivate:          input.IsPrivate,
			PasswordHash:       input.PasswordHash,
			WaitingRoomEnabled: input.WaitingRoomEnabled,
			WaitingRoom:        []string{},
			ChatMessages:       []ChatMessage{},
			CreatedAt:          time.Now().UTC(),
		}

		_, err = s.coll.InsertOne(ctx, room)
		if err == nil {
			return room, nil
		}
		if mongo.IsDuplicateKeyError(err) {
			logging.Warn(ctx, "Room ID collision, retrying", zap.String("room_id", roomID))
			continue
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}
	return nil, ErrIDExhausted
}

// Get returns the room with the given ID.
func (s *RoomStore) Get(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	err := s.coll.FindOne(ctx, bson.M{"_id": roomID}).Decode(&room)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("find room: %w", err)
	}
	return &room, nil
}

// AppendChat appends one message to the room's chat log. Creating the room
// record on demand is deliberate: chat can arrive for legacy room IDs that
// were never minted through the REST surface.
func (s *RoomStore) AppendChat(ctx context.Context, roomID string, msg ChatMessage) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": roomID},
		bson.M{
			"$push":        bson.M{"chatMessages": msg},
			"$setOnInsert": setOnInsertRoom(roomID),
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("append chat to room %s: %w", roomID, err)
	}
	return nil
}

// AddReaction records one user's emoji reaction on a message. $addToSet keeps
// the per-emoji user set deduplicated.
func (s *RoomStore) AddReaction(ctx context.Context, roomID, messageID, emoji, userID string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": roomID, "chatMessages.messageId": messageID},
		bson.M{"$addToSet": bson.M{"chatMessages.$.reactions." + emoji: userID}},
	)
	if err != nil {
		return fmt.Errorf("add reaction to message %s: %w", messageID, err)
	}
	if res.MatchedCount == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// UpdateWaitingRoom replaces the persisted waiting-room list.
func (s *RoomStore) UpdateWaitingRoom(ctx context.Context, roomID string, userIDs []string) error {
	if userIDs == nil {
		userIDs = []string{}
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": roomID},
		bson.M{"$set": bson.M{"waitingRoom": userIDs}},
	)
	if err != nil {
		return fmt.Errorf("update waiting room for %s: %w", roomID, err)
	}
	if res.MatchedCount == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func setOnInsertRoom(roomID string) bson.M {
	return bson.M{
		"name":               roomID,
		"creatorUserId":      "",
		"isPrivate":          false,
		"waitingRoomEnabled": false,
		"waitingRoom":        []string{},
		"createdAt":          time.Now().UTC(),
	}
}
