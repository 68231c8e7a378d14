package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserStore persists users in the "users" collection, keyed by userId with
// unique indexes on email and username.
type UserStore struct {
	coll *mongo.Collection
}

// EnsureIndexes creates the unique indexes the credential surface relies on.
// Called once at boot.
func (s *UserStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_email"),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_username"),
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

// Create inserts a new user. Duplicate email/username surfaces as
// ErrEmailTaken or ErrUsernameTaken via the unique indexes, which closes the
// race left open by the pre-insert existence checks.
func (s *UserStore) Create(ctx context.Context, user *User) error {
	_, err := s.coll.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicateUserError(err)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByEmail returns the user registered under the given (lowercased) email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.coll.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// GetByID returns the user with the given ID.
func (s *UserStore) GetByID(ctx context.Context, userID string) (*User, error) {
	var user User
	err := s.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// EmailExists reports whether a user is registered under the email.
func (s *UserStore) EmailExists(ctx context.Context, email string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"email": email}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count users by email: %w", err)
	}
	return n > 0, nil
}

// UsernameExists reports whether a user is registered under the username.
func (s *UserStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"username": username}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count users by username: %w", err)
	}
	return n > 0, nil
}

// duplicateUserError maps a duplicate-key error to the field that collided.
// The driver only exposes the index name inside the error text.
func duplicateUserError(err error) error {
	if strings.Contains(err.Error(), "uniq_username") {
		return ErrUsernameTaken
	}
	return ErrEmailTaken
}
