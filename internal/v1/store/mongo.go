package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/peercall/broker/internal/v1/logging"
)

// Client wraps the MongoDB connection shared by the stores.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens the MongoDB connection and verifies it with a ping. An
// unreachable database at boot is fatal for the process, so the caller is
// expected to exit on error.
func Connect(ctx context.Context, uri, dbName string) (*Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	logging.Info(ctx, "Connected to MongoDB", zap.String("database", dbName))

	return &Client{
		client: client,
		db:     client.Database(dbName),
	}, nil
}

// Ping verifies database connectivity. Used by readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Users returns the user store bound to this connection.
func (c *Client) Users() *UserStore {
	return &UserStore{coll: c.db.Collection("users")}
}

// Rooms returns the room store bound to this connection.
func (c *Client) Rooms() *RoomStore {
	return &RoomStore{coll: c.db.Collection("rooms")}
}
