// Package mongostore implements the store contracts on MongoDB.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store keeps slots, appointments and users in three collections.
type Store struct {
	client       *mongo.Client
	db           *mongo.Database
	slots        *mongo.Collection
	appointments *mongo.Collection
	users        *mongo.Collection
	logger       *zerolog.Logger
}

// Open connects to uri and prepares indexes in the named database.
func Open(ctx context.Context, uri, database string, logger *zerolog.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:       client,
		db:           db,
		slots:        db.Collection("slots"),
		appointments: db.Collection("appointments"),
		users:        db.Collection("users"),
		logger:       logger,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info().Str("database", database).Msg("MongoDB store initialized")
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.slots.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "date", Value: 1}, {Key: "kind", Value: 1}}},
		{Keys: bson.D{{Key: "date", Value: 1}, {Key: "is_booked", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create slot indexes: %w", err)
	}
	_, err = s.appointments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_deleted", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "is_deleted", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create appointment indexes: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes every collection. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}
