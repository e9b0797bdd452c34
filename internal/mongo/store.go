// Package mongo implements the MongoDB-backed persistence layer.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	databaseName        = "RaidBattle"
	streamersCollection = "streamers"
	defaultsCollection  = "defaults"
	newsCollection      = "news"

	connectTimeout = 10 * time.Second
)

// Store owns the client and database handle; repositories hang off it.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials the deployment and verifies it with a ping.
func Connect(ctx context.Context, mongoURL string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Store{client: client, db: client.Database(databaseName)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Streamers returns the streamer repository.
func (s *Store) Streamers() *StreamerRepository {
	return &StreamerRepository{
		streamers: s.db.Collection(streamersCollection),
		defaults:  s.db.Collection(defaultsCollection),
		news:      s.db.Collection(newsCollection),
	}
}
