package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/livestockmart/internal/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Mongo struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewMongo connects to the document store and makes sure the indexes the
// repositories rely on exist.
func NewMongo(ctx context.Context, cfg config.MongoConfig) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	m := &Mongo{Client: client, Database: client.Database(cfg.Database)}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	log.Info().Str("database", cfg.Database).Msg("Connected to MongoDB")
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		"accounts": {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"orders": {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{
				Keys: bson.D{{Key: "payment_reference", Value: 1}},
				Options: options.Index().
					SetName("orders_payment_reference_key").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"payment_reference": bson.M{"$gt": ""}}),
			},
		},
		"livestock": {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}

	for collection, models := range indexes {
		if _, err := m.Database.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", collection, err)
		}
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) {
	if err := m.Client.Disconnect(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to disconnect from MongoDB")
		return
	}
	log.Info().Msg("MongoDB connection closed")
}
