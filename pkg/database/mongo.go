package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
)

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    100,
	}
}

// ConnectMongo establishes a MongoDB connection and verifies it with a ping
func ConnectMongo(cfg MongoConfig, logger logging.Logger) (*mongo.Database, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo URI is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongo database name is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	logger.WithFields(logging.Fields{
		"database":      cfg.Database,
		"max_pool_size": cfg.MaxPoolSize,
	}).Info("MongoDB connected")

	return client.Database(cfg.Database), nil
}

// MustConnectMongo is like ConnectMongo but exits on error
func MustConnectMongo(cfg MongoConfig, logger logging.Logger) *mongo.Database {
	db, err := ConnectMongo(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	return db
}
