// Package repository stores experiment records and capture metadata, in
// MongoDB or in memory.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrEmptyURI is returned when no connection string is configured.
var ErrEmptyURI = errors.New("mongodb uri is empty")

// MongoDB is a connected client bound to the squid database.
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	logger   *slog.Logger
}

// MongoDBConfig contains configuration for the MongoDB connection.
type MongoDBConfig struct {
	URI      string
	Database string
	// AppName is reported to the server and shows up in its logs.
	AppName        string
	ConnectTimeout time.Duration
	PingTimeout    time.Duration
}

// DefaultMongoDBConfig returns default configuration.
func DefaultMongoDBConfig() *MongoDBConfig {
	return &MongoDBConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "squid",
		AppName:        "squid",
		ConnectTimeout: 10 * time.Second,
		PingTimeout:    5 * time.Second,
	}
}

// clientOptions translates the config into driver options. Server selection
// is bounded by the connect timeout.
func (c *MongoDBConfig) clientOptions() *options.ClientOptions {
	opts := options.Client().
		ApplyURI(c.URI).
		SetServerSelectionTimeout(c.ConnectTimeout)
	if c.AppName != "" {
		opts.SetAppName(c.AppName)
	}
	return opts
}

// NewMongoDB connects and pings the server.
func NewMongoDB(ctx context.Context, cfg *MongoDBConfig, logger *slog.Logger) (*MongoDB, error) {
	if cfg == nil {
		cfg = DefaultMongoDBConfig()
	}
	if cfg.URI == "" {
		return nil, ErrEmptyURI
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mongodb", "database", cfg.Database)

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, cfg.clientOptions())
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	m := &MongoDB{
		client:   client,
		database: client.Database(cfg.Database),
		logger:   logger,
	}
	if err := m.Ping(ctx, cfg.PingTimeout); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	logger.Info("Connected to MongoDB")
	return m, nil
}

// Ping checks that the server is reachable within timeout.
func (m *MongoDB) Ping(ctx context.Context, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := m.client.Ping(pingCtx, nil); err != nil {
		return fmt.Errorf("ping mongodb: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (m *MongoDB) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	m.logger.Info("Disconnecting from MongoDB")
	return m.client.Disconnect(ctx)
}

// Collection returns a collection of the squid database.
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}
