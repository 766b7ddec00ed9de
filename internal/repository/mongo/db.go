package mongo

import (
	"alcyxob/wellness-program/internal/repository"
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Default connection timeout
const defaultTimeout = 10 * time.Second

// ConnectDB establishes a connection to MongoDB using the provided URI.
// It returns the mongo.Client which can be used to access databases and collections.
func ConnectDB(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	// Ping the primary node to verify the connection. The connect call
	// succeeds lazily even when the server is unreachable.
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()

	err = client.Ping(pingCtx, readpref.Primary())
	if err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, err
	}

	return client, nil
}

// DisconnectDB gracefully disconnects the MongoDB client.
func DisconnectDB(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return client.Disconnect(ctx)
}

// EnsureIndexes creates every collection index the repositories rely on.
// Call this once during application startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{userCollectionName, func(ctx context.Context) error { return EnsureUserIndexes(ctx, db.Collection(userCollectionName)) }},
		{taskCollectionName, func(ctx context.Context) error { return EnsureTaskIndexes(ctx, db.Collection(taskCollectionName)) }},
		{complianceCollectionName, func(ctx context.Context) error {
			return EnsureComplianceIndexes(ctx, db.Collection(complianceCollectionName))
		}},
		{bodyMetricsCollectionName, func(ctx context.Context) error {
			return EnsureBodyMetricsIndexes(ctx, db.Collection(bodyMetricsCollectionName))
		}},
		{recommendationCollectionName, func(ctx context.Context) error { return EnsureRecommendationIndexes(ctx, db) }},
		{zoneProgressCollectionName, func(ctx context.Context) error {
			return EnsureZoneProgressIndexes(ctx, db.Collection(zoneProgressCollectionName))
		}},
		{zoneVideoCollectionName, func(ctx context.Context) error {
			return EnsureZoneVideoIndexes(ctx, db.Collection(zoneVideoCollectionName))
		}},
		{templateCollectionName, func(ctx context.Context) error {
			return EnsureTemplateIndexes(ctx, db.Collection(templateCollectionName))
		}},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("ensure %s indexes: %w", s.name, err)
		}
	}
	return nil
}

// sessionTransactor runs callbacks inside a MongoDB multi-document
// transaction. Requires a replica set.
type sessionTransactor struct {
	client *mongo.Client
}

type directTransactor struct{}

// NewTransactor returns a session-backed transactor when enabled, otherwise
// one that runs the callback directly (standalone servers reject transactions).
func NewTransactor(client *mongo.Client, enabled bool) repository.Transactor {
	if !enabled || client == nil {
		return directTransactor{}
	}
	return &sessionTransactor{client: client}
}

func (t *sessionTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (directTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
