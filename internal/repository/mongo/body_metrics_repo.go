package mongo

import (
	"alcyxob/wellness-program/internal/domain"
	"alcyxob/wellness-program/internal/repository"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const bodyMetricsCollectionName = "body_metrics"

type mongoBodyMetricsRepository struct {
	collection *mongo.Collection
}

// NewMongoBodyMetricsRepository creates the body-metrics sample repository.
func NewMongoBodyMetricsRepository(db *mongo.Database) repository.BodyMetricsRepository {
	return &mongoBodyMetricsRepository{
		collection: db.Collection(bodyMetricsCollectionName),
	}
}

func (r *mongoBodyMetricsRepository) Create(ctx context.Context, sample *domain.BodyMetricsSample) (primitive.ObjectID, error) {
	if sample.PatientID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("body metrics sample requires patientId")
	}
	sample.ID = primitive.NewObjectID()
	if sample.LoggedAt.IsZero() {
		sample.LoggedAt = time.Now().UTC()
	}

	result, err := r.collection.InsertOne(ctx, sample)
	if err != nil {
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted sample ID")
	}
	return insertedID, nil
}

// GetByPatientID returns a patient's samples, oldest first.
func (r *mongoBodyMetricsRepository) GetByPatientID(ctx context.Context, patientID primitive.ObjectID) ([]domain.BodyMetricsSample, error) {
	var samples []domain.BodyMetricsSample
	findOptions := options.Find().SetSort(bson.D{{Key: "loggedAt", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"patientId": patientID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &samples); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// EnsureBodyMetricsIndexes creates necessary indexes for the body_metrics collection.
func EnsureBodyMetricsIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "patientId", Value: 1}, {Key: "loggedAt", Value: -1}},
		Options: options.Index(),
	})
	return err
}
