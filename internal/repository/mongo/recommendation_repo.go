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

const (
	recommendationCollectionName = "recommendations"
	overrideCollectionName       = "recommendation_overrides"
)

// mongoRecommendationRepository keeps computed bundles and the per-patient
// override document in separate collections.
type mongoRecommendationRepository struct {
	bundles   *mongo.Collection
	overrides *mongo.Collection
}

// NewMongoRecommendationRepository creates the recommendation repository.
func NewMongoRecommendationRepository(db *mongo.Database) repository.RecommendationRepository {
	return &mongoRecommendationRepository{
		bundles:   db.Collection(recommendationCollectionName),
		overrides: db.Collection(overrideCollectionName),
	}
}

func (r *mongoRecommendationRepository) Create(ctx context.Context, bundle *domain.RecommendationBundle) (primitive.ObjectID, error) {
	bundle.ID = primitive.NewObjectID()
	if bundle.CreatedAt.IsZero() {
		bundle.CreatedAt = time.Now().UTC()
	}

	result, err := r.bundles.InsertOne(ctx, bundle)
	if err != nil {
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted recommendation ID")
	}
	return insertedID, nil
}

// GetLatest returns the most recently computed bundle.
func (r *mongoRecommendationRepository) GetLatest(ctx context.Context, patientID primitive.ObjectID) (*domain.RecommendationBundle, error) {
	var bundle domain.RecommendationBundle
	findOptions := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	err := r.bundles.FindOne(ctx, bson.M{"patientId": patientID}, findOptions).Decode(&bundle)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &bundle, nil
}

func (r *mongoRecommendationRepository) GetOverride(ctx context.Context, patientID primitive.ObjectID) (*domain.RecommendationOverride, error) {
	var override domain.RecommendationOverride
	err := r.overrides.FindOne(ctx, bson.M{"patientId": patientID}).Decode(&override)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &override, nil
}

// UpsertOverride replaces the patient's override document wholesale.
func (r *mongoRecommendationRepository) UpsertOverride(ctx context.Context, override *domain.RecommendationOverride) error {
	if override.PatientID == primitive.NilObjectID {
		return errors.New("override requires patientId")
	}
	override.UpdatedAt = time.Now().UTC()

	_, err := r.overrides.ReplaceOne(ctx,
		bson.M{"patientId": override.PatientID},
		override,
		options.Replace().SetUpsert(true),
	)
	return err
}

// EnsureRecommendationIndexes creates indexes for bundles and overrides.
func EnsureRecommendationIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(recommendationCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "patientId", Value: 1}, {Key: "createdAt", Value: -1}},
		Options: options.Index(),
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(overrideCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "patientId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
