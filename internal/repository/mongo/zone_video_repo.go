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

const zoneVideoCollectionName = "zone_videos"

// mongoZoneVideoRepository implements repository.ZoneVideoRepository
type mongoZoneVideoRepository struct {
	collection *mongo.Collection
}

// NewMongoZoneVideoRepository creates a new repository for zone video metadata.
func NewMongoZoneVideoRepository(db *mongo.Database) repository.ZoneVideoRepository {
	return &mongoZoneVideoRepository{
		collection: db.Collection(zoneVideoCollectionName),
	}
}

// Create inserts video metadata. The media itself is uploaded to object storage.
func (r *mongoZoneVideoRepository) Create(ctx context.Context, video *domain.ZoneVideo) (primitive.ObjectID, error) {
	if video.S3ObjectKey == "" {
		return primitive.NilObjectID, errors.New("zone video requires an object key")
	}
	video.ID = primitive.NewObjectID()
	video.CreatedAt = time.Now().UTC()

	result, err := r.collection.InsertOne(ctx, video)
	if err != nil {
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted video ID")
	}
	return insertedID, nil
}

func (r *mongoZoneVideoRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ZoneVideo, error) {
	var video domain.ZoneVideo
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&video)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &video, nil
}

// GetByZone lists a zone's videos in display order.
func (r *mongoZoneVideoRepository) GetByZone(ctx context.Context, zone int) ([]domain.ZoneVideo, error) {
	var videos []domain.ZoneVideo
	findOptions := options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"zoneNumber": zone}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &videos); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return videos, nil
}

// Delete removes video metadata. The caller removes the stored object.
func (r *mongoZoneVideoRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureZoneVideoIndexes creates necessary indexes for the zone_videos collection.
func EnsureZoneVideoIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "zoneNumber", Value: 1}, {Key: "sequence", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "s3ObjectKey", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
