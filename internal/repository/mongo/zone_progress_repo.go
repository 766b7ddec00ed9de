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

const zoneProgressCollectionName = "zone_progress"

type mongoZoneProgressRepository struct {
	collection *mongo.Collection
}

// NewMongoZoneProgressRepository creates the zone progress repository.
func NewMongoZoneProgressRepository(db *mongo.Database) repository.ZoneProgressRepository {
	return &mongoZoneProgressRepository{
		collection: db.Collection(zoneProgressCollectionName),
	}
}

// CreateMany inserts the initial records of a patient.
func (r *mongoZoneProgressRepository) CreateMany(ctx context.Context, records []*domain.ZoneProgressRecord) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	docs := make([]interface{}, len(records))
	for i, rec := range records {
		rec.ID = primitive.NewObjectID()
		rec.UpdatedAt = now
		if rec.WatchedVideoIDs == nil {
			rec.WatchedVideoIDs = []primitive.ObjectID{}
		}
		docs[i] = rec
	}

	_, err := r.collection.InsertMany(ctx, docs)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *mongoZoneProgressRepository) Get(ctx context.Context, patientID primitive.ObjectID, zone int) (*domain.ZoneProgressRecord, error) {
	var rec domain.ZoneProgressRecord
	err := r.collection.FindOne(ctx, bson.M{"patientId": patientID, "zoneNumber": zone}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// GetByPatientID returns the patient's records ordered by zone.
func (r *mongoZoneProgressRepository) GetByPatientID(ctx context.Context, patientID primitive.ObjectID) ([]domain.ZoneProgressRecord, error) {
	var records []domain.ZoneProgressRecord
	findOptions := options.Find().SetSort(bson.D{{Key: "zoneNumber", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"patientId": patientID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// AddWatchedVideo uses $addToSet so repeated calls leave the set unchanged.
func (r *mongoZoneProgressRepository) AddWatchedVideo(ctx context.Context, patientID primitive.ObjectID, zone int, videoID primitive.ObjectID) (*domain.ZoneProgressRecord, error) {
	filter := bson.M{"patientId": patientID, "zoneNumber": zone}
	update := bson.M{
		"$addToSet": bson.M{"watchedVideoIds": videoID},
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var rec domain.ZoneProgressRecord
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Update writes the gate flags. The watched set is only ever changed by
// AddWatchedVideo and is left untouched here.
func (r *mongoZoneProgressRepository) Update(ctx context.Context, rec *domain.ZoneProgressRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	set := bson.M{
		"isUnlocked":      rec.IsUnlocked,
		"isCompleted":     rec.IsCompleted,
		"videosCompleted": rec.VideosCompleted,
		"weeksInZone":     rec.WeeksInZone,
		"updatedAt":       rec.UpdatedAt,
	}
	if rec.StartedAt != nil {
		set["startedAt"] = rec.StartedAt
	}
	if rec.CompletedAt != nil {
		set["completedAt"] = rec.CompletedAt
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"patientId": rec.PatientID, "zoneNumber": rec.ZoneNumber},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureZoneProgressIndexes creates the (patient, zone) uniqueness index.
func EnsureZoneProgressIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "patientId", Value: 1}, {Key: "zoneNumber", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
