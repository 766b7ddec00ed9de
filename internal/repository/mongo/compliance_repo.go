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

const complianceCollectionName = "compliance_logs"

// mongoComplianceRepository implements repository.ComplianceRepository
type mongoComplianceRepository struct {
	collection *mongo.Collection
}

// NewMongoComplianceRepository creates the ledger repository.
func NewMongoComplianceRepository(db *mongo.Database) repository.ComplianceRepository {
	return &mongoComplianceRepository{
		collection: db.Collection(complianceCollectionName),
	}
}

// Create appends an entry. The partial unique index on (taskId, dayKey) turns
// a concurrent same-day insert into ErrDuplicate.
func (r *mongoComplianceRepository) Create(ctx context.Context, entry *domain.ComplianceLogEntry) (primitive.ObjectID, error) {
	if entry.TaskID == primitive.NilObjectID || entry.PatientID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("compliance entry requires taskId and patientId")
	}
	entry.ID = primitive.NewObjectID()
	entry.CreatedAt = time.Now().UTC()

	result, err := r.collection.InsertOne(ctx, entry)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted compliance ID")
	}
	return insertedID, nil
}

// ExistsForDay reports whether the task has an entry within [dayStart, dayEnd).
func (r *mongoComplianceRepository) ExistsForDay(ctx context.Context, taskID primitive.ObjectID, dayStart, dayEnd time.Time) (bool, error) {
	filter := bson.M{
		"taskId":         taskID,
		"completionDate": bson.M{"$gte": dayStart, "$lt": dayEnd},
	}
	n, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetByTaskIDs returns the entries of the given tasks within [from, to).
func (r *mongoComplianceRepository) GetByTaskIDs(ctx context.Context, taskIDs []primitive.ObjectID, from, to time.Time) ([]domain.ComplianceLogEntry, error) {
	if len(taskIDs) == 0 {
		return []domain.ComplianceLogEntry{}, nil
	}
	return r.find(ctx, bson.M{
		"taskId":         bson.M{"$in": taskIDs},
		"completionDate": bson.M{"$gte": from, "$lt": to},
	})
}

func (r *mongoComplianceRepository) find(ctx context.Context, filter bson.M) ([]domain.ComplianceLogEntry, error) {
	var entries []domain.ComplianceLogEntry
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "completionDate", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// CountByTaskID counts the entries referencing a task.
func (r *mongoComplianceRepository) CountByTaskID(ctx context.Context, taskID primitive.ObjectID) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"taskId": taskID})
}

// DeleteByID removes one entry. Only used to undo an insert whose follow-up failed.
func (r *mongoComplianceRepository) DeleteByID(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteByTaskID removes every entry of a task.
func (r *mongoComplianceRepository) DeleteByTaskID(ctx context.Context, taskID primitive.ObjectID) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"taskId": taskID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// EnsureComplianceIndexes creates the ledger indexes, including the
// once-per-day uniqueness constraint.
func EnsureComplianceIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "taskId", Value: 1}, {Key: "dayKey", Value: 1}},
			Options: options.Index().
				SetName("uniq_task_day").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"dayKey": bson.M{"$type": "string"}}),
		},
		{
			Keys:    bson.D{{Key: "taskId", Value: 1}, {Key: "completionDate", Value: 1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
