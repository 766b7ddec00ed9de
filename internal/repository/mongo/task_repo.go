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

const taskCollectionName = "assigned_tasks"

// mongoTaskRepository implements repository.TaskRepository
type mongoTaskRepository struct {
	collection *mongo.Collection
}

// NewMongoTaskRepository creates a new AssignedTask repository backed by MongoDB.
func NewMongoTaskRepository(db *mongo.Database) repository.TaskRepository {
	return &mongoTaskRepository{
		collection: db.Collection(taskCollectionName),
	}
}

// CreateMany inserts tasks in one round trip and sets their IDs. A preset
// CreatedAt is kept.
func (r *mongoTaskRepository) CreateMany(ctx context.Context, tasks []*domain.AssignedTask) error {
	if len(tasks) == 0 {
		return nil
	}
	now := time.Now().UTC()
	docs := make([]interface{}, len(tasks))
	for i, t := range tasks {
		if t.PatientID == primitive.NilObjectID {
			return errors.New("assigned task requires patientId")
		}
		t.ID = primitive.NewObjectID()
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.UpdatedAt = now
		if t.Status == "" {
			t.Status = domain.TaskStatusPending
		}
		docs[i] = t
	}

	_, err := r.collection.InsertMany(ctx, docs)
	return err
}

// GetByID retrieves a task by its ID.
func (r *mongoTaskRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.AssignedTask, error) {
	var task domain.AssignedTask
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

// GetByPatientID retrieves a patient's tasks, optionally limited to some statuses.
func (r *mongoTaskRepository) GetByPatientID(ctx context.Context, patientID primitive.ObjectID, statuses ...domain.TaskStatus) ([]domain.AssignedTask, error) {
	filter := bson.M{"patientId": patientID}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	return r.find(ctx, filter)
}

// GetByPatientAndZone retrieves every task of one zone for a patient.
func (r *mongoTaskRepository) GetByPatientAndZone(ctx context.Context, patientID primitive.ObjectID, zone int) ([]domain.AssignedTask, error) {
	return r.find(ctx, bson.M{"patientId": patientID, "zoneNumber": zone})
}

func (r *mongoTaskRepository) find(ctx context.Context, filter bson.M) ([]domain.AssignedTask, error) {
	var tasks []domain.AssignedTask
	findOptions := options.Find().SetSort(bson.D{
		{Key: "programWeek", Value: 1},
		{Key: "zoneNumber", Value: 1},
		{Key: "_id", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &tasks); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpdateSchedule writes the doctor-editable fields and the status. A task
// completed in the meantime is left alone and ErrUpdateFailed returned.
func (r *mongoTaskRepository) UpdateSchedule(ctx context.Context, task *domain.AssignedTask) error {
	if task.ID == primitive.NilObjectID {
		return errors.New("task ID is required for update")
	}

	update := bson.M{"$set": bson.M{
		"description":    task.Description,
		"frequency":      task.Frequency,
		"daysApplicable": task.DaysApplicable,
		"timeOfDay":      task.TimeOfDay,
		"programWeek":    task.ProgramWeek,
		"metricRequired": task.MetricRequired,
		"status":         task.Status,
		"updatedAt":      time.Now().UTC(),
	}}

	filter := bson.M{"_id": task.ID, "status": bson.M{"$ne": domain.TaskStatusCompleted}}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		if _, err := r.GetByID(ctx, task.ID); err != nil {
			return err
		}
		return repository.ErrUpdateFailed
	}
	return nil
}

// MarkCompleted flips the status only when the task is not already completed,
// so concurrent completions stamp the date once.
func (r *mongoTaskRepository) MarkCompleted(ctx context.Context, id primitive.ObjectID, completedAt time.Time) (bool, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$ne": domain.TaskStatusCompleted}}
	update := bson.M{"$set": bson.M{
		"status":         domain.TaskStatusCompleted,
		"completionDate": completedAt,
		"updatedAt":      time.Now().UTC(),
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	if result.MatchedCount == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Delete removes a task. Callers are responsible for the ledger cascade.
func (r *mongoTaskRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureTaskIndexes creates necessary indexes for the assigned_tasks collection.
func EnsureTaskIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// Today's tasks and re-assignment checks
			Keys:    bson.D{{Key: "patientId", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			// Zone compliance aggregation
			Keys:    bson.D{{Key: "patientId", Value: 1}, {Key: "zoneNumber", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "templateId", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
