package mongo

import (
	"alcyxob/wellness-program/internal/domain"
	"alcyxob/wellness-program/internal/repository" // Import the repository interfaces package
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const userCollectionName = "users"

// mongoUserRepository implements the repository.UserRepository interface using MongoDB.
type mongoUserRepository struct {
	collection *mongo.Collection
}

// NewMongoUserRepository creates a new instance of mongoUserRepository.
// It expects a connected *mongo.Database instance.
func NewMongoUserRepository(db *mongo.Database) repository.UserRepository {
	return &mongoUserRepository{
		collection: db.Collection(userCollectionName),
	}
}

// Create inserts a new user into the database.
func (r *mongoUserRepository) Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error) {
	if user.Email == "" || user.PasswordHash == "" || user.Role == "" {
		return primitive.NilObjectID, errors.New("user email, password hash, and role are required")
	}

	user.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		// Unique index on email
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted ID")
	}
	return insertedID, nil
}

// GetByEmail retrieves a user by their email address.
func (r *mongoUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

// GetByID retrieves a user by their MongoDB ObjectID.
func (r *mongoUserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoUserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// AddPatientIDToDoctor adds a patient's ID to a doctor's PatientIDs array.
func (r *mongoUserRepository) AddPatientIDToDoctor(ctx context.Context, doctorID, patientID primitive.ObjectID) error {
	filter := bson.M{"_id": doctorID, "role": domain.RoleDoctor}
	update := bson.M{
		"$addToSet": bson.M{"patientIds": patientID}, // $addToSet prevents duplicates
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetPatientsByDoctorID retrieves all patients associated with a specific doctor.
func (r *mongoUserRepository) GetPatientsByDoctorID(ctx context.Context, doctorID primitive.ObjectID) ([]domain.User, error) {
	doctor, err := r.GetByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.IsDoctor() {
		return nil, repository.ErrNotFound
	}
	if len(doctor.PatientIDs) == 0 {
		return []domain.User{}, nil
	}

	var patients []domain.User
	filter := bson.M{"_id": bson.M{"$in": doctor.PatientIDs}}
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &patients); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return patients, nil
}

// SetDoctorForPatient sets the DoctorID field for a specific patient.
func (r *mongoUserRepository) SetDoctorForPatient(ctx context.Context, patientID, doctorID primitive.ObjectID) error {
	filter := bson.M{"_id": patientID, "role": domain.RolePatient}
	update := bson.M{
		"$set": bson.M{
			"doctorId":  doctorID,
			"updatedAt": time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetEnrollment stores the enrollment on a patient that has none yet.
func (r *mongoUserRepository) SetEnrollment(ctx context.Context, patientID primitive.ObjectID, enrollment domain.Enrollment) error {
	filter := bson.M{
		"_id":        patientID,
		"role":       domain.RolePatient,
		"enrollment": bson.M{"$exists": false},
	}
	update := bson.M{"$set": bson.M{"enrollment": enrollment, "updatedAt": time.Now().UTC()}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		// Either the patient does not exist or is already enrolled.
		if _, err := r.GetByID(ctx, patientID); err != nil {
			return err
		}
		return repository.ErrDuplicate
	}
	return nil
}

// EnsureUserIndexes creates necessary indexes for the users collection.
// Call this once during application startup.
func EnsureUserIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "role", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "doctorId", Value: 1}},
			Options: options.Index().SetSparse(true), // Only patients carry doctorId
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
