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

const templateCollectionName = "program_templates"

// mongoTemplateRepository implements repository.TemplateRepository
type mongoTemplateRepository struct {
	collection *mongo.Collection
}

// NewMongoTemplateRepository creates a new repository for program templates.
func NewMongoTemplateRepository(db *mongo.Database) repository.TemplateRepository {
	return &mongoTemplateRepository{
		collection: db.Collection(templateCollectionName),
	}
}

func (r *mongoTemplateRepository) Create(ctx context.Context, tmpl *domain.ProgramTemplate) (primitive.ObjectID, error) {
	if tmpl.Name == "" {
		return primitive.NilObjectID, errors.New("template name is required")
	}
	tmpl.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	if tmpl.Cells == nil {
		tmpl.Cells = []domain.TemplateCell{}
	}

	result, err := r.collection.InsertOne(ctx, tmpl)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted template ID")
	}
	return insertedID, nil
}

func (r *mongoTemplateRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ProgramTemplate, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoTemplateRepository) GetByName(ctx context.Context, name string) (*domain.ProgramTemplate, error) {
	return r.findOne(ctx, bson.M{"name": name})
}

func (r *mongoTemplateRepository) findOne(ctx context.Context, filter bson.M) (*domain.ProgramTemplate, error) {
	var tmpl domain.ProgramTemplate
	err := r.collection.FindOne(ctx, filter).Decode(&tmpl)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &tmpl, nil
}

// List returns every template sorted by name. Cells are included.
func (r *mongoTemplateRepository) List(ctx context.Context) ([]domain.ProgramTemplate, error) {
	var templates []domain.ProgramTemplate
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &templates); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return templates, nil
}

// Update replaces the name, description and cells and bumps updatedAt.
func (r *mongoTemplateRepository) Update(ctx context.Context, tmpl *domain.ProgramTemplate) error {
	if tmpl.ID == primitive.NilObjectID {
		return errors.New("template ID is required for update")
	}
	tmpl.UpdatedAt = time.Now().UTC()

	update := bson.M{"$set": bson.M{
		"name":        tmpl.Name,
		"description": tmpl.Description,
		"cells":       tmpl.Cells,
		"updatedAt":   tmpl.UpdatedAt,
	}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": tmpl.ID}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureTemplateIndexes creates necessary indexes for the program_templates collection.
func EnsureTemplateIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
