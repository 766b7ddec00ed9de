package repository

import (
	"alcyxob/wellness-program/internal/domain" // Import our defined domain models
	"context"                                    // Standard for request-scoped deadlines, cancellation signals, etc.
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive" // For using ObjectIDs
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrDuplicate    = RepositoryError("duplicate key")
	ErrUpdateFailed = RepositoryError("update failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// Transactor runs fn so that all repository writes inside it commit or roll
// back together. Implementations without transaction support run fn directly.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	AddPatientIDToDoctor(ctx context.Context, doctorID, patientID primitive.ObjectID) error
	GetPatientsByDoctorID(ctx context.Context, doctorID primitive.ObjectID) ([]domain.User, error)
	SetDoctorForPatient(ctx context.Context, patientID, doctorID primitive.ObjectID) error
	// SetEnrollment stores the enrollment only if the patient has none yet.
	// It returns ErrDuplicate when the patient is already enrolled.
	SetEnrollment(ctx context.Context, patientID primitive.ObjectID, enrollment domain.Enrollment) error
}

// TaskRepository defines the interface for assigned tasks.
type TaskRepository interface {
	CreateMany(ctx context.Context, tasks []*domain.AssignedTask) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.AssignedTask, error)
	GetByPatientID(ctx context.Context, patientID primitive.ObjectID, statuses ...domain.TaskStatus) ([]domain.AssignedTask, error)
	GetByPatientAndZone(ctx context.Context, patientID primitive.ObjectID, zone int) ([]domain.AssignedTask, error)
	// UpdateSchedule returns ErrUpdateFailed when the stored task is completed.
	UpdateSchedule(ctx context.Context, task *domain.AssignedTask) error
	// MarkCompleted moves a not-yet-completed task to completed. It reports
	// false when the task was already completed.
	MarkCompleted(ctx context.Context, id primitive.ObjectID, completedAt time.Time) (bool, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// ComplianceRepository is the append-only completion ledger.
type ComplianceRepository interface {
	// Create inserts an entry. It returns ErrDuplicate when an entry with the
	// same (taskId, dayKey) exists and dayKey is set.
	Create(ctx context.Context, entry *domain.ComplianceLogEntry) (primitive.ObjectID, error)
	ExistsForDay(ctx context.Context, taskID primitive.ObjectID, dayStart, dayEnd time.Time) (bool, error)
	GetByTaskIDs(ctx context.Context, taskIDs []primitive.ObjectID, from, to time.Time) ([]domain.ComplianceLogEntry, error)
	CountByTaskID(ctx context.Context, taskID primitive.ObjectID) (int64, error)
	DeleteByID(ctx context.Context, id primitive.ObjectID) error
	DeleteByTaskID(ctx context.Context, taskID primitive.ObjectID) (int64, error)
}

// BodyMetricsRepository stores body-metric samples.
type BodyMetricsRepository interface {
	Create(ctx context.Context, sample *domain.BodyMetricsSample) (primitive.ObjectID, error)
	GetByPatientID(ctx context.Context, patientID primitive.ObjectID) ([]domain.BodyMetricsSample, error)
}

// RecommendationRepository stores computed bundles and doctor overrides.
type RecommendationRepository interface {
	Create(ctx context.Context, bundle *domain.RecommendationBundle) (primitive.ObjectID, error)
	GetLatest(ctx context.Context, patientID primitive.ObjectID) (*domain.RecommendationBundle, error)
	GetOverride(ctx context.Context, patientID primitive.ObjectID) (*domain.RecommendationOverride, error)
	UpsertOverride(ctx context.Context, override *domain.RecommendationOverride) error
}

// ZoneProgressRepository stores one record per (patient, zone).
type ZoneProgressRepository interface {
	// CreateMany inserts the initial records. It returns ErrDuplicate if any
	// (patient, zone) pair already exists.
	CreateMany(ctx context.Context, records []*domain.ZoneProgressRecord) error
	Get(ctx context.Context, patientID primitive.ObjectID, zone int) (*domain.ZoneProgressRecord, error)
	GetByPatientID(ctx context.Context, patientID primitive.ObjectID) ([]domain.ZoneProgressRecord, error)
	// AddWatchedVideo adds videoID to the watched set if absent and returns
	// the updated record.
	AddWatchedVideo(ctx context.Context, patientID primitive.ObjectID, zone int, videoID primitive.ObjectID) (*domain.ZoneProgressRecord, error)
	Update(ctx context.Context, record *domain.ZoneProgressRecord) error
}

// ZoneVideoRepository stores the required videos of each zone.
type ZoneVideoRepository interface {
	Create(ctx context.Context, video *domain.ZoneVideo) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ZoneVideo, error)
	GetByZone(ctx context.Context, zone int) ([]domain.ZoneVideo, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// TemplateRepository stores program templates.
type TemplateRepository interface {
	Create(ctx context.Context, tmpl *domain.ProgramTemplate) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ProgramTemplate, error)
	GetByName(ctx context.Context, name string) (*domain.ProgramTemplate, error)
	List(ctx context.Context) ([]domain.ProgramTemplate, error)
	Update(ctx context.Context, tmpl *domain.ProgramTemplate) error
}
