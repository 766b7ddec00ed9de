package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role type to distinguish between user roles
type Role string

// Define constants for roles
const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// Enrollment records that a patient paid for and started the program.
type Enrollment struct {
	PaymentReference string    `bson:"paymentReference" json:"paymentReference"`
	StartDate        time.Time `bson:"startDate" json:"startDate"`
	EnrolledAt       time.Time `bson:"enrolledAt" json:"enrolledAt"`
}

// User represents a user in the system (either a Doctor or a Patient).
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`    // Should be unique
	PasswordHash string             `bson:"passwordHash" json:"-"` // Never expose this via JSON
	Role         Role               `bson:"role" json:"role"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`

	// --- Doctor-specific ---
	PatientIDs []primitive.ObjectID `bson:"patientIds,omitempty" json:"patientIds,omitempty"`

	// --- Patient-specific ---
	DoctorID   *primitive.ObjectID `bson:"doctorId,omitempty" json:"doctorId,omitempty"`
	Enrollment *Enrollment         `bson:"enrollment,omitempty" json:"enrollment,omitempty"`
}

func (u *User) IsDoctor() bool {
	return u.Role == RoleDoctor
}

func (u *User) IsPatient() bool {
	return u.Role == RolePatient
}

// IsEnrolled reports whether the patient has started the program.
func (u *User) IsEnrolled() bool {
	return u.Enrollment != nil
}

// ManagedBy reports whether the patient is linked to the given doctor.
func (u *User) ManagedBy(doctorID primitive.ObjectID) bool {
	return u.DoctorID != nil && *u.DoctorID == doctorID
}
