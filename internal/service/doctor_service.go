package service

import (
	"alcyxob/wellness-program/internal/domain"
	"alcyxob/wellness-program/internal/repository"
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type DoctorService interface {
	AddPatientByEmail(ctx context.Context, doctorID primitive.ObjectID, patientEmail string) (*domain.User, error)
	GetManagedPatients(ctx context.Context, doctorID primitive.ObjectID) ([]domain.User, error)
}

// doctorService implements the DoctorService interface.
type doctorService struct {
	userRepo repository.UserRepository
	tx       repository.Transactor
	logger   *zap.Logger
}

func NewDoctorService(userRepo repository.UserRepository, tx repository.Transactor, logger *zap.Logger) DoctorService {
	return &doctorService{userRepo: userRepo, tx: tx, logger: logger}
}

// AddPatientByEmail links an existing patient account to the doctor.
func (s *doctorService) AddPatientByEmail(ctx context.Context, doctorID primitive.ObjectID, patientEmail string) (*domain.User, error) {
	const op = "AddPatientByEmail"
	patientEmail = strings.ToLower(strings.TrimSpace(patientEmail))
	if doctorID == primitive.NilObjectID || patientEmail == "" {
		return nil, invalid(op, "doctor ID and patient email are required")
	}

	patient, err := s.userRepo.GetByEmail(ctx, patientEmail)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fail(op, ErrPatientNotFound)
		}
		return nil, internal(op, err)
	}
	if !patient.IsPatient() {
		return nil, fail(op, ErrUserNotPatient)
	}

	if patient.DoctorID != nil && *patient.DoctorID != primitive.NilObjectID {
		if *patient.DoctorID == doctorID {
			patient.PasswordHash = ""
			return patient, nil
		}
		return nil, fail(op, ErrPatientAlreadyAssigned)
	}

	// Both sides of the link are written together.
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.userRepo.AddPatientIDToDoctor(ctx, doctorID, patient.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrDoctorNotFound
			}
			return err
		}
		return s.userRepo.SetDoctorForPatient(ctx, patient.ID, doctorID)
	})
	if err != nil {
		return nil, wrap(op, KindInternal, err)
	}

	s.logger.Info("patient linked to doctor",
		zap.String("doctorId", doctorID.Hex()),
		zap.String("patientId", patient.ID.Hex()),
	)
	patient.DoctorID = &doctorID
	patient.PasswordHash = ""
	return patient, nil
}

// GetManagedPatients retrieves the list of patients managed by the doctor.
func (s *doctorService) GetManagedPatients(ctx context.Context, doctorID primitive.ObjectID) ([]domain.User, error) {
	const op = "GetManagedPatients"
	patients, err := s.userRepo.GetPatientsByDoctorID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fail(op, ErrDoctorNotFound)
		}
		return nil, internal(op, err)
	}
	for i := range patients {
		patients[i].PasswordHash = ""
	}
	return patients, nil
}

// patientAccess resolves patients and checks doctor ownership. It is shared
// by every service that takes a patient ID.
type patientAccess struct {
	users repository.UserRepository
}

// patient loads a user and requires the patient role.
func (a patientAccess) patient(ctx context.Context, op string, patientID primitive.ObjectID) (*domain.User, error) {
	user, err := a.users.GetByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fail(op, ErrPatientNotFound)
		}
		return nil, internal(op, err)
	}
	if !user.IsPatient() {
		return nil, fail(op, ErrPatientNotFound)
	}
	return user, nil
}

// managedPatient loads a patient and requires it to be linked to doctorID.
func (a patientAccess) managedPatient(ctx context.Context, op string, doctorID, patientID primitive.ObjectID) (*domain.User, error) {
	user, err := a.patient(ctx, op, patientID)
	if err != nil {
		return nil, err
	}
	if !user.ManagedBy(doctorID) {
		return nil, fail(op, ErrPatientNotManaged)
	}
	return user, nil
}
