package service

import (
	"alcyxob/wellness-program/internal/calendar"
	"alcyxob/wellness-program/internal/domain"
	"alcyxob/wellness-program/internal/lock"
	"alcyxob/wellness-program/internal/notify"
	"alcyxob/wellness-program/internal/repository"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// PaymentConfirmation is what the payment collaborator posts on enrollment.
type PaymentConfirmation struct {
	Verified  bool   `json:"verified"`
	Reference string `json:"reference" validate:"required,max=200"`
}

// ProgramPolicy controls re-assignment.
type ProgramPolicy struct {
	AllowReplace bool
}

type ProgramService interface {
	CreateTemplate(ctx context.Context, doctorID primitive.ObjectID, tmpl domain.ProgramTemplate) (*domain.ProgramTemplate, error)
	UpdateTemplate(ctx context.Context, doctorID, templateID primitive.ObjectID, tmpl domain.ProgramTemplate) (*domain.ProgramTemplate, error)
	GetTemplate(ctx context.Context, templateID primitive.ObjectID) (*domain.ProgramTemplate, error)
	ListTemplates(ctx context.Context) ([]domain.ProgramTemplate, error)
	LoadTemplateSeeds(ctx context.Context, dir string) (int, error)

	AssignProgram(ctx context.Context, doctorID, patientID, templateID primitive.ObjectID, replace bool) ([]domain.AssignedTask, error)
	GetProgramWeek(ctx context.Context, patientID primitive.ObjectID, asOf *time.Time) (int, error)
	EnrollPatient(ctx context.Context, patientID primitive.ObjectID, payment PaymentConfirmation, startDate *time.Time) (*domain.Enrollment, error)
}

type programService struct {
	access    patientAccess
	users     repository.UserRepository
	templates repository.TemplateRepository
	tasks     repository.TaskRepository
	ledger    repository.ComplianceRepository
	tx        repository.Transactor
	locker    lock.KeyedLocker
	zones     ZoneService
	cal       calendar.Calendar
	clock     Clock
	notifier  Notifier
	policy    ProgramPolicy
	logger    *zap.Logger
}

func NewProgramService(
	userRepo repository.UserRepository,
	templateRepo repository.TemplateRepository,
	taskRepo repository.TaskRepository,
	ledger repository.ComplianceRepository,
	tx repository.Transactor,
	locker lock.KeyedLocker,
	zones ZoneService,
	cal calendar.Calendar,
	clock Clock,
	notifier Notifier,
	policy ProgramPolicy,
	logger *zap.Logger,
) ProgramService {
	return &programService{
		access:    patientAccess{users: userRepo},
		users:     userRepo,
		templates: templateRepo,
		tasks:     taskRepo,
		ledger:    ledger,
		tx:        tx,
		locker:    locker,
		zones:     zones,
		cal:       cal,
		clock:     clock,
		notifier:  notifier,
		policy:    policy,
		logger:    logger,
	}
}

// --- Templates ---

// checkTemplate validates a template and normalizes its blueprints in place.
func checkTemplate(op string, tmpl *domain.ProgramTemplate) error {
	tmpl.Name = strings.TrimSpace(tmpl.Name)
	if err := validateStruct(op, tmpl); err != nil {
		return err
	}
	seen := make(map[[2]int]bool, len(tmpl.Cells))
	for i := range tmpl.Cells {
		cell := &tmpl.Cells[i]
		k := [2]int{cell.ProgramWeek, cell.ZoneNumber}
		if seen[k] {
			return invalid(op, "duplicate cell for week %d zone %d", cell.ProgramWeek, cell.ZoneNumber)
		}
		seen[k] = true
		for j := range cell.Tasks {
			if err := normalizeBlueprint(op, &cell.Tasks[j]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *programService) CreateTemplate(ctx context.Context, doctorID primitive.ObjectID, tmpl domain.ProgramTemplate) (*domain.ProgramTemplate, error) {
	const op = "CreateTemplate"
	if err := checkTemplate(op, &tmpl); err != nil {
		return nil, err
	}
	tmpl.CreatedBy = doctorID
	if _, err := s.templates.Create(ctx, &tmpl); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fail(op, ErrTemplateNameTaken)
		}
		return nil, internal(op, err)
	}
	s.logger.Info("template created", zap.String("templateId", tmpl.ID.Hex()), zap.String("name", tmpl.Name))
	return &tmpl, nil
}

// UpdateTemplate replaces a template's content. Only its author may edit it;
// seeded templates have no author and are read-only over the API.
func (s *programService) UpdateTemplate(ctx context.Context, doctorID, templateID primitive.ObjectID, tmpl domain.ProgramTemplate) (*domain.ProgramTemplate, error) {
	const op = "UpdateTemplate"
	current, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fail(op, ErrTemplateNotFound)
		}
		return nil, internal(op, err)
	}
	if current.CreatedBy != doctorID {
		return nil, fail(op, ErrTemplateAccessDenied)
	}
	if err := checkTemplate(op, &tmpl); err != nil {
		return nil, err
	}

	current.Name = tmpl.Name
	current.Description = tmpl.Description
	current.Cells = tmpl.Cells
	if err := s.templates.Update(ctx, current); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, fail(op, ErrTemplateNameTaken)
		case errors.Is(err, repository.ErrNotFound):
			return nil, fail(op, ErrTemplateNotFound)
		}
		return nil, internal(op, err)
	}
	return current, nil
}

func (s *programService) GetTemplate(ctx context.Context, templateID primitive.ObjectID) (*domain.ProgramTemplate, error) {
	const op = "GetTemplate"
	tmpl, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fail(op, ErrTemplateNotFound)
		}
		return nil, internal(op, err)
	}
	return tmpl, nil
}

func (s *programService) ListTemplates(ctx context.Context) ([]domain.ProgramTemplate, error) {
	templates, err := s.templates.List(ctx)
	if err != nil {
		return nil, internal("ListTemplates", err)
	}
	if templates == nil {
		templates = []domain.ProgramTemplate{}
	}
	return templates, nil
}

// LoadTemplateSeeds upserts every *.yaml/*.yml template in dir by name and
// returns how many were written.
func (s *programService) LoadTemplateSeeds(ctx context.Context, dir string) (int, error) {
	const op = "LoadTemplateSeeds"
	if dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, internal(op, fmt.Errorf("read seed dir: %w", err))
	}

	loaded := 0
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return loaded, internal(op, fmt.Errorf("read %s: %w", path, err))
		}
		var tmpl domain.ProgramTemplate
		if err := yaml.Unmarshal(raw, &tmpl); err != nil {
			return loaded, invalid(op, "parse %s: %v", path, err)
		}
		if err := checkTemplate(op, &tmpl); err != nil {
			return loaded, wrap(op, KindValidation, fmt.Errorf("%s: %w", path, err))
		}

		existing, err := s.templates.GetByName(ctx, tmpl.Name)
		switch {
		case err == nil:
			existing.Description = tmpl.Description
			existing.Cells = tmpl.Cells
			err = s.templates.Update(ctx, existing)
		case errors.Is(err, repository.ErrNotFound):
			_, err = s.templates.Create(ctx, &tmpl)
		}
		if err != nil {
			return loaded, internal(op, fmt.Errorf("store %s: %w", path, err))
		}
		loaded++
		s.logger.Debug("template seed loaded", zap.String("name", tmpl.Name), zap.String("file", path))
	}
	return loaded, nil
}

// --- Assignment ---

// AssignProgram stamps one task per blueprint per template cell. Existing
// non-completed tasks block the assignment unless replace is requested and
// permitted, in which case they are deleted with their ledger entries once
// the new tasks are stored.
func (s *programService) AssignProgram(ctx context.Context, doctorID, patientID, templateID primitive.ObjectID, replace bool) ([]domain.AssignedTask, error) {
	const op = "AssignProgram"
	if _, err := s.access.managedPatient(ctx, op, doctorID, patientID); err != nil {
		return nil, err
	}
	tmpl, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fail(op, ErrTemplateNotFound)
		}
		return nil, internal(op, err)
	}

	tid := tmpl.ID
	now := s.clock.Now()
	var tasks []*domain.AssignedTask
	for _, cell := range tmpl.Cells {
		for _, bp := range cell.Tasks {
			t := newTask(patientID, doctorID, &tid, domain.SourceTemplate, bp, cell.ZoneNumber, cell.ProgramWeek)
			t.CreatedAt = now
			tasks = append(tasks, t)
		}
	}
	if len(tasks) == 0 {
		return nil, fail(op, ErrEmptyTemplate)
	}

	unlock, err := s.locker.Lock(ctx, "program:"+patientID.Hex())
	if err != nil {
		return nil, internal(op, err)
	}
	defer unlock()

	active, err := s.tasks.GetByPatientID(ctx, patientID, domain.TaskStatusPending, domain.TaskStatusRescheduled)
	if err != nil {
		return nil, internal(op, err)
	}
	if len(active) > 0 {
		if !replace {
			return nil, fail(op, ErrProgramAlreadyAssigned)
		}
		if !s.policy.AllowReplace {
			return nil, fail(op, ErrReplaceNotAllowed)
		}
	}

	// The new tasks go in before the old ones are removed. Without a
	// transaction a failed insert leaves the old program intact, and a failed
	// cascade leaves leftovers that a repeated replace removes.
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.tasks.CreateMany(ctx, tasks); err != nil {
			return err
		}
		for _, t := range active {
			if err := cascadeDeleteTask(ctx, op, s.tasks, s.ledger, s.logger, t.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrap(op, KindInternal, err)
	}

	s.logger.Info("program assigned",
		zap.String("patientId", patientID.Hex()),
		zap.String("templateId", tid.Hex()),
		zap.Int("tasks", len(tasks)),
		zap.Int("replaced", len(active)),
	)
	s.notifier.Dispatch(notify.Message{
		Event:     notify.EventProgramAssigned,
		PatientID: patientID,
		Subject:   "Your program is ready",
		Body:      fmt.Sprintf("Your doctor assigned the %q program.", tmpl.Name),
		Data:      map[string]string{"templateId": tid.Hex(), "tasks": strconv.Itoa(len(tasks))},
	})
	return derefTasks(tasks), nil
}

// resumeEnrollment finishes an enrollment whose zone records were not all
// written. A complete enrollment is a conflict.
func (s *programService) resumeEnrollment(ctx context.Context, op string, patient *domain.User) (*domain.Enrollment, error) {
	enrollment := *patient.Enrollment
	created, err := s.zones.InitZones(ctx, patient.ID, enrollment.StartDate)
	if err != nil {
		return nil, wrap(op, KindInternal, err)
	}
	if created == 0 {
		return nil, fail(op, ErrAlreadyEnrolled)
	}
	s.logger.Warn("finished interrupted enrollment",
		zap.String("patientId", patient.ID.Hex()),
		zap.Int("zonesCreated", created),
	)
	s.announceEnrollment(patient.ID, enrollment)
	return &enrollment, nil
}

// GetProgramWeek maps asOf (now when nil) onto the patient's program week.
func (s *programService) GetProgramWeek(ctx context.Context, patientID primitive.ObjectID, asOf *time.Time) (int, error) {
	const op = "GetProgramWeek"
	patient, err := s.access.patient(ctx, op, patientID)
	if err != nil {
		return 0, err
	}
	if !patient.IsEnrolled() {
		return 0, fail(op, ErrNotEnrolled)
	}
	at := s.clock.Now()
	if asOf != nil {
		at = *asOf
	}
	return s.cal.WeekNumber(patient.Enrollment.StartDate, at), nil
}

// EnrollPatient starts the program for a patient whose payment was verified.
func (s *programService) EnrollPatient(ctx context.Context, patientID primitive.ObjectID, payment PaymentConfirmation, startDate *time.Time) (*domain.Enrollment, error) {
	const op = "EnrollPatient"
	payment.Reference = strings.TrimSpace(payment.Reference)
	if err := validateStruct(op, payment); err != nil {
		return nil, err
	}
	if !payment.Verified {
		return nil, fail(op, ErrPaymentNotVerified)
	}
	patient, err := s.access.patient(ctx, op, patientID)
	if err != nil {
		return nil, err
	}
	if patient.IsEnrolled() {
		return s.resumeEnrollment(ctx, op, patient)
	}

	now := s.clock.Now()
	start := s.cal.DayStart(now)
	if startDate != nil {
		start = s.cal.DayStart(*startDate)
	}
	enrollment := domain.Enrollment{PaymentReference: payment.Reference, StartDate: start, EnrolledAt: now}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.SetEnrollment(ctx, patientID, enrollment); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyEnrolled
			}
			return err
		}
		_, err := s.zones.InitZones(ctx, patientID, start)
		return err
	})
	if err != nil {
		return nil, wrap(op, KindInternal, err)
	}

	s.announceEnrollment(patientID, enrollment)
	return &enrollment, nil
}

func (s *programService) announceEnrollment(patientID primitive.ObjectID, enrollment domain.Enrollment) {
	start := s.cal.DayKey(enrollment.StartDate)
	s.logger.Info("patient enrolled",
		zap.String("patientId", patientID.Hex()),
		zap.String("paymentReference", enrollment.PaymentReference),
		zap.String("startDate", start),
	)
	s.notifier.Dispatch(notify.Message{
		Event:     notify.EventEnrolled,
		PatientID: patientID,
		Subject:   "Welcome to the program",
		Body:      fmt.Sprintf("Your program starts on %s.", start),
		Data:      map[string]string{"startDate": start},
	})
}
