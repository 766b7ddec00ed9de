package service

import (
	"alcyxob/wellness-program/internal/calendar"
	"alcyxob/wellness-program/internal/domain"
	"alcyxob/wellness-program/internal/metrics"
	"alcyxob/wellness-program/internal/notify"
	"alcyxob/wellness-program/internal/repository"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Notifier schedules a notification without waiting for delivery.
type Notifier interface {
	Dispatch(msg notify.Message)
}

// TaskWithCompletion is a task as shown in the patient's daily list.
type TaskWithCompletion struct {
	domain.AssignedTask
	IsCompletedToday bool `json:"isCompletedToday"`
}

type TaskService interface {
	// Patient side
	LogTaskCompletion(ctx context.Context, patientID, taskID primitive.ObjectID, completionDate *time.Time) (*domain.ComplianceLogEntry, error)
	GetTodaysTasks(ctx context.Context, patientID primitive.ObjectID) ([]TaskWithCompletion, error)
	ListPatientTasks(ctx context.Context, patientID primitive.ObjectID) ([]domain.AssignedTask, error)

	// Doctor side
	AllocateTasks(ctx context.Context, doctorID, patientID primitive.ObjectID, allocations []domain.TaskAllocation) ([]domain.AssignedTask, error)
	RescheduleTask(ctx context.Context, doctorID, taskID primitive.ObjectID, schedule domain.TaskSchedule) (*domain.AssignedTask, error)
	DeleteTask(ctx context.Context, doctorID, taskID primitive.ObjectID) error
	PatientCompliance(ctx context.Context, doctorID, patientID primitive.ObjectID, zone, week int) (*domain.WeeklyCompliance, error)
}

// taskService implements the TaskService interface.
type taskService struct {
	access   patientAccess
	taskRepo repository.TaskRepository
	ledger   repository.ComplianceRepository
	tx       repository.Transactor
	calc     complianceCalculator
	cal      calendar.Calendar
	clock    Clock
	notifier Notifier
	logger   *zap.Logger
}

func NewTaskService(
	userRepo repository.UserRepository,
	taskRepo repository.TaskRepository,
	ledger repository.ComplianceRepository,
	tx repository.Transactor,
	cal calendar.Calendar,
	bands ComplianceBands,
	clock Clock,
	notifier Notifier,
	logger *zap.Logger,
) TaskService {
	return &taskService{
		access:   patientAccess{users: userRepo},
		taskRepo: taskRepo,
		ledger:   ledger,
		tx:       tx,
		calc:     complianceCalculator{tasks: taskRepo, ledger: ledger, cal: cal, bands: bands},
		cal:      cal,
		clock:    clock,
		notifier: notifier,
		logger:   logger,
	}
}

// LogTaskCompletion appends a ledger entry for the task on the given day
// (today when nil). Once-per-day tasks reject a second entry for the same
// day; weekly and one-time tasks close on their first entry.
func (s *taskService) LogTaskCompletion(ctx context.Context, patientID, taskID primitive.ObjectID, completionDate *time.Time) (*domain.ComplianceLogEntry, error) {
	const op = "LogTaskCompletion"

	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fail(op, ErrTaskNotFound)
		}
		return nil, internal(op, err)
	}
	if task.PatientID != patientID {
		// Do not reveal other patients' tasks.
		return nil, fail(op, ErrTaskNotFound)
	}

	now := s.clock.Now()
	day := s.cal.DayStart(now)
	if completionDate != nil {
		day = s.cal.DayStart(*completionDate)
		if day.After(s.cal.DayStart(now)) {
			return nil, fail(op, ErrFutureCompletion)
		}
	}

	if !task.Actionable() {
		return nil, fail(op, ErrTaskAlreadyCompleted)
	}

	oncePerDay := task.Frequency.OncePerDay()
	if oncePerDay {
		start, end := s.cal.DayBounds(day)
		exists, err := s.ledger.ExistsForDay(ctx, task.ID, start, end)
		if err != nil {
			return nil, internal(op, err)
		}
		if exists {
			metrics.DuplicateCompletionsTotal.Inc()
			return nil, fail(op, ErrDuplicateCompletion)
		}
	}

	entry := &domain.ComplianceLogEntry{
		PatientID:      patientID,
		TaskID:         task.ID,
		CompletionDate: day,
	}
	if oncePerDay {
		entry.DayKey = s.cal.DayKey(day)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.ledger.Create(ctx, entry); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				// Lost the race against a concurrent request for the same day.
				metrics.DuplicateCompletionsTotal.Inc()
				return ErrDuplicateCompletion
			}
			return err
		}
		if !task.Frequency.ClosesOnCompletion() {
			return nil
		}

		closed, err := s.taskRepo.MarkCompleted(ctx, task.ID, day)
		if err == nil && !closed {
			err = ErrTaskAlreadyCompleted
		}
		if err != nil {
			// Undo the entry so a failed transition leaves no trace.
			if derr := s.ledger.DeleteByID(ctx, entry.ID); derr != nil {
				s.logger.Error("failed to compensate compliance entry",
					zap.String("entryId", entry.ID.Hex()),
					zap.String("taskId", task.ID.Hex()),
					zap.Error(derr),
				)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, wrap(op, KindInternal, err)
	}

	metrics.ComplianceLogsTotal.WithLabelValues(string(task.Frequency)).Inc()
	s.logger.Info("task completion logged",
		zap.String("patientId", patientID.Hex()),
		zap.String("taskId", task.ID.Hex()),
		zap.String("frequency", string(task.Frequency)),
		zap.Time("day", day),
	)
	return entry, nil
}

// GetTodaysTasks lists the tasks applicable today, each flagged with whether
// it already has an entry for today.
func (s *taskService) GetTodaysTasks(ctx context.Context, patientID primitive.ObjectID) ([]TaskWithCompletion, error) {
	const op = "GetTodaysTasks"
	if _, err := s.access.patient(ctx, op, patientID); err != nil {
		return nil, err
	}

	tasks, err := s.taskRepo.GetByPatientID(ctx, patientID, domain.TaskStatusPending, domain.TaskStatusRescheduled)
	if err != nil {
		return nil, internal(op, err)
	}

	now := s.clock.Now()
	weekday := s.cal.Weekday(now)
	var applicable []domain.AssignedTask
	for _, t := range tasks {
		if t.AppliesOn(weekday) {
			applicable = append(applicable, t)
		}
	}
	if len(applicable) == 0 {
		return []TaskWithCompletion{}, nil
	}

	ids := make([]primitive.ObjectID, len(applicable))
	for i, t := range applicable {
		ids[i] = t.ID
	}
	start, end := s.cal.DayBounds(now)
	entries, err := s.ledger.GetByTaskIDs(ctx, ids, start, end)
	if err != nil {
		return nil, internal(op, err)
	}
	doneToday := make(map[primitive.ObjectID]bool, len(entries))
	for _, e := range entries {
		doneToday[e.TaskID] = true
	}

	out := make([]TaskWithCompletion, len(applicable))
	for i, t := range applicable {
		out[i] = TaskWithCompletion{AssignedTask: t, IsCompletedToday: doneToday[t.ID]}
	}
	return out, nil
}

func (s *taskService) ListPatientTasks(ctx context.Context, patientID primitive.ObjectID) ([]domain.AssignedTask, error) {
	const op = "ListPatientTasks"
	if _, err := s.access.patient(ctx, op, patientID); err != nil {
		return nil, err
	}
	tasks, err := s.taskRepo.GetByPatientID(ctx, patientID)
	if err != nil {
		return nil, internal(op, err)
	}
	if tasks == nil {
		tasks = []domain.AssignedTask{}
	}
	return tasks, nil
}

// AllocateTasks creates tasks directly, outside of any template.
func (s *taskService) AllocateTasks(ctx context.Context, doctorID, patientID primitive.ObjectID, allocations []domain.TaskAllocation) ([]domain.AssignedTask, error) {
	const op = "AllocateTasks"
	if len(allocations) == 0 {
		return nil, invalid(op, "at least one task is required")
	}
	if _, err := s.access.managedPatient(ctx, op, doctorID, patientID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	tasks := make([]*domain.AssignedTask, 0, len(allocations))
	for i := range allocations {
		a := allocations[i]
		if err := validateStruct(op, a); err != nil {
			return nil, err
		}
		if err := normalizeBlueprint(op, &a.TaskBlueprint); err != nil {
			return nil, err
		}
		t := newTask(patientID, doctorID, nil, domain.SourceManual, a.TaskBlueprint, a.ZoneNumber, a.ProgramWeek)
		t.CreatedAt = now
		tasks = append(tasks, t)
	}

	if err := s.taskRepo.CreateMany(ctx, tasks); err != nil {
		return nil, internal(op, err)
	}

	s.notifier.Dispatch(notify.Message{
		Event:     notify.EventTasksAssigned,
		PatientID: patientID,
		Subject:   "New tasks from your doctor",
		Body:      fmt.Sprintf("Your doctor assigned %d new task(s).", len(tasks)),
		Data:      map[string]string{"count": strconv.Itoa(len(tasks))},
	})
	return derefTasks(tasks), nil
}

// RescheduleTask edits schedule fields of a task that is not completed.
func (s *taskService) RescheduleTask(ctx context.Context, doctorID, taskID primitive.ObjectID, schedule domain.TaskSchedule) (*domain.AssignedTask, error) {
	const op = "RescheduleTask"

	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fail(op, ErrTaskNotFound)
		}
		return nil, internal(op, err)
	}
	if _, err := s.access.managedPatient(ctx, op, doctorID, task.PatientID); err != nil {
		return nil, err
	}
	if task.Status == domain.TaskStatusCompleted {
		return nil, fail(op, ErrTaskNotReschedulable)
	}

	bp := domain.TaskBlueprint{
		Description:    task.Description,
		Frequency:      task.Frequency,
		DaysApplicable: task.DaysApplicable,
		TimeOfDay:      task.TimeOfDay,
		MetricRequired: task.MetricRequired,
	}
	week := task.ProgramWeek
	if schedule.Description != nil {
		bp.Description = *schedule.Description
	}
	if schedule.Frequency != nil {
		bp.Frequency = *schedule.Frequency
	}
	if schedule.DaysApplicable != nil {
		bp.DaysApplicable = schedule.DaysApplicable
	}
	if schedule.TimeOfDay != nil {
		bp.TimeOfDay = *schedule.TimeOfDay
	}
	if schedule.MetricRequired != nil {
		bp.MetricRequired = *schedule.MetricRequired
	}
	if schedule.ProgramWeek != nil {
		week = *schedule.ProgramWeek
	}
	alloc := domain.TaskAllocation{TaskBlueprint: bp, ZoneNumber: task.ZoneNumber, ProgramWeek: week}
	if err := validateStruct(op, alloc); err != nil {
		return nil, err
	}
	if err := normalizeBlueprint(op, &alloc.TaskBlueprint); err != nil {
		return nil, err
	}

	task.Description = alloc.Description
	task.Frequency = alloc.Frequency
	task.DaysApplicable = alloc.DaysApplicable
	task.TimeOfDay = alloc.TimeOfDay
	task.MetricRequired = alloc.MetricRequired
	task.ProgramWeek = alloc.ProgramWeek
	task.Status = domain.TaskStatusRescheduled

	if err := s.taskRepo.UpdateSchedule(ctx, task); err != nil {
		switch {
		case errors.Is(err, repository.ErrUpdateFailed):
			// Completed between our read and the write.
			return nil, fail(op, ErrTaskNotReschedulable)
		case errors.Is(err, repository.ErrNotFound):
			return nil, fail(op, ErrTaskNotFound)
		}
		return nil, internal(op, err)
	}
	return task, nil
}

// DeleteTask removes a task together with its ledger entries.
func (s *taskService) DeleteTask(ctx context.Context, doctorID, taskID primitive.ObjectID) error {
	const op = "DeleteTask"

	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(op, ErrTaskNotFound)
		}
		return internal(op, err)
	}
	if _, err := s.access.managedPatient(ctx, op, doctorID, task.PatientID); err != nil {
		return err
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return cascadeDeleteTask(ctx, op, s.taskRepo, s.ledger, s.logger, task.ID)
	})
}

// PatientCompliance reports a zone's compliance over one program week.
func (s *taskService) PatientCompliance(ctx context.Context, doctorID, patientID primitive.ObjectID, zone, week int) (*domain.WeeklyCompliance, error) {
	const op = "PatientCompliance"
	if zone < 1 || zone > domain.ZoneCount {
		return nil, invalid(op, "zone must be within 1..%d", domain.ZoneCount)
	}
	if week < 1 || week > domain.ProgramWeeks {
		return nil, invalid(op, "week must be within 1..%d", domain.ProgramWeeks)
	}
	patient, err := s.access.managedPatient(ctx, op, doctorID, patientID)
	if err != nil {
		return nil, err
	}
	if !patient.IsEnrolled() {
		return nil, fail(op, ErrNotEnrolled)
	}

	from, to := s.cal.WeekBounds(patient.Enrollment.StartDate, week)
	report, err := s.calc.zoneWindow(ctx, patientID, zone, from, to, s.clock.Now())
	if err != nil {
		return nil, internal(op, err)
	}
	report.ProgramWeek = week
	return report, nil
}

// normalizeBlueprint applies the rules struct tags cannot express.
func normalizeBlueprint(op string, bp *domain.TaskBlueprint) error {
	if bp.TimeOfDay == "" {
		bp.TimeOfDay = domain.TimeAnytime
	}
	if bp.Frequency == domain.FrequencySpecificDays {
		if len(bp.DaysApplicable) == 0 {
			return invalid(op, "daysApplicable is required for specific_days tasks")
		}
		return nil
	}
	// Only meaningful for specific_days.
	bp.DaysApplicable = nil
	return nil
}

func newTask(patientID, doctorID primitive.ObjectID, templateID *primitive.ObjectID, source domain.TaskSource, bp domain.TaskBlueprint, zone, week int) *domain.AssignedTask {
	return &domain.AssignedTask{
		PatientID:      patientID,
		DoctorID:       doctorID,
		TemplateID:     templateID,
		Source:         source,
		Description:    bp.Description,
		ZoneNumber:     zone,
		ProgramWeek:    week,
		Frequency:      bp.Frequency,
		DaysApplicable: append([]domain.Weekday(nil), bp.DaysApplicable...),
		TimeOfDay:      bp.TimeOfDay,
		MetricRequired: bp.MetricRequired,
		Status:         domain.TaskStatusPending,
	}
}

func derefTasks(tasks []*domain.AssignedTask) []domain.AssignedTask {
	out := make([]domain.AssignedTask, len(tasks))
	for i, t := range tasks {
		out[i] = *t
	}
	return out
}
