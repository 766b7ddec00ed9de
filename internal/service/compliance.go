package service

import (
	"alcyxob/wellness-program/internal/calendar"
	"alcyxob/wellness-program/internal/domain"
	"alcyxob/wellness-program/internal/repository"
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ComplianceBands holds the lower bounds of each band. Ratios below
// PoorBelow are poor.
type ComplianceBands struct {
	ExcellentAtLeast float64
	GoodAtLeast      float64
	PoorBelow        float64
}

// DefaultComplianceBands are the bands used when none are configured.
var DefaultComplianceBands = ComplianceBands{ExcellentAtLeast: 0.9, GoodAtLeast: 0.75, PoorBelow: 0.5}

// Band classifies a ratio.
func (b ComplianceBands) Band(ratio float64) domain.ComplianceBand {
	switch {
	case ratio >= b.ExcellentAtLeast:
		return domain.BandExcellent
	case ratio >= b.GoodAtLeast:
		return domain.BandGood
	case ratio >= b.PoorBelow:
		return domain.BandFair
	default:
		return domain.BandPoor
	}
}

// complianceCalculator aggregates ledger entries against the occurrences a
// zone's tasks were expected to produce in a window.
type complianceCalculator struct {
	tasks  repository.TaskRepository
	ledger repository.ComplianceRepository
	cal    calendar.Calendar
	bands  ComplianceBands
}

// zoneWindow computes compliance of one zone's tasks within [from, to).
// now caps the window so days that have not happened yet are not expected.
func (c complianceCalculator) zoneWindow(ctx context.Context, patientID primitive.ObjectID, zone int, from, to, now time.Time) (*domain.WeeklyCompliance, error) {
	if _, tomorrow := c.cal.DayBounds(now); to.After(tomorrow) {
		to = tomorrow
	}
	result := &domain.WeeklyCompliance{PatientID: patientID, ZoneNumber: zone, From: from, To: to}
	if !to.After(from) {
		result.Ratio = 1
		result.Band = c.bands.Band(1)
		return result, nil
	}

	tasks, err := c.tasks.GetByPatientAndZone(ctx, patientID, zone)
	if err != nil {
		return nil, fmt.Errorf("load zone tasks: %w", err)
	}
	ids := make([]primitive.ObjectID, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	entries, err := c.ledger.GetByTaskIDs(ctx, ids, from, to)
	if err != nil {
		return nil, fmt.Errorf("load ledger entries: %w", err)
	}

	loggedDays := make(map[primitive.ObjectID]map[string]struct{}, len(tasks))
	for _, e := range entries {
		days, ok := loggedDays[e.TaskID]
		if !ok {
			days = make(map[string]struct{})
			loggedDays[e.TaskID] = days
		}
		days[c.cal.DayKey(e.CompletionDate)] = struct{}{}
	}

	for i := range tasks {
		expected, completed := c.taskOccurrences(&tasks[i], loggedDays[tasks[i].ID], from, to)
		result.Expected += expected
		result.Completed += completed
	}

	result.Ratio = 1
	if result.Expected > 0 {
		result.Ratio = float64(result.Completed) / float64(result.Expected)
	}
	result.Band = c.bands.Band(result.Ratio)
	return result, nil
}

// taskOccurrences returns how many completions the task was expected to
// produce in [from, to) and how many of those were logged.
func (c complianceCalculator) taskOccurrences(t *domain.AssignedTask, logged map[string]struct{}, from, to time.Time) (int, int) {
	// Tasks assigned mid-window only count from their first day.
	if created := c.cal.DayStart(t.CreatedAt); created.After(from) {
		from = created
	}
	if !to.After(from) {
		return 0, 0
	}

	if t.Frequency.OncePerDay() {
		expected, completed := 0, 0
		for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
			if t.Frequency == domain.FrequencySpecificDays && !domain.ContainsWeekday(t.DaysApplicable, c.cal.Weekday(day)) {
				continue
			}
			expected++
			if _, ok := logged[c.cal.DayKey(day)]; ok {
				completed++
			}
		}
		return expected, completed
	}

	// Weekly and one-time tasks close on their first completion; one closed
	// before the window owes nothing in it.
	if t.Status == domain.TaskStatusCompleted && t.CompletionDate != nil && t.CompletionDate.Before(from) {
		return 0, 0
	}
	if len(logged) > 0 {
		return 1, 1
	}
	return 1, 0
}

// cascadeDeleteTask removes a task's ledger entries and then the task.
// Entries left behind afterwards are reported as an inconsistency.
func cascadeDeleteTask(ctx context.Context, op string, tasks repository.TaskRepository, ledger repository.ComplianceRepository, logger *zap.Logger, taskID primitive.ObjectID) error {
	removed, err := ledger.DeleteByTaskID(ctx, taskID)
	if err != nil {
		return internal(op, fmt.Errorf("delete ledger entries: %w", err))
	}
	if err := tasks.Delete(ctx, taskID); err != nil {
		return internal(op, fmt.Errorf("delete task: %w", err))
	}

	left, err := ledger.CountByTaskID(ctx, taskID)
	if err != nil {
		return internal(op, fmt.Errorf("verify cascade: %w", err))
	}
	if left > 0 {
		logger.Error("orphaned compliance logs after cascade delete",
			zap.String("taskId", taskID.Hex()),
			zap.Int64("removed", removed),
			zap.Int64("remaining", left),
		)
		return fail(op, ErrOrphanedComplianceLog)
	}
	logger.Debug("task deleted", zap.String("taskId", taskID.Hex()), zap.Int64("logsRemoved", removed))
	return nil
}
