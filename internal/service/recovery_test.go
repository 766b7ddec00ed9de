package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/wellness-program/internal/domain"
	"alcyxob/wellness-program/internal/notify"
	"alcyxob/wellness-program/internal/repository"
)

var errStorageDown = errors.New("storage unavailable")

// flakyZones fails chosen zone repository calls once.
type flakyZones struct {
	repository.ZoneProgressRepository

	mu         sync.Mutex
	failGet    int
	failCreate bool
	createKeep int
}

// failNextGet makes the next Get of zone fail.
func (f *flakyZones) failNextGet(zone int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet = zone
}

// failNextCreateMany makes the next CreateMany store only its first keep
// records and then fail.
func (f *flakyZones) failNextCreateMany(keep int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCreate = true
	f.createKeep = keep
}

func (f *flakyZones) Get(ctx context.Context, patientID primitive.ObjectID, zone int) (*domain.ZoneProgressRecord, error) {
	f.mu.Lock()
	fail := f.failGet == zone
	if fail {
		f.failGet = 0
	}
	f.mu.Unlock()
	if fail {
		return nil, errStorageDown
	}
	return f.ZoneProgressRepository.Get(ctx, patientID, zone)
}

func (f *flakyZones) CreateMany(ctx context.Context, records []*domain.ZoneProgressRecord) error {
	f.mu.Lock()
	fail, keep := f.failCreate, f.createKeep
	f.failCreate = false
	f.mu.Unlock()
	if !fail {
		return f.ZoneProgressRepository.CreateMany(ctx, records)
	}
	keep = min(keep, len(records))
	if keep > 0 {
		if err := f.ZoneProgressRepository.CreateMany(ctx, records[:keep]); err != nil {
			return err
		}
	}
	return errStorageDown
}

// flakyTasks fails chosen task repository calls once.
type flakyTasks struct {
	repository.TaskRepository

	mu         sync.Mutex
	failCreate bool
	failDelete bool
}

func (f *flakyTasks) failNextCreateMany() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCreate = true
}

func (f *flakyTasks) failNextDelete() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDelete = true
}

func (f *flakyTasks) CreateMany(ctx context.Context, tasks []*domain.AssignedTask) error {
	f.mu.Lock()
	fail := f.failCreate
	f.failCreate = false
	f.mu.Unlock()
	if fail {
		return errStorageDown
	}
	return f.TaskRepository.CreateMany(ctx, tasks)
}

func (f *flakyTasks) Delete(ctx context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	fail := f.failDelete
	f.failDelete = false
	f.mu.Unlock()
	if fail {
		return errStorageDown
	}
	return f.TaskRepository.Delete(ctx, id)
}

func newFlakyZoneEnv(t *testing.T) (*testEnv, *flakyZones) {
	t.Helper()
	var zones *flakyZones
	env := newTestEnv(t, withZones(func(r repository.ZoneProgressRepository) repository.ZoneProgressRepository {
		zones = &flakyZones{ZoneProgressRepository: r}
		return zones
	}))
	return env, zones
}

func newFlakyTaskEnv(t *testing.T) (*testEnv, *flakyTasks) {
	t.Helper()
	var tasks *flakyTasks
	env := newTestEnv(t, withTasks(func(r repository.TaskRepository) repository.TaskRepository {
		tasks = &flakyTasks{TaskRepository: r}
		return tasks
	}))
	return env, tasks
}

func countEvents(env *testEnv, want notify.Event) int {
	n := 0
	for _, e := range env.notifier.events() {
		if e == want {
			n++
		}
	}
	return n
}

func taskIDs(tasks []domain.AssignedTask) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

func TestCompleteZone_RetryAfterUnlockFailure(t *testing.T) {
	env, zones := newFlakyZoneEnv(t)
	ctx := context.Background()
	doctor, patient := env.linkedPair(t)
	env.clock.Set(at(15, 12))

	zones.failNextGet(2)
	_, err := env.zones.CompleteZone(ctx, doctor.ID, patient.ID, 1)
	require.ErrorIs(t, err, errStorageDown)

	first, err := env.store.Zones.Get(ctx, patient.ID, 1)
	require.NoError(t, err)
	assert.True(t, first.IsCompleted)
	second, err := env.store.Zones.Get(ctx, patient.ID, 2)
	require.NoError(t, err)
	assert.False(t, second.IsUnlocked, "interrupted before the unlock")
	assert.Zero(t, countEvents(env, notify.EventZoneCompleted))

	rec, err := env.zones.CompleteZone(ctx, doctor.ID, patient.ID, 1)
	require.NoError(t, err, "a retry finishes the completion")
	assert.True(t, rec.IsCompleted)
	assert.Equal(t, 1, countEvents(env, notify.EventZoneCompleted))

	second, err = env.store.Zones.Get(ctx, patient.ID, 2)
	require.NoError(t, err)
	assert.True(t, second.IsUnlocked)
	require.NotNil(t, second.StartedAt)
	assert.True(t, at(15, 12).Equal(*second.StartedAt), "zone 2 starts when zone 1 was completed")

	_, err = env.zones.CompleteZone(ctx, doctor.ID, patient.ID, 1)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = env.zones.CompleteZone(ctx, doctor.ID, patient.ID, 2)
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.NotErrorIs(t, err, ErrZoneLocked)

	env.clock.Set(at(30, 12))
	rec, err = env.zones.CompleteZone(ctx, doctor.ID, patient.ID, 2)
	require.NoError(t, err)
	assert.True(t, rec.IsCompleted)
}

func TestRefreshZones_RepairsInterruptedCompletion(t *testing.T) {
	env, zones := newFlakyZoneEnv(t)
	ctx := context.Background()
	_, patient := env.linkedPair(t)
	env.clock.Set(at(15, 12))

	zones.failNextGet(2)
	_, err := env.zones.RefreshZones(ctx, patient.ID)
	require.ErrorIs(t, err, errStorageDown)

	records, err := env.zones.RefreshZones(ctx, patient.ID)
	require.NoError(t, err)
	require.Len(t, records, domain.ZoneCount)
	assert.True(t, records[0].IsCompleted)
	assert.True(t, records[1].IsUnlocked)
	assert.False(t, records[1].IsCompleted)
	assert.False(t, records[2].IsUnlocked)
	assert.Equal(t, 1, countEvents(env, notify.EventZoneCompleted))
}

func TestEnrollPatient_RetryAfterPartialZoneInit(t *testing.T) {
	env, zones := newFlakyZoneEnv(t)
	ctx := context.Background()
	patient := env.newUser(t, domain.RolePatient, "p@example.com")
	payment := PaymentConfirmation{Verified: true, Reference: "r1"}

	zones.failNextCreateMany(2)
	_, err := env.programs.EnrollPatient(ctx, patient.ID, payment, nil)
	require.ErrorIs(t, err, errStorageDown)

	records, err := env.store.Zones.GetByPatientID(ctx, patient.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.NotContains(t, env.notifier.events(), notify.EventEnrolled)

	enrollment, err := env.programs.EnrollPatient(ctx, patient.ID, payment, nil)
	require.NoError(t, err, "a retry finishes the enrollment")
	assert.Equal(t, at(1, 0), enrollment.StartDate)
	assert.Equal(t, 1, countEvents(env, notify.EventEnrolled))

	statuses, err := env.zones.GetZoneProgress(ctx, patient.ID)
	require.NoError(t, err)
	require.Len(t, statuses, domain.ZoneCount)
	assert.True(t, zoneByNumber(t, statuses, 1).IsUnlocked)
	for n := 2; n <= domain.ZoneCount; n++ {
		assert.Equal(t, domain.ZoneLocked, zoneByNumber(t, statuses, n).State)
	}

	_, err = env.programs.EnrollPatient(ctx, patient.ID, payment, nil)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
}

func TestAssignProgram_ReplaceInsertFailureKeepsOldProgram(t *testing.T) {
	env, tasks := newFlakyTaskEnv(t)
	ctx := context.Background()
	doctor, patient := env.linkedPair(t)
	tmpl, err := env.programs.CreateTemplate(ctx, doctor.ID, sampleTemplate("Reset"))
	require.NoError(t, err)
	original, err := env.programs.AssignProgram(ctx, doctor.ID, patient.ID, tmpl.ID, false)
	require.NoError(t, err)

	tasks.failNextCreateMany()
	_, err = env.programs.AssignProgram(ctx, doctor.ID, patient.ID, tmpl.ID, true)
	require.ErrorIs(t, err, errStorageDown)

	stored, err := env.store.Tasks.GetByPatientID(ctx, patient.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, taskIDs(original), taskIDs(stored), "old program untouched")

	replaced, err := env.programs.AssignProgram(ctx, doctor.ID, patient.ID, tmpl.ID, true)
	require.NoError(t, err)
	stored, err = env.store.Tasks.GetByPatientID(ctx, patient.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, taskIDs(replaced), taskIDs(stored))
}

func TestAssignProgram_ReplaceCleanupFailureIsRetryable(t *testing.T) {
	env, tasks := newFlakyTaskEnv(t)
	ctx := context.Background()
	doctor, patient := env.linkedPair(t)
	tmpl, err := env.programs.CreateTemplate(ctx, doctor.ID, sampleTemplate("Reset"))
	require.NoError(t, err)
	_, err = env.programs.AssignProgram(ctx, doctor.ID, patient.ID, tmpl.ID, false)
	require.NoError(t, err)

	tasks.failNextDelete()
	_, err = env.programs.AssignProgram(ctx, doctor.ID, patient.ID, tmpl.ID, true)
	require.ErrorIs(t, err, errStorageDown)

	stored, err := env.store.Tasks.GetByPatientID(ctx, patient.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 6, "new tasks written, old ones left behind")

	replaced, err := env.programs.AssignProgram(ctx, doctor.ID, patient.ID, tmpl.ID, true)
	require.NoError(t, err)
	stored, err = env.store.Tasks.GetByPatientID(ctx, patient.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, taskIDs(replaced), taskIDs(stored), "a repeated replace clears the leftovers")
}
