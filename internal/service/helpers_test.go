package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"alcyxob/wellness-program/internal/calendar"
	"alcyxob/wellness-program/internal/config"
	"alcyxob/wellness-program/internal/domain"
	"alcyxob/wellness-program/internal/lock"
	"alcyxob/wellness-program/internal/notify"
	"alcyxob/wellness-program/internal/repository"
	"alcyxob/wellness-program/internal/repository/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) AdvanceDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, n)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *recordingNotifier) Dispatch(msg notify.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *recordingNotifier) events() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Event, len(n.msgs))
	for i, m := range n.msgs {
		out[i] = m.Event
	}
	return out
}

type fakeStorage struct {
	mu      sync.Mutex
	deleted []string
}

func (s *fakeStorage) GeneratePresignedUploadURL(_ context.Context, key, contentType string, expires time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.test/%s?put&type=%s&ttl=%s", key, contentType, expires), nil
}

func (s *fakeStorage) GeneratePresignedDownloadURL(_ context.Context, key string, expires time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.test/%s?get&ttl=%s", key, expires), nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	return nil
}

// Monday 2024-01-01, 08:00 UTC.
var testStart = time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	store    *memory.Store
	clock    *fakeClock
	notifier *recordingNotifier
	storage  *fakeStorage
	cal      calendar.Calendar

	auth     AuthService
	doctors  DoctorService
	tasks    TaskService
	zones    ZoneService
	programs ProgramService
	wellness WellnessService
}

// testRepos are the repositories a test may swap for a decorated version.
type testRepos struct {
	tasks repository.TaskRepository
	zones repository.ZoneProgressRepository
}

type envOption func(*testRepos)

func withZones(wrap func(repository.ZoneProgressRepository) repository.ZoneProgressRepository) envOption {
	return func(r *testRepos) { r.zones = wrap(r.zones) }
}

func withTasks(wrap func(repository.TaskRepository) repository.TaskRepository) envOption {
	return func(r *testRepos) { r.tasks = wrap(r.tasks) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	store := memory.NewStore()
	repos := &testRepos{tasks: store.Tasks, zones: store.Zones}
	for _, opt := range opts {
		opt(repos)
	}
	clock := &fakeClock{now: testStart}
	notifier := &recordingNotifier{}
	files := &fakeStorage{}
	cal := calendar.New(time.UTC)
	logger := zap.NewNop()
	locker := lock.NewLocalLocker()

	zones := NewZoneService(ZoneServiceDeps{
		Users:      store.Users,
		Zones:      repos.zones,
		Videos:     store.Videos,
		Tasks:      repos.tasks,
		Ledger:     store.Compliance,
		Tx:         store.Tx,
		Locker:     locker,
		Storage:    files,
		Calendar:   cal,
		Clock:      clock,
		Notifier:   notifier,
		Logger:     logger,
		Policy:     config.ZoneConfig{MinWeeks: []int{2, 2, 2, 2, 3}, PoorComplianceBelow: 0.5},
		Bands:      DefaultComplianceBands,
		PresignTTL: 10 * time.Minute,
	})

	return &testEnv{
		store:    store,
		clock:    clock,
		notifier: notifier,
		storage:  files,
		cal:      cal,
		auth:     NewAuthService(store.Users, "test-secret", time.Hour, logger),
		doctors:  NewDoctorService(store.Users, store.Tx, logger),
		tasks:    NewTaskService(store.Users, repos.tasks, store.Compliance, store.Tx, cal, DefaultComplianceBands, clock, notifier, logger),
		zones:    zones,
		programs: NewProgramService(store.Users, store.Templates, repos.tasks, store.Compliance, store.Tx, locker, zones, cal, clock, notifier, ProgramPolicy{AllowReplace: true}, logger),
		wellness: NewWellnessService(store.Users, store.BodyMetrics, store.Recommendations, repos.zones, clock, logger),
	}
}

func (e *testEnv) newUser(t *testing.T, role domain.Role, email string) *domain.User {
	t.Helper()
	u := &domain.User{Name: email, Email: email, PasswordHash: "x", Role: role}
	_, err := e.store.Users.Create(context.Background(), u)
	require.NoError(t, err)
	return u
}

// linkedPair creates a doctor and an enrolled patient managed by them.
func (e *testEnv) linkedPair(t *testing.T) (doctor, patient *domain.User) {
	t.Helper()
	ctx := context.Background()
	doctor = e.newUser(t, domain.RoleDoctor, "doc-"+primitive.NewObjectID().Hex()+"@example.com")
	patient = e.newUser(t, domain.RolePatient, "pat-"+primitive.NewObjectID().Hex()+"@example.com")
	_, err := e.doctors.AddPatientByEmail(ctx, doctor.ID, patient.Email)
	require.NoError(t, err)
	_, err = e.programs.EnrollPatient(ctx, patient.ID, PaymentConfirmation{Verified: true, Reference: "pay-" + patient.ID.Hex()}, nil)
	require.NoError(t, err)
	return doctor, patient
}

func (e *testEnv) allocate(t *testing.T, doctorID, patientID primitive.ObjectID, alloc domain.TaskAllocation) domain.AssignedTask {
	t.Helper()
	tasks, err := e.tasks.AllocateTasks(context.Background(), doctorID, patientID, []domain.TaskAllocation{alloc})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	return tasks[0]
}

func dailyTask(desc string, zone, week int) domain.TaskAllocation {
	return domain.TaskAllocation{
		TaskBlueprint: domain.TaskBlueprint{Description: desc, Frequency: domain.FrequencyDaily},
		ZoneNumber:    zone,
		ProgramWeek:   week,
	}
}

func at(day int, hour int) time.Time {
	return time.Date(2024, time.January, day, hour, 0, 0, 0, time.UTC)
}
