// Package memory provides in-memory repositories.
//
// They back local development (database.driver: memory) and the service
// tests, and enforce the same uniqueness rules as the MongoDB indexes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/wellness-program/internal/domain"
	"alcyxob/wellness-program/internal/repository"
)

// Store bundles one repository per collection.
type Store struct {
	Users           *UserRepository
	Tasks           *TaskRepository
	Compliance      *ComplianceRepository
	BodyMetrics     *BodyMetricsRepository
	Recommendations *RecommendationRepository
	Zones           *ZoneProgressRepository
	Videos          *ZoneVideoRepository
	Templates       *TemplateRepository
	Tx              Transactor
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		Users:           &UserRepository{byID: map[primitive.ObjectID]domain.User{}},
		Tasks:           &TaskRepository{byID: map[primitive.ObjectID]domain.AssignedTask{}},
		Compliance:      &ComplianceRepository{byID: map[primitive.ObjectID]domain.ComplianceLogEntry{}, dayIndex: map[dayIndexKey]primitive.ObjectID{}},
		BodyMetrics:     &BodyMetricsRepository{},
		Recommendations: &RecommendationRepository{overrides: map[primitive.ObjectID]domain.RecommendationOverride{}},
		Zones:           &ZoneProgressRepository{byKey: map[zoneKey]domain.ZoneProgressRecord{}},
		Videos:          &ZoneVideoRepository{byID: map[primitive.ObjectID]domain.ZoneVideo{}},
		Templates:       &TemplateRepository{byID: map[primitive.ObjectID]domain.ProgramTemplate{}},
	}
}

// Transactor runs fn directly; each repository call is individually atomic.
type Transactor struct{}

func (Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ repository.Transactor = Transactor{}

// --- Users ---

type UserRepository struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]domain.User
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == user.Email {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	user.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.byID[user.ID] = cloneUser(*user)
	return user.ID, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if u.Email == email {
			out := cloneUser(u)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneUser(u)
	return &out, nil
}

func (r *UserRepository) AddPatientIDToDoctor(ctx context.Context, doctorID, patientID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[doctorID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, id := range d.PatientIDs {
		if id == patientID {
			return nil
		}
	}
	d.PatientIDs = append(d.PatientIDs, patientID)
	d.UpdatedAt = time.Now().UTC()
	r.byID[doctorID] = d
	return nil
}

func (r *UserRepository) GetPatientsByDoctorID(ctx context.Context, doctorID primitive.ObjectID) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[doctorID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	var patients []domain.User
	for _, id := range d.PatientIDs {
		if p, ok := r.byID[id]; ok {
			patients = append(patients, cloneUser(p))
		}
	}
	return patients, nil
}

func (r *UserRepository) SetDoctorForPatient(ctx context.Context, patientID, doctorID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[patientID]
	if !ok {
		return repository.ErrNotFound
	}
	id := doctorID
	p.DoctorID = &id
	p.UpdatedAt = time.Now().UTC()
	r.byID[patientID] = p
	return nil
}

func (r *UserRepository) SetEnrollment(ctx context.Context, patientID primitive.ObjectID, enrollment domain.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[patientID]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Enrollment != nil {
		return repository.ErrDuplicate
	}
	e := enrollment
	p.Enrollment = &e
	p.UpdatedAt = time.Now().UTC()
	r.byID[patientID] = p
	return nil
}

func cloneUser(u domain.User) domain.User {
	u.PatientIDs = append([]primitive.ObjectID(nil), u.PatientIDs...)
	if u.DoctorID != nil {
		id := *u.DoctorID
		u.DoctorID = &id
	}
	if u.Enrollment != nil {
		e := *u.Enrollment
		u.Enrollment = &e
	}
	return u
}

// --- Tasks ---

type TaskRepository struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]domain.AssignedTask
}

var _ repository.TaskRepository = (*TaskRepository)(nil)

func (r *TaskRepository) CreateMany(ctx context.Context, tasks []*domain.AssignedTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range tasks {
		t.ID = primitive.NewObjectID()
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.UpdatedAt = now
		if t.Status == "" {
			t.Status = domain.TaskStatusPending
		}
		r.byID[t.ID] = cloneTask(*t)
	}
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.AssignedTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneTask(t)
	return &out, nil
}

func (r *TaskRepository) GetByPatientID(ctx context.Context, patientID primitive.ObjectID, statuses ...domain.TaskStatus) ([]domain.AssignedTask, error) {
	return r.filter(func(t domain.AssignedTask) bool {
		if t.PatientID != patientID {
			return false
		}
		if len(statuses) == 0 {
			return true
		}
		for _, s := range statuses {
			if t.Status == s {
				return true
			}
		}
		return false
	}), nil
}

func (r *TaskRepository) GetByPatientAndZone(ctx context.Context, patientID primitive.ObjectID, zone int) ([]domain.AssignedTask, error) {
	return r.filter(func(t domain.AssignedTask) bool {
		return t.PatientID == patientID && t.ZoneNumber == zone
	}), nil
}

func (r *TaskRepository) filter(keep func(domain.AssignedTask) bool) []domain.AssignedTask {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.AssignedTask
	for _, t := range r.byID {
		if keep(t) {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProgramWeek != out[j].ProgramWeek {
			return out[i].ProgramWeek < out[j].ProgramWeek
		}
		if out[i].ZoneNumber != out[j].ZoneNumber {
			return out[i].ZoneNumber < out[j].ZoneNumber
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out
}

func (r *TaskRepository) UpdateSchedule(ctx context.Context, task *domain.AssignedTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[task.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if t.Status == domain.TaskStatusCompleted {
		return repository.ErrUpdateFailed
	}
	t.Description = task.Description
	t.Frequency = task.Frequency
	t.DaysApplicable = append([]domain.Weekday(nil), task.DaysApplicable...)
	t.TimeOfDay = task.TimeOfDay
	t.ProgramWeek = task.ProgramWeek
	t.MetricRequired = task.MetricRequired
	t.Status = task.Status
	t.UpdatedAt = time.Now().UTC()
	r.byID[task.ID] = t
	return nil
}

func (r *TaskRepository) MarkCompleted(ctx context.Context, id primitive.ObjectID, completedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if t.Status == domain.TaskStatusCompleted {
		return false, nil
	}
	at := completedAt
	t.Status = domain.TaskStatusCompleted
	t.CompletionDate = &at
	t.UpdatedAt = time.Now().UTC()
	r.byID[id] = t
	return true, nil
}

func (r *TaskRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func cloneTask(t domain.AssignedTask) domain.AssignedTask {
	t.DaysApplicable = append([]domain.Weekday(nil), t.DaysApplicable...)
	if t.CompletionDate != nil {
		d := *t.CompletionDate
		t.CompletionDate = &d
	}
	if t.TemplateID != nil {
		id := *t.TemplateID
		t.TemplateID = &id
	}
	return t
}

// --- Compliance ledger ---

type dayIndexKey struct {
	taskID primitive.ObjectID
	day    string
}

type ComplianceRepository struct {
	mu       sync.RWMutex
	byID     map[primitive.ObjectID]domain.ComplianceLogEntry
	dayIndex map[dayIndexKey]primitive.ObjectID
}

var _ repository.ComplianceRepository = (*ComplianceRepository)(nil)

func (r *ComplianceRepository) Create(ctx context.Context, entry *domain.ComplianceLogEntry) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := dayIndexKey{taskID: entry.TaskID, day: entry.DayKey}
	if entry.DayKey != "" {
		if _, exists := r.dayIndex[key]; exists {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	entry.ID = primitive.NewObjectID()
	entry.CreatedAt = time.Now().UTC()
	r.byID[entry.ID] = *entry
	if entry.DayKey != "" {
		r.dayIndex[key] = entry.ID
	}
	return entry.ID, nil
}

func (r *ComplianceRepository) ExistsForDay(ctx context.Context, taskID primitive.ObjectID, dayStart, dayEnd time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.byID {
		if e.TaskID == taskID && inRange(e.CompletionDate, dayStart, dayEnd) {
			return true, nil
		}
	}
	return false, nil
}

func (r *ComplianceRepository) GetByTaskIDs(ctx context.Context, taskIDs []primitive.ObjectID, from, to time.Time) ([]domain.ComplianceLogEntry, error) {
	ids := make(map[primitive.ObjectID]struct{}, len(taskIDs))
	for _, id := range taskIDs {
		ids[id] = struct{}{}
	}
	return r.filter(func(e domain.ComplianceLogEntry) bool {
		_, ok := ids[e.TaskID]
		return ok && inRange(e.CompletionDate, from, to)
	}), nil
}

func (r *ComplianceRepository) filter(keep func(domain.ComplianceLogEntry) bool) []domain.ComplianceLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ComplianceLogEntry
	for _, e := range r.byID {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletionDate.Before(out[j].CompletionDate) })
	return out
}

func (r *ComplianceRepository) CountByTaskID(ctx context.Context, taskID primitive.ObjectID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, e := range r.byID {
		if e.TaskID == taskID {
			n++
		}
	}
	return n, nil
}

func (r *ComplianceRepository) DeleteByID(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	if e.DayKey != "" {
		delete(r.dayIndex, dayIndexKey{taskID: e.TaskID, day: e.DayKey})
	}
	return nil
}

func (r *ComplianceRepository) DeleteByTaskID(ctx context.Context, taskID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.byID {
		if e.TaskID != taskID {
			continue
		}
		delete(r.byID, id)
		if e.DayKey != "" {
			delete(r.dayIndex, dayIndexKey{taskID: e.TaskID, day: e.DayKey})
		}
		n++
	}
	return n, nil
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

// --- Body metrics ---

type BodyMetricsRepository struct {
	mu      sync.RWMutex
	samples []domain.BodyMetricsSample
}

var _ repository.BodyMetricsRepository = (*BodyMetricsRepository)(nil)

func (r *BodyMetricsRepository) Create(ctx context.Context, sample *domain.BodyMetricsSample) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sample.ID = primitive.NewObjectID()
	if sample.LoggedAt.IsZero() {
		sample.LoggedAt = time.Now().UTC()
	}
	r.samples = append(r.samples, *sample)
	return sample.ID, nil
}

func (r *BodyMetricsRepository) GetByPatientID(ctx context.Context, patientID primitive.ObjectID) ([]domain.BodyMetricsSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.BodyMetricsSample
	for _, s := range r.samples {
		if s.PatientID == patientID {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LoggedAt.Before(out[j].LoggedAt) })
	return out, nil
}

// --- Recommendations ---

type RecommendationRepository struct {
	mu        sync.RWMutex
	bundles   []domain.RecommendationBundle
	overrides map[primitive.ObjectID]domain.RecommendationOverride
}

var _ repository.RecommendationRepository = (*RecommendationRepository)(nil)

func (r *RecommendationRepository) Create(ctx context.Context, bundle *domain.RecommendationBundle) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bundle.ID = primitive.NewObjectID()
	if bundle.CreatedAt.IsZero() {
		bundle.CreatedAt = time.Now().UTC()
	}
	r.bundles = append(r.bundles, *bundle)
	return bundle.ID, nil
}

func (r *RecommendationRepository) GetLatest(ctx context.Context, patientID primitive.ObjectID) (*domain.RecommendationBundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	// Appends are in creation order, so the last match is the newest.
	for i := len(r.bundles) - 1; i >= 0; i-- {
		if r.bundles[i].PatientID == patientID {
			b := r.bundles[i]
			return &b, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *RecommendationRepository) GetOverride(ctx context.Context, patientID primitive.ObjectID) (*domain.RecommendationOverride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.overrides[patientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

func (r *RecommendationRepository) UpsertOverride(ctx context.Context, override *domain.RecommendationOverride) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	override.UpdatedAt = time.Now().UTC()
	r.overrides[override.PatientID] = *override
	return nil
}

// --- Zone progress ---

type zoneKey struct {
	patientID primitive.ObjectID
	zone      int
}

type ZoneProgressRepository struct {
	mu    sync.RWMutex
	byKey map[zoneKey]domain.ZoneProgressRecord
}

var _ repository.ZoneProgressRepository = (*ZoneProgressRepository)(nil)

func (r *ZoneProgressRepository) CreateMany(ctx context.Context, records []*domain.ZoneProgressRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		if _, exists := r.byKey[zoneKey{rec.PatientID, rec.ZoneNumber}]; exists {
			return repository.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	for _, rec := range records {
		rec.ID = primitive.NewObjectID()
		rec.UpdatedAt = now
		if rec.WatchedVideoIDs == nil {
			rec.WatchedVideoIDs = []primitive.ObjectID{}
		}
		r.byKey[zoneKey{rec.PatientID, rec.ZoneNumber}] = cloneZone(*rec)
	}
	return nil
}

func (r *ZoneProgressRepository) Get(ctx context.Context, patientID primitive.ObjectID, zone int) (*domain.ZoneProgressRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byKey[zoneKey{patientID, zone}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneZone(rec)
	return &out, nil
}

func (r *ZoneProgressRepository) GetByPatientID(ctx context.Context, patientID primitive.ObjectID) ([]domain.ZoneProgressRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ZoneProgressRecord
	for k, rec := range r.byKey {
		if k.patientID == patientID {
			out = append(out, cloneZone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ZoneNumber < out[j].ZoneNumber })
	return out, nil
}

func (r *ZoneProgressRepository) AddWatchedVideo(ctx context.Context, patientID primitive.ObjectID, zone int, videoID primitive.ObjectID) (*domain.ZoneProgressRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := zoneKey{patientID, zone}
	rec, ok := r.byKey[k]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !rec.HasWatched(videoID) {
		rec.WatchedVideoIDs = append(rec.WatchedVideoIDs, videoID)
		rec.UpdatedAt = time.Now().UTC()
		r.byKey[k] = rec
	}
	out := cloneZone(rec)
	return &out, nil
}

func (r *ZoneProgressRepository) Update(ctx context.Context, record *domain.ZoneProgressRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := zoneKey{record.PatientID, record.ZoneNumber}
	cur, ok := r.byKey[k]
	if !ok {
		return repository.ErrNotFound
	}
	next := cloneZone(*record)
	// The watched set is only ever grown through AddWatchedVideo.
	next.WatchedVideoIDs = cur.WatchedVideoIDs
	next.UpdatedAt = time.Now().UTC()
	r.byKey[k] = next
	return nil
}

func cloneZone(z domain.ZoneProgressRecord) domain.ZoneProgressRecord {
	z.WatchedVideoIDs = append([]primitive.ObjectID{}, z.WatchedVideoIDs...)
	if z.StartedAt != nil {
		t := *z.StartedAt
		z.StartedAt = &t
	}
	if z.CompletedAt != nil {
		t := *z.CompletedAt
		z.CompletedAt = &t
	}
	return z
}

// --- Zone videos ---

type ZoneVideoRepository struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]domain.ZoneVideo
}

var _ repository.ZoneVideoRepository = (*ZoneVideoRepository)(nil)

func (r *ZoneVideoRepository) Create(ctx context.Context, video *domain.ZoneVideo) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	video.ID = primitive.NewObjectID()
	video.CreatedAt = time.Now().UTC()
	r.byID[video.ID] = *video
	return video.ID, nil
}

func (r *ZoneVideoRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ZoneVideo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (r *ZoneVideoRepository) GetByZone(ctx context.Context, zone int) ([]domain.ZoneVideo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ZoneVideo
	for _, v := range r.byID {
		if v.ZoneNumber == zone {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

func (r *ZoneVideoRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

// --- Templates ---

type TemplateRepository struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]domain.ProgramTemplate
}

var _ repository.TemplateRepository = (*TemplateRepository)(nil)

func (r *TemplateRepository) Create(ctx context.Context, tmpl *domain.ProgramTemplate) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byID {
		if t.Name == tmpl.Name {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	tmpl.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	r.byID[tmpl.ID] = *tmpl
	return tmpl.ID, nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ProgramTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r *TemplateRepository) GetByName(ctx context.Context, name string) (*domain.ProgramTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.byID {
		if t.Name == name {
			out := t
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *TemplateRepository) List(ctx context.Context) ([]domain.ProgramTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ProgramTemplate, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *TemplateRepository) Update(ctx context.Context, tmpl *domain.ProgramTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[tmpl.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for id, t := range r.byID {
		if id != tmpl.ID && t.Name == tmpl.Name {
			return repository.ErrDuplicate
		}
	}
	cur.Name = tmpl.Name
	cur.Description = tmpl.Description
	cur.Cells = tmpl.Cells
	cur.UpdatedAt = time.Now().UTC()
	r.byID[tmpl.ID] = cur
	tmpl.UpdatedAt = cur.UpdatedAt
	tmpl.CreatedAt = cur.CreatedAt
	return nil
}
