package service

import (
	"alcyxob/wellness-program/internal/calendar"
	"alcyxob/wellness-program/internal/config"
	"alcyxob/wellness-program/internal/domain"
	"alcyxob/wellness-program/internal/lock"
	"alcyxob/wellness-program/internal/metrics"
	"alcyxob/wellness-program/internal/notify"
	"alcyxob/wellness-program/internal/repository"
	"alcyxob/wellness-program/internal/storage"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	triggerAuto   = "auto"
	triggerDoctor = "doctor"
)

// GateCheck is the evaluation of a zone's completion conditions.
type GateCheck struct {
	WeeksInZone    int                      `json:"weeksInZone"`
	MinWeeks       int                      `json:"minWeeks"`
	VideosWatched  int                      `json:"videosWatched"`
	VideosRequired int                      `json:"videosRequired"`
	FinalWeek      *domain.WeeklyCompliance `json:"finalWeek"`
	Unmet          []string                 `json:"unmet"`
}

// Satisfied reports whether the zone may be completed.
func (g *GateCheck) Satisfied() bool {
	return len(g.Unmet) == 0
}

// ZoneStatus is a progress record with its derived state. Gate is only set
// for the zone currently in progress.
type ZoneStatus struct {
	domain.ZoneProgressRecord
	State domain.ZoneState `json:"state"`
	Gate  *GateCheck       `json:"gate,omitempty"`
}

// ZoneVideoView is a video as listed to a patient.
type ZoneVideoView struct {
	domain.ZoneVideo
	URL     string `json:"url"`
	Watched bool   `json:"watched"`
}

// VideoUploadTicket tells a doctor where to PUT a new zone video.
type VideoUploadTicket struct {
	ObjectKey string    `json:"objectKey"`
	UploadURL string    `json:"uploadUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateZoneVideoInput registers an uploaded video as required for a zone.
type CreateZoneVideoInput struct {
	ZoneNumber  int    `json:"zoneNumber" validate:"min=1,max=5"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	ObjectKey   string `json:"objectKey" validate:"required"`
	Sequence    int    `json:"sequence" validate:"min=0"`
}

type ZoneService interface {
	InitZones(ctx context.Context, patientID primitive.ObjectID, startedAt time.Time) (int, error)
	GetZoneProgress(ctx context.Context, patientID primitive.ObjectID) ([]ZoneStatus, error)
	RefreshZones(ctx context.Context, patientID primitive.ObjectID) ([]domain.ZoneProgressRecord, error)
	PatientZones(ctx context.Context, doctorID, patientID primitive.ObjectID) ([]ZoneStatus, error)
	CompleteZone(ctx context.Context, doctorID, patientID primitive.ObjectID, zone int) (*domain.ZoneProgressRecord, error)
	MarkVideoWatched(ctx context.Context, patientID primitive.ObjectID, zone int, videoID primitive.ObjectID) (*domain.ZoneProgressRecord, error)
	ListZoneVideos(ctx context.Context, patientID primitive.ObjectID, zone int) ([]ZoneVideoView, error)

	RequestVideoUploadURL(ctx context.Context, zone int, fileName, contentType string) (*VideoUploadTicket, error)
	CreateZoneVideo(ctx context.Context, input CreateZoneVideoInput) (*domain.ZoneVideo, error)
	DeleteZoneVideo(ctx context.Context, zone int, videoID primitive.ObjectID) error
}

// ZoneServiceDeps groups the collaborators of the zone service.
type ZoneServiceDeps struct {
	Users      repository.UserRepository
	Zones      repository.ZoneProgressRepository
	Videos     repository.ZoneVideoRepository
	Tasks      repository.TaskRepository
	Ledger     repository.ComplianceRepository
	Tx         repository.Transactor
	Locker     lock.KeyedLocker
	Storage    storage.FileStorage
	Calendar   calendar.Calendar
	Clock      Clock
	Notifier   Notifier
	Logger     *zap.Logger
	Policy     config.ZoneConfig
	Bands      ComplianceBands
	PresignTTL time.Duration
}

type zoneService struct {
	ZoneServiceDeps
	access patientAccess
	calc   complianceCalculator
	group  singleflight.Group
}

func NewZoneService(deps ZoneServiceDeps) ZoneService {
	return &zoneService{
		ZoneServiceDeps: deps,
		access:          patientAccess{users: deps.Users},
		calc:            complianceCalculator{tasks: deps.Tasks, ledger: deps.Ledger, cal: deps.Calendar, bands: deps.Bands},
	}
}

func (s *zoneService) presignTTL() time.Duration {
	if s.PresignTTL <= 0 {
		return storage.DefaultPresignedURLExpiry
	}
	return s.PresignTTL
}

func zoneLockKey(patientID primitive.ObjectID, zone int) string {
	return "zone:" + patientID.Hex() + ":" + strconv.Itoa(zone)
}

// InitZones creates whichever of the patient's five records are missing.
// Zone 1 starts unlocked at startedAt. Records that already exist are kept,
// so a half-finished initialization can be run again. It returns the number
// of records created.
func (s *zoneService) InitZones(ctx context.Context, patientID primitive.ObjectID, startedAt time.Time) (int, error) {
	const op = "InitZones"
	existing, err := s.Zones.GetByPatientID(ctx, patientID)
	if err != nil {
		return 0, internal(op, err)
	}
	have := make(map[int]bool, len(existing))
	for _, r := range existing {
		have[r.ZoneNumber] = true
	}

	records := make([]*domain.ZoneProgressRecord, 0, domain.ZoneCount)
	for n := 1; n <= domain.ZoneCount; n++ {
		if have[n] {
			continue
		}
		rec := &domain.ZoneProgressRecord{PatientID: patientID, ZoneNumber: n}
		if n == 1 {
			start := startedAt
			rec.IsUnlocked = true
			rec.StartedAt = &start
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return 0, nil
	}
	if err := s.Zones.CreateMany(ctx, records); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return 0, fail(op, ErrAlreadyEnrolled)
		}
		return 0, internal(op, err)
	}
	return len(records), nil
}

// GetZoneProgress brings the patient's zones up to date and returns them.
func (s *zoneService) GetZoneProgress(ctx context.Context, patientID primitive.ObjectID) ([]ZoneStatus, error) {
	const op = "GetZoneProgress"
	if _, err := s.access.patient(ctx, op, patientID); err != nil {
		return nil, err
	}
	return s.progress(ctx, op, patientID)
}

// RefreshZones applies lazy advancement without evaluating gates for display.
func (s *zoneService) RefreshZones(ctx context.Context, patientID primitive.ObjectID) ([]domain.ZoneProgressRecord, error) {
	records, err := s.refresh(ctx, patientID)
	if err != nil {
		return nil, wrap("RefreshZones", KindInternal, err)
	}
	return records, nil
}

func (s *zoneService) PatientZones(ctx context.Context, doctorID, patientID primitive.ObjectID) ([]ZoneStatus, error) {
	const op = "PatientZones"
	if _, err := s.access.managedPatient(ctx, op, doctorID, patientID); err != nil {
		return nil, err
	}
	return s.progress(ctx, op, patientID)
}

func (s *zoneService) progress(ctx context.Context, op string, patientID primitive.ObjectID) ([]ZoneStatus, error) {
	records, err := s.refresh(ctx, patientID)
	if err != nil {
		return nil, wrap(op, KindInternal, err)
	}

	now := s.Clock.Now()
	out := make([]ZoneStatus, len(records))
	for i := range records {
		rec := records[i]
		out[i] = ZoneStatus{ZoneProgressRecord: rec, State: rec.State()}
		if rec.IsUnlocked && !rec.IsCompleted {
			gate, err := s.evaluateGate(ctx, &rec, now)
			if err != nil {
				return nil, internal(op, err)
			}
			out[i].Gate = gate
		}
	}
	return out, nil
}

// refresh applies lazy advancement to every active zone of the patient.
// Concurrent refreshes of one patient share a single run.
func (s *zoneService) refresh(ctx context.Context, patientID primitive.ObjectID) ([]domain.ZoneProgressRecord, error) {
	// The shared run must not die with whichever caller started it.
	runCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(patientID.Hex(), func() (interface{}, error) {
		started := time.Now()
		defer func() { metrics.ZoneRefreshSeconds.Observe(time.Since(started).Seconds()) }()

		records, err := s.Zones.GetByPatientID(runCtx, patientID)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, ErrNotEnrolled
		}

		now := s.Clock.Now()
		for n := 1; n <= domain.ZoneCount; n++ {
			_, _, err := s.advance(runCtx, patientID, n, now, triggerAuto)
			switch {
			case err == nil:
			case errors.Is(err, ErrZoneLocked), errors.Is(err, ErrZoneAlreadyCompleted), errors.Is(err, ErrZoneNotFound):
				// Nothing to advance in this zone.
			default:
				return nil, err
			}
		}
		return s.Zones.GetByPatientID(runCtx, patientID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.ZoneProgressRecord), nil
}

// advance accrues weeks for zone n, re-evaluates its gate and completes it
// when the gate is satisfied. It holds the (patient, zone) lock throughout.
func (s *zoneService) advance(ctx context.Context, patientID primitive.ObjectID, n int, now time.Time, trigger string) (*domain.ZoneProgressRecord, *GateCheck, error) {
	unlock, err := s.Locker.Lock(ctx, zoneLockKey(patientID, n))
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	rec, err := s.Zones.Get(ctx, patientID, n)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrZoneNotFound
		}
		return nil, nil, err
	}
	if !rec.IsUnlocked {
		return rec, nil, ErrZoneLocked
	}
	if rec.IsCompleted {
		// A completion whose unlock step failed is finished here, so the
		// patient is never left with zone n done and zone n+1 locked.
		since := now
		if rec.CompletedAt != nil {
			since = *rec.CompletedAt
		}
		unlocked, err := s.unlockNext(ctx, rec, since)
		if err != nil {
			return nil, nil, err
		}
		if !unlocked {
			return rec, nil, ErrZoneAlreadyCompleted
		}
		s.Logger.Warn("finished interrupted zone completion",
			zap.String("patientId", patientID.Hex()),
			zap.Int("zone", n),
		)
		s.announceCompletion(rec, trigger)
		return rec, &GateCheck{WeeksInZone: rec.WeeksInZone, MinWeeks: s.Policy.MinWeeksFor(n), Unmet: []string{}}, nil
	}

	before := *rec
	s.accrueWeeks(rec, now)
	gate, err := s.evaluateGate(ctx, rec, now)
	if err != nil {
		return nil, nil, err
	}

	if !gate.Satisfied() {
		if rec.WeeksInZone != before.WeeksInZone || rec.VideosCompleted != before.VideosCompleted {
			if err := s.Zones.Update(ctx, rec); err != nil {
				return nil, nil, err
			}
		}
		return rec, gate, nil
	}

	if err := s.completeZone(ctx, rec, now); err != nil {
		return nil, nil, err
	}

	s.announceCompletion(rec, trigger)
	return rec, gate, nil
}

func (s *zoneService) announceCompletion(rec *domain.ZoneProgressRecord, trigger string) {
	n := rec.ZoneNumber
	metrics.ZoneCompletionsTotal.WithLabelValues(strconv.Itoa(n), trigger).Inc()
	s.Logger.Info("zone completed",
		zap.String("patientId", rec.PatientID.Hex()),
		zap.Int("zone", n),
		zap.String("trigger", trigger),
		zap.Int("weeksInZone", rec.WeeksInZone),
	)
	body := fmt.Sprintf("You completed zone %d.", n)
	if n < domain.ZoneCount {
		body += fmt.Sprintf(" Zone %d is now unlocked.", n+1)
	}
	s.Notifier.Dispatch(notify.Message{
		Event:     notify.EventZoneCompleted,
		PatientID: rec.PatientID,
		Subject:   "Zone completed",
		Body:      body,
		Data:      map[string]string{"zone": strconv.Itoa(n), "trigger": trigger},
	})
}

// completeZone marks rec completed and then unlocks the next zone. Without a
// transaction the second step can fail on its own; advance repeats it the
// next time it sees the completed zone. The caller holds rec's lock.
func (s *zoneService) completeZone(ctx context.Context, rec *domain.ZoneProgressRecord, now time.Time) error {
	return s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		completedAt := now
		rec.IsCompleted = true
		rec.CompletedAt = &completedAt
		if err := s.Zones.Update(ctx, rec); err != nil {
			rec.IsCompleted = false
			rec.CompletedAt = nil
			return err
		}
		_, err := s.unlockNext(ctx, rec, now)
		return err
	})
}

// unlockNext unlocks the zone after the completed rec and reports whether it
// changed anything. It takes the next zone's lock, keeping ascending order.
func (s *zoneService) unlockNext(ctx context.Context, rec *domain.ZoneProgressRecord, now time.Time) (bool, error) {
	if rec.ZoneNumber >= domain.ZoneCount {
		return false, nil
	}
	unlock, err := s.Locker.Lock(ctx, zoneLockKey(rec.PatientID, rec.ZoneNumber+1))
	if err != nil {
		return false, err
	}
	defer unlock()

	next, err := s.Zones.Get(ctx, rec.PatientID, rec.ZoneNumber+1)
	if err != nil {
		return false, err
	}
	if next.IsUnlocked {
		return false, nil
	}
	startedAt := now
	next.IsUnlocked = true
	next.StartedAt = &startedAt
	if err := s.Zones.Update(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// accrueWeeks raises weeksInZone to the whole weeks since the zone started.
// It never lowers it.
func (s *zoneService) accrueWeeks(rec *domain.ZoneProgressRecord, now time.Time) {
	if rec.StartedAt == nil {
		return
	}
	if w := s.Calendar.WeeksElapsed(*rec.StartedAt, now); w > rec.WeeksInZone {
		rec.WeeksInZone = w
	}
}

// evaluateGate checks the completion conditions and refreshes
// rec.VideosCompleted as a side effect.
func (s *zoneService) evaluateGate(ctx context.Context, rec *domain.ZoneProgressRecord, now time.Time) (*GateCheck, error) {
	n := rec.ZoneNumber
	gate := &GateCheck{WeeksInZone: rec.WeeksInZone, MinWeeks: s.Policy.MinWeeksFor(n), Unmet: []string{}}

	required, err := s.Videos.GetByZone(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("load zone videos: %w", err)
	}
	gate.VideosRequired = len(required)
	for _, v := range required {
		if rec.HasWatched(v.ID) {
			gate.VideosWatched++
		}
	}
	rec.VideosCompleted = gate.VideosWatched == gate.VideosRequired

	// The final week is the last whole week spent in the zone, or the
	// partial first week when none has elapsed yet.
	started := now
	if rec.StartedAt != nil {
		started = *rec.StartedAt
	}
	from := s.Calendar.DayStart(started)
	if rec.WeeksInZone > 0 {
		from = from.AddDate(0, 0, (rec.WeeksInZone-1)*7)
	}
	to := from.AddDate(0, 0, 7)
	final, err := s.calc.zoneWindow(ctx, rec.PatientID, n, from, to, now)
	if err != nil {
		return nil, err
	}
	gate.FinalWeek = final

	if gate.WeeksInZone < gate.MinWeeks {
		gate.Unmet = append(gate.Unmet, fmt.Sprintf("weeks in zone %d of %d", gate.WeeksInZone, gate.MinWeeks))
	}
	if !rec.VideosCompleted {
		gate.Unmet = append(gate.Unmet, fmt.Sprintf("videos watched %d of %d", gate.VideosWatched, gate.VideosRequired))
	}
	if final.Band == domain.BandPoor {
		gate.Unmet = append(gate.Unmet, fmt.Sprintf("final week compliance %.2f is below %.2f", final.Ratio, s.Bands.PoorBelow))
	}
	return gate, nil
}

// CompleteZone lets the doctor advance a zone immediately once its gate is
// satisfied.
func (s *zoneService) CompleteZone(ctx context.Context, doctorID, patientID primitive.ObjectID, zone int) (*domain.ZoneProgressRecord, error) {
	const op = "CompleteZone"
	if zone < 1 || zone > domain.ZoneCount {
		return nil, invalid(op, "zone must be within 1..%d", domain.ZoneCount)
	}
	if _, err := s.access.managedPatient(ctx, op, doctorID, patientID); err != nil {
		return nil, err
	}

	rec, gate, err := s.advance(ctx, patientID, zone, s.Clock.Now(), triggerDoctor)
	if err != nil {
		if errors.Is(err, ErrZoneNotFound) {
			return nil, fail(op, ErrNotEnrolled)
		}
		return nil, wrap(op, KindInternal, err)
	}
	if !gate.Satisfied() {
		return nil, &Error{
			Kind: KindPreconditionFailed,
			Op:   op,
			Err:  fmt.Errorf("zone %d gate not satisfied: %s", zone, strings.Join(gate.Unmet, "; ")),
		}
	}
	return rec, nil
}

// MarkVideoWatched adds the video to the zone's watched set. Repeating the
// call changes nothing.
func (s *zoneService) MarkVideoWatched(ctx context.Context, patientID primitive.ObjectID, zone int, videoID primitive.ObjectID) (*domain.ZoneProgressRecord, error) {
	const op = "MarkVideoWatched"
	if zone < 1 || zone > domain.ZoneCount {
		return nil, invalid(op, "zone must be within 1..%d", domain.ZoneCount)
	}

	video, err := s.Videos.GetByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fail(op, ErrVideoNotFound)
		}
		return nil, internal(op, err)
	}
	if video.ZoneNumber != zone {
		return nil, fail(op, ErrVideoNotFound)
	}

	unlock, err := s.Locker.Lock(ctx, zoneLockKey(patientID, zone))
	if err != nil {
		return nil, internal(op, err)
	}
	defer unlock()

	rec, err := s.Zones.Get(ctx, patientID, zone)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fail(op, ErrNotEnrolled)
		}
		return nil, internal(op, err)
	}
	if !rec.IsUnlocked {
		return nil, fail(op, ErrZoneLocked)
	}

	updated, err := s.Zones.AddWatchedVideo(ctx, patientID, zone, videoID)
	if err != nil {
		return nil, internal(op, err)
	}

	required, err := s.Videos.GetByZone(ctx, zone)
	if err != nil {
		return nil, internal(op, err)
	}
	watched := 0
	for _, v := range required {
		if updated.HasWatched(v.ID) {
			watched++
		}
	}
	if done := watched == len(required); done != updated.VideosCompleted {
		updated.VideosCompleted = done
		if err := s.Zones.Update(ctx, updated); err != nil {
			return nil, internal(op, err)
		}
	}
	return updated, nil
}

// ListZoneVideos lists an unlocked zone's videos with short-lived download URLs.
func (s *zoneService) ListZoneVideos(ctx context.Context, patientID primitive.ObjectID, zone int) ([]ZoneVideoView, error) {
	const op = "ListZoneVideos"
	if zone < 1 || zone > domain.ZoneCount {
		return nil, invalid(op, "zone must be within 1..%d", domain.ZoneCount)
	}
	rec, err := s.Zones.Get(ctx, patientID, zone)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fail(op, ErrNotEnrolled)
		}
		return nil, internal(op, err)
	}
	if !rec.IsUnlocked {
		return nil, fail(op, ErrZoneLocked)
	}

	videos, err := s.Videos.GetByZone(ctx, zone)
	if err != nil {
		return nil, internal(op, err)
	}
	out := make([]ZoneVideoView, 0, len(videos))
	for _, v := range videos {
		url, err := s.Storage.GeneratePresignedDownloadURL(ctx, v.S3ObjectKey, s.presignTTL())
		if err != nil {
			return nil, internal(op, err)
		}
		out = append(out, ZoneVideoView{ZoneVideo: v, URL: url, Watched: rec.HasWatched(v.ID)})
	}
	return out, nil
}

// RequestVideoUploadURL reserves an object key and presigns a PUT for it.
func (s *zoneService) RequestVideoUploadURL(ctx context.Context, zone int, fileName, contentType string) (*VideoUploadTicket, error) {
	const op = "RequestVideoUploadURL"
	if zone < 1 || zone > domain.ZoneCount {
		return nil, invalid(op, "zone must be within 1..%d", domain.ZoneCount)
	}
	if fileName == "" || !strings.HasPrefix(contentType, "video/") {
		return nil, invalid(op, "a file name and a video/* content type are required")
	}

	key := storage.ZoneVideoKey(zone, fileName)
	ttl := s.presignTTL()
	url, err := s.Storage.GeneratePresignedUploadURL(ctx, key, contentType, ttl)
	if err != nil {
		return nil, internal(op, err)
	}
	return &VideoUploadTicket{ObjectKey: key, UploadURL: url, ExpiresAt: s.Clock.Now().Add(ttl)}, nil
}

// CreateZoneVideo registers an uploaded object as a required video.
func (s *zoneService) CreateZoneVideo(ctx context.Context, input CreateZoneVideoInput) (*domain.ZoneVideo, error) {
	const op = "CreateZoneVideo"
	if err := validateStruct(op, input); err != nil {
		return nil, err
	}
	if !storage.IsZoneVideoKey(input.ZoneNumber, input.ObjectKey) {
		return nil, invalid(op, "objectKey was not issued for zone %d", input.ZoneNumber)
	}

	video := &domain.ZoneVideo{
		ZoneNumber:  input.ZoneNumber,
		Title:       input.Title,
		Description: input.Description,
		S3ObjectKey: input.ObjectKey,
		Sequence:    input.Sequence,
	}
	if _, err := s.Videos.Create(ctx, video); err != nil {
		return nil, internal(op, err)
	}
	s.Logger.Info("zone video added", zap.Int("zone", video.ZoneNumber), zap.String("videoId", video.ID.Hex()))
	return video, nil
}

// DeleteZoneVideo removes a video and its stored object. Patients' watched
// sets keep the ID; it simply stops counting towards the gate.
func (s *zoneService) DeleteZoneVideo(ctx context.Context, zone int, videoID primitive.ObjectID) error {
	const op = "DeleteZoneVideo"
	video, err := s.Videos.GetByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(op, ErrVideoNotFound)
		}
		return internal(op, err)
	}
	if video.ZoneNumber != zone {
		return fail(op, ErrVideoNotFound)
	}
	if err := s.Videos.Delete(ctx, videoID); err != nil {
		return internal(op, err)
	}
	if err := s.Storage.DeleteObject(ctx, video.S3ObjectKey); err != nil {
		// Metadata is gone; an orphaned object only costs storage.
		s.Logger.Warn("failed to delete video object", zap.String("key", video.S3ObjectKey), zap.Error(err))
	}
	return nil
}
