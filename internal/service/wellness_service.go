package service

import (
	"alcyxob/wellness-program/internal/domain"
	"alcyxob/wellness-program/internal/metrics"
	"alcyxob/wellness-program/internal/recommend"
	"alcyxob/wellness-program/internal/repository"
	"context"
	"errors"
	"slices"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// BodyMetricsInput is one reading submitted by a patient. ZoneNumber 0 means
// "my current zone".
type BodyMetricsInput struct {
	WeightKg    float64 `json:"weightKg" validate:"gt=0,lte=500"`
	BodyFatPct  float64 `json:"bodyFatPct" validate:"gte=0,lte=100"`
	VisceralFat float64 `json:"visceralFat" validate:"gte=0,lte=60"`
	ZoneNumber  int     `json:"zoneNumber" validate:"min=0,max=5"`
}

// OverrideInput carries the doctor's patch plus the fields to reset.
type OverrideInput struct {
	domain.RecommendationOverride
	Clear []string `json:"clear,omitempty"`
}

type WellnessService interface {
	SubmitBodyMetrics(ctx context.Context, patientID primitive.ObjectID, input BodyMetricsInput) (*domain.RecommendationBundle, error)
	ListBodyMetrics(ctx context.Context, patientID primitive.ObjectID) ([]domain.BodyMetricsSample, error)
	GetRecommendations(ctx context.Context, patientID primitive.ObjectID) (*domain.RecommendationBundle, error)
	OverrideRecommendation(ctx context.Context, doctorID, patientID primitive.ObjectID, input OverrideInput) (*domain.RecommendationBundle, error)
}

type wellnessService struct {
	access  patientAccess
	samples repository.BodyMetricsRepository
	recs    repository.RecommendationRepository
	zones   repository.ZoneProgressRepository
	clock   Clock
	logger  *zap.Logger
}

func NewWellnessService(
	userRepo repository.UserRepository,
	samples repository.BodyMetricsRepository,
	recs repository.RecommendationRepository,
	zones repository.ZoneProgressRepository,
	clock Clock,
	logger *zap.Logger,
) WellnessService {
	return &wellnessService{
		access:  patientAccess{users: userRepo},
		samples: samples,
		recs:    recs,
		zones:   zones,
		clock:   clock,
		logger:  logger,
	}
}

// SubmitBodyMetrics stores a sample and computes a fresh bundle from it.
// The returned bundle already carries the doctor's override.
func (s *wellnessService) SubmitBodyMetrics(ctx context.Context, patientID primitive.ObjectID, input BodyMetricsInput) (*domain.RecommendationBundle, error) {
	const op = "SubmitBodyMetrics"
	if err := validateStruct(op, input); err != nil {
		return nil, err
	}
	if _, err := s.access.patient(ctx, op, patientID); err != nil {
		return nil, err
	}

	zone, err := s.sampleZone(ctx, op, patientID, input.ZoneNumber)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	sample := &domain.BodyMetricsSample{
		PatientID:   patientID,
		WeightKg:    input.WeightKg,
		BodyFatPct:  input.BodyFatPct,
		VisceralFat: input.VisceralFat,
		ZoneNumber:  zone,
		LoggedAt:    now,
	}
	if _, err := s.samples.Create(ctx, sample); err != nil {
		return nil, internal(op, err)
	}

	bundle := recommend.Compute(input.WeightKg, input.BodyFatPct, input.VisceralFat)
	bundle.PatientID = patientID
	bundle.SampleID = sample.ID
	bundle.CreatedAt = now
	if _, err := s.recs.Create(ctx, &bundle); err != nil {
		return nil, internal(op, err)
	}
	metrics.RecommendationsComputedTotal.Inc()

	s.logger.Info("body metrics submitted",
		zap.String("patientId", patientID.Hex()),
		zap.Int("zone", zone),
		zap.Int("calories", bundle.Calories),
	)
	return s.withOverride(ctx, op, bundle)
}

// sampleZone resolves the zone a sample is filed under. An explicit zone must
// already be unlocked for the patient; zero means the current zone.
func (s *wellnessService) sampleZone(ctx context.Context, op string, patientID primitive.ObjectID, requested int) (int, error) {
	if requested == 0 {
		zone, err := s.currentZone(ctx, patientID)
		if err != nil {
			return 0, internal(op, err)
		}
		return zone, nil
	}
	rec, err := s.zones.Get(ctx, patientID, requested)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// Not enrolled yet: only the first zone is open.
		if requested == 1 {
			return 1, nil
		}
		return 0, fail(op, ErrZoneLocked)
	case err != nil:
		return 0, internal(op, err)
	case !rec.IsUnlocked:
		return 0, fail(op, ErrZoneLocked)
	}
	return requested, nil
}

// currentZone is the highest unlocked zone that is not completed, or 1 when
// the patient has no zone records yet.
func (s *wellnessService) currentZone(ctx context.Context, patientID primitive.ObjectID) (int, error) {
	records, err := s.zones.GetByPatientID(ctx, patientID)
	if err != nil {
		return 0, err
	}
	zone := 1
	for _, r := range records {
		if r.IsUnlocked && !r.IsCompleted {
			zone = r.ZoneNumber
		}
	}
	return zone, nil
}

func (s *wellnessService) ListBodyMetrics(ctx context.Context, patientID primitive.ObjectID) ([]domain.BodyMetricsSample, error) {
	const op = "ListBodyMetrics"
	if _, err := s.access.patient(ctx, op, patientID); err != nil {
		return nil, err
	}
	samples, err := s.samples.GetByPatientID(ctx, patientID)
	if err != nil {
		return nil, internal(op, err)
	}
	if samples == nil {
		samples = []domain.BodyMetricsSample{}
	}
	return samples, nil
}

func (s *wellnessService) GetRecommendations(ctx context.Context, patientID primitive.ObjectID) (*domain.RecommendationBundle, error) {
	const op = "GetRecommendations"
	if _, err := s.access.patient(ctx, op, patientID); err != nil {
		return nil, err
	}
	latest, err := s.recs.GetLatest(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fail(op, ErrNoRecommendations)
		}
		return nil, internal(op, err)
	}
	return s.withOverride(ctx, op, *latest)
}

// OverrideRecommendation folds the doctor's patch into the stored override.
// Overrides apply at read time, so they survive later samples.
func (s *wellnessService) OverrideRecommendation(ctx context.Context, doctorID, patientID primitive.ObjectID, input OverrideInput) (*domain.RecommendationBundle, error) {
	const op = "OverrideRecommendation"
	for _, f := range input.Clear {
		if !slices.Contains(recommend.OverrideFields, f) {
			return nil, invalid(op, "unknown override field %q", f)
		}
	}
	if input.RecommendationOverride.Empty() && len(input.Clear) == 0 {
		return nil, invalid(op, "no override fields given")
	}
	if err := validateStruct(op, input.RecommendationOverride); err != nil {
		return nil, err
	}
	if _, err := s.access.managedPatient(ctx, op, doctorID, patientID); err != nil {
		return nil, err
	}

	latest, err := s.recs.GetLatest(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fail(op, ErrNoBodyMetrics)
		}
		return nil, internal(op, err)
	}

	current, err := s.recs.GetOverride(ctx, patientID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, internal(op, err)
	}
	merged := recommend.Merge(current, &input.RecommendationOverride, input.Clear)
	merged.PatientID = patientID
	merged.DoctorID = doctorID
	if err := s.recs.UpsertOverride(ctx, &merged); err != nil {
		return nil, internal(op, err)
	}

	s.logger.Info("recommendation overridden",
		zap.String("patientId", patientID.Hex()),
		zap.String("doctorId", doctorID.Hex()),
		zap.Strings("cleared", input.Clear),
	)
	out := recommend.Apply(*latest, &merged)
	return &out, nil
}

func (s *wellnessService) withOverride(ctx context.Context, op string, bundle domain.RecommendationBundle) (*domain.RecommendationBundle, error) {
	override, err := s.recs.GetOverride(ctx, bundle.PatientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &bundle, nil
		}
		return nil, internal(op, err)
	}
	out := recommend.Apply(bundle, override)
	return &out, nil
}
