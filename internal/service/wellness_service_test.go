package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/wellness-program/internal/domain"
	"alcyxob/wellness-program/internal/recommend"
)

func TestSubmitBodyMetrics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, patient := env.linkedPair(t)

	bundle, err := env.wellness.SubmitBodyMetrics(ctx, patient.ID, BodyMetricsInput{WeightKg: 82, BodyFatPct: 28, VisceralFat: 11})
	require.NoError(t, err)
	want := recommend.Compute(82, 28, 11)
	assert.Equal(t, want.Calories, bundle.Calories)
	assert.Equal(t, want.ExerciseType, bundle.ExerciseType)
	assert.Equal(t, patient.ID, bundle.PatientID)
	assert.False(t, bundle.Overridden)

	samples, err := env.wellness.ListBodyMetrics(ctx, patient.ID)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 1, samples[0].ZoneNumber, "defaults to the active zone")

	_, err = env.wellness.SubmitBodyMetrics(ctx, patient.ID, BodyMetricsInput{WeightKg: 0, BodyFatPct: 28})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.wellness.SubmitBodyMetrics(ctx, patient.ID, BodyMetricsInput{WeightKg: 80, BodyFatPct: 120})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetRecommendations_NoneYet(t *testing.T) {
	env := newTestEnv(t)
	_, patient := env.linkedPair(t)

	_, err := env.wellness.GetRecommendations(context.Background(), patient.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOverrideSurvivesNewSamples(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, patient := env.linkedPair(t)

	calories := 1800
	_, err := env.wellness.OverrideRecommendation(ctx, doctor.ID, patient.ID, OverrideInput{})
	assert.ErrorIs(t, err, ErrValidation)

	in := OverrideInput{}
	in.Calories = &calories
	_, err = env.wellness.OverrideRecommendation(ctx, doctor.ID, patient.ID, in)
	assert.ErrorIs(t, err, ErrPreconditionFailed, "nothing to override before the first sample")

	_, err = env.wellness.SubmitBodyMetrics(ctx, patient.ID, BodyMetricsInput{WeightKg: 90, BodyFatPct: 30, VisceralFat: 12})
	require.NoError(t, err)

	merged, err := env.wellness.OverrideRecommendation(ctx, doctor.ID, patient.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 1800, merged.Calories)
	assert.True(t, merged.Overridden)

	env.clock.AdvanceDays(7)
	fresh, err := env.wellness.SubmitBodyMetrics(ctx, patient.ID, BodyMetricsInput{WeightKg: 86, BodyFatPct: 27, VisceralFat: 10})
	require.NoError(t, err)
	assert.Equal(t, 1800, fresh.Calories)
	assert.Equal(t, recommend.Compute(86, 27, 10).WaterLiters, fresh.WaterLiters, "untouched fields follow the new sample")

	cleared, err := env.wellness.OverrideRecommendation(ctx, doctor.ID, patient.ID, OverrideInput{Clear: []string{"calories"}})
	require.NoError(t, err)
	assert.Equal(t, recommend.Compute(86, 27, 10).Calories, cleared.Calories)
	assert.False(t, cleared.Overridden)

	_, err = env.wellness.OverrideRecommendation(ctx, doctor.ID, patient.ID, OverrideInput{Clear: []string{"shoeSize"}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestOverrideRecommendation_RejectsOutOfRangeValues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, patient := env.linkedPair(t)
	_, err := env.wellness.SubmitBodyMetrics(ctx, patient.ID, BodyMetricsInput{WeightKg: 90, BodyFatPct: 30, VisceralFat: 12})
	require.NoError(t, err)

	calories := 1900
	good := OverrideInput{}
	good.Calories = &calories
	_, err = env.wellness.OverrideRecommendation(ctx, doctor.ID, patient.ID, good)
	require.NoError(t, err)

	negative, bedTime, sleep, wake := -5000, "banana", -3.0, "25:00"
	cases := map[string]func(*OverrideInput){
		"negative calories": func(in *OverrideInput) { in.Calories = &negative },
		"bed time":          func(in *OverrideInput) { in.BedTime = &bedTime },
		"negative sleep":    func(in *OverrideInput) { in.SleepHours = &sleep },
		"wake hour":         func(in *OverrideInput) { in.WakeTime = &wake },
	}
	for name, set := range cases {
		t.Run(name, func(t *testing.T) {
			in := OverrideInput{}
			set(&in)
			_, err := env.wellness.OverrideRecommendation(ctx, doctor.ID, patient.ID, in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	stored, err := env.store.Recommendations.GetOverride(ctx, patient.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Calories)
	assert.Equal(t, 1900, *stored.Calories, "rejected input leaves the override alone")
	assert.Nil(t, stored.BedTime)
	assert.Nil(t, stored.SleepHours)
}

func TestSubmitBodyMetrics_ZoneMustBeUnlocked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, patient := env.linkedPair(t)
	in := BodyMetricsInput{WeightKg: 82, BodyFatPct: 28, VisceralFat: 11}

	in.ZoneNumber = 3
	_, err := env.wellness.SubmitBodyMetrics(ctx, patient.ID, in)
	assert.ErrorIs(t, err, ErrZoneLocked)
	samples, err := env.wellness.ListBodyMetrics(ctx, patient.ID)
	require.NoError(t, err)
	assert.Empty(t, samples)

	in.ZoneNumber = 1
	_, err = env.wellness.SubmitBodyMetrics(ctx, patient.ID, in)
	require.NoError(t, err)

	env.clock.Set(at(15, 12))
	_, err = env.zones.CompleteZone(ctx, doctor.ID, patient.ID, 1)
	require.NoError(t, err)
	in.ZoneNumber = 2
	_, err = env.wellness.SubmitBodyMetrics(ctx, patient.ID, in)
	require.NoError(t, err)

	samples, err = env.wellness.ListBodyMetrics(ctx, patient.ID)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	zones := []int{samples[0].ZoneNumber, samples[1].ZoneNumber}
	assert.ElementsMatch(t, []int{1, 2}, zones)

	stranger := env.newUser(t, domain.RolePatient, "new@example.com")
	in.ZoneNumber = 2
	_, err = env.wellness.SubmitBodyMetrics(ctx, stranger.ID, in)
	assert.ErrorIs(t, err, ErrZoneLocked, "before enrollment only zone 1 is open")
	in.ZoneNumber = 1
	_, err = env.wellness.SubmitBodyMetrics(ctx, stranger.ID, in)
	assert.NoError(t, err)
}
