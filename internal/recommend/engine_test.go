package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"alcyxob/wellness-program/internal/domain"
)

func TestComputeReferencePatient(t *testing.T) {
	b := Compute(80, 28, 14)

	assert.Equal(t, 2202, b.Calories)
	assert.InDelta(t, 2.8, b.WaterLiters, 1e-9)
	assert.Equal(t, 8.0, b.SleepHours)
	assert.Equal(t, "23:00", b.BedTime)
	assert.Equal(t, "07:00", b.WakeTime)
	assert.Equal(t, 40, b.ExerciseMinutes)
	assert.Equal(t, ExerciseModerate, b.ExerciseType)
	assert.Equal(t, 15, b.MeditationMinutes)
	assert.Equal(t, MindsetTips[2], b.MindsetTip)
	assert.False(t, b.Overridden)
}

func TestComputeCalorieBands(t *testing.T) {
	// weight 70, bf 10: lbm 63, bmr 1730.8, tdee 2682.74 -> +200
	assert.Equal(t, 2883, Compute(70, 10, 5).Calories)
	// bf 20: maintenance
	// lbm 56, bmr 1579.6, tdee 2448.38
	assert.Equal(t, 2448, Compute(70, 20, 5).Calories)
}

func TestComputeSleepAndMeditation(t *testing.T) {
	b := Compute(70, 20, 5)
	assert.Equal(t, 7.5, b.SleepHours)
	assert.Equal(t, "23:30", b.BedTime)
	assert.Equal(t, 10, b.MeditationMinutes)

	b = Compute(90, 32, 8)
	assert.Equal(t, 8.0, b.SleepHours, "body fat above 30 extends sleep")
	assert.Equal(t, 10, b.MeditationMinutes)
}

func TestComputeExercisePriority(t *testing.T) {
	cases := []struct {
		bf, vf  float64
		minutes int
		plan    string
	}{
		{35, 16, 45, ExerciseLowIntensity},
		{35, 15, 40, ExerciseModerate},
		{10, 11, 40, ExerciseModerate},
		{26, 10, 35, ExerciseHIIT},
		{25, 10, 30, ExerciseBalanced},
	}
	for _, tc := range cases {
		minutes, plan := exercisePlan(tc.bf, tc.vf)
		assert.Equal(t, tc.minutes, minutes, "bf=%v vf=%v", tc.bf, tc.vf)
		assert.Equal(t, tc.plan, plan, "bf=%v vf=%v", tc.bf, tc.vf)
	}
}

func TestTipIndex(t *testing.T) {
	assert.Equal(t, 2, TipIndex(80, 28, 14))
	assert.Equal(t, 0, TipIndex(70, 20, 10))
	assert.Equal(t, 3, TipIndex(70.5, 20.2, 7.5)) // 98.2 mod 5 = 3.2
}

func TestBedTimeWraps(t *testing.T) {
	assert.Equal(t, "23:00", bedTime(8))
	assert.Equal(t, "23:30", bedTime(7.5))
	assert.Equal(t, "01:00", bedTime(6))
}

func TestApplyOverride(t *testing.T) {
	computed := Compute(80, 28, 14)
	calories := 1800
	tip := "Walk after dinner."
	o := &domain.RecommendationOverride{Calories: &calories, MindsetTip: &tip}

	got := Apply(computed, o)
	assert.True(t, got.Overridden)
	assert.Equal(t, 1800, got.Calories)
	assert.Equal(t, tip, got.MindsetTip)
	assert.Equal(t, computed.WaterLiters, got.WaterLiters)
	assert.Equal(t, computed.ExerciseType, got.ExerciseType)
	assert.Equal(t, 2202, computed.Calories, "computed bundle must not be mutated")

	assert.Equal(t, computed, Apply(computed, nil))
	assert.Equal(t, computed, Apply(computed, &domain.RecommendationOverride{}))
}

func TestMergeOverride(t *testing.T) {
	c1, c2 := 1800, 1900
	water := 3.0
	base := &domain.RecommendationOverride{Calories: &c1, WaterLiters: &water}

	merged := Merge(base, &domain.RecommendationOverride{Calories: &c2}, nil)
	assert.Equal(t, 1900, *merged.Calories)
	assert.Equal(t, 3.0, *merged.WaterLiters)

	cleared := Merge(&merged, nil, []string{"waterLiters"})
	assert.Nil(t, cleared.WaterLiters)
	assert.Equal(t, 1900, *cleared.Calories)
}
