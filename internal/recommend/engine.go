// Package recommend derives daily wellness targets from body metrics.
package recommend

import (
	"fmt"
	"math"

	"alcyxob/wellness-program/internal/domain"
)

const (
	activityMultiplier = 1.55
	wakeTime           = "07:00"
	wakeMinutes        = 7 * 60
)

// Exercise plans in priority order of the rule that selects them.
const (
	ExerciseLowIntensity = "Low-intensity cardio + light resistance training"
	ExerciseModerate     = "Moderate cardio + strength training 3x/week"
	ExerciseHIIT         = "HIIT 2x/week + strength training 3x/week"
	ExerciseBalanced     = "Balanced cardio and resistance training"
)

// MindsetTips is indexed by (weight + bodyFat + visceralFat) mod 5.
var MindsetTips = [5]string{
	"Celebrate one small win from today before you go to sleep.",
	"Progress beats perfection: a missed day is data, not failure.",
	"Pause for three slow breaths before each meal and notice your hunger.",
	"Write down tomorrow's first healthy action tonight so the morning starts decided.",
	"Compare yourself only with who you were at the start of this zone.",
}

// Compute returns the recommendation bundle for one set of body metrics.
// The result depends only on its inputs.
func Compute(weightKg, bodyFatPct, visceralFat float64) domain.RecommendationBundle {
	leanMass := weightKg * (1 - bodyFatPct/100)
	bmr := 370 + 21.6*leanMass // Katch-McArdle
	tdee := bmr * activityMultiplier

	calories := tdee
	switch {
	case bodyFatPct > 25:
		calories = tdee - 300
	case bodyFatPct < 15:
		calories = tdee + 200
	}

	sleep := 7.5
	if visceralFat > 12 || bodyFatPct > 30 {
		sleep = 8
	}

	minutes, plan := exercisePlan(bodyFatPct, visceralFat)

	meditation := 10
	if visceralFat > 12 {
		meditation = 15
	}

	return domain.RecommendationBundle{
		Calories:          int(math.Round(calories)),
		WaterLiters:       math.Round(weightKg*0.035*10) / 10,
		SleepHours:        sleep,
		BedTime:           bedTime(sleep),
		WakeTime:          wakeTime,
		ExerciseMinutes:   minutes,
		ExerciseType:      plan,
		MeditationMinutes: meditation,
		MindsetTip:        MindsetTips[TipIndex(weightKg, bodyFatPct, visceralFat)],
	}
}

func exercisePlan(bodyFatPct, visceralFat float64) (int, string) {
	switch {
	case visceralFat > 15:
		return 45, ExerciseLowIntensity
	case visceralFat > 10:
		return 40, ExerciseModerate
	case bodyFatPct > 25:
		return 35, ExerciseHIIT
	default:
		return 30, ExerciseBalanced
	}
}

// TipIndex selects the mindset tip for a set of metrics.
func TipIndex(weightKg, bodyFatPct, visceralFat float64) int {
	idx := int(math.Floor(math.Mod(weightKg+bodyFatPct+visceralFat, 5)))
	if idx < 0 {
		idx += 5
	}
	return idx
}

// bedTime subtracts the sleep duration from the fixed wake time, wrapping
// across midnight.
func bedTime(sleepHours float64) string {
	m := wakeMinutes - int(math.Round(sleepHours*60))
	m = ((m % (24 * 60)) + 24*60) % (24 * 60)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Apply merges a doctor override onto a computed bundle. Each non-nil
// override field wins; the input bundle is not modified.
func Apply(b domain.RecommendationBundle, o *domain.RecommendationOverride) domain.RecommendationBundle {
	if o.Empty() {
		return b
	}
	out := b
	out.Overridden = true
	if o.Calories != nil {
		out.Calories = *o.Calories
	}
	if o.WaterLiters != nil {
		out.WaterLiters = *o.WaterLiters
	}
	if o.SleepHours != nil {
		out.SleepHours = *o.SleepHours
	}
	if o.BedTime != nil {
		out.BedTime = *o.BedTime
	}
	if o.WakeTime != nil {
		out.WakeTime = *o.WakeTime
	}
	if o.ExerciseMinutes != nil {
		out.ExerciseMinutes = *o.ExerciseMinutes
	}
	if o.ExerciseType != nil {
		out.ExerciseType = *o.ExerciseType
	}
	if o.MeditationMinutes != nil {
		out.MeditationMinutes = *o.MeditationMinutes
	}
	if o.MindsetTip != nil {
		out.MindsetTip = *o.MindsetTip
	}
	return out
}

// Merge folds patch into base field by field and returns the result.
// Fields named in clear are reset to nil afterwards.
func Merge(base, patch *domain.RecommendationOverride, clear []string) domain.RecommendationOverride {
	var out domain.RecommendationOverride
	if base != nil {
		out = *base
	}
	if patch != nil {
		if patch.Calories != nil {
			out.Calories = patch.Calories
		}
		if patch.WaterLiters != nil {
			out.WaterLiters = patch.WaterLiters
		}
		if patch.SleepHours != nil {
			out.SleepHours = patch.SleepHours
		}
		if patch.BedTime != nil {
			out.BedTime = patch.BedTime
		}
		if patch.WakeTime != nil {
			out.WakeTime = patch.WakeTime
		}
		if patch.ExerciseMinutes != nil {
			out.ExerciseMinutes = patch.ExerciseMinutes
		}
		if patch.ExerciseType != nil {
			out.ExerciseType = patch.ExerciseType
		}
		if patch.MeditationMinutes != nil {
			out.MeditationMinutes = patch.MeditationMinutes
		}
		if patch.MindsetTip != nil {
			out.MindsetTip = patch.MindsetTip
		}
	}
	for _, f := range clear {
		switch f {
		case "calories":
			out.Calories = nil
		case "waterLiters":
			out.WaterLiters = nil
		case "sleepHours":
			out.SleepHours = nil
		case "bedTime":
			out.BedTime = nil
		case "wakeTime":
			out.WakeTime = nil
		case "exerciseMinutes":
			out.ExerciseMinutes = nil
		case "exerciseType":
			out.ExerciseType = nil
		case "meditationMinutes":
			out.MeditationMinutes = nil
		case "mindsetTip":
			out.MindsetTip = nil
		}
	}
	return out
}

// OverrideFields lists the names accepted by Merge's clear argument.
var OverrideFields = []string{
	"calories", "waterLiters", "sleepHours", "bedTime", "wakeTime",
	"exerciseMinutes", "exerciseType", "meditationMinutes", "mindsetTip",
}
