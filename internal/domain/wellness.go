package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BodyMetricsSample is one body-composition reading submitted by the patient.
type BodyMetricsSample struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PatientID   primitive.ObjectID `bson:"patientId" json:"patientId"`
	WeightKg    float64            `bson:"weightKg" json:"weightKg"`
	BodyFatPct  float64            `bson:"bodyFatPct" json:"bodyFatPct"`
	VisceralFat float64            `bson:"visceralFat" json:"visceralFat"`
	ZoneNumber  int                `bson:"zoneNumber" json:"zoneNumber"` // Zone at time of capture
	LoggedAt    time.Time          `bson:"loggedAt" json:"loggedAt"`
}

// RecommendationBundle is the set of daily targets derived from a sample.
type RecommendationBundle struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PatientID         primitive.ObjectID `bson:"patientId" json:"patientId"`
	SampleID          primitive.ObjectID `bson:"sampleId" json:"sampleId"`
	Calories          int                `bson:"calories" json:"calories"`
	WaterLiters       float64            `bson:"waterLiters" json:"waterLiters"`
	SleepHours        float64            `bson:"sleepHours" json:"sleepHours"`
	BedTime           string             `bson:"bedTime" json:"bedTime"`   // "HH:MM"
	WakeTime          string             `bson:"wakeTime" json:"wakeTime"` // "HH:MM"
	ExerciseMinutes   int                `bson:"exerciseMinutes" json:"exerciseMinutes"`
	ExerciseType      string             `bson:"exerciseType" json:"exerciseType"`
	MeditationMinutes int                `bson:"meditationMinutes" json:"meditationMinutes"`
	MindsetTip        string             `bson:"mindsetTip" json:"mindsetTip"`
	Overridden        bool               `bson:"-" json:"overridden"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
}

// RecommendationOverride holds the doctor's manual values. A nil field means
// "use the computed value".
type RecommendationOverride struct {
	PatientID         primitive.ObjectID `bson:"patientId" json:"patientId"`
	DoctorID          primitive.ObjectID `bson:"doctorId" json:"doctorId"`
	Calories          *int               `bson:"calories,omitempty" json:"calories,omitempty" validate:"omitempty,gt=0,lte=10000"`
	WaterLiters       *float64           `bson:"waterLiters,omitempty" json:"waterLiters,omitempty" validate:"omitempty,gt=0,lte=15"`
	SleepHours        *float64           `bson:"sleepHours,omitempty" json:"sleepHours,omitempty" validate:"omitempty,gt=0,lte=24"`
	BedTime           *string            `bson:"bedTime,omitempty" json:"bedTime,omitempty" validate:"omitempty,datetime=15:04"`
	WakeTime          *string            `bson:"wakeTime,omitempty" json:"wakeTime,omitempty" validate:"omitempty,datetime=15:04"`
	ExerciseMinutes   *int               `bson:"exerciseMinutes,omitempty" json:"exerciseMinutes,omitempty" validate:"omitempty,gt=0,lte=600"`
	ExerciseType      *string            `bson:"exerciseType,omitempty" json:"exerciseType,omitempty" validate:"omitempty,min=1,max=100"`
	MeditationMinutes *int               `bson:"meditationMinutes,omitempty" json:"meditationMinutes,omitempty" validate:"omitempty,gt=0,lte=600"`
	MindsetTip        *string            `bson:"mindsetTip,omitempty" json:"mindsetTip,omitempty" validate:"omitempty,min=1,max=500"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Empty reports whether no field is overridden.
func (o *RecommendationOverride) Empty() bool {
	if o == nil {
		return true
	}
	return o.Calories == nil && o.WaterLiters == nil && o.SleepHours == nil &&
		o.BedTime == nil && o.WakeTime == nil && o.ExerciseMinutes == nil &&
		o.ExerciseType == nil && o.MeditationMinutes == nil && o.MindsetTip == nil
}
