package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ComplianceLogEntry records that a patient completed a task on a calendar day.
// Entries are immutable and only removed when their task is deleted.
type ComplianceLogEntry struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PatientID      primitive.ObjectID `bson:"patientId" json:"patientId"`
	TaskID         primitive.ObjectID `bson:"taskId" json:"taskId"`
	CompletionDate time.Time          `bson:"completionDate" json:"completionDate"` // Start of the calendar day
	// DayKey is "2006-01-02" for once-per-day tasks and empty otherwise. The
	// unique (taskId, dayKey) index only covers entries where it is set.
	DayKey    string    `bson:"dayKey,omitempty" json:"-"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// ComplianceBand buckets a weekly completion ratio.
type ComplianceBand string

const (
	BandExcellent ComplianceBand = "excellent"
	BandGood      ComplianceBand = "good"
	BandFair      ComplianceBand = "fair"
	BandPoor      ComplianceBand = "poor"
)

// WeeklyCompliance summarizes adherence for one zone over one program week.
type WeeklyCompliance struct {
	PatientID   primitive.ObjectID `json:"patientId"`
	ZoneNumber  int                `json:"zoneNumber"`
	ProgramWeek int                `json:"programWeek"`
	From        time.Time          `json:"from"`
	To          time.Time          `json:"to"`
	Expected    int                `json:"expected"`
	Completed   int                `json:"completed"`
	Ratio       float64            `json:"ratio"`
	Band        ComplianceBand     `json:"band"`
}
