// internal/domain/task.go
package domain

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Program shape shared by templates, tasks and zones.
const (
	ProgramWeeks = 15
	ZoneCount    = 5
)

// TaskStatus tracks the lifecycle of an AssignedTask.
type TaskStatus string

const (
	TaskStatusPending     TaskStatus = "pending"
	TaskStatusCompleted   TaskStatus = "completed"
	TaskStatusRescheduled TaskStatus = "rescheduled" // Schedule edited by the doctor, still actionable
)

// Frequency is the closed set of schedules a task can follow.
type Frequency string

const (
	FrequencyDaily        Frequency = "daily"
	FrequencyWeekly       Frequency = "weekly"
	FrequencySpecificDays Frequency = "specific_days" // Only on the weekdays listed in DaysApplicable
	FrequencyOneTime      Frequency = "one_time"
)

// TimeOfDay is a display hint for when the patient should do the task.
type TimeOfDay string

const (
	TimeMorning   TimeOfDay = "morning"
	TimeAfternoon TimeOfDay = "afternoon"
	TimeEvening   TimeOfDay = "evening"
	TimeNight     TimeOfDay = "night"
	TimeAnytime   TimeOfDay = "anytime"
)

// TaskSource records how a task was created.
type TaskSource string

const (
	SourceTemplate TaskSource = "template"
	SourceManual   TaskSource = "manual"
)

// OncePerDay reports whether the ledger allows at most one completion per calendar day.
func (f Frequency) OncePerDay() bool {
	switch f {
	case FrequencyDaily, FrequencySpecificDays:
		return true
	case FrequencyWeekly, FrequencyOneTime:
		return false
	default:
		panic(fmt.Sprintf("domain: unknown frequency %q", string(f)))
	}
}

// ClosesOnCompletion reports whether a single completion moves the task to completed.
func (f Frequency) ClosesOnCompletion() bool {
	return !f.OncePerDay()
}

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencySpecificDays, FrequencyOneTime:
		return true
	}
	return false
}

// AssignedTask is a concrete task instance for one patient, stamped out from a
// template or allocated directly by the doctor.
type AssignedTask struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	PatientID      primitive.ObjectID  `bson:"patientId" json:"patientId"`
	DoctorID       primitive.ObjectID  `bson:"doctorId,omitempty" json:"doctorId,omitempty"` // Who allocated it (denormalized for auth)
	TemplateID     *primitive.ObjectID `bson:"templateId,omitempty" json:"templateId,omitempty"`
	Source         TaskSource          `bson:"source" json:"source"`
	Description    string              `bson:"description" json:"description"`
	ZoneNumber     int                 `bson:"zoneNumber" json:"zoneNumber"`
	ProgramWeek    int                 `bson:"programWeek" json:"programWeek"`
	Frequency      Frequency           `bson:"frequency" json:"frequency"`
	DaysApplicable []Weekday           `bson:"daysApplicable,omitempty" json:"daysApplicable,omitempty"`
	TimeOfDay      TimeOfDay           `bson:"timeOfDay" json:"timeOfDay"`
	MetricRequired string              `bson:"metricRequired,omitempty" json:"metricRequired,omitempty"`
	Status         TaskStatus          `bson:"status" json:"status"`
	CompletionDate *time.Time          `bson:"completionDate,omitempty" json:"completionDate,omitempty"`
	CreatedAt      time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// Actionable reports whether the patient can still log against the task.
func (t *AssignedTask) Actionable() bool {
	return t.Status == TaskStatusPending || t.Status == TaskStatusRescheduled
}

// AppliesOn reports whether the task shows up in the patient's list on a day
// with the given weekday.
func (t *AssignedTask) AppliesOn(day Weekday) bool {
	if !t.Actionable() {
		return false
	}
	switch t.Frequency {
	case FrequencyDaily, FrequencyWeekly:
		return true
	case FrequencyOneTime:
		return t.Status == TaskStatusPending
	case FrequencySpecificDays:
		return ContainsWeekday(t.DaysApplicable, day)
	default:
		panic(fmt.Sprintf("domain: unknown frequency %q", string(t.Frequency)))
	}
}

// TaskSchedule holds the fields a doctor may edit when rescheduling.
type TaskSchedule struct {
	Description    *string    `json:"description,omitempty"`
	Frequency      *Frequency `json:"frequency,omitempty"`
	DaysApplicable []Weekday  `json:"daysApplicable,omitempty"`
	TimeOfDay      *TimeOfDay `json:"timeOfDay,omitempty"`
	ProgramWeek    *int       `json:"programWeek,omitempty"`
	MetricRequired *string    `json:"metricRequired,omitempty"`
}
