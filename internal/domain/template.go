// internal/domain/template.go
package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TaskBlueprint describes a task before it is assigned to a patient.
type TaskBlueprint struct {
	Description    string    `bson:"description" json:"description" yaml:"description" validate:"required,max=500"`
	Frequency      Frequency `bson:"frequency" json:"frequency" yaml:"frequency" validate:"required,oneof=daily weekly specific_days one_time"`
	DaysApplicable []Weekday `bson:"daysApplicable,omitempty" json:"daysApplicable,omitempty" yaml:"days" validate:"omitempty,unique,dive,oneof=monday tuesday wednesday thursday friday saturday sunday"`
	TimeOfDay      TimeOfDay `bson:"timeOfDay" json:"timeOfDay" yaml:"timeOfDay" validate:"omitempty,oneof=morning afternoon evening night anytime"`
	MetricRequired string    `bson:"metricRequired,omitempty" json:"metricRequired,omitempty" yaml:"metricRequired" validate:"max=100"`
}

// TemplateCell is one (week, zone) entry of the template matrix.
type TemplateCell struct {
	ProgramWeek int             `bson:"programWeek" json:"programWeek" yaml:"week" validate:"min=1,max=15"`
	ZoneNumber  int             `bson:"zoneNumber" json:"zoneNumber" yaml:"zone" validate:"min=1,max=5"`
	Tasks       []TaskBlueprint `bson:"tasks" json:"tasks" yaml:"tasks" validate:"dive"`
}

// ProgramTemplate is a doctor-authored 15-week by 5-zone task matrix.
type ProgramTemplate struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name" yaml:"name" validate:"required,max=200"`
	Description string             `bson:"description,omitempty" json:"description,omitempty" yaml:"description"`
	CreatedBy   primitive.ObjectID `bson:"createdBy,omitempty" json:"createdBy,omitempty" yaml:"-"`
	Cells       []TemplateCell     `bson:"cells" json:"cells" yaml:"cells" validate:"dive"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt" yaml:"-"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt" yaml:"-"` // Acts as the version
}

// TaskAllocation is a blueprint placed at a specific zone and week, used for
// direct allocation outside of a template.
type TaskAllocation struct {
	TaskBlueprint `bson:",inline" yaml:",inline"`
	ZoneNumber    int `json:"zoneNumber" validate:"min=1,max=5"`
	ProgramWeek   int `json:"programWeek" validate:"min=1,max=15"`
}
