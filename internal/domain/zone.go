// internal/domain/zone.go
package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ZoneState is the derived display state of a zone.
type ZoneState string

const (
	ZoneLocked     ZoneState = "locked"
	ZoneUnlocked   ZoneState = "unlocked"
	ZoneInProgress ZoneState = "in_progress"
	ZoneCompleted  ZoneState = "completed"
)

// ZoneProgressRecord tracks one patient's progress through one zone.
// There is exactly one record per (patient, zone).
type ZoneProgressRecord struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	PatientID       primitive.ObjectID   `bson:"patientId" json:"patientId"`
	ZoneNumber      int                  `bson:"zoneNumber" json:"zoneNumber"`
	IsUnlocked      bool                 `bson:"isUnlocked" json:"isUnlocked"`
	IsCompleted     bool                 `bson:"isCompleted" json:"isCompleted"`
	VideosCompleted bool                 `bson:"videosCompleted" json:"videosCompleted"`
	WatchedVideoIDs []primitive.ObjectID `bson:"watchedVideoIds" json:"watchedVideoIds"`
	WeeksInZone     int                  `bson:"weeksInZone" json:"weeksInZone"`
	StartedAt       *time.Time           `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	CompletedAt     *time.Time           `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	UpdatedAt       time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// State derives the display state from the flags.
func (z *ZoneProgressRecord) State() ZoneState {
	switch {
	case z.IsCompleted:
		return ZoneCompleted
	case !z.IsUnlocked:
		return ZoneLocked
	case len(z.WatchedVideoIDs) > 0 || z.WeeksInZone > 0:
		return ZoneInProgress
	default:
		return ZoneUnlocked
	}
}

// HasWatched reports whether videoID is in the watched set.
func (z *ZoneProgressRecord) HasWatched(videoID primitive.ObjectID) bool {
	for _, id := range z.WatchedVideoIDs {
		if id == videoID {
			return true
		}
	}
	return false
}

// ZoneVideo is a required video for a zone. The media lives in object storage.
type ZoneVideo struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ZoneNumber  int                `bson:"zoneNumber" json:"zoneNumber"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	S3ObjectKey string             `bson:"s3ObjectKey" json:"-"`
	Sequence    int                `bson:"sequence" json:"sequence"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}
