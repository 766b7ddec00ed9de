package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/wellness-program/internal/domain"
	"alcyxob/wellness-program/internal/notify"
)

func (e *testEnv) addVideo(t *testing.T, zone int, title string) *domain.ZoneVideo {
	t.Helper()
	ctx := context.Background()
	ticket, err := e.zones.RequestVideoUploadURL(ctx, zone, title+".mp4", "video/mp4")
	require.NoError(t, err)
	video, err := e.zones.CreateZoneVideo(ctx, CreateZoneVideoInput{ZoneNumber: zone, Title: title, ObjectKey: ticket.ObjectKey})
	require.NoError(t, err)
	return video
}

func zoneByNumber(t *testing.T, statuses []ZoneStatus, n int) ZoneStatus {
	t.Helper()
	for _, s := range statuses {
		if s.ZoneNumber == n {
			return s
		}
	}
	t.Fatalf("zone %d missing", n)
	return ZoneStatus{}
}

func TestEnrollmentInitializesZones(t *testing.T) {
	env := newTestEnv(t)
	_, patient := env.linkedPair(t)

	statuses, err := env.zones.GetZoneProgress(context.Background(), patient.ID)
	require.NoError(t, err)
	require.Len(t, statuses, domain.ZoneCount)

	first := zoneByNumber(t, statuses, 1)
	assert.True(t, first.IsUnlocked)
	require.NotNil(t, first.StartedAt)
	assert.Equal(t, env.cal.DayStart(testStart), *first.StartedAt)
	require.NotNil(t, first.Gate)

	for n := 2; n <= domain.ZoneCount; n++ {
		s := zoneByNumber(t, statuses, n)
		assert.Equal(t, domain.ZoneLocked, s.State)
		assert.Nil(t, s.Gate)
	}
}

func TestMarkVideoWatched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, patient := env.linkedPair(t)
	v1 := env.addVideo(t, 1, "breathing")
	v2 := env.addVideo(t, 1, "posture")
	locked := env.addVideo(t, 2, "meal-prep")

	rec, err := env.zones.MarkVideoWatched(ctx, patient.ID, 1, v1.ID)
	require.NoError(t, err)
	assert.False(t, rec.VideosCompleted)

	rec, err = env.zones.MarkVideoWatched(ctx, patient.ID, 1, v1.ID)
	require.NoError(t, err)
	assert.Len(t, rec.WatchedVideoIDs, 1, "watching twice is a no-op")

	rec, err = env.zones.MarkVideoWatched(ctx, patient.ID, 1, v2.ID)
	require.NoError(t, err)
	assert.True(t, rec.VideosCompleted)

	_, err = env.zones.MarkVideoWatched(ctx, patient.ID, 1, locked.ID)
	assert.ErrorIs(t, err, ErrVideoNotFound, "video of another zone")

	_, err = env.zones.MarkVideoWatched(ctx, patient.ID, 1, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.zones.MarkVideoWatched(ctx, patient.ID, 2, locked.ID)
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.ErrorIs(t, err, ErrZoneLocked)
}

func TestListZoneVideos(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, patient := env.linkedPair(t)
	v := env.addVideo(t, 1, "intro")
	env.addVideo(t, 1, "second")

	_, err := env.zones.MarkVideoWatched(ctx, patient.ID, 1, v.ID)
	require.NoError(t, err)

	views, err := env.zones.ListZoneVideos(ctx, patient.ID, 1)
	require.NoError(t, err)
	require.Len(t, views, 2)
	watched := 0
	for _, view := range views {
		assert.Contains(t, view.URL, view.S3ObjectKey)
		if view.Watched {
			watched++
			assert.Equal(t, v.ID, view.ID)
		}
	}
	assert.Equal(t, 1, watched)

	_, err = env.zones.ListZoneVideos(ctx, patient.ID, 2)
	assert.ErrorIs(t, err, ErrZoneLocked)
}

func TestZoneVideoCatalogValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.zones.RequestVideoUploadURL(ctx, 1, "notes.txt", "text/plain")
	assert.ErrorIs(t, err, ErrValidation)

	ticket, err := env.zones.RequestVideoUploadURL(ctx, 1, "clip.MP4", "video/mp4")
	require.NoError(t, err)
	assert.Contains(t, ticket.ObjectKey, "zones/1/videos/")
	assert.Equal(t, env.clock.Now().Add(10*time.Minute), ticket.ExpiresAt)

	_, err = env.zones.CreateZoneVideo(ctx, CreateZoneVideoInput{ZoneNumber: 2, Title: "wrong zone", ObjectKey: ticket.ObjectKey})
	assert.ErrorIs(t, err, ErrValidation)

	v := env.addVideo(t, 3, "to-delete")
	assert.ErrorIs(t, env.zones.DeleteZoneVideo(ctx, 2, v.ID), ErrVideoNotFound)
	require.NoError(t, env.zones.DeleteZoneVideo(ctx, 3, v.ID))
	assert.Equal(t, []string{v.S3ObjectKey}, env.storage.deleted)
}

func TestCompleteZone_GateNotSatisfied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, patient := env.linkedPair(t)
	env.addVideo(t, 1, "intro")

	_, err := env.zones.CompleteZone(ctx, doctor.ID, patient.ID, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.Contains(t, err.Error(), "weeks in zone 0 of 2")
	assert.Contains(t, err.Error(), "videos watched 0 of 1")

	_, err = env.zones.CompleteZone(ctx, doctor.ID, patient.ID, 2)
	assert.ErrorIs(t, err, ErrZoneLocked)

	stranger := env.newUser(t, domain.RoleDoctor, "other-doc@example.com")
	_, err = env.zones.CompleteZone(ctx, stranger.ID, patient.ID, 1)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestZoneAutoCompletesOnRefresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, patient := env.linkedPair(t)
	video := env.addVideo(t, 1, "intro")
	task := env.allocate(t, doctor.ID, patient.ID, dailyTask("Walk", 1, 1))

	_, err := env.zones.MarkVideoWatched(ctx, patient.ID, 1, video.ID)
	require.NoError(t, err)
	for d := 1; d <= 14; d++ {
		env.clock.Set(at(d, 9))
		_, err := env.tasks.LogTaskCompletion(ctx, patient.ID, task.ID, nil)
		require.NoError(t, err)
	}

	// One week in, the gate still needs time.
	env.clock.Set(at(8, 12))
	statuses, err := env.zones.GetZoneProgress(ctx, patient.ID)
	require.NoError(t, err)
	first := zoneByNumber(t, statuses, 1)
	assert.False(t, first.IsCompleted)
	assert.Equal(t, 1, first.WeeksInZone)
	assert.Equal(t, []string{"weeks in zone 1 of 2"}, first.Gate.Unmet)

	env.clock.Set(at(15, 12))
	statuses, err = env.zones.GetZoneProgress(ctx, patient.ID)
	require.NoError(t, err)

	first = zoneByNumber(t, statuses, 1)
	assert.True(t, first.IsCompleted)
	assert.Equal(t, domain.ZoneCompleted, first.State)
	assert.Equal(t, 2, first.WeeksInZone)

	second := zoneByNumber(t, statuses, 2)
	assert.True(t, second.IsUnlocked)
	assert.False(t, second.IsCompleted)
	require.NotNil(t, second.StartedAt)
	assert.Equal(t, at(15, 12), *second.StartedAt)
	assert.False(t, zoneByNumber(t, statuses, 3).IsUnlocked)

	assert.Contains(t, env.notifier.events(), notify.EventZoneCompleted)
}

func TestZoneGate_PoorComplianceBlocks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, patient := env.linkedPair(t)
	task := env.allocate(t, doctor.ID, patient.ID, dailyTask("Walk", 1, 1))

	// Only the first week was followed.
	for d := 1; d <= 7; d++ {
		env.clock.Set(at(d, 9))
		_, err := env.tasks.LogTaskCompletion(ctx, patient.ID, task.ID, nil)
		require.NoError(t, err)
	}
	env.clock.Set(at(15, 12))

	statuses, err := env.zones.GetZoneProgress(ctx, patient.ID)
	require.NoError(t, err)
	first := zoneByNumber(t, statuses, 1)
	assert.False(t, first.IsCompleted)
	require.NotNil(t, first.Gate)
	assert.Equal(t, domain.BandPoor, first.Gate.FinalWeek.Band)
	assert.False(t, zoneByNumber(t, statuses, 2).IsUnlocked)

	_, err = env.zones.CompleteZone(ctx, doctor.ID, patient.ID, 1)
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.Contains(t, err.Error(), "compliance")
}

func TestCompleteZone_ByDoctor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor, patient := env.linkedPair(t)
	env.clock.Set(at(15, 12))

	rec, err := env.zones.CompleteZone(ctx, doctor.ID, patient.ID, 1)
	require.NoError(t, err)
	assert.True(t, rec.IsCompleted)

	next, err := env.store.Zones.Get(ctx, patient.ID, 2)
	require.NoError(t, err)
	assert.True(t, next.IsUnlocked)

	_, err = env.zones.CompleteZone(ctx, doctor.ID, patient.ID, 1)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestWeeksInZoneNeverDecreases(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, patient := env.linkedPair(t)
	env.addVideo(t, 1, "unwatched")

	env.clock.Set(at(22, 12))
	_, err := env.zones.RefreshZones(ctx, patient.ID)
	require.NoError(t, err)

	env.clock.Set(at(3, 12))
	records, err := env.zones.RefreshZones(ctx, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, records[0].WeeksInZone)
	assert.True(t, records[0].IsUnlocked)
}

func TestConcurrentRefreshCompletesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, patient := env.linkedPair(t)
	env.clock.Set(at(15, 12))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.zones.GetZoneProgress(ctx, patient.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	completed := 0
	for _, ev := range env.notifier.events() {
		if ev == notify.EventZoneCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestZoneProgress_NotEnrolled(t *testing.T) {
	env := newTestEnv(t)
	patient := env.newUser(t, domain.RolePatient, "new@example.com")

	_, err := env.zones.GetZoneProgress(context.Background(), patient.ID)
	assert.ErrorIs(t, err, ErrNotEnrolled)
}
