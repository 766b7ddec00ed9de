package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []Message
	err  error
	gate chan struct{}
}

func (r *recordingSender) Send(ctx context.Context, msg Message) error {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestDispatcher_DeliversAndWaits(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, time.Second, zap.NewNop())

	for i := 0; i < 5; i++ {
		d.Dispatch(Message{Event: EventTasksAssigned, PatientID: primitive.NewObjectID()})
	}
	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, 5, sender.count())
}

func TestDispatcher_FailuresAreSwallowed(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	d := NewDispatcher(sender, time.Second, zap.NewNop())

	d.Dispatch(Message{Event: EventZoneCompleted})
	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, 1, sender.count())
}

func TestDispatcher_DoesNotBlockCaller(t *testing.T) {
	sender := &recordingSender{gate: make(chan struct{})}
	d := NewDispatcher(sender, time.Second, zap.NewNop())

	start := time.Now()
	d.Dispatch(Message{Event: EventProgramAssigned})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)

	close(sender.gate)
	require.NoError(t, d.Wait(context.Background()))
}

func TestLogSender_NeverFails(t *testing.T) {
	assert.NoError(t, NewLogSender(zap.NewNop()).Send(context.Background(), Message{Event: EventEnrolled}))
}
