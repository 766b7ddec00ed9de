// Package notify delivers patient notifications without blocking callers.
package notify

import (
	"context"
	"sync"
	"time"

	"alcyxob/wellness-program/internal/metrics"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Event names a notification kind.
type Event string

const (
	EventTasksAssigned   Event = "tasks_assigned"
	EventProgramAssigned Event = "program_assigned"
	EventZoneCompleted   Event = "zone_completed"
	EventEnrolled        Event = "enrolled"
)

// Message is one notification to a patient.
type Message struct {
	Event     Event
	PatientID primitive.ObjectID
	Subject   string
	Body      string
	Data      map[string]string
}

// Sender delivers a message over some transport (email, push, ...).
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log. It is the default transport.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("notification",
		zap.String("event", string(msg.Event)),
		zap.String("patientId", msg.PatientID.Hex()),
		zap.String("subject", msg.Subject),
		zap.Any("data", msg.Data),
	)
	return nil
}

// Dispatcher sends in background goroutines. Failures are logged and
// counted; callers never see them.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewDispatcher wraps sender. A non-positive timeout defaults to 5s.
func NewDispatcher(sender Sender, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{sender: sender, timeout: timeout, logger: logger}
}

// Dispatch schedules msg and returns immediately.
func (d *Dispatcher) Dispatch(msg Message) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.sender.Send(ctx, msg); err != nil {
			metrics.NotificationFailuresTotal.WithLabelValues(string(msg.Event)).Inc()
			d.logger.Warn("notification failed",
				zap.String("event", string(msg.Event)),
				zap.String("patientId", msg.PatientID.Hex()),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until in-flight sends finish or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
