package services

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Notification titles, also used as AMQP routing keys
const (
	TitleBookingAssigned  = "booking.assigned"
	TitleJobAssigned      = "booking.job_assigned"
	TitleBookingAccepted  = "booking.accepted"
	TitleBookingRejected  = "booking.rejected"
	TitleBookingCancelled = "booking.cancelled"
	TitleWorkStarted      = "booking.work_started"
	TitleBookingCompleted = "booking.completed"
)

// Notification tells one user that one of their bookings changed
type Notification struct {
	RecipientID uint   `json:"recipient_id"`
	Title       string `json:"title"`
	BookingID   uint   `json:"booking_id"`
}

// Notifier delivers notifications. The engine logs failures and carries on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log. Used when no broker is configured.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.log.Info("notification",
		zap.Uint("recipient_id", note.RecipientID),
		zap.String("title", note.Title),
		zap.Uint("booking_id", note.BookingID),
	)
	return nil
}

// RecordingNotifier keeps every notification in memory (for testing)
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

// NewRecordingNotifier creates an empty recorder
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (r *RecordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

// FailWith makes every later Notify call return err
func (r *RecordingNotifier) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Sent returns a copy of the recorded notifications
func (r *RecordingNotifier) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// Titles returns the recorded titles for bookingID, in order
func (r *RecordingNotifier) Titles(bookingID uint) []string {
	var titles []string
	for _, n := range r.Sent() {
		if n.BookingID == bookingID {
			titles = append(titles, n.Title)
		}
	}
	return titles
}

// Reset drops everything recorded so far
func (r *RecordingNotifier) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}
