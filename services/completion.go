package services

import (
	"context"
	"fmt"

	"github.com/shridhar/dispatch-api/models"
)

// CompleteBooking closes an IN_PROGRESS booking once the technician enters the
// PIN the customer received at booking time. A wrong PIN changes nothing.
func (e *BookingEngine) CompleteBooking(ctx context.Context, actor Actor, bookingID uint, pin string) (*models.Booking, error) {
	if err := authorize(opComplete, actor); err != nil {
		return nil, err
	}
	if pin == "" {
		return nil, validationError("pin is required")
	}

	return e.mutate(ctx, actor, bookingID, func(b *models.Booking) (*transition, error) {
		// A retry with the right PIN returns the completed booking unchanged
		if b.Status == models.StatusCompleted && actor.Works(b) && pinMatches(b.SecurityPin, pin) {
			return nil, nil
		}
		if b.Status.IsTerminal() {
			return nil, alreadyTerminal(b)
		}
		if b.Status != models.StatusInProgress {
			return nil, invalidTransition(b.Status, models.StatusCompleted, "work must be IN_PROGRESS")
		}
		if !actor.Works(b) {
			return nil, notEligible("only the assigned technician can complete booking %d", b.ID)
		}
		if e.opts.RequirePaymentForCompletion && b.PaymentStatus == models.PaymentPending {
			return nil, invalidTransition(b.Status, models.StatusCompleted, "payment_recorded")
		}
		// The PIN is the last guard
		if !pinMatches(b.SecurityPin, pin) {
			return nil, &BookingError{Code: CodeInvalidPin, Message: "the completion PIN does not match"}
		}

		// Freeze the amount and credit the projection in the same write
		amount := b.Earning()
		return &transition{
			change: BookingChange{
				To: models.StatusCompleted,
				Updates: map[string]interface{}{
					"final_amount":          amount,
					"is_happy_pin_verified": true,
					"completed_at":          e.now(),
				},
				Credit: &StatsCredit{TechnicianID: *b.TechnicianID, Amount: amount},
			},
			notify: notify(b, TitleBookingCompleted, b.CustomerID),
		}, nil
	})
}

// RecordPayment stores the payment outcome reported for a booking.
// Payment moves PENDING -> PAID -> REFUNDED and never changes the lifecycle status.
func (e *BookingEngine) RecordPayment(ctx context.Context, actor Actor, bookingID uint, status models.PaymentStatus) (*models.Booking, error) {
	if err := authorize(opRecordPayment, actor); err != nil {
		return nil, err
	}
	if status != models.PaymentPaid && status != models.PaymentRefunded {
		return nil, validationError("payment status must be PAID or REFUNDED")
	}

	return e.mutate(ctx, actor, bookingID, func(b *models.Booking) (*transition, error) {
		if b.PaymentStatus == status {
			return nil, nil
		}
		allowed := (b.PaymentStatus == models.PaymentPending && status == models.PaymentPaid) ||
			(b.PaymentStatus == models.PaymentPaid && status == models.PaymentRefunded)
		if !allowed {
			return nil, &BookingError{
				Code:    CodeInvalidTransition,
				Message: fmt.Sprintf("cannot move payment from %s to %s", b.PaymentStatus, status),
				From:    string(b.PaymentStatus),
				To:      string(status),
				Guard:   "payment moves PENDING -> PAID -> REFUNDED",
			}
		}
		return &transition{
			change: BookingChange{
				To:      b.Status,
				Updates: map[string]interface{}{"payment_status": string(status)},
			},
		}, nil
	})
}
