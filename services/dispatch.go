package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shridhar/dispatch-api/models"
)

// Assign binds technicianID to a PENDING booking. Admins dispatch anyone;
// technicians may only claim a booking for themselves. Exactly one of any
// number of concurrent calls succeeds.
func (e *BookingEngine) Assign(ctx context.Context, actor Actor, bookingID, technicianID uint) (*models.Booking, error) {
	if err := authorize(opAssign, actor); err != nil {
		return nil, err
	}
	if actor.IsTechnician() && actor.ID != technicianID {
		return nil, notEligible("technicians can only assign bookings to themselves")
	}

	return e.mutate(ctx, actor, bookingID, func(b *models.Booking) (*transition, error) {
		// Same dispatcher, same technician: a retry of a call that already landed
		if b.Status == models.StatusAssigned && b.IsAssignedTo(technicianID) &&
			b.AssignedByID != nil && *b.AssignedByID == actor.ID {
			return nil, nil
		}
		if b.Status.IsTerminal() {
			return nil, alreadyTerminal(b)
		}
		if b.Status != models.StatusPending {
			return nil, alreadyAssigned(b)
		}

		// Eligibility is read at decision time, under the booking lock
		if err := e.checkEligible(ctx, technicianID); err != nil {
			return nil, err
		}

		return &transition{
			change: BookingChange{
				To: models.StatusAssigned,
				Updates: map[string]interface{}{
					"technician_id":  technicianID,
					"assigned_by_id": actor.ID,
				},
			},
			notify: append(
				notify(b, TitleBookingAssigned, b.CustomerID),
				notify(b, TitleJobAssigned, technicianID)...,
			),
			conflict: func(fresh *models.Booking) error { return alreadyAssigned(fresh) },
		}, nil
	})
}

// AcceptBooking lets a technician confirm a job assigned to them, or claim an
// unassigned PENDING job directly.
func (e *BookingEngine) AcceptBooking(ctx context.Context, actor Actor, bookingID uint) (*models.Booking, error) {
	if err := authorize(opAccept, actor); err != nil {
		return nil, err
	}

	return e.mutate(ctx, actor, bookingID, func(b *models.Booking) (*transition, error) {
		if b.Status == models.StatusAccepted && actor.Works(b) {
			return nil, nil
		}
		if b.Status.IsTerminal() {
			return nil, alreadyTerminal(b)
		}

		switch b.Status {
		case models.StatusPending:
			// Self-claim from the job board skips ASSIGNED
			if err := e.checkEligible(ctx, actor.ID); err != nil {
				return nil, err
			}
			return &transition{
				change: BookingChange{
					To:      models.StatusAccepted,
					Updates: map[string]interface{}{"technician_id": actor.ID},
				},
				notify:   notify(b, TitleBookingAssigned, b.CustomerID),
				conflict: func(fresh *models.Booking) error { return alreadyAssigned(fresh) },
			}, nil

		case models.StatusAssigned:
			if !actor.Works(b) {
				return nil, notEligible("booking %d is assigned to another technician", b.ID)
			}
			return &transition{
				change: BookingChange{To: models.StatusAccepted},
				notify: notify(b, TitleBookingAccepted, b.CustomerID),
			}, nil
		}

		return nil, invalidTransition(b.Status, models.StatusAccepted, "booking must be PENDING or ASSIGNED")
	})
}

// RejectBooking lets the assigned technician decline the job. REJECTED is terminal.
func (e *BookingEngine) RejectBooking(ctx context.Context, actor Actor, bookingID uint, reason string) (*models.Booking, error) {
	if err := authorize(opReject, actor); err != nil {
		return nil, err
	}

	return e.mutate(ctx, actor, bookingID, func(b *models.Booking) (*transition, error) {
		if b.Status == models.StatusRejected && actor.Works(b) {
			return nil, nil
		}
		if b.Status.IsTerminal() {
			return nil, alreadyTerminal(b)
		}
		if b.Status != models.StatusAssigned && b.Status != models.StatusAccepted {
			return nil, invalidTransition(b.Status, models.StatusRejected, "booking must be ASSIGNED or ACCEPTED")
		}
		if !actor.Works(b) {
			return nil, notEligible("only the assigned technician can reject booking %d", b.ID)
		}

		return &transition{
			change: BookingChange{
				To:      models.StatusRejected,
				Updates: map[string]interface{}{"rejection_reason": optionalText(reason)},
			},
			notify: append(
				notify(b, TitleBookingRejected, e.dispatcherFor(b)),
				notify(b, TitleBookingRejected, b.CustomerID)...,
			),
		}, nil
	})
}

// CancelBooking withdraws a booking that has not started. Customers can only
// cancel their own bookings.
func (e *BookingEngine) CancelBooking(ctx context.Context, actor Actor, bookingID uint, reason string) (*models.Booking, error) {
	if err := authorize(opCancel, actor); err != nil {
		return nil, err
	}

	return e.mutate(ctx, actor, bookingID, func(b *models.Booking) (*transition, error) {
		if b.Status == models.StatusCancelled && b.CancelledByID != nil && *b.CancelledByID == actor.ID {
			return nil, nil
		}
		if b.Status.IsTerminal() {
			return nil, alreadyTerminal(b)
		}
		if actor.IsCustomer() && !actor.Owns(b) {
			return nil, notEligible("booking %d belongs to another customer", b.ID)
		}
		if b.Status == models.StatusInProgress {
			return nil, invalidTransition(b.Status, models.StatusCancelled, "work has already started")
		}

		var notes []Notification
		if b.TechnicianID != nil {
			if dispatcher := e.dispatcherFor(b); dispatcher != actor.ID {
				notes = append(notes, notify(b, TitleBookingCancelled, dispatcher)...)
			}
			notes = append(notes, notify(b, TitleBookingCancelled, *b.TechnicianID)...)
		}
		if actor.IsAdmin() {
			notes = append(notes, notify(b, TitleBookingCancelled, b.CustomerID)...)
		}

		return &transition{
			change: BookingChange{
				To: models.StatusCancelled,
				Updates: map[string]interface{}{
					"cancelled_by_id":     actor.ID,
					"cancelled_at":        e.now(),
					"cancellation_reason": optionalText(reason),
				},
			},
			notify: notes,
		}, nil
	})
}

// checkEligible fails with NotEligible unless the technician is verified and online.
func (e *BookingEngine) checkEligible(ctx context.Context, technicianID uint) error {
	info, err := e.technicians.LookupTechnician(ctx, technicianID)
	if errors.Is(err, ErrLookupNotFound) {
		return notEligible("technician %d does not exist", technicianID)
	}
	if err != nil {
		return err
	}
	if info.Eligible() {
		return nil
	}
	switch {
	case info.Role != models.RoleTechnician:
		return notEligible("user %d is not a technician", technicianID)
	case !info.IsVerified:
		return notEligible("technician %d is not verified", technicianID)
	default:
		return notEligible("technician %d is offline", technicianID)
	}
}

func optionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
