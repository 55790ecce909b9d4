package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shridhar/dispatch-api/models"
)

// ProofInput is the technician's in-field price report.
// ReasonID or ReasonText is required when FinalAmount exceeds the quoted price.
type ProofInput struct {
	FinalAmount    float64  `validate:"gt=0"`
	ReasonID       *uint    `validate:"omitempty,gt=0"`
	ReasonText     string   `validate:"max=500"`
	Evidence       []string `validate:"max=20,dive,required,max=1024"`
	TechnicianNote string   `validate:"max=2000"`
}

// StartWork moves an ACCEPTED booking to IN_PROGRESS.
func (e *BookingEngine) StartWork(ctx context.Context, actor Actor, bookingID uint) (*models.Booking, error) {
	if err := authorize(opStartWork, actor); err != nil {
		return nil, err
	}

	return e.mutate(ctx, actor, bookingID, func(b *models.Booking) (*transition, error) {
		if b.Status == models.StatusInProgress && actor.Works(b) {
			return nil, nil
		}
		if b.Status.IsTerminal() {
			return nil, alreadyTerminal(b)
		}
		if b.Status != models.StatusAccepted {
			return nil, invalidTransition(b.Status, models.StatusInProgress, "booking must be ACCEPTED")
		}
		if !actor.Works(b) {
			return nil, notEligible("only the assigned technician can start booking %d", b.ID)
		}

		return &transition{
			change: BookingChange{
				To:      models.StatusInProgress,
				Updates: map[string]interface{}{"started_at": e.now()},
			},
			notify: notify(b, TitleWorkStarted, b.CustomerID),
		}, nil
	})
}

// SubmitProof records the final amount, its justification and work evidence.
// An ACCEPTED booking moves to IN_PROGRESS in the same write. Evidence is
// append-only; refs already on the booking are skipped.
func (e *BookingEngine) SubmitProof(ctx context.Context, actor Actor, bookingID uint, in ProofInput) (*models.Booking, error) {
	if err := authorize(opSubmitProof, actor); err != nil {
		return nil, err
	}
	if err := e.validateStruct(in); err != nil {
		return nil, err
	}
	if in.ReasonID != nil {
		if _, err := e.reasons.LookupReason(ctx, *in.ReasonID); err != nil {
			if errors.Is(err, ErrLookupNotFound) {
				return nil, validationError("reason %d does not exist", *in.ReasonID)
			}
			return nil, err
		}
	}
	reasonText := optionalText(in.ReasonText)
	note := optionalText(in.TechnicianNote)

	return e.mutate(ctx, actor, bookingID, func(b *models.Booking) (*transition, error) {
		if err := checkProofTarget(actor, b); err != nil {
			return nil, err
		}
		// Charging more than quoted needs a reason on record
		if in.FinalAmount > b.Price && in.ReasonID == nil && reasonText == nil {
			return nil, &BookingError{
				Code:    CodePriceJustificationRequired,
				Message: "a reason is required when the final amount exceeds the quoted price",
			}
		}

		// Evidence is append-only; refs already on file are skipped
		evidence := newEvidence(b, in.Evidence)
		if b.Status == models.StatusInProgress && len(evidence) == 0 &&
			sameAmount(b.FinalAmount, in.FinalAmount) &&
			sameUint(b.ExtraReasonID, in.ReasonID) &&
			sameText(b.ExtraReasonText, reasonText) &&
			(note == nil || sameText(b.TechnicianNote, note)) {
			return nil, nil
		}

		updates := map[string]interface{}{
			"final_amount":      in.FinalAmount,
			"extra_reason_id":   in.ReasonID,
			"extra_reason_text": reasonText,
		}
		if note != nil {
			updates["technician_note"] = *note
		}

		t := &transition{
			change: BookingChange{
				To:             models.StatusInProgress,
				Updates:        updates,
				AppendEvidence: evidence,
			},
		}
		if b.Status == models.StatusAccepted {
			updates["started_at"] = e.now()
			t.notify = notify(b, TitleWorkStarted, b.CustomerID)
		}
		return t, nil
	})
}

// CheckProofTarget reports whether actor could submit proof for the booking
// right now. Callers use it to refuse before storing uploaded files; the
// submission itself re-checks under the booking lock.
func (e *BookingEngine) CheckProofTarget(ctx context.Context, actor Actor, bookingID uint) error {
	if err := authorize(opSubmitProof, actor); err != nil {
		return err
	}
	b, err := e.store.FindByID(ctx, bookingID)
	if err != nil {
		return err
	}
	return checkProofTarget(actor, b)
}

func checkProofTarget(actor Actor, b *models.Booking) error {
	if b.Status.IsTerminal() {
		return alreadyTerminal(b)
	}
	if b.Status != models.StatusAccepted && b.Status != models.StatusInProgress {
		return invalidTransition(b.Status, models.StatusInProgress, "booking must be ACCEPTED or IN_PROGRESS")
	}
	if !actor.Works(b) {
		return notEligible("only the assigned technician can submit proof for booking %d", b.ID)
	}
	return nil
}

// newEvidence returns refs not yet recorded on b, in submission order, without duplicates.
func newEvidence(b *models.Booking, refs []string) []string {
	seen := make(map[string]struct{}, len(b.WorkProofs)+len(refs))
	for _, p := range b.WorkProofs {
		seen[p.Ref] = struct{}{}
	}
	var fresh []string
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if _, ok := seen[ref]; ok || ref == "" {
			continue
		}
		seen[ref] = struct{}{}
		fresh = append(fresh, ref)
	}
	return fresh
}

func sameAmount(current *float64, next float64) bool {
	return current != nil && *current == next
}

func sameUint(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameText(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
