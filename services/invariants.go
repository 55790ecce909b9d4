package services

import (
	"fmt"
	"strings"

	"github.com/shridhar/dispatch-api/models"
)

// CheckInvariants reports the first field combination that contradicts b's status.
func CheckInvariants(b *models.Booking) error {
	if !b.Status.Valid() {
		return fmt.Errorf("unknown status %q", b.Status)
	}

	switch b.Status {
	case models.StatusPending:
		if b.TechnicianID != nil {
			return fmt.Errorf("pending booking has technician %d", *b.TechnicianID)
		}
	case models.StatusCancelled:
	default:
		if b.TechnicianID == nil {
			return fmt.Errorf("%s booking has no technician", b.Status)
		}
	}

	if b.FinalAmount != nil && b.Status != models.StatusInProgress && b.Status != models.StatusCompleted {
		return fmt.Errorf("final amount set on %s booking", b.Status)
	}

	completed := b.Status == models.StatusCompleted
	if b.IsHappyPinVerified != completed {
		return fmt.Errorf("pin verified flag is %t on %s booking", b.IsHappyPinVerified, b.Status)
	}
	if (b.CompletedAt != nil) != completed {
		return fmt.Errorf("completion time presence does not match %s", b.Status)
	}

	if b.FinalAmount != nil && *b.FinalAmount > b.Price {
		if b.ExtraReasonID == nil && (b.ExtraReasonText == nil || strings.TrimSpace(*b.ExtraReasonText) == "") {
			return fmt.Errorf("final amount %.2f exceeds price %.2f without a reason", *b.FinalAmount, b.Price)
		}
	}

	if !validPinFormat(b.SecurityPin) {
		return fmt.Errorf("security pin is not %d digits", pinDigits)
	}
	return nil
}
