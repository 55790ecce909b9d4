package services

import (
	"fmt"

	"github.com/shridhar/dispatch-api/models"
)

// ErrorCode identifies a class of booking failure
type ErrorCode string

const (
	CodeValidation                 ErrorCode = "VALIDATION_ERROR"
	CodeInvalidTransition          ErrorCode = "INVALID_TRANSITION"
	CodeNotEligible                ErrorCode = "NOT_ELIGIBLE"
	CodeAlreadyAssigned            ErrorCode = "ALREADY_ASSIGNED"
	CodeAlreadyTerminal            ErrorCode = "ALREADY_TERMINAL"
	CodePriceJustificationRequired ErrorCode = "PRICE_JUSTIFICATION_REQUIRED"
	CodeInvalidPin                 ErrorCode = "INVALID_PIN"
	CodeNotFound                   ErrorCode = "BOOKING_NOT_FOUND"
)

// BookingError is returned by every engine operation that is refused.
// From, To and Guard are filled for transition failures.
type BookingError struct {
	Code    ErrorCode
	Message string
	From    string
	To      string
	Guard   string
}

func (e *BookingError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

// Is matches any BookingError with the same code, so callers can use
// errors.Is(err, services.ErrInvalidPin).
func (e *BookingError) Is(target error) bool {
	t, ok := target.(*BookingError)
	return ok && t.Code == e.Code
}

var (
	ErrValidation                 = &BookingError{Code: CodeValidation}
	ErrInvalidTransition          = &BookingError{Code: CodeInvalidTransition}
	ErrNotEligible                = &BookingError{Code: CodeNotEligible}
	ErrAlreadyAssigned            = &BookingError{Code: CodeAlreadyAssigned}
	ErrAlreadyTerminal            = &BookingError{Code: CodeAlreadyTerminal}
	ErrPriceJustificationRequired = &BookingError{Code: CodePriceJustificationRequired}
	ErrInvalidPin                 = &BookingError{Code: CodeInvalidPin}
	ErrBookingNotFound            = &BookingError{Code: CodeNotFound}
)

func validationError(format string, args ...interface{}) *BookingError {
	return &BookingError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func notEligible(format string, args ...interface{}) *BookingError {
	return &BookingError{Code: CodeNotEligible, Message: fmt.Sprintf(format, args...)}
}

func invalidTransition(from, to models.BookingStatus, guard string) *BookingError {
	return &BookingError{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot move booking from %s to %s: %s", from, to, guard),
		From:    string(from),
		To:      string(to),
		Guard:   guard,
	}
}

func alreadyTerminal(b *models.Booking) *BookingError {
	return &BookingError{
		Code:    CodeAlreadyTerminal,
		Message: fmt.Sprintf("booking %d is already %s", b.ID, b.Status),
		From:    string(b.Status),
	}
}

func alreadyAssigned(b *models.Booking) *BookingError {
	return &BookingError{
		Code:    CodeAlreadyAssigned,
		Message: fmt.Sprintf("booking %d is no longer available for dispatch (%s)", b.ID, b.Status),
		From:    string(b.Status),
	}
}

func bookingNotFound(id uint) *BookingError {
	return &BookingError{Code: CodeNotFound, Message: fmt.Sprintf("booking %d not found", id)}
}
