package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shridhar/dispatch-api/models"
	"github.com/stretchr/testify/assert"
)

func TestBookingError_IsMatchesByCode(t *testing.T) {
	err := invalidTransition(models.StatusPending, models.StatusCompleted, "work must be IN_PROGRESS")

	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, errors.Is(err, ErrAlreadyTerminal))
	assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", err), ErrInvalidTransition))
	assert.Equal(t, "PENDING", err.From)
	assert.Equal(t, "COMPLETED", err.To)
	assert.Contains(t, err.Error(), "work must be IN_PROGRESS")
}

func TestBookingError_MessageFallsBackToCode(t *testing.T) {
	assert.Equal(t, "INVALID_PIN", ErrInvalidPin.Error())
	assert.Equal(t, "booking 3 not found", bookingNotFound(3).Error())
}
