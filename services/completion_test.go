package services

import (
	"context"
	"testing"

	"github.com/shridhar/dispatch-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteBooking_PaymentGate(t *testing.T) {
	f := newFixture(t, withOptions(EngineOptions{RequirePaymentForCompletion: true}))
	ctx := context.Background()
	b := f.inProgress(t)

	_, err := f.engine.CompleteBooking(ctx, f.tech, b.ID, testPin)
	var be *BookingError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, CodeInvalidTransition, be.Code)
	assert.Equal(t, "payment_recorded", be.Guard)

	b, err = f.engine.RecordPayment(ctx, f.admin, b.ID, models.PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, b.PaymentStatus)
	assert.Equal(t, models.StatusInProgress, b.Status)

	b, err = f.engine.CompleteBooking(ctx, f.tech, b.ID, testPin)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, b.Status)
}

func TestRecordPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t)

	_, err := f.engine.RecordPayment(ctx, f.admin, b.ID, models.PaymentRefunded)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.engine.RecordPayment(ctx, f.admin, b.ID, models.PaymentPending)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.engine.RecordPayment(ctx, f.customer, b.ID, models.PaymentPaid)
	assert.ErrorIs(t, err, ErrNotEligible)

	paid, err := f.engine.RecordPayment(ctx, f.admin, b.ID, models.PaymentPaid)
	require.NoError(t, err)
	replay, err := f.engine.RecordPayment(ctx, f.admin, b.ID, models.PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, paid.Version, replay.Version)

	refunded, err := f.engine.RecordPayment(ctx, f.admin, b.ID, models.PaymentRefunded)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, refunded.PaymentStatus)
	assert.Equal(t, models.StatusPending, refunded.Status)

	_, err = f.engine.RecordPayment(ctx, f.admin, b.ID, models.PaymentPaid)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompleteBooking_AfterCancellationIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t)
	_, err := f.engine.CancelBooking(ctx, f.customer, b.ID, "")
	require.NoError(t, err)

	_, err = f.engine.CompleteBooking(ctx, f.tech, b.ID, testPin)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}
