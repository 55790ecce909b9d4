package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shridhar/dispatch-api/models"
	"github.com/shridhar/dispatch-api/utils"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// EngineOptions are deployment policy switches
type EngineOptions struct {
	// DispatcherID receives dispatcher notifications when a booking has no AssignedByID.
	DispatcherID uint
	// RequirePaymentForCompletion blocks completion while payment is PENDING.
	RequirePaymentForCompletion bool
	// ScheduleGrace tolerates client clock skew when checking ScheduledAt.
	ScheduleGrace time.Duration
}

// EngineDeps are the collaborators of a BookingEngine. Locker, Clock and Pins are optional.
type EngineDeps struct {
	Store       BookingStore
	Locker      BookingLocker
	Reasons     ReasonRegistry
	Technicians TechnicianDirectory
	Categories  CategoryCatalog
	Notifier    Notifier
	Log         *zap.Logger
	Clock       func() time.Time
	Pins        PinGenerator
}

// BookingEngine owns the booking lifecycle: every state change goes through it.
type BookingEngine struct {
	store       BookingStore
	locker      BookingLocker
	reasons     ReasonRegistry
	technicians TechnicianDirectory
	categories  CategoryCatalog
	notifier    Notifier
	log         *zap.Logger
	validate    *validator.Validate
	now         func() time.Time
	newPin      PinGenerator
	opts        EngineOptions
}

// NewBookingEngine wires an engine from its collaborators
func NewBookingEngine(deps EngineDeps, opts EngineOptions) *BookingEngine {
	e := &BookingEngine{
		store:       deps.Store,
		locker:      deps.Locker,
		reasons:     deps.Reasons,
		technicians: deps.Technicians,
		categories:  deps.Categories,
		notifier:    deps.Notifier,
		log:         deps.Log,
		validate:    validator.New(),
		now:         deps.Clock,
		newPin:      deps.Pins,
		opts:        opts,
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.notifier == nil {
		e.notifier = NewLogNotifier(e.log)
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newPin == nil {
		e.newPin = RandomPin
	}
	return e
}

// CreateBookingInput is what a customer supplies when requesting a job
type CreateBookingInput struct {
	CategoryID     uint            `validate:"required"`
	Price          float64         `validate:"gt=0"`
	ScheduledAt    time.Time       `validate:"required"`
	Notes          string          `validate:"max=2000"`
	ReferenceImage string          `validate:"max=500"`
	Location       models.GeoPoint
	PickupLocation models.GeoPoint
	DropLocation   models.GeoPoint
}

// CreateBooking records a new PENDING booking with a fresh completion PIN.
func (e *BookingEngine) CreateBooking(ctx context.Context, actor Actor, in CreateBookingInput) (*models.Booking, error) {
	if err := authorize(opCreate, actor); err != nil {
		return nil, err
	}
	if err := e.validateStruct(in); err != nil {
		return nil, err
	}

	// Small grace for client clock skew
	now := e.now()
	if in.ScheduledAt.Before(now.Add(-e.opts.ScheduleGrace)) {
		return nil, validationError("scheduled time %s is in the past", in.ScheduledAt.Format(time.RFC3339))
	}

	category, err := e.categories.LookupCategory(ctx, in.CategoryID)
	if errors.Is(err, ErrLookupNotFound) {
		return nil, validationError("category %d does not exist", in.CategoryID)
	}
	if err != nil {
		return nil, err
	}
	if !category.IsActive {
		return nil, validationError("category %d is not accepting bookings", in.CategoryID)
	}

	// The PIN is fixed for the life of the booking
	pin, err := e.newPin()
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		CustomerID:     actor.ID,
		CategoryID:     in.CategoryID,
		Status:         models.StatusPending,
		PaymentStatus:  models.PaymentPending,
		Price:          in.Price,
		ScheduledAt:    in.ScheduledAt,
		SecurityPin:    pin,
		Notes:          strings.TrimSpace(in.Notes),
		ReferenceImage: in.ReferenceImage,
		Location:       in.Location,
		PickupLocation: in.PickupLocation,
		DropLocation:   in.DropLocation,
		Version:        1,
	}
	// Distance and ETA are informational only
	if p, d := in.PickupLocation, in.DropLocation; p.HasCoordinates() && d.HasCoordinates() {
		km := utils.RoundTo(utils.HaversineKm(*p.Longitude, *p.Latitude, *d.Longitude, *d.Latitude), 2)
		minutes := utils.EstimateMinutes(km)
		booking.DistanceKm = &km
		booking.EstimatedDurationMin = &minutes
	}

	if err := e.store.Create(ctx, booking); err != nil {
		return nil, err
	}

	e.log.Info("booking created",
		zap.Uint("booking_id", booking.ID),
		zap.Uint("customer_id", actor.ID),
		zap.Uint("category_id", in.CategoryID),
	)
	return e.store.FindByID(ctx, booking.ID)
}

// GetBooking returns a booking the actor is allowed to see.
// Technicians can also see unassigned PENDING jobs they could accept.
func (e *BookingEngine) GetBooking(ctx context.Context, actor Actor, bookingID uint) (*models.Booking, error) {
	if err := authorize(opView, actor); err != nil {
		return nil, err
	}
	booking, err := e.store.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !canView(actor, booking) {
		return nil, notEligible("booking %d is not visible to this user", bookingID)
	}
	return booking, nil
}

// ListBookings returns one page of the bookings visible to the actor.
func (e *BookingEngine) ListBookings(ctx context.Context, actor Actor, filter BookingFilter) ([]models.Booking, int64, error) {
	if err := authorize(opView, actor); err != nil {
		return nil, 0, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, validationError("unknown status %q", filter.Status)
	}
	// Clamp paging
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}

	// Scope by role; customers and technicians cannot widen their view
	switch {
	case actor.IsCustomer():
		filter.CustomerID = &actor.ID
		filter.TechnicianID = nil
		filter.Unassigned = false
	case actor.IsTechnician() && filter.Unassigned:
		// The job board: open bookings nobody has claimed
		filter.CustomerID = nil
		filter.TechnicianID = nil
		filter.Status = models.StatusPending
	case actor.IsTechnician():
		filter.CustomerID = nil
		filter.TechnicianID = &actor.ID
	}
	return e.store.List(ctx, filter)
}

func canView(actor Actor, b *models.Booking) bool {
	switch {
	case actor.IsAdmin():
		return true
	case actor.IsCustomer():
		return actor.Owns(b)
	case actor.IsTechnician():
		return actor.Works(b) || (b.Status == models.StatusPending && b.TechnicianID == nil)
	}
	return false
}

// transition is a planned write plus what to announce once it commits
type transition struct {
	change   BookingChange
	notify   []Notification
	conflict func(fresh *models.Booking) error
}

// mutate serialises on the booking, lets decide plan a write against the
// current snapshot and applies it with compare-and-set. A nil plan means the
// request was already applied and nothing is written or announced.
func (e *BookingEngine) mutate(ctx context.Context, actor Actor, bookingID uint, decide func(b *models.Booking) (*transition, error)) (*models.Booking, error) {
	// Serialise writers of this booking
	unlock, err := e.lock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Decide against a fresh snapshot taken under the lock
	current, err := e.store.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	t, err := decide(current)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return current, nil
	}

	// The write only lands if status and version still match the snapshot
	applied, err := e.store.Apply(ctx, current, &t.change)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Someone else won; report what the booking looks like now
		fresh, err := e.store.FindByID(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		return nil, lostRace(fresh, t)
	}

	updated, err := e.store.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	// A violation here is a bug in a decide func; the write is already committed
	if err := CheckInvariants(updated); err != nil {
		e.log.Error("booking invariant violated", zap.Uint("booking_id", bookingID), zap.Error(err))
	}

	e.log.Info("booking transition",
		zap.Uint("booking_id", bookingID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(updated.Status)),
		zap.Uint("actor_id", actor.ID),
		zap.String("actor_role", string(actor.Role)),
	)
	// Notify only after commit
	e.emit(ctx, t.notify)
	return updated, nil
}

func (e *BookingEngine) lock(ctx context.Context, bookingID uint) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}
	return e.locker.Lock(ctx, bookingID)
}

func lostRace(fresh *models.Booking, t *transition) error {
	if fresh.Status.IsTerminal() {
		return alreadyTerminal(fresh)
	}
	if t.conflict != nil {
		return t.conflict(fresh)
	}
	return invalidTransition(fresh.Status, t.change.To, "booking was modified concurrently")
}

// emit delivers notifications after commit. Delivery is best effort.
func (e *BookingEngine) emit(ctx context.Context, notes []Notification) {
	for _, n := range notes {
		if n.RecipientID == 0 {
			continue
		}
		if err := e.notifier.Notify(ctx, n); err != nil {
			e.log.Warn("notification failed",
				zap.Uint("booking_id", n.BookingID),
				zap.Uint("recipient_id", n.RecipientID),
				zap.String("title", n.Title),
				zap.Error(err),
			)
		}
	}
}

// dispatcherFor returns who dispatched b, or the configured fallback dispatcher.
func (e *BookingEngine) dispatcherFor(b *models.Booking) uint {
	if b.AssignedByID != nil {
		return *b.AssignedByID
	}
	return e.opts.DispatcherID
}

func (e *BookingEngine) validateStruct(in interface{}) error {
	err := e.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return validationError("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return validationError("invalid input: %s", strings.Join(msgs, ", "))
}

func notify(b *models.Booking, title string, recipients ...uint) []Notification {
	notes := make([]Notification, 0, len(recipients))
	for _, r := range recipients {
		notes = append(notes, Notification{RecipientID: r, Title: title, BookingID: b.ID})
	}
	return notes
}
