package models

import (
	"time"
)

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

const (
	StatusPending    BookingStatus = "PENDING"
	StatusAssigned   BookingStatus = "ASSIGNED"
	StatusAccepted   BookingStatus = "ACCEPTED"
	StatusInProgress BookingStatus = "IN_PROGRESS"
	StatusCompleted  BookingStatus = "COMPLETED"
	StatusCancelled  BookingStatus = "CANCELLED"
	StatusRejected   BookingStatus = "REJECTED"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s BookingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusAccepted, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// PaymentStatus is tracked alongside the lifecycle status and never drives it
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// GeoPoint is a display-only location. Coordinates are optional.
type GeoPoint struct {
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Address   string   `json:"address,omitempty" validate:"max=500"`
}

// HasCoordinates reports whether both coordinates are present.
func (p GeoPoint) HasCoordinates() bool {
	return p.Longitude != nil && p.Latitude != nil
}

// Booking is one service request and its lifecycle
type Booking struct {
	ID                   uint          `gorm:"primaryKey" json:"id"`
	CustomerID           uint          `gorm:"not null;index" json:"customer_id"`
	Customer             *User         `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	TechnicianID         *uint         `gorm:"index" json:"technician_id"` // set exactly once by dispatch
	Technician           *User         `gorm:"foreignKey:TechnicianID" json:"technician,omitempty"`
	AssignedByID         *uint         `json:"assigned_by_id,omitempty"`
	CategoryID           uint          `gorm:"not null;index" json:"category_id"`
	Status               BookingStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentStatus        PaymentStatus `gorm:"type:varchar(20);not null" json:"payment_status"`
	Price                float64       `gorm:"not null" json:"price"`
	FinalAmount          *float64      `json:"final_amount"`
	ExtraReasonID        *uint         `json:"extra_reason_id,omitempty"`
	ExtraReason          *Reason       `gorm:"foreignKey:ExtraReasonID" json:"extra_reason,omitempty"`
	ExtraReasonText      *string       `json:"extra_reason_text,omitempty"`
	ScheduledAt          time.Time     `gorm:"not null" json:"scheduled_at"`
	StartedAt            *time.Time    `json:"started_at,omitempty"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
	SecurityPin          string        `gorm:"size:6;not null" json:"-"`
	IsHappyPinVerified   bool          `gorm:"not null" json:"is_happy_pin_verified"`
	WorkProofs           []WorkProof   `gorm:"foreignKey:BookingID" json:"work_proof"`
	TechnicianNote       *string       `json:"technician_note,omitempty"`
	Notes                string        `json:"notes,omitempty"`
	ReferenceImage       string        `gorm:"size:500" json:"reference_image,omitempty"` // customer photo of the job, stored like evidence
	Location             GeoPoint      `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	PickupLocation       GeoPoint      `gorm:"embedded;embeddedPrefix:pickup_" json:"pickup_location"`
	DropLocation         GeoPoint      `gorm:"embedded;embeddedPrefix:drop_" json:"drop_location"`
	DistanceKm           *float64      `json:"distance_km,omitempty"`
	EstimatedDurationMin *int          `json:"estimated_duration_min,omitempty"`
	CancelledByID        *uint         `json:"cancelled_by_id,omitempty"`
	CancelledAt          *time.Time    `json:"cancelled_at,omitempty"`
	CancellationReason   *string       `json:"cancellation_reason,omitempty"`
	RejectionReason      *string       `json:"rejection_reason,omitempty"`
	Version              int           `gorm:"not null" json:"version"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// TableName specifies the table name for the Booking model
func (Booking) TableName() string {
	return "bookings"
}

// IsAssignedTo reports whether technicianID is the bound technician.
func (b *Booking) IsAssignedTo(technicianID uint) bool {
	return b.TechnicianID != nil && *b.TechnicianID == technicianID
}

// EvidenceRefs returns the recorded work-proof refs in upload order.
func (b *Booking) EvidenceRefs() []string {
	refs := make([]string, 0, len(b.WorkProofs))
	for _, p := range b.WorkProofs {
		refs = append(refs, p.Ref)
	}
	return refs
}

// Earning is the amount credited to the technician for this booking.
func (b *Booking) Earning() float64 {
	if b.FinalAmount != nil {
		return *b.FinalAmount
	}
	return b.Price
}

// WorkProof is one evidence reference (image key or URL) attached to a booking
type WorkProof struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	BookingID uint      `gorm:"not null;uniqueIndex:idx_work_proofs_booking_ref" json:"-"`
	Position  int       `gorm:"not null" json:"position"`
	Ref       string    `gorm:"not null;uniqueIndex:idx_work_proofs_booking_ref" json:"ref"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for the WorkProof model
func (WorkProof) TableName() string {
	return "work_proofs"
}
