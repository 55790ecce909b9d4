package models

import "time"

// ReasonType groups the justifications technicians can pick from
type ReasonType string

const (
	ReasonRegular   ReasonType = "REGULAR"
	ReasonTransport ReasonType = "TRANSPORT"
)

// Reason is an admin-curated justification for a price increase.
// Deactivated reasons stay resolvable for bookings that already cite them.
type Reason struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Description string     `gorm:"not null" json:"description"`
	Type        ReasonType `gorm:"type:varchar(20);not null" json:"type"`
	IsActive    bool       `gorm:"not null;index" json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for the Reason model
func (Reason) TableName() string {
	return "reasons"
}
