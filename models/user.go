package models

import (
	"time"

	"gorm.io/gorm"
)

// Role is the capability class a user acts under.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTechnician Role = "technician"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleTechnician, RoleAdmin:
		return true
	}
	return false
}

// User represents a customer, technician or dispatcher (admin)
type User struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Auth0ID    string         `gorm:"uniqueIndex;not null" json:"auth0_id"` // Auth0 user ID (from 'sub' claim)
	Name       string         `gorm:"not null" json:"name"`
	Email      string         `gorm:"uniqueIndex;not null" json:"email"`
	Phone      string         `json:"phone,omitempty"`
	Role       Role           `gorm:"type:varchar(20);not null;default:'customer'" json:"role"`
	IsVerified bool           `gorm:"not null" json:"is_verified"` // technicians only; set by an admin
	IsOnline   bool           `gorm:"not null" json:"is_online"`   // technician availability toggle
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// CanTakeJobs reports whether the user may be dispatched to a booking.
func (u User) CanTakeJobs() bool {
	return u.Role == RoleTechnician && u.IsVerified && u.IsOnline
}
