package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shridhar/dispatch-api/models"
	"gorm.io/gorm"
)

// ErrLookupNotFound is returned by collaborators when the id is unknown
var ErrLookupNotFound = errors.New("not found")

// ReasonInfo is the engine's read-only view of a Reason
type ReasonInfo struct {
	ID       uint
	Type     models.ReasonType
	IsActive bool
}

// ReasonRegistry resolves price-increase reasons. Inactive reasons still resolve.
type ReasonRegistry interface {
	LookupReason(ctx context.Context, id uint) (ReasonInfo, error)
}

// TechnicianInfo is the engine's read-only view of a technician
type TechnicianInfo struct {
	ID         uint
	Role       models.Role
	IsVerified bool
	IsOnline   bool
}

// Eligible reports whether the technician may receive jobs right now.
func (t TechnicianInfo) Eligible() bool {
	return models.User{Role: t.Role, IsVerified: t.IsVerified, IsOnline: t.IsOnline}.CanTakeJobs()
}

// TechnicianDirectory resolves technician eligibility
type TechnicianDirectory interface {
	LookupTechnician(ctx context.Context, id uint) (TechnicianInfo, error)
}

// CategoryInfo is the engine's read-only view of a Category
type CategoryInfo struct {
	ID       uint
	IsActive bool
}

// CategoryCatalog resolves bookable categories
type CategoryCatalog interface {
	LookupCategory(ctx context.Context, id uint) (CategoryInfo, error)
}

// GormDirectory implements every lookup over the application database
type GormDirectory struct {
	db *gorm.DB
}

// NewGormDirectory creates lookups backed by db
func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// LookupReason finds a reason regardless of its active flag
func (d *GormDirectory) LookupReason(ctx context.Context, id uint) (ReasonInfo, error) {
	var reason models.Reason
	if err := d.first(ctx, &reason, id); err != nil {
		return ReasonInfo{}, err
	}
	return ReasonInfo{ID: reason.ID, Type: reason.Type, IsActive: reason.IsActive}, nil
}

// LookupTechnician finds a user and reports its dispatch eligibility
func (d *GormDirectory) LookupTechnician(ctx context.Context, id uint) (TechnicianInfo, error) {
	var user models.User
	if err := d.first(ctx, &user, id); err != nil {
		return TechnicianInfo{}, err
	}
	return TechnicianInfo{ID: user.ID, Role: user.Role, IsVerified: user.IsVerified, IsOnline: user.IsOnline}, nil
}

// LookupCategory finds a category
func (d *GormDirectory) LookupCategory(ctx context.Context, id uint) (CategoryInfo, error) {
	var category models.Category
	if err := d.first(ctx, &category, id); err != nil {
		return CategoryInfo{}, err
	}
	return CategoryInfo{ID: category.ID, IsActive: category.IsActive}, nil
}

func (d *GormDirectory) first(ctx context.Context, dest interface{}, id uint) error {
	err := d.db.WithContext(ctx).First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrLookupNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}
	return nil
}
