package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shridhar/dispatch-api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BookingFilter narrows ListBookings. Zero values mean "any".
type BookingFilter struct {
	CustomerID   *uint
	TechnicianID *uint
	Status       models.BookingStatus
	Unassigned   bool
	Page         int
	Limit        int
}

// StatsCredit adds one completed job to a technician's projection
type StatsCredit struct {
	TechnicianID uint
	Amount       float64
}

// BookingChange is one conditional write produced by a transition
type BookingChange struct {
	To             models.BookingStatus
	Updates        map[string]interface{}
	AppendEvidence []string
	Credit         *StatsCredit
}

// BookingStore persists bookings. Apply must be atomic: the row changes only
// if its status and version still match the snapshot the change was built from.
type BookingStore interface {
	Create(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, id uint) (*models.Booking, error)
	List(ctx context.Context, filter BookingFilter) ([]models.Booking, int64, error)
	Apply(ctx context.Context, current *models.Booking, change *BookingChange) (bool, error)
	GetStats(ctx context.Context, technicianID uint) (*models.TechnicianStats, error)
	ComputeStats(ctx context.Context, technicianID uint) (models.TechnicianStats, error)
	RebuildStats(ctx context.Context, technicianID uint) (models.TechnicianStats, error)
}

type gormBookingStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewBookingStore creates a BookingStore on top of gorm
func NewBookingStore(db *gorm.DB) BookingStore {
	return &gormBookingStore{db: db, now: time.Now}
}

func (s *gormBookingStore) Create(ctx context.Context, booking *models.Booking) error {
	if err := s.db.WithContext(ctx).Create(booking).Error; err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (s *gormBookingStore) FindByID(ctx context.Context, id uint) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).
		Preload("WorkProofs", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&booking, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, bookingNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking %d: %w", id, err)
	}
	return &booking, nil
}

func (s *gormBookingStore) List(ctx context.Context, filter BookingFilter) ([]models.Booking, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Booking{})
	if filter.CustomerID != nil {
		q = q.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.TechnicianID != nil {
		q = q.Where("technician_id = ?", *filter.TechnicianID)
	}
	if filter.Unassigned {
		q = q.Where("technician_id IS NULL")
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	var bookings []models.Booking
	err := q.Preload("WorkProofs", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("created_at DESC, id DESC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&bookings).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, total, nil
}

// Apply returns false without error when another writer got there first.
func (s *gormBookingStore) Apply(ctx context.Context, current *models.Booking, change *BookingChange) (bool, error) {
	applied := false
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := make(map[string]interface{}, len(change.Updates)+3)
		for k, v := range change.Updates {
			updates[k] = v
		}
		updates["status"] = string(change.To)
		updates["version"] = current.Version + 1
		updates["updated_at"] = now

		res := tx.Model(&models.Booking{}).
			Where("id = ? AND status = ? AND version = ?", current.ID, string(current.Status), current.Version).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update booking %d: %w", current.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		offset := len(current.WorkProofs)
		for i, ref := range change.AppendEvidence {
			proof := models.WorkProof{BookingID: current.ID, Position: offset + i, Ref: ref, CreatedAt: now}
			if err := tx.Create(&proof).Error; err != nil {
				return fmt.Errorf("failed to record work proof: %w", err)
			}
		}

		if change.Credit != nil {
			if err := creditStats(tx, *change.Credit, now); err != nil {
				return err
			}
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// creditStats adds one completed job to the projection. A missing row is
// seeded from the bookings table, which already includes this completion.
func creditStats(tx *gorm.DB, credit StatsCredit, now time.Time) error {
	res := tx.Model(&models.TechnicianStats{}).
		Where("technician_id = ?", credit.TechnicianID).
		Updates(map[string]interface{}{
			"completed_jobs": gorm.Expr("completed_jobs + ?", 1),
			"total_earnings": gorm.Expr("total_earnings + ?", credit.Amount),
			"updated_at":     now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to credit technician %d: %w", credit.TechnicianID, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// No row yet: seed it from the bookings
	stats, err := aggregateStats(tx, credit.TechnicianID)
	if err != nil {
		return err
	}
	stats.UpdatedAt = now
	res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&stats)
	if res.Error != nil {
		return fmt.Errorf("failed to seed stats for technician %d: %w", credit.TechnicianID, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// A concurrent first completion seeded the row after our aggregate ran.
	// Its seed and ours may overlap, so recount under the row lock.
	_, err = recountStats(tx, credit.TechnicianID, now)
	return err
}

// recountStats locks the technician's projection row and overwrites it with a
// fresh aggregate. The row must exist. Holding the lock orders the recount
// against every concurrent credit, which has to wait for the same row.
func recountStats(tx *gorm.DB, technicianID uint, now time.Time) (models.TechnicianStats, error) {
	var locked models.TechnicianStats
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("technician_id = ?", technicianID).
		First(&locked).Error
	if err != nil {
		return models.TechnicianStats{}, fmt.Errorf("failed to lock stats for technician %d: %w", technicianID, err)
	}

	stats, err := aggregateStats(tx, technicianID)
	if err != nil {
		return models.TechnicianStats{}, err
	}
	stats.UpdatedAt = now

	err = tx.Model(&models.TechnicianStats{}).
		Where("technician_id = ?", technicianID).
		Updates(map[string]interface{}{
			"completed_jobs": stats.CompletedJobs,
			"total_earnings": stats.TotalEarnings,
			"updated_at":     now,
		}).Error
	if err != nil {
		return models.TechnicianStats{}, fmt.Errorf("failed to save stats for technician %d: %w", technicianID, err)
	}
	return stats, nil
}

func aggregateStats(db *gorm.DB, technicianID uint) (models.TechnicianStats, error) {
	var row struct {
		CompletedJobs int64
		TotalEarnings float64
	}
	err := db.Model(&models.Booking{}).
		Select("COUNT(*) AS completed_jobs, COALESCE(SUM(COALESCE(final_amount, price)), 0) AS total_earnings").
		Where("technician_id = ? AND status = ?", technicianID, string(models.StatusCompleted)).
		Scan(&row).Error
	if err != nil {
		return models.TechnicianStats{}, fmt.Errorf("failed to aggregate stats for technician %d: %w", technicianID, err)
	}
	return models.TechnicianStats{
		TechnicianID:  technicianID,
		CompletedJobs: row.CompletedJobs,
		TotalEarnings: row.TotalEarnings,
	}, nil
}

// GetStats returns nil when no projection row exists yet.
func (s *gormBookingStore) GetStats(ctx context.Context, technicianID uint) (*models.TechnicianStats, error) {
	var stats models.TechnicianStats
	err := s.db.WithContext(ctx).First(&stats, "technician_id = ?", technicianID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stats for technician %d: %w", technicianID, err)
	}
	return &stats, nil
}

func (s *gormBookingStore) ComputeStats(ctx context.Context, technicianID uint) (models.TechnicianStats, error) {
	stats, err := aggregateStats(s.db.WithContext(ctx), technicianID)
	if err != nil {
		return models.TechnicianStats{}, err
	}
	stats.UpdatedAt = s.now()
	return stats, nil
}

// RebuildStats recounts a technician's projection from completed bookings in
// one transaction, creating the row if needed.
func (s *gormBookingStore) RebuildStats(ctx context.Context, technicianID uint) (models.TechnicianStats, error) {
	var stats models.TechnicianStats
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()

		// Make sure there is a row to lock
		empty := models.TechnicianStats{TechnicianID: technicianID, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&empty).Error; err != nil {
			return fmt.Errorf("failed to create stats for technician %d: %w", technicianID, err)
		}

		recounted, err := recountStats(tx, technicianID, now)
		if err != nil {
			return err
		}
		stats = recounted
		return nil
	})
	if err != nil {
		return models.TechnicianStats{}, err
	}
	return stats, nil
}
