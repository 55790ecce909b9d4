package models

import "time"

// TechnicianStats is the incrementally maintained earnings projection.
// It can always be recomputed from completed bookings.
type TechnicianStats struct {
	TechnicianID  uint      `gorm:"primaryKey;autoIncrement:false" json:"technician_id"`
	CompletedJobs int64     `gorm:"not null" json:"completed_jobs"`
	TotalEarnings float64   `gorm:"not null" json:"total_earnings"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for the TechnicianStats model
func (TechnicianStats) TableName() string {
	return "technician_stats"
}
