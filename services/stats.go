package services

import (
	"context"

	"github.com/shridhar/dispatch-api/models"
	"go.uber.org/zap"
)

// StatsFor returns a technician's completed-job count and earnings.
// Technicians may only read their own stats.
func (e *BookingEngine) StatsFor(ctx context.Context, actor Actor, technicianID uint) (models.TechnicianStats, error) {
	if err := authorize(opStats, actor); err != nil {
		return models.TechnicianStats{}, err
	}
	if actor.IsTechnician() && actor.ID != technicianID {
		return models.TechnicianStats{}, notEligible("technicians can only view their own stats")
	}

	stats, err := e.store.GetStats(ctx, technicianID)
	if err != nil {
		return models.TechnicianStats{}, err
	}
	if stats != nil {
		return *stats, nil
	}
	// No completion has been projected yet; answer from the bookings themselves.
	return e.store.ComputeStats(ctx, technicianID)
}

// RebuildStats recomputes a technician's projection from completed bookings
// and overwrites the stored row. Completions racing the rebuild are either
// counted by it or credited on top of it, never lost.
func (e *BookingEngine) RebuildStats(ctx context.Context, actor Actor, technicianID uint) (models.TechnicianStats, error) {
	if err := authorize(opRebuildStats, actor); err != nil {
		return models.TechnicianStats{}, err
	}

	stats, err := e.store.RebuildStats(ctx, technicianID)
	if err != nil {
		return models.TechnicianStats{}, err
	}

	e.log.Info("technician stats rebuilt",
		zap.Uint("technician_id", technicianID),
		zap.Int64("completed_jobs", stats.CompletedJobs),
		zap.Float64("total_earnings", stats.TotalEarnings),
	)
	return stats, nil
}
