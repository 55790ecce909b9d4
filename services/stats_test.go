package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shridhar/dispatch-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func completeWith(t *testing.T, f *fixture, amount float64, reason string) {
	t.Helper()
	ctx := context.Background()
	b := f.inProgress(t)
	_, err := f.engine.SubmitProof(ctx, f.tech, b.ID, ProofInput{FinalAmount: amount, ReasonText: reason})
	require.NoError(t, err)
	_, err = f.engine.CompleteBooking(ctx, f.tech, b.ID, testPin)
	require.NoError(t, err)
}

func TestStats_ProjectionMatchesRebuild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	completeWith(t, f, 650, "extra parts")
	completeWith(t, f, 300, "")
	completeWith(t, f, 499, "")
	cancelled := f.book(t)
	_, err := f.engine.CancelBooking(ctx, f.customer, cancelled.ID, "")
	require.NoError(t, err)

	projected, err := f.engine.StatsFor(ctx, f.tech, f.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), projected.CompletedJobs)
	assert.InDelta(t, 1449.0, projected.TotalEarnings, 0.001)

	rebuilt, err := f.engine.RebuildStats(ctx, f.admin, f.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, projected.CompletedJobs, rebuilt.CompletedJobs)
	assert.InDelta(t, projected.TotalEarnings, rebuilt.TotalEarnings, 0.001)
}

func TestStats_MissingProjectionSeedsFromBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	completeWith(t, f, 499, "")
	require.NoError(t, f.db.Where("technician_id = ?", f.tech.ID).Delete(&models.TechnicianStats{}).Error)

	// Reads fall back to the bookings while no row exists.
	stats, err := f.engine.StatsFor(ctx, f.admin, f.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.CompletedJobs)

	// The next completion seeds the row from the bookings, including itself.
	completeWith(t, f, 600, "travel")
	stats, err = f.engine.StatsFor(ctx, f.admin, f.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.CompletedJobs)
	assert.InDelta(t, 1099.0, stats.TotalEarnings, 0.001)

	stored, err := f.engine.store.GetStats(ctx, f.tech.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(2), stored.CompletedJobs)
}

func TestStats_RebuildRepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	completeWith(t, f, 499, "")

	require.NoError(t, f.db.Model(&models.TechnicianStats{}).
		Where("technician_id = ?", f.tech.ID).
		Updates(map[string]interface{}{"completed_jobs": 42, "total_earnings": 1}).Error)

	rebuilt, err := f.engine.RebuildStats(ctx, f.admin, f.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rebuilt.CompletedJobs)

	stats, err := f.engine.StatsFor(ctx, f.tech, f.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.CompletedJobs)
	assert.Equal(t, 499.0, stats.TotalEarnings)
}

func TestStats_Access(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stats, err := f.engine.StatsFor(ctx, f.otherTech, f.otherTech.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.CompletedJobs)
	assert.Equal(t, 0.0, stats.TotalEarnings)

	_, err = f.engine.StatsFor(ctx, f.otherTech, f.tech.ID)
	assert.ErrorIs(t, err, ErrNotEligible)
	_, err = f.engine.StatsFor(ctx, f.customer, f.tech.ID)
	assert.ErrorIs(t, err, ErrNotEligible)
	_, err = f.engine.RebuildStats(ctx, f.tech, f.tech.ID)
	assert.ErrorIs(t, err, ErrNotEligible)
}

// assertProjectionMatchesBookings checks the stored row against a recount of completed bookings
func assertProjectionMatchesBookings(t *testing.T, f *fixture, jobs int64, earnings float64) {
	t.Helper()
	stored, err := f.engine.store.GetStats(context.Background(), f.tech.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	counted, err := f.engine.store.ComputeStats(context.Background(), f.tech.ID)
	require.NoError(t, err)

	assert.Equal(t, jobs, counted.CompletedJobs)
	assert.InDelta(t, earnings, counted.TotalEarnings, 0.001)
	assert.Equal(t, counted.CompletedJobs, stored.CompletedJobs)
	assert.InDelta(t, counted.TotalEarnings, stored.TotalEarnings, 0.001)
}

func TestStats_CompletionDuringRebuildIsKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	completeWith(t, f, 499, "")
	pending := f.inProgress(t)
	_, err := f.engine.SubmitProof(ctx, f.tech, pending.ID, ProofInput{FinalAmount: 499})
	require.NoError(t, err)

	// Fire a completion as soon as the rebuild holds the stats row.
	var once sync.Once
	var wg sync.WaitGroup
	var completeErr error
	require.NoError(t, f.db.Callback().Query().After("gorm:query").Register("stats_test:complete_during_rebuild", func(d *gorm.DB) {
		if d.Statement.Table != "technician_stats" {
			return
		}
		if _, locked := d.Statement.Clauses["FOR"]; !locked {
			return
		}
		once.Do(func() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, completeErr = f.engine.CompleteBooking(context.Background(), f.tech, pending.ID, testPin)
			}()
			// Give the completion time to queue behind the rebuild.
			time.Sleep(20 * time.Millisecond)
		})
	}))

	_, err = f.engine.RebuildStats(ctx, f.admin, f.tech.ID)
	require.NoError(t, err)
	wg.Wait()
	require.NoError(t, completeErr)

	assertProjectionMatchesBookings(t, f, 2, 998)
}

func TestStats_SeedRecountsWhenAnotherSeedWins(t *testing.T) {
	f := newFixture(t)

	completeWith(t, f, 499, "")
	require.NoError(t, f.db.Where("technician_id = ?", f.tech.ID).Delete(&models.TechnicianStats{}).Error)

	// Another first completion commits its seed between our aggregate and our insert.
	var once sync.Once
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("stats_test:competing_seed", func(d *gorm.DB) {
		if d.Statement.Table != "technician_stats" {
			return
		}
		once.Do(func() {
			d.Session(&gorm.Session{NewDB: true}).Exec(
				"INSERT INTO technician_stats (technician_id, completed_jobs, total_earnings, updated_at) VALUES (?, ?, ?, ?)",
				f.tech.ID, 1, 499.0, testNow)
		})
	}))

	completeWith(t, f, 300, "")

	assertProjectionMatchesBookings(t, f, 2, 799)
}

func TestStats_ConcurrentCompletionsAndRebuildsConverge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const jobs = 6
	ready := make([]*models.Booking, jobs)
	for i := range ready {
		ready[i] = f.inProgress(t)
		_, err := f.engine.SubmitProof(ctx, f.tech, ready[i].ID, ProofInput{FinalAmount: 499})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, 2*jobs)
	for i := 0; i < jobs; i++ {
		wg.Add(2)
		go func(id uint) {
			defer wg.Done()
			<-start
			_, err := f.engine.CompleteBooking(ctx, f.tech, id, testPin)
			errs <- err
		}(ready[i].ID)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.engine.RebuildStats(ctx, f.admin, f.tech.ID)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assertProjectionMatchesBookings(t, f, jobs, jobs*499)
}
