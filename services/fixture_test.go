package services

import (
	"context"
	"testing"
	"time"

	"github.com/shridhar/dispatch-api/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testPin = "483920"

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// One connection keeps the in-memory database shared between goroutines.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// fixture is a booking engine over an in-memory database with a small cast of users
type fixture struct {
	db       *gorm.DB
	engine   *BookingEngine
	notifier *RecordingNotifier

	customer      Actor
	otherCustomer Actor
	tech          Actor
	otherTech     Actor
	offlineTech   Actor
	admin         Actor

	category models.Category
	reason   models.Reason
}

type fixtureOption func(*EngineDeps, *EngineOptions)

func withoutLocker() fixtureOption {
	return func(d *EngineDeps, _ *EngineOptions) { d.Locker = nil }
}

func withOptions(opts EngineOptions) fixtureOption {
	return func(_ *EngineDeps, o *EngineOptions) { *o = opts }
}

func newFixture(t *testing.T, options ...fixtureOption) *fixture {
	t.Helper()
	db := setupTestDB(t)
	f := &fixture{db: db, notifier: NewRecordingNotifier()}

	f.customer = f.createUser(t, "auth0|customer", models.RoleCustomer, false, false)
	f.otherCustomer = f.createUser(t, "auth0|customer2", models.RoleCustomer, false, false)
	f.tech = f.createUser(t, "auth0|tech", models.RoleTechnician, true, true)
	f.otherTech = f.createUser(t, "auth0|tech2", models.RoleTechnician, true, true)
	f.offlineTech = f.createUser(t, "auth0|tech3", models.RoleTechnician, true, false)
	f.admin = f.createUser(t, "auth0|admin", models.RoleAdmin, false, false)

	f.category = models.Category{Name: "Plumbing", IsActive: true}
	require.NoError(t, db.Create(&f.category).Error)
	f.reason = models.Reason{Description: "Additional parts", Type: models.ReasonRegular, IsActive: true}
	require.NoError(t, db.Create(&f.reason).Error)

	directory := NewGormDirectory(db)
	deps := EngineDeps{
		Store:       NewBookingStore(db),
		Locker:      NewKeyedLocker(),
		Reasons:     directory,
		Technicians: directory,
		Categories:  directory,
		Notifier:    f.notifier,
		Log:         zap.NewNop(),
		Clock:       func() time.Time { return testNow },
		Pins:        func() (string, error) { return testPin, nil },
	}
	opts := EngineOptions{}
	for _, o := range options {
		o(&deps, &opts)
	}
	f.engine = NewBookingEngine(deps, opts)
	return f
}

func (f *fixture) createUser(t *testing.T, auth0ID string, role models.Role, verified, online bool) Actor {
	t.Helper()
	user := models.User{
		Auth0ID:    auth0ID,
		Name:       auth0ID,
		Email:      auth0ID[len("auth0|"):] + "@example.com",
		Role:       role,
		IsVerified: verified,
		IsOnline:   online,
	}
	require.NoError(t, f.db.Create(&user).Error)
	return Actor{ID: user.ID, Role: role}
}

// book creates a PENDING booking for the default customer at price 499
func (f *fixture) book(t *testing.T) *models.Booking {
	t.Helper()
	b, err := f.engine.CreateBooking(context.Background(), f.customer, CreateBookingInput{
		CategoryID:  f.category.ID,
		Price:       499,
		ScheduledAt: testNow.Add(2 * time.Hour),
		Location:    models.GeoPoint{Address: "12 Harbour Road"},
	})
	require.NoError(t, err)
	return b
}

// inProgress drives a fresh booking to IN_PROGRESS through the default technician
func (f *fixture) inProgress(t *testing.T) *models.Booking {
	t.Helper()
	ctx := context.Background()
	b := f.book(t)
	_, err := f.engine.Assign(ctx, f.admin, b.ID, f.tech.ID)
	require.NoError(t, err)
	_, err = f.engine.AcceptBooking(ctx, f.tech, b.ID)
	require.NoError(t, err)
	b, err = f.engine.StartWork(ctx, f.tech, b.ID)
	require.NoError(t, err)
	return b
}

func (f *fixture) reload(t *testing.T, id uint) *models.Booking {
	t.Helper()
	b, err := f.engine.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) setOnline(t *testing.T, a Actor, online bool) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", a.ID).Update("is_online", online).Error)
}

func uintPtr(v uint) *uint { return &v }
