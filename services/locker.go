package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BookingLocker serialises mutations of a single booking.
// Locks on different bookings never block each other.
type BookingLocker interface {
	Lock(ctx context.Context, bookingID uint) (unlock func(), err error)
}

// KeyedLocker is an in-process BookingLocker
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[uint]*keyedLock
}

type keyedLock struct {
	sem  chan struct{}
	refs int
}

// NewKeyedLocker creates an empty in-process locker
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[uint]*keyedLock)}
}

// Lock blocks until the booking is free or ctx is done.
func (l *KeyedLocker) Lock(ctx context.Context, bookingID uint) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[bookingID]
	if !ok {
		entry = &keyedLock{sem: make(chan struct{}, 1)}
		l.locks[bookingID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(bookingID, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.release(bookingID, entry)
		})
	}, nil
}

func (l *KeyedLocker) release(bookingID uint, entry *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, bookingID)
	}
}

// held returns the number of bookings with waiters or holders.
func (l *KeyedLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// RedisLocker is a BookingLocker shared by every API instance through Redis
type RedisLocker struct {
	rs  *redsync.Redsync
	ttl time.Duration
	log *zap.Logger
}

// NewRedisLocker creates a distributed locker on client. ttl bounds how long a
// crashed holder can block a booking.
func NewRedisLocker(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisLocker {
	return &RedisLocker{
		rs:  redsync.New(goredis.NewPool(client)),
		ttl: ttl,
		log: log,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, bookingID uint) (func(), error) {
	mutex := l.rs.NewMutex(
		fmt.Sprintf("booking-lock:%d", bookingID),
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(64),
		redsync.WithRetryDelay(50*time.Millisecond),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to lock booking %d: %w", bookingID, err)
	}
	return func() {
		if _, err := mutex.Unlock(); err != nil {
			l.log.Warn("failed to release booking lock", zap.Uint("booking_id", bookingID), zap.Error(err))
		}
	}, nil
}
