package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"

	"ledgerreports/internal/log"
)

// CycleLock grants at most one poll cycle at a time. TryAcquire never waits:
// ok is false when another cycle holds the lock.
type CycleLock interface {
	TryAcquire(ctx context.Context) (lease Lease, ok bool, err error)
}

// Lease is a held cycle lock.
type Lease interface {
	Release()
	// Lost is closed when the lock can no longer be guaranteed before
	// Release is called. A nil channel means the lease cannot be lost.
	Lost() <-chan struct{}
}

type localLease struct {
	sem *semaphore.Weighted
}

func (l localLease) Release()              { l.sem.Release(1) }
func (l localLease) Lost() <-chan struct{} { return nil }

// LocalLock excludes cycles within one process.
type LocalLock struct {
	sem *semaphore.Weighted
}

func NewLocalLock() *LocalLock {
	return &LocalLock{sem: semaphore.NewWeighted(1)}
}

func (l *LocalLock) TryAcquire(context.Context) (Lease, bool, error) {
	if !l.sem.TryAcquire(1) {
		return nil, false, nil
	}
	return localLease{sem: l.sem}, true, nil
}

// RedisLock excludes cycles across every process sharing the Redis key. The
// lease is refreshed at half its TTL while the cycle runs.
type RedisLock struct {
	client *redis.Client
	locker *redislock.Client
	key    string
	ttl    time.Duration
	logger *log.Logger
}

// NewRedisLock connects to addr and verifies the connection with a ping.
func NewRedisLock(ctx context.Context, addr, key string, ttl time.Duration, logger *log.Logger) (*RedisLock, error) {
	if logger == nil {
		logger = log.Discard()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 10,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &RedisLock{
		client: client,
		locker: redislock.New(client),
		key:    key,
		ttl:    ttl,
		logger: logger.WithComponent(log.ComponentLock),
	}, nil
}

func (l *RedisLock) TryAcquire(ctx context.Context) (Lease, bool, error) {
	lock, err := l.locker.Obtain(ctx, l.key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("obtain lock %s: %w", l.key, err)
	}

	lease := &redisLease{
		owner: l,
		lock:  lock,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		lost:  make(chan struct{}),
	}
	go lease.keepAlive()
	return lease, true, nil
}

type redisLease struct {
	owner *RedisLock
	lock  *redislock.Lock
	stop  chan struct{}
	done  chan struct{}
	lost  chan struct{}
	once  sync.Once
}

func (r *redisLease) Lost() <-chan struct{} { return r.lost }

func (r *redisLease) Release() {
	r.once.Do(func() {
		close(r.stop)
		<-r.done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.owner.logger.Warn("Failed to release cycle lock", log.FieldError, err, "key", r.owner.key)
		}
	})
}

// keepAlive refreshes the lease at half its TTL. A failed refresh closes
// lost: the key may expire and another process may take it.
func (r *redisLease) keepAlive() {
	defer close(r.done)
	ttl := r.owner.ttl
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), ttl/2)
			err := r.lock.Refresh(ctx, ttl, nil)
			cancel()
			if err != nil {
				r.owner.logger.Error("Lost cycle lock, current cycle will stop after its item",
					log.FieldError, err, "key", r.owner.key)
				close(r.lost)
				return
			}
		}
	}
}

func (l *RedisLock) Close() error {
	return l.client.Close()
}
