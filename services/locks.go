package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultLockWait bounds how long Lock waits for a busy player.
const DefaultLockWait = 5 * time.Second

// PlayerLocks serializes mutations per player. Locking several players always
// acquires in ascending id order so two callers can never deadlock.
type PlayerLocks struct {
	// MaxWait caps every Lock call, on top of any caller deadline.
	MaxWait time.Duration

	mu    sync.Mutex
	locks map[string]*playerLock
}

type playerLock struct {
	sem  *semaphore.Weighted
	refs int
}

func NewPlayerLocks() *PlayerLocks {
	return &PlayerLocks{MaxWait: DefaultLockWait, locks: make(map[string]*playerLock)}
}

// Lock blocks until every listed player is held, ctx is done or MaxWait
// passes. A deadline surfaces as TransientFailure.
// The returned func releases all of them.
func (l *PlayerLocks) Lock(ctx context.Context, playerIDs ...string) (func(), error) {
	if l.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.MaxWait)
		defer cancel()
	}

	ids := slices.Clone(playerIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	held := make([]string, 0, len(ids))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}

	for _, id := range ids {
		if err := l.acquire(ctx, id); err != nil {
			release()
			return nil, err
		}
		held = append(held, id)
	}
	return release, nil
}

func (l *PlayerLocks) acquire(ctx context.Context, id string) error {
	l.mu.Lock()
	pl, ok := l.locks[id]
	if !ok {
		pl = &playerLock{sem: semaphore.NewWeighted(1)}
		l.locks[id] = pl
	}
	pl.refs++
	l.mu.Unlock()

	if err := pl.sem.Acquire(ctx, 1); err != nil {
		l.drop(id, pl)
		if errors.Is(err, context.DeadlineExceeded) {
			return &Error{Code: CodeTransientFailure, Message: "timed out waiting for player " + id, Err: err}
		}
		return fmt.Errorf("waiting for player %s: %w", id, err)
	}
	return nil
}

func (l *PlayerLocks) release(id string) {
	l.mu.Lock()
	pl := l.locks[id]
	l.mu.Unlock()
	pl.sem.Release(1)
	l.drop(id, pl)
}

func (l *PlayerLocks) drop(id string, pl *playerLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl.refs--
	if pl.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *PlayerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
