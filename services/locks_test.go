package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestPlayerLocksSerializeSamePlayer(t *testing.T) {
	locks := NewPlayerLocks()
	var inside, maxInside atomic.Int32

	var g errgroup.Group
	for range 20 {
		g.Go(func() error {
			unlock, err := locks.Lock(context.Background(), "p1")
			if err != nil {
				return err
			}
			defer unlock()
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, locks.size(), "idle locks are dropped")
}

func TestPlayerLocksOppositeOrderDoesNotDeadlock(t *testing.T) {
	locks := NewPlayerLocks()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var g errgroup.Group
	for i := range 50 {
		a, b := "alice", "bob"
		if i%2 == 1 {
			a, b = b, a
		}
		g.Go(func() error {
			unlock, err := locks.Lock(ctx, a, b)
			if err != nil {
				return err
			}
			unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestPlayerLocksHonourContext(t *testing.T) {
	locks := NewPlayerLocks()
	unlock, err := locks.Lock(context.Background(), "p1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, "p2", "p1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsTransient(err))

	// p2 was released when p1 could not be taken.
	unlock2, err := locks.Lock(context.Background(), "p2")
	require.NoError(t, err)
	unlock2()

	unlock()
	assert.Zero(t, locks.size())
}

func TestPlayerLocksBoundWaitWithoutCallerDeadline(t *testing.T) {
	locks := NewPlayerLocks()
	assert.Equal(t, DefaultLockWait, locks.MaxWait)
	locks.MaxWait = 20 * time.Millisecond

	unlock, err := locks.Lock(context.Background(), "p1")
	require.NoError(t, err)
	defer unlock()

	start := time.Now()
	_, err = locks.Lock(context.Background(), "p1")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPlayerLocksDuplicateIDs(t *testing.T) {
	locks := NewPlayerLocks()
	unlock, err := locks.Lock(context.Background(), "p1", "p1")
	require.NoError(t, err)
	unlock()
	assert.Zero(t, locks.size())
}
