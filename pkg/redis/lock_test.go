package redis

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client, err := NewClient(Config{Host: mr.Host(), Port: port}, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestLocker_AcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	locker := NewLocker(client, "", 0)

	lock, err := locker.Acquire(ctx, "invoice-number:INV", time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("fern:lock:invoice-number:INV"))

	_, err = locker.Acquire(ctx, "invoice-number:INV", time.Second)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))
	assert.False(t, mr.Exists("fern:lock:invoice-number:INV"))
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)
}

func TestLocker_WithLock(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	locker := NewLocker(client, "test:", 0)

	ran := false
	err := locker.WithLock(ctx, "k", time.Second, func() error {
		ran = true
		assert.True(t, mr.Exists("test:k"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("test:k"))

	boom := errors.New("boom")
	assert.ErrorIs(t, locker.WithLock(ctx, "k", time.Second, func() error { return boom }), boom)
	assert.False(t, mr.Exists("test:k"), "lock is released when fn fails")
}

func TestLocker_WithLockTimesOut(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	locker := NewLocker(client, "", 50*time.Millisecond)

	held, err := locker.Acquire(ctx, "busy", time.Minute)
	require.NoError(t, err)
	defer held.Release(ctx)

	err = locker.WithLock(ctx, "busy", time.Minute, func() error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestLocker_WithLockSerializes(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	locker := NewLocker(client, "", 5*time.Second)

	var (
		mu      sync.Mutex
		active  int
		overlap bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, "seq", 5*time.Second, func() error {
				mu.Lock()
				active++
				if active > 1 {
					overlap = true
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, overlap)
}
