package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeGo(t *testing.T) {
	t.Run("runs the task", func(t *testing.T) {
		done := make(chan struct{})
		SafeGo(context.Background(), time.Second, "test task", func(ctx context.Context) error {
			close(done)
			return nil
		})

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("task never ran")
		}
	})

	t.Run("contains panics", func(t *testing.T) {
		done := make(chan struct{})
		SafeGo(context.Background(), time.Second, "panicking task", func(ctx context.Context) error {
			defer close(done)
			panic("boom")
		})

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("task never ran")
		}
		// reaching here without the test binary dying is the assertion
	})

	t.Run("enforces the timeout", func(t *testing.T) {
		expired := make(chan struct{})
		SafeGo(context.Background(), 10*time.Millisecond, "slow task", func(ctx context.Context) error {
			<-ctx.Done()
			close(expired)
			return ctx.Err()
		})

		select {
		case <-expired:
		case <-time.After(time.Second):
			t.Fatal("task context never expired")
		}
	})
}

func TestWorkerPool(t *testing.T) {
	t.Run("processes every submitted task", func(t *testing.T) {
		pool := NewWorkerPool(context.Background(), 4, "test", time.Second)

		var count atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			require.NoError(t, pool.Submit(func(ctx context.Context) error {
				defer wg.Done()
				count.Add(1)
				return nil
			}))
		}
		wg.Wait()

		assert.Equal(t, int64(100), count.Load())
		assert.NoError(t, pool.Shutdown(time.Second))
	})

	t.Run("collects task errors", func(t *testing.T) {
		pool := NewWorkerPool(context.Background(), 1, "test", time.Second)

		wantErr := errors.New("task failed")
		require.NoError(t, pool.Submit(func(ctx context.Context) error { return wantErr }))

		select {
		case err := <-pool.Errors():
			assert.ErrorIs(t, err, wantErr)
		case <-time.After(time.Second):
			t.Fatal("no error surfaced")
		}
		assert.NoError(t, pool.Shutdown(time.Second))
	})

	t.Run("a panicking task does not kill the pool", func(t *testing.T) {
		pool := NewWorkerPool(context.Background(), 1, "test", time.Second)

		require.NoError(t, pool.Submit(func(ctx context.Context) error { panic("boom") }))
		select {
		case err := <-pool.Errors():
			assert.Contains(t, err.Error(), "panic")
		case <-time.After(time.Second):
			t.Fatal("panic never surfaced as an error")
		}

		// the pool keeps working
		done := make(chan struct{})
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			close(done)
			return nil
		}))
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("pool stopped processing after a panic")
		}
		assert.NoError(t, pool.Shutdown(time.Second))
	})

	t.Run("submit after shutdown fails", func(t *testing.T) {
		pool := NewWorkerPool(context.Background(), 1, "test", time.Second)
		require.NoError(t, pool.Shutdown(time.Second))

		err := pool.Submit(func(ctx context.Context) error { return nil })
		assert.Error(t, err)
	})
}
