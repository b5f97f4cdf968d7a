package goroutinelimits

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoroutineGuardian(t *testing.T) {
	goroutineLimit, err := CreateCoroutineGuardian(DefaultMaxConcurrentPulls)
	require.NoError(t, err)

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		goroutineLimit.Wait()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer goroutineLimit.Release()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
		}()
		assert.LessOrEqual(t, len(goroutineLimit.Guard), DefaultMaxConcurrentPulls)
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(DefaultMaxConcurrentPulls))
}

func TestCoroutineGuardian_WaitContext(t *testing.T) {
	goroutineLimit, err := CreateCoroutineGuardian(1)
	require.NoError(t, err)
	require.NoError(t, goroutineLimit.WaitContext(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, goroutineLimit.WaitContext(ctx), context.DeadlineExceeded)

	goroutineLimit.Release()
	assert.NoError(t, goroutineLimit.WaitContext(context.Background()))
}

func TestCreateCoroutineGuardian_InvalidLimit(t *testing.T) {
	_, err := CreateCoroutineGuardian(0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}
