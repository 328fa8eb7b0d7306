package taskrunner

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

func TestRunWaitsOnShutdown(t *testing.T) {
	c := Create()
	var ran atomic.Int32

	for range 5 {
		c.Run(context.Background(), "count", func(context.Context) error {
			time.Sleep(10 * time.Millisecond)
			ran.Add(1)
			return nil
		})
	}

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, int32(5), ran.Load())
}

func TestRunSurvivesCancelledParent(t *testing.T) {
	c := Create()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawErr error
	c.Run(ctx, "ctx", func(ctx context.Context) error {
		sawErr = ctx.Err()
		return nil
	})

	require.NoError(t, c.Shutdown(context.Background()))
	assert.NoError(t, sawErr)
}

func TestRunReportsErrorsAndPanics(t *testing.T) {
	c := Create()

	var mu sync.Mutex
	failed := map[string]error{}
	c.OnError(func(_ context.Context, task string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed[task] = err
	})

	boom := errors.New("boom")
	c.Run(context.Background(), "error", func(context.Context) error { return boom })
	c.Run(context.Background(), "panic", func(context.Context) error { panic("oops") })
	c.Run(context.Background(), "ok", func(context.Context) error { return nil })

	require.NoError(t, c.Shutdown(context.Background()))

	assert.ErrorIs(t, failed["error"], boom)
	assert.ErrorContains(t, failed["panic"], "oops")
	assert.NotContains(t, failed, "ok")
}

func TestShutdownTimeout(t *testing.T) {
	c := Create()
	release := make(chan struct{})
	defer close(release)

	c.Run(context.Background(), "block", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, c.Shutdown(ctx), ErrShutdownTimeout)
}
