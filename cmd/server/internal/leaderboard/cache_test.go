package leaderboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func counting(entries []Entry, calls *atomic.Int32) Loader {
	return func(context.Context) ([]Entry, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return append([]Entry(nil), entries...), nil
	}
}

func TestCacheLocal(t *testing.T) {
	ctx := context.Background()
	entries := []Entry{
		{TeamID: uuid.New(), TeamName: "b", TotalSolves: 1},
		{TeamID: uuid.New(), TeamName: "a", TotalSolves: 2},
	}

	t.Run("LoadsOnceWithinTTL", func(t *testing.T) {
		var calls atomic.Int32
		c := NewCache(counting(entries, &calls), nil, time.Minute)

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sorted, err := c.Sorted(ctx)
				assert.NoError(t, err)
				assert.Equal(t, []string{"a", "b"}, names(sorted))
			}()
		}
		wg.Wait()

		_, err := c.Sorted(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Expires", func(t *testing.T) {
		var calls atomic.Int32
		c := NewCache(counting(entries, &calls), nil, time.Minute)
		now := start
		c.now = func() time.Time { return now }

		_, err := c.Sorted(ctx)
		require.NoError(t, err)
		now = now.Add(2 * time.Minute)
		_, err = c.Sorted(ctx)
		require.NoError(t, err)

		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("Invalidate", func(t *testing.T) {
		var calls atomic.Int32
		c := NewCache(counting(entries, &calls), nil, time.Minute)

		_, err := c.Sorted(ctx)
		require.NoError(t, err)
		c.Invalidate(ctx)
		_, err = c.Sorted(ctx)
		require.NoError(t, err)

		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("InvalidateDuringLoad", func(t *testing.T) {
		var calls atomic.Int32
		entered, release := make(chan struct{}), make(chan struct{})
		c := NewCache(func(context.Context) ([]Entry, error) {
			if calls.Add(1) == 1 {
				close(entered)
				<-release
			}
			return append([]Entry(nil), entries...), nil
		}, nil, time.Minute)

		done := make(chan error)
		go func() {
			_, err := c.Sorted(ctx)
			done <- err
		}()
		<-entered
		c.Invalidate(ctx)
		close(release)
		require.NoError(t, <-done)

		// the load that straddled the invalidation was served but not kept
		_, err := c.Sorted(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("CanceledCallerSharedLoad", func(t *testing.T) {
		entered, release := make(chan struct{}), make(chan struct{})
		c := NewCache(func(ctx context.Context) ([]Entry, error) {
			close(entered)
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return append([]Entry(nil), entries...), nil
		}, nil, time.Minute)

		callerCtx, cancel := context.WithCancel(ctx)
		done := make(chan error)
		go func() {
			_, err := c.Sorted(callerCtx)
			done <- err
		}()
		<-entered
		cancel()
		close(release)
		require.NoError(t, <-done)

		sorted, err := c.Sorted(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, names(sorted))
	})

	t.Run("LoadError", func(t *testing.T) {
		c := NewCache(func(context.Context) ([]Entry, error) {
			return nil, errors.New("db down")
		}, nil, time.Minute)

		_, err := c.Board(ctx, uuid.Nil)
		assert.ErrorContains(t, err, "db down")
	})
}

func TestCacheRedis(t *testing.T) {
	ctx := context.Background()

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(10 * time.Second),
		},
		Started: true,
	})
	defer func() {
		assert.NoError(t, testcontainers.TerminateContainer(redisContainer), "failed to terminate container")
	}()
	require.NoError(t, err, "failed to start redis container")

	endpoint, err := redisContainer.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	defer client.Close()

	hidden := uuid.New()
	entries := []Entry{
		{TeamID: uuid.New(), TeamName: "visible", TotalSolves: 1, CreationTime: start},
		{TeamID: hidden, TeamName: "hidden", TotalSolves: 2, IsHidden: true, CreationTime: start},
	}

	var calls atomic.Int32
	first := NewCache(counting(entries, &calls), client, time.Minute)
	second := NewCache(counting(entries, &calls), client, time.Minute)

	b, err := first.Board(ctx, uuid.Nil)
	require.NoError(t, err)
	require.Len(t, b.Rows, 1)

	b, err = second.Board(ctx, hidden)
	require.NoError(t, err)
	require.Len(t, b.Rows, 2, "the hidden flag survives the shared cache")
	assert.Equal(t, 1, b.ViewerRank)
	assert.True(t, start.Equal(b.Rows[0].CreationTime))

	assert.Equal(t, int32(1), calls.Load(), "replicas share one load")

	second.Invalidate(ctx)
	_, err = first.Sorted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
