package ratelimit

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startRedis returns a client for image. DEALROOM_TEST_REDIS_URL reuses an
// existing server instead of starting a container.
func startRedis(t *testing.T, image string) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("redis integration test skipped in short mode")
	}
	ctx := context.Background()

	var opts *redis.Options
	if url := os.Getenv("DEALROOM_TEST_REDIS_URL"); url != "" {
		var err error
		opts, err = redis.ParseURL(url)
		require.NoError(t, err)
	} else {
		testcontainers.SkipIfProviderIsNotHealthy(t)

		c, err := testcontainers.Run(ctx, image,
			testcontainers.WithExposedPorts("6379/tcp"),
			testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Terminate(context.Background()) })

		addr, err := c.PortEndpoint(ctx, "6379/tcp", "")
		require.NoError(t, err)
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLimiter(t *testing.T) {
	images := []string{"redis:7-alpine", "redis:6.2-alpine"}
	if os.Getenv("DEALROOM_TEST_REDIS_URL") != "" {
		images = images[:1]
	}

	for _, image := range images {
		t.Run(image, func(t *testing.T) {
			client := startRedis(t, image)
			ctx := context.Background()
			prefix := "test:" + uuid.NewString() + ":"

			t.Run("instances share one counter", func(t *testing.T) {
				a := NewRedisLimiter(client, prefix)
				b := NewRedisLimiter(client, prefix)

				for i, l := range []*RedisLimiter{a, b, a} {
					d, err := l.Allow(ctx, "rotate:deal:buyer", 3, time.Hour)
					require.NoError(t, err)
					assert.True(t, d.Allowed, "attempt %d", i+1)
					assert.EqualValues(t, i+1, d.Count)
				}

				d, err := b.Allow(ctx, "rotate:deal:buyer", 3, time.Hour)
				require.NoError(t, err)
				assert.False(t, d.Allowed)
				assert.Positive(t, d.RetryAfter)
				assert.LessOrEqual(t, d.RetryAfter, time.Hour)

				ttl, err := client.PTTL(ctx, prefix+"rotate:deal:buyer").Result()
				require.NoError(t, err)
				assert.Positive(t, ttl, "window has an expiry")
			})

			t.Run("concurrent callers", func(t *testing.T) {
				l := NewRedisLimiter(client, prefix)
				var wg sync.WaitGroup
				var mu sync.Mutex
				allowed := 0
				for range 20 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						d, err := l.Allow(ctx, "burst", 3, time.Hour)
						if err == nil && d.Allowed {
							mu.Lock()
							allowed++
							mu.Unlock()
						}
					}()
				}
				wg.Wait()
				assert.Equal(t, 3, allowed)
			})

			t.Run("window resets", func(t *testing.T) {
				l := NewRedisLimiter(client, prefix)
				const window = 300 * time.Millisecond

				_, err := l.Allow(ctx, "short", 1, window)
				require.NoError(t, err)
				d, err := l.Allow(ctx, "short", 1, window)
				require.NoError(t, err)
				require.False(t, d.Allowed)

				time.Sleep(d.RetryAfter + 100*time.Millisecond)

				d, err = l.Allow(ctx, "short", 1, window)
				require.NoError(t, err)
				assert.True(t, d.Allowed)
				assert.EqualValues(t, 1, d.Count)
			})

			t.Run("key without expiry is repaired", func(t *testing.T) {
				l := NewRedisLimiter(client, prefix)
				require.NoError(t, client.Set(ctx, prefix+"orphan", 5, 0).Err())

				d, err := l.Allow(ctx, "orphan", 3, time.Minute)
				require.NoError(t, err)
				assert.False(t, d.Allowed)
				assert.Equal(t, time.Minute, d.RetryAfter)

				ttl, err := client.PTTL(ctx, prefix+"orphan").Result()
				require.NoError(t, err)
				assert.Positive(t, ttl)
			})
		})
	}
}
