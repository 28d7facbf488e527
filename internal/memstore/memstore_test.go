package memstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imei-sim/internal/day"
	"imei-sim/internal/quota"
	"imei-sim/internal/track"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestLRUExpiresAfterTTL(t *testing.T) {
	clk := &clock{t: time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)}
	c := NewLRU(8).WithClock(clk.now)
	ctx := context.Background()
	tr := track.Track{Prefix: "49015420********"}
	require.NoError(t, c.Store(ctx, "k", tr, time.Hour))

	got, ok, err := c.Load(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tr, got)

	// 跨过日界但未到 TTL，仍命中
	clk.advance(59 * time.Minute)
	_, ok, _ = c.Load(ctx, "k")
	assert.True(t, ok)

	clk.advance(time.Minute)
	_, ok, _ = c.Load(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU(2)
	ctx := context.Background()
	_ = c.Store(ctx, "a", track.Track{Prefix: "a"}, time.Hour)
	_ = c.Store(ctx, "b", track.Track{Prefix: "b"}, time.Hour)
	_, _, _ = c.Load(ctx, "a")
	_ = c.Store(ctx, "c", track.Track{Prefix: "c"}, time.Hour)

	_, ok, _ := c.Load(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = c.Load(ctx, "a")
	assert.True(t, ok)
	_, ok, _ = c.Load(ctx, "c")
	assert.True(t, ok)
}

func TestCounterBounded(t *testing.T) {
	c := NewCounter()
	ctx := context.Background()
	k := quota.Key{UserID: "u1", Day: day.Date(2024, 1, 1)}
	for i := 1; i <= 3; i++ {
		n, ok, err := c.IncrBounded(ctx, k, 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, i, n)
	}
	n, ok, err := c.IncrBounded(ctx, k, 3, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, n)
}

func TestCounterConcurrent(t *testing.T) {
	c := NewCounter()
	k := quota.Key{UserID: "u1", Day: day.Date(2024, 1, 1)}
	var wg sync.WaitGroup
	var wins int32
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := c.IncrBounded(context.Background(), k, 3, time.Hour); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(3), wins)
}

func TestCounterRaiseNeverLowers(t *testing.T) {
	clk := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCounter().WithClock(clk.now)
	ctx := context.Background()
	k := quota.Key{UserID: "u1", Day: day.Date(2024, 1, 1)}

	_, found, _ := c.Peek(ctx, k)
	assert.False(t, found)
	require.NoError(t, c.Raise(ctx, k, 2, time.Hour))
	require.NoError(t, c.Raise(ctx, k, 1, time.Hour))
	n, found, _ := c.Peek(ctx, k)
	assert.True(t, found)
	assert.Equal(t, 2, n)

	clk.advance(time.Hour)
	_, found, _ = c.Peek(ctx, k)
	assert.False(t, found)
}

func TestCounterSweep(t *testing.T) {
	c := NewCounter()
	ctx := context.Background()
	old := quota.Key{UserID: "u1", Day: day.Date(2024, 1, 1)}
	cur := quota.Key{UserID: "u1", Day: day.Date(2024, 1, 5)}
	_, _, _ = c.IncrBounded(ctx, old, 3, 0)
	_, _, _ = c.IncrBounded(ctx, cur, 3, 0)
	assert.Equal(t, 1, c.Sweep(day.Date(2024, 1, 3).Start()))
	_, found, _ := c.Peek(ctx, cur)
	assert.True(t, found)
}

func TestCounterHonoursCancelledContext(t *testing.T) {
	c := NewCounter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.IncrBounded(ctx, quota.Key{UserID: "u"}, 3, time.Hour)
	assert.Error(t, err)
}
