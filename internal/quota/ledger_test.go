package quota_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imei-sim/internal/day"
	"imei-sim/internal/memstore"
	"imei-sim/internal/quota"
)

var noon = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return noon }

// brokenCounter 模拟不可达的存储，并记录调用次数
type brokenCounter struct {
	calls int32
}

func (b *brokenCounter) IncrBounded(ctx context.Context, k quota.Key, limit int, ttl time.Duration) (int, bool, error) {
	atomic.AddInt32(&b.calls, 1)
	return 0, false, errors.New("connection refused")
}

func (b *brokenCounter) Peek(ctx context.Context, k quota.Key) (int, bool, error) {
	atomic.AddInt32(&b.calls, 1)
	return 0, false, errors.New("connection refused")
}

func (b *brokenCounter) Raise(ctx context.Context, k quota.Key, n int, ttl time.Duration) error {
	atomic.AddInt32(&b.calls, 1)
	return errors.New("connection refused")
}

// countingCounter 包装计数器并统计 IncrBounded 调用
type countingCounter struct {
	quota.Counter
	incr int32
}

func (c *countingCounter) IncrBounded(ctx context.Context, k quota.Key, limit int, ttl time.Duration) (int, bool, error) {
	atomic.AddInt32(&c.incr, 1)
	return c.Counter.IncrBounded(ctx, k, limit, ttl)
}

func TestFourthLookupExceeded(t *testing.T) {
	l := quota.NewLedger(memstore.NewCounter(), memstore.NewCounter(), quota.Options{Now: fixedNow})
	ctx := context.Background()
	d := day.Date(2024, 1, 1)

	for i := 1; i <= 3; i++ {
		dec, err := l.CheckAndConsume(ctx, "u1", d)
		require.NoError(t, err)
		assert.True(t, dec.Allowed)
		assert.Equal(t, 3-i, dec.Remaining)
		assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), dec.ResetAt)
	}
	_, err := l.CheckAndConsume(ctx, "u1", d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, quota.ErrQuotaExceeded))
	var ex *quota.ExceededError
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), ex.ResetAt)

	// 其他用户不受影响
	dec, err := l.CheckAndConsume(ctx, "u2", d)
	require.NoError(t, err)
	assert.Equal(t, 2, dec.Remaining)
}

func TestRolloverStartsFresh(t *testing.T) {
	l := quota.NewLedger(memstore.NewCounter(), memstore.NewCounter(), quota.Options{Now: fixedNow})
	ctx := context.Background()
	d := day.Date(2024, 1, 1)
	for i := 0; i < 3; i++ {
		_, err := l.CheckAndConsume(ctx, "u1", d)
		require.NoError(t, err)
	}
	st, err := l.Status(ctx, "u1", d.Next())
	require.NoError(t, err)
	assert.Equal(t, 0, st.Consumed)
	assert.Equal(t, 3, st.Remaining)

	dec, err := l.CheckAndConsume(ctx, "u1", d.Next())
	require.NoError(t, err)
	assert.Equal(t, 2, dec.Remaining)
	assert.Equal(t, d.Next().ResetAt(), dec.ResetAt)
}

func TestConcurrentConsumeNeverExceedsCapacity(t *testing.T) {
	for _, n := range []int{1, 3, 4, 16, 128} {
		l := quota.NewLedger(memstore.NewCounter(), memstore.NewCounter(), quota.Options{Now: fixedNow})
		var wg sync.WaitGroup
		var ok, exceeded int32
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := l.CheckAndConsume(context.Background(), "same-user", day.Date(2024, 1, 1))
				switch {
				case err == nil:
					atomic.AddInt32(&ok, 1)
				case errors.Is(err, quota.ErrQuotaExceeded):
					atomic.AddInt32(&exceeded, 1)
				}
			}()
		}
		wg.Wait()
		want := n
		if want > 3 {
			want = 3
		}
		assert.Equal(t, int32(want), ok, "n=%d", n)
		assert.Equal(t, int32(n-want), exceeded, "n=%d", n)
	}
}

func TestMirrorShortCircuitsRejections(t *testing.T) {
	durable := &countingCounter{Counter: memstore.NewCounter()}
	l := quota.NewLedger(durable, memstore.NewCounter(), quota.Options{Now: fixedNow})
	ctx := context.Background()
	d := day.Date(2024, 1, 1)
	for i := 0; i < 3; i++ {
		_, err := l.CheckAndConsume(ctx, "u1", d)
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err := l.CheckAndConsume(ctx, "u1", d)
		assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&durable.incr))
}

func TestMirrorRebuiltFromDurable(t *testing.T) {
	durable := memstore.NewCounter()
	ctx := context.Background()
	d := day.Date(2024, 1, 1)
	// 权威存储已有 3 次消费，镜像为空（如 Redis 重启）
	for i := 0; i < 3; i++ {
		_, _, _ = durable.IncrBounded(ctx, quota.Key{UserID: "u1", Day: d}, 3, 0)
	}
	mirror := memstore.NewCounter()
	l := quota.NewLedger(durable, mirror, quota.Options{Now: fixedNow})

	_, err := l.CheckAndConsume(ctx, "u1", d)
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
	n, found, _ := mirror.Peek(ctx, quota.Key{UserID: "u1", Day: d})
	assert.True(t, found)
	assert.Equal(t, 3, n)
}

func TestDurableUnavailableFailsClosed(t *testing.T) {
	l := quota.NewLedger(&brokenCounter{}, memstore.NewCounter(), quota.Options{Now: fixedNow})
	_, err := l.CheckAndConsume(context.Background(), "u1", day.Date(2024, 1, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, quota.ErrUnavailable)
	assert.False(t, errors.Is(err, quota.ErrQuotaExceeded))

	_, err = l.Status(context.Background(), "u1", day.Date(2024, 1, 1))
	assert.ErrorIs(t, err, quota.ErrUnavailable)
}

func TestMirrorUnavailableIsNonFatal(t *testing.T) {
	mirror := &brokenCounter{}
	l := quota.NewLedger(memstore.NewCounter(), mirror, quota.Options{Now: fixedNow})
	ctx := context.Background()
	d := day.Date(2024, 1, 1)
	for i := 0; i < 3; i++ {
		_, err := l.CheckAndConsume(ctx, "u1", d)
		require.NoError(t, err)
	}
	_, err := l.CheckAndConsume(ctx, "u1", d)
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
	assert.Greater(t, atomic.LoadInt32(&mirror.calls), int32(0))

	noMirror := quota.NewLedger(memstore.NewCounter(), nil, quota.Options{Now: fixedNow})
	_, err = noMirror.CheckAndConsume(ctx, "u1", d)
	assert.NoError(t, err)
}

func TestCustomCapacity(t *testing.T) {
	l := quota.NewLedger(memstore.NewCounter(), nil, quota.Options{Capacity: 1, Now: fixedNow})
	assert.Equal(t, 1, l.Capacity())
	_, err := l.CheckAndConsume(context.Background(), "u1", day.Date(2024, 1, 1))
	require.NoError(t, err)
	_, err = l.CheckAndConsume(context.Background(), "u1", day.Date(2024, 1, 1))
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
}

func TestKeyString(t *testing.T) {
	k := quota.Key{UserID: "42", Day: day.Date(2024, 1, 1)}
	assert.Equal(t, "quota:user:42:2024-01-01", k.String())
}
