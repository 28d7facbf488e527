package memstore

import (
	"context"
	"sync"
	"time"

	"imei-sim/internal/quota"
)

type entry struct {
	n   int
	exp time.Time
}

// 文档注释：进程内有界计数器
// 背景：实现 quota.Counter，用于单进程部署（无 Redis 时的镜像）与测试；条件递增在同一把锁内完成。
// 约束：进程重启即丢失，不可作为多实例部署的权威存储。
type Counter struct {
	mu  sync.Mutex
	m   map[quota.Key]entry
	now func() time.Time
}

func NewCounter() *Counter {
	return &Counter{m: make(map[quota.Key]entry), now: time.Now}
}

func (c *Counter) WithClock(now func() time.Time) *Counter {
	c.now = now
	return c
}

// get：调用方需持有锁；过期项视为不存在
func (c *Counter) get(k quota.Key) (entry, bool) {
	e, ok := c.m[k]
	if !ok {
		return entry{}, false
	}
	if !e.exp.IsZero() && !c.now().Before(e.exp) {
		delete(c.m, k)
		return entry{}, false
	}
	return e, true
}

func (c *Counter) IncrBounded(ctx context.Context, k quota.Key, limit int, ttl time.Duration) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.get(k)
	if !ok {
		e = entry{exp: c.expiry(ttl)}
	}
	if e.n+1 > limit {
		return e.n, false, nil
	}
	e.n++
	c.m[k] = e
	return e.n, true, nil
}

func (c *Counter) Peek(ctx context.Context, k quota.Key) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.get(k)
	return e.n, ok, nil
}

func (c *Counter) Raise(ctx context.Context, k quota.Key, n int, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.get(k)
	if ok && e.n >= n {
		return nil
	}
	c.m[k] = entry{n: n, exp: c.expiry(ttl)}
	return nil
}

func (c *Counter) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

// Sweep：删除早于 before 的日分区，返回删除数
func (c *Counter) Sweep(before time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.m {
		if k.Day.Start().Before(before) {
			delete(c.m, k)
			n++
		}
	}
	return n
}
