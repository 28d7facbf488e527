// 包 memstore：进程内存储，轨迹 LRU 缓存与配额计数器
package memstore

import (
	"container/list"
	"context"
	"sync"
	"time"

	"imei-sim/internal/track"
)

// 文档注释：本地 LRU 缓存（轨迹缓存键为键）
// 背景：热点标识在短周期内重复查询，进程内缓存免去合成与 Redis 往返；TTL 从写入起算。
// 约束：容量满时淘汰最久未访问项；过期项在读取时惰性删除。
type LRU struct {
	mu   sync.Mutex
	cap  int
	lst  *list.List
	dict map[string]*list.Element
	now  func() time.Time
}

type kv struct {
	k   string
	v   track.Track
	exp time.Time
}

func NewLRU(capacity int) *LRU {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LRU{cap: capacity, lst: list.New(), dict: make(map[string]*list.Element), now: time.Now}
}

// WithClock：替换时钟，测试使用
func (c *LRU) WithClock(now func() time.Time) *LRU {
	c.now = now
	return c
}

func (c *LRU) Name() string { return "memory" }

func (c *LRU) Load(ctx context.Context, k string) (track.Track, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		it := e.Value.(kv)
		if c.now().Before(it.exp) {
			c.lst.MoveToFront(e)
			return it.v, true, nil
		}
		c.lst.Remove(e)
		delete(c.dict, k)
	}
	return track.Track{}, false, nil
}

func (c *LRU) Store(ctx context.Context, k string, v track.Track, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := c.now().Add(ttl)
	if e, ok := c.dict[k]; ok {
		e.Value = kv{k: k, v: v, exp: exp}
		c.lst.MoveToFront(e)
		return nil
	}
	e := c.lst.PushFront(kv{k: k, v: v, exp: exp})
	c.dict[k] = e
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		if back == nil {
			break
		}
		it := back.Value.(kv)
		delete(c.dict, it.k)
		c.lst.Remove(back)
	}
	return nil
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}
