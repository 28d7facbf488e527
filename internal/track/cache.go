package track

import (
	"context"
	"time"

	"imei-sim/internal/day"
	"imei-sim/internal/imei"
	"imei-sim/internal/logger"
	"imei-sim/internal/metrics"
)

// DefaultTTL 为缓存条目从写入起算的存活时间
const DefaultTTL = time.Hour

// 文档注释：缓存后端
// 约束：Load 未命中返回 (zero, false, nil)；错误只影响延迟，由 Cache 吞掉。
type Backend interface {
	Name() string
	Load(ctx context.Context, key string) (Track, bool, error)
	Store(ctx context.Context, key string, t Track, ttl time.Duration) error
}

// Keyer：将 (标识, 日) 映射为不含原始标识的缓存键
type Keyer interface {
	Fingerprint(id imei.Identifier, d day.Day) string
}

// 文档注释：旁路缓存
// 背景：消费者先查缓存，未命中再合成并回填；合成是确定性的，缓存不可用不改变结果。
// 约束：backend 为空即禁用缓存；不加锁，同一键的值若存在必然唯一正确。
type Cache struct {
	backend Backend
	keyer   Keyer
	ttl     time.Duration
}

func NewCache(backend Backend, keyer Keyer, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{backend: backend, keyer: keyer, ttl: ttl}
}

// Key：缓存键
func (c *Cache) Key(id imei.Identifier, d day.Day) string {
	return "track:" + d.String() + ":" + c.keyer.Fingerprint(id, d)
}

func (c *Cache) Get(ctx context.Context, id imei.Identifier, d day.Day) (Track, bool) {
	if c == nil || c.backend == nil {
		return Track{}, false
	}
	t, ok, err := c.backend.Load(ctx, c.Key(id, d))
	if err != nil {
		metrics.CacheErrorsTotal.WithLabelValues(c.backend.Name(), "load").Inc()
		logger.L().Debug("track_cache_load_error", "backend", c.backend.Name(), "err", err)
		return Track{}, false
	}
	return t, ok
}

func (c *Cache) Put(ctx context.Context, id imei.Identifier, d day.Day, t Track) {
	if c == nil || c.backend == nil {
		return
	}
	if err := c.backend.Store(ctx, c.Key(id, d), t, c.ttl); err != nil {
		metrics.CacheErrorsTotal.WithLabelValues(c.backend.Name(), "store").Inc()
		logger.L().Debug("track_cache_store_error", "backend", c.backend.Name(), "err", err)
	}
}

// 文档注释：多级缓存
// 背景：按顺序查找（如进程内 LRU → Redis）；下级命中后回填上级，写入时逐级写入。
// 约束：任一层出错不阻断其余层；全部出错时返回最后一个错误。
type Chain struct {
	layers []Backend
	ttl    time.Duration
}

// NewChain：ttl 为下级命中后回填上级使用的存活时间，应与 NewCache 的 ttl 一致；<=0 时取 DefaultTTL
func NewChain(ttl time.Duration, layers ...Backend) *Chain {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	var ls []Backend
	for _, l := range layers {
		if l != nil {
			ls = append(ls, l)
		}
	}
	return &Chain{layers: ls, ttl: ttl}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Load(ctx context.Context, key string) (Track, bool, error) {
	var lastErr error
	for i, l := range c.layers {
		t, ok, err := l.Load(ctx, key)
		if err != nil {
			metrics.CacheErrorsTotal.WithLabelValues(l.Name(), "load").Inc()
			lastErr = err
			continue
		}
		if !ok {
			metrics.CacheMissesTotal.WithLabelValues(l.Name()).Inc()
			continue
		}
		metrics.CacheHitsTotal.WithLabelValues(l.Name()).Inc()
		for j := 0; j < i; j++ {
			if err := c.layers[j].Store(ctx, key, t, c.ttl); err != nil {
				metrics.CacheErrorsTotal.WithLabelValues(c.layers[j].Name(), "backfill").Inc()
				logger.L().Debug("track_cache_backfill_error", "backend", c.layers[j].Name(), "err", err)
			}
		}
		return t, true, nil
	}
	if lastErr != nil && len(c.layers) > 0 {
		return Track{}, false, lastErr
	}
	return Track{}, false, nil
}

func (c *Chain) Store(ctx context.Context, key string, t Track, ttl time.Duration) error {
	var lastErr error
	for _, l := range c.layers {
		if err := l.Store(ctx, key, t, ttl); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
