package quota

import (
	"context"
	"fmt"
	"time"

	"imei-sim/internal/day"
	"imei-sim/internal/logger"
	"imei-sim/internal/metrics"
)

// 文档注释：配额账本
// 背景：权威存储（durable）保存真实计数并执行原子条件递增；快存储（mirror）缓存当前计数，
// TTL 为距次日 00:00 UTC 的剩余时长，仅用于廉价拒绝明显超额的请求，缺失时由权威结果惰性回填。
// 约束：同一用户的并发请求不加锁，串行化完全依赖权威存储的条件递增；
// 权威存储出错时失败关闭（ErrUnavailable）；快存储出错只丢失短路优化。
type Ledger struct {
	durable  Counter
	mirror   Counter
	capacity int
	timeout  time.Duration
	now      func() time.Time
}

// Options：账本配置
type Options struct {
	// Capacity 默认 DefaultCapacity
	Capacity int
	// StoreTimeout 为单次存储调用的上限，默认 2s
	StoreTimeout time.Duration
	// Now 默认 time.Now，测试中可固定
	Now func() time.Time
}

// NewLedger：mirror 可为 nil（禁用快存储）
func NewLedger(durable, mirror Counter, opts Options) *Ledger {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{durable: durable, mirror: mirror, capacity: opts.Capacity, timeout: opts.StoreTimeout, now: opts.Now}
}

func (l *Ledger) Capacity() int { return l.capacity }

func (l *Ledger) ttl(d day.Day) time.Duration {
	t := d.UntilReset(l.now())
	if t < time.Second {
		// 日界附近或过去的日：至少保留 1s，避免写入即过期的 0 TTL
		t = time.Second
	}
	return t
}

// 文档注释：检查并消费一次配额
// 返回：放行时 Decision{Allowed:true}；超额时 *ExceededError；权威存储不可达时包装 ErrUnavailable。
func (l *Ledger) CheckAndConsume(ctx context.Context, userID string, d day.Day) (Decision, error) {
	key := Key{UserID: userID, Day: d}
	resetAt := d.ResetAt()
	ttl := l.ttl(d)

	if n, found := l.peekMirror(ctx, key); found && n >= l.capacity {
		metrics.QuotaDecisionsTotal.WithLabelValues("exceeded", "mirror").Inc()
		logger.L().Debug("quota_mirror_reject", "user", userID, "day", d.String(), "count", n)
		return Decision{Consumed: n, ResetAt: resetAt}, &ExceededError{ResetAt: resetAt}
	}

	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	n, ok, err := l.durable.IncrBounded(cctx, key, l.capacity, ttl)
	cancel()
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("durable", "incr").Inc()
		metrics.QuotaDecisionsTotal.WithLabelValues("unavailable", "durable").Inc()
		logger.L().Error("quota_durable_error", "user", userID, "day", d.String(), "err", err)
		return Decision{ResetAt: resetAt}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	l.raiseMirror(ctx, key, n, ttl)
	if !ok {
		metrics.QuotaDecisionsTotal.WithLabelValues("exceeded", "durable").Inc()
		logger.L().Debug("quota_durable_reject", "user", userID, "day", d.String(), "count", n)
		return Decision{Consumed: n, ResetAt: resetAt}, &ExceededError{ResetAt: resetAt}
	}
	metrics.QuotaDecisionsTotal.WithLabelValues("allowed", "durable").Inc()
	logger.L().Debug("quota_consume_ok", "user", userID, "day", d.String(), "count", n)
	return Decision{Allowed: true, Consumed: n, Remaining: remaining(l.capacity, n), ResetAt: resetAt}, nil
}

// 文档注释：只读查询剩余配额
// 背景：镜像优先，缺失时读取权威存储并回填镜像；不消费配额。
func (l *Ledger) Status(ctx context.Context, userID string, d day.Day) (Decision, error) {
	key := Key{UserID: userID, Day: d}
	resetAt := d.ResetAt()
	n, found := l.peekMirror(ctx, key)
	if !found {
		cctx, cancel := context.WithTimeout(ctx, l.timeout)
		var err error
		n, found, err = l.durable.Peek(cctx, key)
		cancel()
		if err != nil {
			metrics.StoreErrorsTotal.WithLabelValues("durable", "peek").Inc()
			return Decision{ResetAt: resetAt}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		if found {
			l.raiseMirror(ctx, key, n, l.ttl(d))
		}
	}
	rem := remaining(l.capacity, n)
	return Decision{Allowed: rem > 0, Consumed: n, Remaining: rem, ResetAt: resetAt}, nil
}

func (l *Ledger) peekMirror(ctx context.Context, key Key) (int, bool) {
	if l.mirror == nil {
		return 0, false
	}
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	n, found, err := l.mirror.Peek(cctx, key)
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("mirror", "peek").Inc()
		logger.L().Warn("quota_mirror_unavailable", "op", "peek", "err", err)
		return 0, false
	}
	return n, found
}

func (l *Ledger) raiseMirror(ctx context.Context, key Key, n int, ttl time.Duration) {
	if l.mirror == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.mirror.Raise(cctx, key, n, ttl); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("mirror", "raise").Inc()
		logger.L().Warn("quota_mirror_unavailable", "op", "raise", "err", err)
	}
}

func remaining(capacity, n int) int {
	if n >= capacity {
		return 0
	}
	return capacity - n
}
