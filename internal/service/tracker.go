// 包 service：轨迹查询编排，串联校验、配额、缓存与合成
package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"imei-sim/internal/day"
	"imei-sim/internal/imei"
	"imei-sim/internal/logger"
	"imei-sim/internal/metrics"
	"imei-sim/internal/quota"
	"imei-sim/internal/seed"
	"imei-sim/internal/track"
)

// ErrMissingUser：调用方未提供用户标识，无法计量配额
var ErrMissingUser = errors.New("missing user id")

// QueryLog：已放行查询的审计记录；只接收脱敏标识
type QueryLog interface {
	RecordQuery(ctx context.Context, userID, redacted string, d day.Day) error
}

// Result：一次成功查询的输出
type Result struct {
	Track              track.Track
	RedactedIdentifier string
	QuotaRemaining     int
	QuotaResetAt       time.Time
}

type Options struct {
	// QueryLog 为空时不记录
	QueryLog QueryLog
	// LogTimeout 为查询日志写入上限，默认 1s
	LogTimeout time.Duration
	// Now 默认 time.Now；请求所属日由其 UTC 日期决定
	Now func() time.Time
}

// 文档注释：轨迹查询器
// 背景：校验 → 配额消费 → 缓存 → 合成（同键并发未命中合并为一次）→ 回填。
// 约束：无效输入不消费配额；配额拒绝与存储不可达均不触发合成。
type Tracker struct {
	deriver *seed.Deriver
	synth   *track.Synthesizer
	cache   *track.Cache
	ledger  *quota.Ledger
	qlog    QueryLog
	logTO   time.Duration
	now     func() time.Time
	group   singleflight.Group
}

// New：cache 可为 nil（禁用缓存）
func New(deriver *seed.Deriver, synth *track.Synthesizer, cache *track.Cache, ledger *quota.Ledger, opts Options) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LogTimeout <= 0 {
		opts.LogTimeout = time.Second
	}
	return &Tracker{
		deriver: deriver,
		synth:   synth,
		cache:   cache,
		ledger:  ledger,
		qlog:    opts.QueryLog,
		logTO:   opts.LogTimeout,
		now:     opts.Now,
	}
}

// Today：当前请求所属 UTC 日
func (t *Tracker) Today() day.Day { return day.Of(t.now()) }

// 文档注释：查询轨迹
// 返回：成功时 Result；失败为 imei.ErrInvalidIdentifier、*quota.ExceededError、quota.ErrUnavailable 或 ErrMissingUser。
func (t *Tracker) Lookup(ctx context.Context, raw, userID string) (*Result, error) {
	start := time.Now()
	defer func() { metrics.LookupDurationMs.Observe(float64(time.Since(start).Milliseconds())) }()

	id, err := imei.Validate(raw)
	if err != nil {
		metrics.LookupsTotal.WithLabelValues("invalid").Inc()
		logger.L().Info("lookup_invalid", "imei", raw, "user", userID)
		return nil, err
	}
	if userID == "" {
		metrics.LookupsTotal.WithLabelValues("no_user").Inc()
		return nil, ErrMissingUser
	}
	d := t.Today()
	dec, err := t.ledger.CheckAndConsume(ctx, userID, d)
	if err != nil {
		switch {
		case errors.Is(err, quota.ErrQuotaExceeded):
			metrics.LookupsTotal.WithLabelValues("exceeded").Inc()
		case errors.Is(err, quota.ErrUnavailable):
			metrics.LookupsTotal.WithLabelValues("unavailable").Inc()
		}
		return nil, err
	}

	tr := t.trackFor(ctx, id, d)
	redacted := imei.Redact(id)
	t.recordQuery(ctx, userID, redacted, d)
	metrics.LookupsTotal.WithLabelValues("ok").Inc()
	logger.L().Info("lookup_ok", "imei", redacted, "user", userID, "day", d.String(), "remaining", dec.Remaining, "snapped", tr.Snapped())
	return &Result{
		Track:              tr,
		RedactedIdentifier: redacted,
		QuotaRemaining:     dec.Remaining,
		QuotaResetAt:       dec.ResetAt,
	}, nil
}

// Quota：只读查询调用方当日剩余配额
func (t *Tracker) Quota(ctx context.Context, userID string) (quota.Decision, error) {
	if userID == "" {
		return quota.Decision{}, ErrMissingUser
	}
	return t.ledger.Status(ctx, userID, t.Today())
}

// Capacity：每日配额上限
func (t *Tracker) Capacity() int { return t.ledger.Capacity() }

func (t *Tracker) trackFor(ctx context.Context, id imei.Identifier, d day.Day) track.Track {
	if tr, ok := t.cache.Get(ctx, id, d); ok {
		metrics.CacheHitsTotal.WithLabelValues("track").Inc()
		return tr
	}
	metrics.CacheMissesTotal.WithLabelValues("track").Inc()
	key := t.deriver.Fingerprint(id, d)
	// 合并后的合成由所有等待者共享，不随首个调用方断开而取消；吸附超时仍约束总时长
	sctx := context.WithoutCancel(ctx)
	v, _, _ := t.group.Do(key, func() (any, error) {
		begin := time.Now()
		tr := t.synth.Generate(sctx, id, d, t.deriver.Derive(id, d))
		metrics.SynthDurationMs.Observe(float64(time.Since(begin).Milliseconds()))
		t.cache.Put(sctx, id, d, tr)
		return tr, nil
	})
	return v.(track.Track)
}

func (t *Tracker) recordQuery(ctx context.Context, userID, redacted string, d day.Day) {
	if t.qlog == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, t.logTO)
	defer cancel()
	if err := t.qlog.RecordQuery(cctx, userID, redacted, d); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("querylog", "insert").Inc()
		logger.L().Warn("query_log_error", "user", userID, "err", err)
	}
}
