package middleware

import (
	"net/http"
	"sync"
	"time"

	"imei-sim/internal/config"
	"imei-sim/internal/logger"
)

// 文档注释：令牌桶限流中间件（每秒）
// 背景：保护整个 HTTP 入口，避免峰值流量压垮配额存储与路网服务；与按用户配额相互独立。
// 约束：简化实现，不做队列排队，仅丢弃并返回 429。
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	now      func() time.Time
	mu       sync.Mutex
}

func NewTokenBucket(qps int, now func() time.Time) *TokenBucket {
	if qps <= 0 {
		qps = 100
	}
	if now == nil {
		now = time.Now
	}
	return &TokenBucket{capacity: qps, tokens: qps, lastSec: now().Unix(), now: now}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := tb.now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wrap：按配置启用入口限流；未启用时原样返回 next
func Wrap(next http.Handler, c config.RateLimit) http.Handler {
	if !c.Enabled {
		return next
	}
	return Limit(next, NewTokenBucket(c.QPS, nil))
}

func Limit(next http.Handler, tb *TokenBucket) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tb.Allow() {
			logger.L().Debug("ratelimit_drop", "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
