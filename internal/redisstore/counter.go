// 包 redisstore：基于 Redis 的配额镜像与轨迹二级缓存
package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"imei-sim/internal/quota"
)

// 有界递增：当前值 +1 不超过上限才 INCR，并刷新 PX；返回 {ok, count}
var incrBoundedScript = redis.NewScript(`
local v = tonumber(redis.call('GET', KEYS[1]) or '0')
local lim = tonumber(ARGV[1])
if v + 1 > lim then
  return {0, v}
end
v = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return {1, v}
`)

// 提升到最大值：仅当新值更大时覆盖，回填镜像时不会把计数调低
var raiseScript = redis.NewScript(`
local v = tonumber(redis.call('GET', KEYS[1]) or '-1')
local n = tonumber(ARGV[1])
if n > v then
  redis.call('SET', KEYS[1], n, 'PX', ARGV[2])
  return n
end
return v
`)

// 文档注释：Redis 有界计数器
// 背景：作为配额快存储；键与权威存储同为 quota:user:{id}:{day}，TTL 为距次日零点的剩余时长，到期自然失效。
// 约束：两个操作均为单次 EVALSHA，原子执行；rc 为 nil 时所有调用返回错误，由账本降级。
type Counter struct {
	rc     *redis.Client
	prefix string
}

func NewCounter(rc *redis.Client) *Counter {
	return &Counter{rc: rc, prefix: "imeisim:"}
}

var errNoClient = errors.New("redis disabled")

func (c *Counter) key(k quota.Key) string { return c.prefix + k.String() }

func ttlMillis(ttl time.Duration) int64 {
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}

func (c *Counter) IncrBounded(ctx context.Context, k quota.Key, limit int, ttl time.Duration) (int, bool, error) {
	if c.rc == nil {
		return 0, false, errNoClient
	}
	res, err := incrBoundedScript.Run(ctx, c.rc, []string{c.key(k)}, limit, ttlMillis(ttl)).Int64Slice()
	if err != nil {
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, errors.New("redis: unexpected script result")
	}
	return int(res[1]), res[0] == 1, nil
}

func (c *Counter) Peek(ctx context.Context, k quota.Key) (int, bool, error) {
	if c.rc == nil {
		return 0, false, errNoClient
	}
	s, err := c.rc.Get(ctx, c.key(k)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (c *Counter) Raise(ctx context.Context, k quota.Key, n int, ttl time.Duration) error {
	if c.rc == nil {
		return errNoClient
	}
	return raiseScript.Run(ctx, c.rc, []string{c.key(k)}, n, ttlMillis(ttl)).Err()
}
