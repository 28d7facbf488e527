// 包 utils：数据库与 Redis 连接工具，统一由配置构建
package utils

import (
	"github.com/redis/go-redis/v9"

	"imei-sim/internal/config"
	"imei-sim/internal/logger"
)

// OpenRedis：使用地址与密码打开 Redis 客户端
// 背景：保留直接传入参数的能力，用于测试与手工注入场景
func OpenRedis(addr, pass string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass})
}

// OpenRedisFromConfig：按配置打开 Redis 客户端；未启用时返回 nil
func OpenRedisFromConfig(c config.Redis) *redis.Client {
	if !c.Enabled {
		return nil
	}
	addr := c.Host + ":" + c.Port
	logger.L().Debug("redis_env", "addr", addr, "db", c.DB)
	return redis.NewClient(&redis.Options{Addr: addr, Password: c.Password, DB: c.DB})
}
