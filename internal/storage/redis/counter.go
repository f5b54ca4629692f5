package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter 基于 Redis 的固定窗口计数器，多实例部署时共享限流额度。
type Counter struct {
	client *redis.Client
}

// NewCounter 构造 Redis 计数器
func NewCounter(client *redis.Client) *Counter {
	return &Counter{client: client}
}

// Incr 原子累加计数，首次写入时设置窗口过期时间
func (c *Counter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return incr.Val(), ttl.Val(), nil
}
