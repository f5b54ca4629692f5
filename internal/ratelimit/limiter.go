package ratelimit

import (
	"context"
	"fmt"
	"time"

	"tempbox/backend/internal/config"
)

// Class 限流类别
type Class string

const (
	// ClassAPI 普通查询接口，按客户端IP限流
	ClassAPI Class = "api"
	// ClassInboxCreate 创建邮箱接口，单独的更严格额度
	ClassInboxCreate Class = "inbox_create"
)

// Limit 固定窗口限流参数
type Limit struct {
	Max    int
	Window time.Duration
}

// Decision 单次限流判定结果
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Counter 固定窗口计数后端。
// 返回当前窗口内的累计次数与窗口剩余时间。
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// Limiter 按类别做固定窗口限流。
// 计数后端可插拔：单实例用内存计数，多实例部署用 Redis。
type Limiter struct {
	counter Counter
	limits  map[Class]Limit
}

// New 构造限流器
func New(counter Counter, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		counter: counter,
		limits: map[Class]Limit{
			ClassAPI:         {Max: cfg.APIPerMinute, Window: time.Minute},
			ClassInboxCreate: {Max: cfg.InboxCreatePerHour, Window: time.Hour},
		},
	}
}

// Check 对指定主体与类别做一次限流判定并计数。
// 后端不可用时放行，限流器绝不成为单点。
func (l *Limiter) Check(ctx context.Context, key string, class Class) Decision {
	limit, ok := l.limits[class]
	if !ok || limit.Max <= 0 {
		return Decision{Allowed: true}
	}

	counterKey := fmt.Sprintf("ratelimit:%s:%s", class, key)
	count, ttl, err := l.counter.Incr(ctx, counterKey, limit.Window)
	if err != nil {
		return Decision{Allowed: true, Remaining: limit.Max}
	}

	if count > int64(limit.Max) {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: ttl}
	}
	return Decision{Allowed: true, Remaining: limit.Max - int(count)}
}
