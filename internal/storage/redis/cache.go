package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tempbox/backend/internal/domain"
)

// InboxCache 按收件地址缓存邮箱元数据，加速SMTP收件路径的地址解析。
// 缓存未命中或不可用时调用方回退到存储查询。
type InboxCache struct {
	client *redis.Client
}

// NewInboxCache 构造地址缓存
func NewInboxCache(client *redis.Client) *InboxCache {
	return &InboxCache{client: client}
}

func cacheKey(address string) string {
	return fmt.Sprintf("inbox:addr:%s", address)
}

// Get 查询缓存，未命中返回 (nil, nil)
func (c *InboxCache) Get(ctx context.Context, address string) (*domain.Inbox, error) {
	data, err := c.client.Get(ctx, cacheKey(address)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var inbox domain.Inbox
	if err := json.Unmarshal(data, &inbox); err != nil {
		return nil, err
	}
	return &inbox, nil
}

// Set 写入缓存，过期时间与邮箱剩余生命周期对齐
func (c *InboxCache) Set(ctx context.Context, inbox *domain.Inbox) error {
	ttl := time.Until(inbox.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(inbox)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(inbox.Address), data, ttl).Err()
}

// Delete 删除缓存条目
func (c *InboxCache) Delete(ctx context.Context, address string) error {
	return c.client.Del(ctx, cacheKey(address)).Err()
}
