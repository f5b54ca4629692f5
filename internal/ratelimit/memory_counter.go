package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowEntry struct {
	count   int64
	resetAt time.Time
}

// MemoryCounter 进程内固定窗口计数器，适用于单实例部署。
// 窗口过期的条目在下次访问时重置，并由惰性清扫回收。
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	lastGC  time.Time
}

// NewMemoryCounter 构造内存计数器
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		entries: make(map[string]*windowEntry),
		lastGC:  time.Now(),
	}
}

// Incr 累加并返回当前窗口计数与剩余时间
func (c *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeGC(now)

	e, ok := c.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &windowEntry{resetAt: now.Add(window)}
		c.entries[key] = e
	}
	e.count++
	return e.count, e.resetAt.Sub(now), nil
}

// maybeGC 每分钟最多清扫一次过期条目，调用方必须持锁
func (c *MemoryCounter) maybeGC(now time.Time) {
	if now.Sub(c.lastGC) < time.Minute {
		return
	}
	for key, e := range c.entries {
		if now.After(e.resetAt) {
			delete(c.entries, key)
		}
	}
	c.lastGC = now
}
