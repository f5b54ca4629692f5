package smtp

import (
	"sync"

	"golang.org/x/time/rate"
)

// ConnectionLimiter 限制SMTP并发连接数与新建连接速率，
// 保护后端不被连接洪水拖垮。
type ConnectionLimiter struct {
	mu      sync.Mutex
	active  int
	max     int
	limiter *rate.Limiter
}

// NewConnectionLimiter 构造连接限制器。
// maxConcurrent <= 0 表示不限并发，ratePerSec <= 0 表示不限速率。
func NewConnectionLimiter(maxConcurrent, ratePerSec int) *ConnectionLimiter {
	l := &ConnectionLimiter{max: maxConcurrent}
	if ratePerSec > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return l
}

// Acquire 尝试占用一个连接名额，拒绝时返回 false
func (l *ConnectionLimiter) Acquire() bool {
	if l.limiter != nil && !l.limiter.Allow() {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.max > 0 && l.active >= l.max {
		return false
	}
	l.active++
	return true
}

// Release 释放一个连接名额
func (l *ConnectionLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active > 0 {
		l.active--
	}
}

// Active 当前活跃连接数
func (l *ConnectionLimiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}
