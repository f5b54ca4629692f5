package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Task 池中执行的任务
type Task func(ctx context.Context)

// Pool 固定大小的工作协程池，用于限制清理等后台操作的并发度。
type Pool struct {
	tasks  chan Task
	wg     sync.WaitGroup
	logger *zap.Logger

	stopOnce sync.Once
	mu       sync.RWMutex
	closed   bool
}

// New 构造并启动协程池
func New(workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		tasks:  make(chan Task, queueSize),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker task panic", zap.Any("panic", r))
		}
	}()
	task(context.Background())
}

// Submit 提交任务，池已停止时返回 false。
// 发送发生在读锁内，Stop 关闭通道前必须等所有在途 Submit 完成，
// 不会向已关闭的通道发送。
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.tasks <- task
	return true
}

// Stop 停止接收新任务并等待在途任务完成
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.tasks)
	})
	p.wg.Wait()
}
