package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPoolRunsTasks(t *testing.T) {
	p := New(2, 4, zap.NewNop())

	var done int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		ok := p.Submit(func(context.Context) {
			atomic.AddInt64(&done, 1)
			wg.Done()
		})
		assert.True(t, ok)
	}
	wg.Wait()
	p.Stop()

	assert.Equal(t, int64(10), atomic.LoadInt64(&done))
}

func TestPoolSubmitAfterStop(t *testing.T) {
	p := New(1, 1, zap.NewNop())
	p.Stop()

	ok := p.Submit(func(context.Context) {})
	assert.False(t, ok)

	// Stop 可重入
	p.Stop()
}

func TestPoolRecoversFromPanic(t *testing.T) {
	p := New(1, 1, zap.NewNop())

	var done sync.WaitGroup
	done.Add(1)
	assert.True(t, p.Submit(func(context.Context) {
		defer done.Done()
		panic("boom")
	}))
	done.Wait()

	// 池在任务panic后仍可用
	done.Add(1)
	assert.True(t, p.Submit(func(context.Context) { done.Done() }))
	done.Wait()
	p.Stop()
}

func TestPoolConcurrentSubmitAndStop(t *testing.T) {
	p := New(4, 8, zap.NewNop())

	var accepted, executed int64
	var submitters sync.WaitGroup
	for i := 0; i < 32; i++ {
		submitters.Add(1)
		go func() {
			defer submitters.Done()
			for j := 0; j < 100; j++ {
				if p.Submit(func(context.Context) { atomic.AddInt64(&executed, 1) }) {
					atomic.AddInt64(&accepted, 1)
				}
			}
		}()
	}

	// 与提交并发关闭：不得panic，接收的任务全部执行
	p.Stop()
	submitters.Wait()
	p.Stop()

	assert.Equal(t, atomic.LoadInt64(&accepted), atomic.LoadInt64(&executed))
}
