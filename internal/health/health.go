package health

import (
	"context"
	"time"

	"github.com/heptiolabs/healthcheck"

	"tempbox/backend/internal/storage"
)

// NewHandler 构造存活/就绪探针。
// 存活探针检查协程数是否失控，就绪探针检查存储连通性。
func NewHandler(store storage.Store) healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(1000))
	h.AddReadinessCheck("store", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return store.Health(ctx)
	})
	return h
}
