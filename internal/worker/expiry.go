package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/pool"
	"tempbox/backend/internal/service"
	"tempbox/backend/internal/storage"
	"tempbox/backend/internal/ttl"
)

// ExpiryWorker 周期清理过期邮箱。
// 过期索引只是提示，删除前逐个与存储核对真实状态；
// 删除失败的条目重新登记，下个周期重试。
type ExpiryWorker struct {
	cfg     config.WorkerConfig
	store   storage.Store
	index   *ttl.Index
	inboxes *service.InboxService
	pool    *pool.Pool
	logger  *zap.Logger

	// 保证清理周期不重叠
	cycleMu sync.Mutex
}

// NewExpiryWorker 构造清理任务
func NewExpiryWorker(cfg config.WorkerConfig, store storage.Store, index *ttl.Index,
	inboxes *service.InboxService, p *pool.Pool, logger *zap.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		cfg:     cfg,
		store:   store,
		index:   index,
		inboxes: inboxes,
		pool:    p,
		logger:  logger,
	}
}

// Seed 从存储重建过期索引，进程重启后调用一次
func (w *ExpiryWorker) Seed(ctx context.Context) error {
	expiries, err := w.store.Inbox().ListExpiries(ctx)
	if err != nil {
		return err
	}
	for _, e := range expiries {
		w.index.Register(e.InboxID, e.ExpiresAt)
	}
	w.logger.Info("expiry index seeded", zap.Int("entries", len(expiries)))
	return nil
}

// Run 按固定间隔执行清理，直到 ctx 取消
func (w *ExpiryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.RunCycle(ctx)
		}
	}
}

// RunCycle 执行一个清理周期。上一周期未结束时直接跳过。
func (w *ExpiryWorker) RunCycle(ctx context.Context) {
	if !w.cycleMu.TryLock() {
		w.logger.Warn("cleanup cycle still running, skipping")
		return
	}
	defer w.cycleMu.Unlock()

	now := time.Now()
	batch := w.index.PopExpired(now, w.cfg.BatchSize)
	if len(batch) == 0 {
		return
	}

	var deleted, failed, stale int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, entry := range batch {
		entry := entry
		wg.Add(1)
		submitted := w.pool.Submit(func(context.Context) {
			defer wg.Done()
			switch w.deleteExpired(ctx, entry, now) {
			case resultDeleted:
				mu.Lock()
				deleted++
				mu.Unlock()
			case resultStale:
				mu.Lock()
				stale++
				mu.Unlock()
			case resultFailed:
				mu.Lock()
				failed++
				mu.Unlock()
				w.index.Register(entry.InboxID, entry.ExpiresAt)
			}
		})
		if !submitted {
			wg.Done()
			w.index.Register(entry.InboxID, entry.ExpiresAt)
		}
	}
	wg.Wait()

	w.logger.Info("cleanup cycle finished",
		zap.Int("batch", len(batch)),
		zap.Int("deleted", deleted),
		zap.Int("stale", stale),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(now)))
}

type deleteResult int

const (
	resultDeleted deleteResult = iota
	resultStale
	resultFailed
)

// deleteExpired 核对并删除单个邮箱
func (w *ExpiryWorker) deleteExpired(ctx context.Context, entry ttl.Entry, now time.Time) deleteResult {
	inbox, err := w.store.Inbox().GetByID(ctx, entry.InboxID)
	if errors.Is(err, domain.ErrInboxNotFound) {
		// 已被显式删除
		return resultStale
	}
	if err != nil {
		w.logger.Error("cleanup lookup failed",
			zap.String("inbox_id", entry.InboxID), zap.Error(err))
		return resultFailed
	}
	if !inbox.Expired(now) {
		// 索引条目过时，按真实过期时间重新登记
		w.index.Register(inbox.ID, inbox.ExpiresAt)
		return resultStale
	}

	if err := w.inboxes.Delete(ctx, entry.InboxID); err != nil {
		if errors.Is(err, domain.ErrInboxNotFound) {
			return resultStale
		}
		w.logger.Error("cleanup delete failed",
			zap.String("inbox_id", entry.InboxID), zap.Error(err))
		return resultFailed
	}
	monitoring.InboxesExpired.Inc()
	return resultDeleted
}
