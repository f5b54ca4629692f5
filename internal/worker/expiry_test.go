package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/crypto"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/pool"
	"tempbox/backend/internal/service"
	"tempbox/backend/internal/storage/memory"
	"tempbox/backend/internal/ttl"
)

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Interval:    time.Minute,
		BatchSize:   100,
		Concurrency: 4,
	}
}

func newTestWorker(t *testing.T) (*ExpiryWorker, *service.InboxService) {
	t.Helper()
	store := memory.NewStore()
	index := ttl.NewIndex()
	inboxes := service.NewInboxService(
		config.InboxConfig{
			Domain:        "tempbox.local",
			AddressPrefix: "tmp_",
			AddressLength: 24,
			DefaultTTL:    time.Hour,
			MaxTTL:        24 * time.Hour,
			MaxMessages:   50,
		},
		store,
		crypto.NewTokenManager("test-secret-key-at-least-32-characters!!", "tempbox"),
		index, nil, zap.NewNop(),
	)
	p := pool.New(4, 16, zap.NewNop())
	t.Cleanup(p.Stop)
	w := NewExpiryWorker(testWorkerConfig(), store, index, inboxes, p, zap.NewNop())
	return w, inboxes
}

func TestCycleDeletesExpired(t *testing.T) {
	w, inboxes := newTestWorker(t)
	ctx := context.Background()

	expired, err := inboxes.Create(ctx, time.Millisecond)
	require.NoError(t, err)
	live, err := inboxes.Create(ctx, time.Hour)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	w.RunCycle(ctx)

	_, err = inboxes.Get(ctx, expired.Inbox.ID)
	assert.ErrorIs(t, err, domain.ErrInboxNotFound)
	_, err = inboxes.Get(ctx, live.Inbox.ID)
	assert.NoError(t, err)
}

func TestCycleSkipsManuallyDeleted(t *testing.T) {
	w, inboxes := newTestWorker(t)
	ctx := context.Background()

	res, err := inboxes.Create(ctx, time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, inboxes.Delete(ctx, res.Inbox.ID))

	time.Sleep(5 * time.Millisecond)
	// 索引里仍有条目，但存储已删除，不应报错
	w.RunCycle(ctx)
	assert.Equal(t, 0, w.index.Len())
}

func TestCycleRespectsBatchSize(t *testing.T) {
	w, inboxes := newTestWorker(t)
	w.cfg.BatchSize = 2
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := inboxes.Create(ctx, time.Millisecond)
		require.NoError(t, err)
	}
	time.Sleep(5 * time.Millisecond)

	w.RunCycle(ctx)
	assert.Equal(t, 3, w.index.Len())
	w.RunCycle(ctx)
	assert.Equal(t, 1, w.index.Len())
}

func TestSeedRebuildsIndex(t *testing.T) {
	w, inboxes := newTestWorker(t)
	ctx := context.Background()

	res, err := inboxes.Create(ctx, time.Millisecond)
	require.NoError(t, err)

	// 模拟重启：索引清空后从存储重建
	fresh := ttl.NewIndex()
	w.index = fresh
	require.NoError(t, w.Seed(ctx))
	assert.Equal(t, 1, fresh.Len())

	time.Sleep(5 * time.Millisecond)
	w.RunCycle(ctx)
	_, err = inboxes.Get(ctx, res.Inbox.ID)
	assert.ErrorIs(t, err, domain.ErrInboxNotFound)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
