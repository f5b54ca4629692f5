package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/crypto"
	"tempbox/backend/internal/health"
	"tempbox/backend/internal/logger"
	"tempbox/backend/internal/pool"
	"tempbox/backend/internal/ratelimit"
	"tempbox/backend/internal/sanitize"
	"tempbox/backend/internal/service"
	smtpserver "tempbox/backend/internal/smtp"
	"tempbox/backend/internal/storage"
	"tempbox/backend/internal/storage/memory"
	redisstore "tempbox/backend/internal/storage/redis"
	sqlstore "tempbox/backend/internal/storage/sql"
	transport "tempbox/backend/internal/transport/http"
	"tempbox/backend/internal/ttl"
	"tempbox/backend/internal/websocket"
	"tempbox/backend/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 存储
	var store storage.Store
	switch cfg.Database.Driver {
	case "memory":
		store = memory.NewStore()
		log.Warn("using in-memory store, data is lost on restart")
	default:
		db, err := sqlstore.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		store = sqlstore.NewStore(db)
	}
	defer store.Close()

	// Redis（可选）
	var cache *redisstore.InboxCache
	var counter ratelimit.Counter = ratelimit.NewMemoryCounter()
	if cfg.Redis.Address != "" {
		client, err := redisstore.NewClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		cache = redisstore.NewInboxCache(client)
		counter = redisstore.NewCounter(client)
		log.Info("redis enabled", zap.String("address", cfg.Redis.Address))
	}

	codec, err := crypto.NewCodec(cfg.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("init codec: %w", err)
	}
	tokens := crypto.NewTokenManager(cfg.Security.TokenSecret, cfg.Security.TokenIssuer)
	index := ttl.NewIndex()
	limiter := ratelimit.New(counter, cfg.RateLimit)
	hub := websocket.NewHub(log)

	inboxes := service.NewInboxService(cfg.Inbox, store, tokens, index, cache, log)
	messages := service.NewMessageService(cfg.Inbox, store, codec, sanitize.New(), inboxes, hub, log)

	// 清理任务
	taskPool := pool.New(cfg.Worker.Concurrency, cfg.Worker.BatchSize, log)
	defer taskPool.Stop()
	expiry := worker.NewExpiryWorker(cfg.Worker, store, index, inboxes, taskPool, log)
	if err := expiry.Seed(ctx); err != nil {
		return fmt.Errorf("seed expiry index: %w", err)
	}

	// SMTP
	backend := smtpserver.NewBackend(cfg.SMTP, cfg.Inbox.MaxMessageBytes, messages, log)
	smtpSrv := smtpserver.NewServer(cfg.SMTP, cfg.Inbox.MaxMessageBytes, backend)

	// HTTP
	handler := transport.NewHandler(cfg.Inbox, inboxes, messages, hub, log)
	router := transport.NewRouter(cfg, handler, inboxes, limiter, health.NewHandler(store), log)
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info("smtp server listening", zap.String("addr", cfg.SMTP.BindAddr))
		if err := smtpSrv.ListenAndServe(); err != nil {
			select {
			case <-gctx.Done():
				return nil
			default:
				return fmt.Errorf("smtp server: %w", err)
			}
		}
		return nil
	})

	g.Go(func() error {
		return expiry.Run(gctx)
	})

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", zap.Error(err))
		}
		if err := smtpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("smtp shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
