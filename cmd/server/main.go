package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/propsearch/poolcore/internal/autoscaler"
	"github.com/propsearch/poolcore/internal/cache"
	"github.com/propsearch/poolcore/internal/config"
	"github.com/propsearch/poolcore/internal/embedding"
	"github.com/propsearch/poolcore/internal/health"
	"github.com/propsearch/poolcore/internal/httpapi"
	"github.com/propsearch/poolcore/internal/logging"
	"github.com/propsearch/poolcore/internal/metrics"
	"github.com/propsearch/poolcore/internal/notify"
	"github.com/propsearch/poolcore/internal/orchestrator"
	"github.com/propsearch/poolcore/internal/poolctl"
	"github.com/propsearch/poolcore/internal/telemetry"
	"github.com/propsearch/poolcore/internal/textsearch"
	"github.com/propsearch/poolcore/internal/vectorsearch"
)

// autoscalerPool adapts *poolctl.Pool to the autoscaler.Pool interface: the
// two PoolStatus types are structurally identical but named independently
// so the autoscaler package never has to import poolctl.
type autoscalerPool struct {
	pool *poolctl.Pool
}

func (a autoscalerPool) Resize(newMax int) int { return a.pool.Resize(newMax) }

func (a autoscalerPool) PoolStatus() autoscaler.PoolStatus {
	s := a.pool.PoolStatus()
	return autoscaler.PoolStatus{Total: s.Total, Idle: s.Idle, Waiting: s.Waiting, CurrentMax: s.CurrentMax}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     cfg.ServiceVersion,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		log.Fatalf("failed to initialize sentry: %v", err)
	}
	defer telemetry.FlushSentry(2 * time.Second)

	logger := logging.New(&logging.Config{
		Level:       logging.LevelInfo,
		Service:     cfg.ServiceName,
		Environment: cfg.Environment,
		Output:      os.Stdout,
		PrettyLog:   cfg.Environment == "development",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	store := config.NewStore(&cfg.Pool)
	agg := metrics.New()
	reg := metrics.NewRegistry("poolcore", cfg.ServiceName)
	evaluator := health.New()

	pool, err := poolctl.Open(store, agg, logger)
	if err != nil {
		log.Fatalf("failed to open pool: %v", err)
	}

	var listeners []notify.Listener
	var wsFeed *notify.WSBroadcaster
	if cfg.WSFeedEnabled {
		wsFeed = notify.NewWSBroadcaster()
		listeners = append(listeners, wsFeed)
	}
	if cfg.NotifyEnabled && cfg.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(notify.AMQPConfig{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange}, logger)
		if err != nil {
			logger.WithError(err).Error("failed to connect amqp publisher, continuing without it")
		} else {
			defer publisher.Close()
			listeners = append(listeners, publisher)
		}
	}

	scaler := autoscaler.New(autoscalerPool{pool: pool}, agg, store, notify.Multi{Listeners: listeners}, logger, 5*time.Second)
	go scaler.Run(ctx)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
	}

	embedClient := embedding.New(embedding.Config{
		Endpoints: cfg.EmbeddingEndpoints,
		Retries:   3,
		RateLimit: rate.Limit(50),
		RateBurst: 10,
	}, rdb, logger)

	textClient := textsearch.New(textsearch.Config{BaseURL: cfg.TextSearchBaseURL}, logger)
	vectorExecutor := vectorsearch.New()
	resultCache := cache.New(cfg.Cache.TTL, cfg.Cache.Capacity)
	defer resultCache.Stop()

	// The Search Orchestrator has no HTTP front door of its own (request
	// framing for search is a caller concern, out of scope here); it is
	// constructed so the process that embeds this core as a library has a
	// ready orchestrator.Search entry point the moment the pool is open.
	orch := orchestrator.New(pool, agg, evaluator, resultCache, store, embedClient, textClient, vectorExecutor, logger)
	_ = orch

	server := httpapi.New(pool, scaler, evaluator, agg, store, reg, wsFeed, logger)

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Handler(),
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("poolcore: http server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("http server failed")
		}
	}()

	<-sigChan
	logger.Info("poolcore: shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http server shutdown error")
	}
	if err := pool.Shutdown(shutdownCtx, 10*time.Second); err != nil {
		logger.WithError(err).Error("pool shutdown error")
	}

	logger.Info("poolcore: stopped")
}
