package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"classwatch/internal/config"
	"classwatch/internal/events"
	"classwatch/internal/logging"
	"classwatch/internal/metrics"
	"classwatch/internal/queue"
	"classwatch/internal/store"
	"classwatch/internal/voice"
)

// Worker consumes the shared event queue and plays voice alerts on the
// machine it runs on.
func main() {
	configPath := flag.String("config", "", "path to config file")
	metricsPort := flag.Int("metrics-port", 0, "serve /metrics on this port when non-zero")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Queue.Backend != "redis" {
		logger.Fatal("worker needs queue.backend=redis; the memory queue is consumed by the api process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := store.NewRedis(ctx, cfg.Queue.RedisAddr)
	if err != nil {
		logger.Fatal("redis connect failed", zap.String("addr", cfg.Queue.RedisAddr), zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()
	q := queue.NewRedisQueue(rdb.Client, cfg.Queue.Key, logger)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, nil)
	if *metricsPort > 0 {
		srv := &http.Server{
			Addr:              ":" + strconv.Itoa(*metricsPort),
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var speaker voice.Speaker
	if cfg.Voice.Command != "" {
		if s, err := voice.NewCommandSpeaker(cfg.Voice.Command); err != nil {
			logger.Warn("speech unavailable, using beeps", zap.String("command", cfg.Voice.Command), zap.Error(err))
		} else {
			speaker = s
		}
	}
	announcer := voice.NewAnnouncer(speaker, os.Stdout, logger)

	logger.Info("worker started, waiting for events", zap.String("key", cfg.Queue.Key))
	err = events.NewNotifier(announcer, m, logger).Run(ctx, q)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("notifier stopped", zap.Error(err))
	}
	logger.Info("worker stopped")
}
