package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"classwatch/internal/alerts"
	"classwatch/internal/api"
	"classwatch/internal/auth"
	"classwatch/internal/camera"
	"classwatch/internal/cloudinary"
	"classwatch/internal/config"
	"classwatch/internal/detection"
	"classwatch/internal/events"
	"classwatch/internal/faceclient"
	"classwatch/internal/logging"
	"classwatch/internal/metrics"
	"classwatch/internal/queue"
	"classwatch/internal/registry"
	"classwatch/internal/session"
	"classwatch/internal/store"
	"classwatch/internal/voice"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
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

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	book := session.NewBook(loc)
	book.Seed()

	health := map[string]api.HealthCheck{}

	var alertStore alerts.Store = alerts.NewMemoryStore()
	if cfg.Store.Backend == "postgres" {
		db, err := store.NewDB(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer func() { _ = db.Close() }()
		pg := alerts.NewPostgresStore(db.Client)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("alerts schema: %w", err)
		}
		alertStore = pg
		health["postgres"] = db.Healthy
		logger.Info("alert store: postgres")
	}

	var q queue.Queue
	if cfg.Queue.Backend == "redis" {
		rdb, err := store.NewRedis(ctx, cfg.Queue.RedisAddr)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		q = queue.NewRedisQueue(rdb.Client, cfg.Queue.Key, logger)
		health["redis"] = rdb.Healthy
		logger.Info("event queue: redis", zap.String("key", cfg.Queue.Key))
	} else {
		q = queue.NewInMemory(64)
	}

	hub := events.NewHub(logger, originChecker(cfg.Server.AllowOrigins))
	go hub.Run(ctx)
	bus := events.NewBus(hub, q, logger)

	ledger := alerts.NewLedger(alertStore, logger, bus)
	if cfg.Alerts.Seed {
		if err := ledger.Seed(ctx); err != nil {
			return err
		}
	}

	cam := &camera.Synthetic{}
	face := faceclient.New(cfg.Face.ServiceURL, cfg.Face.Skip, cfg.Face.Timeout)
	var source detection.Source = detection.NewMockSource(cfg.Monitor.Probability, nil)
	if cfg.Monitor.Detector == "face" {
		source = detection.NewFaceServiceSource(face, book, cfg.Face.Threshold)
		if err := face.Health(ctx); err != nil {
			logger.Warn("face service not available", zap.String("url", cfg.Face.ServiceURL), zap.Error(err))
		}
	}
	monitor := detection.NewMonitor(cam, source, detection.NewFeed(cfg.Monitor.HistoryCap), cfg.Monitor.Interval, logger, bus)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, monitor.Active)
	ledger.Subscribe(m)
	monitor.Subscribe(m)
	if st, err := ledger.Stats(ctx); err == nil {
		m.SetUnresolved(st.Unresolved)
	}

	generator := alerts.NewGenerator(ledger, alerts.NewRandomSource(cfg.Alerts.Probability, nil), cfg.Alerts.Interval, logger)
	if cfg.Alerts.AutoGenerate {
		generator.Start()
	}
	defer generator.Stop()
	defer monitor.Stop()

	people := registry.New()
	enrollment := registry.NewEnrollment(people, cam, logger)
	defer enrollment.Cancel()

	announcer := newAnnouncer(cfg, logger)
	// With a shared queue the worker process speaks; otherwise do it here.
	if cfg.Queue.Backend == "memory" {
		notifier := events.NewNotifier(announcer, m, logger)
		go func() { _ = notifier.Run(ctx, q) }()
	}

	deps := api.Deps{
		Logger:          logger,
		Book:            book,
		Ledger:          ledger,
		Generator:       generator,
		Registry:        people,
		Enrollment:      enrollment,
		Monitor:         monitor,
		Signer:          auth.NewSigner(cfg.Auth.Issuer, cfg.Auth.SigningKey, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL),
		Events:          hub,
		Metrics:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Faces:           face,
		Observer:        bus,
		Chime:           announcer,
		Health:          health,
		AllowOrigins:    cfg.Server.AllowOrigins,
		RateLimitPerMin: cfg.Server.RateLimitPerMin,
		RegistrationKey: cfg.Auth.RegistrationKey,
	}
	if cfg.Cloudinary.Enabled() {
		deps.Uploader = cloudinary.New(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
		logger.Info("cloudinary configured", zap.String("cloud", cfg.Cloudinary.CloudName))
	} else {
		logger.Info("cloudinary not configured, capture uploads disabled")
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newAnnouncer(cfg *config.App, logger *zap.Logger) *voice.Announcer {
	var speaker voice.Speaker
	if cfg.Voice.Command != "" {
		s, err := voice.NewCommandSpeaker(cfg.Voice.Command)
		if err != nil {
			logger.Warn("speech unavailable, using beeps", zap.String("command", cfg.Voice.Command), zap.Error(err))
		} else {
			speaker = s
		}
	}
	return voice.NewAnnouncer(speaker, os.Stdout, logger)
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := map[string]bool{}
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
