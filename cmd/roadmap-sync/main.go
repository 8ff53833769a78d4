package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/incuhub/roadmap-sync/internal/archive"
	"github.com/incuhub/roadmap-sync/internal/cache"
	"github.com/incuhub/roadmap-sync/internal/config"
	"github.com/incuhub/roadmap-sync/internal/events"
	"github.com/incuhub/roadmap-sync/internal/httpserver"
	"github.com/incuhub/roadmap-sync/internal/incubator"
	"github.com/incuhub/roadmap-sync/internal/roadmap"
	"github.com/incuhub/roadmap-sync/internal/scheduler"
	"github.com/incuhub/roadmap-sync/internal/service"
	"github.com/incuhub/roadmap-sync/internal/store"
	"github.com/incuhub/roadmap-sync/internal/timeline"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load", zap.Error(err))
	}

	var history store.Store = store.NewMemoryStore()
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db open", zap.Error(err))
		}
		defer db.Close()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		if err := db.Ping(); err != nil {
			logger.Fatal("db ping", zap.Error(err))
		}
		history = store.NewPGStore(db)
	} else {
		logger.Warn("no database configured, sync history is in-memory only")
	}

	client, err := incubator.NewHTTPClient(incubator.HTTPClientConfig{
		BaseURL: cfg.BackendBaseURL,
		Token:   cfg.BackendToken,
		Timeout: 5 * time.Second,
		Retries: 2,
	})
	if err != nil {
		logger.Fatal("incubator client init", zap.Error(err))
	}

	opts := service.Options{Logger: logger}

	if cfg.LinksFile != "" {
		links, err := timeline.LoadLinks(cfg.LinksFile)
		if err != nil {
			logger.Fatal("links file load", zap.Error(err))
		}
		opts.Links = links
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewProducer(events.ProducerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			logger.Fatal("kafka producer init", zap.Error(err))
		}
		defer producer.Close()
		opts.Events = producer
	}

	if cfg.S3Bucket != "" {
		archiver, err := archive.NewS3Archiver(context.Background(), cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			logger.Fatal("s3 archiver init", zap.Error(err))
		}
		opts.Archiver = archiver
	}

	if cfg.RedisAddr != "" {
		catalogs := cache.New(cfg.RedisAddr, cfg.CatalogCacheTTL)
		defer catalogs.Close()
		opts.Catalogs = catalogs
	}

	state := roadmap.NewState()
	svc := service.New(client, state, history, opts)
	sched := scheduler.New(cfg.PollInterval, svc.Sync, logger)
	defer sched.Stop()

	server := httpserver.New(cfg, svc, state, history, sched, logger)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		logger.Info("roadmap sync service listening", zap.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	waitForShutdown(httpServer, sched, logger)
}

func waitForShutdown(srv *http.Server, sched *scheduler.Scheduler, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	sched.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
