package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dan9191/lostcard-service/internal/config"
	"github.com/Dan9191/lostcard-service/internal/directory"
	"github.com/Dan9191/lostcard-service/internal/handler"
	"github.com/Dan9191/lostcard-service/internal/integrations/boxsignal"
	"github.com/Dan9191/lostcard-service/internal/integrations/lookup"
	"github.com/Dan9191/lostcard-service/internal/integrations/vision"
	"github.com/Dan9191/lostcard-service/internal/jobs"
	"github.com/Dan9191/lostcard-service/internal/metrics"
	"github.com/Dan9191/lostcard-service/internal/ocr"
	"github.com/Dan9191/lostcard-service/internal/repository"
	"github.com/Dan9191/lostcard-service/internal/service"
	"github.com/Dan9191/lostcard-service/internal/utils/email"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize card store
	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Box signal queue, delivered over NATS when configured
	queue := boxsignal.NewQueue(nil, cfg.BoxSubject, logger)
	queue.SetSpacing(500 * time.Millisecond)
	queue.SetObserver(m.IncBoxSignal)
	if cfg.NATSURL != "" {
		conn, err := boxsignal.Connect(cfg, queue, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to box transport: %v", err)
		}
		defer conn.Drain()
		queue.SetPublisher(conn)
	} else {
		logger.Warn("NATS_URL not set, pickup codes stay queued for the boxes")
	}

	// Owner directory: static table first, then the live lookup
	dirs := []directory.Directory{}
	if cfg.DirectoryFile != "" {
		entries, err := directory.LoadStaticFile(cfg.DirectoryFile)
		if err != nil {
			logger.Fatalf("Failed to load directory: %v", err)
		}
		static := directory.NewStatic(entries)
		logger.Infof("Loaded %d directory entries", static.Len())
		dirs = append(dirs, static)
	}
	dirs = append(dirs, lookup.NewClient(cfg, logger))

	// Text extraction is disabled without a Vision key
	var detector ocr.Detector
	if cfg.VisionAPIKey != "" {
		detector = vision.NewClient(cfg, logger)
	} else {
		logger.Warn("VISION_API_KEY not set, photo extraction disabled")
	}

	// Initialize layers
	svc := service.NewService(service.Dependencies{
		Store:     store,
		Extractor: ocr.NewExtractor(detector, cfg.OCRTimeout, logger),
		Directory: directory.NewChain(logger, dirs...),
		Notifier:  email.NewSender(cfg, logger),
		Signals:   queue,
		Metrics:   m,
	}, logger, cfg)
	h := handler.NewHandler(svc, logger, cfg)

	scheduler, err := jobs.NewScheduler(cfg, store, queue, logger)
	if err != nil {
		logger.Fatalf("Failed to schedule jobs: %v", err)
	}
	scheduler.Start()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.NewRouter(h, reg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	scheduler.Stop(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (repository.CardStore, func()) {
	if cfg.StoreDriver != "postgres" {
		logger.Warn("Using in-memory card store, cards are lost on restart")
		return repository.NewMemoryStore(), func() {}
	}

	db, err := repository.OpenPostgres(cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	store := repository.NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	return store, func() { db.Close() }
}
