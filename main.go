package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yclients-scraper/api"
	"yclients-scraper/config"
	"yclients-scraper/metrics"
	"yclients-scraper/scraper/yclients"
	"yclients-scraper/services"
	"yclients-scraper/storage"
	"yclients-scraper/utils"
)

func main() {
	// ================== Bootstrap ====================
	logger := utils.NewLogger()
	cfg := config.Load()

	logger.Info("YClients Booking Slot Scraper")
	logger.Info("Interval: %ds | Concurrency: %d | Rate delay: %dms | Retries: %d",
		cfg.ParseIntervalSec, cfg.MaxConcurrency, cfg.RateLimitDelay, cfg.MaxRetries)

	// =================== Storage ========================================
	var store storage.Store
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresStore(cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("Cannot connect to PostgreSQL: %v", err)
			os.Exit(1)
		}
		if err := pg.CreateTables(); err != nil {
			logger.Error("Failed to create DB tables: %v", err)
			os.Exit(1)
		}
		store = pg
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store (data is lost on restart)")
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	// =============== Seed sources ===================================
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, u := range cfg.ParseURLs {
		src, err := store.AddSource(ctx, u, "")
		if err != nil {
			logger.Error("Failed to register source %s: %v", u, err)
			continue
		}
		logger.Info("Source registered: id=%d url=%s", src.ID, src.URL)
	}

	// =============== Pipeline ===================================
	rules, err := services.LoadCategoryRules(cfg.CategoryRulesPath)
	if err != nil {
		logger.Error("Failed to load category rules: %v", err)
		os.Exit(1)
	}

	m := metrics.New()
	fetcher := yclients.NewFetcher(cfg, logger)
	extractor := yclients.NewExtractor(logger)
	normalizer := services.NewNormalizer(rules, logger)
	scheduler := services.NewScheduler(cfg, store, fetcher, extractor, normalizer, m, logger)

	go scheduler.Start(ctx)

	// =============== HTTP API ===================================
	analytics := services.NewAnalyticsService(store, logger)
	csvWriter := storage.NewCSVWriter(cfg.ExportDir, logger)
	srv := api.New(store, scheduler, analytics, csvWriter, cfg.APIKey, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("API listening on :%s", cfg.APIPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server error: %v", err)
			os.Exit(1)
		}
	}()

	// =============== Graceful shutdown ===================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancel()
	scheduler.Drain()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error: %v", err)
	}

	logger.Info("Stopped")
}
