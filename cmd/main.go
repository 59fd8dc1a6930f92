package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/mohamed-oubenma/smarTube/internal/cache"
	"github.com/mohamed-oubenma/smarTube/internal/config"
	"github.com/mohamed-oubenma/smarTube/internal/gemini"
	"github.com/mohamed-oubenma/smarTube/internal/httpapi"
	"github.com/mohamed-oubenma/smarTube/internal/keypool"
	"github.com/mohamed-oubenma/smarTube/internal/persistence"
	"github.com/mohamed-oubenma/smarTube/internal/service"
	"github.com/mohamed-oubenma/smarTube/internal/supadata"
	"github.com/mohamed-oubenma/smarTube/pkg/log"
)

func main() {
	// .env is optional, environment variables win either way
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	level := log.ParseLevel(cfg.System.LogLevel)
	if cfg.System.LogFile != "" {
		fileLogger, err := log.NewFileLogger(cfg.System.LogFile, level)
		if err != nil {
			log.Fatal("Failed to open log file: %v", err)
		}
		defer fileLogger.Close()
		log.SetGlobalLogger(fileLogger.Logger)
	} else {
		log.InitLogger(level)
	}

	ctx := context.Background()

	store, err := persistence.NewSQLiteStore(cfg.System.DBPath)
	if err != nil {
		log.Fatal("Failed to open database: %v", err)
	}
	defer store.Close()

	keys, err := keypool.NewManager(ctx, store)
	if err != nil {
		log.Fatal("Failed to load credential pool: %v", err)
	}

	supadataClient, err := supadata.NewClient(&supadata.Config{
		BaseURL:      cfg.Supadata.APIURL,
		Timeout:      cfg.Supadata.Timeout,
		PollInterval: cfg.Supadata.PollInterval,
		MaxPolls:     cfg.Supadata.MaxPolls,
	})
	if err != nil {
		log.Fatal("Failed to create Supadata client: %v", err)
	}
	fetcher := supadata.NewFetcher(supadataClient, keys)

	transcriptCache := cache.New(store, fetcher.Fetch,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithCapacity(cfg.Cache.MaxEntries),
	)

	llm, err := gemini.NewClient(gemini.Config{
		BaseURL: cfg.Gemini.APIURL,
		Model:   cfg.Gemini.Model,
		Timeout: cfg.Gemini.Timeout,
	})
	if err != nil {
		log.Fatal("Failed to create Gemini client: %v", err)
	}

	runner := service.NewRunner(transcriptCache, llm, store,
		service.WithGeminiSecret(cfg.Gemini.APIKey),
		service.WithSummaryLanguage(cfg.Gemini.SummaryLanguage),
	)

	// Background sweep keeps the persisted cache tier within TTL and capacity.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Cache.SweepCron, func() {
		if err := transcriptCache.Sweep(context.Background()); err != nil {
			log.Warn("Cache sweep failed: %v", err)
		}
	}); err != nil {
		log.Fatal("Invalid CACHE_SWEEP_CRON: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := httpapi.NewServer(runner, transcriptCache, httpapi.WithKeyManager(keys))

	go func() {
		log.Info("smartubed listening on %s", cfg.System.HTTPAddr)
		if err := server.ListenAndServe(cfg.System.HTTPAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown: %v", err)
	}
}
