package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/chat"
	"github.com/chatvault/chatvault/internal/export"
	"github.com/chatvault/chatvault/internal/ledger"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/provider"
	"github.com/chatvault/chatvault/internal/search"
	"github.com/chatvault/chatvault/internal/server"
	"github.com/chatvault/chatvault/internal/stats"
	"github.com/chatvault/chatvault/internal/storage"
	"github.com/chatvault/chatvault/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		driver := storage.DriverSQLite
		if cfg.Database.Driver == "postgres" {
			driver = storage.DriverPostgres
		}
		logger.Info("Using SQL storage", zap.String("driver", string(driver)))
		store, err = storage.NewSQLStorage(storage.DatabaseConfig{
			Driver:   driver,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			Path:     cfg.Database.Path,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Wire the services
	searcher := search.New(store, logger)
	lgr := ledger.New(store, searcher, logger)

	// Credentials passed via OPENAI_API_KEY and friends land in the key
	// store so chat works without a prior POST /api/keys.
	err = lgr.SeedAPIKeys(context.Background(), map[models.Platform]string{
		models.PlatformOpenAI:    cfg.Providers.OpenAI.APIKey,
		models.PlatformAnthropic: cfg.Providers.Anthropic.APIKey,
		models.PlatformGoogle:    cfg.Providers.Google.APIKey,
	})
	if err != nil {
		logger.Fatal("Failed to seed API keys", zap.Error(err))
	}

	registry := provider.NewRegistry(
		provider.NewOpenAIProvider(providerConfig(cfg.Providers.OpenAI), logger),
		provider.NewAnthropicProvider(providerConfig(cfg.Providers.Anthropic), logger),
		provider.NewGoogleProvider(providerConfig(cfg.Providers.Google), logger),
	)

	chatSvc := chat.New(lgr, registry, logger)
	aggregator := stats.New(store, logger)
	exporter := export.New(lgr)

	srv := server.New(cfg.Server.Address, lgr, chatSvc, searcher, aggregator, exporter, logger)

	// Shut down cleanly on SIGINT/SIGTERM
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-done
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Shutdown error", zap.Error(err))
		}
	}()

	if err := srv.Start(); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

func providerConfig(pc config.ProviderConfig) provider.Config {
	return provider.Config{
		BaseURL:     pc.BaseURL,
		MaxTokens:   pc.MaxTokens,
		Temperature: pc.Temperature,
		Timeout:     time.Duration(pc.TimeoutSeconds) * time.Second,
	}
}
