package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/machinemate/machinemate/internal/api"
	"github.com/machinemate/machinemate/internal/config"
	applog "github.com/machinemate/machinemate/internal/logger"
	"github.com/machinemate/machinemate/internal/repository"
	"github.com/machinemate/machinemate/internal/service"
	"github.com/machinemate/machinemate/internal/storage"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	applog.SetDefaultLogger(applog.NewFromEnv(nil))
	defer applog.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		applog.Fatal("Failed to initialize database: %v", err)
	}

	machineRepo := repository.NewMachineRepository(db)
	cacheRepo := repository.NewEmbeddingCacheRepository(db)

	ctx := context.Background()

	// Seed the built-in catalog on first run; an empty catalog makes
	// every identify request fail fast.
	seeder := service.NewSeedService(machineRepo)
	if err := seeder.SeedDefaults(ctx); err != nil {
		applog.Fatal("Failed to seed catalog: %v", err)
	}

	// Reference embeddings are optional; identification works text-only
	// without them.
	var references service.ReferenceSource
	if cfg.Qdrant.Enabled {
		refRepo, err := repository.NewReferenceRepository(&repository.QdrantConnectionConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
		})
		if err != nil {
			applog.Warn("Reference store unavailable, continuing without: %v", err)
		} else {
			defer refRepo.Close()
			references = refRepo
		}
	}

	// Photo archive is optional too.
	var archive *storage.PhotoArchive
	if cfg.Storage.Enabled {
		objectStorage, err := storage.NewS3Storage(&cfg.Storage)
		if err != nil {
			applog.Fatal("Failed to initialize storage: %v", err)
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			applog.Fatal("Failed to ensure storage bucket: %v", err)
		}
		archive = storage.NewPhotoArchive(objectStorage)
	} else {
		archive = storage.NewPhotoArchive(nil)
	}

	embedder := service.NewEmbeddingService(&cfg.Embedding)
	cache := service.NewEmbeddingCache(cacheRepo, cfg.Embedding.Model, &cfg.Cache)
	if err := cache.Migrate(ctx); err != nil {
		applog.Warn("Cache migration failed at startup, will retry on first request: %v", err)
	}

	pipeline := service.NewPipeline(
		service.NewBackendService(&cfg.Backend),
		service.NewPhotoNormalizer(&cfg.Pipeline, ""),
		embedder,
		cache,
		service.NewDomainGate(embedder, cache, &cfg.Pipeline, &cfg.Cache),
		service.NewLabelRanker(embedder, cache, &cfg.Pipeline, &cfg.Cache),
		service.NewCatalogResolver(machineRepo, &cfg.Pipeline),
		service.NewFallbackGenerator(),
		machineRepo,
		references,
		cfg,
	)

	router := api.SetupRouter(pipeline, machineRepo, archive, &cfg.Server)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		applog.Info("Starting API server: port=%d mode=%s", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	applog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		applog.Fatal("Server forced to shutdown: %v", err)
	}

	applog.Info("Server exited")
}
