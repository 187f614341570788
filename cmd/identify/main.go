package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/machinemate/machinemate/internal/config"
	"github.com/machinemate/machinemate/internal/domain"
	applog "github.com/machinemate/machinemate/internal/logger"
	"github.com/machinemate/machinemate/internal/repository"
	"github.com/machinemate/machinemate/internal/service"
)

// identify runs the identification pipeline against a local photo from
// the command line, and doubles as the catalog seeding tool.
func main() {
	var (
		configPath = flag.String("config", "", "config file path (default: search ./configs)")
		seedPath   = flag.String("seed", "", "seed the catalog from a machines JSON file and exit")
		threshold  = flag.Float64("threshold", -1, "backend confidence threshold override in [0,1]")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
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
	seeder := service.NewSeedService(machineRepo)
	ctx := context.Background()

	if *seedPath != "" {
		if err := seeder.SeedFromFile(ctx, *seedPath); err != nil {
			applog.Fatal("Seeding failed: %v", err)
		}
		count, _ := machineRepo.Count(ctx)
		fmt.Printf("Catalog seeded, %d machines\n", count)
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: identify [flags] <photo path>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	photoPath := flag.Arg(0)
	if _, err := os.Stat(photoPath); err != nil {
		applog.Fatal("Photo not readable: %v", err)
	}

	if err := seeder.SeedDefaults(ctx); err != nil {
		applog.Fatal("Failed to seed catalog: %v", err)
	}

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

	cacheRepo := repository.NewEmbeddingCacheRepository(db)
	embedder := service.NewEmbeddingService(&cfg.Embedding)
	cache := service.NewEmbeddingCache(cacheRepo, cfg.Embedding.Model, &cfg.Cache)

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

	var opts *service.IdentifyOptions
	if *threshold >= 0 && *threshold <= 1 {
		opts = &service.IdentifyOptions{ConfidenceThreshold: threshold}
	}

	result, err := pipeline.Identify(ctx, domain.PhotoRef{URI: photoPath}, opts)
	if err != nil {
		applog.Fatal("Identification failed: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		applog.Fatal("Failed to encode result: %v", err)
	}
	fmt.Println(string(out))
}
