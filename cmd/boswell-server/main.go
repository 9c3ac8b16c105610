package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stevekrontz-dev/boswell/internal/cache"
	"github.com/stevekrontz-dev/boswell/internal/config"
	"github.com/stevekrontz-dev/boswell/internal/embedding"
	"github.com/stevekrontz-dev/boswell/internal/engine"
	"github.com/stevekrontz-dev/boswell/internal/server"
	"github.com/stevekrontz-dev/boswell/internal/storage"
	"github.com/stevekrontz-dev/boswell/internal/storage/postgres"
	"github.com/stevekrontz-dev/boswell/internal/storage/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	embedder, err := embedding.NewProvider(embedding.Config{
		Provider:          cfg.Embedding.Provider,
		BaseURL:           cfg.Embedding.OllamaURL,
		APIKey:            cfg.Embedding.OpenAIAPIKey,
		Model:             cfg.Embedding.Model,
		RequestsPerMinute: cfg.Embedding.RequestsPerMinute,
	})
	if err != nil {
		log.Fatalf("Failed to initialize embedding provider: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ttlStore, err := openTTLStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize checkpoint store: %v", err)
	}
	defer ttlStore.Close()

	fingerprints := engine.NewFingerprints(store, store, store)
	router := engine.NewRouter(fingerprints, embedder, cfg.Routing.Threshold)
	repo, err := engine.NewRepository(store, embedder, router)
	if err != nil {
		log.Fatalf("Failed to initialize repository engine: %v", err)
	}

	srv := server.New(cfg, server.Services{
		Repository:   repo,
		Fingerprints: fingerprints,
		Router:       router,
		Trails:       engine.NewTrails(store, decayConfig(cfg)),
		Links:        engine.NewLinks(store),
		Checkpoints:  engine.NewCheckpoints(ttlStore, cfg.Cache.CheckpointTTL.Std()),
	})

	addr, err := srv.Start(ctx)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("Boswell serving at http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(time.Second)
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.NewStore(cfg.Storage.PostgresDSN)
	default:
		return sqlite.NewStore(cfg.Storage.SQLitePath)
	}
}

func openTTLStore(ctx context.Context, cfg *config.Config) (cache.TTLStore, error) {
	if cfg.Cache.Backend == "redis" {
		return cache.NewRedisStore(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, "boswell")
	}
	return cache.NewMemoryStore(), nil
}

func decayConfig(cfg *config.Config) engine.DecayConfig {
	return engine.DecayConfig{
		BaseStrength:       cfg.Trails.BaseStrength,
		TraversalBoost:     cfg.Trails.TraversalBoost,
		MaxStrength:        cfg.Trails.MaxStrength,
		FadingAfter:        cfg.Trails.FadingAfter.Std(),
		DormantAfter:       cfg.Trails.DormantAfter.Std(),
		ArchivedAfter:      cfg.Trails.ArchivedAfter.Std(),
		FadingMultiplier:   cfg.Trails.FadingMultiplier,
		DormantMultiplier:  cfg.Trails.DormantMultiplier,
		ArchivedMultiplier: cfg.Trails.ArchivedMultiplier,
		SweepBatchSize:     cfg.Trails.SweepBatchSize,
	}
}
