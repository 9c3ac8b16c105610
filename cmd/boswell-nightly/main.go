// Command boswell-nightly runs the scheduled maintenance pass: the trail
// decay sweep followed by a branch fingerprint refresh, for every configured
// tenant. It is meant to be invoked from cron; one run, then exit.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/stevekrontz-dev/boswell/internal/config"
	"github.com/stevekrontz-dev/boswell/internal/engine"
	"github.com/stevekrontz-dev/boswell/internal/storage"
	"github.com/stevekrontz-dev/boswell/internal/storage/postgres"
	"github.com/stevekrontz-dev/boswell/internal/storage/sqlite"
)

func main() {
	tenantsFlag := flag.String("tenants", "", "comma-separated tenant IDs (overrides BOSWELL_TENANTS)")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall run timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	tenants := cfg.Nightly.Tenants
	if *tenantsFlag != "" {
		tenants = nil
		for _, t := range strings.Split(*tenantsFlag, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tenants = append(tenants, t)
			}
		}
	}
	if len(tenants) == 0 {
		log.Fatal("No tenants configured: set BOSWELL_TENANTS or pass -tenants")
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	trails := engine.NewTrails(store, decayConfig(cfg))
	fingerprints := engine.NewFingerprints(store, store, store)
	nightly := engine.NewNightly(trails, fingerprints)

	encoder := json.NewEncoder(os.Stdout)
	failed := false
	for _, tenant := range tenants {
		report := nightly.Run(ctx, tenant)
		if err := encoder.Encode(report); err != nil {
			log.Printf("nightly: failed to write report for tenant %s: %v", tenant, err)
		}
		if report.SweepError != "" || report.RefreshError != "" {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.NewStore(cfg.Storage.PostgresDSN)
	default:
		return sqlite.NewStore(cfg.Storage.SQLitePath)
	}
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
