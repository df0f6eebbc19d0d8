package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"splpulse/internal/api"
	"splpulse/internal/cache"
	"splpulse/internal/chain"
	"splpulse/internal/config"
	"splpulse/internal/hub"
	"splpulse/internal/pricing"
	"splpulse/internal/quotes"
	"splpulse/internal/repository"
	"splpulse/internal/risk"
	"splpulse/internal/scheduler"
	"splpulse/internal/validator"
)

func main() {
	cfgPath := os.Getenv("CONFIG_FILE")
	cfg := config.Load(cfgPath)

	log.Println("Initializing splpulse...")
	log.Printf("API Port: %s", cfg.Port)
	log.Printf("RPC Endpoints: %v", cfg.RPCEndpoints)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := repository.NewRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer repo.Close()

	if os.Getenv("SKIP_MIGRATION") != "true" {
		log.Println("Running database migration...")
		if err := repo.Migrate(ctx, "schema.sql"); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
	}

	store := cache.NewMemStore()
	defer store.Close()

	rpcClient := chain.NewClient(cfg.RPCEndpoints, cfg.ChainAPIKey)
	chainAdapter := chain.NewAdapter(rpcClient)

	aggregator := quotes.NewAggregatorSource(cfg.AggregatorBaseURL, cfg.AggregatorAPIKey, store, cfg.QuoteCacheTTL)
	nativeAMM := quotes.NewNativeAMMSource(chainAdapter)
	fallbackSource := quotes.NewFallbackSource(aggregator, nativeAMM)

	riskScorer := risk.NewScorer(cfg.RiskAPIBaseURL, cfg.RiskAPIKey, store)
	mintValidator := validator.New(chainAdapter, store)
	pricingEngine := pricing.New(repo, store, chainAdapter, fallbackSource, mintValidator)

	sched := scheduler.New(store, repo, mintValidator, pricingEngine,
		time.Duration(cfg.PollMs)*time.Millisecond, cfg.WorkerCount, cfg.BanTTL)

	broadcastHub := hub.New(store, mintValidator, pricingEngine, sched)
	defer broadcastHub.Close()

	apiServer := api.NewServer(repo, repo, pricingEngine, chainAdapter, riskScorer, sched, broadcastHub, cfg.AdminJWTSecret, cfg.Port)

	sched.Start(ctx)
	if err := sched.Bootstrap(ctx); err != nil {
		log.Printf("Bootstrap failed: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting API server on :%s", cfg.Port)
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("API server shutdown error: %v", err)
	}

	sched.Stop()
	cancel()
}
