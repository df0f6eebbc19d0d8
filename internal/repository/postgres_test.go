package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"splpulse/internal/models"
)

// newTestRepository connects to TEST_DATABASE_URL when set, skipping
// otherwise. Persistence round-trips need a real Postgres instance; unit
// tests elsewhere in this service exercise the in-memory collaborators.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping persistence integration test")
	}
	repo, err := NewRepository(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(repo.Close)
	if err := repo.Migrate(context.Background(), "../../schema.sql"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func TestUpsertLatestAndAppendHistory_Atomic(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	mint := "TestMint1111111111111111111111111111111111"
	t.Cleanup(func() { _ = repo.PurgeMint(ctx, mint) })

	snap := models.PriceSnapshot{
		Mint: mint, PriceUsd: 1.5, PriceNative: 0.01, MarketCap: 1500, TotalSupply: 1000, AsOf: time.Now(),
	}
	if err := repo.UpsertLatestAndAppendHistory(ctx, snap); err != nil {
		t.Fatalf("upsert+append: %v", err)
	}

	latest, err := repo.GetLatest(ctx, mint)
	if err != nil || latest == nil {
		t.Fatalf("expected latest row, got %v, %v", latest, err)
	}
	if latest.PriceUsd != snap.PriceUsd {
		t.Fatalf("expected price %v, got %v", snap.PriceUsd, latest.PriceUsd)
	}

	hist, err := repo.HistoryInRange(ctx, mint, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), 1000)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(hist))
	}
}

func TestPurgeMint_RemovesLatestAndHistory(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	mint := "TestMint2222222222222222222222222222222222"

	snap := models.PriceSnapshot{Mint: mint, PriceUsd: 1, PriceNative: 1, MarketCap: 1, TotalSupply: 1, AsOf: time.Now()}
	if err := repo.UpsertLatestAndAppendHistory(ctx, snap); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := repo.PurgeMint(ctx, mint); err != nil {
		t.Fatalf("purge: %v", err)
	}

	latest, err := repo.GetLatest(ctx, mint)
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest != nil {
		t.Fatal("expected latest row to be purged")
	}
}
