package quotes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"splpulse/internal/cache"
)

func TestAggregatorSource_BatchQuote_SelectsAndCaches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := []aggregatorPairDTO{
			{Mint: "mintA", VenueId: "raydium", QuoteMint: testNative, PriceUsd: 1.5, LiquidityUsd: 10000, Volume24h: 5000},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	store := cache.NewMemStore()
	defer store.Close()
	src := NewAggregatorSource(srv.URL, "", store, 30*time.Second)

	quotes, err := src.BatchQuote(context.Background(), []string{"mintA"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := quotes["mintA"]
	if q == nil {
		t.Fatal("expected a quote for mintA")
	}
	if q.PriceUsd != 1.5 {
		t.Fatalf("expected priceUsd 1.5, got %v", q.PriceUsd)
	}

	if _, ok := store.Get("quote:aggregator:mintA"); !ok {
		t.Fatal("expected the selected quote to be cached")
	}
}

func TestAggregatorSource_BatchQuote_UsesCacheOnSecondCall(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		payload := []aggregatorPairDTO{
			{Mint: "mintA", VenueId: "raydium", QuoteMint: testNative, PriceUsd: 2, LiquidityUsd: 10000, Volume24h: 5000},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	store := cache.NewMemStore()
	defer store.Close()
	src := NewAggregatorSource(srv.URL, "", store, 30*time.Second)

	if _, err := src.BatchQuote(context.Background(), []string{"mintA"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := src.BatchQuote(context.Background(), []string{"mintA"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one upstream call due to caching, got %d", calls)
	}
}

func TestAggregatorSource_BatchQuote_MapsThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	store := cache.NewMemStore()
	defer store.Close()
	src := NewAggregatorSource(srv.URL, "", store, 30*time.Second)

	_, err := src.BatchQuote(context.Background(), []string{"mintA"})
	if err == nil {
		t.Fatal("expected an error")
	}
}
