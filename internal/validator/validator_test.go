package validator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"splpulse/internal/cache"
	"splpulse/internal/chain"
	"splpulse/internal/config"
)

func TestValidate_RejectsMalformedWithoutChainCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("expected no chain call for malformed input")
	}))
	defer srv.Close()

	store := cache.NewMemStore()
	defer store.Close()
	adapter := chain.NewAdapter(chain.NewClient([]string{srv.URL}, ""))
	v := New(adapter, store)

	result, err := v.Validate(context.Background(), "not-base58!!")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result for malformed mint")
	}
}

func TestValidate_NativeMintShortCircuits(t *testing.T) {
	store := cache.NewMemStore()
	defer store.Close()
	adapter := chain.NewAdapter(chain.NewClient([]string{"http://unused.invalid"}, ""))
	v := New(adapter, store)

	result, err := v.Validate(context.Background(), config.NativeMint)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Valid {
		t.Fatal("expected native mint to validate")
	}
}

func TestValidate_CachesChainResult(t *testing.T) {
	calls := 0
	mint := "4wBqpZM9xaSheZzJSMawUKKwhdpChKbZ5eu5ky4Vigw"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":null}}`))
	}))
	defer srv.Close()

	store := cache.NewMemStore()
	defer store.Close()
	adapter := chain.NewAdapter(chain.NewClient([]string{srv.URL}, ""))
	v := New(adapter, store)

	if _, err := v.Validate(context.Background(), mint); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := v.Validate(context.Background(), mint); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one chain call due to caching, got %d", calls)
	}
}

func TestPurgeInvalid_ForcesRecheck(t *testing.T) {
	calls := 0
	mint := "4wBqpZM9xaSheZzJSMawUKKwhdpChKbZ5eu5ky4Vigw"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":null}}`))
	}))
	defer srv.Close()

	store := cache.NewMemStore()
	defer store.Close()
	adapter := chain.NewAdapter(chain.NewClient([]string{srv.URL}, ""))
	v := New(adapter, store)

	if _, err := v.Validate(context.Background(), mint); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v.PurgeInvalid(mint)
	if _, err := v.Validate(context.Background(), mint); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected two chain calls after purge, got %d", calls)
	}
}
