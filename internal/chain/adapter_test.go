package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"

	"splpulse/internal/config"
)

func rpcServer(t *testing.T, handler func(method string) (interface{}, bool)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		result, ok := handler(req.Method)
		if !ok {
			http.Error(w, "unexpected method", http.StatusInternalServerError)
			return
		}
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": result}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestValidateMint_NativeMintAcceptedWithoutRoundTrip(t *testing.T) {
	srv := rpcServer(t, func(method string) (interface{}, bool) {
		t.Fatalf("unexpected RPC call %s for native mint", method)
		return nil, false
	})
	defer srv.Close()

	adapter := NewAdapter(NewClient([]string{srv.URL}, ""))
	result, err := adapter.ValidateMint(context.Background(), config.NativeMint)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Valid {
		t.Fatal("expected native mint to validate")
	}
}

func TestValidateMint_WrongOwnerIsInvalid(t *testing.T) {
	srv := rpcServer(t, func(method string) (interface{}, bool) {
		switch method {
		case "getAccountInfo":
			return map[string]interface{}{
				"value": map[string]interface{}{"owner": "SomeOtherProgram11111111111111111111111111"},
			}, true
		}
		return nil, false
	})
	defer srv.Close()

	adapter := NewAdapter(NewClient([]string{srv.URL}, ""))
	result, err := adapter.ValidateMint(context.Background(), "NotTheNativeMint111111111111111111111111111")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result due to wrong owner")
	}
}

func TestValidateMint_MissingAccountIsInvalid(t *testing.T) {
	srv := rpcServer(t, func(method string) (interface{}, bool) {
		if method == "getAccountInfo" {
			return map[string]interface{}{"value": nil}, true
		}
		return nil, false
	})
	defer srv.Close()

	adapter := NewAdapter(NewClient([]string{srv.URL}, ""))
	result, err := adapter.ValidateMint(context.Background(), "MissingMint111111111111111111111111111111")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result for missing account")
	}
	if result.Reason == "" {
		t.Fatal("expected a reason")
	}
}

func TestReadTopHolders_ComputesSharePct(t *testing.T) {
	srv := rpcServer(t, func(method string) (interface{}, bool) {
		switch method {
		case "getTokenLargestAccounts":
			return map[string]interface{}{
				"value": []map[string]interface{}{
					{"address": "HolderA", "amount": "500"},
					{"address": "HolderB", "amount": "500"},
				},
			}, true
		case "getTokenSupply":
			return map[string]interface{}{
				"value": map[string]interface{}{"amount": "1000", "decimals": 6},
			}, true
		}
		return nil, false
	})
	defer srv.Close()

	adapter := NewAdapter(NewClient([]string{srv.URL}, ""))
	holders, err := adapter.ReadTopHolders(context.Background(), "SomeMint1111111111111111111111111111111111", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(holders) != 2 {
		t.Fatalf("expected 2 holders, got %d", len(holders))
	}
	for _, h := range holders {
		if h.SharePct != 50 {
			t.Fatalf("expected 50%% share, got %v", h.SharePct)
		}
	}
}

func TestFindPoolsForPair_MatchesBaseQuotePrefix(t *testing.T) {
	rawA := make([]byte, 32)
	rawB := make([]byte, 32)
	for i := range rawA {
		rawA[i] = byte(i + 1)
		rawB[i] = byte(i + 33)
	}
	mintA := base58.Encode(rawA)
	mintB := base58.Encode(rawB)

	raw := append(append([]byte{}, rawA...), rawB...)
	dataB64 := base64.StdEncoding.EncodeToString(raw)

	srv := rpcServer(t, func(method string) (interface{}, bool) {
		if method == "getProgramAccounts" {
			return []map[string]interface{}{
				{
					"pubkey":  "PoolAddr111111111111111111111111111111111",
					"account": map[string]interface{}{"data": []string{dataB64}},
				},
			}, true
		}
		return nil, false
	})
	defer srv.Close()

	adapter := NewAdapter(NewClient([]string{srv.URL}, ""))
	pools, err := adapter.FindPoolsForPair(context.Background(), mintA, mintB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pools) == 0 {
		t.Fatal("expected at least one discovered pool per configured AMM program")
	}
	for _, p := range pools {
		if p.BaseMint != mintA || p.QuoteMint != mintB {
			t.Fatalf("unexpected pool mints: %+v", p)
		}
	}
}
