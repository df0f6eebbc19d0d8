// Package chain implements the Chain Adapter (§4.C): mint validation,
// supply/decimals reads, AMM pool discovery, reserve reads and top-holder
// queries against a Solana-like JSON-RPC node.
//
// The multi-endpoint client pool (round-robin selection, per-endpoint
// temporary disablement on repeated failure, a rate.Limiter per endpoint)
// is grounded on the teacher's internal/flow/client.go Client, which
// keeps exactly this shape for its pool of Flow access nodes.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"splpulse/internal/errs"
)

// Client is a pooled JSON-RPC client over one or more chain RPC
// endpoints.
type Client struct {
	httpClient *http.Client
	endpoints  []string
	limiters   []*rate.Limiter
	// disabledUntil holds a unix-nano deadline per endpoint; an endpoint
	// that keeps failing is skipped by selection until its deadline
	// passes, mirroring the teacher's Client.disabledUntil.
	disabledUntil []int64
	rr            uint32
	apiKey        string
}

// NewClient builds a client over the given endpoints. apiKey, if set, is
// sent as a bearer token (CHAIN_API_KEY, §6.5).
func NewClient(endpoints []string, apiKey string) *Client {
	if len(endpoints) == 0 {
		endpoints = []string{"http://localhost:8899"}
	}
	c := &Client{
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		endpoints:     endpoints,
		limiters:      make([]*rate.Limiter, len(endpoints)),
		disabledUntil: make([]int64, len(endpoints)),
		apiKey:        apiKey,
	}
	for i := range endpoints {
		c.limiters[i] = rate.NewLimiter(rate.Limit(20), 20)
	}
	return c
}

// pick selects the next live endpoint index via round robin, skipping
// temporarily disabled ones when an alternative exists.
func (c *Client) pick() int {
	n := len(c.endpoints)
	start := int(atomic.AddUint32(&c.rr, 1)) % n
	now := time.Now().UnixNano()
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if atomic.LoadInt64(&c.disabledUntil[idx]) <= now {
			return idx
		}
	}
	return start
}

func (c *Client) disable(idx int, d time.Duration) {
	atomic.StoreInt64(&c.disabledUntil[idx], time.Now().Add(d).UnixNano())
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC request, retrying across endpoints on
// transport failure. A 429 surfaces as errs.Throttled; any other network
// failure surfaces as errs.ChainUnavailable.
func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	n := len(c.endpoints)
	var lastErr error
	for attempt := 0; attempt < n; attempt++ {
		idx := c.pick()
		if err := c.limiters[idx].Wait(ctx); err != nil {
			return err
		}

		body, _ := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints[idx], bytes.NewReader(body))
		if err != nil {
			return &errs.ChainUnavailable{Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.disable(idx, 30*time.Second)
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			c.disable(idx, retryAfter)
			return &errs.Throttled{Source: "chain", RetryAfter: retryAfter}
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.disable(idx, 10*time.Second)
			lastErr = fmt.Errorf("rpc status %s", resp.Status)
			continue
		}

		var rr rpcResponse
		if err := json.Unmarshal(data, &rr); err != nil {
			lastErr = err
			continue
		}
		if rr.Error != nil {
			return fmt.Errorf("rpc error %d: %s", rr.Error.Code, rr.Error.Message)
		}
		if out != nil {
			return json.Unmarshal(rr.Result, out)
		}
		return nil
	}
	return &errs.ChainUnavailable{Err: lastErr}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 2 * time.Second
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 2 * time.Second
}
