// Package errs defines the tagged error variants that components use to
// signal outcomes the scheduler and API layer must discriminate on
// (§7 of the design: InvalidMint must trigger ban-and-remove; transient
// errors must not).
package errs

import (
	"errors"
	"fmt"
	"time"
)

// InvalidMint means the mint failed syntactic or on-chain validation.
// It is fatal for the mint: the scheduler bans and removes it.
type InvalidMint struct {
	Mint   string
	Reason string
}

func (e *InvalidMint) Error() string {
	return fmt.Sprintf("invalid mint %s: %s", e.Mint, e.Reason)
}

// ChainUnavailable wraps a network-level failure talking to the chain.
// It is transient and never bans a mint.
type ChainUnavailable struct {
	Err error
}

func (e *ChainUnavailable) Error() string { return fmt.Sprintf("chain unavailable: %v", e.Err) }
func (e *ChainUnavailable) Unwrap() error { return e.Err }

// UpstreamUnavailable wraps a failure from a named upstream (a quote
// source or the risk scorer). Transient.
type UpstreamUnavailable struct {
	Source string
	Err    error
}

func (e *UpstreamUnavailable) Error() string {
	return fmt.Sprintf("upstream %s unavailable: %v", e.Source, e.Err)
}
func (e *UpstreamUnavailable) Unwrap() error { return e.Err }

// Throttled signals that an upstream asked the caller to back off.
// RetryAfter is zero when the upstream did not specify a duration.
type Throttled struct {
	Source     string
	RetryAfter time.Duration
}

func (e *Throttled) Error() string {
	return fmt.Sprintf("throttled by %s (retry after %s)", e.Source, e.RetryAfter)
}

// PersistenceError wraps a failure writing to the persistent store.
// The scheduler counts the tick as failed; no state mutation follows.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence error: %v", e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// BadRequest marks a REST input validation failure; HTTP handlers
// translate it to a 400.
type BadRequest struct {
	Message string
}

func (e *BadRequest) Error() string { return e.Message }

// NotIndexed is not a true error: it signals that the risk scorer has no
// report for a mint. Callers should treat it as "no report" rather than
// propagate it as a failure; it is defined here so call sites can use
// errors.Is uniformly.
var NotIndexed = errors.New("not indexed")

// AsInvalidMint is a convenience wrapper around errors.As.
func AsInvalidMint(err error) (*InvalidMint, bool) {
	var im *InvalidMint
	if errors.As(err, &im) {
		return im, true
	}
	return nil, false
}

// AsThrottled is a convenience wrapper around errors.As.
func AsThrottled(err error) (*Throttled, bool) {
	var t *Throttled
	if errors.As(err, &t) {
		return t, true
	}
	return nil, false
}
