package client

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// Retry runs op against cfg's backoff curve until it returns nil, ctx is
// canceled, cfg's elapsed-time budget runs out, or op returns an error
// wrapped with Permanent (which stops retrying immediately).
func Retry(ctx context.Context, cfg RetryConfig, op func() error) error {
	return backoff.Retry(op, backoff.WithContext(cfg.backOff(), ctx))
}

// Permanent marks err as non-retryable: Retry returns it on the first
// attempt instead of backing off, the same way an RPC caller treats a
// JSON-RPC application error (a real response, just an unsuccessful one) as
// distinct from a network-level failure.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
