// Package client wraps go-ethereum's RPC/execution-client dialers with
// capped exponential backoff, so a dependency that isn't listening yet at
// process start (or drops briefly afterwards) doesn't force a restart.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// RetryConfig bounds how a dial is retried: growing intervals up to
// MaxInterval, giving up once MaxElapsedTime has passed.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryConfig matches the backoff curve the teacher's receipts
// pre-fetcher uses for its own RPC retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  25 * time.Second,
	}
}

func (c RetryConfig) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.MaxInterval = c.MaxInterval
	b.MaxElapsedTime = c.MaxElapsedTime
	return b
}

// dialWithRetry retries dial against cfg's backoff curve until it succeeds,
// ctx is canceled, or the elapsed-time budget runs out.
func dialWithRetry(ctx context.Context, lgr log.Logger, endpoint string, cfg RetryConfig, dial func() (*rpc.Client, error)) (*rpc.Client, error) {
	var client *rpc.Client
	attempt := 0
	op := func() error {
		attempt++
		c, err := dial()
		if err != nil {
			lgr.Warn("dial attempt failed, retrying", "endpoint", endpoint, "attempt", attempt, "err", err)
			return err
		}
		client = c
		return nil
	}
	if err := Retry(ctx, cfg, op); err != nil {
		return nil, fmt.Errorf("failed to dial %s after %d attempts: %w", endpoint, attempt, err)
	}
	return client, nil
}

// DialRPCWithRetry dials a JSON-RPC endpoint, retrying connection failures
// with capped exponential backoff. opts are forwarded to rpc.DialOptions,
// so callers can attach auth (e.g. engine API JWT) the same way a single
// dial would.
func DialRPCWithRetry(ctx context.Context, lgr log.Logger, endpoint string, cfg RetryConfig, opts ...rpc.ClientOption) (*rpc.Client, error) {
	return dialWithRetry(ctx, lgr, endpoint, cfg, func() (*rpc.Client, error) {
		return rpc.DialOptions(ctx, endpoint, opts...)
	})
}

// DialEthClientWithRetry dials an execution-client JSON-RPC endpoint with
// the same retry behavior as DialRPCWithRetry.
func DialEthClientWithRetry(ctx context.Context, lgr log.Logger, endpoint string, cfg RetryConfig) (*ethclient.Client, error) {
	rpcClient, err := DialRPCWithRetry(ctx, lgr, endpoint, cfg)
	if err != nil {
		return nil, err
	}
	return ethclient.NewClient(rpcClient), nil
}
