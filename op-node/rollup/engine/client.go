// Package engine talks the Engine API to the L2 execution client: submit
// candidate blocks, update forkchoice, and collect built payloads.
package engine

import (
	"context"
	"errors"
	"fmt"

	gethlog "github.com/ethereum/go-ethereum/log"
	gn "github.com/ethereum/go-ethereum/node"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/opstack-alt/rollup-node/op-node/eth"
	opclient "github.com/opstack-alt/rollup-node/op-service/client"
	svceth "github.com/opstack-alt/rollup-node/op-service/eth"
)

// Client wraps an authenticated JSON-RPC connection to the L2 execution
// client's Engine API. All three calls in this spec's scope are V1: the
// data model has no withdrawals or blob fields.
type Client struct {
	log   gethlog.Logger
	rpc   *rpc.Client
	retry opclient.RetryConfig
}

// Dial connects to an Engine API endpoint using JWT bearer authentication,
// the same way op-node's config/l2_el_rpc.go wires its execution engine
// client. Connectivity failures are retried with capped exponential
// backoff rather than failing fast, since the execution client may not be
// listening yet at process start.
func Dial(ctx context.Context, logger gethlog.Logger, endpoint string, jwtSecret svceth.Bytes32) (*Client, error) {
	auth := rpc.WithHTTPAuth(gn.NewJWTAuth([32]byte(jwtSecret)))
	retry := opclient.DefaultRetryConfig()
	c, err := opclient.DialRPCWithRetry(ctx, logger, endpoint, retry, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to dial engine endpoint %s: %w", endpoint, err)
	}
	return &Client{log: logger, rpc: c, retry: retry}, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

// call invokes method, retrying with capped exponential backoff on
// network-level errors (connection drops, timeouts); a JSON-RPC application
// error — the execution client responded, just unsuccessfully — is surfaced
// immediately instead.
func (c *Client) call(ctx context.Context, method string, result any, args ...any) error {
	op := func() error {
		err := c.rpc.CallContext(ctx, result, method, args...)
		if err == nil {
			return nil
		}
		if isApplicationError(err) {
			return opclient.Permanent(err)
		}
		c.log.Warn("engine RPC call failed, retrying", "method", method, "err", err)
		return err
	}
	return opclient.Retry(ctx, c.retry, op)
}

// isApplicationError reports whether err is a JSON-RPC application error —
// the execution client responded, just unsuccessfully — as opposed to a
// network-level failure.
func isApplicationError(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}

// NewPayload submits a candidate block to the execution client for
// validation and (tentative) state-transition execution, without changing
// canonical head.
func (c *Client) NewPayload(ctx context.Context, payload *eth.ExecutionPayload) (*eth.PayloadStatusV1, error) {
	var result eth.PayloadStatusV1
	if err := c.call(ctx, "engine_newPayloadV1", &result, payload); err != nil {
		return nil, fmt.Errorf("engine_newPayloadV1 failed: %w", err)
	}
	return &result, nil
}

// ForkchoiceUpdated informs the execution client of the current
// (unsafe, safe, finalized) heads, optionally requesting it begin building
// a new block on top of the head via attrs.
func (c *Client) ForkchoiceUpdated(ctx context.Context, state *eth.ForkchoiceState, attrs *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error) {
	var result eth.ForkchoiceUpdatedResult
	var err error
	if attrs != nil {
		err = c.call(ctx, "engine_forkchoiceUpdatedV1", &result, state, attrs)
	} else {
		err = c.call(ctx, "engine_forkchoiceUpdatedV1", &result, state, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("engine_forkchoiceUpdatedV1 failed: %w", err)
	}
	return &result, nil
}

// GetPayload collects the block built for a payload job previously opened
// by ForkchoiceUpdated.
func (c *Client) GetPayload(ctx context.Context, id eth.PayloadID) (*eth.ExecutionPayload, error) {
	var result eth.ExecutionPayload
	if err := c.call(ctx, "engine_getPayloadV1", &result, id); err != nil {
		return nil, fmt.Errorf("engine_getPayloadV1 failed: %w", err)
	}
	return &result, nil
}
