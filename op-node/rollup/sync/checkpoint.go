// Package sync implements the node's two startup sync modes: full
// (re-derive from the rollup config's genesis anchor) and checkpoint
// (point the execution client at a trusted tip and let it snap-sync).
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/opstack-alt/rollup-node/op-node/eth"
)

// EngineAPI is the narrow Engine API surface checkpoint bootstrap needs.
type EngineAPI interface {
	ForkchoiceUpdated(ctx context.Context, state *eth.ForkchoiceState, attrs *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error)
}

// Mode selects how the driver establishes its starting head state.
type Mode string

const (
	ModeFull       Mode = "full"
	ModeCheckpoint Mode = "checkpoint"
)

// CheckpointConfig configures checkpoint-sync bootstrap.
type CheckpointConfig struct {
	TrustedRPCURL string
	TrustedHash   common.Hash
}

// Bootstrap issues a single forkchoice_updated pointing head at the
// trusted checkpoint hash, with safe and finalized left at genesis, then
// polls the execution client until it reports it is no longer syncing.
// It returns the safe head the execution client reports once caught up,
// which the driver then resumes normal derivation from.
func Bootstrap(ctx context.Context, log log.Logger, engine EngineAPI, l2Client *rpc.Client, cfg CheckpointConfig, genesis eth.L2BlockRef) (eth.L2BlockRef, error) {
	fc := &eth.ForkchoiceState{
		HeadBlockHash:      cfg.TrustedHash,
		SafeBlockHash:      genesis.Hash,
		FinalizedBlockHash: genesis.Hash,
	}
	res, err := engine.ForkchoiceUpdated(ctx, fc, nil)
	if err != nil {
		return eth.L2BlockRef{}, fmt.Errorf("checkpoint forkchoiceUpdated failed: %w", err)
	}
	log.Info("issued checkpoint forkchoice update", "head", cfg.TrustedHash, "status", res.PayloadStatus.Status)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return eth.L2BlockRef{}, ctx.Err()
		case <-ticker.C:
			syncing, safe, err := pollSyncStatus(ctx, l2Client)
			if err != nil {
				log.Warn("failed to poll execution client sync status during checkpoint bootstrap", "err", err)
				continue
			}
			if !syncing {
				log.Info("execution client finished snap-sync, resuming derivation from its safe head", "safe", safe)
				return safe, nil
			}
		}
	}
}

// rpcBlockHeader decodes the subset of eth_getBlockByNumber's JSON shape
// this bootstrap step needs; the standard block JSON uses different field
// names than the Engine API's ExecutionPayload for the same values.
type rpcBlockHeader struct {
	Hash       common.Hash    `json:"hash"`
	Number     eth.Uint64Quantity `json:"number"`
	ParentHash common.Hash    `json:"parentHash"`
	Timestamp  eth.Uint64Quantity `json:"timestamp"`
}

func pollSyncStatus(ctx context.Context, l2Client *rpc.Client) (syncing bool, safe eth.L2BlockRef, err error) {
	var status interface{}
	if err := l2Client.CallContext(ctx, &status, "eth_syncing"); err != nil {
		return false, eth.L2BlockRef{}, err
	}
	if b, ok := status.(bool); ok && !b {
		var header rpcBlockHeader
		if err := l2Client.CallContext(ctx, &header, "eth_getBlockByNumber", "safe", false); err != nil {
			return false, eth.L2BlockRef{}, err
		}
		return false, eth.L2BlockRef{
			Hash:       header.Hash,
			Number:     uint64(header.Number),
			ParentHash: header.ParentHash,
			Time:       uint64(header.Timestamp),
		}, nil
	}
	return true, eth.L2BlockRef{}, nil
}
