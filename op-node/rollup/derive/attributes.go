package derive

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/opstack-alt/rollup-node/op-node/eth"
	"github.com/opstack-alt/rollup-node/op-node/rollup"
)

// L1Provider is the subset of the L1 Source the Attributes Stage needs:
// per-epoch block info, the system config in effect, and the user deposit
// events for a given L1 block.
type L1Provider interface {
	L1BlockInfo(ctx context.Context, id eth.BlockID) (eth.L1BlockInfo, error)
	SystemConfig(ctx context.Context, id eth.BlockID) (eth.SystemConfig, error)
	Deposits(ctx context.Context, id eth.BlockID) ([]*eth.UserDepositEvent, error)
}

// AttributesStage is the last derivation-pipeline stage: given a Batch (or
// the empty batch synthesized for an expired sequencing window) and the L1
// data for its epoch, produce the PayloadAttributes the Engine Client sends
// to engine_forkchoiceUpdatedV1.
type AttributesStage struct {
	log log.Logger
	cfg *rollup.Config
	l1  L1Provider
}

func NewAttributesStage(log log.Logger, cfg *rollup.Config, l1 L1Provider) *AttributesStage {
	return &AttributesStage{log: log, cfg: cfg, l1: l1}
}

// Prepare turns an accepted batch into PayloadAttributes: the L1-attributes
// deposit is always first; user deposits are only included on the L2 block
// that starts a new epoch (sequenceNumber == 0).
func (as *AttributesStage) Prepare(ctx context.Context, b *Batch, safeHead eth.L2BlockRef, safeEpoch eth.Epoch) (*eth.PayloadAttributes, error) {
	epoch := b.Epoch()
	seqNumber := safeHead.SequenceNumber + 1
	newEpoch := epoch.Number != safeEpoch.Number
	if newEpoch {
		seqNumber = 0
	}

	l1Info, err := as.l1.L1BlockInfo(ctx, epoch)
	if err != nil {
		return nil, NewTemporaryError(fmt.Errorf("failed to fetch L1 block info for epoch %s: %w", epoch, err))
	}
	sysCfg, err := as.l1.SystemConfig(ctx, epoch)
	if err != nil {
		return nil, NewTemporaryError(fmt.Errorf("failed to fetch system config for epoch %s: %w", epoch, err))
	}
	l1Info.SequenceNumber = seqNumber

	depositTx, err := eth.L1InfoDeposit(seqNumber, l1Info, sysCfg)
	if err != nil {
		return nil, NewCriticalError(fmt.Errorf("failed to build L1-attributes deposit: %w", err))
	}
	encodedDeposit, err := eth.EncodeDepositTx(depositTx)
	if err != nil {
		return nil, NewCriticalError(fmt.Errorf("failed to encode L1-attributes deposit: %w", err))
	}

	txs := make([]eth.Data, 0, len(b.Transactions)+4)
	txs = append(txs, encodedDeposit)

	if newEpoch {
		deposits, err := as.l1.Deposits(ctx, epoch)
		if err != nil {
			return nil, NewTemporaryError(fmt.Errorf("failed to fetch user deposits for epoch %s: %w", epoch, err))
		}
		for _, d := range deposits {
			enc, err := eth.EncodeDepositTx(d.UserDeposit())
			if err != nil {
				return nil, NewCriticalError(fmt.Errorf("failed to encode user deposit: %w", err))
			}
			txs = append(txs, enc)
		}
	}

	txs = append(txs, b.Transactions...)

	gasLimit := eth.Uint64Quantity(sysCfg.GasLimit)
	attrs := &eth.PayloadAttributes{
		Timestamp:             eth.Uint64Quantity(b.Timestamp),
		PrevRandao:            l1Info.MixDigest,
		SuggestedFeeRecipient: sequencerFeeVault,
		Transactions:          txs,
		NoTxPool:              true,
		GasLimit:              &gasLimit,
		EpochID:               epoch,
		L1InclusionBlock:      l1Info.Number,
	}
	return attrs, nil
}

// PrepareEmpty synthesizes a deposit-only PayloadAttributes for the first
// unfilled L2 slot of an epoch whose sequencing window has expired without
// a usable batch. This keeps the safe head advancing even when the
// batcher stalls or is censored for a full window.
func (as *AttributesStage) PrepareEmpty(ctx context.Context, safeHead eth.L2BlockRef, epoch eth.Epoch) (*eth.PayloadAttributes, error) {
	empty := &Batch{
		ParentHash:   safeHead.Hash,
		EpochNum:     epoch.Number,
		EpochHash:    epoch.Hash,
		Timestamp:    safeHead.Time + as.cfg.BlockTime,
		Transactions: nil,
	}
	return as.Prepare(ctx, empty, safeHead, safeHead.L1Origin)
}

// sequencerFeeVault is the L2 predeploy that collects the base fee and L1
// data fee of every transaction; every OP Stack chain uses the same address.
var sequencerFeeVault = common.HexToAddress("0x4200000000000000000000000000000000000011")
