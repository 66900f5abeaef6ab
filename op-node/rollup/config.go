package rollup

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/opstack-alt/rollup-node/op-node/eth"
)

// Genesis anchors the derivation pipeline: the first safe L2 block and the
// L1 block it was derived from, plus the SystemConfig value in effect at
// that L1 block.
type Genesis struct {
	L1     eth.BlockID     `json:"l1"`
	L2     eth.BlockID     `json:"l2"`
	L2Time uint64          `json:"l2_time"`
	SystemConfig eth.SystemConfig `json:"system_config"`
}

// Config is the full set of parameters that determine how L1 data is
// transformed into L2 blocks. Every derivation-pipeline stage is
// constructed from (a view of) this struct; nothing about a chain's
// consensus rules lives anywhere else.
type Config struct {
	Genesis Genesis `json:"genesis"`

	// BlockTime is the fixed L2 block period in seconds.
	BlockTime uint64 `json:"block_time"`
	// MaxSequencerDrift bounds how far a sequencer may set an L2 block's
	// timestamp ahead of its L1 origin's timestamp before the origin must
	// advance.
	MaxSequencerDrift uint64 `json:"max_sequencer_drift"`
	// SeqWindowSize is the number of L1 blocks a batch has to land in before
	// its epoch expires and an empty batch must be synthesized.
	SeqWindowSize uint64 `json:"seq_window_size"`
	// ChannelTimeout is the number of L1 blocks a channel may remain open
	// (from the L1 block the first frame was seen in) before it is dropped.
	ChannelTimeout uint64 `json:"channel_timeout"`

	L1ChainID *big.Int `json:"l1_chain_id"`
	L2ChainID *big.Int `json:"l2_chain_id"`

	// RegolithTime activates the Regolith network upgrade at the given L2
	// timestamp. nil means never active. Only IsRegolith reads it, and no
	// derivation stage calls IsRegolith, so it gates no behavior.
	RegolithTime *uint64 `json:"regolith_time,omitempty"`

	BatchInboxAddress      common.Address `json:"batch_inbox_address"`
	DepositContractAddress common.Address `json:"deposit_contract_address"`
	L1SystemConfigAddress  common.Address `json:"l1_system_config_address"`

	// MaxChannelSize bounds the aggregate frame-data bytes buffered across
	// every pending channel in the Channel Stage; once exceeded, the oldest
	// pending channel is evicted first.
	MaxChannelSize uint64 `json:"max_channel_size"`
}

// IsRegolith returns whether Regolith is active at the given L2 block time.
func (c *Config) IsRegolith(l2Time uint64) bool {
	return c.RegolithTime != nil && l2Time >= *c.RegolithTime
}

// Check validates internal consistency of a loaded chain configuration. It
// mirrors the shape (not the fork-specific field list) of the teacher's own
// rollup config validation.
func (c *Config) Check() error {
	if c.BlockTime == 0 {
		return errors.New("block time cannot be 0")
	}
	if c.SeqWindowSize < 2 {
		return errors.New("sequencing window size must be at least 2")
	}
	if c.ChannelTimeout == 0 {
		return errors.New("channel timeout cannot be 0")
	}
	if c.L1ChainID == nil {
		return errors.New("l1 chain ID must not be nil")
	}
	if c.L2ChainID == nil {
		return errors.New("l2 chain ID must not be nil")
	}
	if c.L1ChainID.Cmp(c.L2ChainID) == 0 {
		return errors.New("l1 and l2 chain IDs must be different")
	}
	if c.BatchInboxAddress == (common.Address{}) {
		return errors.New("batch inbox address must not be zero")
	}
	if c.DepositContractAddress == (common.Address{}) {
		return errors.New("deposit contract address must not be zero")
	}
	if c.L1SystemConfigAddress == (common.Address{}) {
		return errors.New("l1 system config address must not be zero")
	}
	if c.MaxChannelSize == 0 {
		return errors.New("max channel size cannot be 0")
	}
	return nil
}

// L1Signer returns the transaction signer used to recover the sender of
// batcher transactions and system-config update transactions on L1.
func (c *Config) L1Signer() types.Signer {
	return types.NewCancunSigner(c.L1ChainID)
}

// TargetBlockNumber returns the L2 block number expected at a given
// timestamp, given the genesis anchor and fixed block time. The Batch Stage
// does not call it: classifyBatch compares timestamps directly.
func (c *Config) TargetBlockNumber(timestamp uint64) (uint64, error) {
	if timestamp < c.Genesis.L2Time {
		return 0, fmt.Errorf("timestamp %d predates genesis time %d", timestamp, c.Genesis.L2Time)
	}
	delta := timestamp - c.Genesis.L2Time
	if delta%c.BlockTime != 0 {
		return 0, fmt.Errorf("timestamp %d is not a multiple of block time %d after genesis", timestamp, c.BlockTime)
	}
	return c.Genesis.L2.Number + delta/c.BlockTime, nil
}

// SeqWindowExpiryBlock returns the L1 block number at which an epoch's
// sequencing window closes, given the epoch's origin L1 block number.
func (c *Config) SeqWindowExpiryBlock(epochL1Number uint64) uint64 {
	return epochL1Number + c.SeqWindowSize
}
