package derive

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/opstack-alt/rollup-node/op-node/eth"
	"github.com/opstack-alt/rollup-node/op-node/rollup"
)

func attributesTestConfig() *rollup.Config {
	return &rollup.Config{BlockTime: 2, SeqWindowSize: 10, ChannelTimeout: 100, MaxChannelSize: 1_000_000}
}

type stubL1Provider struct {
	info     eth.L1BlockInfo
	cfg      eth.SystemConfig
	deposits []*eth.UserDepositEvent
}

func (s *stubL1Provider) L1BlockInfo(ctx context.Context, id eth.BlockID) (eth.L1BlockInfo, error) {
	info := s.info
	info.Number = id.Number
	info.BlockHash = id.Hash
	return info, nil
}

func (s *stubL1Provider) SystemConfig(ctx context.Context, id eth.BlockID) (eth.SystemConfig, error) {
	return s.cfg, nil
}

func (s *stubL1Provider) Deposits(ctx context.Context, id eth.BlockID) ([]*eth.UserDepositEvent, error) {
	return s.deposits, nil
}

func testEpoch() eth.Epoch {
	return eth.Epoch{Hash: common.HexToHash("0xe1"), Number: 1}
}

func TestPrepareCarriesSystemConfigGasLimit(t *testing.T) {
	epoch := testEpoch()
	l1 := &stubL1Provider{cfg: eth.SystemConfig{GasLimit: 30_000_000, BatcherAddr: common.HexToAddress("0xb1")}}
	as := NewAttributesStage(log.NewLogger(log.DiscardHandler()), attributesTestConfig(), l1)

	safeHead := eth.L2BlockRef{Hash: common.HexToHash("0xsafe"), Time: 1000, L1Origin: epoch}
	b := &Batch{
		ParentHash: safeHead.Hash,
		EpochNum:   epoch.Number,
		EpochHash:  epoch.Hash,
		Timestamp:  safeHead.Time + 2,
	}

	attrs, err := as.Prepare(context.Background(), b, safeHead, epoch)
	require.NoError(t, err)
	require.NotNil(t, attrs.GasLimit)
	require.Equal(t, eth.Uint64Quantity(30_000_000), *attrs.GasLimit)
}

func TestPrepareIncludesUserDepositsOnlyAtEpochStart(t *testing.T) {
	epoch := testEpoch()
	dep := &eth.UserDepositEvent{From: common.HexToAddress("0xd1"), Gas: 21000, Mint: big.NewInt(0), Value: big.NewInt(0)}
	l1 := &stubL1Provider{cfg: eth.SystemConfig{GasLimit: 30_000_000}, deposits: []*eth.UserDepositEvent{dep}}
	as := NewAttributesStage(log.NewLogger(log.DiscardHandler()), attributesTestConfig(), l1)

	safeHead := eth.L2BlockRef{Hash: common.HexToHash("0xsafe"), Time: 1000, L1Origin: eth.BlockID{Number: 0}}
	b := &Batch{
		ParentHash: safeHead.Hash,
		EpochNum:   epoch.Number,
		EpochHash:  epoch.Hash,
		Timestamp:  safeHead.Time + 2,
	}

	// newEpoch (epoch.Number=1 != safeHead.L1Origin.Number=0): L1-attributes
	// deposit plus the one user deposit, no sequencer transactions.
	attrs, err := as.Prepare(context.Background(), b, safeHead, eth.Epoch{Number: 0})
	require.NoError(t, err)
	require.Len(t, attrs.Transactions, 2)

	// Same epoch as safeHead: only the L1-attributes deposit, user deposits
	// are not re-included mid-epoch.
	sameEpoch := eth.Epoch{Hash: epoch.Hash, Number: epoch.Number}
	safeHead.L1Origin = epoch
	attrs, err = as.Prepare(context.Background(), b, safeHead, sameEpoch)
	require.NoError(t, err)
	require.Len(t, attrs.Transactions, 1)
}

func TestPrepareEmptySynthesizesDepositOnlyAttributes(t *testing.T) {
	epoch := testEpoch()
	l1 := &stubL1Provider{cfg: eth.SystemConfig{GasLimit: 30_000_000}}
	as := NewAttributesStage(log.NewLogger(log.DiscardHandler()), attributesTestConfig(), l1)

	safeHead := eth.L2BlockRef{Hash: common.HexToHash("0xsafe"), Time: 1000, L1Origin: eth.BlockID{Number: 0}}

	attrs, err := as.PrepareEmpty(context.Background(), safeHead, epoch)
	require.NoError(t, err)
	require.True(t, attrs.NoTxPool)
	require.Len(t, attrs.Transactions, 1) // deposit-only, no user deposits, no sequencer txs
	require.NotNil(t, attrs.GasLimit)
}
