package derive

import (
	"context"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/opstack-alt/rollup-node/op-node/eth"
	"github.com/opstack-alt/rollup-node/op-node/rollup"
)

// fakeL1Provider serves canned L1BlockInfo/SystemConfig/Deposits for
// whatever epoch the Attributes Stage asks about, regardless of which
// batch or empty-batch synthesis triggered the lookup.
type fakeL1Provider struct {
	info eth.L1BlockInfo
	cfg  eth.SystemConfig
}

func (f *fakeL1Provider) L1BlockInfo(ctx context.Context, id eth.BlockID) (eth.L1BlockInfo, error) {
	info := f.info
	info.Number = id.Number
	info.BlockHash = id.Hash
	return info, nil
}

func (f *fakeL1Provider) SystemConfig(ctx context.Context, id eth.BlockID) (eth.SystemConfig, error) {
	return f.cfg, nil
}

func (f *fakeL1Provider) Deposits(ctx context.Context, id eth.BlockID) ([]*eth.UserDepositEvent, error) {
	return nil, nil
}

// exhaustedDataSource reports the batcher-tx source has no more calldata
// for the current L1 origin, the same signal the L1 Source returns once
// it has no more batcher transactions buffered for the current block.
type exhaustedDataSource struct{}

func (exhaustedDataSource) Next(ctx context.Context) (eth.Data, error) {
	return nil, NewTemporaryError(io.EOF)
}

func testPipelineCfg() *rollup.Config {
	return &rollup.Config{
		BlockTime:         2,
		SeqWindowSize:     10,
		MaxSequencerDrift: 600,
		ChannelTimeout:    100,
		MaxChannelSize:    1_000_000,
	}
}

func TestPipelinePrefersBufferedBatchOverSynthesisAtExpiry(t *testing.T) {
	cfg := testPipelineCfg()
	logger := log.NewLogger(log.DiscardHandler())

	safeHead := eth.L2BlockRef{
		Hash:     common.HexToHash("0xsafe"),
		Time:     1000,
		L1Origin: eth.BlockID{Hash: common.HexToHash("0xe5"), Number: 5},
	}
	safeEpoch := eth.Epoch{Hash: common.HexToHash("0xe5"), Number: 5}
	nextEpoch := &eth.L1BlockInfo{Number: 6, BlockHash: common.HexToHash("0xe6"), Time: 1002}

	p := NewPipeline(logger, cfg, exhaustedDataSource{}, &fakeL1Provider{})

	good := &Batch{
		ParentHash:   safeHead.Hash,
		EpochNum:     safeEpoch.Number,
		EpochHash:    safeEpoch.Hash,
		Timestamp:    safeHead.Time + cfg.BlockTime,
		Transactions: []eth.Data{{0x01, 0x02}},
	}
	p.batches.byTimestamp[good.Timestamp] = []*Batch{good}
	p.batches.order = append(p.batches.order, good.Timestamp)

	// currentL1 sits exactly at the window's expiry block: a buffered
	// Accept batch must still win over synthesis here.
	currentL1 := cfg.SeqWindowExpiryBlock(safeEpoch.Number)
	attrs, err := p.NextAttributes(context.Background(), safeHead, safeEpoch, nextEpoch, currentL1)
	require.NoError(t, err)
	require.Len(t, attrs.Transactions, 2) // L1-attributes deposit + the one sequencer tx
}

func TestPipelineSynthesizesEmptyBatchOnlyStrictlyPastExpiry(t *testing.T) {
	cfg := testPipelineCfg()
	logger := log.NewLogger(log.DiscardHandler())

	safeHead := eth.L2BlockRef{
		Hash:     common.HexToHash("0xsafe"),
		Time:     1000,
		L1Origin: eth.BlockID{Hash: common.HexToHash("0xe5"), Number: 5},
	}
	safeEpoch := eth.Epoch{Hash: common.HexToHash("0xe5"), Number: 5}
	nextEpoch := &eth.L1BlockInfo{Number: 6, BlockHash: common.HexToHash("0xe6"), Time: 1002}

	p := NewPipeline(logger, cfg, exhaustedDataSource{}, &fakeL1Provider{})

	// Exactly at the expiry block with nothing buffered: NextBatch has no
	// batch to offer (temporary error from the exhausted source), but the
	// window has not yet strictly passed, so no synthesis should happen —
	// NextAttributes must propagate the temporary error instead.
	atExpiry := cfg.SeqWindowExpiryBlock(safeEpoch.Number)
	_, err := p.NextAttributes(context.Background(), safeHead, safeEpoch, nextEpoch, atExpiry)
	require.Error(t, err)
	require.True(t, IsTemporaryError(err))

	// One block past expiry: synthesis kicks in.
	pastExpiry := atExpiry + 1
	attrs, err := p.NextAttributes(context.Background(), safeHead, safeEpoch, nextEpoch, pastExpiry)
	require.NoError(t, err)
	require.Equal(t, nextEpoch.Number, attrs.EpochID.Number)
	require.Len(t, attrs.Transactions, 1) // deposit-only
}
