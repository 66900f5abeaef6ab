package driver

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/opstack-alt/rollup-node/op-node/database"
	"github.com/opstack-alt/rollup-node/op-node/eth"
	"github.com/opstack-alt/rollup-node/op-node/l1"
	"github.com/opstack-alt/rollup-node/op-node/rollup"
	"github.com/opstack-alt/rollup-node/op-node/rollup/derive"
)

type noopL1Provider struct{}

func (noopL1Provider) L1BlockInfo(ctx context.Context, id eth.BlockID) (eth.L1BlockInfo, error) {
	return eth.L1BlockInfo{}, nil
}
func (noopL1Provider) SystemConfig(ctx context.Context, id eth.BlockID) (eth.SystemConfig, error) {
	return eth.SystemConfig{}, nil
}
func (noopL1Provider) Deposits(ctx context.Context, id eth.BlockID) ([]*eth.UserDepositEvent, error) {
	return nil, nil
}

type blockedDataIter struct{}

func (blockedDataIter) Next(ctx context.Context) (eth.Data, error) {
	return nil, derive.NewTemporaryError(context.Canceled)
}

func newTestDriver(t *testing.T, store database.BlockStore) *Driver {
	t.Helper()
	cfg := &rollup.Config{BlockTime: 2, SeqWindowSize: 10, ChannelTimeout: 100, MaxChannelSize: 1_000_000}
	logger := log.NewLogger(log.DiscardHandler())
	pipeline := derive.NewPipeline(logger, cfg, blockedDataIter{}, noopL1Provider{})
	return &Driver{
		log:      logger,
		cfg:      cfg,
		pipeline: pipeline,
		store:    store,
	}
}

func blockRef(number uint64, l1Number uint64) eth.L2BlockRef {
	return eth.L2BlockRef{
		Hash:     common.HexToHash(hashSeed(number)),
		Number:   number,
		L1Origin: eth.BlockID{Number: l1Number, Hash: common.HexToHash(hashSeed(l1Number + 1000))},
	}
}

func hashSeed(n uint64) string {
	return "0x" + common.Bytes2Hex([]byte{byte(n >> 8), byte(n)})
}

func TestHandleReorgRollsBackSafeHeadPastInvalidL1Origin(t *testing.T) {
	store := database.NewMemStore()
	d := newTestDriver(t, store)

	// Blocks 1..3 have L1 origins 5, 6, 7. The reorg invalidates everything
	// above L1 block 5, so safe must roll back to block 1 (origin 5), not
	// stay at block 3 (origin 7).
	for n, l1n := range map[uint64]uint64{1: 5, 2: 6, 3: 7} {
		ref := blockRef(n, l1n)
		require.NoError(t, store.Put(database.BlockRecord{Ref: ref}))
	}
	d.head = eth.HeadState{
		Safe:      blockRef(3, 7),
		Unsafe:    blockRef(3, 7),
		Finalized: blockRef(0, 4),
	}

	d.handleReorg(l1.ReorgSignal{To: eth.L1BlockRef{Number: 5}})

	require.Equal(t, uint64(1), d.head.Safe.Number)
	require.Equal(t, uint64(5), d.head.Safe.L1Origin.Number)
	require.Equal(t, d.head.Safe, d.head.Unsafe)

	_, err := store.ByNumber(2)
	require.ErrorIs(t, err, database.ErrNotFound)
	_, err = store.ByNumber(3)
	require.ErrorIs(t, err, database.ErrNotFound)
}

func TestHandleReorgIsNoopWhenSafeOriginStillValid(t *testing.T) {
	store := database.NewMemStore()
	d := newTestDriver(t, store)

	safe := blockRef(1, 5)
	require.NoError(t, store.Put(database.BlockRecord{Ref: safe}))
	d.head = eth.HeadState{Safe: safe, Unsafe: safe, Finalized: safe}

	d.handleReorg(l1.ReorgSignal{To: eth.L1BlockRef{Number: 9}})

	require.Equal(t, safe, d.head.Safe)
	require.Equal(t, safe, d.head.Unsafe)
}

func TestHandleReorgFallsBackToCurrentSafeWithoutStore(t *testing.T) {
	d := newTestDriver(t, nil)
	safe := blockRef(3, 7)
	d.head = eth.HeadState{Safe: safe, Unsafe: safe, Finalized: safe}

	d.handleReorg(l1.ReorgSignal{To: eth.L1BlockRef{Number: 5}})

	require.Equal(t, safe, d.head.Safe)
	require.Equal(t, safe, d.head.Unsafe)
}
