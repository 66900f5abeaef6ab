package derive

import (
	"context"

	"github.com/ethereum/go-ethereum/log"

	"github.com/opstack-alt/rollup-node/op-node/eth"
)

// DataIter is a lazy pull-source of raw batcher-transaction calldata,
// already filtered to transactions sent to the batch-inbox address by the
// configured batcher address, in L1 block order. Next returns a temporary
// error (see IsTemporaryError) when no calldata is buffered.
type DataIter interface {
	Next(ctx context.Context) (eth.Data, error)
}

// BatcherTxStage turns a DataIter of raw calldata into a stream of Frames,
// one batcher transaction's calldata at a time. A single transaction may
// yield multiple frames (possibly for different channels); malformed
// transactions are skipped rather than treated as fatal, since an
// adversarial or buggy batcher must never be able to stall the pipeline.
type BatcherTxStage struct {
	log    log.Logger
	source DataIter

	buffered []Frame
}

func NewBatcherTxStage(log log.Logger, source DataIter) *BatcherTxStage {
	return &BatcherTxStage{log: log, source: source}
}

// NextFrame returns the next frame parsed out of the underlying batcher
// transaction data. It pulls additional transactions from source as needed
// and returns the source's error, unchanged, once it has no more data.
func (bs *BatcherTxStage) NextFrame(ctx context.Context) (Frame, error) {
	for len(bs.buffered) == 0 {
		data, err := bs.source.Next(ctx)
		if err != nil {
			return Frame{}, err
		}
		frames, err := ParseFrames(data)
		if err != nil {
			bs.log.Warn("failed to parse frames from batcher transaction, skipping", "err", err)
			continue
		}
		bs.buffered = frames
	}
	f := bs.buffered[0]
	bs.buffered = bs.buffered[1:]
	return f, nil
}

// Reset drops any buffered frames left over from the previous L1 origin.
// Called by the pipeline whenever the L1 Source reports a reorg.
func (bs *BatcherTxStage) Reset() {
	bs.buffered = nil
}
