package derive

import (
	"context"

	"github.com/ethereum/go-ethereum/log"

	"github.com/opstack-alt/rollup-node/op-node/eth"
	"github.com/opstack-alt/rollup-node/op-node/rollup"
)

// Pipeline composes the four staged transforms (batcher-tx, channel, batch,
// attributes) behind a single pull interface: NextAttributes returns
// exactly the PayloadAttributes the Driver should apply next, synthesizing
// an empty batch when an epoch's sequencing window has expired.
type Pipeline struct {
	log log.Logger
	cfg *rollup.Config

	batcherTx  *BatcherTxStage
	channel    *ChannelBank
	batches    *BatchStage
	attributes *AttributesStage

	l1 L1Provider
}

func NewPipeline(log log.Logger, cfg *rollup.Config, l1Data DataIter, l1 L1Provider) *Pipeline {
	batcherTx := NewBatcherTxStage(log, l1Data)
	channel := NewChannelBank(log, cfg, batcherTx)
	batches := NewBatchStage(log, cfg, channel)
	attributes := NewAttributesStage(log, cfg, l1)
	return &Pipeline{
		log:        log,
		cfg:        cfg,
		batcherTx:  batcherTx,
		channel:    channel,
		batches:    batches,
		attributes: attributes,
		l1:         l1,
	}
}

// SetOrigin must be called whenever the L1 Source advances to a new block,
// before any further pulls, so the Channel Stage evaluates timeouts
// against the right L1 block number.
func (p *Pipeline) SetOrigin(l1Number uint64) {
	p.channel.SetOrigin(l1Number)
}

// Prune drops batches that can no longer be applied on top of safeHead.
func (p *Pipeline) Prune(safeHead eth.L2BlockRef) {
	p.batches.Prune(safeHead)
}

// NextAttributes pulls and classifies batches until it finds one that
// applies to safeHead/safeEpoch. Only once the batch source has nothing
// more to offer right now, and the sequencing window for safeEpoch has
// strictly passed its closing block, does it synthesize an empty batch for
// nextEpoch instead of waiting for one — a real Accept batch already
// buffered for this epoch always takes priority over synthesis.
func (p *Pipeline) NextAttributes(ctx context.Context, safeHead eth.L2BlockRef, safeEpoch eth.Epoch, nextEpoch *eth.L1BlockInfo, currentL1 uint64) (*eth.PayloadAttributes, error) {
	b, err := p.batches.NextBatch(ctx, safeHead, safeEpoch, nextEpoch)
	if err != nil {
		if IsTemporaryError(err) && nextEpoch != nil && currentL1 > p.cfg.SeqWindowExpiryBlock(safeEpoch.Number) {
			p.log.Info("sequencing window expired, synthesizing empty batch", "safe_epoch", safeEpoch, "next_epoch", nextEpoch.Number)
			epoch := eth.Epoch{Hash: nextEpoch.BlockHash, Number: nextEpoch.Number}
			return p.attributes.PrepareEmpty(ctx, safeHead, epoch)
		}
		return nil, err
	}
	return p.attributes.Prepare(ctx, b, safeHead, safeEpoch)
}

// Reset discards all buffered pipeline state: partially assembled channels,
// buffered batches, and the batcher-tx stage's frame buffer. Called
// whenever the L1 Source reports a reorg or the Driver needs to re-derive
// from a checkpoint.
func (p *Pipeline) Reset() {
	p.batches.Reset()
	p.channel.Reset()
	p.batcherTx.Reset()
}
