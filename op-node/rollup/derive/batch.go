package derive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/opstack-alt/rollup-node/op-node/eth"
	"github.com/opstack-alt/rollup-node/op-node/rollup"
)

// singularBatchType is the only batch encoding this spec speaks: one
// L2 block's worth of transactions per batch, RLP-encoded and prefixed
// with a single type byte so future batch formats can be introduced
// without breaking the channel wire format.
const singularBatchType = 0

// Batch is one L2 block's derivation input: an epoch reference (the L1
// origin it claims), a target timestamp, and the transactions the
// sequencer included, exclusive of the L1-attributes deposit which the
// Attributes Stage always prepends.
type Batch struct {
	ParentHash   common.Hash `json:"parent_hash"`
	EpochNum     uint64      `json:"epoch_number"`
	EpochHash    common.Hash `json:"epoch_hash"`
	Timestamp    uint64      `json:"timestamp"`
	Transactions []eth.Data  `json:"transactions"`
}

func (b *Batch) Epoch() eth.Epoch {
	return eth.Epoch{Hash: b.EpochHash, Number: b.EpochNum}
}

type batchRLP struct {
	ParentHash   common.Hash
	EpochNum     uint64
	EpochHash    common.Hash
	Timestamp    uint64
	Transactions []eth.Data
}

func (b *Batch) encode() ([]byte, error) {
	enc, err := rlp.EncodeToBytes(&batchRLP{
		ParentHash:   b.ParentHash,
		EpochNum:     b.EpochNum,
		EpochHash:    b.EpochHash,
		Timestamp:    b.Timestamp,
		Transactions: b.Transactions,
	})
	if err != nil {
		return nil, err
	}
	return append([]byte{singularBatchType}, enc...), nil
}

func decodeBatch(data []byte) (*Batch, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty batch data")
	}
	if data[0] != singularBatchType {
		return nil, fmt.Errorf("unrecognized batch type: %d", data[0])
	}
	var raw batchRLP
	if err := rlp.DecodeBytes(data[1:], &raw); err != nil {
		return nil, fmt.Errorf("failed to RLP-decode batch: %w", err)
	}
	return &Batch{
		ParentHash:   raw.ParentHash,
		EpochNum:     raw.EpochNum,
		EpochHash:    raw.EpochHash,
		Timestamp:    raw.Timestamp,
		Transactions: raw.Transactions,
	}, nil
}

// decodeBatches decompresses a channel and splits its payload into the
// (possibly many) batches concatenated within it. Each batch is
// self-delimiting: RLP decoding of one batchRLP consumes exactly its own
// bytes, so remaining data after a successful decode starts the next batch.
func decodeBatches(log log.Logger, c Channel) []*Batch {
	raw, err := DecompressChannel(c)
	if err != nil {
		log.Warn("failed to decompress channel, dropping", "channel", c.ID, "err", err)
		return nil
	}
	var batches []*Batch
	for len(raw) > 0 {
		if raw[0] != singularBatchType {
			log.Warn("unrecognized batch type in channel, stopping decode", "channel", c.ID, "type", raw[0])
			break
		}
		var b Batch
		rest, err := decodeOneBatchRLP(raw[1:], &b)
		if err != nil {
			log.Warn("failed to decode batch from channel, stopping decode", "channel", c.ID, "err", err)
			break
		}
		batches = append(batches, &b)
		raw = rest
	}
	return batches
}

// decodeOneBatchRLP decodes exactly one RLP-encoded batch from the front of
// data and returns the unconsumed remainder, so callers can walk a
// concatenation of same-type batches one at a time. bytes.Reader implements
// io.ByteReader, so rlp.Decode reads only the bytes belonging to this one
// value and leaves the reader positioned right after it.
func decodeOneBatchRLP(data []byte, out *Batch) ([]byte, error) {
	r := bytes.NewReader(data)
	var raw batchRLP
	if err := rlp.Decode(r, &raw); err != nil {
		return nil, err
	}
	*out = Batch{
		ParentHash:   raw.ParentHash,
		EpochNum:     raw.EpochNum,
		EpochHash:    raw.EpochHash,
		Timestamp:    raw.Timestamp,
		Transactions: raw.Transactions,
	}
	return data[len(data)-r.Len():], nil
}

// batchStatus classifies a candidate batch against the current safe head,
// following the four-way outcome from the reference implementation:
// accept it now, drop it permanently, hold it for a later epoch (Future),
// or wait for more L1 data before deciding (Undecided).
type batchStatus int

const (
	BatchAccept batchStatus = iota
	BatchDrop
	BatchFuture
	BatchUndecided
)

func classifyBatch(cfg *rollup.Config, b *Batch, safeHead eth.L2BlockRef, safeEpoch eth.Epoch, nextEpoch *eth.L1BlockInfo) batchStatus {
	if b.Timestamp <= safeHead.Time {
		return BatchDrop
	}
	expected := safeHead.Time + cfg.BlockTime
	if b.Timestamp != expected {
		if b.Timestamp > expected {
			return BatchFuture
		}
		return BatchDrop
	}
	if b.ParentHash != safeHead.Hash {
		return BatchDrop
	}
	if b.EpochNum < safeEpoch.Number {
		return BatchDrop
	}
	if b.EpochNum == safeEpoch.Number {
		if b.EpochHash != safeEpoch.Hash {
			return BatchDrop
		}
	} else if b.EpochNum == safeEpoch.Number+1 {
		if nextEpoch == nil {
			return BatchUndecided
		}
		if b.EpochHash != nextEpoch.BlockHash {
			return BatchDrop
		}
	} else {
		return BatchDrop
	}
	if b.Timestamp > nextEpochOrSafeTime(safeHead, nextEpoch)+cfg.MaxSequencerDrift {
		if len(b.Transactions) > 0 {
			return BatchDrop
		}
	}
	for _, txBytes := range b.Transactions {
		if len(txBytes) == 0 {
			return BatchDrop
		}
		if txBytes[0] == 0x7E {
			return BatchDrop // deposit transactions are not allowed in a batch
		}
	}
	return BatchAccept
}

func nextEpochOrSafeTime(safeHead eth.L2BlockRef, nextEpoch *eth.L1BlockInfo) uint64 {
	if nextEpoch != nil {
		return nextEpoch.Time
	}
	return safeHead.Time
}

// BatchStage buffers channel-decoded batches keyed by target L2 timestamp
// (order holds the timestamps in the order they were first seen) and hands
// them out one at a time. It does not synthesize empty batches: the
// Pipeline does that once a sequencing window expires.
type BatchStage struct {
	log     log.Logger
	cfg     *rollup.Config
	channel *ChannelBank

	byTimestamp map[uint64][]*Batch
	order       []uint64
}

func NewBatchStage(log log.Logger, cfg *rollup.Config, channel *ChannelBank) *BatchStage {
	return &BatchStage{
		log:         log,
		cfg:         cfg,
		channel:     channel,
		byTimestamp: make(map[uint64][]*Batch),
	}
}

func (bs *BatchStage) ingest(c Channel) {
	for _, b := range decodeBatches(bs.log, c) {
		if _, ok := bs.byTimestamp[b.Timestamp]; !ok {
			bs.order = append(bs.order, b.Timestamp)
		}
		bs.byTimestamp[b.Timestamp] = append(bs.byTimestamp[b.Timestamp], b)
	}
}

// Prune drops all buffered batches targeting an L2 timestamp at or before
// the current safe head's timestamp; they can never be accepted again.
func (bs *BatchStage) Prune(safeHead eth.L2BlockRef) {
	remaining := bs.order[:0]
	for _, ts := range bs.order {
		if ts <= safeHead.Time {
			delete(bs.byTimestamp, ts)
			continue
		}
		remaining = append(remaining, ts)
	}
	bs.order = remaining
}

// NextBatch returns the batch that should be applied on top of safeHead, or
// nil if none is ready yet (Undecided) — the caller should pull more L1
// data and retry. nextEpoch is the L1BlockInfo one epoch ahead of
// safeEpoch, if the L1 Source has already surfaced it.
func (bs *BatchStage) NextBatch(ctx context.Context, safeHead eth.L2BlockRef, safeEpoch eth.Epoch, nextEpoch *eth.L1BlockInfo) (*Batch, error) {
	for {
		for _, ts := range bs.order {
			for _, b := range bs.byTimestamp[ts] {
				switch classifyBatch(bs.cfg, b, safeHead, safeEpoch, nextEpoch) {
				case BatchAccept:
					bs.consume(b)
					return b, nil
				case BatchDrop:
					bs.consume(b)
				case BatchFuture, BatchUndecided:
					// leave buffered
				}
			}
		}
		c, err := bs.channel.NextChannel(ctx)
		if err != nil {
			return nil, err
		}
		bs.ingest(c)
	}
}

func (bs *BatchStage) consume(target *Batch) {
	list := bs.byTimestamp[target.Timestamp]
	for i, b := range list {
		if b == target {
			bs.byTimestamp[target.Timestamp] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(bs.byTimestamp[target.Timestamp]) == 0 {
		delete(bs.byTimestamp, target.Timestamp)
	}
}

// Reset clears all buffered batches. Called on an L1 reorg.
func (bs *BatchStage) Reset() {
	bs.byTimestamp = make(map[uint64][]*Batch)
	bs.order = nil
	bs.channel.Reset()
}
