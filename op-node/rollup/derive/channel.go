package derive

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/ethereum/go-ethereum/log"

	"github.com/opstack-alt/rollup-node/op-node/rollup"
)

// pendingChannel accumulates frames for a single channel ID until it either
// completes (an is_last frame has been seen and no frame numbers are
// missing) or times out.
type pendingChannel struct {
	id            ChannelID
	frames        map[uint16]Frame
	closed        bool
	highestFrame  uint16
	size          uint64
	openL1Block   uint64
}

func newPendingChannel(id ChannelID, openL1Block uint64) *pendingChannel {
	return &pendingChannel{
		id:          id,
		frames:      make(map[uint16]Frame),
		openL1Block: openL1Block,
	}
}

func (p *pendingChannel) push(f Frame) error {
	if p.closed && f.FrameNumber >= p.highestFrame {
		return fmt.Errorf("channel %s already closed at frame %d, dropping frame %d", p.id, p.highestFrame, f.FrameNumber)
	}
	if _, ok := p.frames[f.FrameNumber]; ok {
		return fmt.Errorf("channel %s already has frame %d", p.id, f.FrameNumber)
	}
	p.frames[f.FrameNumber] = f
	p.size += uint64(len(f.Data))
	if f.IsLast {
		p.closed = true
		p.highestFrame = f.FrameNumber
	}
	return nil
}

// complete reports whether every frame number from 0 to the closing frame
// has been received.
func (p *pendingChannel) complete() bool {
	if !p.closed {
		return false
	}
	for i := uint16(0); i <= p.highestFrame; i++ {
		if _, ok := p.frames[i]; !ok {
			return false
		}
	}
	return true
}

// assemble concatenates frame data in frame-number order, once complete.
func (p *pendingChannel) assemble() []byte {
	nums := make([]int, 0, len(p.frames))
	for n := range p.frames {
		nums = append(nums, int(n))
	}
	sort.Ints(nums)
	var buf bytes.Buffer
	for _, n := range nums {
		buf.Write(p.frames[uint16(n)].Data)
	}
	return buf.Bytes()
}

// Channel is a completed, decompressed channel payload ready for RLP batch
// decoding, tagged with the range of L1 blocks its frames were seen in.
type Channel struct {
	ID           ChannelID
	Data         []byte
	OpenL1Block  uint64
	CloseL1Block uint64
}

// ChannelBank implements the frame-aggregation half of the Channel Stage:
// buffer frames by channel ID, enforce an aggregate buffered-byte budget
// and the channel timeout, and hand off completed channels for
// decompression.
//
// Frames are only ever pulled from a single BatcherTxStage, one L1 origin
// at a time; the caller (the pipeline) is responsible for calling
// SetOrigin as it advances the L1 origin so timeouts are computed against
// the right L1 block number.
type ChannelBank struct {
	log    log.Logger
	cfg    *rollup.Config
	source *BatcherTxStage

	channels  map[ChannelID]*pendingChannel
	order     []ChannelID // FIFO order channels were first seen in
	discarded map[ChannelID]bool
	totalSize uint64 // aggregate buffered bytes across all pending channels

	origin uint64
	ready  []Channel
}

func NewChannelBank(log log.Logger, cfg *rollup.Config, source *BatcherTxStage) *ChannelBank {
	return &ChannelBank{
		log:       log,
		cfg:       cfg,
		source:    source,
		channels:  make(map[ChannelID]*pendingChannel),
		discarded: make(map[ChannelID]bool),
	}
}

// SetOrigin updates the L1 block number used for channel-timeout
// bookkeeping. Also triggers eviction of any channel that has aged out.
func (cb *ChannelBank) SetOrigin(l1Number uint64) {
	cb.origin = l1Number
	cb.pruneTimedOut()
}

func (cb *ChannelBank) pruneTimedOut() {
	remaining := cb.order[:0]
	for _, id := range cb.order {
		pc, ok := cb.channels[id]
		if !ok {
			continue
		}
		if cb.origin > pc.openL1Block+cb.cfg.ChannelTimeout {
			cb.log.Debug("channel timed out, dropping", "channel", id, "opened_at", pc.openL1Block, "origin", cb.origin)
			cb.evict(id)
			continue
		}
		remaining = append(remaining, id)
	}
	cb.order = remaining
}

// evict removes a pending channel from the bank, permanently marking its id
// discarded and releasing its bytes from the aggregate budget.
func (cb *ChannelBank) evict(id ChannelID) {
	if pc, ok := cb.channels[id]; ok {
		cb.totalSize -= pc.size
		delete(cb.channels, id)
	}
	cb.discarded[id] = true
}

// ingestFrame folds a frame into its channel's pending state. At most one
// channel is ever live per channel ID: once an ID has been evicted (by
// timeout, size, or a completed emission), any later frame for that same ID
// is dropped rather than starting a fresh channel.
//
// max_channel_size bounds the aggregate bytes buffered across every pending
// channel, not any single channel's own size: once a new frame pushes the
// total over the limit, the oldest pending channels are evicted first,
// until the bank is back under budget.
func (cb *ChannelBank) ingestFrame(f Frame) {
	if cb.discarded[f.ChannelID] {
		cb.log.Debug("dropping frame for already-discarded channel", "channel", f.ChannelID)
		return
	}
	pc, ok := cb.channels[f.ChannelID]
	if !ok {
		pc = newPendingChannel(f.ChannelID, cb.origin)
		cb.channels[f.ChannelID] = pc
		cb.order = append(cb.order, f.ChannelID)
	}
	before := pc.size
	if err := pc.push(f); err != nil {
		cb.log.Debug("dropping invalid frame", "err", err)
		return
	}
	cb.totalSize += pc.size - before

	for cb.totalSize > cb.cfg.MaxChannelSize && len(cb.order) > 0 {
		oldest := cb.order[0]
		cb.order = cb.order[1:]
		cb.log.Warn("aggregate channel buffer exceeded max size, evicting oldest channel", "channel", oldest, "total_size", cb.totalSize, "max", cb.cfg.MaxChannelSize)
		cb.evict(oldest)
	}
	if cb.discarded[f.ChannelID] {
		return
	}

	if pc.complete() {
		cb.ready = append(cb.ready, Channel{
			ID:           pc.id,
			Data:         pc.assemble(),
			OpenL1Block:  pc.openL1Block,
			CloseL1Block: cb.origin,
		})
		cb.totalSize -= pc.size
		delete(cb.channels, f.ChannelID)
		cb.discarded[f.ChannelID] = true
	}
}

// NextChannel pulls frames from the batcher-tx stage until a channel
// completes, then returns it. Returns the upstream error, unchanged, once
// the batcher-tx stage has no more frames.
func (cb *ChannelBank) NextChannel(ctx context.Context) (Channel, error) {
	for len(cb.ready) == 0 {
		f, err := cb.source.NextFrame(ctx)
		if err != nil {
			return Channel{}, err
		}
		cb.ingestFrame(f)
	}
	c := cb.ready[0]
	cb.ready = cb.ready[1:]
	return c, nil
}

// Reset clears all buffered channel state, discarding any partially
// assembled channels. Called on an L1 reorg.
func (cb *ChannelBank) Reset() {
	cb.channels = make(map[ChannelID]*pendingChannel)
	cb.order = nil
	cb.discarded = make(map[ChannelID]bool)
	cb.totalSize = 0
	cb.ready = nil
	cb.source.Reset()
}

// DecompressChannel inflates a channel's zlib-compressed payload, the wire
// format every batcher in this spec produces.
func DecompressChannel(c Channel) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(c.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, 100_000_000))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress channel %s: %w", c.ID, err)
	}
	return out, nil
}
