package derive

import (
	"bytes"
	"compress/zlib"
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/opstack-alt/rollup-node/op-node/eth"
	"github.com/opstack-alt/rollup-node/op-node/rollup"
)

// emptyDataSource never yields calldata; the channel-bank tests below drive
// ingestFrame directly and never need NextChannel to pull from it.
type emptyDataSource struct{}

func (emptyDataSource) Next(ctx context.Context) (eth.Data, error) {
	return nil, NewTemporaryError(ErrNotEnoughData)
}

func newTestChannelBank(t *testing.T) *ChannelBank {
	t.Helper()
	cfg := &rollup.Config{ChannelTimeout: 100, MaxChannelSize: 1_000_000}
	bs := NewBatcherTxStage(log.NewLogger(log.DiscardHandler()), emptyDataSource{})
	return NewChannelBank(log.NewLogger(log.DiscardHandler()), cfg, bs)
}

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestChannelBankAssemblesOutOfOrderFrames(t *testing.T) {
	cb := newTestChannelBank(t)
	var id ChannelID
	id[0] = 0x42

	payload := zlibCompress(t, []byte("the quick brown fox"))
	mid := len(payload) / 2

	cb.ingestFrame(Frame{ChannelID: id, FrameNumber: 1, Data: payload[mid:], IsLast: true})
	require.False(t, cb.channels[id] == nil, "channel should still be pending")

	cb.ingestFrame(Frame{ChannelID: id, FrameNumber: 0, Data: payload[:mid], IsLast: false})
	require.Len(t, cb.ready, 1)

	decompressed, err := DecompressChannel(cb.ready[0])
	require.NoError(t, err)
	require.Equal(t, "the quick brown fox", string(decompressed))
}

func TestChannelBankPrunesTimedOutChannels(t *testing.T) {
	cb := newTestChannelBank(t)
	var id ChannelID
	id[0] = 0x01

	cb.SetOrigin(10)
	cb.ingestFrame(Frame{ChannelID: id, FrameNumber: 0, Data: []byte("partial"), IsLast: false})
	require.Contains(t, cb.channels, id)

	cb.SetOrigin(10 + cb.cfg.ChannelTimeout + 1)
	require.NotContains(t, cb.channels, id)
}

func TestChannelBankDropsOversizedChannel(t *testing.T) {
	cb := newTestChannelBank(t)
	cb.cfg.MaxChannelSize = 4
	var id ChannelID
	id[0] = 0x02

	cb.ingestFrame(Frame{ChannelID: id, FrameNumber: 0, Data: []byte("too long for the limit"), IsLast: false})
	require.NotContains(t, cb.channels, id)
}

func TestChannelBankEvictsOldestChannelWhenAggregateSizeExceeded(t *testing.T) {
	cb := newTestChannelBank(t)
	cb.cfg.MaxChannelSize = 100

	var idA, idB ChannelID
	idA[0] = 0x0a
	idB[0] = 0x0b

	// Channel A alone (90 bytes) fits under the limit and stays pending.
	cb.ingestFrame(Frame{ChannelID: idA, FrameNumber: 0, Data: bytes.Repeat([]byte{1}, 90), IsLast: false})
	require.Contains(t, cb.channels, idA)

	// Channel B (20 bytes) pushes the aggregate to 110, over the 100-byte
	// budget, even though neither channel individually exceeds it. The
	// oldest pending channel (A) must be evicted, not B.
	cb.ingestFrame(Frame{ChannelID: idB, FrameNumber: 0, Data: bytes.Repeat([]byte{2}, 20), IsLast: false})
	require.NotContains(t, cb.channels, idA)
	require.Contains(t, cb.channels, idB)
	require.True(t, cb.discarded[idA])
	require.LessOrEqual(t, cb.totalSize, cb.cfg.MaxChannelSize)

	// A later frame for the evicted id A is dropped, not restarted.
	cb.ingestFrame(Frame{ChannelID: idA, FrameNumber: 1, Data: []byte("late"), IsLast: true})
	require.NotContains(t, cb.channels, idA)
}

func TestChannelBankDropsFramesForTimedOutChannelID(t *testing.T) {
	cb := newTestChannelBank(t)
	var id ChannelID
	id[0] = 0x03

	cb.SetOrigin(10)
	cb.ingestFrame(Frame{ChannelID: id, FrameNumber: 0, Data: []byte("partial"), IsLast: false})
	require.Contains(t, cb.channels, id)

	cb.SetOrigin(10 + cb.cfg.ChannelTimeout + 1)
	require.NotContains(t, cb.channels, id)

	// A later frame reusing the same channel ID must not restart the
	// channel, even though it would otherwise complete it.
	cb.ingestFrame(Frame{ChannelID: id, FrameNumber: 0, Data: []byte("replay"), IsLast: true})
	require.NotContains(t, cb.channels, id)
	require.Empty(t, cb.ready)
}

func TestChannelBankDropsFramesForAlreadyEmittedChannelID(t *testing.T) {
	cb := newTestChannelBank(t)
	var id ChannelID
	id[0] = 0x04

	payload := zlibCompress(t, []byte("hello"))
	cb.ingestFrame(Frame{ChannelID: id, FrameNumber: 0, Data: payload, IsLast: true})
	require.Len(t, cb.ready, 1)

	// A second, different payload for the same (already emitted) channel ID
	// must never produce a second emission.
	cb.ingestFrame(Frame{ChannelID: id, FrameNumber: 0, Data: zlibCompress(t, []byte("again")), IsLast: true})
	require.Len(t, cb.ready, 1)
}
