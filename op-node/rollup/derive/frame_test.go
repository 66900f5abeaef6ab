package derive

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeFrame(t *testing.T, f Frame) []byte {
	t.Helper()
	buf := make([]byte, 0, frameV0OverheadSize+len(f.Data))
	buf = append(buf, f.ChannelID[:]...)
	buf = append(buf, byte(f.FrameNumber>>8), byte(f.FrameNumber))
	l := uint32(len(f.Data))
	buf = append(buf, byte(l>>24), byte(l>>16), byte(l>>8), byte(l))
	buf = append(buf, f.Data...)
	if f.IsLast {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func TestParseFramesSingle(t *testing.T) {
	var id ChannelID
	id[0] = 0xAB
	f := Frame{ChannelID: id, FrameNumber: 0, Data: []byte("hello"), IsLast: true}

	raw := append([]byte{DerivationVersion0}, encodeFrame(t, f)...)
	frames, err := ParseFrames(raw)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, f.ChannelID, frames[0].ChannelID)
	require.Equal(t, f.FrameNumber, frames[0].FrameNumber)
	require.Equal(t, f.Data, frames[0].Data)
	require.True(t, frames[0].IsLast)
}

func TestParseFramesMultiple(t *testing.T) {
	var id ChannelID
	id[0] = 0x01
	f0 := Frame{ChannelID: id, FrameNumber: 0, Data: []byte("abc"), IsLast: false}
	f1 := Frame{ChannelID: id, FrameNumber: 1, Data: []byte("defg"), IsLast: true}

	raw := []byte{DerivationVersion0}
	raw = append(raw, encodeFrame(t, f0)...)
	raw = append(raw, encodeFrame(t, f1)...)

	frames, err := ParseFrames(raw)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, uint16(0), frames[0].FrameNumber)
	require.False(t, frames[0].IsLast)
	require.Equal(t, uint16(1), frames[1].FrameNumber)
	require.True(t, frames[1].IsLast)
}

func TestParseFramesRejectsBadVersion(t *testing.T) {
	_, err := ParseFrames([]byte{0x01, 0x02, 0x03})
	require.Error(t, err)
}

func TestParseFramesRejectsTruncated(t *testing.T) {
	var id ChannelID
	f := Frame{ChannelID: id, FrameNumber: 0, Data: []byte("hello"), IsLast: true}
	raw := append([]byte{DerivationVersion0}, encodeFrame(t, f)...)
	_, err := ParseFrames(raw[:len(raw)-3])
	require.Error(t, err)
}

// A malformed trailing frame must not discard frames already parsed
// earlier in the same batcher transaction's calldata.
func TestParseFramesKeepsLeadingFrameAfterCorruptSuffix(t *testing.T) {
	var id ChannelID
	id[0] = 0x02
	good := Frame{ChannelID: id, FrameNumber: 0, Data: []byte("abc"), IsLast: false}
	bad := Frame{ChannelID: id, FrameNumber: 1, Data: []byte("defg"), IsLast: true}

	raw := []byte{DerivationVersion0}
	raw = append(raw, encodeFrame(t, good)...)
	corrupt := encodeFrame(t, bad)
	raw = append(raw, corrupt[:len(corrupt)-3]...)

	frames, err := ParseFrames(raw)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, good.ChannelID, frames[0].ChannelID)
	require.Equal(t, good.FrameNumber, frames[0].FrameNumber)
	require.Equal(t, good.Data, frames[0].Data)
}
