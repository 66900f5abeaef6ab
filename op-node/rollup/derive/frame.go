package derive

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// DerivationVersion0 is the only channel-format version this spec speaks.
const DerivationVersion0 = 0

// FrameV0 length constants: channel_id (16) + frame_number (2) +
// frame_data_length (4) + is_last (1) surround the variable-length payload.
const (
	frameV0OverheadSize = 16 + 2 + 4 + 1
	maxFrameLen         = 1_000_000
)

// Frame is a single fragment of a channel's compressed payload, split off a
// batcher transaction's calldata.
type Frame struct {
	ChannelID   ChannelID
	FrameNumber uint16
	Data        []byte
	IsLast      bool
}

// ChannelID is the random 16-byte value a batcher assigns to a channel; all
// frames belonging to that channel carry the same ID.
type ChannelID [16]byte

func (id ChannelID) String() string {
	return common.Bytes2Hex(id[:])
}

// ParseFrames splits a single batcher transaction's calldata into its
// component frames. The first byte of the calldata must be the version
// byte; each frame after it is packed back-to-back with no padding.
func ParseFrames(data []byte) ([]Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data array must not be empty")
	}
	if data[0] != DerivationVersion0 {
		return nil, fmt.Errorf("unrecognized derivation version: %d", data[0])
	}
	data = data[1:]
	var frames []Frame
	for len(data) > 0 {
		f, remaining, err := parseFrame(data)
		if err != nil {
			// A malformed suffix discards only the suffix: frames already
			// parsed from this calldata remain valid.
			break
		}
		frames = append(frames, *f)
		data = remaining
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames parsed from batcher transaction data")
	}
	return frames, nil
}

func parseFrame(data []byte) (*Frame, []byte, error) {
	if len(data) < frameV0OverheadSize {
		return nil, nil, fmt.Errorf("frame data too short to contain frame header: %d bytes", len(data))
	}
	var f Frame
	copy(f.ChannelID[:], data[:16])
	offset := 16

	f.FrameNumber = binary.BigEndian.Uint16(data[offset : offset+2])
	offset += 2

	frameLen := binary.BigEndian.Uint32(data[offset : offset+4])
	offset += 4
	if frameLen > maxFrameLen {
		return nil, nil, fmt.Errorf("frame data length %d exceeds maximum %d", frameLen, maxFrameLen)
	}

	if uint64(offset)+uint64(frameLen)+1 > uint64(len(data)) {
		return nil, nil, fmt.Errorf("frame data length %d exceeds remaining buffer", frameLen)
	}
	f.Data = data[offset : offset+int(frameLen)]
	offset += int(frameLen)

	if data[offset] != 0 && data[offset] != 1 {
		return nil, nil, fmt.Errorf("invalid byte as is_last: %d", data[offset])
	}
	f.IsLast = data[offset] == 1
	offset += 1

	return &f, data[offset:], nil
}
