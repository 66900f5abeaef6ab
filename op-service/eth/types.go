package eth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Bytes32 is a fixed 32-byte value, used here for JWT secrets exchanged
// with the execution client's authenticated Engine API port.
type Bytes32 [32]byte

func (b Bytes32) String() string {
	return hexutil.Encode(b[:])
}

func (b Bytes32) TerminalString() string {
	return hexutil.Encode(b[:])
}

func (b Bytes32) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Bytes32) UnmarshalText(text []byte) error {
	decoded, err := hexutil.Decode(string(text))
	if err != nil {
		return err
	}
	if len(decoded) != 32 {
		return fmt.Errorf("expected 32 bytes, got %d", len(decoded))
	}
	copy(b[:], decoded)
	return nil
}
