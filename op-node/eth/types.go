package eth

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Bytes32 is a fixed-size hex-encoded field, used throughout the Engine API
// for values that are not addresses or hashes but still 32 bytes wide
// (prev_randao, batcher hash, fee-scalar words).
type Bytes32 [32]byte

func (b Bytes32) String() string {
	return hexutil.Encode(b[:])
}

func (b Bytes32) TerminalString() string {
	return fmt.Sprintf("%x..%x", b[:3], b[29:])
}

func (b Bytes32) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Bytes32) UnmarshalText(text []byte) error {
	dec, err := hexutil.Decode(string(text))
	if err != nil {
		return fmt.Errorf("failed to decode bytes32 %q: %w", text, err)
	}
	if len(dec) != 32 {
		return fmt.Errorf("expected 32 bytes, got %d", len(dec))
	}
	copy(b[:], dec)
	return nil
}

// Data is raw calldata, e.g. the frame bytes of a single batcher transaction.
type Data = hexutil.Bytes

// Uint64Quantity is the big-endian-free quantity encoding the Engine API
// uses for scalar fields (timestamp, gas_limit).
type Uint64Quantity = hexutil.Uint64

// SystemConfig carries the L1-controlled parameters used to build attributes
// and payloads for a given epoch. It evolves over the life of the chain via
// ConfigUpdate events emitted by the L1 system-config contract, so a stream
// of per-epoch values is tracked rather than a single immutable value.
type SystemConfig struct {
	// BatcherAddr is the only address allowed to submit valid batcher
	// transactions to the batch-inbox address.
	BatcherAddr common.Address `json:"batcherAddr"`
	// Overhead and Scalar compute the L1 data fee charged to L2 transactions.
	Overhead Bytes32 `json:"overhead"`
	Scalar   Bytes32 `json:"scalar"`
	// GasLimit is the L2 block gas limit in effect for this epoch.
	GasLimit uint64 `json:"gasLimit"`
}

// L1BlockInfo mirrors the fields decoded onto the L1-attributes deposited
// transaction. Held separately from L1BlockRef because it also carries
// batcher/fee-config fields that are not part of a plain block reference.
type L1BlockInfo struct {
	Number    uint64      `json:"number"`
	Time      uint64      `json:"time"`
	BlockHash common.Hash `json:"hash"`
	// SequenceNumber counts L2 blocks since the start of the epoch. Reset to
	// 0 at the first L2 block that uses this L1 origin.
	SequenceNumber uint64 `json:"sequenceNumber"`
	BatcherAddr    common.Address
	L1FeeOverhead  Bytes32
	L1FeeScalar    Bytes32
	BaseFee        uint64
	MixDigest      Bytes32 // aka prev_randao
}

// PayloadAttributes is the request body of engine_forkchoiceUpdatedV1's
// optional payload argument: everything the execution client needs to build
// (or the driver needs to validate) one L2 block.
type PayloadAttributes struct {
	Timestamp             Uint64Quantity   `json:"timestamp"`
	PrevRandao            Bytes32          `json:"prevRandao"`
	SuggestedFeeRecipient common.Address   `json:"suggestedFeeRecipient"`
	Transactions          []Data           `json:"transactions,omitempty"`
	NoTxPool              bool             `json:"noTxPool,omitempty"`
	GasLimit              *Uint64Quantity  `json:"gasLimit,omitempty"`
	EpochID               Epoch            `json:"-"`
	L1InclusionBlock      uint64           `json:"-"`
}

// ExecutionPayload is the block produced or accepted by the execution
// client via the Engine API. Only the V1 fields are modeled: this spec's
// data model has no withdrawals or blob fields.
type ExecutionPayload struct {
	ParentHash    common.Hash    `json:"parentHash"`
	FeeRecipient  common.Address `json:"feeRecipient"`
	StateRoot     Bytes32        `json:"stateRoot"`
	ReceiptsRoot  Bytes32        `json:"receiptsRoot"`
	LogsBloom     hexutil.Bytes  `json:"logsBloom"`
	PrevRandao    Bytes32        `json:"prevRandao"`
	BlockNumber   Uint64Quantity `json:"blockNumber"`
	GasLimit      Uint64Quantity `json:"gasLimit"`
	GasUsed       Uint64Quantity `json:"gasUsed"`
	Timestamp     Uint64Quantity `json:"timestamp"`
	ExtraData     hexutil.Bytes  `json:"extraData"`
	BaseFeePerGas *hexutil.Big   `json:"baseFeePerGas"`
	BlockHash     common.Hash    `json:"blockHash"`
	Transactions  []Data         `json:"transactions"`
}

func (p *ExecutionPayload) ID() BlockID {
	return BlockID{Hash: p.BlockHash, Number: uint64(p.BlockNumber)}
}

func (p *ExecutionPayload) BlockRef() L2BlockRef {
	return L2BlockRef{
		Hash:       p.BlockHash,
		Number:     uint64(p.BlockNumber),
		ParentHash: p.ParentHash,
		Time:       uint64(p.Timestamp),
	}
}

// ForkchoiceState is the (head, safe, finalized) triple communicated to the
// execution client on every engine_forkchoiceUpdatedV1 call.
type ForkchoiceState struct {
	HeadBlockHash      common.Hash `json:"headBlockHash"`
	SafeBlockHash      common.Hash `json:"safeBlockHash"`
	FinalizedBlockHash common.Hash `json:"finalizedBlockHash"`
}

// ExecutionStatus is the status enum returned by engine_newPayloadV1 and as
// part of engine_forkchoiceUpdatedV1's response.
type ExecutionStatus string

const (
	ExecutionValid            ExecutionStatus = "VALID"
	ExecutionInvalid          ExecutionStatus = "INVALID"
	ExecutionSyncing          ExecutionStatus = "SYNCING"
	ExecutionAccepted         ExecutionStatus = "ACCEPTED"
	ExecutionInvalidBlockHash ExecutionStatus = "INVALID_BLOCK_HASH"
)

type PayloadStatusV1 struct {
	Status          ExecutionStatus `json:"status"`
	LatestValidHash *common.Hash    `json:"latestValidHash"`
	ValidationError *string         `json:"validationError"`
}

// PayloadID identifies a block-building job opened by
// engine_forkchoiceUpdatedV1 and later collected with engine_getPayloadV1.
type PayloadID [8]byte

func (id PayloadID) String() string {
	return hexutil.Encode(id[:])
}

func (id PayloadID) MarshalText() ([]byte, error) {
	return []byte(hexutil.Encode(id[:])), nil
}

func (id *PayloadID) UnmarshalText(text []byte) error {
	dec, err := hexutil.Decode(string(text))
	if err != nil {
		return err
	}
	if len(dec) != 8 {
		return fmt.Errorf("expected 8 byte payload ID, got %d bytes", len(dec))
	}
	copy(id[:], dec)
	return nil
}

type ForkchoiceUpdatedResult struct {
	PayloadStatus PayloadStatusV1 `json:"payloadStatus"`
	PayloadID     *PayloadID      `json:"payloadId"`
}

// UnmarshalJSON is only overridden so that a nil payloadId (SYNCING/ACCEPTED
// responses omit it) does not fail decoding of PayloadID's fixed-size text.
func (r *ForkchoiceUpdatedResult) UnmarshalJSON(data []byte) error {
	type alias ForkchoiceUpdatedResult
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = ForkchoiceUpdatedResult(a)
	return nil
}
