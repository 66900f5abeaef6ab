package eth

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
)

// DepositEventABIHash is the topic0 of TransactionDeposited(address,address,uint256,bytes),
// emitted by the deposit-contract on L1 for every user deposit.
var DepositEventABIHash = crypto.Keccak256Hash([]byte("TransactionDeposited(address,address,uint256,bytes)"))

// L1AttributesFuncSignature is the setL1BlockValues selector accepted by the
// L1Block predeploy on L2.
const L1AttributesFuncSignature = "setL1BlockValues(uint64,uint64,uint256,bytes32,uint64,bytes32,uint256,uint256)"

// L1InfoDepositerAddress is the sender that appears on the L1-attributes
// deposit transaction. It is not a real account: the execution client
// accepts it without a signature check, same as any other deposit tx.
var L1InfoDepositerAddress = common.HexToAddress("0xdeaddeaddeaddeaddeaddeaddeaddeaddead0001")

// L1BlockAddress is the L1Block predeploy on L2 that receives the
// attributes deposit call.
var L1BlockAddress = common.HexToAddress("0x4200000000000000000000000000000000000015")

var l1InfoFuncBytes4 = crypto.Keccak256([]byte(L1AttributesFuncSignature))[:4]

// UserDepositEvent is the decoded form of a TransactionDeposited log emitted
// by the deposit contract, one step before it is turned into a DepositTx.
type UserDepositEvent struct {
	From        common.Address
	To          common.Address
	Mint        *big.Int
	Value       *big.Int
	Gas         uint64
	IsCreation  bool
	Data        []byte
	LogIndex    uint
	BlockHash   common.Hash
	SourceHash  common.Hash
}

// UnmarshalDepositLogEvent decodes a TransactionDeposited log per the
// deposit-contract ABI: opaqueData is a packed (mint uint256, value uint256,
// gasLimit uint64, isCreation bool, data bytes) tuple, version 0.
func UnmarshalDepositLogEvent(ev *types.Log) (*UserDepositEvent, error) {
	if len(ev.Topics) != 4 {
		return nil, fmt.Errorf("expected 4 event topics (event identity, from, to, version), got %d", len(ev.Topics))
	}
	if ev.Topics[0] != DepositEventABIHash {
		return nil, fmt.Errorf("invalid deposit event selector: %s, expected %s", ev.Topics[0], DepositEventABIHash)
	}
	if ev.Topics[3] != (common.Hash{}) {
		return nil, fmt.Errorf("unsupported deposit event version: %s", ev.Topics[3])
	}
	if len(ev.Data) < 64 {
		return nil, fmt.Errorf("incomplete opaqueData slot header, got %d bytes", len(ev.Data))
	}
	from := common.BytesToAddress(ev.Topics[1][12:])
	to := common.BytesToAddress(ev.Topics[2][12:])

	var opaqueContentOffset uint64
	if err := solidityUint256AsUint64(ev.Data[0:32], &opaqueContentOffset); err != nil {
		return nil, fmt.Errorf("invalid opaqueData offset: %w", err)
	}
	if opaqueContentOffset != 32 {
		return nil, fmt.Errorf("bad opaqueData offset, must be 32, got %d", opaqueContentOffset)
	}
	var opaqueContentLength uint64
	if err := solidityUint256AsUint64(ev.Data[32:64], &opaqueContentLength); err != nil {
		return nil, fmt.Errorf("invalid opaqueData length: %w", err)
	}
	if opaqueContentLength+64 > uint64(len(ev.Data)) {
		return nil, fmt.Errorf("opaqueData length %d exceeds remaining log data", opaqueContentLength)
	}
	opaqueData := ev.Data[64 : 64+opaqueContentLength]
	if len(opaqueData) < 32+32+8+1 {
		return nil, fmt.Errorf("opaqueData too short, got %d bytes", len(opaqueData))
	}

	dep := &UserDepositEvent{
		From:      from,
		To:        to,
		LogIndex:  ev.Index,
		BlockHash: ev.BlockHash,
	}
	offset := 0
	dep.Mint = new(big.Int).SetBytes(opaqueData[offset : offset+32])
	offset += 32
	dep.Value = new(big.Int).SetBytes(opaqueData[offset : offset+32])
	offset += 32
	dep.Gas = new(big.Int).SetBytes(opaqueData[offset : offset+8]).Uint64()
	offset += 8
	if opaqueData[offset] != 0 {
		dep.IsCreation = true
	}
	offset += 1
	dep.Data = opaqueData[offset:]

	dep.SourceHash = UserDepositSourceHash(ev.BlockHash, ev.Index)
	return dep, nil
}

func solidityUint256AsUint64(word []byte, out *uint64) error {
	v := new(big.Int).SetBytes(word)
	if !v.IsUint64() {
		return fmt.Errorf("value %s overflows uint64", v)
	}
	*out = v.Uint64()
	return nil
}

// DepositSourceDomain distinguishes user deposits from the single
// L1-attributes deposit per L2 block, per the source-hash scheme.
type DepositSourceDomain uint8

const (
	UserDepositSourceDomain DepositSourceDomain = 0
	L1InfoDepositSourceDomain DepositSourceDomain = 1
)

// UserDepositSourceHash derives a deposit's source-hash as
// keccak256(bytes32(uint256(0)) ++ keccak256(l1BlockHash ++ bytes32(uint256(logIndex)))).
func UserDepositSourceHash(l1BlockHash common.Hash, logIndex uint) common.Hash {
	var innerBuf [64]byte
	copy(innerBuf[:32], l1BlockHash[:])
	new(big.Int).SetUint64(uint64(logIndex)).FillBytes(innerBuf[32:64])
	inner := crypto.Keccak256(innerBuf[:])

	var outerBuf [64]byte
	// domain is 0, left as zero bytes
	copy(outerBuf[32:], inner)
	return crypto.Keccak256Hash(outerBuf[:])
}

// L1InfoDepositSourceHash derives the source-hash of the L1-attributes
// deposit for a given epoch, keyed by the L1 epoch hash and the L2 sequence
// number within that epoch (domain=1).
func L1InfoDepositSourceHash(l1BlockHash common.Hash, seqNumber uint64) common.Hash {
	var innerBuf [64]byte
	copy(innerBuf[:32], l1BlockHash[:])
	new(big.Int).SetUint64(seqNumber).FillBytes(innerBuf[32:64])
	inner := crypto.Keccak256(innerBuf[:])

	var outerBuf [64]byte
	outerBuf[31] = byte(L1InfoDepositSourceDomain)
	copy(outerBuf[32:], inner)
	return crypto.Keccak256Hash(outerBuf[:])
}

// L1InfoDeposit builds the first transaction of every L2 block: a deposit
// that calls L1Block.setL1BlockValues with the L1 origin's header fields
// and the system config values in effect for this epoch.
func L1InfoDeposit(seqNumber uint64, block L1BlockInfo, sysCfg SystemConfig) (*types.DepositTx, error) {
	data := make([]byte, 0, 4+32*8)
	data = append(data, l1InfoFuncBytes4...)

	writeUint64 := func(v uint64) {
		var b [32]byte
		new(big.Int).SetUint64(v).FillBytes(b[:])
		data = append(data, b[:]...)
	}
	writeBytes32 := func(v Bytes32) {
		data = append(data, v[:]...)
	}
	writeBig := func(v *big.Int) {
		var b [32]byte
		v.FillBytes(b[:])
		data = append(data, b[:]...)
	}

	writeUint64(block.Number)
	writeUint64(block.Time)
	writeBig(new(big.Int).SetUint64(block.BaseFee))
	writeBytes32(Bytes32(block.BlockHash))
	writeUint64(seqNumber)
	var batcherHash Bytes32
	copy(batcherHash[12:], sysCfg.BatcherAddr[:])
	writeBytes32(batcherHash)
	writeBig(new(big.Int).SetBytes(sysCfg.Overhead[:]))
	writeBig(new(big.Int).SetBytes(sysCfg.Scalar[:]))

	source := L1InfoDepositSourceHash(block.BlockHash, seqNumber)

	return &types.DepositTx{
		SourceHash:          source,
		From:                L1InfoDepositerAddress,
		To:                  &L1BlockAddress,
		Mint:                nil,
		Value:                big.NewInt(0),
		Gas:                  150_000,
		IsSystemTransaction:  true,
		Data:                 data,
	}, nil
}

// UserDeposit converts a decoded deposit-contract log into the DepositTx
// envelope go-ethereum accepts as a block-inclusion transaction.
func (dep *UserDepositEvent) UserDeposit() *types.DepositTx {
	tx := &types.DepositTx{
		SourceHash:          dep.SourceHash,
		From:                dep.From,
		Mint:                dep.Mint,
		Value:               dep.Value,
		Gas:                 dep.Gas,
		IsSystemTransaction: false,
		Data:                dep.Data,
	}
	if !dep.IsCreation {
		to := dep.To
		tx.To = &to
	}
	return tx
}

// EncodeDepositTx wraps a DepositTx in the typed-transaction envelope and
// RLP-encodes it, ready for inclusion in a PayloadAttributes transaction list.
func EncodeDepositTx(tx *types.DepositTx) (Data, error) {
	t := types.NewTx(tx)
	return t.MarshalBinary()
}

// LogUnmarshalDepositLogEvent is a tolerant helper for L1 sources that may
// see malformed logs at the deposit-contract address from unrelated events
// sharing the same topic0 space; callers log and skip on error rather than
// treating it as fatal.
func LogUnmarshalDepositLogEvent(logger log.Logger, ev *types.Log) (*UserDepositEvent, bool) {
	dep, err := UnmarshalDepositLogEvent(ev)
	if err != nil {
		logger.Warn("skipping malformed deposit log", "tx", ev.TxHash, "index", ev.Index, "err", err)
		return nil, false
	}
	return dep, true
}
