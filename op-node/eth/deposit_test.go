package eth

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestUserDepositSourceHashIsStableAndDomainSeparated(t *testing.T) {
	blockHash := common.HexToHash("0xaaaa")
	h1 := UserDepositSourceHash(blockHash, 0)
	h2 := UserDepositSourceHash(blockHash, 0)
	require.Equal(t, h1, h2, "source hash must be deterministic")

	h3 := UserDepositSourceHash(blockHash, 1)
	require.NotEqual(t, h1, h3, "different log index must produce a different source hash")

	l1Info := L1InfoDepositSourceHash(blockHash, 0)
	require.NotEqual(t, h1, l1Info, "user and L1-info domains must never collide")
}

func TestL1InfoDepositSourceHashVariesBySequenceNumber(t *testing.T) {
	blockHash := common.HexToHash("0xbbbb")
	a := L1InfoDepositSourceHash(blockHash, 0)
	b := L1InfoDepositSourceHash(blockHash, 1)
	require.NotEqual(t, a, b)
}

func TestL1InfoDepositBuildsSystemDepositTx(t *testing.T) {
	block := L1BlockInfo{
		Number:    100,
		Time:      1000,
		BlockHash: common.HexToHash("0xcccc"),
		BaseFee:   7,
	}
	sysCfg := SystemConfig{
		Overhead: Bytes32{1},
		Scalar:   Bytes32{2},
	}
	tx, err := L1InfoDeposit(0, block, sysCfg)
	require.NoError(t, err)
	require.True(t, tx.IsSystemTransaction)
	require.Equal(t, L1InfoDepositerAddress, tx.From)
	require.Equal(t, &L1BlockAddress, tx.To)
	require.Equal(t, L1InfoDepositSourceHash(block.BlockHash, 0), tx.SourceHash)
	require.True(t, len(tx.Data) >= 4+32*8)
	require.Equal(t, l1InfoFuncBytes4, tx.Data[:4])
}

func TestUserDepositEventToDepositTx(t *testing.T) {
	dep := &UserDepositEvent{
		From:       common.HexToAddress("0x1"),
		To:         common.HexToAddress("0x2"),
		Mint:       nil,
		Value:      nil,
		Gas:        21000,
		IsCreation: false,
		Data:       []byte{0xde, 0xad},
		SourceHash: common.HexToHash("0xdead"),
	}
	tx := dep.UserDeposit()
	require.False(t, tx.IsSystemTransaction)
	require.NotNil(t, tx.To)
	require.Equal(t, dep.To, *tx.To)
	require.Equal(t, dep.SourceHash, tx.SourceHash)

	dep.IsCreation = true
	createTx := dep.UserDeposit()
	require.Nil(t, createTx.To)
}

func TestUnmarshalDepositLogEventRejectsWrongTopic(t *testing.T) {
	ev := &types.Log{
		Topics: []common.Hash{common.HexToHash("0xnot-the-right-topic"), {}, {}, {}},
		Data:   make([]byte, 128),
	}
	_, err := UnmarshalDepositLogEvent(ev)
	require.Error(t, err)
}

func TestEncodeDepositTxRoundTripsThroughTypedEnvelope(t *testing.T) {
	tx := &types.DepositTx{
		SourceHash: common.HexToHash("0x1"),
		From:       common.HexToAddress("0x2"),
		Mint:       nil,
		Value:      big.NewInt(0),
		Gas:        21000,
	}
	enc, err := EncodeDepositTx(tx)
	require.NoError(t, err)
	require.NotEmpty(t, enc)

	var decoded types.Transaction
	require.NoError(t, decoded.UnmarshalBinary(enc))
	require.Equal(t, types.DepositTxType, int(decoded.Type()))
}
