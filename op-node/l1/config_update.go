package l1

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/opstack-alt/rollup-node/op-node/eth"
)

// systemConfigUpdateType mirrors the enum the system-config contract emits
// as the second indexed topic of ConfigUpdate.
type systemConfigUpdateType uint8

const (
	sysCfgUpdateBatcher           systemConfigUpdateType = 0
	sysCfgUpdateGasConfig         systemConfigUpdateType = 1
	sysCfgUpdateGasLimit          systemConfigUpdateType = 2
	sysCfgUpdateUnsafeBlockSigner systemConfigUpdateType = 3
)

// applyConfigUpdate decodes a single ConfigUpdate log and folds it into
// cfg. version and updateType are indexed topics; the ABI-encoded payload
// is the sole non-indexed event field.
func applyConfigUpdate(cfg *eth.SystemConfig, lg types.Log) error {
	if len(lg.Topics) < 3 {
		return fmt.Errorf("expected 3 topics on ConfigUpdate, got %d", len(lg.Topics))
	}
	updateType := systemConfigUpdateType(lg.Topics[2][31])

	// Every ConfigUpdate payload is ABI-encoded as a single `bytes` value:
	// a 32-byte offset (always 0x20), a 32-byte length, then the payload
	// itself, word-aligned.
	if len(lg.Data) < 64 {
		return fmt.Errorf("config update payload too short: %d bytes", len(lg.Data))
	}
	length := new(big.Int).SetBytes(lg.Data[32:64])
	if !length.IsUint64() {
		return fmt.Errorf("config update payload length overflows uint64")
	}
	n := length.Uint64()
	if uint64(len(lg.Data)) < 64+n {
		return fmt.Errorf("config update payload length %d exceeds available data", n)
	}
	payload := lg.Data[64 : 64+n]

	switch updateType {
	case sysCfgUpdateBatcher:
		if len(payload) < 32 {
			return fmt.Errorf("batcher update payload too short")
		}
		cfg.BatcherAddr = common.BytesToAddress(payload[12:32])
	case sysCfgUpdateGasConfig:
		if len(payload) < 64 {
			return fmt.Errorf("gas config update payload too short")
		}
		copy(cfg.Overhead[:], payload[0:32])
		copy(cfg.Scalar[:], payload[32:64])
	case sysCfgUpdateGasLimit:
		if len(payload) < 32 {
			return fmt.Errorf("gas limit update payload too short")
		}
		l := new(big.Int).SetBytes(payload[0:32])
		if !l.IsUint64() {
			return fmt.Errorf("gas limit update overflows uint64")
		}
		cfg.GasLimit = l.Uint64()
	case sysCfgUpdateUnsafeBlockSigner:
		// The unsafe-block-signer address gates p2p gossip validation,
		// which this node does not implement; the update is accepted and
		// ignored so decoding of later config fields is not disrupted.
	default:
		return fmt.Errorf("unrecognized system config update type %d", updateType)
	}
	return nil
}
