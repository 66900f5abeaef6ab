// Package chaincfg resolves a --network flag value to a rollup.Config,
// either from a small embedded table of named networks or a JSON file on
// disk for custom and devnet deployments.
package chaincfg

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/opstack-alt/rollup-node/op-node/eth"
	"github.com/opstack-alt/rollup-node/op-node/rollup"
)

// depositContractAddress is the OP Stack deposit contract's proxy address,
// the same across every chain embedded here; batch inboxes, batchers and
// genesis anchors differ per chain.
var depositContractAddress = common.HexToAddress("0xbEb5Fc579115071764c7423A4f12eDde41f106Ed")

var (
	batchInboxOptimism = common.HexToAddress("0xFF00000000000000000000000000000000000A")
	batchInboxBase     = common.HexToAddress("0xFF00000000000000000000000000000000845336")
)

func baseConfig(l1ChainID, l2ChainID int64, batchInbox, sysConfigAddr, batcher common.Address, l1Start, l2Genesis uint64, l1StartHash, l2GenesisHash common.Hash) *rollup.Config {
	return &rollup.Config{
		Genesis: rollup.Genesis{
			L1:     eth.BlockID{Number: l1Start, Hash: l1StartHash},
			L2:     eth.BlockID{Number: l2Genesis, Hash: l2GenesisHash},
			L2Time: 0,
			SystemConfig: eth.SystemConfig{
				BatcherAddr: batcher,
				GasLimit:    30_000_000,
			},
		},
		BlockTime:              2,
		MaxSequencerDrift:      600,
		SeqWindowSize:          3600,
		ChannelTimeout:         300,
		L1ChainID:              big.NewInt(l1ChainID),
		L2ChainID:              big.NewInt(l2ChainID),
		BatchInboxAddress:      batchInbox,
		DepositContractAddress: depositContractAddress,
		L1SystemConfigAddress:  sysConfigAddr,
		MaxChannelSize:         100_000,
	}
}

var named = map[string]func() *rollup.Config{
	"optimism": func() *rollup.Config {
		return baseConfig(1, 10, batchInboxOptimism,
			common.HexToAddress("0x229047fed2591dbec1eF1118d64F7aF3dB9EB290"),
			common.HexToAddress("0x6887246668a3b87F54DeB3b94Ba47a6f63F32985"),
			17_422_590, 105_235_063,
			common.HexToHash("0x438335a20d98863a4c0c97999eb2481921ccd28553eac6f913af7c12aec0410"),
			common.HexToHash("0xdbf6a80fef073de06add9b0d14026d6e5a86c85f6d102c36d3d8e9cf89c2afd"))
	},
	"optimism-goerli": func() *rollup.Config {
		return baseConfig(5, 420, batchInboxOptimism,
			common.HexToAddress("0xAe851f927Ee40dE99aaBb7461C00f9622ab91d60"),
			common.HexToAddress("0x7431310e026B69BFC676C0013E12A1A11411EEc9"),
			8_300_214, 4_061_224,
			common.HexToHash("0x6ffc1bf3754c01f6bb9fe057c1578b87a8571ce2e9be5ca14bace6eccfd336c"),
			common.HexToHash("0x0f783549ea4313b784eadd9b8e8a69913b368b7366363ea814d7707ac505175"))
	},
	"optimism-sepolia": func() *rollup.Config {
		return baseConfig(11_155_111, 11_155_420, batchInboxOptimism,
			common.HexToAddress("0x034edD2A225f7f429A63E0f1D2084B9E0A93b538"),
			common.HexToAddress("0x8F23BB38F531600e5d8FDDaAEC41F13FaB46E98c"),
			4_071_408, 0,
			common.HexToHash("0x48f520cf4ddaf34c8336e6e490632ea3cf1e5e93b1b2c1c3d3f9d5a9c7bfb44b"),
			common.HexToHash("0x102de6ffb001480cc9b8b548fd05c34cd4f46ae4aa91759393db90ea0409887"))
	},
	"base": func() *rollup.Config {
		return baseConfig(1, 8453, batchInboxBase,
			common.HexToAddress("0x73a79Fab69143498Ed3712e519A88a918e1f4072"),
			common.HexToAddress("0x5050F69a9786F081509234F1a7F4684b5E5b76C9"),
			17_481_768, 0,
			common.HexToHash("0xf712aa9241cc24369b143cf6dce85f0902a9731e70d66818a3a5845b296e486"),
			common.HexToHash("0x5c13d307623a926cd31415036c8b7fa14572f9dac64528e857a470511fc3034"))
	},
	"base-goerli": func() *rollup.Config {
		return baseConfig(5, 84531, batchInboxBase,
			common.HexToAddress("0xb15eee87c2c4f0d949950781f6dfc4a6c8bdbf3d"),
			common.HexToAddress("0x8975f9F9E6b2478a4E1B31bBBB4A5c04f2c62bA0"),
			8_410_981, 0,
			common.HexToHash("0x0dcc9e089e30b90ddfc55be9a37fd15c2966651e4526bffe8f4d3e19a6f9e39b"),
			common.HexToHash("0xa3ab140f15ea7f7443a4702da24503875254feca1e4fe21edb39e1f722fa168"))
	},
	"base-sepolia": func() *rollup.Config {
		return baseConfig(11_155_111, 84532, batchInboxBase,
			common.HexToAddress("0xf272670eb55e895584501d564AfEB048bEd26194"),
			common.HexToAddress("0x6cDEbe940BC0F26850285cAca097C11c33103E47"),
			4_370_868, 0,
			common.HexToHash("0x498866be9944af52d05de3226ec02c1a52edb43dee3e8ee9979d9e19b04c1ef"),
			common.HexToHash("0x0dcc9e089e30b90ddfc55be9a37fd15c2966651e4526bffe8f4d3e19a6f9e39b"))
	},
}

// AvailableNetworks lists every named network this node recognizes without
// a --network path argument.
func AvailableNetworks() []string {
	names := make([]string, 0, len(named))
	for n := range named {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ChainByName resolves a network name to its rollup.Config. "custom" and
// "devnet" are not in the embedded table: callers should treat --network
// as a JSON file path in that case and use LoadCustom instead.
func ChainByName(name string) (*rollup.Config, error) {
	ctor, ok := named[name]
	if !ok {
		return nil, fmt.Errorf("unrecognized network %q, available: %v", name, AvailableNetworks())
	}
	return ctor(), nil
}

// LoadCustom reads a chain-config JSON file from disk, per the schema
// documented for --network <path>.
func LoadCustom(path string) (*rollup.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain config %q: %w", path, err)
	}
	var cfg rollup.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse chain config %q: %w", path, err)
	}
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid chain config %q: %w", path, err)
	}
	return &cfg, nil
}
