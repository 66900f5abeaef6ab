// Package flags defines the node's command-line flags, one per
// documented environment variable, using urfave/cli/v2 the way op-node's
// own flags package does.
package flags

import (
	"github.com/urfave/cli/v2"
)

func prefixEnvVar(name string) []string {
	return []string{name}
}

var (
	NetworkFlag = &cli.StringFlag{
		Name:    "network",
		Usage:   "Predefined network to run (optimism, optimism-goerli, optimism-sepolia, base, base-goerli, base-sepolia) or a path to a custom chain-config JSON file.",
		EnvVars: prefixEnvVar("NETWORK"),
	}
	L1RPCURLFlag = &cli.StringFlag{
		Name:     "l1-rpc-url",
		Usage:    "HTTP JSON-RPC endpoint for an L1 execution client.",
		EnvVars:  prefixEnvVar("L1_RPC_URL"),
		Required: true,
	}
	L2RPCURLFlag = &cli.StringFlag{
		Name:    "l2-rpc-url",
		Usage:   "HTTP JSON-RPC endpoint for the L2 execution client, used for read-only queries and checkpoint sync status polling.",
		EnvVars: prefixEnvVar("EXECUTION_CLIENT"),
	}
	L2EngineURLFlag = &cli.StringFlag{
		Name:     "l2-engine-url",
		Usage:    "Authenticated Engine API endpoint for the L2 execution client.",
		EnvVars:  prefixEnvVar("EXECUTION_CLIENT"),
		Required: true,
	}
	JWTSecretFlag = &cli.StringFlag{
		Name:    "jwt-secret",
		Usage:   "Path to the 32-byte hex JWT secret shared with the L2 execution client's Engine API.",
		EnvVars: prefixEnvVar("JWT_SECRET"),
	}
	RPCPortFlag = &cli.IntFlag{
		Name:    "rpc-port",
		Usage:   "Port to serve this node's Prometheus metrics on.",
		Value:   9545,
		EnvVars: prefixEnvVar("RPC_PORT"),
	}
	SyncModeFlag = &cli.StringFlag{
		Name:    "sync-mode",
		Usage:   "full or checkpoint.",
		Value:   "full",
		EnvVars: prefixEnvVar("SYNC_MODE"),
	}
	CheckpointSyncURLFlag = &cli.StringFlag{
		Name:    "checkpoint-sync-url",
		Usage:   "Trusted L2 RPC endpoint for checkpoint sync. Bootstrap does not query it: the trusted head comes from --checkpoint-hash and sync status is polled on --l2-rpc-url.",
		EnvVars: prefixEnvVar("CHECKPOINT_SYNC_URL"),
	}
	CheckpointHashFlag = &cli.StringFlag{
		Name:    "checkpoint-hash",
		Usage:   "Trusted L2 block hash to point the execution client's head at during checkpoint bootstrap.",
		EnvVars: prefixEnvVar("CHECKPOINT_HASH"),
	}
	DataDirFlag = &cli.StringFlag{
		Name:  "data-dir",
		Usage: "Directory for the node's local block-index database. Not read: the block index is kept in memory and is lost on restart.",
		Value: "./op-node-data",
	}
	DevnetFlag = &cli.BoolFlag{
		Name:  "devnet",
		Usage: "Devnet mode. Not read: startup checks are the same with or without it.",
	}
)

var Flags = []cli.Flag{
	NetworkFlag,
	L1RPCURLFlag,
	L2RPCURLFlag,
	L2EngineURLFlag,
	JWTSecretFlag,
	RPCPortFlag,
	SyncModeFlag,
	CheckpointSyncURLFlag,
	CheckpointHashFlag,
	DataDirFlag,
	DevnetFlag,
}
