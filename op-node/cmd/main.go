// Command op-node runs an independent OP Stack rollup node: it derives
// L2 blocks from L1 calldata and drives an execution client's Engine API,
// without executing transactions or participating in sequencing itself.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/urfave/cli/v2"

	"github.com/opstack-alt/rollup-node/op-node/chaincfg"
	"github.com/opstack-alt/rollup-node/op-node/database"
	"github.com/opstack-alt/rollup-node/op-node/eth"
	"github.com/opstack-alt/rollup-node/op-node/flags"
	"github.com/opstack-alt/rollup-node/op-node/l1"
	"github.com/opstack-alt/rollup-node/op-node/metrics"
	"github.com/opstack-alt/rollup-node/op-node/rollup"
	"github.com/opstack-alt/rollup-node/op-node/rollup/derive"
	"github.com/opstack-alt/rollup-node/op-node/rollup/driver"
	"github.com/opstack-alt/rollup-node/op-node/rollup/engine"
	"github.com/opstack-alt/rollup-node/op-node/rollup/sync"
	opclient "github.com/opstack-alt/rollup-node/op-service/client"
	oplog "github.com/opstack-alt/rollup-node/op-service/log"
	oprpc "github.com/opstack-alt/rollup-node/op-service/rpc"
)

// exit codes match the documented contract: 0 clean shutdown, 1 config
// error, 2 unrecoverable runtime error, 130 signal interrupt.
const (
	exitOK           = 0
	exitConfigError  = 1
	exitRuntimeError = 2
	exitInterrupted  = 130
)

func main() {
	app := &cli.App{
		Name:   "op-node",
		Usage:  "independent OP Stack rollup node",
		Flags:  flags.Flags,
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		if ec, ok := err.(cli.ExitCoder); ok {
			os.Exit(ec.ExitCode())
		}
		// run wraps its own errors with cli.Exit, so anything else comes
		// from flag parsing.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}
}

func run(cliCtx *cli.Context) error {
	logger := log.NewLogger(oplog.LogfmtMsHandler(os.Stdout))
	log.SetDefault(logger)

	cfg, err := loadRollupConfig(cliCtx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("config error: %v", err), exitConfigError)
	}
	if err := cfg.Check(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid chain config: %v", err), exitConfigError)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := runNode(ctx, logger, cfg, cliCtx); err != nil {
		if ctx.Err() != nil {
			return cli.Exit("interrupted", exitInterrupted)
		}
		return cli.Exit(fmt.Sprintf("runtime error: %v", err), exitRuntimeError)
	}
	return nil
}

func loadRollupConfig(cliCtx *cli.Context) (*rollup.Config, error) {
	network := cliCtx.String(flags.NetworkFlag.Name)
	if network == "" {
		return nil, fmt.Errorf("--network is required")
	}
	if cfg, err := chaincfg.ChainByName(network); err == nil {
		return cfg, nil
	}
	return chaincfg.LoadCustom(network)
}

func runNode(ctx context.Context, logger log.Logger, cfg *rollup.Config, cliCtx *cli.Context) error {
	l1Client, err := opclient.DialEthClientWithRetry(ctx, logger, cliCtx.String(flags.L1RPCURLFlag.Name), opclient.DefaultRetryConfig())
	if err != nil {
		return fmt.Errorf("failed to dial L1 RPC: %w", err)
	}

	jwtSecret, err := oprpc.ObtainJWTSecret(logger, cliCtx.String(flags.JWTSecretFlag.Name), true)
	if err != nil {
		return fmt.Errorf("failed to obtain JWT secret: %w", err)
	}
	engineClient, err := engine.Dial(ctx, logger, cliCtx.String(flags.L2EngineURLFlag.Name), jwtSecret)
	if err != nil {
		return fmt.Errorf("failed to dial L2 engine: %w", err)
	}
	defer engineClient.Close()

	l1Source := l1.NewSource(logger, l1Client, cfg, 10)
	genesisRef := eth.L1BlockRef{Hash: cfg.Genesis.L1.Hash, Number: cfg.Genesis.L1.Number}
	l1Source.SeedFrom(genesisRef)

	pipeline := derive.NewPipeline(logger, cfg, l1Source, l1Source)

	m := metrics.NewMetrics()
	go serveMetrics(logger, m, cliCtx.Int(flags.RPCPortFlag.Name))

	store := database.NewMemStore()
	drv := driver.New(logger, cfg, l1Source, pipeline, engineClient, store, m, 2*time.Second)

	genesisL2 := eth.L2BlockRef{
		Hash:     cfg.Genesis.L2.Hash,
		Number:   cfg.Genesis.L2.Number,
		Time:     cfg.Genesis.L2Time,
		L1Origin: cfg.Genesis.L1,
	}
	drv.SetHead(eth.HeadState{Unsafe: genesisL2, Safe: genesisL2, Finalized: genesisL2})

	if sync.Mode(cliCtx.String(flags.SyncModeFlag.Name)) == sync.ModeCheckpoint {
		if err := bootstrapCheckpoint(ctx, logger, cliCtx, engineClient, genesisL2, drv); err != nil {
			return fmt.Errorf("checkpoint bootstrap failed: %w", err)
		}
	}

	logger.Info("starting derivation", "network", cliCtx.String(flags.NetworkFlag.Name), "l2_chain_id", cfg.L2ChainID)
	return drv.Start(ctx)
}

func bootstrapCheckpoint(ctx context.Context, logger log.Logger, cliCtx *cli.Context, engineClient sync.EngineAPI, genesisL2 eth.L2BlockRef, drv *driver.Driver) error {
	l2Client, err := gethrpc.DialContext(ctx, cliCtx.String(flags.L2RPCURLFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to dial L2 RPC for sync status: %w", err)
	}
	defer l2Client.Close()

	cpCfg := sync.CheckpointConfig{
		TrustedRPCURL: cliCtx.String(flags.CheckpointSyncURLFlag.Name),
		TrustedHash:   common.HexToHash(cliCtx.String(flags.CheckpointHashFlag.Name)),
	}
	safe, err := sync.Bootstrap(ctx, logger, engineClient, l2Client, cpCfg, genesisL2)
	if err != nil {
		return err
	}
	drv.SetHead(eth.HeadState{Unsafe: safe, Safe: safe, Finalized: genesisL2})
	return nil
}

func serveMetrics(logger log.Logger, m *metrics.Metrics, port int) {
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(port))
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "err", err)
	}
}
