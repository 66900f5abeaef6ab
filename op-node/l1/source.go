// Package l1 watches the L1 chain for new blocks, deposits, batcher
// transactions and system-config updates, and exposes them to the
// derivation pipeline through a small pull interface.
package l1

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/opstack-alt/rollup-node/op-node/eth"
	"github.com/opstack-alt/rollup-node/op-node/rollup"
	"github.com/opstack-alt/rollup-node/op-node/rollup/derive"
)

// configUpdateTopic is the topic0 of ConfigUpdate(uint256,uint8,bytes),
// emitted by the system-config contract whenever a batcher, gas config or
// unsafe-signer field changes.
var configUpdateTopic = crypto.Keccak256Hash([]byte("ConfigUpdate(uint256,uint8,bytes)"))

// FinalityUpdate reports L1 finalized-block progress independently of new
// unsafe blocks, since the two poll at different cadences.
type FinalityUpdate struct {
	Finalized eth.L1BlockRef
}

// ReorgSignal notifies subscribers that the L1 chain reorganized below the
// given block number; all buffered derivation state above it is invalid.
type ReorgSignal struct {
	To eth.L1BlockRef
}

// blockRecord is everything the pipeline may ask for about one L1 block,
// gathered once when the block is first observed.
type blockRecord struct {
	info      eth.L1BlockRef
	l1Info    eth.L1BlockInfo
	sysConfig eth.SystemConfig
	deposits  []*eth.UserDepositEvent
	batcherTx []eth.Data
}

// Source polls an L1 execution client for new blocks and classifies their
// contents for the derivation pipeline: batcher transactions bound for the
// inbox address, deposit events from the deposit contract, and
// SystemConfig updates from the system-config contract.
type Source struct {
	log    log.Logger
	client *ethclient.Client
	cfg    *rollup.Config

	confirmationDepth uint64

	NewBlock  chan eth.L1BlockRef
	Finality  chan FinalityUpdate
	Reorg     chan ReorgSignal

	unfinalized []eth.L1BlockRef // ring of recently seen unsafe blocks, for reorg detection
	records     map[uint64]*blockRecord

	sysConfig eth.SystemConfig // most recently observed system config, carried forward until the next update

	pending []eth.Data // batcher tx calldata queued for DataIter.Next, in block order
}

func NewSource(log log.Logger, client *ethclient.Client, cfg *rollup.Config, confirmationDepth uint64) *Source {
	return &Source{
		log:               log,
		client:            client,
		cfg:               cfg,
		confirmationDepth: confirmationDepth,
		NewBlock:          make(chan eth.L1BlockRef, 2*confirmationDepth+2),
		Finality:          make(chan FinalityUpdate, 2),
		Reorg:             make(chan ReorgSignal, 2),
		records:           make(map[uint64]*blockRecord),
		sysConfig:         cfg.Genesis.SystemConfig,
	}
}

// Head returns the highest L1 block ingested so far.
func (s *Source) Head() eth.L1BlockRef {
	if len(s.unfinalized) == 0 {
		return eth.L1BlockRef{}
	}
	return s.unfinalized[len(s.unfinalized)-1]
}

// SeedFrom primes the reorg-detection ring with a known-good L1 block,
// typically the rollup config's genesis anchor or a checkpoint-sync
// starting point. Poll begins fetching from seed.Number+1.
func (s *Source) SeedFrom(seed eth.L1BlockRef) {
	s.unfinalized = []eth.L1BlockRef{seed}
}

// Poll fetches and ingests the next L1 block after the highest one already
// known, if the execution client has one. The caller invokes it
// periodically (see the L1 poll timer in rollup/driver).
func (s *Source) Poll(ctx context.Context) error {
	head, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch L1 head: %w", err)
	}
	next := uint64(0)
	if len(s.unfinalized) > 0 {
		next = s.unfinalized[len(s.unfinalized)-1].Number + 1
	}
	if head.Number.Uint64() < next {
		return nil // nothing new yet
	}
	for n := next; n <= head.Number.Uint64(); n++ {
		if err := s.ingestBlock(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) ingestBlock(ctx context.Context, number uint64) error {
	header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return fmt.Errorf("failed to fetch header %d: %w", number, err)
	}
	ref := eth.L1BlockRef{Hash: header.Hash(), Number: header.Number.Uint64(), ParentHash: header.ParentHash, Time: header.Time}

	if err := s.checkReorg(ref); err != nil {
		return err
	}

	rec := &blockRecord{
		info: ref,
		l1Info: eth.L1BlockInfo{
			Number:    ref.Number,
			Time:      ref.Time,
			BlockHash: ref.Hash,
			BaseFee:   headerBaseFee(header),
			MixDigest: eth.Bytes32(header.MixDigest),
		},
		sysConfig: s.sysConfig,
	}

	if err := s.scanLogs(ctx, ref, rec); err != nil {
		return err
	}
	if err := s.scanBatcherTxs(ctx, ref, rec); err != nil {
		return err
	}

	s.records[ref.Number] = rec
	s.sysConfig = rec.sysConfig
	s.unfinalized = append(s.unfinalized, ref)
	s.pending = append(s.pending, rec.batcherTx...)

	s.log.Debug("ingested L1 block", "block", ref, "batcher_txs", len(rec.batcherTx), "deposits", len(rec.deposits))
	select {
	case s.NewBlock <- ref:
	default:
		s.log.Warn("NewBlock channel full, dropping notification", "block", ref)
	}
	return nil
}

// checkReorg walks the tail of the unfinalized ring back until it finds the
// point the new block's parent hash matches, and emits a ReorgSignal if
// that point is not the current tip.
func (s *Source) checkReorg(next eth.L1BlockRef) error {
	if len(s.unfinalized) == 0 {
		return nil
	}
	tip := s.unfinalized[len(s.unfinalized)-1]
	if next.ParentHash == tip.Hash {
		return nil
	}
	s.log.Warn("L1 reorg detected", "tip", tip, "next_parent", next.ParentHash)
	i := len(s.unfinalized) - 1
	for i >= 0 && s.unfinalized[i].Hash != next.ParentHash {
		delete(s.records, s.unfinalized[i].Number)
		i--
	}
	if i < 0 {
		return fmt.Errorf("reorg walked back past all known unfinalized blocks, need a deeper resync")
	}
	s.unfinalized = s.unfinalized[:i+1]
	s.pending = nil
	select {
	case s.Reorg <- ReorgSignal{To: s.unfinalized[i]}:
	default:
	}
	return nil
}

// PollFinality checks the execution client's finalized block and reports it
// if it has advanced, pruning fully-finalized entries from the unfinalized
// ring.
func (s *Source) PollFinality(ctx context.Context) error {
	header, err := s.client.HeaderByNumber(ctx, big.NewInt(rpc.FinalizedBlockNumber.Int64()))
	if err != nil {
		return fmt.Errorf("failed to fetch finalized L1 header: %w", err)
	}
	ref := eth.L1BlockRef{Hash: header.Hash(), Number: header.Number.Uint64(), ParentHash: header.ParentHash, Time: header.Time}
	i := 0
	for i < len(s.unfinalized) && s.unfinalized[i].Number < ref.Number {
		i++
	}
	s.unfinalized = s.unfinalized[i:]
	select {
	case s.Finality <- FinalityUpdate{Finalized: ref}:
	default:
	}
	return nil
}

// Next implements derive.DataIter: it drains queued batcher-transaction
// calldata in block order.
func (s *Source) Next(ctx context.Context) (eth.Data, error) {
	if len(s.pending) == 0 {
		return nil, derive.NewTemporaryError(errNoMoreData)
	}
	d := s.pending[0]
	s.pending = s.pending[1:]
	return d, nil
}

// L1BlockInfo returns the ingested block at id.Number. A zero id.Hash
// matches whichever block is recorded at that number.
func (s *Source) L1BlockInfo(ctx context.Context, id eth.BlockID) (eth.L1BlockInfo, error) {
	rec, ok := s.records[id.Number]
	if !ok || (id.Hash != (common.Hash{}) && rec.info.Hash != id.Hash) {
		return eth.L1BlockInfo{}, fmt.Errorf("unknown L1 block %s", id)
	}
	return rec.l1Info, nil
}

func (s *Source) SystemConfig(ctx context.Context, id eth.BlockID) (eth.SystemConfig, error) {
	rec, ok := s.records[id.Number]
	if !ok || rec.info.Hash != id.Hash {
		return eth.SystemConfig{}, fmt.Errorf("unknown L1 block %s", id)
	}
	return rec.sysConfig, nil
}

func (s *Source) Deposits(ctx context.Context, id eth.BlockID) ([]*eth.UserDepositEvent, error) {
	rec, ok := s.records[id.Number]
	if !ok || rec.info.Hash != id.Hash {
		return nil, fmt.Errorf("unknown L1 block %s", id)
	}
	return rec.deposits, nil
}

func (s *Source) scanLogs(ctx context.Context, ref eth.L1BlockRef, rec *blockRecord) error {
	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		BlockHash: &ref.Hash,
		Addresses: []common.Address{s.cfg.DepositContractAddress, s.cfg.L1SystemConfigAddress},
	})
	if err != nil {
		return fmt.Errorf("failed to fetch logs for block %s: %w", ref, err)
	}
	for i := range logs {
		lg := logs[i]
		switch {
		case lg.Address == s.cfg.DepositContractAddress && len(lg.Topics) > 0 && lg.Topics[0] == eth.DepositEventABIHash:
			dep, ok := eth.LogUnmarshalDepositLogEvent(s.log, &lg)
			if !ok {
				continue
			}
			rec.deposits = append(rec.deposits, dep)
		case lg.Address == s.cfg.L1SystemConfigAddress && len(lg.Topics) > 0 && lg.Topics[0] == configUpdateTopic:
			if err := applyConfigUpdate(&rec.sysConfig, lg); err != nil {
				s.log.Warn("failed to apply system config update, keeping previous config", "err", err, "tx", lg.TxHash)
			}
		}
	}
	return nil
}

func (s *Source) scanBatcherTxs(ctx context.Context, ref eth.L1BlockRef, rec *blockRecord) error {
	block, err := s.client.BlockByHash(ctx, ref.Hash)
	if err != nil {
		return fmt.Errorf("failed to fetch block body %s: %w", ref, err)
	}
	signer := s.cfg.L1Signer()
	for _, tx := range block.Transactions() {
		if tx.To() == nil || *tx.To() != s.cfg.BatchInboxAddress {
			continue
		}
		sender, err := types.Sender(signer, tx)
		if err != nil {
			s.log.Debug("could not recover batcher tx sender, skipping", "tx", tx.Hash(), "err", err)
			continue
		}
		if sender != rec.sysConfig.BatcherAddr {
			continue
		}
		rec.batcherTx = append(rec.batcherTx, tx.Data())
	}
	return nil
}

func headerBaseFee(h *types.Header) uint64 {
	if h.BaseFee == nil {
		return 0
	}
	return h.BaseFee.Uint64()
}

var errNoMoreData = fmt.Errorf("l1: no more batcher data buffered")
