// Package driver owns the (unsafe, safe, finalized) head state machine: it
// pulls attributes from the derivation pipeline, submits them to the
// execution client via the Engine API, and reacts to L1 reorgs and
// finality signals.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/opstack-alt/rollup-node/op-node/database"
	"github.com/opstack-alt/rollup-node/op-node/eth"
	"github.com/opstack-alt/rollup-node/op-node/l1"
	"github.com/opstack-alt/rollup-node/op-node/metrics"
	"github.com/opstack-alt/rollup-node/op-node/rollup"
	"github.com/opstack-alt/rollup-node/op-node/rollup/derive"
	"github.com/opstack-alt/rollup-node/op-node/rollup/engine"
)

// EngineAPI is the subset of engine.Client the driver needs, narrowed so
// tests can substitute a fake execution client.
type EngineAPI interface {
	NewPayload(ctx context.Context, payload *eth.ExecutionPayload) (*eth.PayloadStatusV1, error)
	ForkchoiceUpdated(ctx context.Context, state *eth.ForkchoiceState, attrs *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error)
	GetPayload(ctx context.Context, id eth.PayloadID) (*eth.ExecutionPayload, error)
}

var _ EngineAPI = (*engine.Client)(nil)

// Driver is the top-level owning struct: it runs a single event-loop
// goroutine that alternates between advancing the L1 origin, deriving the
// next payload attributes, and pushing them through the Engine API.
type Driver struct {
	log log.Logger
	cfg *rollup.Config

	l1       *l1.Source
	pipeline *derive.Pipeline
	engine   EngineAPI
	store    database.BlockStore
	m        *metrics.Metrics

	head eth.HeadState

	l1PollInterval time.Duration
}

func New(log log.Logger, cfg *rollup.Config, l1Source *l1.Source, pipeline *derive.Pipeline, engineClient EngineAPI, store database.BlockStore, m *metrics.Metrics, l1PollInterval time.Duration) *Driver {
	return &Driver{
		log:            log,
		cfg:            cfg,
		l1:             l1Source,
		pipeline:       pipeline,
		engine:         engineClient,
		store:          store,
		m:              m,
		l1PollInterval: l1PollInterval,
	}
}

// SetHead seeds the driver's head state, typically from the execution
// client's own persisted state at startup, or from checkpoint sync.
func (d *Driver) SetHead(head eth.HeadState) {
	d.head = head
}

func (d *Driver) HeadState() eth.HeadState {
	return d.head
}

// maxL1PollFailures bounds how many consecutive failed L1 polls the driver
// tolerates before giving up on the L1 connection and surfacing a fatal
// stream error, splitting transient RPC hiccups from a persistently
// unreachable L1 endpoint.
const maxL1PollFailures = 8

// Start runs the driver's event loop until ctx is canceled. It never
// returns nil: it exits with ctx.Err(), a fatal derivation error, or a
// fatal L1 connectivity error once maxL1PollFailures consecutive polls have
// failed.
func (d *Driver) Start(ctx context.Context) error {
	l1Timer := time.NewTimer(d.l1PollInterval)
	defer l1Timer.Stop()

	l1Backoff := backoff.NewExponentialBackOff()
	l1Backoff.InitialInterval = d.l1PollInterval
	l1Backoff.MaxInterval = 30 * d.l1PollInterval
	l1Backoff.MaxElapsedTime = 0 // unbounded: maxL1PollFailures decides when to give up, not elapsed time
	l1Failures := 0

	if err := d.l1.Poll(ctx); err != nil {
		d.log.Warn("initial L1 poll failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l1Timer.C:
			next := d.l1PollInterval
			if err := d.l1.Poll(ctx); err != nil {
				l1Failures++
				d.log.Warn("L1 poll failed", "err", err, "consecutive_failures", l1Failures)
				if l1Failures >= maxL1PollFailures {
					return fmt.Errorf("L1 source unreachable after %d consecutive poll failures: %w", l1Failures, err)
				}
				next = l1Backoff.NextBackOff()
			} else {
				l1Failures = 0
				l1Backoff.Reset()
				if err := d.l1.PollFinality(ctx); err != nil {
					d.log.Warn("L1 finality poll failed", "err", err)
				}
			}
			l1Timer.Reset(next)
		case ref := <-d.l1.NewBlock:
			d.pipeline.SetOrigin(ref.Number)
			if d.m != nil {
				d.m.L1Head.Set(float64(ref.Number))
			}
			if err := d.advanceSafeHead(ctx); err != nil {
				if derive.IsCriticalError(err) {
					return fmt.Errorf("critical derivation error: %w", err)
				}
				d.log.Warn("failed to advance safe head", "err", err)
				if d.m != nil {
					d.m.DerivationErrors.WithLabelValues(errorKind(err)).Inc()
				}
			}
		case fin := <-d.l1.Finality:
			d.updateFinalized(fin.Finalized)
		case reorg := <-d.l1.Reorg:
			d.handleReorg(reorg)
		}
	}
}

func errorKind(err error) string {
	switch {
	case derive.IsResetError(err):
		return "reset"
	case derive.IsCriticalError(err):
		return "critical"
	default:
		return "other"
	}
}

// advanceSafeHead repeatedly pulls the next PayloadAttributes from the
// pipeline and applies them, stopping when the pipeline reports it has no
// more data ready (a temporary error) rather than treating that as a
// failure.
func (d *Driver) advanceSafeHead(ctx context.Context) error {
	for {
		nextEpoch := d.peekNextEpoch(ctx)
		attrs, err := d.pipeline.NextAttributes(ctx, d.head.Safe, d.head.Safe.L1Origin, nextEpoch, d.currentL1Number())
		if err != nil {
			if derive.IsTemporaryError(err) {
				return nil
			}
			if derive.IsResetError(err) {
				d.pipeline.Reset()
				return nil
			}
			return err
		}
		if err := d.applyAttributes(ctx, attrs); err != nil {
			return err
		}
		d.pipeline.Prune(d.head.Safe)
	}
}

// currentL1Number reports the highest L1 block the source has observed,
// used to decide whether the safe epoch's sequencing window has expired.
func (d *Driver) currentL1Number() uint64 {
	return d.l1.Head().Number
}

// peekNextEpoch looks up the L1 block one past the current safe epoch, if
// the L1 Source has already observed it; returns nil if not yet available.
func (d *Driver) peekNextEpoch(ctx context.Context) *eth.L1BlockInfo {
	next := eth.BlockID{Number: d.head.Safe.L1Origin.Number + 1}
	info, err := d.l1.L1BlockInfo(ctx, next)
	if err != nil {
		return nil
	}
	return &info
}

// applyAttributes drives one L2 block through the Engine API: open a
// build job, immediately collect it back (NoTxPool is always set, so the
// execution client builds exactly the given transaction list), submit it
// via newPayload, and advance forkchoice.
func (d *Driver) applyAttributes(ctx context.Context, attrs *eth.PayloadAttributes) error {
	fc := &eth.ForkchoiceState{
		HeadBlockHash:      d.head.Unsafe.Hash,
		SafeBlockHash:      d.head.Safe.Hash,
		FinalizedBlockHash: d.head.Finalized.Hash,
	}
	res, err := d.engine.ForkchoiceUpdated(ctx, fc, attrs)
	if err != nil {
		return derive.NewTemporaryError(fmt.Errorf("forkchoiceUpdated failed while starting block build: %w", err))
	}
	if res.PayloadStatus.Status != eth.ExecutionValid {
		return derive.NewTemporaryError(fmt.Errorf("engine rejected forkchoice update: %s", res.PayloadStatus.Status))
	}
	if res.PayloadID == nil {
		return derive.NewCriticalError(fmt.Errorf("engine accepted attributes but returned no payload ID"))
	}

	payload, err := d.engine.GetPayload(ctx, *res.PayloadID)
	if err != nil {
		return derive.NewTemporaryError(fmt.Errorf("getPayload failed: %w", err))
	}

	status, err := d.engine.NewPayload(ctx, payload)
	if err != nil {
		return derive.NewTemporaryError(fmt.Errorf("newPayload failed: %w", err))
	}
	if status.Status != eth.ExecutionValid {
		return derive.NewCriticalError(fmt.Errorf("engine rejected newly built payload: %s", status.Status))
	}

	ref := payload.BlockRef()
	ref.L1Origin = attrs.EpochID
	if attrs.EpochID.Number != d.head.Safe.L1Origin.Number {
		ref.SequenceNumber = 0
	} else {
		ref.SequenceNumber = d.head.Safe.SequenceNumber + 1
	}

	d.head.Safe = ref
	if ref.Number > d.head.Unsafe.Number {
		d.head.Unsafe = ref
	}
	if d.m != nil {
		d.m.SafeHead.Set(float64(d.head.Safe.Number))
		d.m.UnsafeHead.Set(float64(d.head.Unsafe.Number))
		d.m.AttributesBuilt.Inc()
	}

	if d.store != nil {
		txHashes := make([]common.Hash, 0, len(payload.Transactions))
		for _, raw := range payload.Transactions {
			txHashes = append(txHashes, crypto.Keccak256Hash(raw))
		}
		if err := d.store.Put(database.BlockRecord{Ref: ref, IncludedTxHashes: txHashes}); err != nil {
			d.log.Warn("failed to persist derived block", "block", ref, "err", err)
		}
	}

	newFc := &eth.ForkchoiceState{
		HeadBlockHash:      d.head.Unsafe.Hash,
		SafeBlockHash:      d.head.Safe.Hash,
		FinalizedBlockHash: d.head.Finalized.Hash,
	}
	if _, err := d.engine.ForkchoiceUpdated(ctx, newFc, nil); err != nil {
		return derive.NewTemporaryError(fmt.Errorf("forkchoiceUpdated failed while committing block: %w", err))
	}

	d.log.Info("advanced safe head", "block", ref, "epoch", ref.L1Origin)
	return nil
}

// updateFinalized moves the finalized head to the current safe head once
// the safe head's L1 origin is at or before the newly finalized L1 block.
// While the safe head's origin is above it, finalized is left unchanged:
// earlier safe blocks with a finalized origin are not looked up. No
// forkchoice update is sent here. Finalized never passes safe.
func (d *Driver) updateFinalized(l1Finalized eth.L1BlockRef) {
	if d.head.Safe.L1Origin.Number <= l1Finalized.Number {
		d.head.Finalized = d.head.Safe
		if d.m != nil {
			d.m.FinalizedHead.Set(float64(d.head.Finalized.Number))
		}
	}
}

// handleReorg discards all derivation-pipeline state and rewinds heads to
// the last block whose L1 origin is still at or below reorg.To, so the
// driver never continues deriving from a safe head whose origin no longer
// exists on the canonical L1 chain. The driver re-derives forward from
// there on the next poll.
func (d *Driver) handleReorg(reorg l1.ReorgSignal) {
	d.log.Warn("handling L1 reorg", "to", reorg.To)
	d.pipeline.Reset()

	if d.head.Safe.L1Origin.Number > reorg.To.Number {
		d.head.Safe = d.rollbackSafeHead(reorg.To.Number)
	}
	d.head.Unsafe = d.head.Safe

	if d.store != nil {
		if err := d.store.Rollback(d.head.Safe.Number); err != nil {
			d.log.Warn("failed to roll back block store after reorg", "err", err)
		}
	}
}

// rollbackSafeHead walks the block store backward by block number to find
// the highest persisted L2 block whose L1 origin is still at or below
// keepL1. Falls back to the current (stale) safe head if no store is
// wired or no qualifying record is found.
func (d *Driver) rollbackSafeHead(keepL1 uint64) eth.L2BlockRef {
	if d.store == nil {
		return d.head.Safe
	}
	n := d.head.Safe.Number
	for {
		rec, err := d.store.ByNumber(n)
		if err == nil && rec.Ref.L1Origin.Number <= keepL1 {
			return rec.Ref
		}
		if n == 0 {
			break
		}
		n--
	}
	return d.head.Safe
}
