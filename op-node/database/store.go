// Package database defines the narrow read/write contract the Driver uses
// to persist derived L2 blocks, and provides an in-memory implementation
// for tests and local runs. A real embedded store is out of scope: this
// node consumes the contract, it does not ship a production database.
package database

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/opstack-alt/rollup-node/op-node/eth"
)

// ErrNotFound is returned by every lookup method when no matching record
// exists.
var ErrNotFound = errors.New("database: record not found")

// BlockRecord is the persisted form of one derived L2 block: enough to
// reconstruct its L2BlockRef and to answer "which L2 block came from L1
// block X" without re-deriving.
type BlockRecord struct {
	Ref          eth.L2BlockRef
	IncludedTxHashes []common.Hash
}

// BlockStore is the contract the Driver persists safe/finalized head
// progress through. Implementations must support lookups by primary key
// (hash) as well as the secondary indices used by RPC/debug tooling: by
// number, by L1-origin, by timestamp, and by an included transaction hash.
type BlockStore interface {
	Put(rec BlockRecord) error

	ByHash(hash common.Hash) (BlockRecord, error)
	ByNumber(number uint64) (BlockRecord, error)
	ByL1Origin(l1Hash common.Hash) (BlockRecord, error)
	ByTimestamp(ts uint64) (BlockRecord, error)
	ByIncludedTx(txHash common.Hash) (BlockRecord, error)

	// Rollback deletes every record with number > keepBelow, used to
	// unwind buffered state after a reorg.
	Rollback(keepBelow uint64) error
}
