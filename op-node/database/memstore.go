package database

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemStore is an in-memory BlockStore, sufficient for tests and local
// devnet runs where losing history on restart is acceptable.
type MemStore struct {
	mu sync.RWMutex

	byHash      map[common.Hash]BlockRecord
	byNumber    map[uint64]common.Hash
	byL1Origin  map[common.Hash]common.Hash
	byTimestamp map[uint64]common.Hash
	byTx        map[common.Hash]common.Hash
}

func NewMemStore() *MemStore {
	return &MemStore{
		byHash:      make(map[common.Hash]BlockRecord),
		byNumber:    make(map[uint64]common.Hash),
		byL1Origin:  make(map[common.Hash]common.Hash),
		byTimestamp: make(map[uint64]common.Hash),
		byTx:        make(map[common.Hash]common.Hash),
	}
}

func (m *MemStore) Put(rec BlockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byHash[rec.Ref.Hash] = rec
	m.byNumber[rec.Ref.Number] = rec.Ref.Hash
	m.byL1Origin[rec.Ref.L1Origin.Hash] = rec.Ref.Hash
	m.byTimestamp[rec.Ref.Time] = rec.Ref.Hash
	for _, tx := range rec.IncludedTxHashes {
		m.byTx[tx] = rec.Ref.Hash
	}
	return nil
}

func (m *MemStore) ByHash(hash common.Hash) (BlockRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byHash[hash]
	if !ok {
		return BlockRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemStore) ByNumber(number uint64) (BlockRecord, error) {
	m.mu.RLock()
	hash, ok := m.byNumber[number]
	m.mu.RUnlock()
	if !ok {
		return BlockRecord{}, ErrNotFound
	}
	return m.ByHash(hash)
}

func (m *MemStore) ByL1Origin(l1Hash common.Hash) (BlockRecord, error) {
	m.mu.RLock()
	hash, ok := m.byL1Origin[l1Hash]
	m.mu.RUnlock()
	if !ok {
		return BlockRecord{}, ErrNotFound
	}
	return m.ByHash(hash)
}

func (m *MemStore) ByTimestamp(ts uint64) (BlockRecord, error) {
	m.mu.RLock()
	hash, ok := m.byTimestamp[ts]
	m.mu.RUnlock()
	if !ok {
		return BlockRecord{}, ErrNotFound
	}
	return m.ByHash(hash)
}

func (m *MemStore) ByIncludedTx(txHash common.Hash) (BlockRecord, error) {
	m.mu.RLock()
	hash, ok := m.byTx[txHash]
	m.mu.RUnlock()
	if !ok {
		return BlockRecord{}, ErrNotFound
	}
	return m.ByHash(hash)
}

func (m *MemStore) Rollback(keepBelow uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for number, hash := range m.byNumber {
		if number <= keepBelow {
			continue
		}
		rec, ok := m.byHash[hash]
		if ok {
			delete(m.byL1Origin, rec.Ref.L1Origin.Hash)
			delete(m.byTimestamp, rec.Ref.Time)
			for _, tx := range rec.IncludedTxHashes {
				delete(m.byTx, tx)
			}
		}
		delete(m.byHash, hash)
		delete(m.byNumber, number)
	}
	return nil
}

var _ BlockStore = (*MemStore)(nil)
