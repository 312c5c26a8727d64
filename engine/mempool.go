package engine

import (
	"crypto/sha256"
	"errors"
	"sync"
	"time"

	"github.com/VanDung-dev/HieraChain-Replica/network"
	"github.com/VanDung-dev/HieraChain-Replica/types"
)

// Common errors for mempool operations
var (
	ErrMempoolFull     = errors.New("mempool is full")
	ErrTxAlreadyExists = errors.New("transaction already exists")
	ErrInvalidTx       = errors.New("invalid transaction")
)

// Entry is a pooled transaction with its origin.
type Entry struct {
	Key   [sha256.Size]byte
	Tx    *types.Transaction
	From  network.ClientID
	Added time.Time
}

// Mempool holds pending client transactions in arrival order, rejecting
// payloads already pending.
type Mempool struct {
	pending map[[sha256.Size]byte]struct{}
	queue   []*Entry
	maxSize int
	mu      sync.RWMutex
}

// NewMempool creates a new Mempool with the specified maximum size.
func NewMempool(maxSize int) *Mempool {
	return &Mempool{
		pending: make(map[[sha256.Size]byte]struct{}),
		maxSize: maxSize,
	}
}

// TxKey returns the de-duplication key of a transaction.
func TxKey(tx *types.Transaction) [sha256.Size]byte {
	return sha256.Sum256(tx.Data)
}

// Add appends a transaction from a client.
// Returns error if mempool is full or the payload is already pending.
func (m *Mempool) Add(from network.ClientID, tx *types.Transaction) error {
	if tx == nil {
		return ErrInvalidTx
	}
	key := TxKey(tx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pending[key]; exists {
		return ErrTxAlreadyExists
	}
	if len(m.pending) >= m.maxSize {
		return ErrMempoolFull
	}

	m.pending[key] = struct{}{}
	m.queue = append(m.queue, &Entry{Key: key, Tx: tx, From: from, Added: time.Now()})
	return nil
}

// PopBatch removes and returns up to n of the oldest entries.
func (m *Mempool) PopBatch(n int) []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || len(m.queue) == 0 {
		return nil
	}
	if n > len(m.queue) {
		n = len(m.queue)
	}

	batch := make([]*Entry, n)
	copy(batch, m.queue[:n])
	for i := range m.queue[:n] {
		delete(m.pending, m.queue[i].Key)
		m.queue[i] = nil // avoid memory leak
	}
	m.queue = m.queue[n:]
	return batch
}

// Peek returns up to n of the oldest entries without removing them.
func (m *Mempool) Peek(n int) []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n <= 0 || len(m.queue) == 0 {
		return nil
	}
	if n > len(m.queue) {
		n = len(m.queue)
	}
	out := make([]*Entry, n)
	copy(out, m.queue[:n])
	return out
}

// Contains reports whether an identical payload is pending.
func (m *Mempool) Contains(tx *types.Transaction) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.pending[TxKey(tx)]
	return exists
}

// Size returns the current number of transactions in the mempool.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending)
}

// IsFull returns true if the mempool has reached its maximum size.
func (m *Mempool) IsFull() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending) >= m.maxSize
}

// Clear removes all transactions from the mempool.
func (m *Mempool) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = make(map[[sha256.Size]byte]struct{})
	m.queue = nil
}

// MempoolStats is a point-in-time view of the pool.
type MempoolStats struct {
	Size      int `json:"size"`
	MaxSize   int `json:"max_size"`
	Available int `json:"available"`
}

// Stats returns mempool statistics.
func (m *Mempool) Stats() MempoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MempoolStats{
		Size:      len(m.pending),
		MaxSize:   m.maxSize,
		Available: m.maxSize - len(m.pending),
	}
}
