package chain

import (
	"bytes"
	"sync"

	"github.com/INLOpen/skiplist"
)

type chainEntry struct {
	records [][]byte
	size    int64
}

// MemoryLog keeps chains in a skiplist ordered by key bytes. A dropped chain
// stays as an empty node, which Keys skips.
type MemoryLog struct {
	mu     sync.RWMutex
	data   *skiplist.SkipList[[]byte, *chainEntry]
	size   int64
	closed bool
}

var _ Log = (*MemoryLog)(nil)

// NewMemoryLog returns an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{data: skiplist.NewWithComparator[[]byte, *chainEntry](bytes.Compare)}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// lookup returns the entry stored for key. Must be called with m.mu held.
func (m *MemoryLog) lookup(key []byte) (*chainEntry, bool) {
	node, ok := m.data.Seek(key)
	if !ok || !bytes.Equal(node.Key(), key) {
		return nil, false
	}
	return node.Value(), true
}

// Append adds record to the end of key's chain.
func (m *MemoryLog) Append(key, record []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.appendLocked(key, record)
	return nil
}

func (m *MemoryLog) appendLocked(key, record []byte) {
	entry, ok := m.lookup(key)
	if !ok {
		entry = &chainEntry{}
		m.data.Insert(clone(key), entry)
	}
	entry.records = append(entry.records, clone(record))
	entry.size += int64(len(record))
	m.size += int64(len(record))
}

// Records returns copies of key's records in append order.
func (m *MemoryLog) Records(key []byte) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	entry, ok := m.lookup(key)
	if !ok {
		return nil, nil
	}
	out := make([][]byte, len(entry.records))
	for i, r := range entry.records {
		out[i] = clone(r)
	}
	return out, nil
}

// Replace swaps key's chain for compacted, or drops it when compacted is empty.
func (m *MemoryLog) Replace(key, compacted []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.replaceLocked(key, compacted)
	return nil
}

func (m *MemoryLog) replaceLocked(key, compacted []byte) {
	entry, ok := m.lookup(key)
	if !ok {
		if len(compacted) == 0 {
			return
		}
		entry = &chainEntry{}
		m.data.Insert(clone(key), entry)
	}
	m.size -= entry.size
	entry.records, entry.size = nil, 0
	if len(compacted) > 0 {
		entry.records = [][]byte{clone(compacted)}
		entry.size = int64(len(compacted))
		m.size += entry.size
	}
}

// Keys returns every key with a non-empty chain in ascending order.
func (m *MemoryLog) Keys() ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var keys [][]byte
	m.data.Range(func(key []byte, entry *chainEntry) bool {
		if len(entry.records) > 0 {
			keys = append(keys, clone(key))
		}
		return true
	})
	return keys, nil
}

// Len returns the number of records in key's chain.
func (m *MemoryLog) Len(key []byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.lookup(key)
	if !ok {
		return 0
	}
	return len(entry.records)
}

// ChainLengths returns the record count of every non-empty chain.
func (m *MemoryLog) ChainLengths() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var lengths []int
	m.data.Range(func(_ []byte, entry *chainEntry) bool {
		if n := len(entry.records); n > 0 {
			lengths = append(lengths, n)
		}
		return true
	})
	return lengths
}

// Size returns the total bytes of all stored records.
func (m *MemoryLog) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Close releases the chains. Further calls fail with ErrClosed.
func (m *MemoryLog) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.data = skiplist.NewWithComparator[[]byte, *chainEntry](bytes.Compare)
	m.size = 0
	return nil
}
