// Package chain stores the per-key operation logs the resolution engine
// folds. A chain is the ordered list of encoded operation records appended
// for one key; the oldest record comes first.
package chain

import "errors"

// ErrClosed is returned by operations on a closed log.
var ErrClosed = errors.New("chain: log is closed")

// Log is the storage contract for operation chains. Keys and records are
// opaque encoded bytes. Implementations must be safe for concurrent use and
// must not retain or expose caller-owned slices.
type Log interface {
	// Append adds record to the end of key's chain.
	Append(key, record []byte) error
	// Records returns key's chain in append order. A missing key yields an empty result.
	Records(key []byte) ([][]byte, error)
	// Replace swaps key's chain for the single compacted record. A nil or
	// empty record drops the chain.
	Replace(key, compacted []byte) error
	// Keys returns every key with a non-empty chain in ascending byte order.
	Keys() ([][]byte, error)
	Close() error
}
