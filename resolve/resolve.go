// Package resolve folds the ordered log of encoded operation records kept
// for one key into that key's effective entry.
package resolve

import (
	"github.com/INLOpen/nexuschain/codec"
	"github.com/INLOpen/nexuschain/core"
	"github.com/INLOpen/nexuschain/operations"
)

// Entry is the resolved state of a key.
type Entry[K, V any] struct {
	Key   K
	Value V
	// Timestamp is the winning operation's timestamp when Timestamped is set.
	Timestamp   int64
	Timestamped bool
	// Op is the operation that produced the entry.
	Op *operations.Operation[K, V]
}

// Resolve decodes records in order and left-folds them. ok is false when the
// key has no entry (never created or removed). Any decode error, codec error
// or key mismatch fails the whole resolution.
func Resolve[K, V any](records [][]byte, keys codec.Codec[K], values codec.Codec[V], eq operations.Equivalence[K, V]) (entry Entry[K, V], ok bool, err error) {
	var acc *operations.Operation[K, V]
	var first *operations.Operation[K, V]
	for _, record := range records {
		op, err := operations.Decode(record, keys, values)
		if err != nil {
			return entry, false, err
		}
		if first == nil {
			first = op
		} else if !eq.Keys(first.Key(), op.Key()) {
			return entry, false, &core.OperationKeyMismatchError{Key: first.Key(), OtherKey: op.Key()}
		}
		if acc, err = op.Fold(acc, eq); err != nil {
			return entry, false, err
		}
	}
	entry, ok = EntryOf(acc)
	return entry, ok, nil
}

// ResolveOperations folds already decoded operations in order and returns the
// final state, nil meaning no entry.
func ResolveOperations[K, V any](ops []*operations.Operation[K, V], eq operations.Equivalence[K, V]) (*operations.Operation[K, V], error) {
	var acc *operations.Operation[K, V]
	for i, op := range ops {
		if i > 0 && !eq.Keys(ops[0].Key(), op.Key()) {
			return nil, &core.OperationKeyMismatchError{Key: ops[0].Key(), OtherKey: op.Key()}
		}
		var err error
		if acc, err = op.Fold(acc, eq); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// Step folds a single record onto acc. Resolution can be paused after any
// step and resumed from the returned state.
func Step[K, V any](acc *operations.Operation[K, V], record []byte, keys codec.Codec[K], values codec.Codec[V], eq operations.Equivalence[K, V]) (*operations.Operation[K, V], error) {
	op, err := operations.Decode(record, keys, values)
	if err != nil {
		return nil, err
	}
	return op.Fold(acc, eq)
}

// Compact returns the single record the log should be rewritten to, or nil
// when the key has no entry and the log can be dropped. The record is a Put
// of the resolved value, so it resolves on its own to the same entry.
func Compact[K, V any](records [][]byte, keys codec.Codec[K], values codec.Codec[V], eq operations.Equivalence[K, V]) ([]byte, error) {
	entry, ok, err := Resolve(records, keys, values, eq)
	if err != nil || !ok {
		return nil, err
	}
	return entry.Compacted().Encode(keys, values)
}

// Compacted returns a Put carrying the entry's value. It keeps the winning
// timestamp so later timestamped records still compare against it.
func (e Entry[K, V]) Compacted() *operations.Operation[K, V] {
	if e.Timestamped {
		return operations.NewTimestampedPut(e.Key, e.Value, e.Timestamp)
	}
	return operations.NewPut(e.Key, e.Value)
}

// EntryOf converts a fold result into an Entry. ok is false for nil or for an
// operation that carries no value.
func EntryOf[K, V any](op *operations.Operation[K, V]) (Entry[K, V], bool) {
	if op == nil {
		return Entry[K, V]{}, false
	}
	value, ok := op.Value()
	if !ok {
		return Entry[K, V]{}, false
	}
	ts, stamped := op.Timestamp()
	return Entry[K, V]{
		Key:         op.Key(),
		Value:       value,
		Timestamp:   ts,
		Timestamped: stamped,
		Op:          op,
	}, true
}
