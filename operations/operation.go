// Package operations defines the chain operation records appended to a
// per-key log: their binary encoding and the fold rule that combines each
// record with the state resolved from the records before it.
//
// An Operation is an immutable tagged union. The code selects which of the
// payload fields are meaningful:
//
//	Put, PutIfAbsent, Replace      key, value
//	Remove                         key
//	ConditionalReplace             key, expected, value
//	ConditionalRemove              key, expected
//
// Timestamped codes additionally carry a creation timestamp.
package operations

import (
	"fmt"
	"strings"

	"github.com/INLOpen/nexuschain/core"
)

// Operation is one cache mutation bound to a single key for its lifetime.
// Operations are never modified after construction; Fold returns the
// receiver, the previous operation, or nil.
type Operation[K, V any] struct {
	code      core.OperationCode
	key       K
	value     V
	expected  V
	timestamp int64
}

// NewPut returns an unconditional set.
func NewPut[K, V any](key K, value V) *Operation[K, V] {
	return &Operation[K, V]{code: core.OpPut, key: key, value: value}
}

// NewPutIfAbsent returns a set that only applies when the key has no entry.
func NewPutIfAbsent[K, V any](key K, value V) *Operation[K, V] {
	return &Operation[K, V]{code: core.OpPutIfAbsent, key: key, value: value}
}

// NewRemove returns an unconditional delete.
func NewRemove[K, V any](key K) *Operation[K, V] {
	return &Operation[K, V]{code: core.OpRemove, key: key}
}

// NewReplace returns a set that only applies when the key has an entry.
func NewReplace[K, V any](key K, value V) *Operation[K, V] {
	return &Operation[K, V]{code: core.OpReplace, key: key, value: value}
}

// NewConditionalReplace returns a set that only applies when the current
// value equals expected.
func NewConditionalReplace[K, V any](key K, expected, value V) *Operation[K, V] {
	return &Operation[K, V]{code: core.OpConditionalReplace, key: key, expected: expected, value: value}
}

// NewConditionalRemove returns a delete that only applies when the current
// value equals expected.
func NewConditionalRemove[K, V any](key K, expected V) *Operation[K, V] {
	return &Operation[K, V]{code: core.OpConditionalRemove, key: key, expected: expected}
}

func NewTimestampedPut[K, V any](key K, value V, timestamp int64) *Operation[K, V] {
	return NewPut(key, value).WithTimestamp(timestamp)
}

func NewTimestampedPutIfAbsent[K, V any](key K, value V, timestamp int64) *Operation[K, V] {
	return NewPutIfAbsent(key, value).WithTimestamp(timestamp)
}

func NewTimestampedRemove[K, V any](key K, timestamp int64) *Operation[K, V] {
	return NewRemove[K, V](key).WithTimestamp(timestamp)
}

func NewTimestampedReplace[K, V any](key K, value V, timestamp int64) *Operation[K, V] {
	return NewReplace(key, value).WithTimestamp(timestamp)
}

func NewTimestampedConditionalReplace[K, V any](key K, expected, value V, timestamp int64) *Operation[K, V] {
	return NewConditionalReplace(key, expected, value).WithTimestamp(timestamp)
}

func NewTimestampedConditionalRemove[K, V any](key K, expected V, timestamp int64) *Operation[K, V] {
	return NewConditionalRemove(key, expected).WithTimestamp(timestamp)
}

// WithTimestamp returns a timestamped copy of op. The receiver is unchanged.
func (op *Operation[K, V]) WithTimestamp(timestamp int64) *Operation[K, V] {
	stamped := *op
	stamped.code = op.code.WithTimestamp()
	stamped.timestamp = timestamp
	return &stamped
}

// Code returns the operation kind.
func (op *Operation[K, V]) Code() core.OperationCode {
	return op.code
}

// Key returns the key the operation is bound to.
func (op *Operation[K, V]) Key() K {
	return op.key
}

// HasValue reports whether the operation sets a value when it wins a fold.
func (op *Operation[K, V]) HasValue() bool {
	return op.code.CarriesValue()
}

// Value returns the value this operation sets, if it carries one.
func (op *Operation[K, V]) Value() (V, bool) {
	if !op.code.CarriesValue() {
		var zero V
		return zero, false
	}
	return op.value, true
}

// Expected returns the value a conditional operation compares against.
func (op *Operation[K, V]) Expected() (V, bool) {
	if !op.code.CarriesExpected() {
		var zero V
		return zero, false
	}
	return op.expected, true
}

// Timestamp returns the creation timestamp of a timestamped operation.
func (op *Operation[K, V]) Timestamp() (int64, bool) {
	if !op.code.Timestamped() {
		return 0, false
	}
	return op.timestamp, true
}

func (op *Operation[K, V]) String() string {
	var sb strings.Builder
	sb.WriteString(op.code.String())
	fmt.Fprintf(&sb, "(key=%v", op.key)
	if op.code.CarriesExpected() {
		fmt.Fprintf(&sb, ", expected=%v", op.expected)
	}
	if op.code.CarriesValue() {
		fmt.Fprintf(&sb, ", value=%v", op.value)
	}
	if op.code.Timestamped() {
		fmt.Fprintf(&sb, ", ts=%d", op.timestamp)
	}
	sb.WriteByte(')')
	return sb.String()
}
