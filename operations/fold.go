package operations

import "github.com/INLOpen/nexuschain/core"

// Fold combines op with prev, the state already resolved from every older
// record of the same key, and returns the new resolved state. nil means the
// key has no entry. The result is always op, prev or nil:
//
//	code                prev == nil   prev != nil
//	Put                 op            op
//	PutIfAbsent         op            prev
//	Remove              nil           nil
//	Replace             nil           op
//	ConditionalReplace  nil           op if prev's value equals expected, else prev
//	ConditionalRemove   nil           nil if prev's value equals expected, else prev
//
// When op and prev are both timestamped and prev is strictly newer, prev wins
// wherever the table would return op. Equal timestamps keep append order, so
// op wins. Removes never return op and apply whatever the timestamps. A prev that carries no value (a remove) counts as no
// entry. Folding operations bound to different keys fails with an
// OperationKeyMismatchError.
func (op *Operation[K, V]) Fold(prev *Operation[K, V], eq Equivalence[K, V]) (*Operation[K, V], error) {
	if prev != nil && !eq.Keys(op.key, prev.key) {
		return nil, &core.OperationKeyMismatchError{Key: op.key, OtherKey: prev.key}
	}
	current := prev
	if current != nil && !current.HasValue() {
		current = nil
	}

	switch op.code.Untimestamped() {
	case core.OpPut:
		if current == nil || op.supersedes(current) {
			return op, nil
		}
		return current, nil

	case core.OpPutIfAbsent:
		if current == nil {
			return op, nil
		}
		return current, nil

	case core.OpRemove:
		return nil, nil

	case core.OpReplace:
		if current == nil {
			return nil, nil
		}
		if op.supersedes(current) {
			return op, nil
		}
		return current, nil

	case core.OpConditionalReplace:
		if current == nil {
			return nil, nil
		}
		if eq.Values(current.value, op.expected) && op.supersedes(current) {
			return op, nil
		}
		return current, nil

	case core.OpConditionalRemove:
		if current == nil {
			return nil, nil
		}
		if eq.Values(current.value, op.expected) {
			return nil, nil
		}
		return current, nil
	}
	return nil, &core.UnknownOperationCodeError{Code: byte(op.code)}
}

// supersedes reports whether op may take effect over prev. Only a strictly
// newer timestamp on prev, with both sides timestamped, stops it.
func (op *Operation[K, V]) supersedes(prev *Operation[K, V]) bool {
	if !op.code.Timestamped() || !prev.code.Timestamped() {
		return true
	}
	return op.timestamp >= prev.timestamp
}
