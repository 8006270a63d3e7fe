package operations

import "bytes"

// Equivalence supplies the key and value equality used by Fold. Conditional
// operations compare values with it and every fold checks keys with it.
type Equivalence[K, V any] struct {
	Keys   func(a, b K) bool
	Values func(a, b V) bool
}

// Comparable returns an Equivalence using == on both keys and values.
func Comparable[K, V comparable]() Equivalence[K, V] {
	return Equivalence[K, V]{
		Keys:   func(a, b K) bool { return a == b },
		Values: func(a, b V) bool { return a == b },
	}
}

// BytesValues returns an Equivalence for comparable keys and []byte values.
func BytesValues[K comparable]() Equivalence[K, []byte] {
	return Equivalence[K, []byte]{
		Keys:   func(a, b K) bool { return a == b },
		Values: bytes.Equal,
	}
}

// Bytes returns an Equivalence for []byte keys and values.
func Bytes() Equivalence[[]byte, []byte] {
	return Equivalence[[]byte, []byte]{Keys: bytes.Equal, Values: bytes.Equal}
}

// Equal reports whether a and b are the same kind of operation over equal
// key, expected value, value and timestamp. Two nils are equal.
func Equal[K, V any](a, b *Operation[K, V], eq Equivalence[K, V]) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.code != b.code || !eq.Keys(a.key, b.key) {
		return false
	}
	if a.code.CarriesExpected() && !eq.Values(a.expected, b.expected) {
		return false
	}
	if a.code.CarriesValue() && !eq.Values(a.value, b.value) {
		return false
	}
	return !a.code.Timestamped() || a.timestamp == b.timestamp
}
