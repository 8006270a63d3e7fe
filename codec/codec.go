// Package codec holds the key/value codec contract used by every encode,
// decode and resolve call, plus a few reference codecs.
//
// Codecs must be safe for concurrent use. They are never mutated by callers.
package codec

import (
	"encoding/binary"
	"fmt"
)

// Codec turns a value into bytes and back. Decode(Encode(v)) must equal v.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

// Int64 encodes an int64 as 8 big-endian bytes.
type Int64 struct{}

var _ Codec[int64] = Int64{}

func (Int64) Encode(v int64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), uint64(v)), nil
}

func (Int64) Decode(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("int64 codec: got %d bytes, want 8", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// Uint64 encodes a uint64 as 8 big-endian bytes.
type Uint64 struct{}

var _ Codec[uint64] = Uint64{}

func (Uint64) Encode(v uint64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), v), nil
}

func (Uint64) Decode(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("uint64 codec: got %d bytes, want 8", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// String encodes a string as its raw UTF-8 bytes.
type String struct{}

var _ Codec[string] = String{}

func (String) Encode(v string) ([]byte, error) {
	return []byte(v), nil
}

func (String) Decode(b []byte) (string, error) {
	return string(b), nil
}

// Bytes passes byte slices through, copying so callers never share buffers
// with the record they were decoded from.
type Bytes struct{}

var _ Codec[[]byte] = Bytes{}

func (Bytes) Encode(v []byte) ([]byte, error) {
	return append([]byte(nil), v...), nil
}

func (Bytes) Decode(b []byte) ([]byte, error) {
	return append(make([]byte, 0, len(b)), b...), nil
}

// Func adapts a pair of functions to the Codec interface.
type Func[T any] struct {
	EncodeFunc func(T) ([]byte, error)
	DecodeFunc func([]byte) (T, error)
}

func (f Func[T]) Encode(v T) ([]byte, error) { return f.EncodeFunc(v) }

func (f Func[T]) Decode(b []byte) (T, error) { return f.DecodeFunc(b) }
