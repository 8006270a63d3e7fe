package operations

import (
	"github.com/INLOpen/nexuschain/codec"
	"github.com/INLOpen/nexuschain/core"
)

// Encode serializes op into a buffer holding exactly one record:
//
//	[1 byte code][4 byte key len][key][4 byte expected len][expected][8 byte ts][value...]
//
// Expected, timestamp and value are only present for codes that carry them.
// The value has no length prefix and runs to the end of the buffer. Codec
// errors are returned unchanged.
func (op *Operation[K, V]) Encode(keys codec.Codec[K], values codec.Codec[V]) ([]byte, error) {
	keyBytes, err := keys.Encode(op.key)
	if err != nil {
		return nil, err
	}
	var expectedBytes, valueBytes []byte
	if op.code.CarriesExpected() {
		if expectedBytes, err = values.Encode(op.expected); err != nil {
			return nil, err
		}
	}
	if op.code.CarriesValue() {
		if valueBytes, err = values.Encode(op.value); err != nil {
			return nil, err
		}
	}

	w := core.NewFrameWriter(core.RecordSize(op.code, len(keyBytes), len(expectedBytes), len(valueBytes)))
	w.Tag(op.code)
	if err := w.LengthPrefixed(keyBytes); err != nil {
		return nil, err
	}
	if op.code.CarriesExpected() {
		if err := w.LengthPrefixed(expectedBytes); err != nil {
			return nil, err
		}
	}
	if op.code.Timestamped() {
		w.Timestamp(op.timestamp)
	}
	if op.code.CarriesValue() {
		w.Rest(valueBytes)
	}
	return w.Bytes(), nil
}

// Decode reads the record's tag and decodes it with the matching decoder.
// A tag missing from the code table fails with an UnknownOperationCodeError.
func Decode[K, V any](buf []byte, keys codec.Codec[K], values codec.Codec[V]) (*Operation[K, V], error) {
	if len(buf) < core.TagSize {
		return nil, &core.InvalidOperationEncodingError{Reason: "empty record"}
	}
	code, err := core.KindFor(buf[0])
	if err != nil {
		return nil, err
	}
	return DecodeAs(code, buf, keys, values)
}

// DecodeAs decodes buf as an operation of kind code. The record's tag must be
// exactly code; any other tag, a declared length running past the end of the
// buffer, or unread bytes after a valueless record fail with an
// InvalidOperationEncodingError. No partially decoded operation is returned.
func DecodeAs[K, V any](code core.OperationCode, buf []byte, keys codec.Codec[K], values codec.Codec[V]) (*Operation[K, V], error) {
	if !code.Valid() {
		return nil, &core.UnknownOperationCodeError{Code: byte(code)}
	}

	r := core.NewFrameReader(code, buf)
	if err := r.Tag(); err != nil {
		return nil, err
	}
	keyBytes, err := r.LengthPrefixed("key")
	if err != nil {
		return nil, err
	}
	var expectedBytes, valueBytes []byte
	if code.CarriesExpected() {
		if expectedBytes, err = r.LengthPrefixed("expected value"); err != nil {
			return nil, err
		}
	}
	var timestamp int64
	if code.Timestamped() {
		if timestamp, err = r.Timestamp(); err != nil {
			return nil, err
		}
	}
	if code.CarriesValue() {
		valueBytes = r.Rest()
	} else if err := r.Done(); err != nil {
		return nil, err
	}

	op := &Operation[K, V]{code: code, timestamp: timestamp}
	if op.key, err = keys.Decode(keyBytes); err != nil {
		return nil, err
	}
	if code.CarriesExpected() {
		if op.expected, err = values.Decode(expectedBytes); err != nil {
			return nil, err
		}
	}
	if code.CarriesValue() {
		if op.value, err = values.Decode(valueBytes); err != nil {
			return nil, err
		}
	}
	return op, nil
}
