package core

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Fixed-width field sizes shared by every record layout.
const (
	TagSize       = 1 // operation code byte
	LengthSize    = 4 // signed big-endian int32 length marker
	TimestampSize = 8 // big-endian int64 timestamp
)

// RecordSize returns the exact encoded size of a record with the given parts.
// expectedLen and valueLen are ignored for codes that do not carry them.
func RecordSize(code OperationCode, keyLen, expectedLen, valueLen int) int {
	size := TagSize + LengthSize + keyLen
	if code.CarriesExpected() {
		size += LengthSize + expectedLen
	}
	if code.Timestamped() {
		size += TimestampSize
	}
	if code.CarriesValue() {
		size += valueLen
	}
	return size
}

// FrameWriter appends record fields into a buffer sized up front. Writes
// never grow the buffer past its declared size.
type FrameWriter struct {
	buf []byte
}

// NewFrameWriter returns a writer whose Bytes will have exactly size bytes.
func NewFrameWriter(size int) *FrameWriter {
	return &FrameWriter{buf: make([]byte, 0, size)}
}

func (w *FrameWriter) Tag(code OperationCode) {
	w.buf = append(w.buf, CodeFor(code))
}

// LengthPrefixed writes a 4-byte length followed by the field itself.
func (w *FrameWriter) LengthPrefixed(field []byte) error {
	if len(field) > math.MaxInt32 {
		return fmt.Errorf("field of %d bytes exceeds the 4-byte length marker", len(field))
	}
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(int32(len(field))))
	w.buf = append(w.buf, field...)
	return nil
}

func (w *FrameWriter) Timestamp(ts int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(ts))
}

// Rest writes the trailing value payload. It has no length prefix.
func (w *FrameWriter) Rest(payload []byte) {
	w.buf = append(w.buf, payload...)
}

// Bytes returns the encoded record. len == cap when the declared size was exact.
func (w *FrameWriter) Bytes() []byte {
	return w.buf
}

// FrameReader consumes record fields from a single-record buffer. Every read
// is bounds-checked against the remaining bytes.
type FrameReader struct {
	op  OperationCode
	buf []byte
	off int
}

// NewFrameReader reads buf on behalf of the decoder for op; op only labels errors.
func NewFrameReader(op OperationCode, buf []byte) *FrameReader {
	return &FrameReader{op: op, buf: buf}
}

func (r *FrameReader) fail(reason string, err error) error {
	return &InvalidOperationEncodingError{Op: r.op, Offset: r.off, Reason: reason, Err: err}
}

// Remaining returns the number of unread bytes.
func (r *FrameReader) Remaining() int {
	return len(r.buf) - r.off
}

// Tag reads the operation byte and checks it against the decoder's code.
func (r *FrameReader) Tag() error {
	if r.Remaining() < TagSize {
		return r.fail("missing operation tag", nil)
	}
	b := r.buf[r.off]
	code, err := KindFor(b)
	if err != nil {
		return r.fail("unrecognized tag", err)
	}
	if code != r.op {
		return r.fail(fmt.Sprintf("tag %s does not match decoder", code), nil)
	}
	r.off += TagSize
	return nil
}

// LengthPrefixed reads a 4-byte length and returns that many bytes. The
// returned slice aliases the input buffer.
func (r *FrameReader) LengthPrefixed(field string) ([]byte, error) {
	if r.Remaining() < LengthSize {
		return nil, r.fail(fmt.Sprintf("truncated %s length", field), nil)
	}
	n := int32(binary.BigEndian.Uint32(r.buf[r.off:]))
	if n < 0 {
		return nil, r.fail(fmt.Sprintf("negative %s length %d", field, n), nil)
	}
	r.off += LengthSize
	if int(n) > r.Remaining() {
		return nil, r.fail(fmt.Sprintf("%s length %d exceeds remaining %d bytes", field, n, r.Remaining()), nil)
	}
	out := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return out, nil
}

func (r *FrameReader) Timestamp() (int64, error) {
	if r.Remaining() < TimestampSize {
		return 0, r.fail("truncated timestamp", nil)
	}
	ts := int64(binary.BigEndian.Uint64(r.buf[r.off:]))
	r.off += TimestampSize
	return ts, nil
}

// Rest consumes everything left as the value payload.
func (r *FrameReader) Rest() []byte {
	out := r.buf[r.off:]
	r.off = len(r.buf)
	return out
}

// Done fails if any bytes are left unread.
func (r *FrameReader) Done() error {
	if r.Remaining() != 0 {
		return r.fail(fmt.Sprintf("%d trailing bytes", r.Remaining()), nil)
	}
	return nil
}
