package core

import (
	"fmt"
	"time"
)

// SegmentHeaderSize is the encoded size of a SegmentHeader.
const SegmentHeaderSize = 4 + 1 + 8 + 1

// SegmentHeader opens every WAL segment file, little endian. Compression
// applies to every record payload in the segment, so segments written under
// different settings can be replayed side by side.
type SegmentHeader struct {
	Magic       uint32
	Version     uint8
	CreatedAt   int64 // UnixNano
	Compression CompressionType
}

// NewSegmentHeader returns a current-version header stamped with the time.
func NewSegmentHeader(ct CompressionType) SegmentHeader {
	return SegmentHeader{
		Magic:       WALMagicNumber,
		Version:     FormatVersion,
		CreatedAt:   time.Now().UnixNano(),
		Compression: ct,
	}
}

// Validate rejects headers this build cannot read.
func (h SegmentHeader) Validate() error {
	if h.Magic != WALMagicNumber {
		return fmt.Errorf("invalid magic number: got %x, want %x", h.Magic, WALMagicNumber)
	}
	if h.Version == 0 || h.Version > FormatVersion {
		return fmt.Errorf("unsupported segment format version %d", h.Version)
	}
	if h.Compression.String() == "unknown" {
		return fmt.Errorf("unknown segment compression type %d", h.Compression)
	}
	return nil
}
