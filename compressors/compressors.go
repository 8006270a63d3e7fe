// Package compressors provides the payload compressors a WAL segment can be
// written with.
package compressors

import (
	"fmt"

	"github.com/INLOpen/nexuschain/core"
)

// ForType returns a compressor for the given type, as recorded in a segment header.
func ForType(ct core.CompressionType) (core.Compressor, error) {
	switch ct {
	case core.CompressionNone:
		return &NoCompressionCompressor{}, nil
	case core.CompressionSnappy:
		return NewSnappyCompressor(), nil
	case core.CompressionLZ4:
		return NewLz4Compressor(), nil
	case core.CompressionZSTD:
		c, err := NewZstdCompressor()
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported compression type %d", ct)
	}
}

// ByName returns a compressor for a config name: none, snappy, lz4 or zstd.
func ByName(name string) (core.Compressor, error) {
	ct, err := core.ParseCompressionType(name)
	if err != nil {
		return nil, err
	}
	return ForType(ct)
}
