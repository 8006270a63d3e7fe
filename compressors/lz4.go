package compressors

import (
	"encoding/binary"
	"fmt"

	"github.com/INLOpen/nexuschain/core"
	lz4 "github.com/pierrec/lz4/v4"
)

// LZ4Compressor implements the Compressor interface using LZ4 blocks.
//
// The block format does not store the original size, so Compress prefixes the
// block with it as a 4-byte big-endian length. A zero-length block marks
// input that LZ4 could not shrink; the raw bytes follow instead.
type LZ4Compressor struct{}

var _ core.Compressor = (*LZ4Compressor)(nil)

// maxLZ4RecordSize bounds the declared size accepted on decompression.
const maxLZ4RecordSize = 64 * 1024 * 1024

func NewLz4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	dst := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	binary.BigEndian.PutUint32(dst, uint32(len(data)))
	n, err := lz4.CompressBlock(data, dst[4:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress error: %w", err)
	}
	if n == 0 {
		// Incompressible: store raw after a zero block marker.
		out := make([]byte, 8+len(data))
		binary.BigEndian.PutUint32(out, uint32(len(data)))
		copy(out[8:], data)
		return out, nil
	}
	return dst[:4+n], nil
}

func (c *LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("lz4 decompress error: block of %d bytes has no size header", len(data))
	}
	size := binary.BigEndian.Uint32(data)
	if size > maxLZ4RecordSize {
		return nil, fmt.Errorf("lz4 decompress error: declared size %d exceeds limit", size)
	}
	if size == 0 {
		return []byte{}, nil
	}
	if len(data) >= 8 && binary.BigEndian.Uint32(data[4:]) == 0 && len(data)-8 == int(size) {
		return append([]byte(nil), data[8:]...), nil
	}
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(data[4:], dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress error: %w", err)
	}
	if n != int(size) {
		return nil, fmt.Errorf("lz4 decompress error: got %d bytes, want %d", n, size)
	}
	return dst, nil
}

func (c *LZ4Compressor) Type() core.CompressionType {
	return core.CompressionLZ4
}
