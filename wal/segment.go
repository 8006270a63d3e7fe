package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/INLOpen/nexuschain/core"
)

// Segment represents a single WAL segment file.
type Segment struct {
	file  *os.File
	path  string
	index uint64
}

// SegmentWriter handles writing records to a segment.
type SegmentWriter struct {
	*Segment
	writer *bufio.Writer
	size   int64
}

// SegmentReader handles reading records from a segment.
type SegmentReader struct {
	*Segment
	reader *bufio.Reader
	header core.SegmentHeader
}

const headerSize = int64(core.SegmentHeaderSize)

// maxRecordSize bounds the length read from disk before allocating.
const maxRecordSize = 1 << 30

// CreateSegment creates a new segment file in the given directory. The
// compressor type is recorded in the header so readers know how to decode
// the record payloads.
func CreateSegment(dir string, index uint64, ct core.CompressionType) (*SegmentWriter, error) {
	path := filepath.Join(dir, core.FormatSegmentFileName(index))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file %s: %w", path, err)
	}

	header := core.NewSegmentHeader(ct)
	if err := binary.Write(file, binary.LittleEndian, &header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write segment header to %s: %w", path, err)
	}

	return &SegmentWriter{
		Segment: &Segment{file: file, path: path, index: index},
		writer:  bufio.NewWriter(file),
		size:    headerSize,
	}, nil
}

// OpenSegmentForRead opens an existing segment file for reading and verifies its header.
func OpenSegmentForRead(path string) (*SegmentReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment file for reading %s: %w", path, err)
	}

	var header core.SegmentHeader
	if err := binary.Read(file, binary.LittleEndian, &header); err != nil {
		file.Close()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("segment file %s is empty or truncated at header: %w", path, io.ErrUnexpectedEOF)
		}
		return nil, fmt.Errorf("failed to read segment header from %s: %w", path, err)
	}
	if err := header.Validate(); err != nil {
		file.Close()
		return nil, fmt.Errorf("segment %s: %w", path, err)
	}

	index, err := core.ParseSegmentFileName(filepath.Base(path))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("could not parse segment index from path %s: %w", path, err)
	}

	return &SegmentReader{
		Segment: &Segment{file: file, path: path, index: index},
		reader:  bufio.NewReader(file),
		header:  header,
	}, nil
}

// WriteRecord writes a single record to the segment.
// Format: length (4 bytes) | data (variable) | checksum (4 bytes)
func (sw *SegmentWriter) WriteRecord(data []byte) error {
	if sw.file == nil {
		return os.ErrClosed
	}
	if err := binary.Write(sw.writer, binary.LittleEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("failed to write record length: %w", err)
	}
	if _, err := sw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write record data: %w", err)
	}
	checksum := crc32.ChecksumIEEE(data)
	if err := binary.Write(sw.writer, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("failed to write record checksum: %w", err)
	}
	sw.size += int64(len(data)) + 4 + core.ChecksumSize
	return nil
}

// Size returns the bytes written to the segment so far, header included.
func (sw *SegmentWriter) Size() int64 {
	return sw.size
}

// ReadRecord reads the next record. It returns io.EOF at a clean end of
// segment and io.ErrUnexpectedEOF for a record cut short by a crash.
func (sr *SegmentReader) ReadRecord() ([]byte, error) {
	var length uint32
	if err := binary.Read(sr.reader, binary.LittleEndian, &length); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, io.ErrUnexpectedEOF
	}
	if length > maxRecordSize {
		return nil, fmt.Errorf("record length %d in segment %s: %w", length, sr.path, ErrCorruptRecord)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(sr.reader, data); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	var checksum uint32
	if err := binary.Read(sr.reader, binary.LittleEndian, &checksum); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	if crc32.ChecksumIEEE(data) != checksum {
		return nil, fmt.Errorf("checksum mismatch in segment %s: %w", sr.path, ErrCorruptRecord)
	}
	return data, nil
}

// CompressionType returns the payload compression recorded in the header.
func (sr *SegmentReader) CompressionType() core.CompressionType {
	return sr.header.Compression
}

// Sync flushes the buffered writer and syncs the file to disk.
func (sw *SegmentWriter) Sync() error {
	if sw.file == nil {
		return os.ErrClosed
	}
	if err := sw.writer.Flush(); err != nil {
		return err
	}
	return sw.file.Sync()
}

// Close flushes and closes the segment file.
func (sw *SegmentWriter) Close() error {
	if sw.file == nil {
		return nil
	}
	err := sw.Sync()
	closeErr := sw.file.Close()
	sw.file = nil
	if err != nil {
		return err
	}
	return closeErr
}

// Close closes the segment file.
func (sr *SegmentReader) Close() error {
	if sr.file == nil {
		return nil
	}
	err := sr.file.Close()
	sr.file = nil
	return err
}

// Index returns the segment's position in the log.
func (s *Segment) Index() uint64 {
	return s.index
}
