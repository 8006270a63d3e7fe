package wal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/INLOpen/nexuschain/compressors"
	"github.com/INLOpen/nexuschain/core"
)

// MaxSegmentSize is the default segment rotation threshold.
const MaxSegmentSize int64 = core.WALMaxSegmentSize

// batchMarker prefixes a record holding more than one entry.
const batchMarker byte = 'B'

// ErrCorruptRecord is returned when a record fails its checksum or cannot be decoded.
var ErrCorruptRecord = errors.New("wal: corrupt record")

// errTornRecord marks a record or header cut short by a crash mid-write.
var errTornRecord = errors.New("wal: torn record")

// WAL (Write-Ahead Log) makes chain mutations durable before they are
// applied to the in-memory chains. It manages a directory of segment files.
type WAL struct {
	dir  string
	mu   sync.Mutex
	opts Options

	activeSegment  *SegmentWriter
	segmentIndexes []uint64

	metricsBytesWritten   *expvar.Int
	metricsEntriesWritten *expvar.Int

	logger *slog.Logger

	testingOnlyInjectAppendError error
}

var _ WALInterface = (*WAL)(nil)

// Options holds configuration for the WAL.
type Options struct {
	Dir            string
	SyncMode       core.WALSyncMode
	MaxSegmentSize int64
	// Compressor is applied to every record payload of new segments.
	// Defaults to no compression.
	Compressor     core.Compressor
	BytesWritten   *expvar.Int
	EntriesWritten *expvar.Int
	Logger         *slog.Logger
	// StartRecoveryIndex tells the WAL to only recover entries from segments with an index greater than this value.
	StartRecoveryIndex uint64
}

// Open creates or opens a WAL directory.
// It recovers entries from existing segments and prepares for appending.
// A record torn by a crash at the tail of the last segment is dropped with a
// warning; damage anywhere else is returned alongside the entries read before it.
func Open(opts Options) (*WAL, []core.WALEntry, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "WAL_default")
	} else {
		opts.Logger = opts.Logger.With("component", "WAL")
	}
	if opts.MaxSegmentSize == 0 {
		opts.MaxSegmentSize = MaxSegmentSize
	}
	if opts.Compressor == nil {
		opts.Compressor = &compressors.NoCompressionCompressor{}
	}
	if opts.SyncMode == "" {
		opts.SyncMode = core.WALSyncAlways
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create WAL directory %s: %w", opts.Dir, err)
	}

	w := &WAL{
		dir:                   opts.Dir,
		opts:                  opts,
		logger:                opts.Logger,
		metricsBytesWritten:   opts.BytesWritten,
		metricsEntriesWritten: opts.EntriesWritten,
	}

	if err := w.loadSegments(); err != nil {
		return nil, nil, fmt.Errorf("failed to load WAL segments: %w", err)
	}

	recovered, recoveryErr := w.recover(opts.StartRecoveryIndex)

	if err := w.openForAppend(); err != nil {
		w.Close()
		return nil, nil, fmt.Errorf("failed to open WAL for appending: %w", err)
	}
	return w, recovered, recoveryErr
}

// loadSegments scans the WAL directory and populates the segmentIndexes slice.
func (w *WAL) loadSegments() error {
	files, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read WAL directory %s: %w", w.dir, err)
	}

	w.segmentIndexes = make([]uint64, 0, len(files))
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		index, err := core.ParseSegmentFileName(file.Name())
		if err == nil {
			w.segmentIndexes = append(w.segmentIndexes, index)
		}
	}
	sort.Slice(w.segmentIndexes, func(i, j int) bool {
		return w.segmentIndexes[i] < w.segmentIndexes[j]
	})
	return nil
}

func (w *WAL) SetTestingOnlyInjectAppendError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.testingOnlyInjectAppendError = err
}

// Append writes a single WALEntry to the log. It's a convenience wrapper around AppendBatch.
func (w *WAL) Append(entry core.WALEntry) error {
	return w.AppendBatch([]core.WALEntry{entry})
}

// AppendBatch writes a slice of WAL entries as a single, atomic record.
func (w *WAL) AppendBatch(entries []core.WALEntry) error {
	if len(entries) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.testingOnlyInjectAppendError != nil {
		return w.testingOnlyInjectAppendError
	}
	if w.activeSegment == nil {
		return errors.New("wal is closed or not open for writing")
	}

	// Compressors may return the payload itself, so the buffer goes back to
	// the pool only after the record is written.
	payload := core.BufferPool.Get()
	defer core.BufferPool.Put(payload)
	if len(entries) > 1 {
		payload.WriteByte(batchMarker)
		payload.Write(binary.AppendUvarint(nil, uint64(len(entries))))
	}
	for i := range entries {
		if err := encodeEntryData(payload, &entries[i]); err != nil {
			return fmt.Errorf("failed to encode entry %d: %w", i, err)
		}
	}

	data, err := w.opts.Compressor.Compress(payload.Bytes())
	if err != nil {
		return fmt.Errorf("failed to compress WAL record: %w", err)
	}
	newRecordSize := int64(len(data)) + 4 + core.ChecksumSize

	// Only rotate a segment that already holds a record, so a single record
	// larger than the limit still lands in a fresh segment.
	currentSize := w.activeSegment.Size()
	if currentSize > headerSize && currentSize+newRecordSize > w.opts.MaxSegmentSize {
		w.logger.Debug("Rotating WAL segment due to size", "current_size", currentSize, "new_record_size", newRecordSize, "max_size", w.opts.MaxSegmentSize)
		if err := w.rotateLocked(); err != nil {
			return fmt.Errorf("failed to rotate WAL segment: %w", err)
		}
	}

	if err := w.activeSegment.WriteRecord(data); err != nil {
		return err
	}
	if w.metricsBytesWritten != nil {
		w.metricsBytesWritten.Add(newRecordSize)
	}
	if w.metricsEntriesWritten != nil {
		w.metricsEntriesWritten.Add(int64(len(entries)))
	}

	if w.opts.SyncMode == core.WALSyncAlways {
		return w.activeSegment.Sync()
	}
	return nil
}

// Sync flushes data to the active segment file.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.activeSegment == nil {
		return os.ErrClosed
	}
	if err := w.activeSegment.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL file: %w", err)
	}
	return nil
}

// Rotate closes the current segment and opens a new one for writing.
func (w *WAL) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateLocked()
}

// Close closes the WAL file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.activeSegment == nil {
		return nil
	}

	closeErr := w.activeSegment.Close()
	w.activeSegment = nil

	if closeErr != nil {
		w.logger.Error("Error during WAL close.", "error", closeErr)
	} else {
		w.logger.Info("WAL closed.")
	}
	return closeErr
}

// Purge deletes segment files with index less than or equal to the given index.
// The active segment is never removed.
func (w *WAL) Purge(upToIndex uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var remaining []uint64
	var purged int
	var firstErr error
	for _, index := range w.segmentIndexes {
		if index > upToIndex || (w.activeSegment != nil && w.activeSegment.index == index) {
			remaining = append(remaining, index)
			continue
		}
		path := filepath.Join(w.dir, core.FormatSegmentFileName(index))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			w.logger.Error("Failed to purge WAL segment", "path", path, "error", err)
			remaining = append(remaining, index)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		purged++
	}
	w.segmentIndexes = remaining
	if purged > 0 {
		w.logger.Info("Purged WAL segments", "count", purged, "up_to_index", upToIndex)
	}
	return firstErr
}

// Path returns the directory path of the WAL.
func (w *WAL) Path() string {
	return w.dir
}

// ActiveSegmentIndex returns the index of the current active segment file.
// It returns 0 if there is no active segment.
func (w *WAL) ActiveSegmentIndex() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.activeSegment == nil {
		return 0
	}
	return w.activeSegment.index
}

// SegmentIndexes returns the indexes of all segments on disk, oldest first.
func (w *WAL) SegmentIndexes() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]uint64, len(w.segmentIndexes))
	copy(out, w.segmentIndexes)
	return out
}

// rotateLocked creates a new segment file for writing. Must be called with lock held.
func (w *WAL) rotateLocked() error {
	var nextIndex uint64 = 1
	if len(w.segmentIndexes) > 0 {
		nextIndex = w.segmentIndexes[len(w.segmentIndexes)-1] + 1
	}

	newSegment, err := CreateSegment(w.dir, nextIndex, w.opts.Compressor.Type())
	if err != nil {
		return err
	}

	if w.activeSegment != nil {
		if err := w.activeSegment.Close(); err != nil {
			w.logger.Error("failed to close active segment during rotation", "path", w.activeSegment.path, "error", err)
		}
	}

	w.activeSegment = newSegment
	w.segmentIndexes = append(w.segmentIndexes, nextIndex)
	w.logger.Info("Rotated to new WAL segment", "index", nextIndex, "path", newSegment.path, "compression", w.opts.Compressor.Type())
	return nil
}

// encodeEntryData serializes a single WALEntry: type, seqnum, then the
// uvarint-prefixed key and record.
func encodeEntryData(buf *bytes.Buffer, entry *core.WALEntry) error {
	switch entry.EntryType {
	case core.WALEntryAppend, core.WALEntryReplace:
	default:
		return fmt.Errorf("unknown WAL entry type %q", entry.EntryType)
	}
	buf.WriteByte(byte(entry.EntryType))
	buf.Write(binary.LittleEndian.AppendUint64(nil, entry.SeqNum))
	buf.Write(binary.AppendUvarint(nil, uint64(len(entry.Key))))
	buf.Write(entry.Key)
	buf.Write(binary.AppendUvarint(nil, uint64(len(entry.Record))))
	buf.Write(entry.Record)
	return nil
}

// decodeEntryData deserializes a single WALEntry written by encodeEntryData.
func decodeEntryData(r *bytes.Reader) (core.WALEntry, error) {
	var entry core.WALEntry
	typ, err := r.ReadByte()
	if err != nil {
		return entry, fmt.Errorf("failed to read entry type: %w", err)
	}
	entry.EntryType = core.WALEntryType(typ)
	if entry.EntryType != core.WALEntryAppend && entry.EntryType != core.WALEntryReplace {
		return entry, fmt.Errorf("unknown WAL entry type %q", typ)
	}
	if err := binary.Read(r, binary.LittleEndian, &entry.SeqNum); err != nil {
		return entry, fmt.Errorf("failed to read sequence number: %w", err)
	}
	if entry.Key, err = readUvarintBytes(r); err != nil {
		return entry, fmt.Errorf("failed to read key: %w", err)
	}
	if entry.Record, err = readUvarintBytes(r); err != nil {
		return entry, fmt.Errorf("failed to read record: %w", err)
	}
	return entry, nil
}

func readUvarintBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Len()) {
		return nil, io.ErrUnexpectedEOF
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeRecord splits a decompressed record payload into its entries.
func decodeRecord(payload []byte) ([]core.WALEntry, error) {
	r := bytes.NewReader(payload)
	count := uint64(1)
	if len(payload) > 0 && payload[0] == batchMarker {
		r.ReadByte()
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("error reading batch entry count: %w", err)
		}
		count = n
	}
	entries := make([]core.WALEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		entry, err := decodeEntryData(r)
		if err != nil {
			return nil, fmt.Errorf("error decoding entry %d: %w", i, err)
		}
		entries = append(entries, entry)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after WAL record entries", r.Len())
	}
	return entries, nil
}

// recover reads all entries from all known segments in order.
func (w *WAL) recover(startRecoveryIndex uint64) ([]core.WALEntry, error) {
	var all []core.WALEntry
	for i, index := range w.segmentIndexes {
		if index <= startRecoveryIndex {
			continue
		}
		last := i == len(w.segmentIndexes)-1
		path := filepath.Join(w.dir, core.FormatSegmentFileName(index))
		entries, err := recoverFromSegment(path, w.logger)
		all = append(all, entries...)
		if err == nil {
			continue
		}
		if last && errors.Is(err, errTornRecord) {
			w.logger.Warn("Dropping torn record at tail of last WAL segment", "index", index, "path", path)
			continue
		}
		w.logger.Warn("Recovery stopped on segment due to error", "index", index, "path", path, "error", err)
		return all, err
	}
	if len(all) > 0 {
		w.logger.Info("Recovered WAL entries", "count", len(all), "segments", len(w.segmentIndexes))
	}
	return all, nil
}

// recoverFromSegment reads all valid entries from a single WAL segment file.
// It returns the entries read before any error, and a nil error on a clean end.
func recoverFromSegment(filePath string, logger *slog.Logger) ([]core.WALEntry, error) {
	reader, err := OpenSegmentForRead(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("WAL segment does not exist, nothing to recover.", "path", filePath)
			return nil, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %w", errTornRecord, err)
		}
		return nil, err
	}
	defer reader.Close()

	decompressor, err := compressors.ForType(reader.CompressionType())
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", filePath, err)
	}

	var entries []core.WALEntry
	for {
		data, err := reader.ReadRecord()
		if err == io.EOF {
			return entries, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return entries, fmt.Errorf("segment %s: %w: %w", filePath, errTornRecord, err)
		}
		if err != nil {
			return entries, err
		}
		// A checksummed record with a bad payload is corruption, never a torn tail.
		payload, err := decompressor.Decompress(data)
		if err != nil {
			return entries, fmt.Errorf("failed to decompress record in %s: %w: %v", filePath, ErrCorruptRecord, err)
		}
		decoded, err := decodeRecord(payload)
		if err != nil {
			return entries, fmt.Errorf("segment %s: %w: %v", filePath, ErrCorruptRecord, err)
		}
		entries = append(entries, decoded...)
	}
}

func (w *WAL) openForAppend() error {
	if len(w.segmentIndexes) == 0 {
		return w.rotateLocked()
	}

	lastIndex := w.segmentIndexes[len(w.segmentIndexes)-1]
	path := filepath.Join(w.dir, core.FormatSegmentFileName(lastIndex))

	// Never append after a possibly torn record; start a fresh segment instead.
	stat, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat last segment %s: %w", path, err)
	}
	if stat.Size() > headerSize {
		return w.rotateLocked()
	}

	// A header-only segment is rewritten so it carries the current compressor.
	seg, err := CreateSegment(w.dir, lastIndex, w.opts.Compressor.Type())
	if err != nil {
		return fmt.Errorf("failed to reuse segment %d: %w", lastIndex, err)
	}
	w.activeSegment = seg
	return nil
}
