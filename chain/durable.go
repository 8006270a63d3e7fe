package chain

import (
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/INLOpen/nexuschain/core"
	"github.com/INLOpen/nexuschain/sys"
	"github.com/INLOpen/nexuschain/wal"
)

// DurableOptions configures a WAL-backed log.
type DurableOptions struct {
	// Dir is the data directory. It holds the LOCK file and the wal/ subdirectory.
	Dir            string
	SyncMode       core.WALSyncMode
	MaxSegmentSize int64
	Compressor     core.Compressor
	// LockTimeout bounds how long Open waits for another process to release Dir.
	LockTimeout    time.Duration
	BytesWritten   *expvar.Int
	EntriesWritten *expvar.Int
	Logger         *slog.Logger
}

// DurableLog is a MemoryLog whose mutations are written to a WAL first and
// replayed on open.
type DurableLog struct {
	mu      sync.Mutex
	mem     *MemoryLog
	wal     *wal.WAL
	lock    *sys.DirLock
	nextSeq uint64
	logger  *slog.Logger
	closed  bool
}

var _ Log = (*DurableLog)(nil)

// OpenDurable locks opts.Dir, recovers its WAL and returns the rebuilt log.
// Any recovery error other than a torn tail record is fatal.
func OpenDurable(opts DurableOptions) (*DurableLog, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "DurableLog")
	} else {
		logger = logger.With("component", "DurableLog")
	}

	walDir := filepath.Join(opts.Dir, core.WALDirName)
	lock, err := lockDataDir(opts.Dir, walDir, opts.LockTimeout)
	if err != nil {
		return nil, err
	}

	w, entries, err := wal.Open(wal.Options{
		Dir:            walDir,
		SyncMode:       opts.SyncMode,
		MaxSegmentSize: opts.MaxSegmentSize,
		Compressor:     opts.Compressor,
		BytesWritten:   opts.BytesWritten,
		EntriesWritten: opts.EntriesWritten,
		Logger:         opts.Logger,
	})
	if err != nil {
		if w != nil {
			w.Close()
		}
		lock.Release()
		return nil, fmt.Errorf("failed to recover chain log in %s: %w", opts.Dir, err)
	}

	d := &DurableLog{
		mem:     NewMemoryLog(),
		wal:     w,
		lock:    lock,
		nextSeq: 1,
		logger:  logger,
	}
	for _, e := range entries {
		switch e.EntryType {
		case core.WALEntryAppend:
			d.mem.appendLocked(e.Key, e.Record)
		case core.WALEntryReplace:
			d.mem.replaceLocked(e.Key, e.Record)
		}
		if e.SeqNum >= d.nextSeq {
			d.nextSeq = e.SeqNum + 1
		}
	}
	logger.Info("Chain log opened", "dir", opts.Dir, "replayed_entries", len(entries), "next_seq", d.nextSeq)
	return d, nil
}

func lockDataDir(dir, walDir string, timeout time.Duration) (*sys.DirLock, error) {
	if err := mkdirAll(walDir); err != nil {
		return nil, err
	}
	return sys.LockDir(dir, timeout)
}

func (d *DurableLog) write(entries []core.WALEntry) error {
	for i := range entries {
		entries[i].SeqNum = d.nextSeq
		d.nextSeq++
	}
	if len(entries) == 1 {
		return d.wal.Append(entries[0])
	}
	return d.wal.AppendBatch(entries)
}

// Append writes record to the WAL, then to key's in-memory chain.
func (d *DurableLog) Append(key, record []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if err := d.write([]core.WALEntry{{EntryType: core.WALEntryAppend, Key: key, Record: record}}); err != nil {
		return fmt.Errorf("chain append: %w", err)
	}
	return d.mem.Append(key, record)
}

// Replace writes the compaction to the WAL, then applies it in memory.
func (d *DurableLog) Replace(key, compacted []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if err := d.write([]core.WALEntry{{EntryType: core.WALEntryReplace, Key: key, Record: compacted}}); err != nil {
		return fmt.Errorf("chain replace: %w", err)
	}
	return d.mem.Replace(key, compacted)
}

// Records returns copies of key's records in append order.
func (d *DurableLog) Records(key []byte) ([][]byte, error) {
	return d.mem.Records(key)
}

// Keys returns every key with a non-empty chain in ascending order.
func (d *DurableLog) Keys() ([][]byte, error) {
	return d.mem.Keys()
}

// ChainLengths returns the record count of every non-empty chain.
func (d *DurableLog) ChainLengths() []int {
	return d.mem.ChainLengths()
}

// Sync flushes the WAL to stable storage.
func (d *DurableLog) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return d.wal.Sync()
}

// Checkpoint rewrites the live chains into a fresh WAL segment and purges
// the older segments. A crash part way through leaves the old segments in
// place, and replaying them followed by the partial rewrite yields the same
// chains.
func (d *DurableLog) Checkpoint() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	prev := d.wal.ActiveSegmentIndex()
	if err := d.wal.Rotate(); err != nil {
		return fmt.Errorf("checkpoint rotate: %w", err)
	}

	d.mem.mu.RLock()
	var batches [][]core.WALEntry
	d.mem.data.Range(func(key []byte, entry *chainEntry) bool {
		if len(entry.records) == 0 {
			return true
		}
		batch := make([]core.WALEntry, 0, len(entry.records))
		batch = append(batch, core.WALEntry{EntryType: core.WALEntryReplace, Key: key, Record: entry.records[0]})
		for _, r := range entry.records[1:] {
			batch = append(batch, core.WALEntry{EntryType: core.WALEntryAppend, Key: key, Record: r})
		}
		batches = append(batches, batch)
		return true
	})
	d.mem.mu.RUnlock()

	for _, batch := range batches {
		if err := d.write(batch); err != nil {
			return fmt.Errorf("checkpoint write: %w", err)
		}
	}
	if err := d.wal.Sync(); err != nil {
		return fmt.Errorf("checkpoint sync: %w", err)
	}
	if err := d.wal.Purge(prev); err != nil {
		return fmt.Errorf("checkpoint purge: %w", err)
	}
	d.logger.Info("Chain log checkpointed", "chains", len(batches), "purged_up_to", prev)
	return nil
}

// Close flushes the WAL and releases the data directory.
func (d *DurableLog) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return errors.Join(d.wal.Close(), d.mem.Close(), d.lock.Release())
}

func mkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return nil
}
