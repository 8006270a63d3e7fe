package wal

import (
	"errors"
	"expvar"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/INLOpen/nexuschain/compressors"
	"github.com/INLOpen/nexuschain/core"
	"github.com/INLOpen/nexuschain/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to create WAL options for testing.
func testWALOptions(t *testing.T, dir string) Options {
	t.Helper()
	return Options{
		Dir:            dir,
		SyncMode:       core.WALSyncDisabled,
		MaxSegmentSize: 64 * 1024, // small, to exercise rotation
		Logger:         testutil.DiscardLogger(),
	}
}

// Helper to create a slice of test WAL entries.
func createTestWALEntries(count int, startSeqNum uint64) []core.WALEntry {
	entries := make([]core.WALEntry, count)
	for i := 0; i < count; i++ {
		entries[i] = core.WALEntry{
			EntryType: core.WALEntryAppend,
			Key:       []byte(fmt.Sprintf("key-%d", startSeqNum+uint64(i))),
			Record:    []byte(fmt.Sprintf("record-%d", startSeqNum+uint64(i))),
			SeqNum:    startSeqNum + uint64(i),
		}
	}
	return entries
}

func TestOpenWAL_New(t *testing.T) {
	opts := testWALOptions(t, t.TempDir())

	wal, recovered, err := Open(opts)
	require.NoError(t, err, "Opening a new WAL should not fail")
	require.NotNil(t, wal)
	defer wal.Close()

	assert.Empty(t, recovered, "A new WAL should have no recovered entries")
	assert.Equal(t, uint64(1), wal.ActiveSegmentIndex(), "A new WAL should start with segment index 1")
	assert.Equal(t, opts.Dir, wal.Path())
}

func TestWAL_AppendAndRecover(t *testing.T) {
	for _, name := range []string{"none", "snappy", "lz4", "zstd"} {
		t.Run(name, func(t *testing.T) {
			opts := testWALOptions(t, t.TempDir())
			c, err := compressors.ByName(name)
			require.NoError(t, err)
			opts.Compressor = c

			wal, _, err := Open(opts)
			require.NoError(t, err)

			entries := createTestWALEntries(5, 1)
			require.NoError(t, wal.AppendBatch(entries))

			replace := core.WALEntry{EntryType: core.WALEntryReplace, Key: []byte("key-1"), Record: nil, SeqNum: 6}
			require.NoError(t, wal.Append(replace))
			require.NoError(t, wal.Close())

			wal2, recovered, err := Open(opts)
			require.NoError(t, err, "Re-opening WAL should succeed")
			defer wal2.Close()

			expected := append(entries, core.WALEntry{EntryType: core.WALEntryReplace, Key: []byte("key-1"), Record: []byte{}, SeqNum: 6})
			require.Len(t, recovered, len(expected))
			for i := range expected {
				assert.Equal(t, expected[i].SeqNum, recovered[i].SeqNum)
				assert.Equal(t, expected[i].Key, recovered[i].Key)
				assert.Equal(t, expected[i].Record, recovered[i].Record)
				assert.Equal(t, expected[i].EntryType, recovered[i].EntryType)
			}
		})
	}
}

func TestWAL_RecoverMixedCompression(t *testing.T) {
	dir := t.TempDir()
	opts := testWALOptions(t, dir)

	wal, _, err := Open(opts)
	require.NoError(t, err)
	require.NoError(t, wal.AppendBatch(createTestWALEntries(3, 1)))
	require.NoError(t, wal.Close())

	// Segments written earlier keep decoding with the compressor in their header.
	opts.Compressor = compressors.NewSnappyCompressor()
	wal, recovered, err := Open(opts)
	require.NoError(t, err)
	require.Len(t, recovered, 3)
	require.NoError(t, wal.AppendBatch(createTestWALEntries(2, 4)))
	require.NoError(t, wal.Close())

	opts.Compressor = nil
	wal, recovered, err = Open(opts)
	require.NoError(t, err)
	defer wal.Close()
	require.Len(t, recovered, 5)
	assert.Equal(t, []byte("key-5"), recovered[4].Key)
}

func TestWAL_Rotation(t *testing.T) {
	opts := testWALOptions(t, t.TempDir())
	opts.MaxSegmentSize = 256

	wal, _, err := Open(opts)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), wal.ActiveSegmentIndex(), "Initial segment index should be 1")

	var total []core.WALEntry
	for i := 0; i < 10; i++ {
		entry := core.WALEntry{
			EntryType: core.WALEntryAppend,
			Key:       []byte(fmt.Sprintf("key-for-rotation-%d", i)),
			Record:    []byte("a somewhat long record to ensure we fill the segment"),
			SeqNum:    uint64(i + 1),
		}
		require.NoError(t, wal.Append(entry))
		total = append(total, entry)
	}
	require.NoError(t, wal.Sync())
	assert.Greater(t, wal.ActiveSegmentIndex(), uint64(1), "WAL should have rotated to a new segment")
	require.NoError(t, wal.Close())

	wal2, recovered, err := Open(opts)
	require.NoError(t, err)
	defer wal2.Close()
	require.Len(t, recovered, len(total), "Should recover all entries across rotated segments")
	assert.Equal(t, total[0].Key, recovered[0].Key)
	assert.Equal(t, total[len(total)-1].Key, recovered[len(recovered)-1].Key)
}

func TestWAL_OversizedRecordGetsOwnSegment(t *testing.T) {
	opts := testWALOptions(t, t.TempDir())
	opts.MaxSegmentSize = 128

	wal, _, err := Open(opts)
	require.NoError(t, err)

	big := core.WALEntry{EntryType: core.WALEntryAppend, Key: []byte("big"), Record: make([]byte, 1024), SeqNum: 1}
	require.NoError(t, wal.Append(big))
	assert.Equal(t, uint64(1), wal.ActiveSegmentIndex(), "first record lands in the empty segment")

	require.NoError(t, wal.Append(createTestWALEntries(1, 2)[0]))
	assert.Equal(t, uint64(2), wal.ActiveSegmentIndex())
	require.NoError(t, wal.Close())

	wal2, recovered, err := Open(opts)
	require.NoError(t, err)
	defer wal2.Close()
	require.Len(t, recovered, 2)
	assert.Len(t, recovered[0].Record, 1024)
}

func TestWAL_ConcurrentAppend(t *testing.T) {
	opts := testWALOptions(t, t.TempDir())
	opts.SyncMode = core.WALSyncAlways

	wal, _, err := Open(opts)
	require.NoError(t, err)

	numGoroutines := 10
	numEntriesPerGoroutine := 10
	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(gID int) {
			defer wg.Done()
			entries := createTestWALEntries(numEntriesPerGoroutine, uint64(1+gID*numEntriesPerGoroutine))
			assert.NoError(t, wal.AppendBatch(entries))
		}(i)
	}
	wg.Wait()
	require.NoError(t, wal.Close())

	wal2, recovered, err := Open(opts)
	require.NoError(t, err)
	defer wal2.Close()
	assert.Len(t, recovered, numGoroutines*numEntriesPerGoroutine, "Should recover all entries from all goroutines")
}

func TestWAL_Close(t *testing.T) {
	opts := testWALOptions(t, t.TempDir())
	wal, _, err := Open(opts)
	require.NoError(t, err)

	require.NoError(t, wal.Append(core.WALEntry{EntryType: core.WALEntryAppend, Key: []byte("a"), SeqNum: 1}))
	require.NoError(t, wal.Close())

	require.NotPanics(t, func() {
		assert.NoError(t, wal.Close())
	})
	assert.Error(t, wal.Append(core.WALEntry{EntryType: core.WALEntryAppend, Key: []byte("b"), SeqNum: 2}))
	assert.Equal(t, uint64(0), wal.ActiveSegmentIndex())
}

func TestWAL_RejectsUnknownEntryType(t *testing.T) {
	wal, _, err := Open(testWALOptions(t, t.TempDir()))
	require.NoError(t, err)
	defer wal.Close()

	err = wal.Append(core.WALEntry{EntryType: 'X', Key: []byte("a")})
	assert.Error(t, err)
}

func TestWAL_InjectedAppendError(t *testing.T) {
	wal, _, err := Open(testWALOptions(t, t.TempDir()))
	require.NoError(t, err)
	defer wal.Close()

	injected := errors.New("disk full")
	wal.SetTestingOnlyInjectAppendError(injected)
	assert.ErrorIs(t, wal.Append(createTestWALEntries(1, 1)[0]), injected)
}

func TestWAL_Metrics(t *testing.T) {
	opts := testWALOptions(t, t.TempDir())
	opts.BytesWritten = new(expvar.Int)
	opts.EntriesWritten = new(expvar.Int)

	wal, _, err := Open(opts)
	require.NoError(t, err)
	defer wal.Close()

	require.NoError(t, wal.AppendBatch(createTestWALEntries(3, 1)))
	assert.Equal(t, int64(3), opts.EntriesWritten.Value())
	assert.Greater(t, opts.BytesWritten.Value(), int64(0))
}

func TestWAL_Purge(t *testing.T) {
	opts := testWALOptions(t, t.TempDir())
	wal, _, err := Open(opts)
	require.NoError(t, err)
	defer wal.Close()

	require.NoError(t, wal.Append(createTestWALEntries(1, 1)[0]))
	require.NoError(t, wal.Rotate())
	require.NoError(t, wal.Append(createTestWALEntries(1, 2)[0]))
	require.NoError(t, wal.Rotate())
	require.Equal(t, []uint64{1, 2, 3}, wal.SegmentIndexes())

	// The active segment survives even when inside the purge range.
	require.NoError(t, wal.Purge(3))
	assert.Equal(t, []uint64{3}, wal.SegmentIndexes())
	_, err = os.Stat(filepath.Join(opts.Dir, core.FormatSegmentFileName(1)))
	assert.True(t, os.IsNotExist(err))
}

func TestWAL_TornTailIsDropped(t *testing.T) {
	opts := testWALOptions(t, t.TempDir())
	wal, _, err := Open(opts)
	require.NoError(t, err)
	require.NoError(t, wal.AppendBatch(createTestWALEntries(2, 1)))
	require.NoError(t, wal.Append(createTestWALEntries(1, 3)[0]))
	path := filepath.Join(opts.Dir, core.FormatSegmentFileName(wal.ActiveSegmentIndex()))
	require.NoError(t, wal.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-3))

	wal2, recovered, err := Open(opts)
	require.NoError(t, err)
	defer wal2.Close()
	require.Len(t, recovered, 2, "only the batch before the torn record survives")
	assert.Equal(t, uint64(2), wal2.ActiveSegmentIndex(), "appends go to a fresh segment")
}

func TestWAL_BadPayloadInLastSegmentIsReported(t *testing.T) {
	opts := testWALOptions(t, t.TempDir())
	wal, _, err := Open(opts)
	require.NoError(t, err)
	require.NoError(t, wal.Append(createTestWALEntries(1, 1)[0]))
	next := wal.ActiveSegmentIndex() + 1
	require.NoError(t, wal.Close())

	// The checksum is valid but the entry stops inside its sequence number.
	sw, err := CreateSegment(opts.Dir, next, core.CompressionNone)
	require.NoError(t, err)
	require.NoError(t, sw.WriteRecord([]byte{byte(core.WALEntryAppend), 0x01, 0x02}))
	require.NoError(t, sw.Close())

	wal2, recovered, err := Open(opts)
	require.ErrorIs(t, err, ErrCorruptRecord)
	require.NotNil(t, wal2)
	defer wal2.Close()
	assert.Len(t, recovered, 1)
}

func TestWAL_CorruptionInOlderSegmentIsReported(t *testing.T) {
	opts := testWALOptions(t, t.TempDir())
	wal, _, err := Open(opts)
	require.NoError(t, err)
	require.NoError(t, wal.Append(createTestWALEntries(1, 1)[0]))
	require.NoError(t, wal.Rotate())
	require.NoError(t, wal.Append(createTestWALEntries(1, 2)[0]))
	require.NoError(t, wal.Close())

	path := filepath.Join(opts.Dir, core.FormatSegmentFileName(1))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0644))

	wal2, recovered, err := Open(opts)
	require.ErrorIs(t, err, ErrCorruptRecord)
	require.NotNil(t, wal2)
	defer wal2.Close()
	assert.Empty(t, recovered)
}
