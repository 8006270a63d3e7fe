package core

// WALEntryType distinguishes the chain mutations persisted in the WAL.
type WALEntryType byte

const (
	// WALEntryAppend appends one encoded operation record to a key's chain.
	WALEntryAppend WALEntryType = 'A'
	// WALEntryReplace swaps a key's chain for its compacted record.
	// An empty record drops the chain.
	WALEntryReplace WALEntryType = 'C'
)

// WALEntry represents a single chain mutation recorded in the WAL.
type WALEntry struct {
	EntryType WALEntryType
	Key       []byte
	Record    []byte
	SeqNum    uint64
}

// WALSyncMode defines how frequently the WAL is synced to disk.
type WALSyncMode string

const (
	WALSyncAlways   WALSyncMode = "always"   // Sync after every append
	WALSyncDisabled WALSyncMode = "disabled" // Leave flushing to Sync/Close
)
