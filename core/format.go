package core

import (
	"fmt"
	"strconv"
	"strings"
)

// This file centralizes constants related to on-disk formats and file names
// used by the durable chain log.

// --- Magic Numbers ---
const (
	// WALMagicNumber identifies a chain WAL segment file.
	WALMagicNumber uint32 = 0xC4A1F00D
)

// --- Protocol & Format Versions ---
const (
	// FormatVersion is the current version for all persistent file formats.
	FormatVersion uint8 = 1
)

// --- File Names & Prefixes ---
const (
	// WALFileSuffix is the suffix for WAL segment files.
	WALFileSuffix = ".wal"
	// WALDirName is the subdirectory of the data dir holding WAL segments.
	WALDirName = "wal"
	// LockFileName is the advisory lock taken on a data dir.
	LockFileName = "LOCK"
)

// --- Default Sizes & Limits ---
const (
	// WALMaxSegmentSize is the default maximum size for a WAL segment file.
	WALMaxSegmentSize = 64 * 1024 * 1024 // 64 MB
	// ChecksumSize is the CRC32 trailer written after each WAL record.
	ChecksumSize = 4
	// SeqNumSize is the width of a WAL sequence number.
	SeqNumSize = 8
)

// FormatSegmentFileName creates a segment file name from its index.
func FormatSegmentFileName(index uint64) string {
	return fmt.Sprintf("%08d%s", index, WALFileSuffix)
}

// ParseSegmentFileName extracts the index from a segment file name.
func ParseSegmentFileName(name string) (uint64, error) {
	if !strings.HasSuffix(name, WALFileSuffix) {
		return 0, fmt.Errorf("file %s is not a WAL segment file", name)
	}
	name = strings.TrimSuffix(name, WALFileSuffix)
	return strconv.ParseUint(name, 10, 64)
}
