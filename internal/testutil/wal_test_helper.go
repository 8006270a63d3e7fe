// Package testutil holds helpers shared by package tests.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/INLOpen/nexuschain/core"
)

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// RequireWALPresent asserts that the wal/ directory exists under dataDir
// and contains at least one segment file.
func RequireWALPresent(t *testing.T, dataDir string) {
	t.Helper()
	files, err := ListWALFiles(dataDir)
	if err != nil {
		t.Fatalf("expected wal directory under %s: %v", dataDir, err)
	}
	if len(files) == 0 {
		t.Fatalf("expected wal segments in %s, none found", dataDir)
	}
}

// ListWALFiles returns the segment file paths under dataDir/wal in name order.
func ListWALFiles(dataDir string) ([]string, error) {
	walDir := filepath.Join(dataDir, core.WALDirName)
	entries, err := os.ReadDir(walDir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := core.ParseSegmentFileName(e.Name()); err == nil {
			files = append(files, filepath.Join(walDir, e.Name()))
		}
	}
	return files, nil
}
