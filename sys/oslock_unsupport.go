//go:build !unix && !windows

package sys

import (
	"errors"
	"os"
)

var ErrOSFileLockNotSupported = errors.New("OS file locking not supported on this platform")

var errWouldBlock = errors.New("lock held")

func lockFile(f *os.File) error {
	return ErrOSFileLockNotSupported
}

func unlockFile(f *os.File) error {
	return nil
}
