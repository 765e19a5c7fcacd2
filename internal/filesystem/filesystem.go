// Package filesystem provides the low-level primitives the tail engine builds
// on: availability-aware reads, blocking-mode control, and probes for file
// tailability and remote filesystems.
package filesystem

import (
	"errors"
	"io"
	"io/fs"
	"os"
)

// ErrNoData is returned by ReadAvailable when a non-blocking descriptor has
// nothing to read right now. It is a quiet condition, not a failure.
var ErrNoData = errors.New("no data available")

// Tailable reports whether a file of the given mode can be tailed.
// Regular files, FIFOs, sockets and character devices qualify; directories,
// block devices and everything else do not.
func Tailable(m fs.FileMode) bool {
	switch {
	case m.IsRegular():
		return true
	case m&fs.ModeNamedPipe != 0:
		return true
	case m&fs.ModeSocket != 0:
		return true
	case m&fs.ModeCharDevice != 0:
		return true
	}
	return false
}

// ReadAvailable reads up to len(buf) bytes from f. With blocking set it
// behaves like File.Read, suspending until data arrives; n == 0 with a nil
// error means end of file. Without blocking the descriptor must already be in
// non-blocking mode (see SetBlocking) and an empty pipe surfaces as ErrNoData
// rather than a suspended read. Interrupted reads are retried transparently.
func ReadAvailable(f *os.File, buf []byte, blocking bool) (int, error) {
	if blocking {
		n, err := f.Read(buf)
		if err == io.EOF {
			return n, nil
		}
		return n, err
	}
	return readNonblock(f, buf)
}
