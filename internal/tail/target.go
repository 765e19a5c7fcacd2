package tail

import (
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// blockState tracks what blocking mode a target's descriptor was last set to.
type blockState int

const (
	blockUnknown blockState = iota
	blockOff
	blockOn
)

// Target is the per-name record the follow engine works on. One Target exists
// for every operand; it owns its file handle and, in notification mode, its
// watch descriptors. Exactly one of {file == nil, err == nil} holds at any
// observable moment: a healthy target has an open handle, a failed one
// remembers why.
type Target struct {
	Name string // operand as given; "-" for standard input

	file  *os.File
	size  int64 // bytes consumed (regular files: offset mirroring the inode)
	mtime time.Time
	dev   uint64
	ino   uint64
	mode  fs.FileMode

	blocking blockState
	err      error // last open/stat failure, nil when healthy
	ignore   bool  // permanently out of this run
	tailable bool
	remote   bool

	unchanged int // consecutive polls with no stat change

	// Notification-mode bookkeeping.
	wd       int
	parentWD int
	basename string
}

// newTarget builds the record before any I/O happens on the name.
func newTarget(name string) *Target {
	return &Target{
		Name:     name,
		wd:       -1,
		parentWD: -1,
		basename: filepath.Base(name),
	}
}

// pretty renders the name for headers and diagnostics.
func (t *Target) pretty() string {
	if t.Name == "-" {
		return "standard input"
	}
	return t.Name
}

// open reports whether the target currently holds a descriptor.
func (t *Target) open() bool {
	return t.file != nil
}

// record captures the identity and shape of the opened inode from a stat of
// the held descriptor.
func (t *Target) record(fi fs.FileInfo) {
	t.mode = fi.Mode()
	t.mtime = fi.ModTime()
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		t.dev = uint64(st.Dev)
		t.ino = uint64(st.Ino)
	}
}

// sameInode reports whether fi describes the inode this target has open.
func (t *Target) sameInode(fi fs.FileInfo) bool {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return t.dev == uint64(st.Dev) && t.ino == uint64(st.Ino)
}

// close releases the held descriptor, if any. Standard input is left open;
// the process owns it.
func (t *Target) close() {
	if t.file != nil && t.file != os.Stdin {
		t.file.Close()
	}
	t.file = nil
}

// errno extracts the raw error code for change-of-error comparisons.
func errno(err error) syscall.Errno {
	var e syscall.Errno
	if err == nil {
		return 0
	}
	for {
		switch v := err.(type) {
		case syscall.Errno:
			return v
		case *os.PathError:
			err = v.Err
		case *os.SyscallError:
			err = v.Err
		case *os.LinkError:
			err = v.Err
		default:
			return e
		}
	}
}
