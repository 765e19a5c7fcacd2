package tail

import (
	"io"
	"io/fs"
	"os"
	"syscall"

	"github.com/dweomer/gotail/internal/filesystem"
)

// recheck reopens a target's name and reconciles the record with whatever
// currently bears it: same inode, rotated inode, vanished, or untailable.
// The held-descriptor fstat cannot reveal these changes, so follow code calls
// this whenever it suspects one. notify is true when the notification
// back-end is driving (symlinks and remote files are unwatchable there).
// Only fatal errors (seek failures) are returned.
func (t *Tailer) recheck(tg *Target, blocking, notify bool) error {
	isStdin := tg.Name == "-"
	wasTailable := tg.tailable
	prevErr := tg.err

	var file *os.File
	var openErr error
	if isStdin {
		file = os.Stdin
	} else {
		file, openErr = os.Open(tg.Name)
		if openErr == nil && !blocking {
			if err := filesystem.SetBlocking(file, false); err != nil {
				file.Close()
				file, openErr = nil, err
			}
		}
	}

	tg.tailable = !(t.cfg.Retry && openErr != nil)

	ok := true
	var fi fs.FileInfo
	var statErr error
	if openErr == nil {
		fi, statErr = file.Stat()
	}

	isLink := false
	if notify && !isStdin {
		if li, err := os.Lstat(tg.Name); err == nil && li.Mode()&fs.ModeSymlink != 0 {
			isLink = true
		}
	}

	switch {
	case isLink:
		// A name that turned into a symlink cannot be matched against the
		// inode-indexed event stream.
		ok = false
		tg.err = errUntailable
		tg.ignore = true
		t.diag("%s has been replaced with an untailable symbolic link", tg.pretty())

	case openErr != nil || statErr != nil:
		ok = false
		if openErr != nil {
			tg.err = openErr
		} else {
			tg.err = statErr
		}
		if !tg.tailable {
			if wasTailable {
				t.diag("%s has become inaccessible: %s", tg.pretty(), errText(tg.err))
			}
			// Still not tailable: say nothing.
		} else if errno(prevErr) != errno(tg.err) {
			t.diag("%s: %s", tg.pretty(), errText(tg.err))
		}

	case !filesystem.Tailable(fi.Mode()):
		ok = false
		tg.err = errUntailable
		tg.tailable = false
		tg.ignore = !(t.cfg.Retry && t.cfg.Follow == FollowName)
		if wasTailable || prevErr == nil || errno(prevErr) != 0 {
			suffix := ""
			if tg.ignore {
				suffix = "; giving up on this name"
			}
			t.diag("%s has been replaced with an untailable file%s", tg.pretty(), suffix)
		}

	default:
		tg.remote = filesystem.Remote(file)
		if tg.remote && notify {
			// Event notification is unreliable across the network.
			ok = false
			tg.err = errUntailable
			tg.ignore = true
			t.diag("%s has been replaced with an untailable remote file", tg.pretty())
		} else {
			tg.err = nil
		}
	}

	if !ok {
		if file != nil && !isStdin {
			file.Close()
		}
		tg.close()
		return nil
	}

	newFile := false
	switch {
	case prevErr != nil && errno(prevErr) != syscall.ENOENT:
		newFile = true
		t.diag("%s has become accessible", tg.pretty())
	case tg.file == nil:
		// Even an unchanged (dev,ino) pair is a new file here: the pair can
		// be reused, and the name was missing on the previous pass.
		newFile = true
		t.diag("%s has appeared; following new file", tg.pretty())
	case !tg.sameInode(fi):
		newFile = true
		t.diag("%s has been replaced; following new file", tg.pretty())
		tg.close()
	default:
		// Same inode as the one already held; keep it.
		if !isStdin {
			file.Close()
		}
	}

	if newFile {
		tg.file = file
		tg.size = 0
		tg.err = nil
		tg.unchanged = 0
		tg.record(fi)
		if isStdin {
			tg.blocking = blockUnknown
		} else if blocking {
			tg.blocking = blockOn
		} else {
			tg.blocking = blockOff
		}
		if fi.Mode().IsRegular() {
			if _, err := t.seek(tg, 0, io.SeekStart); err != nil {
				return err
			}
		}
	}
	return nil
}
