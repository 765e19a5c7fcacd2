package tail

import (
	"bytes"
	"io"
	"io/fs"
	"syscall"

	"github.com/dweomer/gotail/internal/filesystem"
)

// usableSize reports whether st_size can be believed for positioning. Sizes
// on /proc-like filesystems are notional, but those files are still regular,
// matching the original heuristic of trusting regular files only.
func usableSize(fi fs.FileInfo) bool {
	return fi.Mode().IsRegular()
}

// blockSizeOf returns the preferred I/O block size for the file, used to
// decide when a file is large enough that seeking beats re-reading it.
func blockSizeOf(fi fs.FileInfo) int64 {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok && st.Blksize > 0 {
		return int64(st.Blksize)
	}
	return 512
}

// tailBytes prints the last n bytes of the target, or with FromStart skips n
// bytes from the head and prints the rest. Returns the stream position
// consumed so far.
func (t *Tailer) tailBytes(tg *Target, n int64) (int64, error) {
	fi, err := tg.file.Stat()
	if err != nil {
		t.diag("cannot fstat %s: %s", tg.pretty(), errText(err))
		return 0, errRead
	}

	var readPos int64
	if t.cfg.FromStart {
		seeked := false
		if !t.cfg.PresumeInputPipe {
			if fi.Mode().IsRegular() {
				if _, err := t.seek(tg, n, io.SeekCurrent); err != nil {
					return 0, err
				}
				seeked = true
			} else if _, serr := tg.file.Seek(n, io.SeekCurrent); serr == nil {
				seeked = true
			}
		}
		if seeked {
			readPos = n
		} else {
			eof, err := t.startBytes(tg, n, &readPos)
			if err != nil || eof {
				return readPos, err
			}
		}
		written, err := t.dumpRemainder(tg, false, copyToEOF)
		return readPos + written, err
	}

	endPos := int64(-1)
	currentPos := int64(-1)
	copyFromCurrent := false
	if !t.cfg.PresumeInputPipe {
		if usableSize(fi) {
			// Seek only when the file is clearly bigger than one block;
			// short files are cheaper to re-read, and notional sizes on
			// pseudo-filesystems stay harmless.
			endPos = fi.Size()
			copyFromCurrent = blockSizeOf(fi) < endPos
		} else if pos, serr := tg.file.Seek(-n, io.SeekEnd); serr == nil {
			currentPos = pos
			endPos = pos + n
			copyFromCurrent = true
		}
	}
	if !copyFromCurrent {
		return t.pipeBytes(tg, n)
	}
	if currentPos == -1 {
		var err error
		if currentPos, err = t.seek(tg, 0, io.SeekCurrent); err != nil {
			return 0, err
		}
	}
	if currentPos < endPos && n < endPos-currentPos {
		currentPos = endPos - n
		if _, err := t.seek(tg, currentPos, io.SeekStart); err != nil {
			return 0, err
		}
	}
	readPos = currentPos
	written, err := t.dumpRemainder(tg, false, n)
	return readPos + written, err
}

// tailLines prints the last n lines of the target, or with FromStart skips n
// lines from the head and prints the rest.
func (t *Tailer) tailLines(tg *Target, n int64) (int64, error) {
	fi, err := tg.file.Stat()
	if err != nil {
		t.diag("cannot fstat %s: %s", tg.pretty(), errText(err))
		return 0, errRead
	}

	if t.cfg.FromStart {
		var readPos int64
		eof, err := t.startLines(tg, n, &readPos)
		if err != nil || eof {
			return readPos, err
		}
		written, err := t.dumpRemainder(tg, false, copyToEOF)
		return readPos + written, err
	}

	// The backward scan needs a regular file on which SEEK_END works and a
	// position strictly before EOF.
	startPos := int64(-1)
	if !t.cfg.PresumeInputPipe && fi.Mode().IsRegular() {
		if sp, serr := tg.file.Seek(0, io.SeekCurrent); serr == nil {
			startPos = sp
			if ep, serr := tg.file.Seek(0, io.SeekEnd); serr == nil && sp < ep {
				return t.fileLines(tg, fi, n, sp, ep)
			}
		}
	}
	// Reposition if the probe above moved the offset.
	if startPos != -1 {
		if _, err := t.seek(tg, startPos, io.SeekStart); err != nil {
			return 0, err
		}
	}
	return t.pipeLines(tg, n)
}

// startBytes skips n bytes from the current position by reading, and prints
// whatever surplus the final read brought in. Reports eof when the stream
// ends before the skip completes.
func (t *Tailer) startBytes(tg *Target, n int64, readPos *int64) (eof bool, err error) {
	buf := make([]byte, bufSize)
	blocking := tg.blocking != blockOff
	for n > 0 {
		r, rerr := filesystem.ReadAvailable(tg.file, buf, blocking)
		if rerr != nil {
			t.diag("error reading %s: %s", tg.pretty(), errText(rerr))
			return false, errRead
		}
		if r == 0 {
			return true, nil
		}
		*readPos += int64(r)
		if int64(r) <= n {
			n -= int64(r)
			continue
		}
		if err := t.write(buf[n:r]); err != nil {
			return false, err
		}
		break
	}
	return false, nil
}

// startLines skips n lines from the current position by reading, and prints
// whatever follows the nth delimiter in the final read. Reports eof when the
// stream ends short of n lines.
func (t *Tailer) startLines(tg *Target, n int64, readPos *int64) (eof bool, err error) {
	if n == 0 {
		return false, nil
	}
	delim := t.cfg.delim()
	buf := make([]byte, bufSize)
	blocking := tg.blocking != blockOff
	for {
		r, rerr := filesystem.ReadAvailable(tg.file, buf, blocking)
		if rerr != nil {
			t.diag("error reading %s: %s", tg.pretty(), errText(rerr))
			return false, errRead
		}
		if r == 0 {
			return true, nil
		}
		*readPos += int64(r)
		p := 0
		for p < r {
			i := bytes.IndexByte(buf[p:r], delim)
			if i < 0 {
				break
			}
			p += i + 1
			n--
			if n == 0 {
				if p < r {
					if err := t.write(buf[p:r]); err != nil {
						return false, err
					}
				}
				return false, nil
			}
		}
	}
}
