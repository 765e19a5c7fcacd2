package tail

import (
	"bytes"
	"errors"

	"github.com/dweomer/gotail/internal/filesystem"
)

// lineBuffer is one link of the bounded buffer chain used when seeking is
// impossible. nlines is maintained only by pipeLines.
type lineBuffer struct {
	buf    []byte
	nbytes int
	nlines int64
	next   *lineBuffer
}

func newLineBuffer() *lineBuffer {
	return &lineBuffer{buf: make([]byte, bufSize)}
}

// pipeLines prints the last n lines of a non-seekable stream. Input
// accumulates in a linked list of fixed buffers; the head is recycled as soon
// as dropping it still leaves enough lines, so residence stays proportional
// to n plus a couple of buffers, never to the input length.
func (t *Tailer) pipeLines(tg *Target, n int64) (int64, error) {
	first := newLineBuffer()
	last := first
	tmp := newLineBuffer()
	delim := []byte{t.cfg.delim()}
	var total int64
	var readPos int64
	blocking := tg.blocking != blockOff

	for {
		r, rerr := filesystem.ReadAvailable(tg.file, tmp.buf, blocking)
		if rerr != nil {
			if !errors.Is(rerr, filesystem.ErrNoData) {
				t.diag("error reading %s: %s", tg.pretty(), errText(rerr))
				return readPos, errRead
			}
			break
		}
		if r == 0 {
			break
		}
		tmp.nbytes = r
		readPos += int64(r)
		tmp.nlines = int64(bytes.Count(tmp.buf[:r], delim))
		tmp.next = nil
		total += tmp.nlines

		// Pipe reads are often tiny; pack them into the tail buffer while
		// they fit, otherwise link a new one and recycle or grow the chain.
		if tmp.nbytes+last.nbytes < bufSize {
			copy(last.buf[last.nbytes:], tmp.buf[:tmp.nbytes])
			last.nbytes += tmp.nbytes
			last.nlines += tmp.nlines
		} else {
			last.next = tmp
			last = tmp
			if total-first.nlines > n {
				tmp = first
				total -= first.nlines
				first = first.next
			} else {
				tmp = newLineBuffer()
			}
		}
	}

	if last.nbytes == 0 || n == 0 {
		return readPos, nil
	}

	// A stream that does not end in the delimiter still ends in one logical
	// line.
	if last.buf[last.nbytes-1] != delim[0] {
		last.nlines++
		total++
	}

	// Skip whole buffers whose lines are all surplus.
	cur := first
	for total-cur.nlines > n {
		total -= cur.nlines
		cur = cur.next
	}

	// Locate the exact starting byte inside the remaining head buffer.
	beg := 0
	if total > n {
		for j := total - n; j > 0; j-- {
			i := bytes.IndexByte(cur.buf[beg:cur.nbytes], delim[0])
			beg += i + 1
		}
	}
	if err := t.write(cur.buf[beg:cur.nbytes]); err != nil {
		return readPos, err
	}
	for cur = cur.next; cur != nil; cur = cur.next {
		if err := t.write(cur.buf[:cur.nbytes]); err != nil {
			return readPos, err
		}
	}
	return readPos, nil
}

// pipeBytes prints the last n bytes of a non-seekable stream; the stripped
// down byte-counting variant of pipeLines.
func (t *Tailer) pipeBytes(tg *Target, n int64) (int64, error) {
	first := newLineBuffer()
	last := first
	tmp := newLineBuffer()
	var total int64
	var readPos int64
	blocking := tg.blocking != blockOff

	for {
		r, rerr := filesystem.ReadAvailable(tg.file, tmp.buf, blocking)
		if rerr != nil {
			if !errors.Is(rerr, filesystem.ErrNoData) {
				t.diag("error reading %s: %s", tg.pretty(), errText(rerr))
				return readPos, errRead
			}
			break
		}
		if r == 0 {
			break
		}
		tmp.nbytes = r
		readPos += int64(r)
		tmp.next = nil
		total += int64(r)

		if tmp.nbytes+last.nbytes < bufSize {
			copy(last.buf[last.nbytes:], tmp.buf[:tmp.nbytes])
			last.nbytes += tmp.nbytes
		} else {
			last.next = tmp
			last = tmp
			if total-int64(first.nbytes) > n {
				tmp = first
				total -= int64(first.nbytes)
				first = first.next
			} else {
				tmp = newLineBuffer()
			}
		}
	}

	cur := first
	for total-int64(cur.nbytes) > n {
		total -= int64(cur.nbytes)
		cur = cur.next
	}

	var i int64
	if total > n {
		i = total - n
	}
	if err := t.write(cur.buf[i:cur.nbytes]); err != nil {
		return readPos, err
	}
	for cur = cur.next; cur != nil; cur = cur.next {
		if err := t.write(cur.buf[:cur.nbytes]); err != nil {
			return readPos, err
		}
	}
	return readPos, nil
}
