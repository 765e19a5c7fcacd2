package tail

import (
	"bytes"
	"io"
	"io/fs"
	"os"

	"github.com/dweomer/gotail/internal/filesystem"
)

// fileLines prints the last n lines of a seekable regular file by scanning
// block-aligned buffers backward from EOF. startPos is the position the
// stream pointer held on entry, endPos the EOF offset. Returns the stream
// position consumed.
func (t *Tailer) fileLines(tg *Target, fi fs.FileInfo, n, startPos, endPos int64) (int64, error) {
	readPos := endPos
	if n == 0 {
		return readPos, nil
	}

	// Pseudo-filesystems can accept an aligned seek into a file and then
	// return no data on a misaligned read; when the size is an exact multiple
	// of the page size, read whole pages.
	bufsize := int64(bufSize)
	if pageSize := int64(os.Getpagesize()); fi.Size()%pageSize == 0 && pageSize > bufsize {
		bufsize = pageSize
	}
	buffer := make([]byte, bufsize)
	delim := t.cfg.delim()

	// Trailing, probably partial, block; pos then stays a multiple of
	// bufsize so every further read lands on a block boundary.
	pos := endPos
	want := (pos - startPos) % bufsize
	if want == 0 {
		want = bufsize
	}
	pos -= want
	if _, err := t.seek(tg, pos, io.SeekStart); err != nil {
		return readPos, err
	}
	r, rerr := filesystem.ReadAvailable(tg.file, buffer[:want], true)
	if rerr != nil {
		t.diag("error reading %s: %s", tg.pretty(), errText(rerr))
		return readPos, errRead
	}
	bytesRead := int64(r)
	readPos = pos + bytesRead

	// A file that does not end in the delimiter still ends in one logical
	// line.
	if bytesRead > 0 && buffer[bytesRead-1] != delim {
		n--
	}

	for bytesRead > 0 {
		// Scan backward, counting delimiters in this buffer.
		nb := bytesRead
		for nb > 0 {
			i := int64(bytes.LastIndexByte(buffer[:nb], delim))
			if i < 0 {
				break
			}
			nb = i
			if n == 0 {
				// The first byte after this delimiter starts the output.
				if err := t.write(buffer[i+1 : bytesRead]); err != nil {
					return readPos, err
				}
				written, err := t.dumpRemainder(tg, false, endPos-(pos+bytesRead))
				return readPos + written, err
			}
			n--
		}

		// Not enough delimiters here; step back one block.
		if pos == startPos {
			// Fewer lines in the file than requested: print it all.
			if _, err := t.seek(tg, startPos, io.SeekStart); err != nil {
				return readPos, err
			}
			written, err := t.dumpRemainder(tg, false, endPos)
			return startPos + written, err
		}
		pos -= bufsize
		if _, err := t.seek(tg, pos, io.SeekStart); err != nil {
			return readPos, err
		}
		r, rerr = filesystem.ReadAvailable(tg.file, buffer, true)
		if rerr != nil {
			t.diag("error reading %s: %s", tg.pretty(), errText(rerr))
			return readPos, errRead
		}
		bytesRead = int64(r)
		readPos = pos + bytesRead
	}
	return readPos, nil
}
