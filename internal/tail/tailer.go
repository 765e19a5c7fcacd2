// Package tail prints the last part of one or more byte streams and can
// follow them, printing data as it is appended. It copes with truncation,
// rotation, disappearance and re-creation of the watched names, remote
// filesystems, and writer-process liveness, using either a polling loop or a
// kernel-notification loop with a defined fallback between the two.
package tail

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"
	"syscall"
	"time"

	"github.com/dweomer/gotail/internal/filesystem"
)

// bufSize is the unit of all streaming reads and of the ring tailer's
// buffers.
const bufSize = 8192

// Sentinel limits for dumpRemainder.
const (
	copyToEOF   int64 = -1
	copyABuffer int64 = -2
)

// ErrOutputClosed reports that the reader of the output pipe went away. The
// command layer exits as if killed by the pipe signal.
var ErrOutputClosed = errors.New("output reader has gone away")

// ErrIncomplete reports that at least one operand failed; every failure has
// already been written to stderr, so the caller exits non-zero silently.
var ErrIncomplete = errors.New("not all operands could be tailed")

// errRead marks a read failure that was already diagnosed. Follow loops close
// the target and carry on; the initial pass records the operand as failed.
var errRead = errors.New("read error")

// errNoFiles ends a follow run when no target is live or retryable.
var errNoFiles = errors.New("no files remaining")

// errFallback asks the driver to revert from the notification back-end to
// polling. All target state survives the transition.
var errFallback = errors.New("reverting to polling")

// errUntailable stands in for "wrong kind of file" conditions that carry no
// system error code.
var errUntailable = errors.New("untailable")

// Tailer runs the initial tail and, when configured, the follow engine over a
// set of targets. It owns the buffered output stream; diagnostics go to errw.
type Tailer struct {
	cfg  Config
	out  *bufio.Writer
	outf *os.File // underlying output file, when there is one
	errw io.Writer

	printHeaders  bool
	wroteHeader   bool
	monitorOutput bool
	prev          *Target // last target that produced output
	ok            bool
}

// New builds a Tailer writing stream data to out and diagnostics to errw.
func New(cfg Config, out io.Writer, errw io.Writer) *Tailer {
	if cfg.MaxUnchangedStats <= 0 {
		cfg.MaxUnchangedStats = DefaultMaxUnchangedStats
	}
	t := &Tailer{
		cfg:  cfg,
		out:  bufio.NewWriterSize(out, bufSize),
		errw: errw,
		ok:   true,
	}
	if f, isFile := out.(*os.File); isFile {
		t.outf = f
	}
	return t
}

// Run tails every name, then follows them if configured. Names are visited in
// command-line order; "-" is standard input. The returned error is nil on
// full success, ErrIncomplete when some operand failed (already diagnosed),
// ErrOutputClosed when the output reader went away, or a fatal condition
// worth printing.
func (t *Tailer) Run(ctx context.Context, names []string) error {
	if len(names) == 0 {
		names = []string{"-"}
	}
	t.printHeaders = t.cfg.Headers == HeaderAlways ||
		(t.cfg.Headers == HeaderAuto && len(names) > 1)

	targets := make([]*Target, len(names))
	for i, name := range names {
		targets[i] = newTarget(name)
	}

	for _, tg := range targets {
		if err := t.tailFile(tg, len(targets)); err != nil {
			return err
		}
	}

	if t.cfg.following() && t.ignoreFifoAndPipe(targets) > 0 {
		if t.outf != nil {
			if fi, err := t.outf.Stat(); err == nil {
				m := fi.Mode()
				t.monitorOutput = m&fs.ModeNamedPipe != 0 || m&fs.ModeSocket != 0
			}
		}

		if t.notifyApplicable(targets) {
			if err := t.flush(); err != nil {
				return err
			}
			err := t.followNotify(ctx, targets)
			if !errors.Is(err, errFallback) {
				return t.finish(err)
			}
			t.diag("inotify cannot be used, reverting to polling")
		}
		return t.finish(t.followPoll(ctx, targets))
	}

	return t.finish(nil)
}

// finish flushes buffered output and folds the run-wide success flag into the
// final error.
func (t *Tailer) finish(err error) error {
	if ferr := t.flush(); err == nil {
		err = ferr
	}
	if err == nil && !t.ok {
		err = ErrIncomplete
	}
	return err
}

// tailFile opens one target and prints its initial tail, then prepares the
// record for following. Only fatal conditions (write or seek failures) are
// returned; per-target problems are diagnosed and recorded on the target.
func (t *Tailer) tailFile(tg *Target, nFiles int) error {
	isStdin := tg.Name == "-"

	// Avoid reads that could block when the follow loop must multiplex.
	nonblocking := t.cfg.following() && (len(t.cfg.PIDs) > 0 || nFiles > 1)

	var f *os.File
	var openErr error
	if isStdin {
		f = os.Stdin
	} else {
		f, openErr = os.Open(tg.Name)
	}

	tg.tailable = !(t.cfg.Retry && openErr != nil)

	if openErr != nil {
		if t.cfg.following() {
			tg.file = nil
			tg.err = openErr
			tg.ignore = !t.cfg.Retry
			tg.dev, tg.ino = 0, 0
		}
		t.diag("cannot open '%s' for reading: %s", tg.pretty(), errText(openErr))
		t.ok = false
		return nil
	}

	tg.file = f
	tg.blocking = blockOn
	if isStdin {
		tg.blocking = blockUnknown
	} else if nonblocking {
		if err := filesystem.SetBlocking(f, false); err == nil {
			tg.blocking = blockOff
		}
	}

	if t.printHeaders {
		if err := t.writeHeader(tg); err != nil {
			return err
		}
	}

	readPos, tailErr := t.tail(tg)
	if tailErr != nil && !errors.Is(tailErr, errRead) {
		return tailErr
	}

	if !t.cfg.following() {
		tg.close()
		if tailErr != nil {
			t.ok = false
		}
		return nil
	}

	ok := tailErr == nil
	if ok {
		tg.err = nil
	} else {
		tg.err = errRead
	}
	fi, statErr := f.Stat()
	if statErr != nil {
		ok = false
		tg.err = statErr
		t.diag("error reading %s: %s", tg.pretty(), errText(statErr))
	} else if !filesystem.Tailable(fi.Mode()) {
		ok = false
		tg.err = errUntailable
		tg.tailable = false
		suffix := ""
		if !t.cfg.Retry {
			suffix = "; giving up on this name"
		}
		t.diag("%s: cannot follow end of this type of file%s", tg.pretty(), suffix)
	}

	if !ok {
		tg.ignore = !t.cfg.Retry
		tg.close()
		t.ok = false
		return nil
	}

	// Seed size from the byte count actually consumed, not st_size: a writer
	// may have appended between the tail pass and this stat.
	tg.size = readPos
	tg.record(fi)
	tg.remote = filesystem.Remote(f)
	return nil
}

// tail dispatches to the byte or line printer, returning the number of bytes
// consumed from the stream (the follow engine's starting size).
func (t *Tailer) tail(tg *Target) (int64, error) {
	if t.cfg.Mode == Lines {
		return t.tailLines(tg, t.cfg.Count)
	}
	return t.tailBytes(tg, t.cfg.Count)
}

// ignoreFifoAndPipe drops any "-" operand that is a pipe or FIFO from follow
// mode; following such a stdin is specified to be a no-op. Returns the number
// of viable targets.
func (t *Tailer) ignoreFifoAndPipe(targets []*Target) int {
	viable := 0
	for _, tg := range targets {
		if tg.Name == "-" && !tg.ignore && tg.open() && tg.mode&fs.ModeNamedPipe != 0 {
			tg.file = nil
			tg.err = errUntailable
			tg.ignore = true
			continue
		}
		viable++
	}
	return viable
}

// writeHeader emits "==> name <==", preceded by a blank line for every header
// after the process's first, and records the target for header batching.
func (t *Tailer) writeHeader(tg *Target) error {
	sep := "\n"
	if !t.wroteHeader {
		sep = ""
		t.wroteHeader = true
	}
	if _, err := fmt.Fprintf(t.out, "%s==> %s <==\n", sep, tg.pretty()); err != nil {
		return t.writeFailure(err)
	}
	t.prev = tg
	return nil
}

// write copies bytes to the output stream; a failure is fatal.
func (t *Tailer) write(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if _, err := t.out.Write(b); err != nil {
		return t.writeFailure(err)
	}
	return nil
}

func (t *Tailer) flush() error {
	if err := t.out.Flush(); err != nil {
		return t.writeFailure(err)
	}
	return nil
}

func (t *Tailer) writeFailure(err error) error {
	if errno(err) == syscall.EPIPE {
		return ErrOutputClosed
	}
	return fmt.Errorf("error writing standard output: %s", errText(err))
}

// seek positions the target's descriptor; failure is fatal with a
// whence-specific diagnostic including the offset.
func (t *Tailer) seek(tg *Target, offset int64, whence int) (int64, error) {
	pos, err := tg.file.Seek(offset, whence)
	if err == nil {
		return pos, nil
	}
	var what string
	switch whence {
	case io.SeekStart:
		what = "offset"
	case io.SeekCurrent:
		what = "relative offset"
	default:
		what = "end-relative offset"
	}
	return 0, fmt.Errorf("%s: cannot seek to %s %d: %s", tg.pretty(), what, offset, errText(err))
}

// dumpRemainder copies from the target's current position to the output.
// limit bounds the copy: copyToEOF drains everything available, copyABuffer
// stops after one buffer's worth (blocking mode), any other value caps the
// byte count. Returns the bytes copied. A read failure is diagnosed here and
// surfaces as errRead; running dry on a non-blocking descriptor is silent.
func (t *Tailer) dumpRemainder(tg *Target, wantHeader bool, limit int64) (int64, error) {
	var written int64
	remaining := limit
	buf := make([]byte, bufSize)
	blocking := tg.blocking != blockOff
	for {
		n := int64(bufSize)
		if limit >= 0 && remaining < n {
			n = remaining
		}
		if n == 0 {
			break
		}
		r, err := filesystem.ReadAvailable(tg.file, buf[:n], blocking)
		if err != nil {
			if errors.Is(err, filesystem.ErrNoData) {
				break
			}
			t.diag("error reading %s: %s", tg.pretty(), errText(err))
			return written, errRead
		}
		if r == 0 {
			break
		}
		if wantHeader {
			if err := t.writeHeader(tg); err != nil {
				return written, err
			}
			wantHeader = false
		}
		if err := t.write(buf[:r]); err != nil {
			return written, err
		}
		written += int64(r)
		if limit == copyABuffer {
			break
		}
		if limit >= 0 {
			remaining -= int64(r)
			if remaining == 0 {
				break
			}
		}
	}
	return written, nil
}

// diag writes one diagnostic line to stderr.
func (t *Tailer) diag(format string, args ...any) {
	fmt.Fprintf(t.errw, "gotail: "+format+"\n", args...)
}

// errText renders the system error code without the os wrapper's repeated
// operation and name.
func errText(err error) string {
	if e := errno(err); e != 0 {
		return e.Error()
	}
	return err.Error()
}

// sleepCtx pauses for d, returning early (false) if ctx ends first. A zero
// interval yields the processor and retries immediately.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		runtime.Gosched()
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
