package tail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"syscall"

	"github.com/dweomer/gotail/internal/filesystem"
	"golang.org/x/sys/unix"
)

func boolBlock(blocking bool) blockState {
	if blocking {
		return blockOn
	}
	return blockOff
}

// followPoll tails the targets forever by periodic stat: each pass rechecks
// closed targets, reconciles blocking mode, detects truncation and silent
// rotation, and drains whatever is readable. Between empty passes it sleeps
// and checks writer liveness.
func (t *Tailer) followPoll(ctx context.Context, targets []*Target) error {
	// Blocking reads save a stat+sleep per pass, but are only safe with a
	// single non-regular target followed by descriptor and no watched PIDs.
	blocking := len(t.cfg.PIDs) == 0 && t.cfg.Follow == FollowDescriptor &&
		len(targets) == 1 && targets[0].open() && !targets[0].mode.IsRegular()

	writersDead := false
	for {
		if ctx.Err() != nil {
			return nil
		}
		anyInput := false

		for _, tg := range targets {
			if tg.ignore {
				continue
			}
			if !tg.open() {
				if err := t.recheck(tg, blocking, false); err != nil {
					return err
				}
				continue
			}

			if tg.blocking != boolBlock(blocking) {
				err := filesystem.SetBlocking(tg.file, blocking)
				if err != nil {
					// A regular file with the append-only attribute refuses
					// the flag change; anything else is fatal.
					if !(tg.mode.IsRegular() && errno(err) == syscall.EPERM) {
						return fmt.Errorf("%s: cannot change nonblocking mode: %s", tg.pretty(), errText(err))
					}
				} else {
					tg.blocking = boolBlock(blocking)
				}
			}

			mode := tg.mode
			readUnchanged := false
			var fi fs.FileInfo
			if tg.blocking != blockOn {
				var statErr error
				fi, statErr = tg.file.Stat()
				if statErr != nil {
					t.diag("%s: %s", tg.pretty(), errText(statErr))
					tg.err = statErr
					tg.close()
					continue
				}

				if tg.mode == fi.Mode() &&
					(!fi.Mode().IsRegular() || tg.size == fi.Size()) &&
					tg.mtime.Equal(fi.ModTime()) {
					held := tg.file
					stats := tg.unchanged
					tg.unchanged++
					if stats >= t.cfg.MaxUnchangedStats && t.cfg.Follow == FollowName {
						if err := t.recheck(tg, tg.blocking == blockOn, false); err != nil {
							return err
						}
						tg.unchanged = 0
					}
					if tg.file != held || fi.Mode().IsRegular() || len(targets) > 1 {
						continue
					}
					readUnchanged = true
				}

				tg.mtime = fi.ModTime()
				tg.mode = fi.Mode()
				if !readUnchanged {
					tg.unchanged = 0
				}

				// Growth after truncation is indistinguishable from pure
				// growth; only a shrunken size is reported.
				if mode.IsRegular() && fi.Size() < tg.size {
					t.diag("%s: file truncated", tg.pretty())
					if _, err := t.seek(tg, 0, io.SeekStart); err != nil {
						return err
					}
					tg.size = 0
				}

				if tg != t.prev {
					if t.printHeaders {
						if err := t.writeHeader(tg); err != nil {
							return err
						}
					}
					t.prev = tg
				}
			}

			toRead := copyToEOF
			if tg.blocking == blockOn {
				toRead = copyABuffer
			} else if mode.IsRegular() && tg.remote {
				// On networked filesystems st_size of a later stat may lag
				// the data already read; never drain past this snapshot.
				toRead = fi.Size() - tg.size
			}
			n, err := t.dumpRemainder(tg, false, toRead)
			if err != nil {
				if errors.Is(err, errRead) {
					tg.err = err
					tg.close()
					continue
				}
				return err
			}
			if readUnchanged && n > 0 {
				tg.unchanged = 0
			}
			anyInput = anyInput || n > 0
			tg.size += n
		}

		if !anyLiveFiles(targets, t.cfg.Retry) {
			return errNoFiles
		}

		if !anyInput || blocking {
			if err := t.flush(); err != nil {
				return err
			}
		}
		if err := t.checkOutputAlive(); err != nil {
			return err
		}

		if !anyInput {
			if writersDead {
				return nil
			}
			// Once the writers are dead, one more full pass eliminates the
			// race with their final writes.
			writersDead = t.writersAreDead()
			if !writersDead && !sleepCtx(ctx, t.cfg.SleepInterval) {
				return nil
			}
		}
	}
}

// anyLiveFiles reports whether any target still has an open descriptor or
// remains eligible for reopening under retry.
func anyLiveFiles(targets []*Target, retry bool) bool {
	for _, tg := range targets {
		if tg.open() {
			return true
		}
		if !tg.ignore && retry {
			return true
		}
	}
	return false
}

// writersAreDead reports whether every watched PID is gone. With no watched
// PIDs the answer is always false.
func (t *Tailer) writersAreDead() bool {
	if len(t.cfg.PIDs) == 0 {
		return false
	}
	for _, pid := range t.cfg.PIDs {
		if processAlive(pid) {
			return false
		}
	}
	return true
}

// checkOutputAlive probes the output pipe for a departed reader and, when it
// finds one, ends the run as if killed by the pipe signal.
func (t *Tailer) checkOutputAlive() error {
	if !t.monitorOutput || t.outf == nil {
		return nil
	}
	pfd := []unix.PollFd{{Fd: int32(t.outf.Fd()), Events: 0}}
	n, err := unix.Poll(pfd, 0)
	if err != nil || n == 0 {
		return nil
	}
	if pfd[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
		return ErrOutputClosed
	}
	return nil
}
