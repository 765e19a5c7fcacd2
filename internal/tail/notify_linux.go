//go:build linux

package tail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// notifyApplicable decides up front whether the notification back-end can
// serve this target set. Stdin, remote files, symlinks and non-regular
// non-fifo files are unwatchable or unreliable under inotify; a failed open
// in follow-by-descriptor mode leaves nothing the event stream could ever
// report on.
func (t *Tailer) notifyApplicable(targets []*Target) bool {
	if !t.cfg.following() || t.cfg.DisableInotify {
		return false
	}
	anyNonRemote := false
	for _, tg := range targets {
		if tg.ignore {
			continue
		}
		if tg.Name == "-" {
			return false
		}
		if tg.open() {
			if tg.remote {
				return false
			}
			anyNonRemote = true
			if !tg.mode.IsRegular() && tg.mode&fs.ModeNamedPipe == 0 {
				return false
			}
		}
		if li, err := os.Lstat(tg.Name); err == nil && li.Mode()&fs.ModeSymlink != 0 {
			return false
		}
	}
	if !anyNonRemote {
		return false
	}
	if !t.ok && t.cfg.Follow == FollowDescriptor {
		return false
	}
	return true
}

// followNotify tails the targets forever driven by inotify events, keyed by
// watch descriptor, with parent-directory watches in follow-by-name mode.
// Returns errFallback whenever polling must take over; all target state
// survives the transition.
func (t *Tailer) followNotify(ctx context.Context, targets []*Target) error {
	ifd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return errFallback
	}
	defer func() {
		// Watch descriptors die with the inotify descriptor; only the
		// bookkeeping needs resetting for a possible polling takeover.
		unix.Close(ifd)
		for _, tg := range targets {
			tg.wd, tg.parentWD = -1, -1
		}
	}()

	fileMask := uint32(unix.IN_MODIFY)
	if t.cfg.Follow == FollowName {
		fileMask |= unix.IN_ATTRIB | unix.IN_DELETE_SELF | unix.IN_MOVE_SELF
	}
	const dirMask = uint32(unix.IN_CREATE | unix.IN_DELETE | unix.IN_MOVED_TO |
		unix.IN_ATTRIB | unix.IN_DELETE_SELF)

	wdMap := make(map[int]*Target, len(targets))
	foundWatchable := false
	tailedButUnwatchable := false
	maxNameLen := 0

	for _, tg := range targets {
		if tg.ignore {
			continue
		}
		if len(tg.Name) > maxNameLen {
			maxNameLen = len(tg.Name)
		}
		tg.wd = -1

		if t.cfg.Follow == FollowName {
			pwd, werr := unix.InotifyAddWatch(ifd, filepath.Dir(tg.Name), dirMask)
			if werr != nil {
				if werr == unix.ENOSPC || werr == unix.ENOMEM {
					t.diag("inotify resources exhausted")
				} else {
					t.diag("cannot watch parent directory of %s: %s", tg.Name, werr.Error())
				}
				return errFallback
			}
			tg.parentWD = pwd
		}

		wd, werr := unix.InotifyAddWatch(ifd, tg.Name, fileMask)
		if werr != nil {
			if tg.open() {
				tailedButUnwatchable = true
			}
			if werr == unix.ENOSPC || werr == unix.ENOMEM {
				t.diag("inotify resources exhausted")
				return errFallback
			}
			if errno(tg.err) != errno(werr) {
				t.diag("cannot watch %s: %s", tg.Name, werr.Error())
			}
			continue
		}
		tg.wd = wd
		wdMap[wd] = tg
		foundWatchable = true
	}

	if t.cfg.Follow == FollowDescriptor {
		// An open-but-unwatchable target points at data only polling the
		// original descriptor can deliver.
		if tailedButUnwatchable {
			return errFallback
		}
		if !foundWatchable {
			return ErrIncomplete
		}
	}

	// Catch up on anything that happened between the initial tail and the
	// watch installs; such changes produced no events.
	for _, tg := range targets {
		if tg.ignore {
			continue
		}
		if t.cfg.Follow == FollowName {
			if err := t.recheck(tg, false, true); err != nil {
				return err
			}
		} else if tg.open() {
			if fi, serr := os.Stat(tg.Name); serr == nil && !tg.sameInode(fi) {
				// The watch is on the wrong inode; only polling the held
				// descriptor keeps the promised stream.
				t.diag("%s was replaced", tg.pretty())
				return errFallback
			}
		}
		if err := t.checkTarget(tg); err != nil {
			return err
		}
	}

	evbufLen := maxNameLen + unix.SizeofInotifyEvent + 1
	evbuf := make([]byte, evbufLen)
	maxRealloc := 3
	var pending []byte
	writersDead := false

	for {
		if ctx.Err() != nil {
			return nil
		}
		if t.cfg.Follow == FollowName && !t.cfg.Retry && len(wdMap) == 0 {
			return errNoFiles
		}

		if len(pending) == 0 {
			for {
				if len(t.cfg.PIDs) > 0 && writersDead {
					return nil
				}
				delay := -1
				if len(t.cfg.PIDs) > 0 {
					writersDead = t.writersAreDead()
					if writersDead || t.cfg.SleepInterval <= 0 {
						delay = 0
					} else {
						delay = t.cfg.pollTimeout()
					}
				}
				pfds := []unix.PollFd{{Fd: int32(ifd), Events: unix.POLLIN}}
				if t.monitorOutput && t.outf != nil {
					pfds = append(pfds, unix.PollFd{Fd: int32(t.outf.Fd())})
				}
				n, perr := unix.Poll(pfds, delay)
				if perr == unix.EINTR {
					continue
				}
				if perr != nil {
					return fmt.Errorf("error waiting for inotify and output events: %s", perr.Error())
				}
				if len(pfds) > 1 && pfds[1].Revents != 0 {
					return ErrOutputClosed
				}
				if n != 0 {
					break
				}
			}

			rn, rerr := unix.Read(ifd, evbuf)
			for rerr == unix.EINTR {
				rn, rerr = unix.Read(ifd, evbuf)
			}
			// Old kernels report a too-small buffer as a zero-length read or
			// EINVAL; grow a few times before giving up.
			if (rn == 0 || rerr == unix.EINVAL) && maxRealloc > 0 {
				maxRealloc--
				evbufLen *= 2
				evbuf = make([]byte, evbufLen)
				continue
			}
			if rn <= 0 {
				return fmt.Errorf("error reading inotify event: %v", rerr)
			}
			pending = evbuf[:rn]
		}

		ev := (*unix.InotifyEvent)(unsafe.Pointer(&pending[0]))
		evWd := int(ev.Wd)
		mask := ev.Mask
		var name string
		if ev.Len > 0 {
			raw := pending[unix.SizeofInotifyEvent : unix.SizeofInotifyEvent+int(ev.Len)]
			name = string(bytes.TrimRight(raw, "\x00"))
		}
		pending = pending[unix.SizeofInotifyEvent+int(ev.Len):]

		// A deleted directory stops producing events for good; the watch on
		// it would otherwise wait forever.
		if mask&unix.IN_DELETE_SELF != 0 && name == "" {
			parentGone := false
			for _, tg := range targets {
				if evWd == tg.parentWD {
					parentGone = true
					break
				}
			}
			if parentGone {
				t.diag("directory containing watched file was removed")
				return errFallback
			}
		}

		var tg *Target
		if name != "" {
			// Event on a name inside a watched parent directory.
			for _, cand := range targets {
				if cand.parentWD == evWd && name == cand.basename {
					tg = cand
					break
				}
			}
			if tg == nil {
				continue
			}

			deleting := mask&unix.IN_DELETE != 0
			newWd := -1
			if !deleting {
				w, werr := unix.InotifyAddWatch(ifd, tg.Name, fileMask)
				if werr != nil {
					if werr == unix.ENOSPC || werr == unix.ENOMEM {
						t.diag("inotify resources exhausted")
						return errFallback
					}
					// A dangling symlink, for example.
					t.diag("cannot watch %s: %s", tg.Name, werr.Error())
				} else {
					newWd = w
				}
			}

			if !deleting && (tg.wd < 0 || newWd != tg.wd) {
				if tg.wd >= 0 {
					unix.InotifyRmWatch(ifd, uint32(tg.wd))
					delete(wdMap, tg.wd)
				}
				tg.wd = newWd
				if newWd == -1 {
					continue
				}
				// A move inside the directory carries the source's watch id
				// to the destination; evict whichever target held it.
				if prev, bound := wdMap[newWd]; bound && prev != tg {
					if t.cfg.Follow == FollowName {
						if err := t.recheck(prev, false, true); err != nil {
							return err
						}
					}
					prev.wd = -1
					if prev.open() {
						prev.close()
						prev.err = syscall.ENOENT
					}
				}
				wdMap[newWd] = tg
			}

			if t.cfg.Follow == FollowName {
				if err := t.recheck(tg, false, true); err != nil {
					return err
				}
			}
		} else {
			tg = wdMap[evWd]
			if tg == nil {
				continue
			}
		}

		if mask&(unix.IN_ATTRIB|unix.IN_DELETE|unix.IN_DELETE_SELF|unix.IN_MOVE_SELF) != 0 {
			// The watch is removed when its inode is deleted, or moved while
			// retry is off. Otherwise it stays: after a rename it may still
			// serve another of the watched names.
			if mask&unix.IN_DELETE_SELF != 0 ||
				(!t.cfg.Retry && mask&unix.IN_MOVE_SELF != 0) {
				if tg.wd >= 0 {
					unix.InotifyRmWatch(ifd, uint32(tg.wd))
					delete(wdMap, tg.wd)
					tg.wd = -1
				}
			}
			// No drain yet: any data will arrive as a separate modify event.
			if err := t.recheck(tg, false, true); err != nil {
				return err
			}
			continue
		}

		if err := t.checkTarget(tg); err != nil {
			return err
		}
	}
}

// checkTarget drains new data from an open target, handling truncation, and
// prints a header when the active target changed. Shared by the notification
// loop's dispatch and its catch-up pass.
func (t *Tailer) checkTarget(tg *Target) error {
	if !tg.open() {
		return nil
	}
	fi, statErr := tg.file.Stat()
	if statErr != nil {
		tg.err = statErr
		tg.close()
		return nil
	}

	if tg.mode.IsRegular() && fi.Size() < tg.size {
		t.diag("%s: file truncated", tg.pretty())
		if _, err := t.seek(tg, 0, io.SeekStart); err != nil {
			return err
		}
		tg.size = 0
	} else if tg.mode.IsRegular() && fi.Size() == tg.size && tg.mtime.Equal(fi.ModTime()) {
		return nil
	}

	wantHeader := t.printHeaders && tg != t.prev
	n, err := t.dumpRemainder(tg, wantHeader, copyToEOF)
	tg.size += n
	if n > 0 {
		t.prev = tg
		if ferr := t.flush(); ferr != nil {
			return ferr
		}
	}
	if err != nil {
		if errors.Is(err, errRead) {
			tg.err = err
			tg.close()
			return nil
		}
		return err
	}
	return nil
}
