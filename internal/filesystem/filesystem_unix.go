//go:build unix

package filesystem

import (
	"os"

	"golang.org/x/sys/unix"
)

// readNonblock performs a single non-blocking read(2) on f's descriptor,
// bypassing the runtime poller so that an empty pipe reports ErrNoData
// instead of parking the caller.
func readNonblock(f *os.File, buf []byte) (int, error) {
	sc, err := f.SyscallConn()
	if err != nil {
		return 0, err
	}
	var n int
	var rerr error
	cerr := sc.Read(func(fd uintptr) bool {
		for {
			n, rerr = unix.Read(int(fd), buf)
			if rerr == unix.EINTR {
				continue
			}
			return true
		}
	})
	if cerr != nil {
		return 0, cerr
	}
	if rerr != nil {
		if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK {
			return 0, ErrNoData
		}
		return 0, rerr
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// SetBlocking switches f's descriptor between blocking and non-blocking mode.
func SetBlocking(f *os.File, blocking bool) error {
	sc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	cerr := sc.Control(func(fd uintptr) {
		serr = unix.SetNonblock(int(fd), !blocking)
	})
	if cerr != nil {
		return cerr
	}
	return serr
}
