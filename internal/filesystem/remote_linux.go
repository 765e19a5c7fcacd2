//go:build linux

package filesystem

import (
	"os"

	"golang.org/x/sys/unix"
)

// localFSTypes lists filesystem magic numbers that are positively known to be
// local. Anything absent from the list is treated as remote, so that network
// and unrecognized filesystems fall back to polling.
var localFSTypes = map[int64]bool{
	unix.BTRFS_SUPER_MAGIC:     true,
	unix.CRAMFS_MAGIC:          true,
	unix.DEVPTS_SUPER_MAGIC:    true,
	unix.EXT2_SUPER_MAGIC:      true, // shared by ext2/ext3/ext4
	unix.F2FS_SUPER_MAGIC:      true,
	unix.ISOFS_SUPER_MAGIC:     true,
	unix.MINIX_SUPER_MAGIC:     true,
	unix.MSDOS_SUPER_MAGIC:     true,
	unix.OVERLAYFS_SUPER_MAGIC: true,
	unix.PROC_SUPER_MAGIC:      true,
	unix.RAMFS_MAGIC:           true,
	unix.REISERFS_SUPER_MAGIC:  true,
	unix.SQUASHFS_MAGIC:        true,
	unix.SYSFS_MAGIC:           true,
	unix.TMPFS_MAGIC:           true,
	unix.XFS_SUPER_MAGIC:       true,
	unix.ZONEFS_MAGIC:          true,
}

// Remote reports whether f resides on a filesystem that cannot be positively
// identified as local. A statfs failure with "not supported" (pipes, some
// special descriptors) counts as remote without further diagnosis; event
// notification is unreliable for such descriptors and the caller should poll.
func Remote(f *os.File) bool {
	var st unix.Statfs_t
	err := unix.Fstatfs(int(f.Fd()), &st)
	for err == unix.EINTR {
		err = unix.Fstatfs(int(f.Fd()), &st)
	}
	if err != nil {
		return true
	}
	return !localFSTypes[int64(st.Type)]
}
