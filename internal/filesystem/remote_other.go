//go:build !linux

package filesystem

import "os"

// Remote always reports false where no filesystem-type probe is available;
// the notification back-end is Linux-only, so here the answer only decides
// whether the polling loop caps a regular file's drain at its stat size.
func Remote(f *os.File) bool {
	return false
}
