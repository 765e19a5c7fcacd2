//go:build linux

package filesystem

import (
	"os"
	"testing"
)

func TestRemotePipe(t *testing.T) {
	// A pipe has no meaningful filesystem type, so the conservative answer
	// is remote.
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if !Remote(r) {
		t.Error("Remote(pipe) = false, want true")
	}
}
