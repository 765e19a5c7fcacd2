package filesystem

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestTailable(t *testing.T) {
	tests := []struct {
		name string
		mode fs.FileMode
		want bool
	}{
		{"regular", 0, true},
		{"fifo", fs.ModeNamedPipe, true},
		{"socket", fs.ModeSocket, true},
		{"char device", fs.ModeDevice | fs.ModeCharDevice, true},
		{"directory", fs.ModeDir, false},
		{"block device", fs.ModeDevice, false},
		{"symlink", fs.ModeSymlink, false},
	}
	for _, tt := range tests {
		if got := Tailable(tt.mode); got != tt.want {
			t.Errorf("Tailable(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestReadAvailableRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	buf := make([]byte, 16)
	n, err := ReadAvailable(f, buf, true)
	if err != nil || string(buf[:n]) != "hello" {
		t.Errorf("ReadAvailable = (%d, %v), want hello", n, err)
	}
	// At EOF a blocking read reports zero bytes, not an error.
	n, err = ReadAvailable(f, buf, true)
	if n != 0 || err != nil {
		t.Errorf("ReadAvailable at EOF = (%d, %v), want (0, nil)", n, err)
	}
}

func TestReadAvailableEmptyPipe(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if err := SetBlocking(r, false); err != nil {
		t.Fatalf("SetBlocking: %v", err)
	}

	buf := make([]byte, 16)
	if _, err := ReadAvailable(r, buf, false); !errors.Is(err, ErrNoData) {
		t.Errorf("read from empty pipe = %v, want ErrNoData", err)
	}

	if _, err := w.WriteString("xy"); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err := ReadAvailable(r, buf, false)
	if err != nil || string(buf[:n]) != "xy" {
		t.Errorf("ReadAvailable = (%d, %v, %q), want xy", n, err, buf[:n])
	}
}

func TestSetBlockingRoundTrip(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	for _, blocking := range []bool{false, true, false} {
		if err := SetBlocking(r, blocking); err != nil {
			t.Fatalf("SetBlocking(%v): %v", blocking, err)
		}
	}
	// Still readable after the mode dance.
	w.WriteString("ok")
	buf := make([]byte, 4)
	n, err := ReadAvailable(r, buf, false)
	if err != nil || string(buf[:n]) != "ok" {
		t.Errorf("ReadAvailable = (%d, %v), want ok", n, err)
	}
}
