package tail

import (
	"fmt"
	"strings"
	"testing"
)

// The forced-pipe configuration drives the ring tailer even on regular
// files, which keeps these tests deterministic.

func TestRingLastNLines(t *testing.T) {
	var content strings.Builder
	for i := 1; i <= 10000; i++ {
		fmt.Fprintf(&content, "entry number %d\n", i)
	}
	path := writeTestFile(t, "big.log", content.String())

	got, _, err := runTail(t, Config{Mode: Lines, Count: 3, PresumeInputPipe: true}, path)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := "entry number 9998\nentry number 9999\nentry number 10000\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRingMoreLinesThanInput(t *testing.T) {
	path := writeTestFile(t, "small.log", "a\nb\n")

	got, _, err := runTail(t, Config{Mode: Lines, Count: 50, PresumeInputPipe: true}, path)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "a\nb\n" {
		t.Errorf("got %q, want %q", got, "a\nb\n")
	}
}

func TestRingIncompleteLastLine(t *testing.T) {
	path := writeTestFile(t, "partial.log", "one\ntwo\nthree")

	got, _, err := runTail(t, Config{Mode: Lines, Count: 2, PresumeInputPipe: true}, path)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "two\nthree" {
		t.Errorf("got %q, want %q", got, "two\nthree")
	}
}

func TestRingLineSpanningBuffers(t *testing.T) {
	// One line longer than a single ring buffer must come out intact.
	long := strings.Repeat("x", 3*bufSize)
	path := writeTestFile(t, "long.log", "short\n"+long+"\n")

	got, _, err := runTail(t, Config{Mode: Lines, Count: 1, PresumeInputPipe: true}, path)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != long+"\n" {
		t.Errorf("long line mangled: got %d bytes, want %d", len(got), len(long)+1)
	}
}

func TestRingLastNBytes(t *testing.T) {
	var content strings.Builder
	for i := 0; i < 5000; i++ {
		fmt.Fprintf(&content, "%04d ", i)
	}
	path := writeTestFile(t, "bytes.log", content.String())

	got, _, err := runTail(t, Config{Mode: Bytes, Count: 9, PresumeInputPipe: true}, path)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := content.String()[content.Len()-9:]
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRingBytesWholeInput(t *testing.T) {
	path := writeTestFile(t, "tiny.log", "hello")

	got, _, err := runTail(t, Config{Mode: Bytes, Count: 100, PresumeInputPipe: true}, path)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestRingZeroTerminated(t *testing.T) {
	path := writeTestFile(t, "z.log", "aa\x00bb\x00cc\x00dd\x00")

	got, _, err := runTail(t, Config{Mode: Lines, Count: 3, ZeroTerminated: true, PresumeInputPipe: true}, path)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "bb\x00cc\x00dd\x00" {
		t.Errorf("got %q, want %q", got, "bb\x00cc\x00dd\x00")
	}
}

func TestRingSkipLinesFromStart(t *testing.T) {
	// With FromStart the forced-pipe path is the read-and-discard head skip
	// (startLines), not the ring tailer.
	var content strings.Builder
	for i := 1; i <= 100; i++ {
		fmt.Fprintf(&content, "%d\n", i)
	}
	path := writeTestFile(t, "skip.log", content.String())

	got, _, err := runTail(t, Config{Mode: Lines, Count: 98, FromStart: true, PresumeInputPipe: true}, path)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "99\n100\n" {
		t.Errorf("got %q, want %q", got, "99\n100\n")
	}
}
