package tail

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// followConfig is a polling-backend follow configuration fast enough for
// tests.
func followConfig(mode FollowMode) Config {
	return Config{
		Mode:              Lines,
		Count:             10,
		Follow:            mode,
		SleepInterval:     5 * time.Millisecond,
		MaxUnchangedStats: 1,
		DisableInotify:    true,
	}
}

// startFollow runs the tailer in the background and returns the live output
// and diagnostic buffers plus a stop function that waits for it to exit.
func startFollow(t *testing.T, cfg Config, names ...string) (*syncBuffer, *syncBuffer, func() error) {
	t.Helper()
	var out, errw syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(cfg, &out, &errw).Run(ctx, names)
	}()
	stop := func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("follow loop did not stop")
			return nil
		}
	}
	return &out, &errw, stop
}

func appendFile(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString(data); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()
}

func TestFollowGrowth(t *testing.T) {
	path := writeTestFile(t, "grow.log", "first\n")

	out, _, stop := startFollow(t, followConfig(FollowDescriptor), path)
	defer stop()

	if !waitFor(t, time.Second, func() bool { return out.String() == "first\n" }) {
		t.Fatalf("initial tail not printed: %q", out.String())
	}
	appendFile(t, path, "second\nthird\n")
	if !waitFor(t, 2*time.Second, func() bool {
		return out.String() == "first\nsecond\nthird\n"
	}) {
		t.Errorf("appended data not followed: %q", out.String())
	}
}

func TestFollowTruncation(t *testing.T) {
	path := writeTestFile(t, "trunc.log", "12345")

	cfg := followConfig(FollowDescriptor)
	cfg.Mode = Bytes
	cfg.Count = 3
	out, diags, stop := startFollow(t, cfg, path)
	defer stop()

	if !waitFor(t, time.Second, func() bool { return out.String() == "345" }) {
		t.Fatalf("initial tail not printed: %q", out.String())
	}
	if err := os.Truncate(path, 0); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	appendFile(t, path, "XYZ\n")
	if !waitFor(t, 2*time.Second, func() bool { return out.String() == "345XYZ\n" }) {
		t.Errorf("post-truncation data not followed: %q", out.String())
	}
	if !strings.Contains(diags.String(), "file truncated") {
		t.Errorf("missing truncation diagnostic: %q", diags.String())
	}
}

func TestFollowRotationByName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	if err := os.WriteFile(path, []byte("A\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, diags, stop := startFollow(t, followConfig(FollowName), path)
	defer stop()

	if !waitFor(t, time.Second, func() bool { return out.String() == "A\n" }) {
		t.Fatalf("initial tail not printed: %q", out.String())
	}
	appendFile(t, path, "B\n")
	if !waitFor(t, 2*time.Second, func() bool { return out.String() == "A\nB\n" }) {
		t.Fatalf("append not followed: %q", out.String())
	}

	// Rotate: rename away, then create a fresh file under the name.
	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := os.WriteFile(path, []byte("C\n"), 0644); err != nil {
		t.Fatalf("write new: %v", err)
	}
	if !waitFor(t, 5*time.Second, func() bool { return out.String() == "A\nB\nC\n" }) {
		t.Errorf("rotated file not followed: %q", out.String())
	}
	if !strings.Contains(diags.String(), "has been replaced; following new file") {
		t.Errorf("missing rotation diagnostic: %q", diags.String())
	}
}

func TestFollowByDescriptorAfterRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	if err := os.WriteFile(path, []byte("A\nB\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, _, stop := startFollow(t, followConfig(FollowDescriptor), path)
	defer stop()

	if !waitFor(t, time.Second, func() bool { return out.String() == "A\nB\n" }) {
		t.Fatalf("initial tail not printed: %q", out.String())
	}

	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := os.WriteFile(path, []byte("new file\n"), 0644); err != nil {
		t.Fatalf("write new: %v", err)
	}
	appendFile(t, path+".1", "C\n")

	if !waitFor(t, 2*time.Second, func() bool { return out.String() == "A\nB\nC\n" }) {
		t.Errorf("renamed descriptor not followed: %q", out.String())
	}
	// Give the loop a few more passes; the new file must never show up.
	time.Sleep(50 * time.Millisecond)
	if strings.Contains(out.String(), "new file") {
		t.Errorf("descriptor follow leaked the new file: %q", out.String())
	}
}

func TestFollowNameRetryAppear(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "late.log")

	cfg := followConfig(FollowName)
	cfg.Retry = true
	out, diags, stop := startFollow(t, cfg, path)
	defer stop()

	if !waitFor(t, time.Second, func() bool {
		return strings.Contains(diags.String(), "cannot open")
	}) {
		t.Fatalf("missing open diagnostic: %q", diags.String())
	}

	if err := os.WriteFile(path, []byte("hello\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return out.String() == "hello\n" }) {
		t.Errorf("late file not picked up: %q", out.String())
	}
	if !strings.Contains(diags.String(), "has appeared; following new file") {
		t.Errorf("missing appearance diagnostic: %q", diags.String())
	}
}

func TestFollowNoFilesRemaining(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.log")
	if err := os.WriteFile(path, []byte("x\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out, errw syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- New(followConfig(FollowName), &out, &errw).Run(context.Background(), []string{path})
	}()

	if !waitFor(t, time.Second, func() bool { return out.String() == "x\n" }) {
		t.Fatalf("initial tail not printed: %q", out.String())
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "no files remaining") {
			t.Errorf("Run() error = %v, want no files remaining", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow loop did not exit after the last file vanished")
	}
}

func TestFollowWritersDead(t *testing.T) {
	path := writeTestFile(t, "pid.log", "start\n")

	// A process that has already exited: its reaped PID fails the liveness
	// probe immediately.
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot run helper process: %v", err)
	}
	deadPID := cmd.Process.Pid

	cfg := followConfig(FollowDescriptor)
	cfg.PIDs = []int{deadPID}
	var out, errw syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- New(cfg, &out, &errw).Run(context.Background(), []string{path})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want clean exit", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow loop did not exit after watched process died")
	}
	if out.String() != "start\n" {
		t.Errorf("got %q, want %q", out.String(), "start\n")
	}
}

func TestFollowUnchangedStatsRecheck(t *testing.T) {
	// Rotation where the new file never changes afterwards is only found by
	// the unchanged-stats probe.
	dir := t.TempDir()
	path := filepath.Join(dir, "quiet.log")
	if err := os.WriteFile(path, []byte("old\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := followConfig(FollowName)
	cfg.MaxUnchangedStats = 2
	out, _, stop := startFollow(t, cfg, path)
	defer stop()

	if !waitFor(t, time.Second, func() bool { return out.String() == "old\n" }) {
		t.Fatalf("initial tail not printed: %q", out.String())
	}
	if err := os.Rename(path, path+".old"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := os.WriteFile(path, []byte("new\n"), 0644); err != nil {
		t.Fatalf("write new: %v", err)
	}
	if !waitFor(t, 5*time.Second, func() bool { return out.String() == "old\nnew\n" }) {
		t.Errorf("silent rotation not detected: %q", out.String())
	}
}

func TestFollowMultipleFilesHeaders(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.log")
	b := filepath.Join(dir, "b.log")
	os.WriteFile(a, []byte("a1\n"), 0644)
	os.WriteFile(b, []byte("b1\n"), 0644)

	out, _, stop := startFollow(t, followConfig(FollowDescriptor), a, b)
	defer stop()

	if !waitFor(t, time.Second, func() bool {
		return strings.Contains(out.String(), "a1\n") && strings.Contains(out.String(), "b1\n")
	}) {
		t.Fatalf("initial tails not printed: %q", out.String())
	}

	appendFile(t, a, "a2\n")
	if !waitFor(t, 2*time.Second, func() bool { return strings.Contains(out.String(), "a2\n") }) {
		t.Fatalf("append to a not followed: %q", out.String())
	}
	appendFile(t, b, "b2\n")
	if !waitFor(t, 2*time.Second, func() bool { return strings.Contains(out.String(), "b2\n") }) {
		t.Fatalf("append to b not followed: %q", out.String())
	}

	// The header for a must not repeat between a1 and a2 if nothing else
	// wrote in between; the one before b2 must be present.
	got := out.String()
	if strings.Count(got, "==> "+b+" <==") < 2 {
		t.Errorf("missing re-emitted header for %s: %q", b, got)
	}
}
