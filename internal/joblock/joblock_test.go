package joblock

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestGate(t *testing.T) *FileGate {
	t.Helper()
	gate, err := NewFileGate(filepath.Join(t.TempDir(), "locks"), 2*time.Hour, quietLogger())
	if err != nil {
		t.Fatalf("NewFileGate: %v", err)
	}
	return gate
}

func TestAcquireReleaseReacquire(t *testing.T) {
	gate := newTestGate(t)

	if !gate.TryAcquire("sync") {
		t.Fatal("first acquire should succeed")
	}
	if gate.TryAcquire("sync") {
		t.Fatal("second acquire of a held lock should fail")
	}
	gate.Release("sync")
	if !gate.TryAcquire("sync") {
		t.Fatal("acquire after release should succeed")
	}
	gate.Release("sync")
}

func TestIndependentJobNames(t *testing.T) {
	gate := newTestGate(t)
	defer gate.ReleaseAll()

	if !gate.TryAcquire("sync") {
		t.Fatal("sync acquire should succeed")
	}
	if !gate.TryAcquire("upgrade") {
		t.Fatal("upgrade acquire should succeed while sync is held")
	}
}

func TestExternalHolderBlocksAcquire(t *testing.T) {
	dir := t.TempDir()
	gate, err := NewFileGate(dir, 2*time.Hour, quietLogger())
	if err != nil {
		t.Fatalf("NewFileGate: %v", err)
	}

	external := flock.New(filepath.Join(dir, "sync.lock"))
	locked, err := external.TryLock()
	if err != nil || !locked {
		t.Fatalf("external lock failed: locked=%v err=%v", locked, err)
	}
	defer external.Unlock()

	if gate.TryAcquire("sync") {
		t.Fatal("acquire should fail while an external holder has the lock")
	}
}

func TestReleaseAllRemovesLockFiles(t *testing.T) {
	gate := newTestGate(t)
	gate.TryAcquire("sync")
	gate.TryAcquire("upgrade")
	gate.ReleaseAll()

	if _, err := os.Stat(filepath.Join(gate.dir, "sync.lock")); !os.IsNotExist(err) {
		t.Errorf("sync lock file should be removed, stat err: %v", err)
	}
	if !gate.TryAcquire("sync") {
		t.Error("reacquire after ReleaseAll should succeed")
	}
	gate.Release("sync")
}

func TestStaleLockDoesNotBlock(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(buf)

	gate, err := NewFileGate(filepath.Join(t.TempDir(), "locks"), 2*time.Hour, logger)
	if err != nil {
		t.Fatalf("NewFileGate: %v", err)
	}

	// Leftover file from an unclean exit, not flocked by anyone.
	path := filepath.Join(gate.dir, "sync.lock")
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	if !gate.TryAcquire("sync") {
		t.Fatal("stale unheld lock file should not block acquisition")
	}
	gate.Release("sync")

	if strings.Contains(buf.String(), "stale") {
		t.Error("a successful acquisition must not warn about staleness")
	}
}

func TestStaleWarningOnContention(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(buf)

	dir := t.TempDir()
	gate, err := NewFileGate(dir, 2*time.Hour, logger)
	if err != nil {
		t.Fatalf("NewFileGate: %v", err)
	}

	path := filepath.Join(dir, "sync.lock")
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	external := flock.New(path)
	locked, err := external.TryLock()
	if err != nil || !locked {
		t.Fatalf("external lock failed: locked=%v err=%v", locked, err)
	}
	defer external.Unlock()

	if gate.TryAcquire("sync") {
		t.Fatal("acquire should fail while an external holder has the lock")
	}
	if !strings.Contains(buf.String(), "stale") {
		t.Error("a held lock with an old timestamp should warn about staleness")
	}
}
