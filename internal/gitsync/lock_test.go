package gitsync

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestLock(t *testing.T) *DirLock {
	t.Helper()
	l := NewDirLock(filepath.Join(t.TempDir(), LockFileName), "dev-test")
	l.timeout = 200 * time.Millisecond
	l.retry = 10 * time.Millisecond
	return l
}

func TestAcquireAndRelease(t *testing.T) {
	l := newTestLock(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		t.Fatalf("lock file missing while held: %v", err)
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		t.Fatalf("lock file not json: %v", err)
	}
	if info.PID != os.Getpid() || info.Device != "dev-test" {
		t.Errorf("lock info = %+v", info)
	}

	release()
	if _, err := os.Stat(l.path); !os.IsNotExist(err) {
		t.Error("lock file survived release")
	}
}

func TestAcquireContention(t *testing.T) {
	l := newTestLock(t)
	ctx := context.Background()

	// Another process's lock, fresh enough to respect.
	other := lockInfo{PID: 99999, CreatedAt: time.Now().UTC().Format(time.RFC3339)}
	data, _ := json.Marshal(other)
	if err := os.WriteFile(l.path, data, 0o600); err != nil {
		t.Fatalf("plant lock: %v", err)
	}

	_, err := l.Acquire(ctx)
	var contention LockContentionError
	if !errors.As(err, &contention) {
		t.Fatalf("got %v, want LockContentionError", err)
	}
	if contention.HolderPID != 99999 {
		t.Errorf("holder pid = %d", contention.HolderPID)
	}
	if contention.Attempts < 2 {
		t.Errorf("gave up after %d attempts without retrying", contention.Attempts)
	}
}

func TestAcquireTakesOverStaleLock(t *testing.T) {
	l := newTestLock(t)
	ctx := context.Background()

	old := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	data, _ := json.Marshal(lockInfo{PID: 99999, CreatedAt: old})
	if err := os.WriteFile(l.path, data, 0o600); err != nil {
		t.Fatalf("plant lock: %v", err)
	}

	release, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("stale lock not taken over: %v", err)
	}
	release()
}

func TestAcquireTakesOverEmptyLockByAge(t *testing.T) {
	l := newTestLock(t)
	ctx := context.Background()

	// A locker that died between create and write leaves zero bytes; age
	// comes from mtime then.
	if err := os.WriteFile(l.path, nil, 0o600); err != nil {
		t.Fatalf("plant lock: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(l.path, old, old); err != nil {
		t.Fatalf("age lock: %v", err)
	}

	release, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("aged empty lock not taken over: %v", err)
	}
	release()
}

func TestAcquireHonorsContextCancel(t *testing.T) {
	l := newTestLock(t)
	l.timeout = 10 * time.Second

	data, _ := json.Marshal(lockInfo{PID: 99999, CreatedAt: time.Now().UTC().Format(time.RFC3339)})
	if err := os.WriteFile(l.path, data, 0o600); err != nil {
		t.Fatalf("plant lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := l.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want context deadline", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("cancel did not interrupt the wait")
	}
}

func TestSerializesGoroutines(t *testing.T) {
	l := newTestLock(t)
	ctx := context.Background()

	var inside, max int
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		go func() {
			release, err := l.Acquire(ctx)
			if err != nil {
				t.Errorf("acquire: %v", err)
				done <- struct{}{}
				return
			}
			inside++
			if inside > max {
				max = inside
			}
			time.Sleep(5 * time.Millisecond)
			inside--
			release()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	if max != 1 {
		t.Errorf("%d goroutines inside the critical section at once", max)
	}
}
