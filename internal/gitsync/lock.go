package gitsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/openhearth/chronicle/internal/logging"
)

const (
	// LockFileName lives at the data root, outside objects/ and
	// sessions/, and is gitignored.
	LockFileName = ".chronicle.lock"

	// lockTimeout must outlast a single slow git command, or every
	// recording during a sync over a bad link turns into an error.
	lockTimeout    = 45 * time.Second
	lockRetry      = 50 * time.Millisecond
	lockStaleAfter = 10 * time.Minute
)

// DirLock serializes writers on one data root across processes. The
// in-process mutex orders goroutines; the lock file orders processes
// (a CLI invocation racing a long-running agent is the normal case).
// Locks left behind by crashed processes are taken over once they age
// past the stale threshold.
type DirLock struct {
	path   string
	device string
	log    *slog.Logger

	timeout    time.Duration
	retry      time.Duration
	staleAfter time.Duration

	mu sync.Mutex
}

// NewDirLock returns a lock rooted at path (the lock file itself).
// device is recorded in the file for operator diagnostics.
func NewDirLock(path, device string) *DirLock {
	return &DirLock{
		path:       path,
		device:     device,
		log:        logging.ForComponent(logging.CompSync),
		timeout:    lockTimeout,
		retry:      lockRetry,
		staleAfter: lockStaleAfter,
	}
}

// LockContentionError reports a lock that stayed held for the whole
// acquisition window. The holder fields come from the lock file so the
// operator can see who to blame.
type LockContentionError struct {
	LockPath  string
	Waited    time.Duration
	Attempts  int
	HolderPID int
}

func (e LockContentionError) Error() string {
	return fmt.Sprintf("data root locked by pid %d: gave up after %s (path=%s attempts=%d)",
		e.HolderPID, e.Waited.Truncate(time.Millisecond), e.LockPath, e.Attempts)
}

type lockInfo struct {
	PID       int    `json:"pid"`
	Device    string `json:"device,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Acquire takes the lock, blocking up to the configured timeout. The
// returned release function is safe to call exactly once, normally via
// defer.
func (l *DirLock) Acquire(ctx context.Context) (release func(), err error) {
	l.mu.Lock()
	start := time.Now()
	attempts := 0

	for {
		attempts++
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			info := lockInfo{
				PID:       os.Getpid(),
				Device:    l.device,
				CreatedAt: time.Now().UTC().Format(time.RFC3339),
			}
			if encoded, marshalErr := json.Marshal(info); marshalErr == nil {
				f.Write(append(encoded, '\n'))
			}
			f.Close()
			return func() {
				os.Remove(l.path)
				l.mu.Unlock()
			}, nil
		}
		if !os.IsExist(err) {
			l.mu.Unlock()
			return nil, fmt.Errorf("acquire lock: %w", err)
		}

		holder := l.readHolder()
		if l.isStale(holder) {
			l.log.Warn("taking over stale lock", "path", l.path, "holder_pid", holder.PID, "created_at", holder.CreatedAt)
			os.Remove(l.path)
			continue
		}

		if time.Since(start) >= l.timeout {
			l.mu.Unlock()
			return nil, LockContentionError{
				LockPath:  l.path,
				Waited:    time.Since(start),
				Attempts:  attempts,
				HolderPID: holder.PID,
			}
		}

		select {
		case <-ctx.Done():
			l.mu.Unlock()
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

func (l *DirLock) readHolder() lockInfo {
	var info lockInfo
	data, err := os.ReadFile(l.path)
	if err != nil {
		return info
	}
	json.Unmarshal(data, &info)
	return info
}

// isStale treats unreadable lock files as stale too: a zero-byte file
// means the locker died between create and write.
func (l *DirLock) isStale(info lockInfo) bool {
	created, err := time.Parse(time.RFC3339, info.CreatedAt)
	if err != nil {
		if fi, statErr := os.Stat(l.path); statErr == nil {
			created = fi.ModTime()
		} else {
			return false
		}
	}
	return time.Since(created) > l.staleAfter
}
