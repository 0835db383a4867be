package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openhearth/chronicle/internal/logging"
	"github.com/openhearth/chronicle/internal/model"
	"github.com/openhearth/chronicle/internal/object"
)

// debounceWindow batches bursts of events on one file into a single
// callback. Syncs touch many files at once and editors write in stages.
const debounceWindow = 300 * time.Millisecond

// Watcher follows the data root for changes made by other processes —
// most importantly files appearing from a git merge — and feeds them to
// the index callbacks. In-process writes go through the index directly;
// the watcher just makes out-of-band changes converge too.
type Watcher struct {
	fs         *fsnotify.Watcher
	objectDir  string
	sessionDir string
	onObject   func(hash string)
	onSession  func(id string)
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher builds a watcher over the given object and session
// directories. Callbacks run on the watcher goroutine after the
// debounce window; they must not block for long.
func NewWatcher(objectDir, sessionDir string, onObject func(hash string), onSession func(id string)) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		fs:         fs,
		objectDir:  objectDir,
		sessionDir: sessionDir,
		onObject:   onObject,
		onSession:  onSession,
		log:        logging.ForComponent(logging.CompIndex),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start registers the watches and begins delivering events. Shard
// directories that exist now are watched immediately; ones created later
// are picked up from their create events.
func (w *Watcher) Start() error {
	if err := w.fs.Add(w.objectDir); err != nil {
		return err
	}
	if entries, err := os.ReadDir(w.objectDir); err == nil {
		for _, e := range entries {
			if e.IsDir() && len(e.Name()) == 2 {
				if err := w.fs.Add(filepath.Join(w.objectDir, e.Name())); err != nil {
					w.log.Warn("watch shard failed", "shard", e.Name(), "error", err)
				}
			}
		}
	}
	if err := w.fs.Add(w.sessionDir); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Close stops the watcher and waits for the loop to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fs.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	debounce := make(map[string]*time.Timer)
	var debounceMu sync.Mutex

	stopTimers := func() {
		debounceMu.Lock()
		for _, t := range debounce {
			t.Stop()
		}
		debounceMu.Unlock()
	}

	for {
		select {
		case <-w.ctx.Done():
			stopTimers()
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				stopTimers()
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			// New shard directories need their own watch.
			if event.Op&fsnotify.Create != 0 && w.isShardDir(event.Name) {
				if err := w.fs.Add(event.Name); err != nil {
					w.log.Warn("watch shard failed", "path", event.Name, "error", err)
				}
				continue
			}

			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}

			// Wait for the writer to finish before reacting.
			name := event.Name
			debounceMu.Lock()
			if t, exists := debounce[name]; exists {
				t.Stop()
			}
			debounce[name] = time.AfterFunc(debounceWindow, func() {
				w.dispatch(name)
				debounceMu.Lock()
				delete(debounce, name)
				debounceMu.Unlock()
			})
			debounceMu.Unlock()

		case err, ok := <-w.fs.Errors:
			if !ok {
				stopTimers()
				return
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) isShardDir(path string) bool {
	if filepath.Dir(path) != w.objectDir {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir() && len(filepath.Base(path)) == 2
}

func (w *Watcher) dispatch(path string) {
	base := strings.TrimSuffix(filepath.Base(path), ".json")
	switch {
	case strings.HasPrefix(path, w.sessionDir+string(os.PathSeparator)):
		if model.ValidateSessionID(base) == nil && w.onSession != nil {
			w.onSession(base)
		}
	case strings.HasPrefix(path, w.objectDir+string(os.PathSeparator)):
		if object.ValidHash(base) && w.onObject != nil {
			w.onObject(base)
		}
	}
}
