// Package memory is the consumer-facing surface of the archive. It wires
// the content store, session logs, search index, and sync transport into
// one handle and keeps their invariants straight: durable writes land
// before the index hears about them, the index stays derived data, and
// every local mutation is fenced against a concurrent sync by the
// directory lock.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/openhearth/chronicle/internal/gitsync"
	"github.com/openhearth/chronicle/internal/index"
	"github.com/openhearth/chronicle/internal/logging"
	"github.com/openhearth/chronicle/internal/model"
	"github.com/openhearth/chronicle/internal/object"
	"github.com/openhearth/chronicle/internal/session"
)

// indexFileName is the local search index inside the data root. It is
// listed in the sync ignore rules and never leaves the device.
const indexFileName = "index.db"

// jobQueueDepth bounds pending index writes. The worker is a local
// SQLite writer, so the queue only backs up when the database is wedged.
const jobQueueDepth = 256

// Options configures an Archive.
type Options struct {
	// DataRoot is the synced directory holding objects/ and sessions/.
	DataRoot string

	// Device is the stable identity stamped on session entries and used
	// as the merge tiebreak. It must not change between runs.
	Device string

	// Logger overrides the default component logger.
	Logger *slog.Logger

	// Watch starts an fsnotify watcher in StartBackground that folds
	// externally written objects and sessions into the index.
	Watch bool

	// SyncEvery starts a periodic sync in StartBackground when positive.
	SyncEvery time.Duration
}

// Archive is a handle on one data root. All methods are safe for
// concurrent use; multiple archives over distinct roots can coexist in
// one process.
type Archive struct {
	opts     Options
	objects  *object.Store
	sessions *session.Store
	idx      *index.DB
	lock     *gitsync.DirLock
	syncer   *gitsync.Syncer
	log      *slog.Logger

	// Index writes are applied by a single worker so ingestion never
	// waits on SQLite. Jobs are idempotent; a dropped process loses
	// nothing the next rebuild cannot derive.
	jobs  chan func(context.Context)
	jobWG sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	bgStarted bool
	bgCancel  context.CancelFunc
	watcher   *index.Watcher
	bg        sync.WaitGroup
}

// Open wires up an archive over opts.DataRoot, creating the on-disk
// layout on first use. It does not touch the network.
func Open(opts Options) (*Archive, error) {
	if opts.DataRoot == "" {
		return nil, fmt.Errorf("chronicle: open archive: empty data root")
	}
	if opts.Device == "" {
		return nil, fmt.Errorf("chronicle: open archive: empty device id")
	}
	log := opts.Logger
	if log == nil {
		log = logging.ForComponent(logging.CompMemory)
	}

	objects, err := object.New(opts.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	sessions, err := session.New(opts.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	idx, err := index.Open(filepath.Join(opts.DataRoot, indexFileName))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	a := &Archive{
		opts:     opts,
		objects:  objects,
		sessions: sessions,
		idx:      idx,
		lock:     gitsync.NewDirLock(filepath.Join(opts.DataRoot, gitsync.LockFileName), opts.Device),
		syncer:   gitsync.NewSyncer(opts.DataRoot, opts.Device),
		log:      log,
		jobs:     make(chan func(context.Context), jobQueueDepth),
	}
	a.bg.Add(1)
	go a.indexWorker()

	if idx.Stale() {
		log.Warn("search index schema is stale; the next search rebuilds it")
	}
	return a, nil
}

// enqueue hands a job to the index worker. After Close it is a no-op:
// whatever the job would have written, a rebuild re-derives.
func (a *Archive) enqueue(job func(context.Context)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.jobWG.Add(1)
	a.jobs <- job
}

func (a *Archive) indexWorker() {
	defer a.bg.Done()
	// Jobs run detached from any caller context: the queue is drained
	// even during shutdown, and every write is local.
	ctx := context.Background()
	for job := range a.jobs {
		job(ctx)
		a.jobWG.Done()
	}
}

// Flush blocks until every index write queued so far has been applied.
func (a *Archive) Flush() {
	a.jobWG.Wait()
}

// StartBackground launches the optional long-running pieces: the
// filesystem watcher when Options.Watch is set, and the sync scheduler
// when Options.SyncEvery is positive. They stop when ctx is cancelled or
// the archive is closed, whichever comes first.
func (a *Archive) StartBackground(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("chronicle: archive is closed")
	}
	if a.bgStarted {
		return fmt.Errorf("chronicle: background tasks already started")
	}

	runCtx, cancel := context.WithCancel(ctx)

	if a.opts.Watch {
		w, err := index.NewWatcher(a.objects.Dir(), a.sessions.Dir(), a.onObjectWrite, a.onSessionWrite)
		if err != nil {
			cancel()
			return fmt.Errorf("start watcher: %w", err)
		}
		if err := w.Start(); err != nil {
			cancel()
			return fmt.Errorf("start watcher: %w", err)
		}
		a.watcher = w
	}

	if a.opts.SyncEvery > 0 {
		sched := gitsync.NewScheduler(a.opts.SyncEvery, func(ctx context.Context) error {
			_, err := a.Sync(ctx)
			return err
		})
		a.bg.Add(1)
		go func() {
			defer a.bg.Done()
			sched.Run(runCtx)
		}()
	}

	a.bgStarted = true
	a.bgCancel = cancel
	return nil
}

// onObjectWrite folds an object that appeared on disk into the index.
// Our own writes come through here too when the watcher runs; the job is
// idempotent so the duplicate work is harmless.
func (a *Archive) onObjectWrite(hash string) {
	a.enqueue(func(ctx context.Context) {
		obj, err := a.objects.Get(hash)
		if err != nil {
			a.log.Warn("watched object unreadable", "hash", hash, "error", err)
			return
		}
		err = a.idx.Ensure(ctx, index.Row{
			Hash:    hash,
			Type:    string(obj.Type),
			Level:   obj.Level,
			Content: obj.SearchableText(),
		})
		if err != nil {
			a.log.Warn("index object", "hash", hash, "error", err)
		}
	})
}

// onSessionWrite replays a changed session log's attribution. The
// objects the log references are ensured first: attribution lands only
// on existing rows, and the object events for a freshly created shard
// may not have been delivered.
func (a *Archive) onSessionWrite(id string) {
	a.enqueue(func(ctx context.Context) {
		sess, err := a.sessions.Load(id)
		if err != nil {
			a.log.Warn("watched session unreadable", "session", id, "error", err)
			return
		}
		for _, e := range sess.Messages {
			a.ensureFromStore(ctx, e.ContentHash)
			a.ensureFromStore(ctx, e.ContextHash)
		}
		a.ensureFromStore(ctx, sess.SummaryHash)
		if err := a.idx.AttributeSession(ctx, a.objects, id, sess); err != nil {
			a.log.Warn("index session", "session", id, "error", err)
		}
	})
}

// ensureFromStore indexes the payload of a stored object if it is not
// indexed yet. Hashes the store does not hold yet are skipped; their
// rows arrive with the objects.
func (a *Archive) ensureFromStore(ctx context.Context, hash string) {
	if hash == "" {
		return
	}
	obj, err := a.objects.Get(hash)
	if err != nil {
		return
	}
	err = a.idx.Ensure(ctx, index.Row{
		Hash:    hash,
		Type:    string(obj.Type),
		Level:   obj.Level,
		Content: obj.SearchableText(),
	})
	if err != nil {
		a.log.Warn("index object", "hash", hash, "error", err)
	}
	// A snapshot drags its system prompt along.
	if obj.Type == model.TypeContext && obj.System != "" {
		a.ensureFromStore(ctx, obj.System)
	}
}

// Close stops background tasks, drains the index queue, and closes the
// index. The archive is unusable afterwards.
func (a *Archive) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.jobs)
	cancel := a.bgCancel
	watcher := a.watcher
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if watcher != nil {
		if err := watcher.Close(); err != nil {
			a.log.Warn("close watcher", "error", err)
		}
	}
	a.bg.Wait()
	return a.idx.Close()
}
