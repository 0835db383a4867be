package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/openhearth/chronicle/internal/gitsync"
	"github.com/openhearth/chronicle/internal/index"
	"github.com/openhearth/chronicle/internal/model"
)

// VerifyReport is the result of a full integrity pass.
type VerifyReport struct {
	Objects  int `json:"objects"`
	Sessions int `json:"sessions"`

	// BadObjects are stored files whose bytes no longer hash to their
	// name.
	BadObjects []string `json:"bad_objects,omitempty"`

	// BadSessions are logs that no longer parse.
	BadSessions []string `json:"bad_sessions,omitempty"`

	// MissingRefs are hashes referenced by a session entry or another
	// object but absent from the store, e.g. not yet synced from the
	// device that recorded them.
	MissingRefs []string `json:"missing_refs,omitempty"`

	Clean bool `json:"clean"`
}

// Verify checks every stored object against its hash, parses every
// session log, and chases references between them. It repairs nothing;
// damaged conversation data is reported, not discarded.
func (a *Archive) Verify(ctx context.Context) (*VerifyReport, error) {
	rep := &VerifyReport{}

	bad, err := a.objects.Verify()
	if err != nil {
		return nil, fmt.Errorf("verify objects: %w", err)
	}
	rep.BadObjects = bad
	if rep.Objects, err = a.objects.Count(); err != nil {
		return nil, fmt.Errorf("verify objects: %w", err)
	}

	missing := map[string]bool{}
	ref := func(h string) {
		if h != "" && !missing[h] && !a.objects.Has(h) {
			missing[h] = true
		}
	}

	ids, err := a.sessions.IDs()
	if err != nil {
		return nil, fmt.Errorf("verify sessions: %w", err)
	}
	rep.Sessions = len(ids)
	for _, id := range ids {
		sess, err := a.sessions.Load(id)
		if err != nil {
			if errors.Is(err, model.ErrSessionCorrupt) {
				rep.BadSessions = append(rep.BadSessions, id)
				continue
			}
			return nil, fmt.Errorf("verify session %s: %w", id, err)
		}
		for _, e := range sess.Messages {
			ref(e.ContentHash)
			ref(e.ContextHash)
		}
		ref(sess.SummaryHash)
	}

	// Snapshots and summaries reference other objects by hash; a member
	// can legitimately be missing until the device that recorded it
	// syncs.
	err = a.objects.Walk(func(hash string, obj *model.Object) error {
		ref(obj.System)
		for _, h := range obj.Messages {
			ref(h)
		}
		for _, h := range obj.Sources {
			ref(h)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify references: %w", err)
	}

	for h := range missing {
		rep.MissingRefs = append(rep.MissingRefs, h)
	}
	sort.Strings(rep.MissingRefs)
	rep.Clean = len(rep.BadObjects) == 0 && len(rep.BadSessions) == 0 && len(rep.MissingRefs) == 0
	return rep, nil
}

// ArchiveStats is a point-in-time picture of the archive.
type ArchiveStats struct {
	DataRoot   string         `json:"data_root"`
	Device     string         `json:"device"`
	Objects    int            `json:"objects"`
	Sessions   int            `json:"sessions"`
	DataBytes  int64          `json:"data_bytes"`
	Index      *index.Stats   `json:"index,omitempty"`
	IndexStale bool           `json:"index_stale,omitempty"`
	Sync       gitsync.Status `json:"sync"`
}

// Stats reports store sizes, index totals, and sync state. A stale index
// is reported as such rather than rebuilt; stats stays cheap.
func (a *Archive) Stats(ctx context.Context) (*ArchiveStats, error) {
	st := &ArchiveStats{
		DataRoot: a.opts.DataRoot,
		Device:   a.opts.Device,
	}

	var err error
	if st.Objects, err = a.objects.Count(); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	ids, err := a.sessions.IDs()
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	st.Sessions = len(ids)

	for _, dir := range []string{a.objects.Dir(), a.sessions.Dir()} {
		n, err := dirSize(dir)
		if err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
		st.DataBytes += n
	}
	if fi, err := os.Stat(filepath.Join(a.opts.DataRoot, indexFileName)); err == nil {
		st.DataBytes += fi.Size()
	}

	a.Flush()
	idxStats, err := a.idx.Stats(ctx)
	switch {
	case errors.Is(err, model.ErrIndexStale):
		st.IndexStale = true
	case err != nil:
		return nil, fmt.Errorf("stats: %w", err)
	default:
		st.Index = idxStats
	}

	st.Sync = a.syncer.Status(ctx)
	return st, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		total += fi.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return total, err
}
