package memory

import (
	"context"
	"fmt"

	"github.com/openhearth/chronicle/internal/gitsync"
)

// InitRepo turns the data root into a sync-capable repository and, when
// remote is non-empty, points it at the shared remote. Safe to call on
// an already-initialized root.
func (a *Archive) InitRepo(ctx context.Context, remote string) error {
	release, err := a.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}
	defer release()
	return a.syncer.InitRepo(ctx, remote)
}

// Sync runs one full sync cycle under the directory lock: commit local
// changes, reconcile with the remote, push. When the cycle pulled
// anything, the changed material is folded into the index before the
// lock is released, so a search immediately after Sync sees what
// arrived.
//
// The result is returned even when post-pull indexing fails; the synced
// data is safe on disk and a rebuild recovers the index.
func (a *Archive) Sync(ctx context.Context) (*gitsync.Result, error) {
	release, err := a.lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}
	defer release()

	res, err := a.syncer.Sync(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}
	if res.Pulled {
		if err := a.idx.Refresh(ctx, a.objects, a.sessions); err != nil {
			return res, fmt.Errorf("index pulled changes: %w", err)
		}
	}
	return res, nil
}

// SyncStatus reports the repository side of the data root without
// touching the network.
func (a *Archive) SyncStatus(ctx context.Context) gitsync.Status {
	return a.syncer.Status(ctx)
}
