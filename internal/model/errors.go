package model

import "errors"

// Every storage failure is classified into one of these kinds so callers
// can tell "missing" from "damaged" from "not yet synced".
var (
	// ErrNotFound marks a missing object or session. Recoverable; the
	// caller decides the fallback.
	ErrNotFound = errors.New("chronicle: not found")

	// ErrCorrupted marks stored bytes whose digest no longer matches
	// their address. Surfaced, never auto-repaired.
	ErrCorrupted = errors.New("chronicle: object corrupted")

	// ErrSessionCorrupt marks a session file that cannot be parsed.
	// The caller chooses whether to recreate or abort.
	ErrSessionCorrupt = errors.New("chronicle: session file corrupted")

	// ErrIndexStale marks a search index that needs a rebuild before it
	// can answer queries.
	ErrIndexStale = errors.New("chronicle: search index stale")

	// ErrSyncConflict marks diverging session histories that the
	// deterministic merge refused to reconcile.
	ErrSyncConflict = errors.New("chronicle: sync conflict")

	// ErrTransport marks an unreachable or failing sync remote. Retried
	// with backoff by the scheduler, never fatal to local operation.
	ErrTransport = errors.New("chronicle: sync transport failure")
)
