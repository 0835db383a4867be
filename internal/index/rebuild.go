package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openhearth/chronicle/internal/model"
	"github.com/openhearth/chronicle/internal/object"
	"github.com/openhearth/chronicle/internal/session"
)

// Rebuild derives the whole index from scratch: payload rows from the
// object store, attribution from the session logs. It runs in one
// transaction, so concurrent readers see either the old index or the new
// one, never a half-built table.
//
// Attribution comes only from session entries, the same source the live
// write path uses, so a rebuilt index matches one maintained
// incrementally no matter what order the stores are scanned in.
func (d *DB) Rebuild(ctx context.Context, objects *object.Store, sessions *session.Store) error {
	start := time.Now()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM objects`); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}

	objCount, sessCount, err := scanStores(ctx, tx, objects, sessions)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, schemaVersion)
	if err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}
	d.stale = false

	d.log.Info("index rebuilt",
		"objects", objCount,
		"sessions", sessCount,
		"took", time.Since(start).Round(time.Millisecond))
	return nil
}

// Refresh folds the current store contents into the existing index
// without clearing it first. Objects are never deleted, so re-scanning
// on top of live rows converges to the same state a full rebuild would
// reach; it just skips the destructive step. A stale index still gets
// the full treatment.
func (d *DB) Refresh(ctx context.Context, objects *object.Store, sessions *session.Store) error {
	if d.stale {
		return d.Rebuild(ctx, objects, sessions)
	}
	start := time.Now()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refresh: %w", err)
	}
	defer tx.Rollback()

	objCount, sessCount, err := scanStores(ctx, tx, objects, sessions)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit refresh: %w", err)
	}

	d.log.Info("index refreshed",
		"objects", objCount,
		"sessions", sessCount,
		"took", time.Since(start).Round(time.Millisecond))
	return nil
}

// scanStores replays the full store contents into tx: every object gets
// a payload row, every session entry an attribution pass.
func scanStores(ctx context.Context, tx *sql.Tx, objects *object.Store, sessions *session.Store) (objCount, sessCount int, err error) {
	err = objects.Walk(func(hash string, obj *model.Object) error {
		objCount++
		return ensureIn(ctx, tx, Row{
			Hash:    hash,
			Type:    string(obj.Type),
			Level:   obj.Level,
			Content: obj.SearchableText(),
		})
	})
	if err != nil {
		return 0, 0, fmt.Errorf("scan objects: %w", err)
	}

	err = sessions.Walk(func(id string, sess *model.Session) error {
		sessCount++
		return attributeSessionIn(ctx, tx, objects, id, sess)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("scan sessions: %w", err)
	}
	return objCount, sessCount, nil
}

// AttributeSession replays one session log's attribution, the same pass a
// rebuild applies. Used when a session file changed under the index, for
// example after a sync pulled entries recorded elsewhere.
func (d *DB) AttributeSession(ctx context.Context, objects *object.Store, id string, sess *model.Session) error {
	return attributeSessionIn(ctx, d.db, objects, id, sess)
}

func attributeSessionIn(ctx context.Context, e execer, objects *object.Store, id string, sess *model.Session) error {
	for _, m := range sess.Messages {
		err := attributeIn(ctx, e, m.ContentHash, Attribution{
			Role:    string(m.Role),
			Time:    m.Time,
			Session: id,
			Context: m.ContextHash,
		})
		if err != nil {
			return err
		}
		if m.ContextHash == "" {
			continue
		}
		if err := attributeIn(ctx, e, m.ContextHash, Attribution{Time: m.Time, Session: id}); err != nil {
			return err
		}
		// The snapshot names the system prompt it was built on; that
		// object inherits the entry's observation.
		if snap, err := objects.Get(m.ContextHash); err == nil && snap.System != "" {
			if err := attributeIn(ctx, e, snap.System, Attribution{Time: m.Time, Session: id}); err != nil {
				return err
			}
		}
	}
	if sess.SummaryHash != "" {
		err := attributeIn(ctx, e, sess.SummaryHash, Attribution{
			Time:    sess.SummaryTime,
			Session: id,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
