// Package index maintains the local SQLite search index over the object
// store. The index is derived state: every row can be recomputed from the
// objects and session logs, so the database file is never synced and can
// be deleted at any time. Queries against a stale index fail with
// model.ErrIndexStale until Rebuild runs.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/openhearth/chronicle/internal/logging"
	"github.com/openhearth/chronicle/internal/model"
)

// FileName is the index database file under the data root.
const FileName = "index.db"

// schemaVersion is bumped whenever the row shape or indexing rules
// change. Version 2 moved message attribution (role, time, session) out
// of object payloads onto session log entries.
const schemaVersion = "2"

// DB is the search index handle. All methods are safe for concurrent use;
// SQLite serializes writers and the busy timeout covers the watcher and
// the ingestion path writing at once.
type DB struct {
	db    *sql.DB
	log   *slog.Logger
	stale bool
}

// Open opens or creates the index database at path. A database written by
// a different schema version opens successfully but reports stale until
// rebuilt, so readers never see rows indexed under old rules.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	d := &DB{db: db, log: logging.ForComponent(logging.CompIndex)}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate index: %w", err)
	}
	return d, nil
}

func (d *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS objects (
		hash    TEXT PRIMARY KEY,
		type    TEXT NOT NULL,
		role    TEXT NOT NULL DEFAULT '',
		time    TEXT NOT NULL DEFAULT '',
		session TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL DEFAULT '',
		level   INTEGER NOT NULL DEFAULT 0,
		content TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_objects_time ON objects(time DESC);
	CREATE INDEX IF NOT EXISTS idx_objects_session ON objects(session);
	CREATE INDEX IF NOT EXISTS idx_objects_type ON objects(type);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS objects_fts USING fts5(
		content,
		content=objects,
		content_rowid=rowid
	);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return err
	}

	// FTS5 triggers keep the mirror in sync with every write path,
	// including rebuild deletes.
	d.db.Exec(`CREATE TRIGGER IF NOT EXISTS objects_ai AFTER INSERT ON objects BEGIN
		INSERT INTO objects_fts(rowid, content) VALUES (new.rowid, new.content);
	END`)
	d.db.Exec(`CREATE TRIGGER IF NOT EXISTS objects_ad AFTER DELETE ON objects BEGIN
		INSERT INTO objects_fts(objects_fts, rowid, content) VALUES('delete', old.rowid, old.content);
	END`)
	d.db.Exec(`CREATE TRIGGER IF NOT EXISTS objects_au AFTER UPDATE ON objects BEGIN
		INSERT INTO objects_fts(objects_fts, rowid, content) VALUES('delete', old.rowid, old.content);
		INSERT INTO objects_fts(rowid, content) VALUES (new.rowid, new.content);
	END`)

	ver, err := d.getMeta("schema_version")
	if err != nil {
		return err
	}
	switch ver {
	case schemaVersion:
	case "":
		// Fresh database. Only a completed rebuild stamps the version:
		// a brand-new file may be a deleted index over a full store, and
		// an empty-store rebuild costs nothing.
		d.stale = true
	default:
		d.log.Warn("index built by another schema version, rebuild required",
			"found", ver, "want", schemaVersion)
		d.stale = true
	}
	return nil
}

func (d *DB) getMeta(key string) (string, error) {
	var v string
	err := d.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func (d *DB) setMeta(key, value string) error {
	_, err := d.db.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Stale reports whether the index was built under different rules and
// must be rebuilt before queries are trustworthy.
func (d *DB) Stale() bool { return d.stale }

// checkFresh gates every read path.
func (d *DB) checkFresh() error {
	if d.stale {
		return model.ErrIndexStale
	}
	return nil
}

// Row is one indexed object plus its best-known attribution. The content
// columns (type, level, content) are determined by the hash; role, time,
// session and context describe where the object was observed and may be
// empty for objects no session references.
type Row struct {
	Hash    string `json:"hash"`
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Time    string `json:"time,omitempty"`
	Session string `json:"session,omitempty"`
	Context string `json:"context,omitempty"`
	Level   int    `json:"level,omitempty"`
	Content string `json:"content,omitempty"`
}

// execer lets the write statements run either directly or inside a
// rebuild transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Ensure inserts the payload columns for an object if no row exists yet.
// Payload (type, level, content) is determined by the hash, so a second
// Ensure for the same hash is a no-op. Attribution columns start empty.
func (d *DB) Ensure(ctx context.Context, r Row) error {
	return ensureIn(ctx, d.db, r)
}

func ensureIn(ctx context.Context, e execer, r Row) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO objects (hash, type, level, content)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING`,
		r.Hash, r.Type, r.Level, r.Content)
	if err != nil {
		return fmt.Errorf("index %s: %w", r.Hash, err)
	}
	return nil
}

// Attribution says where an object was observed: which session, when, and
// under what role. Context is the hash of the context snapshot an
// assistant message was generated from.
type Attribution struct {
	Role    string
	Time    string
	Session string
	Context string
}

// Attribute attaches an observation to an already-indexed object. When
// the same hash is observed more than once the attribution with the
// greatest (time, session) pair wins, so any set of observations lands on
// the same row in any order. Unknown hashes are a no-op: attribution
// without payload is useless, and the payload write arrives with the
// object itself.
func (d *DB) Attribute(ctx context.Context, hash string, a Attribution) error {
	return attributeIn(ctx, d.db, hash, a)
}

func attributeIn(ctx context.Context, e execer, hash string, a Attribution) error {
	_, err := e.ExecContext(ctx, `
		UPDATE objects
		SET role = ?, time = ?, session = ?, context = ?
		WHERE hash = ?
		  AND (? > time OR (? = time AND ? > session))`,
		a.Role, a.Time, a.Session, a.Context, hash, a.Time, a.Time, a.Session)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", hash, err)
	}
	return nil
}

// Upsert is Ensure plus Attribute in one call, for write paths that hold
// both the object and its observation.
func (d *DB) Upsert(ctx context.Context, r Row) error {
	if err := d.Ensure(ctx, r); err != nil {
		return err
	}
	if r.Time == "" && r.Session == "" {
		return nil
	}
	return d.Attribute(ctx, r.Hash, Attribution{
		Role:    r.Role,
		Time:    r.Time,
		Session: r.Session,
		Context: r.Context,
	})
}

// Get returns the indexed row for hash, or model.ErrNotFound.
func (d *DB) Get(ctx context.Context, hash string) (*Row, error) {
	if err := d.checkFresh(); err != nil {
		return nil, err
	}
	row := d.db.QueryRowContext(ctx, `
		SELECT hash, type, role, time, session, context, level, content
		FROM objects WHERE hash = ?`, hash)
	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index row %s: %w", hash, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(s rowScanner) (Row, error) {
	var r Row
	err := s.Scan(&r.Hash, &r.Type, &r.Role, &r.Time, &r.Session, &r.Context, &r.Level, &r.Content)
	return r, err
}

// Close releases the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}
