// Package session persists per-conversation append-only logs. A session
// file records who said what and when, by content hash; the bytes
// themselves live in the object store. Session files are the only mutable
// files in the data root, so every write here is a whole-file atomic
// replace.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/openhearth/chronicle/internal/logging"
	"github.com/openhearth/chronicle/internal/model"
)

// DirName is the directory under the data root that holds session logs.
const DirName = "sessions"

// Store reads and writes session logs below a single sessions/ directory.
// Concurrent appends to the same session from one process serialize on a
// per-session lock; cross-process exclusion is the caller's job.
type Store struct {
	dir string
	log *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New opens (creating if needed) the session store under root. The store
// directory is root/sessions.
func New(root string) (*Store, error) {
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Store{
		dir:   dir,
		log:   logging.ForComponent(logging.CompSession),
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the absolute sessions directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the on-disk path for a session log.
func (s *Store) Path(id string) (string, error) {
	if err := model.ValidateSessionID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// lockFor returns the mutex guarding a single session's file.
func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// AppendParams describes one log entry. Time defaults to the current UTC
// time when empty.
type AppendParams struct {
	Role        model.Role
	ContentHash string
	ContextHash string
	Time        string
	Device      string
}

// Append adds an entry to the session, creating the log on first use.
// last_time advances to the entry time when it is newer than what the
// log already records.
func (s *Store) Append(id string, p AppendParams) error {
	if !model.ValidRoles[p.Role] {
		return fmt.Errorf("invalid role %q", p.Role)
	}
	if p.ContentHash == "" {
		return errors.New("append: empty content hash")
	}
	if p.Time == "" {
		p.Time = model.Now()
	}

	return s.update(id, true, func(sess *model.Session) error {
		sess.Messages = append(sess.Messages, model.Entry{
			Role:        p.Role,
			ContentHash: p.ContentHash,
			ContextHash: p.ContextHash,
			Time:        p.Time,
			Device:      p.Device,
		})
		if p.Time > sess.LastTime {
			sess.LastTime = p.Time
		}
		return nil
	})
}

// SummaryParams carries a session summary update. Hash is the summary
// object in the content store, when one was written.
type SummaryParams struct {
	Text string
	Hash string
	Time string
}

// UpdateSummary replaces the session summary. The summary timestamp is
// what sync uses to pick a winner when two devices summarize
// independently, so it defaults to now only when the caller has nothing
// better.
func (s *Store) UpdateSummary(id string, p SummaryParams) error {
	if p.Time == "" {
		p.Time = model.Now()
	}
	return s.update(id, false, func(sess *model.Session) error {
		sess.Summary = p.Text
		sess.SummaryHash = p.Hash
		sess.SummaryTime = p.Time
		return nil
	})
}

// update performs a locked read-modify-write of one session file.
// create controls whether a missing session starts empty or errors.
func (s *Store) update(id string, create bool, mutate func(*model.Session) error) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}

	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	sess, err := s.load(id, path)
	if err != nil {
		if !create || !errors.Is(err, model.ErrNotFound) {
			return err
		}
		sess = &model.Session{Messages: []model.Entry{}}
	}
	if err := mutate(sess); err != nil {
		return err
	}
	return s.write(path, sess)
}

// Load returns the parsed session log. It returns model.ErrNotFound for
// unknown sessions and model.ErrSessionCorrupt when the file exists but
// cannot be parsed.
func (s *Store) Load(id string) (*model.Session, error) {
	path, err := s.Path(id)
	if err != nil {
		return nil, err
	}
	return s.load(id, path)
}

func (s *Store) load(id, path string) (*model.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	sess, err := model.ParseSession(data)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w: %v", id, model.ErrSessionCorrupt, err)
	}
	return sess, nil
}

// write atomically replaces one session file via temp file + rename.
func (s *Store) write(path string, sess *model.Session) error {
	data, err := sess.Encode()
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".session-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp session: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	cleanup = false
	return nil
}

// Replace writes a fully-formed session log, clobbering whatever was
// there. Sync uses this to install merged logs.
func (s *Store) Replace(id string, sess *model.Session) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()
	return s.write(path, sess)
}

// IDs returns every session id present on disk, sorted.
func (s *Store) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read session dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if model.ValidateSessionID(id) != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// List returns summaries of every readable session, most recent first.
// Recency comes from last_time in the file, not mtime: a git checkout
// rewrites every mtime, so mtime ordering would scramble after each sync.
func (s *Store) List() ([]model.SessionInfo, error) {
	ids, err := s.IDs()
	if err != nil {
		return nil, err
	}
	infos := make([]model.SessionInfo, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Load(id)
		if err != nil {
			s.log.Warn("skipping unreadable session", "session", id, "error", err)
			continue
		}
		infos = append(infos, model.SessionInfo{
			ID:           id,
			MessageCount: len(sess.Messages),
			LastTime:     sess.LastTime,
			Summary:      sess.Summary,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].LastTime != infos[j].LastTime {
			return infos[i].LastTime > infos[j].LastTime
		}
		return infos[i].ID > infos[j].ID
	})
	return infos, nil
}

// Walk calls fn for every readable session, in id order. Corrupt session
// files are logged and skipped so a rebuild can proceed past damage.
func (s *Store) Walk(fn func(id string, sess *model.Session) error) error {
	ids, err := s.IDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		sess, err := s.Load(id)
		if err != nil {
			s.log.Warn("skipping unreadable session", "session", id, "error", err)
			continue
		}
		if err := fn(id, sess); err != nil {
			return err
		}
	}
	return nil
}
