package gitsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openhearth/chronicle/internal/logging"
	"github.com/openhearth/chronicle/internal/model"
	"github.com/openhearth/chronicle/internal/object"
	"github.com/openhearth/chronicle/internal/session"
)

// Syncer drives the commit/fetch/merge/push cycle for one data root.
// Callers must hold the data root's DirLock across Sync; the cycle
// rewrites session files when it merges.
type Syncer struct {
	git    *Git
	root   string
	device string
	log    *slog.Logger
}

// NewSyncer returns a syncer for the data root at root. device is this
// machine's stable ID; it ends up in commit messages and merged entries
// keep it as their tiebreak key.
func NewSyncer(root, device string) *Syncer {
	return &Syncer{
		git:    NewGit(root),
		root:   root,
		device: device,
		log:    logging.ForComponent(logging.CompSync),
	}
}

// InitRepo turns the data root into a syncable repository: init if
// needed, a committer identity, ignore rules for local-only files, and
// optionally the origin remote. Safe to run repeatedly.
func (s *Syncer) InitRepo(ctx context.Context, remote string) error {
	if !Available() {
		return errors.New("git not found in PATH")
	}
	if !s.git.IsRepo(ctx) {
		if err := s.git.Init(ctx); err != nil {
			return err
		}
	}
	if err := s.git.EnsureIdentity(ctx, s.device); err != nil {
		return err
	}
	if err := s.writeIgnoreFile(); err != nil {
		return err
	}
	if remote != "" {
		if err := s.git.SetRemote(ctx, remote); err != nil {
			return err
		}
	}
	return nil
}

// writeIgnoreFile keeps derived and device-private files out of sync.
// The index is rebuildable on every device; the lock and temp files are
// meaningless off-machine.
func (s *Syncer) writeIgnoreFile() error {
	content := strings.Join([]string{
		"# local state; never synced",
		"index.db*",
		LockFileName,
		"*.tmp",
		"",
	}, "\n")
	path := filepath.Join(s.root, ".gitignore")
	if existing, err := os.ReadFile(path); err == nil && string(existing) == content {
		return nil
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// Result says what one sync cycle did.
type Result struct {
	LocalCommit    bool     `json:"local_commit"`
	Pulled         bool     `json:"pulled"`
	MergedSessions []string `json:"merged_sessions,omitempty"`
	Pushed         bool     `json:"pushed"`
	UpToDate       bool     `json:"up_to_date"`
}

// Sync runs one full cycle: commit local changes, fetch, reconcile with
// the remote branch, push. Without a configured remote it stops after
// the local commit. Network failures come back wrapped in
// model.ErrTransport; unresolvable merges in model.ErrSyncConflict, with
// the work tree restored to its pre-merge state.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	if !s.git.IsRepo(ctx) {
		return nil, errors.New("data root is not a git repository (run init first)")
	}

	res := &Result{}
	committed, err := s.git.CommitAll(ctx, fmt.Sprintf("Sync %s (%s)", model.Now(), s.device))
	if err != nil {
		return nil, err
	}
	res.LocalCommit = committed

	if s.git.RemoteURL(ctx) == "" {
		s.log.Debug("no remote configured, local commit only")
		res.UpToDate = true
		return res, nil
	}

	// A push can lose the race against another device; refetch and try
	// once more before giving up.
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		done, err := s.cycle(ctx, res)
		if err != nil {
			return nil, err
		}
		if done {
			return res, nil
		}
		out, err := s.git.run(ctx, "push", "-u", "origin", Branch)
		if err == nil {
			res.Pushed = true
			return res, nil
		}
		if !pushRejected(out) {
			return nil, transportErr(err)
		}
		s.log.Info("push rejected, remote moved; refetching", "attempt", attempt)
		lastErr = err
	}
	return nil, transportErr(lastErr)
}

// cycle fetches and reconciles. done means the remote already has
// everything and no push is needed.
func (s *Syncer) cycle(ctx context.Context, res *Result) (done bool, err error) {
	if _, err := s.git.run(ctx, "fetch", "origin"); err != nil {
		return false, transportErr(err)
	}

	remote := "origin/" + Branch
	theirs := s.git.rev(ctx, remote)
	ours := s.git.rev(ctx, "HEAD")

	switch {
	case theirs == "" && ours == "":
		// Nothing anywhere yet.
		res.UpToDate = true
		return true, nil
	case theirs == "":
		// Empty remote; the push seeds it.
		return false, nil
	case ours == "":
		// Nothing committed here yet; adopt the remote history.
		if _, err := s.git.run(ctx, "reset", "--hard", remote); err != nil {
			return false, err
		}
		res.Pulled = true
		return true, nil
	case ours == theirs:
		res.UpToDate = true
		return true, nil
	}

	switch s.git.mergeBase(ctx, "HEAD", remote) {
	case theirs:
		// Ahead of the remote; just push.
		return false, nil
	case ours:
		if _, err := s.git.run(ctx, "merge", "--ff-only", remote); err != nil {
			return false, err
		}
		res.Pulled = true
		return true, nil
	default:
		merged, err := s.mergeDivergent(ctx, remote)
		if err != nil {
			return false, err
		}
		res.Pulled = true
		res.MergedSessions = append(res.MergedSessions, merged...)
		return false, nil
	}
}

// mergeDivergent reconciles truly divergent histories. Git resolves
// everything it can on its own (object files union trivially); the
// leftovers must be session logs, which merge deterministically, or the
// whole attempt is rolled back. Unrelated histories are allowed: two
// devices that each started talking before their first sync is the
// normal way a second machine joins.
func (s *Syncer) mergeDivergent(ctx context.Context, remote string) (mergedIDs []string, err error) {
	if _, err := s.git.run(ctx, "merge", "--no-ff", "--no-commit", "--allow-unrelated-histories", remote); err != nil {
		unmerged, uerr := s.git.unmergedPaths(ctx)
		if uerr != nil || len(unmerged) == 0 {
			s.abortMerge(ctx)
			return nil, fmt.Errorf("%w: merge failed without resolvable conflicts: %v", model.ErrSyncConflict, err)
		}
		for _, path := range unmerged {
			id, rerr := s.resolvePath(ctx, path)
			if rerr != nil {
				s.abortMerge(ctx)
				return nil, fmt.Errorf("%w: %s: %v", model.ErrSyncConflict, path, rerr)
			}
			if id != "" {
				mergedIDs = append(mergedIDs, id)
			}
		}
	}
	if _, err := s.git.run(ctx, "commit", "--no-edit"); err != nil {
		s.abortMerge(ctx)
		return nil, err
	}
	s.log.Info("merged divergent histories", "sessions", len(mergedIDs))
	return mergedIDs, nil
}

func (s *Syncer) abortMerge(ctx context.Context) {
	if _, err := s.git.run(ctx, "merge", "--abort"); err != nil {
		s.log.Warn("merge abort failed", "error", err)
	}
}

// resolvePath settles one conflicted file. Session logs merge; object
// files self-select by their content hash; anything else is not ours to
// guess at.
func (s *Syncer) resolvePath(ctx context.Context, path string) (sessionID string, err error) {
	switch {
	case strings.HasPrefix(path, session.DirName+"/") && strings.HasSuffix(path, ".json"):
		return s.resolveSession(ctx, path)
	case strings.HasPrefix(path, object.DirName+"/"):
		return "", s.resolveObject(ctx, path)
	default:
		return "", errors.New("conflict outside data files")
	}
}

func (s *Syncer) resolveSession(ctx context.Context, path string) (string, error) {
	id := strings.TrimSuffix(filepath.Base(path), ".json")

	oursBytes, oursOK := s.git.stage(ctx, 2, path)
	theirsBytes, theirsOK := s.git.stage(ctx, 3, path)
	if !oursOK || !theirsOK {
		return "", errors.New("session log deleted on one side")
	}
	ours, err := model.ParseSession(oursBytes)
	if err != nil {
		return "", fmt.Errorf("local copy unreadable: %v", err)
	}
	theirs, err := model.ParseSession(theirsBytes)
	if err != nil {
		return "", fmt.Errorf("remote copy unreadable: %v", err)
	}

	var base *model.Session
	if baseBytes, ok := s.git.stage(ctx, 1, path); ok {
		if base, err = model.ParseSession(baseBytes); err != nil {
			return "", fmt.Errorf("ancestor copy unreadable: %v", err)
		}
	}

	merged, err := MergeSessions(id, base, ours, theirs)
	if err != nil {
		return "", err
	}
	encoded, err := merged.Encode()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(s.root, path), encoded, 0o644); err != nil {
		return "", err
	}
	if _, err := s.git.run(ctx, "add", "--", path); err != nil {
		return "", err
	}
	s.log.Debug("merged session log", "session", id)
	return id, nil
}

// resolveObject picks whichever side actually hashes to the file's name.
// Two devices cannot legitimately disagree about a content-addressed
// file, so a conflict here means one side's copy is damaged.
func (s *Syncer) resolveObject(ctx context.Context, path string) error {
	hash := strings.TrimSuffix(filepath.Base(path), ".json")
	for _, stage := range []int{2, 3} {
		data, ok := s.git.stage(ctx, stage, path)
		if !ok || object.HashBytes(data) != hash {
			continue
		}
		if err := os.WriteFile(filepath.Join(s.root, path), data, 0o644); err != nil {
			return err
		}
		if _, err := s.git.run(ctx, "add", "--", path); err != nil {
			return err
		}
		s.log.Warn("kept the intact copy of a damaged object", "hash", hash)
		return nil
	}
	return fmt.Errorf("object %s matches neither side", hash)
}

// pushRejected distinguishes "the remote moved under us" from network
// and auth failures.
func pushRejected(output string) bool {
	return strings.Contains(output, "[rejected]") ||
		strings.Contains(output, "non-fast-forward") ||
		strings.Contains(output, "fetch first")
}

// Status describes the repository side of the data root.
type Status struct {
	IsRepo bool   `json:"is_repo"`
	Remote string `json:"remote,omitempty"`
	Head   string `json:"head,omitempty"`
	Dirty  bool   `json:"dirty"`
}

// Status reports repository state for diagnostics.
func (s *Syncer) Status(ctx context.Context) Status {
	st := Status{IsRepo: s.git.IsRepo(ctx)}
	if !st.IsRepo {
		return st
	}
	st.Remote = s.git.RemoteURL(ctx)
	st.Head = s.git.rev(ctx, "HEAD")
	st.Dirty, _ = s.git.Dirty(ctx)
	return st
}
