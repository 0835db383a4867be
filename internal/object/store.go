// Package object implements the content-addressed store that holds every
// immutable piece of conversation data. Objects are canonical JSON blobs
// named by the SHA-256 of their bytes and sharded by the first two hex
// characters, so identical content stored on any device lands in the same
// file and merges cleanly.
package object

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openhearth/chronicle/internal/logging"
	"github.com/openhearth/chronicle/internal/model"
)

// DirName is the directory under the data root that holds object shards.
const DirName = "objects"

// Store reads and writes content-addressed objects below a single
// objects/ directory. All methods are safe for concurrent use: writes are
// temp-file + rename, and a given hash always maps to the same bytes.
type Store struct {
	dir string
	log *slog.Logger
}

// New opens (creating if needed) the object store under root. The store
// directory is root/objects.
func New(root string) (*Store, error) {
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}
	return &Store{dir: dir, log: logging.ForComponent(logging.CompObject)}, nil
}

// Dir returns the absolute objects directory.
func (s *Store) Dir() string { return s.dir }

// HashBytes returns the lowercase hex SHA-256 of data. This is the object
// identity for the whole system, including remote devices.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidHash reports whether h looks like a store hash: exactly 64
// lowercase hex characters. Everything else is rejected before it can
// touch the filesystem.
func ValidHash(h string) bool {
	if len(h) != 64 {
		return false
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Path returns the on-disk path for hash without checking existence.
func (s *Store) Path(hash string) (string, error) {
	if !ValidHash(hash) {
		return "", fmt.Errorf("invalid object hash %q", hash)
	}
	return filepath.Join(s.dir, hash[:2], hash+".json"), nil
}

// Put stores obj and returns its hash. Storing the same content twice is
// a no-op that returns the same hash; the first write wins and is never
// rewritten.
func (s *Store) Put(obj *model.Object) (string, error) {
	data, err := obj.Canonical()
	if err != nil {
		return "", fmt.Errorf("encode object: %w", err)
	}
	return s.PutCanonical(data)
}

// PutCanonical stores pre-encoded canonical bytes. Callers that already
// hold the canonical encoding (the indexer, the verifier) use this to
// avoid a decode/encode round trip.
func (s *Store) PutCanonical(data []byte) (string, error) {
	hash := HashBytes(data)
	path, err := s.Path(hash)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err == nil {
		return hash, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat object %s: %w", hash, err)
	}

	shard := filepath.Dir(path)
	if err := os.MkdirAll(shard, 0o755); err != nil {
		return "", fmt.Errorf("create shard dir: %w", err)
	}

	// Write to a temp file in the shard and rename into place so a crash
	// mid-write never leaves a partial object under its final name.
	tmp, err := os.CreateTemp(shard, ".obj-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
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
		return "", fmt.Errorf("write object %s: %w", hash, err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync object %s: %w", hash, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close object %s: %w", hash, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("store object %s: %w", hash, err)
	}
	cleanup = false

	s.log.Debug("stored object", "hash", hash, "bytes", len(data))
	return hash, nil
}

// Get loads the object for hash. It returns model.ErrNotFound when no
// such object exists and model.ErrCorrupted when the stored bytes no
// longer hash to their name.
func (s *Store) Get(hash string) (*model.Object, error) {
	data, err := s.Raw(hash)
	if err != nil {
		return nil, err
	}
	obj, err := model.DecodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w: %v", hash, model.ErrCorrupted, err)
	}
	return obj, nil
}

// Raw returns the verified canonical bytes for hash.
func (s *Store) Raw(hash string) ([]byte, error) {
	path, err := s.Path(hash)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("object %s: %w", hash, model.ErrNotFound)
		}
		return nil, fmt.Errorf("read object %s: %w", hash, err)
	}
	if got := HashBytes(data); got != hash {
		return nil, fmt.Errorf("object %s hashes to %s: %w", hash, got, model.ErrCorrupted)
	}
	return data, nil
}

// Has reports whether an object exists without reading it.
func (s *Store) Has(hash string) bool {
	path, err := s.Path(hash)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Walk calls fn for every decodable object in the store, in hash order.
// Files that fail to decode or whose name does not match their content
// are logged and skipped; Walk is the rebuild path and must survive a
// partially damaged store. fn errors abort the walk.
func (s *Store) Walk(fn func(hash string, obj *model.Object) error) error {
	hashes, err := s.List()
	if err != nil {
		return err
	}
	for _, hash := range hashes {
		data, err := s.Raw(hash)
		if err != nil {
			s.log.Warn("skipping unreadable object", "hash", hash, "error", err)
			continue
		}
		obj, err := model.DecodeObject(data)
		if err != nil {
			s.log.Warn("skipping undecodable object", "hash", hash, "error", err)
			continue
		}
		if err := fn(hash, obj); err != nil {
			return err
		}
	}
	return nil
}

// List returns every object hash present on disk, sorted.
func (s *Store) List() ([]string, error) {
	var hashes []string
	shards, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read object dir: %w", err)
	}
	for _, shard := range shards {
		if !shard.IsDir() || len(shard.Name()) != 2 {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.dir, shard.Name()))
		if err != nil {
			return nil, fmt.Errorf("read shard %s: %w", shard.Name(), err)
		}
		for _, e := range entries {
			name := e.Name()
			if !strings.HasSuffix(name, ".json") {
				continue
			}
			hash := strings.TrimSuffix(name, ".json")
			if !ValidHash(hash) || hash[:2] != shard.Name() {
				continue
			}
			hashes = append(hashes, hash)
		}
	}
	sort.Strings(hashes)
	return hashes, nil
}

// Verify re-hashes every object and returns the hashes whose content no
// longer matches, plus files that cannot be read at all.
func (s *Store) Verify() (bad []string, err error) {
	hashes, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, hash := range hashes {
		if _, err := s.Raw(hash); err != nil {
			s.log.Warn("verify failed", "hash", hash, "error", err)
			bad = append(bad, hash)
		}
	}
	return bad, nil
}

// Count returns the number of stored objects.
func (s *Store) Count() (int, error) {
	hashes, err := s.List()
	if err != nil {
		return 0, err
	}
	return len(hashes), nil
}
