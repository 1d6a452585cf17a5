// Package cache persists repository state between tool runs. One JSON file
// exists per (organization, prefix) pair; a file on disk is always the
// result of a complete successful refresh, never a partial write.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/classtools/classroom-sync/internal/domain"
)

// CorruptError means a cache file exists but cannot be trusted. The
// remediation is to delete the file and rerun, which forces a full rescan.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("cache file %s is corrupt (delete it and rerun to rescan): %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Store reads and writes cache files under a single directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. An empty dir means the current
// working directory, matching where the tools have always kept their state.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = "."
	}
	return &Store{dir: dir}
}

// Path returns the deterministic cache file path for an org and prefix, so
// repeated runs reuse the same file.
func (s *Store) Path(org, prefix string) string {
	if prefix == "" {
		prefix = "all"
	}
	return filepath.Join(s.dir, fmt.Sprintf(".classroom-sync.%s.%s.json", org, prefix))
}

// Load reads the cache for an org and prefix. A missing file is not an
// error: it returns (nil, nil) so callers treat it as an empty cache. A
// present but unparseable file fails hard with a CorruptError.
func (s *Store) Load(org, prefix string) (*domain.CacheSnapshot, error) {
	path := s.Path(org, prefix)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache %s: %w", path, err)
	}
	var snap domain.CacheSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	if snap.SchemaVersion != domain.SchemaVersion {
		return nil, &CorruptError{Path: path, Err: fmt.Errorf("schema version %d, want %d", snap.SchemaVersion, domain.SchemaVersion)}
	}
	if snap.Repos == nil {
		snap.Repos = make(map[string]domain.RepositorySnapshot)
	}
	return &snap, nil
}

// Save writes the cache atomically: encode into a temporary file in the same
// directory, fsync, then rename into place. An interrupted process never
// leaves a torn cache file. The JSON is pretty-printed; human legibility of
// the cache has proven handy for operators.
func (s *Store) Save(snap *domain.CacheSnapshot) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	path := s.Path(snap.Org, snap.Prefix)

	f, err := os.CreateTemp(s.dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmp := f.Name()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync cache: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename cache into place: %w", err)
	}
	return nil
}

// Remove deletes the cache file for an org and prefix. Safe to call when the
// file does not exist.
func (s *Store) Remove(org, prefix string) error {
	err := os.Remove(s.Path(org, prefix))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Merge applies a refresh's outcome to the previous cache, producing the
// cache to persist. For every name: Unchanged entries are copied from prev
// verbatim, New and Updated entries take the fresh snapshot, and Removed
// entries are dropped by never being copied over.
func Merge(prev *domain.CacheSnapshot, changes map[string]domain.Change, fresh map[string]domain.RepositorySnapshot) *domain.CacheSnapshot {
	merged := domain.NewCacheSnapshot(prev.Org, prev.Prefix)
	merged.ListETag = prev.ListETag
	for name, change := range changes {
		switch change {
		case domain.Unchanged:
			if snap, ok := prev.Repos[name]; ok {
				merged.Repos[name] = snap
			}
		case domain.New, domain.Updated:
			if snap, ok := fresh[name]; ok {
				merged.Repos[name] = snap
			} else if snap, ok := prev.Repos[name]; ok {
				// Detail fetch was skipped; retain the prior snapshot.
				merged.Repos[name] = snap
			}
		case domain.Removed:
			// Dropped from the merged result.
		}
	}
	return merged
}
