package engine

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/covstar/luacov/internal/luacov/pathkey"
	"github.com/covstar/luacov/internal/luacov/source"
)

// diskCache persists instrumented source under dir, keyed by
// (FileKey, content hash), guarded by an flock'd lockfile so
// concurrent test-runner subprocesses sharing the same cache
// directory never interleave a partial write. The in-memory cache
// (internal/luacov/cache) already handles the single-process case;
// this is its cross-subprocess sibling.
type diskCache struct {
	dir string
}

func newDiskCache(dir string) *diskCache {
	return &diskCache{dir: dir}
}

func (d *diskCache) entryPath(key pathkey.Key, hash source.Hash) string {
	safe := filepath.Clean(filepath.FromSlash(key.String()))
	return filepath.Join(d.dir, safe+"."+string(hash)+".lua")
}

func (d *diskCache) lockPath() string {
	return filepath.Join(d.dir, ".lock")
}

// put writes src to the cache entry for (key, hash), serialized
// against other writers via an exclusive file lock on a single
// directory-wide lockfile.
func (d *diskCache) put(key pathkey.Key, hash source.Hash, src []byte) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return err
	}

	lock := flock.New(d.lockPath())
	if err := lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	entry := d.entryPath(key, hash)
	if err := os.MkdirAll(filepath.Dir(entry), 0o755); err != nil {
		return err
	}
	return os.WriteFile(entry, src, 0o644)
}

// get reads a previously cached entry, if present.
func (d *diskCache) get(key pathkey.Key, hash source.Hash) ([]byte, bool) {
	data, err := os.ReadFile(d.entryPath(key, hash))
	if err != nil {
		return nil, false
	}
	return data, true
}
