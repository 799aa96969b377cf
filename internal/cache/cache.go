// Package cache implements the engine's fingerprint-keyed result cache: a
// disk-backed mapping from fingerprint to serialized successful result,
// with single-writer-per-key semantics enforced by atomic rename.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"workflowctl/internal/errs"
	"workflowctl/internal/value"
)

// cacheVersion is the suffix on cache files: "<fingerprint>.v1".
const cacheVersion = "v1"

// Cache is the contract consumed by the Scheduler: lookup, store, has.
//
// lookup never fails the caller: a read error is logged by the caller and
// treated as a miss (CacheReadError is swallowed, not propagated).
type Cache interface {
	// Lookup returns the stored value for key, or ok=false if absent or on
	// any read error.
	Lookup(key string) (v value.Value, ok bool, err error)
	// Store persists v under key. Concurrent Store calls for the same key
	// are safe and converge to one of the values via atomic rename.
	Store(key string, v value.Value) error
	// Has reports whether key is present, without reading its payload.
	Has(key string) bool
}

// Disabled is the "no cache directory configured" no-op cache: all
// operations are no-ops and Has always returns false.
type Disabled struct{}

func (Disabled) Lookup(string) (value.Value, bool, error) { return value.Value{}, false, nil }
func (Disabled) Store(string, value.Value) error          { return nil }
func (Disabled) Has(string) bool                          { return false }

// DiskCache implements Cache as a flat directory of `<fingerprint>.v1`
// files, using an atomic temp-file-then-rename write discipline for crash
// safety.
type DiskCache struct {
	Dir string
}

// New returns a DiskCache rooted at dir, creating it if necessary.
func New(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cache: creating cache dir: %w", err)
	}
	return &DiskCache{Dir: dir}, nil
}

func (c *DiskCache) entryPath(key string) string {
	return filepath.Join(c.Dir, key+"."+cacheVersion)
}

// Has reports whether an entry exists for key.
func (c *DiskCache) Has(key string) bool {
	_, err := os.Stat(c.entryPath(key))
	return err == nil
}

// Lookup reads and decodes the entry for key. Any error (including a
// missing file) yields ok=false; the caller is responsible for logging a
// CacheReadError and continuing as though it were a miss.
func (c *DiskCache) Lookup(key string) (value.Value, bool, error) {
	data, err := os.ReadFile(c.entryPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return value.Value{}, false, nil
		}
		return value.Value{}, false, &errs.Error{Kind: errs.KindCacheReadError, Msg: err.Error()}
	}

	var v value.Value
	if err := json.Unmarshal(data, &v); err != nil {
		return value.Value{}, false, &errs.Error{Kind: errs.KindCacheReadError, Msg: err.Error()}
	}
	return v, true, nil
}

// Store writes the canonical JSON serialization of v to a temp sibling
// file and atomically renames it into place, so a concurrent reader never
// observes a partial write, and two concurrent Store calls for the same
// key converge to one of the (by construction, equal) values.
func (c *DiskCache) Store(key string, v value.Value) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &errs.Error{Kind: errs.KindCacheWriteError, Msg: err.Error()}
	}

	final := c.entryPath(key)
	if err := writeFileAtomic(final, data, key); err != nil {
		return &errs.Error{Kind: errs.KindCacheWriteError, Msg: err.Error()}
	}
	return nil
}

// writeFileAtomic writes data to a `<final>.tmp.<nonce>` sibling and
// renames it into place.
func writeFileAtomic(final string, data []byte, nonceSeed string) error {
	dir := filepath.Dir(final)
	tmp, err := os.CreateTemp(dir, filepath.Base(final)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, final); err != nil {
		return err
	}
	committed = true
	return nil
}
