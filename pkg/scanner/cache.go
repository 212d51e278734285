package scanner

import (
	"path/filepath"

	"github.com/entrhq/autoforge/pkg/storage"
)

// CacheFileName is the cache location relative to the scan root.
var CacheFileName = filepath.Join(".af", "cache.json")

const cacheVersion = 1

// CacheEntry is what the scanner remembers about one file.
type CacheEntry struct {
	Size    int64   `json:"size"`
	MtimeMs float64 `json:"mtimeMs"`
	SHA1    string  `json:"sha1,omitempty"`
}

// Cache is the on-disk change-detection cache, keyed by slash-separated
// relative path.
type Cache struct {
	Version int                   `json:"version"`
	Entries map[string]CacheEntry `json:"entries"`
}

func newCache() *Cache {
	return &Cache{Version: cacheVersion, Entries: make(map[string]CacheEntry)}
}

// LoadCache reads a cache file. Anything missing, unreadable or of another
// version yields an empty cache.
func LoadCache(path string) *Cache {
	var c Cache
	if err := storage.ReadJSON(path, &c); err != nil || c.Version != cacheVersion || c.Entries == nil {
		return newCache()
	}
	return &c
}

// Save writes the cache atomically.
func (c *Cache) Save(path string) error {
	return storage.WriteJSON(path, c)
}

// fingerprint returns the cached SHA-1 for rel when size and mtime still match.
func (c *Cache) fingerprint(rel string, size int64, mtimeMs float64) (string, bool) {
	prev, ok := c.Entries[rel]
	if !ok || prev.SHA1 == "" || prev.Size != size || prev.MtimeMs != mtimeMs {
		return "", false
	}
	return prev.SHA1, true
}
