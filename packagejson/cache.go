/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package packagejson

import (
	"sync"

	"bennypowers.dev/assetpipe/fs"
)

// Cache holds parsed package.json files between builds. The watcher
// invalidates an entry when its file changes.
type Cache interface {
	Get(path string) (*PackageJSON, bool)
	Set(path string, pkg *PackageJSON)
	Invalidate(path string)
	// GetOrLoad returns the cached entry or runs loader once, even when
	// several goroutines ask for the same path concurrently.
	GetOrLoad(path string, loader func() (*PackageJSON, error)) (*PackageJSON, error)
}

type cacheEntry struct {
	pkg  *PackageJSON
	err  error
	once sync.Once
}

// MemoryCache is a Cache safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	cache   map[string]*PackageJSON
	loading sync.Map // path -> *cacheEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{cache: make(map[string]*PackageJSON)}
}

func (c *MemoryCache) Get(path string) (*PackageJSON, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pkg, ok := c.cache[path]
	return pkg, ok
}

func (c *MemoryCache) Set(path string, pkg *PackageJSON) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[path] = pkg
}

// Invalidate drops the entry and any remembered load failure, so the next
// GetOrLoad reads the file again.
func (c *MemoryCache) Invalidate(path string) {
	c.mu.Lock()
	delete(c.cache, path)
	c.mu.Unlock()
	c.loading.Delete(path)
}

func (c *MemoryCache) GetOrLoad(path string, loader func() (*PackageJSON, error)) (*PackageJSON, error) {
	if pkg, ok := c.Get(path); ok {
		return pkg, nil
	}

	actual, _ := c.loading.LoadOrStore(path, &cacheEntry{})
	entry := actual.(*cacheEntry)
	entry.once.Do(func() {
		entry.pkg, entry.err = loader()
		if entry.err == nil {
			c.Set(path, entry.pkg)
		}
	})
	// Entries stay in loading until Invalidate; deleting here would race
	// with a concurrent LoadOrStore.
	return entry.pkg, entry.err
}

// Load reads path through cache. A nil cache reads the file every time.
func Load(fsys fs.FileSystem, cache Cache, path string) (*PackageJSON, error) {
	if cache == nil {
		return ParseFile(fsys, path)
	}
	return cache.GetOrLoad(path, func() (*PackageJSON, error) {
		return ParseFile(fsys, path)
	})
}
