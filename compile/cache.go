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

package compile

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Result is the output of one conversion.
type Result struct {
	Code []byte
	Map  []byte
}

// Cache remembers conversion results by input, so a watch rebuild only
// recompiles the files that changed. A nil *Cache disables caching.
type Cache struct {
	entries *lru.Cache[string, Result]
}

// NewCache creates a cache holding up to size results.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = 512
	}
	entries, err := lru.New[string, Result](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Purge drops every cached result.
func (c *Cache) Purge() {
	if c != nil {
		c.entries.Purge()
	}
}

// Key hashes the given inputs into a cache key.
func Key(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		var n [8]byte
		l := len(p)
		for i := range n {
			n[i] = byte(l >> (8 * i))
		}
		h.Write(n[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Do returns the cached result for key, or calls fn and caches its result
// when it succeeds.
func (c *Cache) Do(key string, fn func() (Result, error)) (Result, error) {
	if c == nil {
		return fn()
	}
	if r, ok := c.entries.Get(key); ok {
		return r, nil
	}
	r, err := fn()
	if err != nil {
		return r, err
	}
	c.entries.Add(key, r)
	return r, nil
}
