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

// Package mapfs is an in-memory fs.FileSystem for pipeline tests.
//
// Paths are stored without their leading slash in an fstest.MapFS.
// Directories exist implicitly through the files below them, or as an
// empty ".keep" entry when created with MkdirAll.
package mapfs

import (
	"errors"
	"io/fs"
	"path"
	"slices"
	"strings"
	"sync"
	"testing/fstest"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const keep = ".keep"

var errNotDir = errors.New("not a directory")

// epoch stamps files that are not given a modification time.
var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// MapFileSystem is safe for concurrent use.
type MapFileSystem struct {
	mu    sync.RWMutex
	files fstest.MapFS
}

// New returns an empty filesystem.
func New() *MapFileSystem {
	return &MapFileSystem{files: make(fstest.MapFS)}
}

// key maps an absolute or relative name onto its MapFS key.
func key(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

func (mfs *MapFileSystem) put(name string, data []byte, mode fs.FileMode, mtime time.Time) {
	mfs.files[key(name)] = &fstest.MapFile{Data: data, Mode: mode, ModTime: mtime}
}

// AddFile seeds a file stamped with the fixed epoch time.
func (mfs *MapFileSystem) AddFile(name, content string, mode fs.FileMode) {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	mfs.put(name, []byte(content), mode, epoch)
}

// AddFileWithModTime seeds a file with an explicit modification time,
// for staleness checks.
func (mfs *MapFileSystem) AddFileWithModTime(name, content string, mtime time.Time) {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	mfs.put(name, []byte(content), 0644, mtime)
}

// Files lists the files under dir, sorted, as absolute paths.
func (mfs *MapFileSystem) Files(dir string) []string {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()
	prefix := key(dir) + "/"
	if prefix == "/" {
		prefix = ""
	}
	var out []string
	for p := range mfs.files {
		if strings.HasPrefix(p, prefix) && path.Base(p) != keep {
			out = append(out, "/"+p)
		}
	}
	slices.Sort(out)
	return out
}

func (mfs *MapFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	if parent, ok := mfs.files[key(path.Dir(key(name)))]; ok && !parent.Mode.IsDir() {
		return &fs.PathError{Op: "open", Path: name, Err: errNotDir}
	}
	mfs.put(name, slices.Clone(data), perm, epoch)
	return nil
}

func (mfs *MapFileSystem) ReadFile(name string) ([]byte, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()
	return fs.ReadFile(mfs.files, key(name))
}

func (mfs *MapFileSystem) Remove(name string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	k := key(name)
	if _, ok := mfs.files[k]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(mfs.files, k)
	return nil
}

// RemoveAll deletes name and everything below it. Siblings that merely
// share its prefix are kept.
func (mfs *MapFileSystem) RemoveAll(name string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	k := key(name)
	for p := range mfs.files {
		if k == "" || p == k || strings.HasPrefix(p, k+"/") {
			delete(mfs.files, p)
		}
	}
	return nil
}

func (mfs *MapFileSystem) Chtimes(name string, _, mtime time.Time) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	f, ok := mfs.files[key(name)]
	if !ok {
		return &fs.PathError{Op: "chtimes", Path: name, Err: fs.ErrNotExist}
	}
	f.ModTime = mtime
	return nil
}

// Glob matches files only, skipping directory markers. Results are
// absolute and slash separated.
func (mfs *MapFileSystem) Glob(pattern string) ([]string, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()
	matches, err := doublestar.Glob(mfs.files, key(pattern), doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if path.Base(m) != keep {
			out = append(out, "/"+m)
		}
	}
	return out, nil
}

func (mfs *MapFileSystem) MkdirAll(name string, perm fs.FileMode) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	if f, ok := mfs.files[key(name)]; ok && !f.Mode.IsDir() {
		return &fs.PathError{Op: "mkdir", Path: name, Err: errNotDir}
	}
	mfs.put(path.Join(key(name), keep), nil, perm.Perm(), epoch)
	return nil
}

func (mfs *MapFileSystem) TempDir() string { return "/tmp" }

func (mfs *MapFileSystem) Stat(name string) (fs.FileInfo, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()
	return fs.Stat(mfs.files, key(name))
}

// Exists reports whether name is a file or has files below it.
func (mfs *MapFileSystem) Exists(name string) bool {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()
	k := key(name)
	if _, ok := mfs.files[k]; ok {
		return true
	}
	for p := range mfs.files {
		if strings.HasPrefix(p, k+"/") {
			return true
		}
	}
	return false
}

func (mfs *MapFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()
	return fs.ReadDir(mfs.files, key(name))
}

func (mfs *MapFileSystem) Open(name string) (fs.File, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()
	return mfs.files.Open(key(name))
}
