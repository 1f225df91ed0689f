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

package pipeline

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"bennypowers.dev/assetpipe/fs"
)

// Resolve joins a project-relative pattern or path onto root.
func Resolve(root, p string) string {
	if filepath.IsAbs(p) || root == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

// GlobBase returns the static directory prefix of an absolute pattern.
func GlobBase(pattern string) string {
	base, _ := doublestar.SplitPattern(filepath.ToSlash(pattern))
	return filepath.FromSlash(base)
}

// Source reads every file matching pattern, resolved against root. Files
// are returned in glob order with paths relative to the pattern's base.
// A malformed pattern or a missing base directory is a ConfigurationError.
func Source(fsys fs.FileSystem, root, pattern string) ([]*File, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, &ConfigurationError{Field: "src", Err: errors.New("empty pattern")}
	}
	abs := Resolve(root, pattern)
	if !doublestar.ValidatePattern(filepath.ToSlash(abs)) {
		return nil, &ConfigurationError{Field: "src", Value: pattern, Err: doublestar.ErrBadPattern}
	}
	base := GlobBase(abs)
	if info, err := fsys.Stat(base); err != nil || !info.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return nil, &ConfigurationError{Field: "src", Value: pattern, Err: err}
	}

	matches, err := fsys.Glob(abs)
	if err != nil {
		return nil, &ConfigurationError{Field: "src", Value: pattern, Err: err}
	}

	files := make([]*File, 0, len(matches))
	for _, match := range matches {
		data, err := fsys.ReadFile(match)
		if err != nil {
			return nil, &FilesystemError{Op: "read", Path: match, Err: err}
		}
		info, err := fsys.Stat(match)
		if err != nil {
			return nil, &FilesystemError{Op: "stat", Path: match, Err: err}
		}
		rel, err := filepath.Rel(base, filepath.FromSlash(match))
		if err != nil {
			return nil, &FilesystemError{Op: "read", Path: match, Err: err}
		}
		f := NewFile(base, rel, data)
		f.ModTime = info.ModTime()
		if perm := info.Mode().Perm(); perm != 0 {
			f.Mode = perm
		}
		files = append(files, f)
	}
	return files, nil
}
