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

// Package clean removes previous build output.
package clean

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"bennypowers.dev/assetpipe/fs"
	"bennypowers.dev/assetpipe/pipeline"
)

// Run deletes every entry directly under dir except the names in keep.
// A missing dir is not an error, so running it twice is the same as once.
func Run(ctx context.Context, fsys fs.FileSystem, dir string, keep []string) error {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		if fs.IsNotExist(err) {
			return nil
		}
		return &pipeline.FilesystemError{Op: "readdir", Path: dir, Err: err}
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if slices.Contains(keep, entry.Name()) {
			continue
		}
		target := filepath.Join(dir, entry.Name())
		if err := fsys.RemoveAll(target); err != nil && !fs.IsNotExist(err) {
			return &pipeline.FilesystemError{Op: "remove", Path: target, Err: err}
		}
	}
	return nil
}

// Unprotected reports the output directories under dir that Run would
// delete although a build writes them incrementally. It exists to flag the
// case where the images output is not the protected entry.
func Unprotected(dir string, keep []string, outputs ...string) []string {
	var lost []string
	for _, out := range outputs {
		rel, err := filepath.Rel(dir, out)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		top := strings.Split(filepath.ToSlash(rel), "/")[0]
		if !slices.Contains(keep, top) {
			lost = append(lost, out)
		}
	}
	return lost
}

// Warn logs a warning for every output reported by Unprotected.
func Warn(log *slog.Logger, dir string, keep []string, outputs ...string) {
	if log == nil {
		return
	}
	for _, out := range Unprotected(dir, keep, outputs...) {
		log.Warn("incremental output is not protected from clean and will be rebuilt from scratch",
			"output", out, "clean_dir", dir, "keep", keep)
	}
}
