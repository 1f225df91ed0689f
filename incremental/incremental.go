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

// Package incremental skips source files whose build output is already up
// to date.
package incremental

import (
	"context"
	"path/filepath"

	"bennypowers.dev/assetpipe/fs"
	"bennypowers.dev/assetpipe/pipeline"
)

// Filter returns the candidates that need rebuilding: those with no file at
// the same relative path under destDir, or whose existing output was last
// modified strictly before the candidate.
func Filter(fsys fs.FileSystem, candidates []*pipeline.File, destDir string) ([]*pipeline.File, error) {
	stale := make([]*pipeline.File, 0, len(candidates))
	for _, c := range candidates {
		target := filepath.Join(destDir, filepath.FromSlash(c.Path))
		info, err := fsys.Stat(target)
		if err != nil {
			if fs.IsNotExist(err) {
				stale = append(stale, c)
				continue
			}
			return nil, &pipeline.FilesystemError{Op: "stat", Path: target, Err: err}
		}
		if info.ModTime().Before(c.ModTime) {
			stale = append(stale, c)
		}
	}
	return stale, nil
}

// Newer is the stage form of Filter.
func Newer(fsys fs.FileSystem, destDir string) pipeline.Stage {
	return pipeline.StageFunc("newer", func(_ context.Context, files []*pipeline.File) ([]*pipeline.File, error) {
		return Filter(fsys, files, destDir)
	})
}
