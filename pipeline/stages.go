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
	"bytes"
	"context"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"bennypowers.dev/assetpipe/fs"
	"bennypowers.dev/assetpipe/internal/output"
	"bennypowers.dev/assetpipe/sourcemap"
)

// RenameOptions describes a rename. Empty fields keep the current value.
type RenameOptions struct {
	Basename string
	Prefix   string
	Suffix   string
	Extname  string
}

// Apply returns the renamed form of the slash path p.
func (o RenameOptions) Apply(p string) string {
	dir, file := path.Split(p)
	ext := path.Ext(file)
	base := strings.TrimSuffix(file, ext)
	if o.Basename != "" {
		base = o.Basename
	}
	if o.Extname != "" {
		ext = o.Extname
	}
	return dir + o.Prefix + base + o.Suffix + ext
}

// Rename renames every file. When several files end up with the same path
// the last one in stream order wins on write; that is logged as a warning.
func Rename(opts RenameOptions, log *slog.Logger) Stage {
	return StageFunc("rename", func(_ context.Context, files []*File) ([]*File, error) {
		seen := make(map[string]string, len(files))
		for _, f := range files {
			f.SetPath(opts.Apply(f.Path))
			if prev, dup := seen[f.Path]; dup && log != nil {
				log.Warn("rename collapses several files onto one output; the last one wins",
					"output", f.Path, "overwritten", prev, "kept", f.Source())
			}
			seen[f.Path] = f.Source()
		}
		return files, nil
	})
}

// Concat joins every file, in stream order, into a single file named name,
// separated by a newline. Tracked source maps are merged into an index map.
// An empty stream produces no file.
func Concat(name string) Stage {
	sep := []byte("\n")
	return StageFunc("concat", func(_ context.Context, files []*File) ([]*File, error) {
		if len(files) == 0 {
			return files, nil
		}
		var buf bytes.Buffer
		parts := make([]sourcemap.Part, 0, len(files))
		mapped := false
		out := NewFile(files[0].Base, name, nil)
		out.History = nil
		for i, f := range files {
			if i > 0 {
				buf.Write(sep)
			}
			buf.Write(f.Contents)
			parts = append(parts, sourcemap.Part{Contents: f.Contents, Map: f.Map})
			if f.Map != nil {
				mapped = true
			}
			if f.ModTime.After(out.ModTime) {
				out.ModTime = f.ModTime
			}
			out.History = append(out.History, f.Source())
		}
		out.History = append(out.History, out.Path)
		out.Contents = buf.Bytes()
		if mapped {
			out.Map = sourcemap.Concat(path.Base(name), parts, sep)
		}
		return []*File{out}, nil
	})
}

// SourcemapsInit starts source map tracking for every file.
func SourcemapsInit() Stage {
	return Each("sourcemaps-init", func(_ context.Context, f *File) error {
		if f.Map == nil {
			f.Map = sourcemap.New(f.Source(), f.Contents)
		}
		return nil
	})
}

// SourcemapsWrite emits each tracked map as a sidecar "<file>.map" next to
// its file and links it with a sourceMappingURL comment.
func SourcemapsWrite() Stage {
	return StageFunc("sourcemaps-write", func(_ context.Context, files []*File) ([]*File, error) {
		out := make([]*File, 0, len(files)*2)
		for _, f := range files {
			out = append(out, f)
			if f.Map == nil {
				continue
			}
			f.Map.File = path.Base(f.Path)
			data, err := f.Map.Bytes()
			if err != nil {
				return nil, fileError(f, err)
			}
			sidecar := NewFile(f.Base, f.Path+".map", data)
			sidecar.ModTime = f.ModTime
			sidecar.History = []string{f.Source(), sidecar.Path}

			css := f.Ext() == ".css"
			contents := slices.Clone(bytes.TrimRight(f.Contents, "\n"))
			comment := sourcemap.Comment(path.Base(sidecar.Path), css)
			f.Contents = append(append(contents, '\n'), comment+"\n"...)
			f.Map = nil
			out = append(out, sidecar)
		}
		return out, nil
	})
}

// Size reports the size of every file in the stream to w under title. It
// never changes the stream.
func Size(w io.Writer, title string, showFiles bool) Stage {
	return StageFunc("size", func(_ context.Context, files []*File) ([]*File, error) {
		entries := make([]output.SizeEntry, len(files))
		for i, f := range files {
			entries[i] = output.SizeEntry{Name: f.Path, Bytes: len(f.Contents)}
		}
		output.Sizes(w, title, entries, showFiles)
		return files, nil
	})
}

// Dest writes every file under dir, preserving its relative path and
// modification time, and rebases the file onto dir.
func Dest(fsys fs.FileSystem, dir string) Stage {
	return StageFunc("dest", func(ctx context.Context, files []*File) ([]*File, error) {
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			target := filepath.Join(dir, filepath.FromSlash(f.Path))
			if err := fsys.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return nil, &FilesystemError{Op: "mkdir", Path: filepath.Dir(target), Err: err}
			}
			mode := f.Mode
			if mode == 0 {
				mode = 0644
			}
			if err := fsys.WriteFile(target, f.Contents, mode); err != nil {
				return nil, &FilesystemError{Op: "write", Path: target, Err: err}
			}
			if !f.ModTime.IsZero() {
				if err := fsys.Chtimes(target, time.Now(), f.ModTime); err != nil {
					return nil, &FilesystemError{Op: "chtimes", Path: target, Err: err}
				}
			}
			f.Base = dir
		}
		return files, nil
	})
}
