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
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"bennypowers.dev/assetpipe/internal/command"
	"bennypowers.dev/assetpipe/pipeline"
	"bennypowers.dev/assetpipe/sourcemap"
)

// Style compiler selections.
const (
	LessAuto   = "auto"
	LessBinary = "lessc"
	LessNative = "native"
)

// ErrNoLessc is returned when the lessc compiler is required but missing.
var ErrNoLessc = errors.New("lessc not found on PATH")

// LessOptions configures the less stage.
type LessOptions struct {
	// Compiler is LessAuto, LessBinary or LessNative. Auto and LessBinary
	// both need lessc; the native compiler is only used when chosen.
	Compiler string
	// LookPath finds executables; defaults to exec.LookPath.
	LookPath command.LookPathFunc
	Cache    *Cache
}

// Less returns the style preprocessing stage.
func Less(opts LessOptions) (pipeline.Stage, error) {
	lookPath := opts.LookPath.LookPath
	switch opts.Compiler {
	case "", LessAuto:
		bin, err := lookPath("lessc")
		if err != nil {
			return nil, &pipeline.ConfigurationError{
				Field: "styles.compiler",
				Value: LessAuto,
				Err:   fmt.Errorf("%w; install less, or set %s to compile plain CSS with nesting only", ErrNoLessc, LessNative),
			}
		}
		return Lessc(bin, opts.Cache), nil
	case LessBinary:
		bin, err := lookPath("lessc")
		if err != nil {
			return nil, &pipeline.ConfigurationError{Field: "styles.compiler", Value: LessBinary, Err: ErrNoLessc}
		}
		return Lessc(bin, opts.Cache), nil
	case LessNative:
		return NativeLess(opts.Cache), nil
	default:
		return nil, &pipeline.ConfigurationError{
			Field: "styles.compiler",
			Value: opts.Compiler,
			Err:   fmt.Errorf("must be one of %s, %s, %s", LessAuto, LessBinary, LessNative),
		}
	}
}

// Lessc compiles LESS by piping each file through the lessc binary at bin.
// Imports resolve relative to the file's directory. When the file tracks a
// source map, lessc emits one inline and it replaces the tracked map, so
// later stages map back to LESS lines.
func Lessc(bin string, cache *Cache) pipeline.Stage {
	return pipeline.Each("less", func(ctx context.Context, f *pipeline.File) error {
		dir := filepath.Dir(f.Abs())
		args := []string{"--no-color", "--include-path=" + dir}
		tracking := f.Map != nil
		if tracking {
			args = append(args, "--source-map-map-inline")
		}
		args = append(args, "-")
		key := Key([]byte("lessc"), []byte(bin), []byte(strings.Join(args, " ")), f.Contents)
		res, err := cache.Do(key, func() (Result, error) {
			out, err := command.Filter(ctx, bin, args, f.Contents)
			return Result{Code: out}, err
		})
		if err != nil {
			return err
		}

		code := res.Code
		if tracking {
			css, m, err := sourcemap.ExtractInline(code)
			if err != nil {
				return err
			}
			if m != nil {
				relabelStdin(m, f.Source(), f.Map)
				f.Map = m
			}
			code = append(slices.Clip(css), '\n')
		}
		f.Contents = code
		f.SetPath(strings.TrimSuffix(f.Path, path.Ext(f.Path)) + ".css")
		return nil
	})
}

// stdinNames are the names lessc gives its standard input in source maps.
var stdinNames = []string{"-", "input", "stdin"}

// relabelStdin points the stdin source of m at source, taking its
// content from the map tracked before compiling.
func relabelStdin(m *sourcemap.Map, source string, before *sourcemap.Map) {
	if len(m.SourcesContent) < len(m.Sources) {
		m.SourcesContent = append(m.SourcesContent, make([]*string, len(m.Sources)-len(m.SourcesContent))...)
	}
	for i, s := range m.Sources {
		if s != "" && !slices.Contains(stdinNames, filepath.Base(s)) {
			continue
		}
		m.Sources[i] = source
		if before != nil && len(before.SourcesContent) > 0 {
			m.SourcesContent[i] = before.SourcesContent[0]
		}
	}
}
