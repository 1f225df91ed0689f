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
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"bennypowers.dev/assetpipe/pipeline"
	"bennypowers.dev/assetpipe/sourcemap"
)

// esbuildStage runs one esbuild transform over each file. When the file
// tracks a source map, the previous map is fed in inline so esbuild chains
// it onto its own output.
type esbuildStage struct {
	name        string
	opts        api.TransformOptions
	fingerprint string
	cache       *Cache
	// ext, when set, replaces the file extension after the transform.
	ext string
	// strict fails the file on esbuild warnings too.
	strict bool
}

func newEsbuildStage(name string, opts api.TransformOptions, cache *Cache) *esbuildStage {
	return &esbuildStage{
		name:        name,
		opts:        opts,
		fingerprint: fmt.Sprintf("%s|%d|%v|%d|%v|%v|%v|%v", name, opts.Loader, opts.Engines, opts.Target, opts.MinifyWhitespace, opts.MinifySyntax, opts.MinifyIdentifiers, opts.Supported),
		cache:       cache,
	}
}

func (s *esbuildStage) stage() pipeline.Stage {
	return pipeline.Each(s.name, s.apply)
}

func (s *esbuildStage) apply(_ context.Context, f *pipeline.File) error {
	css := s.opts.Loader == api.LoaderCSS
	input := f.Contents
	opts := s.opts
	opts.Sourcefile = f.Source()

	tracking := f.Map != nil
	var mapKey []byte
	if tracking {
		opts.Sourcemap = api.SourceMapExternal
		if f.Map.HasMappings() {
			comment, err := sourcemap.Inline(f.Map, css)
			if err != nil {
				return err
			}
			input = append(append([]byte(nil), input...), "\n"+comment+"\n"...)
			mapKey = []byte(comment)
		}
	}

	key := Key([]byte(s.fingerprint), []byte(opts.Sourcefile), []byte(fmt.Sprint(tracking)), input, mapKey)
	res, err := s.cache.Do(key, func() (Result, error) {
		out := api.Transform(string(input), opts)
		if len(out.Errors) > 0 {
			return Result{}, messagesError(out.Errors)
		}
		if s.strict && len(out.Warnings) > 0 {
			return Result{}, messagesError(out.Warnings)
		}
		return Result{Code: out.Code, Map: out.Map}, nil
	})
	if err != nil {
		return err
	}

	f.Contents = res.Code
	if tracking {
		m, err := sourcemap.Parse(res.Map)
		if err != nil {
			return err
		}
		f.Map = m
	}
	if s.ext != "" && f.Ext() != s.ext {
		f.SetPath(strings.TrimSuffix(f.Path, path.Ext(f.Path)) + s.ext)
	}
	return nil
}

// messagesError converts esbuild diagnostics to a located TransformError.
func messagesError(msgs []api.Message) error {
	first := msgs[0]
	err := &pipeline.TransformError{Err: errors.New(first.Text)}
	if loc := first.Location; loc != nil {
		err.File = loc.File
		err.Line = loc.Line
		err.Column = loc.Column + 1
	}
	if len(msgs) > 1 {
		err.Err = fmt.Errorf("%s (and %d more)", first.Text, len(msgs)-1)
	}
	return err
}

// NativeLess compiles the CSS-compatible subset of LESS (plain rules and
// nested rules) with esbuild, lowering nesting to flat selectors. The
// output file gets a .css extension. Anything beyond that subset fails
// with a located TransformError: variables and line comments are caught
// by CheckNativeLess, mixins and other unknown syntax by esbuild warnings.
func NativeLess(cache *Cache) pipeline.Stage {
	s := newEsbuildStage("less", api.TransformOptions{
		Loader:    api.LoaderCSS,
		Supported: map[string]bool{"nesting": false},
		LogLevel:  api.LogLevelSilent,
	}, cache)
	s.ext = ".css"
	s.strict = true
	s.fingerprint += "|strict"
	return pipeline.Each(s.name, func(ctx context.Context, f *pipeline.File) error {
		if err := CheckNativeLess(f.Contents); err != nil {
			return err
		}
		return s.apply(ctx, f)
	})
}

// Autoprefixer adds the vendor prefixes the targets need.
func Autoprefixer(t Targets, cache *Cache) pipeline.Stage {
	return newEsbuildStage("autoprefixer", api.TransformOptions{
		Loader:   api.LoaderCSS,
		Engines:  t.Engines,
		LogLevel: api.LogLevelSilent,
	}, cache).stage()
}

// CleanCSS minifies style sheets with whitespace, syntax and structural
// (rule merging) optimisations.
func CleanCSS(t Targets, cache *Cache) pipeline.Stage {
	return newEsbuildStage("clean-css", api.TransformOptions{
		Loader:            api.LoaderCSS,
		Engines:           t.Engines,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: true,
		LogLevel:          api.LogLevelSilent,
	}, cache).stage()
}

// Babel lowers modern script syntax to the targets.
func Babel(t Targets, cache *Cache) pipeline.Stage {
	return newEsbuildStage("babel", api.TransformOptions{
		Loader:   api.LoaderJS,
		Target:   t.Target,
		Engines:  t.Engines,
		LogLevel: api.LogLevelSilent,
	}, cache).stage()
}

// Uglify minifies and mangles each script on its own.
func Uglify(t Targets, cache *Cache) pipeline.Stage {
	return newEsbuildStage("uglify", api.TransformOptions{
		Loader:            api.LoaderJS,
		Target:            t.Target,
		Engines:           t.Engines,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: true,
		LogLevel:          api.LogLevelSilent,
	}, cache).stage()
}
