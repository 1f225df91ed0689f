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

// Package assets assembles the build pipeline for each asset group.
package assets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"bennypowers.dev/assetpipe/compile"
	"bennypowers.dev/assetpipe/config"
	"bennypowers.dev/assetpipe/fs"
	"bennypowers.dev/assetpipe/imagemin"
	"bennypowers.dev/assetpipe/incremental"
	"bennypowers.dev/assetpipe/internal/command"
	"bennypowers.dev/assetpipe/internal/logging"
	"bennypowers.dev/assetpipe/packagejson"
	"bennypowers.dev/assetpipe/pipeline"
)

// Output names of the bundled groups.
const (
	StylesBundle  = "main"
	StylesSuffix  = ".min"
	ScriptsBundle = "main.min.js"
)

// Env carries what every pipeline needs.
type Env struct {
	FS     fs.FileSystem
	Config *config.Config
	Log    *slog.Logger
	// Out receives size reports. Nil disables them.
	Out io.Writer
	// Cache memoises compiler results across rebuilds. Nil disables it.
	Cache *compile.Cache
	// Packages caches package.json reads. Nil reads the file every time.
	Packages packagejson.Cache
	// LookPath finds external tools; defaults to exec.LookPath.
	LookPath command.LookPathFunc
}

func (e *Env) log() *slog.Logger {
	return logging.OrDiscard(e.Log)
}

func (e *Env) group(name string) (config.AssetGroup, error) {
	g, ok := e.Config.Group(name)
	if !ok {
		return g, &pipeline.ConfigurationError{Field: "groups." + name, Err: fmt.Errorf("unknown group")}
	}
	return g, nil
}

func (e *Env) dest(g config.AssetGroup) string {
	return e.Config.Path(g.Dest)
}

// Targets returns the browser targets: the configured targets when set,
// otherwise package.json browserslist, otherwise compile.DefaultQueries.
func (e *Env) Targets() compile.Targets {
	queries, source := e.Config.Targets, "config"
	if len(queries) == 0 {
		pkgPath := filepath.Join(e.Config.Root, "package.json")
		if pkg, err := packagejson.Load(e.FS, e.Packages, pkgPath); err == nil && !pkg.Browserslist.IsZero() {
			queries, source = pkg.Browserslist.For(packagejson.DefaultEnv), "package.json"
		}
	}
	if len(queries) == 0 {
		queries, source = compile.DefaultQueries, "defaults"
	}
	t, unsupported := compile.ParseTargets(queries)
	if len(unsupported) > 0 {
		e.log().Warn("ignoring unsupported browser queries", "queries", unsupported, "source", source)
	}
	e.log().Debug("browser targets", "targets", t.String(), "source", source)
	return t
}

// NewPug compiles pug templates to HTML.
func NewPug(e *Env) (*pipeline.Pipeline, error) {
	g, err := e.group(config.Pug)
	if err != nil {
		return nil, err
	}
	return pipeline.New(config.Pug,
		compile.Pug(),
		pipeline.Size(e.Out, config.Pug, true),
		pipeline.Dest(e.FS, e.dest(g)),
	), nil
}

// NewHTML collapses whitespace in static HTML.
func NewHTML(e *Env) (*pipeline.Pipeline, error) {
	g, err := e.group(config.HTML)
	if err != nil {
		return nil, err
	}
	return pipeline.New(config.HTML,
		compile.HTMLMin(),
		pipeline.Size(e.Out, config.HTML, true),
		pipeline.Dest(e.FS, e.dest(g)),
	), nil
}

// NewStyles compiles, prefixes and minifies style sheets into
// main.min.css with a sidecar source map.
func NewStyles(e *Env) (*pipeline.Pipeline, error) {
	g, err := e.group(config.Styles)
	if err != nil {
		return nil, err
	}
	less, err := compile.Less(compile.LessOptions{
		Compiler: e.Config.Styles.Compiler,
		LookPath: e.LookPath,
		Cache:    e.Cache,
	})
	if err != nil {
		return nil, err
	}
	t := e.Targets()
	return pipeline.New(config.Styles,
		pipeline.SourcemapsInit(),
		less,
		compile.Autoprefixer(t, e.Cache),
		compile.CleanCSS(t, e.Cache),
		pipeline.Rename(pipeline.RenameOptions{Basename: StylesBundle, Suffix: StylesSuffix}, e.log()),
		pipeline.SourcemapsWrite(),
		pipeline.Size(e.Out, config.Styles, true),
		pipeline.Dest(e.FS, e.dest(g)),
	), nil
}

// NewScripts checks, transpiles and minifies scripts, then concatenates
// them in glob order into main.min.js.
func NewScripts(e *Env) (*pipeline.Pipeline, error) {
	g, err := e.group(config.Scripts)
	if err != nil {
		return nil, err
	}
	t := e.Targets()
	return pipeline.New(config.Scripts,
		pipeline.SourcemapsInit(),
		compile.Syntax(),
		compile.Babel(t, e.Cache),
		compile.Uglify(t, e.Cache),
		pipeline.Concat(ScriptsBundle),
		pipeline.SourcemapsWrite(),
		pipeline.Size(e.Out, config.Scripts, true),
		pipeline.Dest(e.FS, e.dest(g)),
	), nil
}

// NewImages optimises images that changed since they were last written.
func NewImages(e *Env) (*pipeline.Pipeline, error) {
	g, err := e.group(config.Images)
	if err != nil {
		return nil, err
	}
	dest := e.dest(g)
	return pipeline.New(config.Images,
		incremental.Newer(e.FS, dest),
		imagemin.Stage(imagemin.Options{Jobs: e.Config.Images.Jobs, Log: e.log(), LookPath: e.LookPath}),
		pipeline.Size(e.Out, config.Images, false),
		pipeline.Dest(e.FS, dest),
	), nil
}

var constructors = map[string]func(*Env) (*pipeline.Pipeline, error){
	config.Pug:     NewPug,
	config.HTML:    NewHTML,
	config.Styles:  NewStyles,
	config.Scripts: NewScripts,
	config.Images:  NewImages,
}

// New builds the pipeline for the named group.
func New(e *Env, group string) (*pipeline.Pipeline, error) {
	ctor, ok := constructors[group]
	if !ok {
		return nil, &pipeline.ConfigurationError{Field: "group", Value: group, Err: fmt.Errorf("unknown group")}
	}
	return ctor(e)
}

// Run reads the group's sources and runs its pipeline.
func Run(ctx context.Context, e *Env, group string) ([]*pipeline.File, error) {
	p, err := New(e, group)
	if err != nil {
		return nil, err
	}
	g, err := e.group(group)
	if err != nil {
		return nil, err
	}
	files, err := pipeline.Source(e.FS, e.Config.Root, g.Src)
	if err != nil {
		return nil, err
	}
	e.log().Debug("running pipeline", "group", group, "files", len(files), "stages", p.StageNames())
	return p.Run(ctx, files)
}
