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

// Package app wires the configured asset groups into the task graph.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"bennypowers.dev/assetpipe/assets"
	"bennypowers.dev/assetpipe/clean"
	"bennypowers.dev/assetpipe/compile"
	"bennypowers.dev/assetpipe/config"
	"bennypowers.dev/assetpipe/devserver"
	"bennypowers.dev/assetpipe/fs"
	"bennypowers.dev/assetpipe/internal/logging"
	"bennypowers.dev/assetpipe/packagejson"
	"bennypowers.dev/assetpipe/pipeline"
	"bennypowers.dev/assetpipe/tasks"
	"bennypowers.dev/assetpipe/watch"
)

// compileCacheSize bounds the compiler results kept across rebuilds.
const compileCacheSize = 512

// shutdownTimeout bounds the dev server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Task names. Group tasks run one asset group each.
const (
	TaskClean   = "clean"
	TaskPug     = "pug"
	TaskHTML    = "html"
	TaskStyles  = "styles"
	TaskScripts = "scripts"
	TaskImages  = "img"
	TaskWatch   = "watch"
	TaskBuild   = "build"
	TaskDefault = "default"
)

// taskGroups maps group tasks to the asset group they build.
var taskGroups = map[string]string{
	TaskPug:     config.Pug,
	TaskHTML:    config.HTML,
	TaskStyles:  config.Styles,
	TaskScripts: config.Scripts,
	TaskImages:  config.Images,
}

// App holds the shared state of one invocation.
type App struct {
	Config   *config.Config
	FS       fs.FileSystem
	Log      *slog.Logger
	Env      *assets.Env
	Packages *packagejson.MemoryCache

	// newServer builds the dev server; replaced in tests.
	newServer func(devserver.Options) *devserver.Server
}

// New prepares an App. out receives size reports.
func New(cfg *config.Config, fsys fs.FileSystem, log *slog.Logger, out io.Writer) (*App, error) {
	log = logging.OrDiscard(log)
	cache, err := compile.NewCache(compileCacheSize)
	if err != nil {
		return nil, err
	}
	pkgs := packagejson.NewMemoryCache()
	return &App{
		Config:   cfg,
		FS:       fsys,
		Log:      log,
		Packages: pkgs,
		Env: &assets.Env{
			FS:       fsys,
			Config:   cfg,
			Log:      log,
			Out:      out,
			Cache:    cache,
			Packages: pkgs,
		},
		newServer: devserver.New,
	}, nil
}

// Clean removes the previous build output, keeping protected entries.
func (a *App) Clean(ctx context.Context) error {
	dir := a.Config.Path(a.Config.Clean.Dir)
	var outputs []string
	if g, ok := a.Config.Group(config.Images); ok {
		outputs = append(outputs, a.Config.Path(g.Dest))
	}
	clean.Warn(a.Log, dir, a.Config.Clean.Keep, outputs...)
	return clean.Run(ctx, a.FS, dir, a.Config.Clean.Keep)
}

// Build returns a function that builds one asset group.
func (a *App) Build(group string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := assets.Run(ctx, a.Env, group)
		return err
	}
}

// Subscriptions lists what the watcher follows: every group's sources,
// plus package.json for the groups its browser targets affect. Groups
// whose source directory does not exist are skipped with a warning.
func (a *App) Subscriptions() []watch.Subscription {
	var subs []watch.Subscription
	for _, name := range config.GroupNames {
		g, ok := a.Config.Group(name)
		if !ok {
			continue
		}
		pattern := a.Config.Path(g.Src)
		if base := pipeline.GlobBase(pattern); !a.isDir(base) {
			a.Log.Warn("not watching group; source directory is missing", "group", name, "dir", base)
			continue
		}
		subs = append(subs, watch.Subscription{Group: name, Pattern: pattern, Rebuild: a.Build(name)})
	}
	pkg := filepath.Join(a.Config.Root, "package.json")
	for _, name := range []string{config.Styles, config.Scripts} {
		subs = append(subs, watch.Subscription{Group: name, Pattern: pkg, Rebuild: a.Build(name)})
	}
	return subs
}

func (a *App) isDir(path string) bool {
	info, err := a.FS.Stat(path)
	return err == nil && info.IsDir()
}

// Watch serves the project with live reload and rebuilds groups as their
// sources change, until ctx is cancelled.
func (a *App) Watch(ctx context.Context) error {
	srv := a.newServer(devserver.Options{
		FS:   a.FS,
		Root: a.Config.Path(a.Config.Server.Root),
		Host: a.Config.Server.Host,
		Port: a.Config.Server.Port,
		Log:  a.Log,
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

	w, err := watch.New(a.FS, a.Subscriptions(), watch.Options{
		Debounce: a.Config.Watch.Debounce,
		Log:      a.Log,
		Notifier: srv,
		OnChange: a.invalidate,
	})
	if err != nil {
		return errors.Join(err, a.stopServer(srv))
	}

	a.Log.Info("watching for changes", "url", srv.URL())
	runErr := w.Run(ctx)
	return errors.Join(runErr, a.stopServer(srv))
}

func (a *App) stopServer(srv *devserver.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		return fmt.Errorf("stopping dev server: %w", err)
	}
	return nil
}

// invalidate drops cached package.json reads when the file changes.
func (a *App) invalidate(path string) {
	if filepath.Base(path) == "package.json" {
		a.Packages.Invalidate(path)
		a.Log.Debug("package.json changed; browser targets will be reloaded", "path", path)
	}
}

// Registry builds the task graph:
//
//	default = build = series(clean, parallel(html, styles, scripts, img), watch)
func (a *App) Registry() *tasks.Registry {
	r := tasks.NewRegistry()
	task := func(name, desc string, run func(context.Context) error) *tasks.Task {
		t := tasks.Logged(a.Log, tasks.New(name, desc, run))
		r.Register(t)
		return t
	}

	cleanTask := task(TaskClean, "Delete build output except protected entries", a.Clean)
	task(TaskPug, "Compile pug templates to HTML", a.Build(taskGroups[TaskPug]))
	html := task(TaskHTML, "Minify HTML pages", a.Build(taskGroups[TaskHTML]))
	styles := task(TaskStyles, "Compile, prefix and minify styles into main.min.css", a.Build(taskGroups[TaskStyles]))
	scripts := task(TaskScripts, "Transpile, minify and concatenate scripts into main.min.js", a.Build(taskGroups[TaskScripts]))
	img := task(TaskImages, "Optimise changed images", a.Build(taskGroups[TaskImages]))
	watchTask := task(TaskWatch, "Serve with live reload and rebuild on change", a.Watch)

	build := tasks.Series(TaskBuild,
		cleanTask,
		tasks.Parallel("transforms", html, styles, scripts, img),
		watchTask,
	)
	build.Description = "Clean, build every group, then watch"
	r.Register(build)
	r.Alias(TaskDefault, build)
	return r
}
