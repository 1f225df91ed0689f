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

// Package watch reruns asset groups when their sources change.
//
// Each group rebuilds on its own. Changes are debounced, and a change that
// arrives while the group is rebuilding queues exactly one more rebuild.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"bennypowers.dev/assetpipe/fs"
	"bennypowers.dev/assetpipe/internal/logging"
	"bennypowers.dev/assetpipe/pipeline"
)

// Subscription ties a source pattern to a group's rebuild. Several
// subscriptions may name the same group; they share one rebuild queue.
type Subscription struct {
	Group string
	// Pattern is an absolute doublestar pattern.
	Pattern string
	Rebuild func(ctx context.Context) error
}

// Notifier is told about every finished rebuild.
type Notifier interface {
	Rebuilt(group string, elapsed time.Duration, err error)
}

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	Log      *slog.Logger
	Notifier Notifier
	// OnChange, when set, sees every relevant path before it is matched.
	OnChange func(path string)
}

// Watcher watches the base directories of its subscriptions.
type Watcher struct {
	fsys   fs.FileSystem
	fsw    *fsnotify.Watcher
	opts   Options
	log    *slog.Logger
	subs   []Subscription
	groups map[string]*group
	// deep lists the directories watched with their subdirectories.
	deep []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// group is the per-group state machine: idle, debouncing, rebuilding, and
// rebuilding with one rerun pending.
type group struct {
	name    string
	w       *Watcher
	rebuild func(ctx context.Context) error

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	pending bool
	runs    int
}

// New registers recursive watches on the static base of every
// subscription's pattern. Missing base directories are a
// ConfigurationError.
func New(fsys fs.FileSystem, subs []Subscription, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		fsys:   fsys,
		fsw:    fsw,
		opts:   opts,
		log:    logging.OrDiscard(opts.Log),
		subs:   subs,
		groups: make(map[string]*group),
		ctx:    ctx,
		cancel: cancel,
	}

	recursive := make(map[string]bool)
	var dirs []string
	for _, sub := range subs {
		if sub.Rebuild == nil {
			_ = w.Close()
			return nil, &pipeline.ConfigurationError{Field: "watch", Value: sub.Group, Err: errors.New("no rebuild function")}
		}
		if _, ok := w.groups[sub.Group]; !ok {
			w.groups[sub.Group] = &group{name: sub.Group, w: w, rebuild: sub.Rebuild}
		}
		dir, deep := watchRoot(sub.Pattern)
		if !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
		recursive[dir] = recursive[dir] || deep
	}
	for _, dir := range dirs {
		if recursive[dir] {
			w.deep = append(w.deep, dir)
		}
		if err := w.addDirs(dir, recursive[dir]); err != nil {
			_ = w.Close()
			return nil, &pipeline.ConfigurationError{Field: "watch", Value: dir, Err: err}
		}
	}
	return w, nil
}

// Run handles file events until ctx is cancelled, then closes the watcher
// and waits for running rebuilds to finish.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

// Close stops watching, cancels pending rebuilds and waits for running
// ones.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.cancel()
		for _, g := range w.groups {
			g.stopTimer()
		}
		w.closeErr = w.fsw.Close()
		w.wg.Wait()
	})
	return w.closeErr
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if shouldIgnoreEvent(ev.Name) || ev.Op == fsnotify.Chmod {
		return
	}
	if ev.Op.Has(fsnotify.Create) {
		if fi, err := w.fsys.Stat(ev.Name); err == nil && fi.IsDir() && w.underDeepRoot(ev.Name) {
			if err := w.addDirs(ev.Name, true); err != nil {
				w.log.Warn("watch add failed", "dir", ev.Name, "error", err)
			}
		}
	}
	w.log.Debug("file change detected", "path", ev.Name, "op", ev.Op.String())
	w.Notify(ev.Name)
}

// Notify schedules a rebuild of every group with a subscription matching
// path, and reports the groups scheduled.
func (w *Watcher) Notify(path string) []string {
	if w.ctx.Err() != nil {
		return nil
	}
	// fsnotify reports names as joined onto the watched directory, so a
	// relative root yields "./index.html" where the pattern is "*.html".
	path = filepath.Clean(path)
	if w.opts.OnChange != nil {
		w.opts.OnChange(path)
	}
	name := filepath.ToSlash(path)
	var scheduled []string
	for _, sub := range w.subs {
		if slices.Contains(scheduled, sub.Group) {
			continue
		}
		if ok, _ := doublestar.Match(filepath.ToSlash(filepath.Clean(sub.Pattern)), name); ok {
			scheduled = append(scheduled, sub.Group)
			w.groups[sub.Group].trigger()
		}
	}
	return scheduled
}

func (w *Watcher) underDeepRoot(dir string) bool {
	for _, root := range w.deep {
		if rel, err := filepath.Rel(root, dir); err == nil && !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}

// watchRoot returns the directory to watch for pattern and whether its
// subdirectories need watching too.
func watchRoot(pattern string) (dir string, recursive bool) {
	base, rest := doublestar.SplitPattern(filepath.ToSlash(pattern))
	if rest == "" {
		// A literal file; watch the directory holding it.
		return filepath.Dir(filepath.FromSlash(base)), false
	}
	return filepath.FromSlash(base), strings.Contains(rest, "/")
}

func (w *Watcher) addDirs(dir string, recursive bool) error {
	info, err := w.fsys.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("not a directory")
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	if !recursive {
		return nil
	}
	entries, err := w.fsys.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || shouldIgnoreEvent(e.Name()) || e.Name() == "node_modules" {
			continue
		}
		sub := filepath.Join(dir, e.Name())
		if err := w.addDirs(sub, true); err != nil {
			w.log.Warn("watch add failed", "dir", sub, "error", err)
		}
	}
	return nil
}

// trigger restarts the group's debounce timer.
func (g *group) trigger() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(g.w.opts.Debounce, g.request)
}

func (g *group) stopTimer() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
	}
}

// request starts a rebuild, or marks one pending when a rebuild is
// already running.
func (g *group) request() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.w.ctx.Err() != nil {
		return
	}
	if g.running {
		g.pending = true
		return
	}
	g.running = true
	g.w.wg.Go(g.loop)
}

func (g *group) loop() {
	for {
		g.run()
		g.mu.Lock()
		if g.pending && g.w.ctx.Err() == nil {
			g.pending = false
			g.mu.Unlock()
			continue
		}
		g.pending = false
		g.running = false
		g.mu.Unlock()
		return
	}
}

func (g *group) run() {
	g.mu.Lock()
	g.runs++
	g.mu.Unlock()

	start := time.Now()
	g.w.log.Info("rebuilding", "group", g.name)
	err := g.rebuild(g.w.ctx)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		g.w.log.Error("rebuild failed", "group", g.name, "error", err)
	} else {
		g.w.log.Info("rebuilt", "group", g.name, "elapsed", elapsed.Round(time.Millisecond))
	}
	if n := g.w.opts.Notifier; n != nil {
		n.Rebuilt(g.name, elapsed, err)
	}
}

// shouldIgnoreEvent reports paths that never trigger rebuilds: hidden
// files and editor swap or backup files.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	return base == "Thumbs.db" || base == "4913"
}
