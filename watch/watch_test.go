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

package watch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"bennypowers.dev/assetpipe/fs"
	"bennypowers.dev/assetpipe/internal/logging"
	"bennypowers.dev/assetpipe/internal/mapfs"
)

type rebuildEvent struct {
	group string
	err   error
}

type recorder struct {
	mu     sync.Mutex
	events []rebuildEvent
	ch     chan rebuildEvent
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan rebuildEvent, 64)}
}

func (r *recorder) Rebuilt(group string, _ time.Duration, err error) {
	r.mu.Lock()
	r.events = append(r.events, rebuildEvent{group, err})
	r.mu.Unlock()
	r.ch <- rebuildEvent{group, err}
}

func (r *recorder) wait(t *testing.T) rebuildEvent {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for rebuild")
		return rebuildEvent{}
	}
}

func project(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"src/scripts/lib", "src/styles"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func newWatcher(t *testing.T, subs []Subscription, opts Options) *Watcher {
	t.Helper()
	w, err := New(fs.NewOSFileSystem(), subs, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestRebuildsAreSerialisedAndCoalesced(t *testing.T) {
	root := project(t)
	started := make(chan struct{}, 10)
	release := make(chan struct{})
	var count atomic.Int32
	rebuild := func(context.Context) error {
		count.Add(1)
		started <- struct{}{}
		<-release
		return nil
	}
	w := newWatcher(t, []Subscription{
		{Group: "scripts", Pattern: filepath.Join(root, "src/scripts/**/*.js"), Rebuild: rebuild},
	}, Options{})

	g := w.groups["scripts"]
	g.request()
	<-started

	// Three changes while rebuilding collapse into one rerun.
	g.request()
	g.request()
	g.request()
	close(release)
	<-started

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := count.Load(); got != 2 {
		t.Errorf("Expected exactly 2 rebuilds, got %d", got)
	}
}

func TestGroupsRebuildIndependently(t *testing.T) {
	root := project(t)
	block := make(chan struct{})
	rec := newRecorder()
	w := newWatcher(t, []Subscription{
		{Group: "scripts", Pattern: filepath.Join(root, "src/scripts/**/*.js"), Rebuild: func(ctx context.Context) error {
			select {
			case <-block:
			case <-ctx.Done():
			}
			return nil
		}},
		{Group: "styles", Pattern: filepath.Join(root, "src/styles/**/*.less"), Rebuild: func(context.Context) error { return nil }},
	}, Options{Notifier: rec})

	w.groups["scripts"].request()
	w.groups["styles"].request()

	if ev := rec.wait(t); ev.group != "styles" {
		t.Errorf("Expected styles to finish while scripts is blocked, got %s", ev.group)
	}
	close(block)
	if ev := rec.wait(t); ev.group != "scripts" {
		t.Errorf("Expected scripts to finish, got %s", ev.group)
	}
}

func TestDebounce(t *testing.T) {
	root := project(t)
	var count atomic.Int32
	rec := newRecorder()
	w := newWatcher(t, []Subscription{
		{Group: "scripts", Pattern: filepath.Join(root, "src/scripts/**/*.js"), Rebuild: func(context.Context) error {
			count.Add(1)
			return nil
		}},
	}, Options{Debounce: 50 * time.Millisecond, Notifier: rec})

	for range 5 {
		w.Notify(filepath.Join(root, "src/scripts/a.js"))
	}
	rec.wait(t)
	time.Sleep(150 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Errorf("Expected burst to debounce into 1 rebuild, got %d", got)
	}
}

func TestFailedRebuildKeepsWatching(t *testing.T) {
	root := project(t)
	rec := newRecorder()
	var calls atomic.Int32
	w := newWatcher(t, []Subscription{
		{Group: "styles", Pattern: filepath.Join(root, "src/styles/**/*.less"), Rebuild: func(context.Context) error {
			if calls.Add(1) == 1 {
				return errors.New("parse error")
			}
			return nil
		}},
	}, Options{Notifier: rec})

	w.Notify(filepath.Join(root, "src/styles/a.less"))
	if ev := rec.wait(t); ev.err == nil {
		t.Error("Expected first rebuild to fail")
	}
	w.Notify(filepath.Join(root, "src/styles/a.less"))
	if ev := rec.wait(t); ev.err != nil {
		t.Errorf("Expected second rebuild to succeed, got %v", ev.err)
	}
}

func TestNotifyMatching(t *testing.T) {
	root := project(t)
	noop := func(context.Context) error { return nil }
	var changed []string
	w := newWatcher(t, []Subscription{
		{Group: "scripts", Pattern: filepath.Join(root, "src/scripts/**/*.js"), Rebuild: noop},
		{Group: "styles", Pattern: filepath.Join(root, "src/styles/**/*.less"), Rebuild: noop},
		{Group: "styles", Pattern: filepath.Join(root, "package.json"), Rebuild: noop},
		{Group: "scripts", Pattern: filepath.Join(root, "package.json"), Rebuild: noop},
	}, Options{Debounce: time.Hour, OnChange: func(p string) { changed = append(changed, p) }})

	tests := []struct {
		path string
		want []string
	}{
		{"src/scripts/lib/util.js", []string{"scripts"}},
		{"src/styles/a.less", []string{"styles"}},
		{"package.json", []string{"styles", "scripts"}},
		{"src/styles/a.css", nil},
		{"README.md", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := w.Notify(filepath.Join(root, tt.path))
			if !slices.Equal(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
	if len(changed) != len(tests) {
		t.Errorf("Expected OnChange for every path, got %v", changed)
	}
}

func TestShouldIgnoreEvent(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/p/src/a.js", false},
		{"/p/src/.a.js.swp", true},
		{"/p/src/a.js~", true},
		{"/p/src/#a.js#", true},
		{"/p/src/.DS_Store", true},
		{"/p/src/4913", true},
	}
	for _, tt := range tests {
		if got := shouldIgnoreEvent(tt.path); got != tt.want {
			t.Errorf("shouldIgnoreEvent(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWatchRoot(t *testing.T) {
	tests := []struct {
		pattern   string
		dir       string
		recursive bool
	}{
		{"/p/src/scripts/**/*.js", "/p/src/scripts", true},
		{"/p/*.pug", "/p", false},
		{"/p/package.json", "/p", false},
		{"/p/src/img/*/*.png", "/p/src/img", true},
	}
	for _, tt := range tests {
		dir, recursive := watchRoot(filepath.FromSlash(tt.pattern))
		if filepath.ToSlash(dir) != tt.dir || recursive != tt.recursive {
			t.Errorf("watchRoot(%q) = %q %v, want %q %v", tt.pattern, dir, recursive, tt.dir, tt.recursive)
		}
	}
}

func TestMissingBaseDirectory(t *testing.T) {
	_, err := New(fs.NewOSFileSystem(), []Subscription{
		{Group: "scripts", Pattern: filepath.Join(t.TempDir(), "missing/**/*.js"), Rebuild: func(context.Context) error { return nil }},
	}, Options{})
	if err == nil {
		t.Fatal("Expected error for missing directory")
	}
}

func TestFileEventsTriggerRebuild(t *testing.T) {
	root := project(t)
	rec := newRecorder()
	w := newWatcher(t, []Subscription{
		{Group: "scripts", Pattern: filepath.Join(root, "src/scripts/**/*.js"), Rebuild: func(context.Context) error { return nil }},
	}, Options{Debounce: 10 * time.Millisecond, Notifier: rec})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := os.WriteFile(filepath.Join(root, "src/scripts/lib/util.js"), []byte("export {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if ev := rec.wait(t); ev.group != "scripts" {
		t.Errorf("Expected scripts rebuild, got %s", ev.group)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRelativePatternsMatchEventNames(t *testing.T) {
	t.Chdir(project(t))
	noop := func(context.Context) error { return nil }
	var changed []string
	w := newWatcher(t, []Subscription{
		{Group: "html", Pattern: "*.html", Rebuild: noop},
		{Group: "styles", Pattern: "src/styles/**/*.less", Rebuild: noop},
		{Group: "styles", Pattern: "package.json", Rebuild: noop},
	}, Options{Debounce: time.Hour, OnChange: func(p string) { changed = append(changed, p) }})

	tests := []struct {
		path string
		want []string
	}{
		{"./index.html", []string{"html"}},
		{"index.html", []string{"html"}},
		{"src/styles/a.less", []string{"styles"}},
		{"./package.json", []string{"styles"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := w.Notify(tt.path); !slices.Equal(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
	if !slices.Contains(changed, "package.json") {
		t.Errorf("Expected OnChange to see the cleaned path, got %v", changed)
	}
}

func TestRelativeRootFileEventsTriggerRebuild(t *testing.T) {
	t.Chdir(project(t))
	rec := newRecorder()
	w := newWatcher(t, []Subscription{
		{Group: "html", Pattern: "*.html", Rebuild: func(context.Context) error { return nil }},
	}, Options{Debounce: 10 * time.Millisecond, Notifier: rec})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	if err := os.WriteFile("index.html", []byte("<p>hi</p>\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if ev := rec.wait(t); ev.group != "html" {
		t.Errorf("Expected html rebuild, got %s", ev.group)
	}
}

func TestNewDirectoryWatchFailureIsLogged(t *testing.T) {
	root := project(t)
	mfs := mapfs.New()
	mfs.AddFile(filepath.Join(root, "src/scripts/a.js"), "", 0644)

	var logs bytes.Buffer
	w, err := New(mfs, []Subscription{
		{Group: "scripts", Pattern: filepath.Join(root, "src/scripts/**/*.js"), Rebuild: func(context.Context) error { return nil }},
	}, Options{Debounce: time.Hour, Log: logging.New(&logs, false)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	// Known to the filesystem abstraction but absent on disk, so the
	// fsnotify watch cannot be added.
	ghost := filepath.Join(root, "src/scripts/ghost")
	mfs.AddFile(filepath.Join(ghost, "b.js"), "", 0644)
	logs.Reset()
	w.handleEvent(fsnotify.Event{Name: ghost, Op: fsnotify.Create})

	if !bytes.Contains(logs.Bytes(), []byte("watch add failed")) || !bytes.Contains(logs.Bytes(), []byte("ghost")) {
		t.Errorf("Expected a warning for the unwatchable directory, got %q", logs.String())
	}
}
