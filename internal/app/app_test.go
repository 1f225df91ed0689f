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

package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bennypowers.dev/assetpipe/config"
	"bennypowers.dev/assetpipe/devserver"
	"bennypowers.dev/assetpipe/fs"
	"bennypowers.dev/assetpipe/internal/mapfs"
	"bennypowers.dev/assetpipe/tasks"
	"bennypowers.dev/assetpipe/testutil"
)

func noTools(string) (string, error) { return "", errors.New("not found") }

func newApp(t *testing.T, fsys fs.FileSystem, root string) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Root = root
	cfg.Styles.Compiler = "native"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Watch.Debounce = 20 * time.Millisecond
	var logs bytes.Buffer
	a, err := New(cfg, fsys, slog.New(slog.NewTextHandler(&logs, nil)), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	a.Env.LookPath = noTools
	return a, &logs
}

func TestRegistryNames(t *testing.T) {
	a, _ := newApp(t, mapfs.New(), "/project")
	r := a.Registry()
	want := []string{"clean", "pug", "html", "styles", "scripts", "img", "watch", "build", "default"}
	if got := r.Names(); !slices.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	d, _ := r.Get(TaskDefault)
	var children []string
	for _, c := range d.Children {
		children = append(children, c.Name)
	}
	if !slices.Equal(children, []string{"clean", "transforms", "watch"}) {
		t.Errorf("Unexpected default graph %v", children)
	}
	var parallel []string
	for _, c := range d.Children[1].Children {
		parallel = append(parallel, c.Name)
	}
	if !slices.Equal(parallel, []string{"html", "styles", "scripts", "img"}) {
		t.Errorf("Unexpected parallel members %v", parallel)
	}
}

func TestDefaultTaskTree(t *testing.T) {
	a, _ := newApp(t, mapfs.New(), "/project")
	d, ok := a.Registry().Get(TaskDefault)
	if !ok {
		t.Fatal("Expected a default task")
	}
	got := []byte(tasks.Tree(d))
	want := testutil.Golden(t, "golden/default-tree.txt", got)
	if !bytes.Equal(got, want) {
		t.Errorf("Task tree mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestCleanKeepsProtectedEntries(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddFile("/project/dist/index.html", "old", 0644)
	mfs.AddFile("/project/dist/css/main.min.css", "old", 0644)
	mfs.AddFile("/project/dist/img/logo.png", "kept", 0644)
	mfs.AddFile("/project/dist/images/logo.png", "lost", 0644)
	a, logs := newApp(t, mfs, "/project")

	for range 2 {
		if err := a.Registry().Run(context.Background(), TaskClean); err != nil {
			t.Fatalf("clean failed: %v", err)
		}
	}
	if !mfs.Exists("/project/dist/img/logo.png") {
		t.Error("Expected dist/img to survive")
	}
	for _, gone := range []string{"/project/dist/index.html", "/project/dist/css/main.min.css", "/project/dist/images/logo.png"} {
		if mfs.Exists(gone) {
			t.Errorf("Expected %s to be removed", gone)
		}
	}
	if !strings.Contains(logs.String(), "not protected") {
		t.Errorf("Expected warning about unprotected images output, got:\n%s", logs.String())
	}
}

func TestGroupTasks(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "project", "/project")
	a, _ := newApp(t, mfs, "/project")
	r := a.Registry()

	for _, name := range []string{TaskPug, TaskHTML, TaskStyles, TaskScripts, TaskImages} {
		if err := r.Run(context.Background(), name); err != nil {
			t.Fatalf("%s failed: %v", name, err)
		}
	}
	for _, out := range []string{
		"/project/dist/index.html",
		"/project/dist/about.html",
		"/project/dist/css/main.min.css",
		"/project/dist/css/main.min.css.map",
		"/project/dist/js/main.min.js",
		"/project/dist/js/main.min.js.map",
		"/project/dist/images/icons/dot.svg",
	} {
		if !mfs.Exists(out) {
			t.Errorf("Expected %s to be written", out)
		}
	}
}

func TestSubscriptionsSkipMissingSources(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddFile("/project/src/styles/a.less", "a{}", 0644)
	a, logs := newApp(t, mfs, "/project")

	var groups []string
	for _, s := range a.Subscriptions() {
		groups = append(groups, s.Group+" "+filepath.ToSlash(s.Pattern))
	}
	want := []string{
		"pug /project/*.pug",
		"html /project/*.html",
		"styles /project/src/styles/**/*.less",
		"styles /project/package.json",
		"scripts /project/package.json",
	}
	if !slices.Equal(groups, want) {
		t.Errorf("Expected %v, got %v", want, groups)
	}
	if !strings.Contains(logs.String(), "group=scripts") || !strings.Contains(logs.String(), "group=images") {
		t.Errorf("Expected warnings for missing groups, got:\n%s", logs.String())
	}
}

func TestWatchRebuildsAndReloads(t *testing.T) {
	root := testutil.CopyFixture(t, "project")
	a, _ := newApp(t, fs.NewOSFileSystem(), root)

	servers := make(chan *devserver.Server, 1)
	a.newServer = func(opts devserver.Options) *devserver.Server {
		s := devserver.New(opts)
		servers <- s
		return s
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Registry().Run(ctx, TaskWatch) }()

	var srv *devserver.Server
	select {
	case srv = <-servers:
	case <-time.After(5 * time.Second):
		t.Fatal("server was not created")
	}
	var url string
	for deadline := time.Now().Add(5 * time.Second); url == "" && time.Now().Before(deadline); {
		url = srv.URL()
		time.Sleep(10 * time.Millisecond)
	}
	if url == "" {
		t.Fatal("server did not start")
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+devserver.LiveReloadPath, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var hello devserver.Message
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}

	// The watcher registers after the server starts; retry the edit until
	// a rebuild is observed.
	less := filepath.Join(root, "src", "styles", "a.less")
	got := make(chan devserver.Message, 1)
	go func() {
		var msg devserver.Message
		if err := conn.ReadJSON(&msg); err == nil {
			got <- msg
		}
	}()
	var msg devserver.Message
	for i := 0; ; i++ {
		if err := os.WriteFile(less, []byte(".x { color: #00ff00; }\n"), 0644); err != nil {
			t.Fatal(err)
		}
		select {
		case msg = <-got:
		case <-time.After(500 * time.Millisecond):
			if i < 10 {
				continue
			}
			t.Fatal("no reload after editing a.less")
		}
		break
	}
	if msg.Type != "reload" || msg.Group != config.Styles || !msg.CSS {
		t.Errorf("Unexpected reload message %+v", msg)
	}

	css, err := os.ReadFile(filepath.Join(root, "dist", "css", "main.min.css"))
	if err != nil {
		t.Fatalf("Expected rebuilt stylesheet: %v", err)
	}
	if !strings.Contains(string(css), ".x{") {
		t.Errorf("Expected rebuilt contents, got:\n%s", css)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop")
	}
}
