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

package assets_test

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"bennypowers.dev/assetpipe/assets"
	"bennypowers.dev/assetpipe/compile"
	"bennypowers.dev/assetpipe/config"
	"bennypowers.dev/assetpipe/internal/mapfs"
	"bennypowers.dev/assetpipe/pipeline"
	"bennypowers.dev/assetpipe/testutil"
)

func noTools(string) (string, error) { return "", errors.New("not found") }

func newEnv(t *testing.T, mfs *mapfs.MapFileSystem) (*assets.Env, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Root = "/project"
	cfg.Images.Jobs = 2
	cfg.Styles.Compiler = compile.LessNative
	var out bytes.Buffer
	return &assets.Env{
		FS:       mfs,
		Config:   cfg,
		Out:      &out,
		LookPath: noTools,
	}, &out
}

func read(t *testing.T, mfs *mapfs.MapFileSystem, path string) string {
	t.Helper()
	data, err := mfs.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected %s to exist: %v", path, err)
	}
	return string(data)
}

func TestStageOrder(t *testing.T) {
	env, _ := newEnv(t, mapfs.New())

	tests := []struct {
		group string
		want  []string
	}{
		{config.Pug, []string{"pug", "size", "dest"}},
		{config.HTML, []string{"htmlmin", "size", "dest"}},
		{config.Styles, []string{"sourcemaps-init", "less", "autoprefixer", "clean-css", "rename", "sourcemaps-write", "size", "dest"}},
		{config.Scripts, []string{"sourcemaps-init", "syntax", "babel", "uglify", "concat", "sourcemaps-write", "size", "dest"}},
		{config.Images, []string{"newer", "imagemin", "size", "dest"}},
	}
	for _, tt := range tests {
		t.Run(tt.group, func(t *testing.T) {
			p, err := assets.New(env, tt.group)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if got := p.StageNames(); !slices.Equal(got, tt.want) {
				t.Errorf("Expected stages %v, got %v", tt.want, got)
			}
		})
	}

	if _, err := assets.New(env, "fonts"); err == nil {
		t.Error("Expected error for unknown group")
	}
}

func TestStylesAutoNeedsLessc(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddFile("/project/src/styles/a.less", "@c: red;\na { color: @c; }\n", 0644)
	env, _ := newEnv(t, mfs)
	env.Config.Styles.Compiler = compile.LessAuto

	_, err := assets.Run(context.Background(), env, config.Styles)
	var cfgErr *pipeline.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigurationError, got %T: %v", err, err)
	}
	if cfgErr.Field != "styles.compiler" || !errors.Is(err, compile.ErrNoLessc) {
		t.Errorf("Expected missing lessc on styles.compiler, got %v", err)
	}
	if mfs.Exists("/project/dist/css/main.min.css") {
		t.Error("Expected no output when the compiler is unavailable")
	}
}

func TestStylesSingleFile(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddFile("/project/src/styles/a.less", "a { user-select: none; }\n", 0644)
	env, _ := newEnv(t, mfs)
	env.Config.Targets = []string{"safari 11"}

	if _, err := assets.Run(context.Background(), env, config.Styles); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	css := read(t, mfs, "/project/dist/css/main.min.css")
	if !strings.Contains(css, "-webkit-user-select") {
		t.Errorf("Expected prefixed output, got:\n%s", css)
	}
	if !strings.Contains(css, "a{") {
		t.Errorf("Expected minified output, got:\n%s", css)
	}
	if !strings.HasSuffix(css, "/*# sourceMappingURL=main.min.css.map */\n") {
		t.Errorf("Expected source map link, got:\n%s", css)
	}

	m := read(t, mfs, "/project/dist/css/main.min.css.map")
	if !strings.Contains(m, "a.less") {
		t.Errorf("Expected map to reference a.less, got:\n%s", m)
	}
	if !strings.Contains(m, `"file":"main.min.css"`) {
		t.Errorf("Expected map file field, got:\n%s", m)
	}
}

func TestStylesAlwaysNamedMainMin(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddFile("/project/src/styles/a.less", "a { color: red; }\n", 0644)
	mfs.AddFile("/project/src/styles/b.less", "b { color: blue; }\n", 0644)
	env, _ := newEnv(t, mfs)

	files, err := assets.Run(context.Background(), env, config.Styles)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, f := range files {
		if f.Path != "main.min.css" && f.Path != "main.min.css.map" {
			t.Errorf("Unexpected output %s", f.Path)
		}
	}

	want := []string{"/project/dist/css/main.min.css", "/project/dist/css/main.min.css.map"}
	if written := mfs.Files("/project/dist/css"); !slices.Equal(written, want) {
		t.Errorf("Expected only %v written, got %v", want, written)
	}
	// Glob order: the last input wins.
	if css := read(t, mfs, "/project/dist/css/main.min.css"); !strings.Contains(css, "b{") {
		t.Errorf("Expected b.less to win, got:\n%s", css)
	}
}

func TestStylesTargetsFromPackageJSON(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "project", "/project")
	env, _ := newEnv(t, mfs)

	if _, err := assets.Run(context.Background(), env, config.Styles); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	css := read(t, mfs, "/project/dist/css/main.min.css")
	if !strings.Contains(css, "-webkit-user-select") {
		t.Errorf("Expected package.json browserslist to drive prefixing, got:\n%s", css)
	}
	if !strings.Contains(css, ".button:hover") {
		t.Errorf("Expected nested rule to be flattened, got:\n%s", css)
	}
}

func transpileAndMinify(t *testing.T, env *assets.Env, name, src string) string {
	t.Helper()
	targets := env.Targets()
	files := []*pipeline.File{pipeline.NewFile("/project/src/scripts", name, []byte(src))}
	p := pipeline.New("expected", pipeline.SourcemapsInit(), compile.Babel(targets, nil), compile.Uglify(targets, nil))
	out, err := p.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("expected pipeline failed: %v", err)
	}
	return string(out[0].Contents)
}

func TestScriptsConcatenationOrder(t *testing.T) {
	mfs := mapfs.New()
	a := "export const a = (x) => x ?? 1;\n"
	b := "const b = [1, 2].map((n) => n * 2);\nconsole.log(b);\n"
	mfs.AddFile("/project/src/scripts/a.js", a, 0644)
	mfs.AddFile("/project/src/scripts/b.js", b, 0644)
	env, _ := newEnv(t, mfs)

	if _, err := assets.Run(context.Background(), env, config.Scripts); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := transpileAndMinify(t, env, "a.js", a) + "\n" + transpileAndMinify(t, env, "b.js", b)
	want = strings.TrimRight(want, "\n") + "\n"

	got := read(t, mfs, "/project/dist/js/main.min.js")
	link := "//# sourceMappingURL=main.min.js.map\n"
	if !strings.HasSuffix(got, link) {
		t.Fatalf("Expected source map link, got:\n%s", got)
	}
	if got = strings.TrimSuffix(got, link); got != want {
		t.Errorf("Expected:\n%s\ngot:\n%s", want, got)
	}

	m := read(t, mfs, "/project/dist/js/main.min.js.map")
	for _, want := range []string{`"sections"`, "a.js", "b.js"} {
		if !strings.Contains(m, want) {
			t.Errorf("Expected index map to contain %s, got:\n%s", want, m)
		}
	}
}

func TestScriptsSyntaxError(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddFile("/project/src/scripts/ok.js", "const ok = 1;\n", 0644)
	mfs.AddFile("/project/src/scripts/zbad.js", "const ok = 1;\nif (ok {\n", 0644)
	env, _ := newEnv(t, mfs)

	_, err := assets.Run(context.Background(), env, config.Scripts)
	var tErr *pipeline.TransformError
	if !errors.As(err, &tErr) {
		t.Fatalf("Expected TransformError, got %v", err)
	}
	if tErr.Group != config.Scripts || tErr.Stage != "syntax" || tErr.File != "zbad.js" {
		t.Errorf("Expected scripts [syntax] zbad.js, got %q [%q] %q", tErr.Group, tErr.Stage, tErr.File)
	}
	if mfs.Exists("/project/dist/js/main.min.js") {
		t.Error("Expected no output after a failed run")
	}
}

func TestMarkupGroups(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "project", "/project")
	env, out := newEnv(t, mfs)

	if _, err := assets.Run(context.Background(), env, config.Pug); err != nil {
		t.Fatalf("pug failed: %v", err)
	}
	if html := read(t, mfs, "/project/dist/index.html"); !strings.Contains(html, "<h1>Hello</h1>") {
		t.Errorf("Expected rendered pug, got:\n%s", html)
	}

	if _, err := assets.Run(context.Background(), env, config.HTML); err != nil {
		t.Fatalf("html failed: %v", err)
	}
	html := read(t, mfs, "/project/dist/about.html")
	if !strings.Contains(html, "<!-- team -->") || strings.Contains(html, "We build    things.") {
		t.Errorf("Expected whitespace collapsed with comments kept, got:\n%s", html)
	}

	report := out.String()
	for _, want := range []string{"pug", "index.html", "about.html"} {
		if !strings.Contains(report, want) {
			t.Errorf("Expected size report to mention %s, got:\n%s", want, report)
		}
	}
}

func TestImagesIncremental(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "project", "/project")
	env, _ := newEnv(t, mfs)

	files, err := assets.Run(context.Background(), env, config.Images)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if len(files) != 1 || files[0].Path != "icons/dot.svg" {
		t.Fatalf("Expected icons/dot.svg to be processed, got %d files", len(files))
	}
	if svg := read(t, mfs, "/project/dist/images/icons/dot.svg"); strings.Contains(svg, "<!-- dot -->") {
		t.Errorf("Expected optimised SVG, got:\n%s", svg)
	}

	files, err = assets.Run(context.Background(), env, config.Images)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("Expected up-to-date image to be skipped, got %d files", len(files))
	}

	later := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	mfs.AddFileWithModTime("/project/src/img/icons/dot.svg", `<svg xmlns="http://www.w3.org/2000/svg"/>`, later)
	files, err = assets.Run(context.Background(), env, config.Images)
	if err != nil {
		t.Fatalf("third run failed: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("Expected touched image to be reprocessed, got %d files", len(files))
	}
}

func TestMissingSourceDirectory(t *testing.T) {
	env, _ := newEnv(t, mapfs.New())
	_, err := assets.Run(context.Background(), env, config.Scripts)
	var cfgErr *pipeline.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigurationError, got %v", err)
	}
}

func TestTargetsPrecedence(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddFile("/project/package.json", `{"browserslist": "firefox 60"}`, 0644)
	env, _ := newEnv(t, mfs)

	if got := env.Targets().String(); !strings.Contains(got, "firefox 60") {
		t.Errorf("Expected package.json targets, got %s", got)
	}

	env.Config.Targets = []string{"safari 12"}
	if got := env.Targets().String(); !strings.Contains(got, "safari 12") || strings.Contains(got, "firefox") {
		t.Errorf("Expected configured targets to win, got %s", got)
	}
}
