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

// Package testutil finds testdata fixtures for package tests, loading
// them into memory or copying them to disk.
package testutil

import (
	"flag"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"bennypowers.dev/assetpipe/internal/mapfs"
)

var update = flag.Bool("update", false, "rewrite golden files")

// testdata resolves name under the nearest testdata directory: the
// package's own, or the module root's for nested packages.
func testdata(name string) (string, bool) {
	for _, dir := range []string{"testdata", "../testdata", "../../testdata"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return filepath.Join("testdata", name), false
}

// NewFixtureFS loads the fixture directory dir into an in-memory
// filesystem, rooted at root.
func NewFixtureFS(t *testing.T, dir, root string) *mapfs.MapFileSystem {
	t.Helper()
	src, ok := testdata(dir)
	if !ok {
		t.Fatalf("fixture %s not found", dir)
	}
	mfs := mapfs.New()
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(src, p)
		mfs.AddFile(filepath.Join(root, rel), string(data), 0644)
		return nil
	})
	if err != nil {
		t.Fatalf("load fixture %s: %v", dir, err)
	}
	return mfs
}

// LoadFixtureFile returns the contents of one testdata file.
func LoadFixtureFile(t *testing.T, name string) []byte {
	t.Helper()
	p, _ := testdata(name)
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

// Golden returns the expected output stored at name. With -update it
// writes got there first, so the comparison always passes.
func Golden(t *testing.T, name string, got []byte) []byte {
	t.Helper()
	p, _ := testdata(name)
	if *update {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, got, 0644); err != nil {
			t.Fatal(err)
		}
		t.Logf("updated %s", p)
	}
	return LoadFixtureFile(t, name)
}

// CopyFixture copies the fixture directory dir to a fresh temporary
// directory and returns its path.
func CopyFixture(t *testing.T, dir string) string {
	t.Helper()
	src, ok := testdata(dir)
	if !ok {
		t.Fatalf("fixture %s not found", dir)
	}
	dst := t.TempDir()
	if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
		t.Fatalf("copy fixture %s: %v", dir, err)
	}
	return dst
}
