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

package packagejson_test

import (
	"encoding/json"
	"slices"
	"testing"

	"bennypowers.dev/assetpipe/packagejson"
	"bennypowers.dev/assetpipe/testutil"
)

func TestParseFile(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		env  string
		want []string
	}{
		{"string query", "string-query", "", []string{"safari 11", "firefox 78"}},
		{"array query", "array-query", "", []string{"chrome 87", "edge 88"}},
		{"production environment", "env-queries", "production", []string{"safari 13", "ios 13"}},
		{"default environment is production", "env-queries", "", []string{"safari 13", "ios 13"}},
		{"development environment", "env-queries", "development", []string{"chrome 120"}},
		{"no browserslist", "no-browserslist", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mfs := testutil.NewFixtureFS(t, "packagejson/"+tt.dir, "/test")

			pkg, err := packagejson.ParseFile(mfs, "/test/package.json")
			if err != nil {
				t.Fatalf("ParseFile failed: %v", err)
			}
			if pkg.Name != tt.dir {
				t.Errorf("Expected name %q, got %q", tt.dir, pkg.Name)
			}
			if got := pkg.Browserslist.For(tt.env); !slices.Equal(got, tt.want) {
				t.Errorf("Expected queries %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseInvalidBrowserslist(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"number", `{"browserslist": 3}`},
		{"nested environments", `{"browserslist": {"production": {"inner": "chrome 90"}}}`},
		{"malformed json", `{"browserslist": [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := packagejson.Parse([]byte(tt.data)); err == nil {
				t.Error("Expected parse error")
			}
		})
	}
}

func TestBrowserslistMarshal(t *testing.T) {
	pkg := packagejson.PackageJSON{Name: "x"}
	data, err := json.Marshal(pkg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"name":"x","version":""}` {
		t.Errorf("Expected empty browserslist to be omitted, got %s", data)
	}
	if !pkg.Browserslist.IsZero() {
		t.Error("Expected zero browserslist")
	}
}

func TestParseFileMissing(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "packagejson/no-browserslist", "/test")
	if _, err := packagejson.ParseFile(mfs, "/elsewhere/package.json"); err == nil {
		t.Error("Expected error for missing file")
	}
}
