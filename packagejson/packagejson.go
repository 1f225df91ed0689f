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

// Package packagejson reads the parts of a project's package.json that
// affect the build, chiefly its browserslist targets.
package packagejson

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"bennypowers.dev/assetpipe/fs"
)

// DefaultEnv is the browserslist environment used when none is given.
const DefaultEnv = "production"

// PackageJSON holds the fields of package.json the build reads.
type PackageJSON struct {
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Browserslist Browserslist `json:"browserslist,omitzero"`
}

// Browserslist is the browserslist field. It may be a single query string,
// a list of queries, or an object mapping environment names to either.
type Browserslist struct {
	Queries []string
	Envs    map[string][]string
}

// UnmarshalJSON accepts every shape browserslist allows in package.json.
func (b *Browserslist) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		b.Queries = splitQueries(single)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		b.Queries = list
		return nil
	}
	var envs map[string]json.RawMessage
	if err := json.Unmarshal(data, &envs); err != nil {
		return fmt.Errorf("browserslist: expected string, array or object")
	}
	b.Envs = make(map[string][]string, len(envs))
	for env, raw := range envs {
		var inner Browserslist
		if err := inner.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("browserslist.%s: %w", env, err)
		}
		if inner.Envs != nil {
			return fmt.Errorf("browserslist.%s: environments cannot nest", env)
		}
		b.Envs[env] = inner.Queries
	}
	return nil
}

// MarshalJSON writes the list form, or the object form when environments
// are set.
func (b Browserslist) MarshalJSON() ([]byte, error) {
	if b.Envs != nil {
		return json.Marshal(b.Envs)
	}
	return json.Marshal(b.Queries)
}

// IsZero reports whether no queries were configured.
func (b Browserslist) IsZero() bool {
	return len(b.Queries) == 0 && len(b.Envs) == 0
}

// For returns the queries for env, falling back to the "defaults"
// environment and then to the top-level list.
func (b Browserslist) For(env string) []string {
	if env == "" {
		env = DefaultEnv
	}
	if q, ok := b.Envs[env]; ok {
		return slices.Clone(q)
	}
	if q, ok := b.Envs["defaults"]; ok {
		return slices.Clone(q)
	}
	return slices.Clone(b.Queries)
}

func splitQueries(s string) []string {
	var out []string
	for _, q := range strings.Split(s, ",") {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// Parse decodes package.json contents.
func Parse(data []byte) (*PackageJSON, error) {
	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// ParseFile reads and decodes the package.json at path.
func ParseFile(fsys fs.FileSystem, path string) (*PackageJSON, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pkg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pkg, nil
}
