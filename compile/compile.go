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

// Package compile provides the conversion stages of the asset pipelines:
// style preprocessing, vendor prefixing and minification, script
// transpilation and minification, markup compilation and minification.
// The conversions themselves are delegated to esbuild, lessc, jade,
// tdewolff/minify and tree-sitter.
package compile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Targets selects the browsers (and script language level) output must
// support.
type Targets struct {
	Engines []api.Engine
	Target  api.Target
}

// DefaultQueries is used when neither the configuration nor package.json
// names any target.
var DefaultQueries = []string{"chrome 87", "edge 88", "firefox 78", "safari 13", "ios 13", "es2015"}

var engineNames = map[string]api.EngineName{
	"chrome":   api.EngineChrome,
	"and_chr":  api.EngineChrome,
	"edge":     api.EngineEdge,
	"firefox":  api.EngineFirefox,
	"ff":       api.EngineFirefox,
	"and_ff":   api.EngineFirefox,
	"safari":   api.EngineSafari,
	"ios":      api.EngineIOS,
	"ios_saf":  api.EngineIOS,
	"opera":    api.EngineOpera,
	"ie":       api.EngineIE,
	"explorer": api.EngineIE,
	"node":     api.EngineNode,
}

var languageTargets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es6":    api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// ParseTargets converts browserslist-style queries into targets. Only the
// explicit forms "<browser> <version>", "<browser> >= <version>", an
// ECMAScript level such as "es2017", and "defaults" are understood; every
// other query is returned in unsupported.
func ParseTargets(queries []string) (t Targets, unsupported []string) {
	t.Target = api.ES2015
	seen := make(map[api.EngineName]int)
	for _, raw := range queries {
		for _, q := range strings.Split(raw, ",") {
			q = strings.ToLower(strings.TrimSpace(q))
			if q == "" {
				continue
			}
			if q == "defaults" {
				d, _ := ParseTargets(DefaultQueries)
				for _, e := range d.Engines {
					addEngine(&t, seen, e)
				}
				continue
			}
			if target, ok := languageTargets[q]; ok {
				t.Target = target
				continue
			}
			fields := strings.Fields(q)
			if len(fields) == 3 && fields[1] == ">=" {
				fields = []string{fields[0], fields[2]}
			}
			if len(fields) != 2 {
				unsupported = append(unsupported, q)
				continue
			}
			name, ok := engineNames[fields[0]]
			if !ok || !isVersion(fields[1]) {
				unsupported = append(unsupported, q)
				continue
			}
			addEngine(&t, seen, api.Engine{Name: name, Version: fields[1]})
		}
	}
	return t, unsupported
}

// addEngine keeps the lowest version per engine.
func addEngine(t *Targets, seen map[api.EngineName]int, e api.Engine) {
	if i, ok := seen[e.Name]; ok {
		if versionLess(e.Version, t.Engines[i].Version) {
			t.Engines[i] = e
		}
		return
	}
	seen[e.Name] = len(t.Engines)
	t.Engines = append(t.Engines, e)
}

func isVersion(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if _, err := strconv.Atoi(part); err != nil {
			return false
		}
	}
	return s != ""
}

func versionLess(a, b string) bool {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var x, y int
		if i < len(pa) {
			x, _ = strconv.Atoi(pa[i])
		}
		if i < len(pb) {
			y, _ = strconv.Atoi(pb[i])
		}
		if x != y {
			return x < y
		}
	}
	return false
}

// String renders t in query form, for logs and cache keys.
func (t Targets) String() string {
	parts := make([]string, 0, len(t.Engines)+1)
	for _, e := range t.Engines {
		parts = append(parts, fmt.Sprintf("%s %s", engineLabel(e.Name), e.Version))
	}
	for name, target := range languageTargets {
		if target == t.Target && name != "es6" {
			parts = append(parts, name)
			break
		}
	}
	return strings.Join(parts, ", ")
}

func engineLabel(n api.EngineName) string {
	switch n {
	case api.EngineChrome:
		return "chrome"
	case api.EngineEdge:
		return "edge"
	case api.EngineFirefox:
		return "firefox"
	case api.EngineSafari:
		return "safari"
	case api.EngineIOS:
		return "ios"
	case api.EngineOpera:
		return "opera"
	case api.EngineIE:
		return "ie"
	case api.EngineNode:
		return "node"
	default:
		return fmt.Sprint(n)
	}
}
