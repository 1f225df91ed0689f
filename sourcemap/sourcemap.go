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

// Package sourcemap reads and writes version 3 source maps, including the
// index (sectioned) form used when several mapped files are concatenated.
package sourcemap

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Map is a version 3 source map. When Sections is non-empty the map is an
// index map and the regular mapping fields are not emitted.
type Map struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
	Sections       []Section `json:"sections,omitempty"`
}

// Section is one entry of an index map.
type Section struct {
	Offset Offset `json:"offset"`
	Map    *Map   `json:"map"`
}

// Offset is a zero-based generated position.
type Offset struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type plainMap struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
}

type indexMap struct {
	Version  int       `json:"version"`
	File     string    `json:"file,omitempty"`
	Sections []Section `json:"sections"`
}

// New returns a map for a single untransformed source. It has no mappings
// yet; the first stage that rewrites the file replaces it.
func New(source string, content []byte) *Map {
	c := string(content)
	return &Map{
		Version:        3,
		Sources:        []string{source},
		SourcesContent: []*string{&c},
		Names:          []string{},
	}
}

// Parse decodes a JSON source map.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse source map: %w", err)
	}
	if m.Version != 3 {
		return nil, fmt.Errorf("parse source map: unsupported version %d", m.Version)
	}
	return &m, nil
}

// IsIndex reports whether m is a sectioned index map.
func (m *Map) IsIndex() bool {
	return len(m.Sections) > 0
}

// HasMappings reports whether m maps any generated position.
func (m *Map) HasMappings() bool {
	return m.Mappings != "" || m.IsIndex()
}

// AllSources returns the sources of m, descending into sections.
func (m *Map) AllSources() []string {
	if !m.IsIndex() {
		return m.Sources
	}
	var sources []string
	for _, s := range m.Sections {
		if s.Map != nil {
			sources = append(sources, s.Map.AllSources()...)
		}
	}
	return sources
}

// MarshalJSON implements json.Marshaler.
func (m *Map) MarshalJSON() ([]byte, error) {
	if m.IsIndex() {
		return json.Marshal(indexMap{Version: 3, File: m.File, Sections: m.Sections})
	}
	p := plainMap{
		Version:        3,
		File:           m.File,
		SourceRoot:     m.SourceRoot,
		Sources:        m.Sources,
		SourcesContent: m.SourcesContent,
		Names:          m.Names,
		Mappings:       m.Mappings,
	}
	if p.Sources == nil {
		p.Sources = []string{}
	}
	if p.Names == nil {
		p.Names = []string{}
	}
	return json.Marshal(p)
}

// Bytes encodes m as JSON.
func (m *Map) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// Part is one concatenated chunk of generated code and its map (may be nil).
type Part struct {
	Contents []byte
	Map      *Map
}

// Concat builds the index map for parts joined with sep, in order.
// Parts without a map leave their lines unmapped.
func Concat(file string, parts []Part, sep []byte) *Map {
	out := &Map{Version: 3, File: file}
	line, col := 0, 0
	for i, p := range parts {
		if p.Map != nil {
			section := p.Map
			if section.IsIndex() {
				// Nested index maps are not allowed; lift their sections.
				for _, s := range section.Sections {
					out.Sections = append(out.Sections, Section{
						Offset: shift(Offset{Line: line, Column: col}, s.Offset),
						Map:    s.Map,
					})
				}
			} else {
				out.Sections = append(out.Sections, Section{Offset: Offset{Line: line, Column: col}, Map: section})
			}
		}
		line, col = advance(line, col, p.Contents)
		if i < len(parts)-1 {
			line, col = advance(line, col, sep)
		}
	}
	return out
}

func shift(base, o Offset) Offset {
	if o.Line == 0 {
		return Offset{Line: base.Line, Column: base.Column + o.Column}
	}
	return Offset{Line: base.Line + o.Line, Column: o.Column}
}

// advance moves a generated position past b. Columns count UTF-16 units
// in source map v3; ASCII output from minifiers makes bytes equivalent.
func advance(line, col int, b []byte) (int, int) {
	n := bytes.Count(b, []byte{'\n'})
	if n == 0 {
		return line, col + len(b)
	}
	return line + n, len(b) - bytes.LastIndexByte(b, '\n') - 1
}

// Comment returns the sourceMappingURL comment for url in CSS or JS syntax.
func Comment(url string, css bool) string {
	if css {
		return "/*# sourceMappingURL=" + url + " */"
	}
	return "//# sourceMappingURL=" + url
}

// Inline returns a sourceMappingURL comment embedding m as a data URL.
func Inline(m *Map, css bool) (string, error) {
	data, err := m.Bytes()
	if err != nil {
		return "", err
	}
	url := "data:application/json;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(data)
	return Comment(url, css), nil
}

// ExtractInline removes a trailing inline sourceMappingURL comment, in CSS
// or JS syntax, from code and returns the code and the decoded map. Code
// without an inline map is returned unchanged with a nil map.
func ExtractInline(code []byte) ([]byte, *Map, error) {
	const marker = "sourceMappingURL=data:"
	i := bytes.LastIndex(code, []byte(marker))
	if i < 0 {
		return code, nil, nil
	}
	start := bytes.LastIndex(code[:i], []byte("/*#"))
	if js := bytes.LastIndex(code[:i], []byte("//#")); js > start {
		start = js
	}
	if start < 0 {
		return code, nil, nil
	}
	url := code[i+len(marker):]
	if end := bytes.Index(url, []byte("*/")); end >= 0 {
		url = url[:end]
	}
	url = bytes.TrimSpace(url)
	comma := bytes.IndexByte(url, ',')
	if comma < 0 || !bytes.HasSuffix(url[:comma], []byte(";base64")) {
		return nil, nil, fmt.Errorf("inline source map: unsupported data URL")
	}
	data, err := base64.StdEncoding.DecodeString(string(url[comma+1:]))
	if err != nil {
		return nil, nil, fmt.Errorf("inline source map: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, nil, err
	}
	return bytes.TrimRight(code[:start], " \t\r\n"), m, nil
}

// Mapping is an original position, zero-based.
type Mapping struct {
	Source string
	Line   int
	Column int
}

const vlqChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// Lookup returns the original position of the generated position
// (line, column), both zero-based: the closest mapped segment at or
// before column on that line. Index maps are searched by section.
func (m *Map) Lookup(line, column int) (Mapping, bool) {
	if m.IsIndex() {
		for i := len(m.Sections) - 1; i >= 0; i-- {
			s := m.Sections[i]
			o := s.Offset
			if s.Map == nil || line < o.Line || line == o.Line && column < o.Column {
				continue
			}
			col := column
			if line == o.Line {
				col -= o.Column
			}
			return s.Map.Lookup(line-o.Line, col)
		}
		return Mapping{}, false
	}

	var src, origLine, origCol int
	lines := strings.Split(m.Mappings, ";")
	var best Mapping
	found := false
	for l, segments := range lines {
		if l > line {
			break
		}
		genCol := 0
		for _, seg := range strings.Split(segments, ",") {
			if seg == "" {
				continue
			}
			fields, err := decodeVLQ(seg)
			if err != nil {
				return Mapping{}, false
			}
			genCol += fields[0]
			if len(fields) < 4 {
				continue
			}
			src += fields[1]
			origLine += fields[2]
			origCol += fields[3]
			if l == line && genCol <= column && src >= 0 && src < len(m.Sources) {
				best = Mapping{Source: m.Sources[src], Line: origLine, Column: origCol}
				found = true
			}
		}
	}
	return best, found
}

func decodeVLQ(seg string) ([]int, error) {
	var fields []int
	value, shift := 0, 0
	for i := 0; i < len(seg); i++ {
		digit := strings.IndexByte(vlqChars, seg[i])
		if digit < 0 {
			return nil, fmt.Errorf("invalid mapping character %q", seg[i])
		}
		value += (digit & 31) << shift
		if digit&32 != 0 {
			shift += 5
			continue
		}
		n := value >> 1
		if value&1 != 0 {
			n = -n
		}
		fields = append(fields, n)
		value, shift = 0, 0
	}
	if shift != 0 || len(fields) == 0 {
		return nil, fmt.Errorf("truncated mapping segment %q", seg)
	}
	return fields, nil
}
