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

package compile

import (
	"bytes"
	"fmt"
	"strings"

	"bennypowers.dev/assetpipe/pipeline"
)

// cssAtRules are the at-rules plain CSS defines. Any other @name in a
// style sheet is a LESS variable.
var cssAtRules = map[string]bool{
	"charset": true, "import": true, "namespace": true, "media": true,
	"supports": true, "document": true, "page": true, "font-face": true,
	"keyframes": true, "viewport": true, "counter-style": true,
	"font-feature-values": true, "font-palette-values": true,
	"property": true, "layer": true, "container": true, "scope": true,
	"starting-style": true, "position-try": true, "view-transition": true,
	"color-profile": true, "nest": true,
	// @font-feature-values blocks
	"swash": true, "annotation": true, "ornaments": true, "stylistic": true,
	"styleset": true, "character-variant": true, "historical-forms": true,
	// @page margin boxes
	"top-left-corner": true, "top-left": true, "top-center": true,
	"top-right": true, "top-right-corner": true, "bottom-left-corner": true,
	"bottom-left": true, "bottom-center": true, "bottom-right": true,
	"bottom-right-corner": true, "left-top": true, "left-middle": true,
	"left-bottom": true, "right-top": true, "right-middle": true,
	"right-bottom": true,
}

// CheckNativeLess rejects the LESS syntax the native compiler cannot
// translate and esbuild accepts without complaint: variables,
// interpolation and line comments. Mixins and guards surface as esbuild
// warnings instead. The error is a located *pipeline.TransformError.
func CheckNativeLess(src []byte) error {
	s := lessScanner{src: src, line: 1, col: 1}
	for s.pos < len(src) {
		c := src[s.pos]
		switch {
		case c == '/' && s.peek(1) == '*':
			s.skipPast("*/")
		case c == '/' && s.peek(1) == '/' && s.prev() != ':':
			return s.fail("line comments need lessc")
		case c == '"' || c == '\'':
			s.skipString(c)
		case (c == 'u' || c == 'U') && s.hasFold("url(") && !isIdentByte(s.prev()):
			s.skipPast(")")
		case c == '@' && !isIdentByte(s.prev()):
			if s.peek(1) == '{' {
				return s.fail("variable interpolation needs lessc")
			}
			name := s.ident(s.pos + 1)
			if name == "" || cssAtRules[strings.ToLower(unprefix(name))] {
				s.advance(1 + len(name))
				continue
			}
			return s.fail(fmt.Sprintf("LESS variable or directive @%s needs lessc", name))
		default:
			s.advance(1)
		}
	}
	return nil
}

// unprefix strips a vendor prefix such as -webkit- from an at-rule name.
func unprefix(name string) string {
	if !strings.HasPrefix(name, "-") {
		return name
	}
	if i := strings.IndexByte(name[1:], '-'); i >= 0 {
		return name[i+2:]
	}
	return name
}

func isIdentByte(c byte) bool {
	return c == '-' || c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

type lessScanner struct {
	src       []byte
	pos       int
	line, col int
}

func (s *lessScanner) peek(n int) byte {
	if s.pos+n < len(s.src) {
		return s.src[s.pos+n]
	}
	return 0
}

func (s *lessScanner) prev() byte {
	if s.pos > 0 {
		return s.src[s.pos-1]
	}
	return 0
}

func (s *lessScanner) hasFold(prefix string) bool {
	end := s.pos + len(prefix)
	return end <= len(s.src) && bytes.EqualFold(s.src[s.pos:end], []byte(prefix))
}

func (s *lessScanner) advance(n int) {
	for ; n > 0 && s.pos < len(s.src); n-- {
		if s.src[s.pos] == '\n' {
			s.line++
			s.col = 1
		} else {
			s.col++
		}
		s.pos++
	}
}

func (s *lessScanner) skipPast(end string) {
	i := bytes.Index(s.src[s.pos:], []byte(end))
	if i < 0 {
		s.advance(len(s.src) - s.pos)
		return
	}
	s.advance(i + len(end))
}

func (s *lessScanner) skipString(quote byte) {
	s.advance(1)
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case '\\':
			s.advance(2)
		case quote, '\n':
			s.advance(1)
			return
		default:
			s.advance(1)
		}
	}
}

func (s *lessScanner) ident(from int) string {
	end := from
	for end < len(s.src) && isIdentByte(s.src[end]) {
		end++
	}
	return string(s.src[from:end])
}

func (s *lessScanner) fail(msg string) error {
	return &pipeline.TransformError{
		Line:   s.line,
		Column: s.col,
		Err:    fmt.Errorf("%s; the native compiler only handles CSS with nesting", msg),
	}
}
