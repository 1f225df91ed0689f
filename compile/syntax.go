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
	"context"
	"errors"
	"fmt"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"
	tsTypescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"bennypowers.dev/assetpipe/pipeline"
)

// The TypeScript grammar is a superset of the script dialect we accept, so
// it doubles as the syntax checker for plain scripts.
var scriptLanguage = ts.NewLanguage(tsTypescript.LanguageTypescript())

var scriptParserPool = sync.Pool{
	New: func() any {
		parser := ts.NewParser()
		if err := parser.SetLanguage(scriptLanguage); err != nil {
			panic("failed to set TypeScript language: " + err.Error())
		}
		return parser
	},
}

func getScriptParser() *ts.Parser {
	return scriptParserPool.Get().(*ts.Parser)
}

func putScriptParser(p *ts.Parser) {
	p.Reset()
	scriptParserPool.Put(p)
}

// SyntaxError is the first unparsable position in a script, 1-based.
type SyntaxError struct {
	Line    int
	Column  int
	Missing string
}

func (e *SyntaxError) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("syntax error: missing %q", e.Missing)
	}
	return "syntax error: unexpected input"
}

// CheckSyntax parses src and returns a *SyntaxError for the first error or
// missing node, or nil when the script parses cleanly.
func CheckSyntax(src []byte) error {
	parser := getScriptParser()
	defer putScriptParser(parser)

	tree := parser.Parse(src, nil)
	if tree == nil {
		return errors.New("syntax check: parser returned no tree")
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}
	node := firstError(root)
	if node == nil {
		node = root
	}
	pos := node.StartPosition()
	serr := &SyntaxError{Line: int(pos.Row) + 1, Column: int(pos.Column) + 1}
	if node.IsMissing() {
		serr.Missing = node.Kind()
	}
	return serr
}

// firstError returns the first error or missing node in document order.
func firstError(n *ts.Node) *ts.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		if found := firstError(child); found != nil {
			return found
		}
	}
	return nil
}

// Syntax rejects scripts that do not parse, with the location of the first
// error.
func Syntax() pipeline.Stage {
	return pipeline.Each("syntax", func(_ context.Context, f *pipeline.File) error {
		err := CheckSyntax(f.Contents)
		var serr *SyntaxError
		if errors.As(err, &serr) {
			return &pipeline.TransformError{File: f.Source(), Line: serr.Line, Column: serr.Column, Err: serr}
		}
		return err
	})
}
