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
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/Joker/jade"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"

	"bennypowers.dev/assetpipe/pipeline"
)

// Pug compiles pug templates to HTML. Templates are rendered without data.
func Pug() pipeline.Stage {
	return pipeline.Each("pug", func(_ context.Context, f *pipeline.File) error {
		out, err := RenderPug(f.Source(), f.Contents)
		if err != nil {
			return err
		}
		f.Contents = out
		f.SetPath(strings.TrimSuffix(f.Path, f.Ext()) + ".html")
		return nil
	})
}

// RenderPug renders a single pug document.
func RenderPug(name string, src []byte) ([]byte, error) {
	text, err := jade.Parse(name, src)
	if err != nil {
		return nil, fmt.Errorf("pug: %w", err)
	}
	tpl, err := template.New(name).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("pug: %w", err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, nil); err != nil {
		return nil, fmt.Errorf("pug: %w", err)
	}
	return buf.Bytes(), nil
}

// newHTMLMinifier only collapses whitespace. Comments, optional tags,
// attribute quotes and default attribute values survive.
func newHTMLMinifier() *minify.M {
	m := minify.New()
	m.Add("text/html", &html.Minifier{
		KeepComments:            true,
		KeepConditionalComments: true,
		KeepSpecialComments:     true,
		KeepDefaultAttrVals:     true,
		KeepDocumentTags:        true,
		KeepEndTags:             true,
		KeepQuotes:              true,
	})
	return m
}

// HTMLMin collapses insignificant whitespace in HTML documents.
func HTMLMin() pipeline.Stage {
	m := newHTMLMinifier()
	return pipeline.Each("htmlmin", func(_ context.Context, f *pipeline.File) error {
		out, err := m.Bytes("text/html", f.Contents)
		if err != nil {
			return err
		}
		f.Contents = out
		return nil
	})
}
