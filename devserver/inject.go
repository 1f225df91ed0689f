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

package devserver

import (
	"bytes"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxInjectSize bounds the buffered HTML; larger pages pass through
// untouched.
const maxInjectSize = 512 * 1024

// InjectScript inserts tag before the last </body> of doc, or appends it
// when the document has no body end tag.
func InjectScript(doc []byte, tag string) []byte {
	at := lastBodyEnd(doc)
	if at < 0 {
		return append(append([]byte(nil), doc...), tag...)
	}
	out := make([]byte, 0, len(doc)+len(tag))
	out = append(out, doc[:at]...)
	out = append(out, tag...)
	return append(out, doc[at:]...)
}

// lastBodyEnd returns the byte offset of the last </body> tag. Text inside
// comments, scripts and attribute values does not count.
func lastBodyEnd(doc []byte) int {
	z := html.NewTokenizer(bytes.NewReader(doc))
	offset, found := 0, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return found
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); atom.Lookup(name) == atom.Body {
				found = offset
			}
		}
		offset += raw
	}
}

// injector buffers HTML responses so the live-reload tag can be added.
type injector struct {
	http.ResponseWriter
	tag           string
	status        int
	buf           []byte
	buffering     bool
	passthrough   bool
	headerWritten bool
}

func (l *injector) WriteHeader(code int) {
	l.status = code
	if l.passthrough {
		l.ResponseWriter.WriteHeader(code)
		l.headerWritten = true
	}
}

func (l *injector) Write(data []byte) (int, error) {
	if !l.buffering && !l.passthrough {
		ct := l.Header().Get("Content-Type")
		if ct != "" && !strings.Contains(ct, "text/html") {
			l.startPassthrough()
			return l.ResponseWriter.Write(data)
		}
		l.buffering = true
	}
	if l.passthrough {
		return l.ResponseWriter.Write(data)
	}
	if len(l.buf)+len(data) > maxInjectSize {
		l.startPassthrough()
		if len(l.buf) > 0 {
			if _, err := l.ResponseWriter.Write(l.buf); err != nil {
				return 0, err
			}
			l.buf = nil
		}
		return l.ResponseWriter.Write(data)
	}
	l.buf = append(l.buf, data...)
	return len(data), nil
}

func (l *injector) startPassthrough() {
	l.passthrough = true
	if !l.headerWritten {
		l.ResponseWriter.WriteHeader(l.status)
		l.headerWritten = true
	}
}

func (l *injector) finalize() {
	if l.passthrough || len(l.buf) == 0 {
		if !l.headerWritten {
			l.ResponseWriter.WriteHeader(l.status)
		}
		return
	}
	out := InjectScript(l.buf, l.tag)
	l.Header().Del("Content-Length")
	l.ResponseWriter.WriteHeader(l.status)
	_, _ = l.ResponseWriter.Write(out)
}

// injectLiveReload adds the live-reload client to HTML responses from next.
func injectLiveReload(next http.Handler, tag string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.Header.Get("Range") != "" {
			next.ServeHTTP(w, r)
			return
		}
		l := &injector{ResponseWriter: w, tag: tag, status: http.StatusOK}
		next.ServeHTTP(l, r)
		l.finalize()
	})
}
