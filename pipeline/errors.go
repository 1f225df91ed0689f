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

package pipeline

import (
	"fmt"
	"strings"
)

// ConfigurationError reports a malformed pattern or a missing source
// directory. It aborts only the task that detected it.
type ConfigurationError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("configuration: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("configuration: %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransformError reports a failure of a conversion stage, such as a parse
// error in a source file.
type TransformError struct {
	Group  string
	Stage  string
	File   string
	Line   int
	Column int
	Err    error
}

func (e *TransformError) Error() string {
	var b strings.Builder
	if e.Group != "" {
		b.WriteString(e.Group)
	}
	if e.Stage != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString("[" + e.Stage + "]")
	}
	if e.File != "" {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
	}
	if b.Len() > 0 {
		b.WriteString(": ")
	}
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *TransformError) Unwrap() error { return e.Err }

// FilesystemError reports a read, write or delete failure.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }
