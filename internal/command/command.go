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

// Package command runs external filter programs over standard input.
package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// LookPathFunc finds an executable by name.
type LookPathFunc func(file string) (string, error)

// LookPath is exec.LookPath unless f is set.
func (f LookPathFunc) LookPath(file string) (string, error) {
	if f == nil {
		return exec.LookPath(file)
	}
	return f(file)
}

// Filter pipes input through bin and returns its standard output. On
// failure the program's standard error becomes the error message.
func Filter(ctx context.Context, bin string, args []string, input []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", filepath.Base(bin), err)
		}
		return nil, fmt.Errorf("%s: %s", filepath.Base(bin), msg)
	}
	return stdout.Bytes(), nil
}
