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

// Package output provides shared output utilities for assetpipe.
package output

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

var (
	titleColor = color.New(color.FgCyan)
	nameColor  = color.New(color.FgBlue)
	sizeColor  = color.New(color.FgMagenta)
)

// SizeEntry is one file reported by a size summary.
type SizeEntry struct {
	Name  string
	Bytes int
}

// Sizes writes a size summary in the style of gulp-size: one line per file
// when showFiles is set, then a total line. Nothing is written for an empty
// entry list.
func Sizes(w io.Writer, title string, entries []SizeEntry, showFiles bool) {
	if w == nil || len(entries) == 0 {
		return
	}
	total := 0
	for _, e := range entries {
		total += e.Bytes
		if showFiles {
			fmt.Fprintf(w, "%s %s %s\n", titleColor.Sprint(title), nameColor.Sprint(e.Name), sizeColor.Sprint(FormatBytes(e.Bytes)))
		}
	}
	label := "all files"
	if len(entries) == 1 && !showFiles {
		label = entries[0].Name
	}
	fmt.Fprintf(w, "%s %s %s\n", titleColor.Sprint(title), color.GreenString(label), sizeColor.Sprint(FormatBytes(total)))
}

// FormatBytes renders n in SI units, e.g. "1.2 kB".
func FormatBytes(n int) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// Savings describes a before/after size change, e.g. "saved 1.2 kB - 34.5%".
func Savings(before, after int) string {
	saved := before - after
	if saved <= 0 || before == 0 {
		return "saved 0 B - 0%"
	}
	return fmt.Sprintf("saved %s - %.1f%%", FormatBytes(saved), float64(saved)*100/float64(before))
}
