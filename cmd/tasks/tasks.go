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

// Package tasks provides the command that lists the task graph.
package tasks

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bennypowers.dev/assetpipe/cmd/run"
	"bennypowers.dev/assetpipe/internal/app"
	taskgraph "bennypowers.dev/assetpipe/tasks"
)

// Cmd lists every registered task.
var Cmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks",
	Long:  `List every task with its description, then print the default task graph.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := run.NewApp(cmd)
		if err != nil {
			return err
		}
		reg := a.Registry()
		out := cmd.OutOrStdout()

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, name := range reg.Names() {
			t, _ := reg.Get(name)
			fmt.Fprintf(tw, "%s\t%s\n", name, t.Description)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		def, ok := reg.Get(app.TaskDefault)
		if !ok {
			return fmt.Errorf("task %q is not defined", app.TaskDefault)
		}
		fmt.Fprintf(out, "\n%s", taskgraph.Tree(def))
		return nil
	},
}
