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

// Package run provides the commands that execute pipeline tasks.
package run

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/assetpipe/config"
	"bennypowers.dev/assetpipe/fs"
	"bennypowers.dev/assetpipe/internal/app"
	"bennypowers.dev/assetpipe/internal/logging"
)

// Cmd runs one or more named tasks in order.
var Cmd = &cobra.Command{
	Use:   "run <task>...",
	Short: "Run tasks by name",
	Long: `Run one or more tasks in the order given.

Use "assetpipe tasks" to list the available tasks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return Tasks(cmd, args...)
	},
}

// shortcuts get a subcommand of their own.
var shortcuts = []struct{ name, short string }{
	{app.TaskClean, "Delete build output except protected entries"},
	{app.TaskPug, "Compile pug templates"},
	{app.TaskHTML, "Minify HTML pages"},
	{app.TaskStyles, "Build main.min.css"},
	{app.TaskScripts, "Build main.min.js"},
	{app.TaskImages, "Optimise changed images"},
	{app.TaskWatch, "Serve with live reload and rebuild on change"},
	{app.TaskBuild, "Clean, build every group, then watch"},
}

// Commands returns one subcommand per task.
func Commands() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(shortcuts))
	for _, s := range shortcuts {
		cmds = append(cmds, &cobra.Command{
			Use:   s.name,
			Short: s.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return Tasks(cmd, s.name)
			},
		})
	}
	return cmds
}

// NewApp loads the configuration bound to the global viper instance and
// builds an App logging to the command's stderr.
func NewApp(cmd *cobra.Command) (*app.App, error) {
	v := viper.GetViper()
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	log := logging.New(cmd.ErrOrStderr(), v.GetBool("verbose"))
	return app.New(cfg, fs.NewOSFileSystem(), log, cmd.OutOrStdout())
}

// Tasks runs the named tasks one after another, stopping at the first
// failure.
func Tasks(cmd *cobra.Command, names ...string) error {
	a, err := NewApp(cmd)
	if err != nil {
		return err
	}
	// Past this point failures are task errors, not usage errors.
	cmd.SilenceUsage = true
	reg := a.Registry()
	for _, name := range names {
		if err := reg.Run(cmd.Context(), name); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
