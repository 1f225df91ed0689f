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

// Package tasks composes named build steps into series and parallel groups.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is a named, independently runnable step.
type Task struct {
	Name string
	// Description is shown by the task listing.
	Description string
	Run         func(ctx context.Context) error
	// Children is set for composed tasks, in declaration order.
	Children []*Task
	// Mode is "series" or "parallel" for composed tasks, empty otherwise.
	Mode string
}

// New creates a leaf task.
func New(name, description string, run func(ctx context.Context) error) *Task {
	return &Task{Name: name, Description: description, Run: run}
}

// Series returns a task that runs steps strictly in order, starting each
// one only after the previous one returned. The first error stops it.
func Series(name string, steps ...*Task) *Task {
	t := &Task{Name: name, Children: steps, Mode: "series"}
	t.Run = func(ctx context.Context) error {
		for _, step := range steps {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := step.Run(ctx); err != nil {
				return fmt.Errorf("%s: %w", step.Name, err)
			}
		}
		return nil
	}
	return t
}

// Parallel returns a task that starts every step at once and returns when
// all of them have finished. If any step fails the first error is
// returned, but running siblings are awaited, not cancelled.
func Parallel(name string, steps ...*Task) *Task {
	t := &Task{Name: name, Children: steps, Mode: "parallel"}
	t.Run = func(ctx context.Context) error {
		var g errgroup.Group
		for _, step := range steps {
			g.Go(func() error {
				if err := step.Run(ctx); err != nil {
					return fmt.Errorf("%s: %w", step.Name, err)
				}
				return nil
			})
		}
		return g.Wait()
	}
	return t
}

// Logged wraps a task so its start, finish and duration are logged.
func Logged(log *slog.Logger, t *Task) *Task {
	if log == nil {
		return t
	}
	wrapped := *t
	wrapped.Run = func(ctx context.Context) error {
		log.Info("Starting", "task", t.Name)
		start := time.Now()
		err := t.Run(ctx)
		if err != nil {
			log.Error("Failed", "task", t.Name, "after", time.Since(start).Round(time.Millisecond), "error", err)
			return err
		}
		log.Info("Finished", "task", t.Name, "after", time.Since(start).Round(time.Millisecond))
		return nil
	}
	return &wrapped
}
