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

package tasks

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Registry holds the tasks invocable by name.
type Registry struct {
	tasks map[string]*Task
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Register adds t. A later registration with the same name replaces it.
func (r *Registry) Register(t *Task) {
	if _, exists := r.tasks[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tasks[t.Name] = t
}

// Alias registers t under another name.
func (r *Registry) Alias(name string, t *Task) {
	alias := *t
	alias.Name = name
	if alias.Description == "" {
		alias.Description = "Alias for " + t.Name
	}
	r.Register(&alias)
}

// Get looks up a task.
func (r *Registry) Get(name string) (*Task, bool) {
	t, ok := r.tasks[name]
	return t, ok
}

// Names lists tasks in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Run runs the named task.
func (r *Registry) Run(ctx context.Context, name string) error {
	t, ok := r.tasks[name]
	if !ok {
		return fmt.Errorf("task %q is not defined (available: %s)", name, strings.Join(r.order, ", "))
	}
	return t.Run(ctx)
}

// Tree renders a task and its children as an indented outline.
func Tree(t *Task) string {
	var b strings.Builder
	writeTree(&b, t, "")
	return b.String()
}

func writeTree(b *strings.Builder, t *Task, indent string) {
	b.WriteString(indent)
	b.WriteString(t.Name)
	if t.Mode != "" {
		b.WriteString(" <" + t.Mode + ">")
	}
	b.WriteString("\n")
	for _, c := range t.Children {
		writeTree(b, c, indent+"  ")
	}
}
