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

// Package pipeline provides the file stream, stage and pipeline types that
// every asset transform is built from.
//
// A Pipeline is an ordered list of named stages. Each stage receives the
// in-flight files and returns the transformed files, so a pipeline's shape
// can be inspected with StageNames without running anything.
package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"time"

	"bennypowers.dev/assetpipe/sourcemap"
)

// File is a single file flowing through a pipeline.
type File struct {
	// Base is the directory Path is relative to: the static prefix of the
	// source glob, or the destination directory once written.
	Base string
	// Path is slash separated and relative to Base.
	Path     string
	Contents []byte
	ModTime  time.Time
	Mode     fs.FileMode
	// History holds every relative path the file had, oldest first.
	History []string
	// Map is the tracked source map, nil unless source maps are enabled.
	Map *sourcemap.Map
}

// NewFile creates a file rooted at base.
func NewFile(base, rel string, contents []byte) *File {
	rel = filepath.ToSlash(rel)
	return &File{
		Base:     base,
		Path:     rel,
		Contents: contents,
		Mode:     0644,
		History:  []string{rel},
	}
}

// Abs returns the file's current absolute location.
func (f *File) Abs() string {
	return filepath.Join(f.Base, filepath.FromSlash(f.Path))
}

// Source returns the path the file had when it was read.
func (f *File) Source() string {
	if len(f.History) == 0 {
		return f.Path
	}
	return f.History[0]
}

// Ext returns the extension of the current path, including the dot.
func (f *File) Ext() string {
	return path.Ext(f.Path)
}

// SetPath changes the relative path and records it in History.
func (f *File) SetPath(rel string) {
	rel = filepath.ToSlash(rel)
	if rel == f.Path {
		return
	}
	f.Path = rel
	f.History = append(f.History, rel)
}

// Clone returns a copy of f that shares no mutable slices with it.
func (f *File) Clone() *File {
	c := *f
	c.Contents = slices.Clone(f.Contents)
	c.History = slices.Clone(f.History)
	if f.Map != nil {
		m := *f.Map
		c.Map = &m
	}
	return &c
}

// Stage is one step of a pipeline.
type Stage interface {
	Name() string
	Apply(ctx context.Context, files []*File) ([]*File, error)
}

type stageFunc struct {
	name string
	fn   func(ctx context.Context, files []*File) ([]*File, error)
}

func (s stageFunc) Name() string { return s.name }

func (s stageFunc) Apply(ctx context.Context, files []*File) ([]*File, error) {
	return s.fn(ctx, files)
}

// StageFunc adapts a function operating on the whole stream to a Stage.
func StageFunc(name string, fn func(ctx context.Context, files []*File) ([]*File, error)) Stage {
	return stageFunc{name: name, fn: fn}
}

// Each adapts a per-file function to a Stage. Files are processed in order
// and the first error stops the stage.
func Each(name string, fn func(ctx context.Context, f *File) error) Stage {
	return stageFunc{name: name, fn: func(ctx context.Context, files []*File) ([]*File, error) {
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := fn(ctx, f); err != nil {
				return nil, fileError(f, err)
			}
		}
		return files, nil
	}}
}

// Pipeline is a named, ordered list of stages.
type Pipeline struct {
	Name   string
	Stages []Stage
}

// New creates a pipeline.
func New(name string, stages ...Stage) *Pipeline {
	return &Pipeline{Name: name, Stages: stages}
}

// StageNames lists the stage names in execution order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		names[i] = s.Name()
	}
	return names
}

// Run feeds files through every stage in order. The first failing stage
// aborts the run; its error is returned as a *TransformError unless it is
// already a *FilesystemError or a context error.
func (p *Pipeline) Run(ctx context.Context, files []*File) ([]*File, error) {
	var err error
	for _, stage := range p.Stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err = stage.Apply(ctx, files)
		if err != nil {
			return nil, p.wrap(stage.Name(), err)
		}
	}
	return files, nil
}

func (p *Pipeline) wrap(stage string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var fsErr *FilesystemError
	if errors.As(err, &fsErr) {
		return err
	}
	var tErr *TransformError
	if errors.As(err, &tErr) {
		if tErr.Group == "" {
			tErr.Group = p.Name
		}
		if tErr.Stage == "" {
			tErr.Stage = stage
		}
		return err
	}
	return &TransformError{Group: p.Name, Stage: stage, Err: err}
}

// fileError attaches the file to an error returned by a per-file stage.
func fileError(f *File, err error) error {
	var tErr *TransformError
	if errors.As(err, &tErr) {
		if tErr.File == "" {
			tErr.File = f.Source()
		}
		return err
	}
	var fsErr *FilesystemError
	if errors.As(err, &fsErr) {
		return err
	}
	return &TransformError{File: f.Source(), Err: err}
}
