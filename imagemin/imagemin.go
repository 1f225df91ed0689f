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

// Package imagemin losslessly shrinks PNG, JPEG, GIF and SVG images.
package imagemin

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"path"
	"runtime"
	"strings"
	"sync"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"

	"bennypowers.dev/assetpipe/internal/command"
	"bennypowers.dev/assetpipe/internal/output"
	"bennypowers.dev/assetpipe/pipeline"
)

// Optimizer rewrites one image. Returning nil data leaves the image as is.
type Optimizer func(ctx context.Context, data []byte) ([]byte, error)

// Options configures the imagemin stage.
type Options struct {
	// Jobs bounds the number of images optimised at once. Zero means
	// runtime.NumCPU.
	Jobs     int
	Log      *slog.Logger
	LookPath command.LookPathFunc
}

// Minifier holds one optimizer per file extension.
type Minifier struct {
	optimizers map[string]Optimizer
	jobs       int
	log        *slog.Logger
}

// New builds a Minifier. jpegtran and gifsicle are used when they are on
// PATH; otherwise those formats are copied unchanged.
func New(opts Options) *Minifier {
	m := &Minifier{
		optimizers: map[string]Optimizer{
			".png": PNG,
			".svg": SVG(),
		},
		jobs: opts.Jobs,
		log:  opts.Log,
	}
	if m.jobs <= 0 {
		m.jobs = runtime.NumCPU()
	}
	if m.log == nil {
		m.log = slog.New(slog.DiscardHandler)
	}
	if bin, err := opts.LookPath.LookPath("jpegtran"); err == nil {
		jpeg := External(bin, "-copy", "none", "-optimize", "-progressive")
		m.optimizers[".jpg"] = jpeg
		m.optimizers[".jpeg"] = jpeg
	} else {
		m.log.Debug("jpegtran not found, JPEG images are copied unchanged")
	}
	if bin, err := opts.LookPath.LookPath("gifsicle"); err == nil {
		m.optimizers[".gif"] = External(bin, "-O3")
	} else {
		m.log.Debug("gifsicle not found, GIF images are copied unchanged")
	}
	return m
}

// Register sets the optimizer for an extension such as ".webp".
func (m *Minifier) Register(ext string, o Optimizer) {
	m.optimizers[strings.ToLower(ext)] = o
}

// Optimize returns the smaller of data and its optimised form, and whether
// the optimised form was chosen.
func (m *Minifier) Optimize(ctx context.Context, name string, data []byte) ([]byte, bool, error) {
	o, ok := m.optimizers[strings.ToLower(path.Ext(name))]
	if !ok {
		return data, false, nil
	}
	out, err := o(ctx, data)
	if err != nil {
		return nil, false, err
	}
	if out == nil || len(out) >= len(data) {
		return data, false, nil
	}
	return out, true, nil
}

// Stage returns the "imagemin" stage. Files are optimised concurrently;
// their order is preserved.
func (m *Minifier) Stage() pipeline.Stage {
	return pipeline.StageFunc("imagemin", m.apply)
}

// Stage is shorthand for New(opts).Stage().
func Stage(opts Options) pipeline.Stage {
	return New(opts).Stage()
}

type result struct {
	before, after int
	err           error
}

func (m *Minifier) apply(ctx context.Context, files []*pipeline.File) ([]*pipeline.File, error) {
	results := make([]result, len(files))
	jobs := make(chan int, len(files))

	var wg sync.WaitGroup
	for range min(m.jobs, max(len(files), 1)) {
		wg.Go(func() {
			for i := range jobs {
				f := files[i]
				if err := ctx.Err(); err != nil {
					results[i].err = err
					continue
				}
				out, _, err := m.Optimize(ctx, f.Path, f.Contents)
				if err != nil {
					results[i].err = &pipeline.TransformError{File: f.Source(), Err: err}
					continue
				}
				results[i] = result{before: len(f.Contents), after: len(out)}
				f.Contents = out
			}
		})
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var before, after, saved int
	for i, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		before += r.before
		after += r.after
		if r.after < r.before {
			saved++
			m.log.Debug("optimised image", "file", files[i].Path, "result", output.Savings(r.before, r.after))
		}
	}
	if len(files) > 0 {
		m.log.Info(fmt.Sprintf("minified %d of %d images", saved, len(files)), "result", output.Savings(before, after))
	}
	return files, nil
}

// PNG re-encodes at best compression. The pixel data is unchanged.
func PNG(_ context.Context, data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("png: %w", err)
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png: %w", err)
	}
	return buf.Bytes(), nil
}

// SVG returns an optimizer backed by the SVG minifier.
func SVG() Optimizer {
	m := minify.New()
	m.AddFunc("image/svg+xml", svg.Minify)
	return func(_ context.Context, data []byte) ([]byte, error) {
		return m.Bytes("image/svg+xml", data)
	}
}

// External returns an optimizer that pipes images through bin.
func External(bin string, args ...string) Optimizer {
	return func(ctx context.Context, data []byte) ([]byte, error) {
		return command.Filter(ctx, bin, args, data)
	}
}
