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

package imagemin_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"bennypowers.dev/assetpipe/imagemin"
	"bennypowers.dev/assetpipe/pipeline"
)

func noTools(string) (string, error) { return "", errors.New("not found") }

func uncompressedPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestOptimizePNG(t *testing.T) {
	m := imagemin.New(imagemin.Options{LookPath: noTools})
	data := uncompressedPNG(t)

	out, changed, err := m.Optimize(context.Background(), "logo.png", data)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if !changed || len(out) >= len(data) {
		t.Fatalf("Expected a smaller PNG, got %d bytes from %d", len(out), len(data))
	}
	if _, err := png.Decode(bytes.NewReader(out)); err != nil {
		t.Errorf("Expected a valid PNG, got %v", err)
	}
}

func TestOptimizeSVG(t *testing.T) {
	m := imagemin.New(imagemin.Options{LookPath: noTools})
	src := []byte(`<?xml version="1.0"?>
<!-- icon -->
<svg xmlns="http://www.w3.org/2000/svg"   width="10"   height="10">
    <rect x="0" y="0" width="10" height="10" fill="#ff0000" />
</svg>
`)
	out, changed, err := m.Optimize(context.Background(), "icons/icon.svg", src)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if !changed {
		t.Errorf("Expected SVG to shrink, got %d bytes from %d", len(out), len(src))
	}
	if bytes.Contains(out, []byte("<!-- icon -->")) {
		t.Errorf("Expected comment to be removed, got %s", out)
	}
}

func TestOptimizeKeepsOriginal(t *testing.T) {
	m := imagemin.New(imagemin.Options{LookPath: noTools})
	m.Register(".webp", func(_ context.Context, data []byte) ([]byte, error) {
		return append(data, "padding"...), nil
	})

	tests := []struct {
		name string
		file string
	}{
		{"larger result", "photo.webp"},
		{"unknown extension", "notes.txt"},
		{"jpeg without jpegtran", "photo.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := []byte("original bytes")
			out, changed, err := m.Optimize(context.Background(), tt.file, data)
			if err != nil {
				t.Fatalf("Optimize failed: %v", err)
			}
			if changed || !bytes.Equal(out, data) {
				t.Errorf("Expected original to be kept, got %q", out)
			}
		})
	}
}

func TestStagePreservesOrderAndPaths(t *testing.T) {
	data := uncompressedPNG(t)
	var files []*pipeline.File
	for _, name := range []string{"a.png", "nested/b.png", "c.txt", "deep/er/d.png"} {
		files = append(files, pipeline.NewFile("/src/img", name, data))
	}

	stage := imagemin.Stage(imagemin.Options{Jobs: 2, LookPath: noTools})
	if stage.Name() != "imagemin" {
		t.Errorf("Expected stage name imagemin, got %s", stage.Name())
	}
	out, err := stage.Apply(context.Background(), files)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := []string{"a.png", "nested/b.png", "c.txt", "deep/er/d.png"}
	for i, f := range out {
		if f.Path != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, f.Path)
		}
	}
	if len(out[1].Contents) >= len(data) {
		t.Error("Expected nested PNG to be optimised")
	}
	if !bytes.Equal(out[2].Contents, data) {
		t.Error("Expected unknown file type to pass through")
	}
}

func TestStageReportsFailure(t *testing.T) {
	files := []*pipeline.File{pipeline.NewFile("/src/img", "broken.png", []byte("not a png"))}
	_, err := imagemin.Stage(imagemin.Options{LookPath: noTools}).Apply(context.Background(), files)
	var tErr *pipeline.TransformError
	if !errors.As(err, &tErr) {
		t.Fatalf("Expected TransformError, got %v", err)
	}
	if tErr.File != "broken.png" {
		t.Errorf("Expected broken.png, got %q", tErr.File)
	}
}
