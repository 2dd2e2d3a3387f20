// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pick

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/anatomy/internal/logging"
	"github.com/gogpu/anatomy/selection"
)

// DefaultWindowSize is the side of the picking surface in pixels.
const DefaultWindowSize = 20

// Scene is what a pick sees: the viewport, the camera and the pickable
// meshes, plus the color table the meshes were stamped from.
type Scene struct {
	// Width and Height are the viewport size in pixels.
	Width, Height int

	ViewProjection mgl32.Mat4
	Meshes         []Mesh

	// Colors must be a snapshot taken no earlier than the meshes' load.
	Colors *selection.Snapshot
}

// Option configures a Picker.
type Option func(*Picker)

// WithWindowSize sets the side of the picking surface. The ring search
// covers half of it around the queried point.
func WithWindowSize(n int) Option {
	return func(p *Picker) {
		if n > 0 {
			p.window = n
		}
	}
}

// Picker turns viewport coordinates into draws.
type Picker struct {
	renderer Renderer
	window   int
}

// NewPicker returns a picker drawing with r.
func NewPicker(r Renderer, opts ...Option) *Picker {
	p := &Picker{renderer: r, window: DefaultWindowSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WindowSize returns the side of the picking surface.
func (p *Picker) WindowSize() int {
	return p.window
}

// InViewport reports whether (x, y) can be picked. The far edges are
// inclusive.
func (sc *Scene) InViewport(x, y int) bool {
	return x >= 0 && x <= sc.Width && y >= 0 && y <= sc.Height
}

// Render draws the picking surface centered on viewport point (x, y),
// where y grows downwards. It returns the surface and the color scale
// used.
func (p *Picker) Render(sc *Scene, x, y int) (*Surface, uint32, error) {
	wy := sc.Height - 1 - y
	pm := PickMatrix(float32(x), float32(wy), float32(p.window), float32(p.window),
		[4]float32{0, 0, float32(sc.Width), float32(sc.Height)})

	req := &Request{
		ViewProjection: pm.Mul4(sc.ViewProjection),
		ColorScale:     ColorScale(sc.Colors.MaxAssigned()),
		Meshes:         sc.Meshes,
	}
	surf := NewSurface(p.window, p.window)
	if err := p.renderer.RenderSelection(req, surf); err != nil {
		return nil, 0, fmt.Errorf("pick: render: %w", err)
	}
	return surf, req.ColorScale, nil
}

// Pick returns the draw under viewport point (x, y). Points outside the
// viewport miss without rendering. Background and colors missing from
// the scene's table are misses too.
func (p *Picker) Pick(sc *Scene, x, y int) (selection.Entry, bool, error) {
	if !sc.InViewport(x, y) {
		return selection.Entry{}, false, nil
	}
	surf, scale, err := p.Render(sc, x, y)
	if err != nil {
		return selection.Entry{}, false, err
	}

	c := p.window / 2
	value := FindInRect(surf, c, c, p.window)
	index := DecodeColor(value, scale)
	if index == 0 {
		return selection.Entry{}, false, nil
	}
	e, ok := sc.Colors.Lookup(index)
	logging.L().Debug("pick: resolved",
		"x", x, "y", y, "value", value, "index", index, "hit", ok, "geometry", e.Geometry)
	return e, ok, nil
}
