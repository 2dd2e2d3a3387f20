// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pick

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/anatomy/codec"
)

// ErrBadMesh is returned when a mesh references data it does not have.
var ErrBadMesh = errors.New("pick: invalid mesh")

// PositionW is the homogeneous w given to every decoded position. It
// scales the 16-bit model coordinates down to the view's units.
const PositionW = 64

// Mesh is one draw group as the picking pass sees it.
type Mesh struct {
	// Key identifies the mesh across calls, so renderers can keep
	// uploaded copies. It must be comparable.
	Key any

	Indices    []uint16
	Vertices   []int16
	Colors     []uint16
	NumIndices int
}

// Request is one picking render.
type Request struct {
	// ViewProjection maps model positions (with w = PositionW) to clip
	// space. It already includes the pick matrix.
	ViewProjection mgl32.Mat4

	// ColorScale multiplies every selection color before RGB packing.
	ColorScale uint32

	Meshes []Mesh
}

// Renderer draws a picking request into dst. Implementations clear dst to
// black, depth test with less, cull clockwise faces, and color each
// triangle flat with the selection color of its first vertex.
type Renderer interface {
	RenderSelection(req *Request, dst *Surface) error
}

// SoftwareRenderer rasterizes picking requests on the CPU.
// It is not safe for concurrent use.
type SoftwareRenderer struct {
	depth []float32
}

// NewSoftwareRenderer returns a CPU renderer.
func NewSoftwareRenderer() *SoftwareRenderer {
	return &SoftwareRenderer{}
}

type windowVertex struct {
	x, y, z float32
}

// RenderSelection implements Renderer.
func (r *SoftwareRenderer) RenderSelection(req *Request, dst *Surface) error {
	dst.Clear()
	n := dst.Width * dst.Height
	if cap(r.depth) < n {
		r.depth = make([]float32, n)
	}
	r.depth = r.depth[:n]
	for i := range r.depth {
		r.depth[i] = 1
	}

	for mi := range req.Meshes {
		if err := r.drawMesh(req, &req.Meshes[mi], dst); err != nil {
			return fmt.Errorf("mesh %d: %w", mi, err)
		}
	}
	return nil
}

func (r *SoftwareRenderer) drawMesh(req *Request, m *Mesh, dst *Surface) error {
	nv := codec.VertexCount(len(m.Vertices))
	if len(m.Colors) < nv {
		return fmt.Errorf("%w: %d colors for %d vertices", ErrBadMesh, len(m.Colors), nv)
	}
	count := min(m.NumIndices, len(m.Indices))
	count -= count % 3

	for i := 0; i < count; i += 3 {
		tri := m.Indices[i : i+3]
		var wv [3]windowVertex
		visible := true
		for k, idx := range tri {
			if int(idx) >= nv {
				return fmt.Errorf("%w: index %d of %d vertices", ErrBadMesh, idx, nv)
			}
			v, ok := project(req.ViewProjection, m.Vertices[int(idx)*codec.VertexComponents:], dst)
			if !ok {
				visible = false
			}
			wv[k] = v
		}
		if !visible {
			continue
		}
		rr, gg, bb := EncodeIndex(uint32(m.Colors[tri[0]]), req.ColorScale)
		r.fill(wv, dst, rr, gg, bb)
	}
	return nil
}

// project maps a decoded position to window coordinates. Vertices behind
// the eye are reported as not visible; triangles touching them are
// skipped rather than clipped.
func project(vp mgl32.Mat4, comps []int16, dst *Surface) (windowVertex, bool) {
	clip := vp.Mul4x1(mgl32.Vec4{float32(comps[0]), float32(comps[1]), float32(comps[2]), PositionW})
	if clip[3] <= 0 {
		return windowVertex{}, false
	}
	inv := 1 / clip[3]
	return windowVertex{
		x: (clip[0]*inv + 1) * 0.5 * float32(dst.Width),
		y: (clip[1]*inv + 1) * 0.5 * float32(dst.Height),
		z: (clip[2]*inv + 1) * 0.5,
	}, true
}

func edge(a, b windowVertex, px, py float32) float32 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

func (r *SoftwareRenderer) fill(v [3]windowVertex, dst *Surface, cr, cg, cb uint8) {
	area := edge(v[0], v[1], v[2].x, v[2].y)
	if area <= 0 {
		return // back-facing or degenerate
	}

	minX := max(0, int(math.Floor(float64(min(v[0].x, v[1].x, v[2].x)))))
	maxX := min(dst.Width-1, int(math.Ceil(float64(max(v[0].x, v[1].x, v[2].x)))))
	minY := max(0, int(math.Floor(float64(min(v[0].y, v[1].y, v[2].y)))))
	maxY := min(dst.Height-1, int(math.Ceil(float64(max(v[0].y, v[1].y, v[2].y)))))

	inv := 1 / area
	for py := minY; py <= maxY; py++ {
		cy := float32(py) + 0.5
		for px := minX; px <= maxX; px++ {
			cx := float32(px) + 0.5
			w0 := edge(v[1], v[2], cx, cy)
			w1 := edge(v[2], v[0], cx, cy)
			w2 := edge(v[0], v[1], cx, cy)
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := (w0*v[0].z + w1*v[1].z + w2*v[2].z) * inv
			if z < 0 || z > 1 {
				continue
			}
			i := py*dst.Width + px
			if z >= r.depth[i] {
				continue
			}
			r.depth[i] = z
			dst.Set(px, py, cr, cg, cb)
		}
	}
}
