// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pick

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/anatomy/codec"
	"github.com/gogpu/anatomy/internal/synth"
	"github.com/gogpu/anatomy/selection"
)

// =============================================================================
// Color coding
// =============================================================================

func TestColorScale(t *testing.T) {
	tests := []struct {
		max  uint32
		want uint32
	}{
		{0, 1},
		{1, 16777215},
		{2, 8388607},
		{255, 65793},
		{65535, 256},
	}
	for _, tt := range tests {
		if got := ColorScale(tt.max); got != tt.want {
			t.Errorf("ColorScale(%d) = %d, want %d", tt.max, got, tt.want)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, max := range []uint32{1, 2, 7, 1000, selection.MaxColor} {
		scale := ColorScale(max)
		for idx := uint32(1); idx <= max; idx++ {
			r, g, b := EncodeIndex(idx, scale)
			v := uint32(r)<<16 | uint32(g)<<8 | uint32(b)
			if got := DecodeColor(v, scale); got != idx {
				t.Fatalf("max %d: index %d decoded as %d", max, idx, got)
			}
		}
	}
}

func TestEncodeIndexShaderFormula(t *testing.T) {
	// R = floor(s / 65536), G = floor((s - R*65536) / 256), B = rest.
	r, g, b := EncodeIndex(3, 1000000)
	if r != 45 || g != 198 || b != 192 {
		t.Errorf("EncodeIndex(3, 1e6) = %d,%d,%d, want 45,198,192", r, g, b)
	}
	if DecodeColor(12345, 0) != 12345 {
		t.Error("zero scale not treated as 1")
	}
}

// =============================================================================
// Ring search
// =============================================================================

func TestFindInRect(t *testing.T) {
	const sx, sy = 10, 10
	tests := []struct {
		name string
		set  map[[2]int]uint8 // pixel -> blue value
		want uint32
	}{
		{"empty", nil, 0},
		{"center wins", map[[2]int]uint8{{sx, sy}: 1, {sx + 1, sy}: 2}, 1},
		{"bottom row before top", map[[2]int]uint8{{sx - 1, sy + 1}: 3, {sx + 1, sy - 1}: 4}, 4},
		{"left before right", map[[2]int]uint8{{sx + 1, sy}: 5, {sx - 1, sy}: 6}, 6},
		{"columns before rows", map[[2]int]uint8{{sx, sy - 1}: 7, {sx + 1, sy + 1}: 8}, 8},
		{"row edges by column", map[[2]int]uint8{{sx + 1, sy - 2}: 10, {sx - 1, sy + 2}: 9}, 9},
		{"bottom edge before top edge", map[[2]int]uint8{{sx, sy + 2}: 9, {sx, sy - 2}: 10}, 10},
		{"nearer ring wins", map[[2]int]uint8{{sx - 3, sy - 3}: 11, {sx, sy + 2}: 12}, 12},
		{"edge of window", map[[2]int]uint8{{sx + 10, sy}: 13}, 13},
		{"outside window", map[[2]int]uint8{{sx + 11, sy}: 14}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSurface(25, 25)
			for p, b := range tt.set {
				s.Set(p[0], p[1], 0, 0, b)
			}
			if got := FindInRect(s, sx, sy, 20); got != tt.want {
				t.Errorf("FindInRect = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFindInRectNearBorder(t *testing.T) {
	s := NewSurface(4, 4)
	s.Set(3, 3, 0, 1, 0)
	if got := FindInRect(s, 0, 0, 20); got != 256 {
		t.Errorf("FindInRect from corner = %d, want 256", got)
	}
}

func TestFindInRectDeterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	s := NewSurface(20, 20)
	for range 12 {
		s.Set(rng.IntN(20), rng.IntN(20), uint8(rng.IntN(255)+1), 0, 0)
	}
	first := FindInRect(s, 10, 10, 20)
	for range 100 {
		if got := FindInRect(s, 10, 10, 20); got != first {
			t.Fatalf("FindInRect = %d, then %d", first, got)
		}
	}
}

func TestSurfaceImageFlipsRows(t *testing.T) {
	s := NewSurface(2, 3)
	s.Set(1, 0, 9, 8, 7)
	img := s.Image()
	if c := img.RGBAAt(1, 2); c.R != 9 || c.G != 8 || c.B != 7 || c.A != 255 {
		t.Errorf("bottom-right pixel = %v", c)
	}
	if s.Value(-1, 0) != 0 || s.Value(0, 3) != 0 {
		t.Error("Value outside the surface is not 0")
	}
}

// =============================================================================
// Pick matrix
// =============================================================================

func TestPickMatrixCentersPoint(t *testing.T) {
	const w, h = 640, 480
	for _, p := range [][2]float32{{320, 240}, {0, 0}, {100, 400}, {639, 1}} {
		m := PickMatrix(p[0], p[1], 20, 20, [4]float32{0, 0, w, h})
		ndc := mgl32.Vec4{2*p[0]/w - 1, 2*p[1]/h - 1, 0.25, 1}
		got := m.Mul4x1(ndc)
		if math.Abs(float64(got[0])) > 1e-4 || math.Abs(float64(got[1])) > 1e-4 {
			t.Errorf("point %v maps to %v, want center", p, got)
		}
		if got[2] != 0.25 || got[3] != 1 {
			t.Errorf("point %v: z/w changed to %v", p, got)
		}
	}
}

// =============================================================================
// Software renderer
// =============================================================================

// meshOf builds a mesh from draws, stamping draw i with color first+i.
func meshOf(t *testing.T, first uint16, draws ...synth.Draw) Mesh {
	t.Helper()
	var m Mesh
	type span struct{ off, n int }
	var spans []span
	for _, d := range draws {
		base := codec.VertexCount(len(m.Vertices))
		for _, v := range d.Vertices {
			c := v.Components()
			m.Vertices = append(m.Vertices, c[:]...)
		}
		spans = append(spans, span{len(m.Indices), len(d.Indices)})
		for _, idx := range d.Indices {
			m.Indices = append(m.Indices, uint16(base)+idx)
		}
	}
	m.NumIndices = len(m.Indices)
	m.Colors = make([]uint16, codec.VertexCount(len(m.Vertices)))
	for i, s := range spans {
		if err := selection.Stamp(m.Colors, m.Indices, s.off, s.n, first+uint16(i)); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func ortho() mgl32.Mat4 { return mgl32.Ident4() }

func TestSoftwareRendererDepthAndCulling(t *testing.T) {
	far := synth.Quad("far", -64, -64, 64, 64, 20)
	near := synth.Quad("near", -32, -32, 32, 32, -20)
	back := synth.Quad("back", -64, -64, 64, 64, -40)
	back.Indices = []uint16{0, 2, 1, 0, 3, 2} // clockwise

	req := &Request{
		ViewProjection: ortho(),
		ColorScale:     1,
		Meshes:         []Mesh{meshOf(t, 1, near, far, back)},
	}
	s := NewSurface(8, 8)
	if err := NewSoftwareRenderer().RenderSelection(req, s); err != nil {
		t.Fatal(err)
	}

	if got := s.Value(4, 4); got != 1 {
		t.Errorf("center = %d, want near quad (1)", got)
	}
	if got := s.Value(0, 0); got != 2 {
		t.Errorf("corner = %d, want far quad (2)", got)
	}
}

func TestSoftwareRendererBadMesh(t *testing.T) {
	m := meshOf(t, 1, synth.Quad("q", 0, 0, 1, 1, 0))
	m.Indices[2] = 99
	err := NewSoftwareRenderer().RenderSelection(&Request{ViewProjection: ortho(), ColorScale: 1, Meshes: []Mesh{m}}, NewSurface(4, 4))
	if !errors.Is(err, ErrBadMesh) {
		t.Errorf("err = %v, want ErrBadMesh", err)
	}
}

func TestSoftwareRendererSkipsBehindEye(t *testing.T) {
	m := meshOf(t, 1, synth.Quad("q", -64, -64, 64, 64, 0))
	vp := mgl32.Scale3D(1, 1, 1)
	vp[15] = -1 // every w negative
	s := NewSurface(4, 4)
	if err := NewSoftwareRenderer().RenderSelection(&Request{ViewProjection: vp, ColorScale: 1, Meshes: []Mesh{m}}, s); err != nil {
		t.Fatal(err)
	}
	if FindInRect(s, 2, 2, 4) != 0 {
		t.Error("geometry behind the eye was drawn")
	}
}

// =============================================================================
// Picker
// =============================================================================

type countingRenderer struct {
	Renderer
	calls int
	err   error
}

func (r *countingRenderer) RenderSelection(req *Request, dst *Surface) error {
	r.calls++
	if r.err != nil {
		return r.err
	}
	return r.Renderer.RenderSelection(req, dst)
}

func liverScene(t *testing.T) *Scene {
	t.Helper()
	layer := synth.Liver()
	store := selection.NewStore()
	for _, d := range layer.Groups[0].Draws {
		if _, err := store.Assign(selection.Entry{Geometry: d.Geometry}); err != nil {
			t.Fatal(err)
		}
	}
	return &Scene{
		Width:          128,
		Height:         128,
		ViewProjection: ortho(),
		Meshes:         []Mesh{meshOf(t, 1, layer.Groups[0].Draws...)},
		Colors:         store.Snapshot(),
	}
}

func TestPickerLiver(t *testing.T) {
	sc := liverScene(t)
	r := &countingRenderer{Renderer: NewSoftwareRenderer()}
	p := NewPicker(r)

	tests := []struct {
		name string
		x, y int
		want string
	}{
		{"gallbladder", 99, 67, "gallbladder"},
		{"liver", 29, 63, "liver"},
		{"gallbladder apex within search ring", 99, 32, "gallbladder"},
		{"empty space", 64, 10, ""},
		{"left of viewport", -1, 10, ""},
		{"below viewport", 10, 129, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok, err := p.Pick(sc, tt.x, tt.y)
			if err != nil {
				t.Fatal(err)
			}
			if ok != (tt.want != "") || e.Geometry != tt.want {
				t.Errorf("Pick(%d, %d) = %q, %v; want %q", tt.x, tt.y, e.Geometry, ok, tt.want)
			}
		})
	}

	before := r.calls
	p.Pick(sc, 500, 500)
	if r.calls != before {
		t.Error("out-of-viewport pick rendered")
	}
}

func TestPickerDeterministic(t *testing.T) {
	sc := liverScene(t)
	p := NewPicker(NewSoftwareRenderer(), WithWindowSize(10))
	if p.WindowSize() != 10 {
		t.Fatalf("WindowSize = %d", p.WindowSize())
	}
	first, _, _ := p.Pick(sc, 70, 60)
	for range 20 {
		if e, _, _ := p.Pick(sc, 70, 60); e != first {
			t.Fatalf("Pick = %+v, then %+v", first, e)
		}
	}
}

func TestPickerUnknownColorMisses(t *testing.T) {
	sc := liverScene(t)
	sc.Colors = selection.NewStore().Snapshot()
	if _, ok, err := NewPicker(NewSoftwareRenderer()).Pick(sc, 99, 67); ok || err != nil {
		t.Errorf("Pick with empty table = %v, %v", ok, err)
	}
}

func TestPickerRendererError(t *testing.T) {
	boom := errors.New("boom")
	p := NewPicker(&countingRenderer{err: boom})
	if _, _, err := p.Pick(liverScene(t), 10, 10); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}
