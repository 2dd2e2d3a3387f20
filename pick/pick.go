// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pick resolves screen coordinates to draws by color-index
// rendering.
//
// A small surface around the queried point is rendered with every vertex
// colored by its selection color, spread over the 24-bit RGB range. The
// pixel under the point is read back; if it is background, growing
// rectangles around it are searched so thin structures stay selectable.
package pick

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

// maxColorValue is the largest packed 24-bit RGB value.
const maxColorValue = 1<<24 - 1

// ColorScale returns the factor that spreads indices 1..maxAssigned over
// the 24-bit color range. It is 1 when nothing has been assigned.
func ColorScale(maxAssigned uint32) uint32 {
	if maxAssigned == 0 {
		return 1
	}
	return maxColorValue / maxAssigned
}

// EncodeIndex returns the RGB color the picking shader writes for index.
func EncodeIndex(index, scale uint32) (r, g, b uint8) {
	v := index * scale
	return uint8(v >> 16), uint8(v >> 8), uint8(v)
}

// DecodeColor maps a packed RGB value back to its index.
func DecodeColor(value, scale uint32) uint32 {
	if scale == 0 {
		scale = 1
	}
	return value / scale
}

// Surface is an RGBA8 readback buffer. Row 0 is the bottom row, the order
// GL-style readback produces.
type Surface struct {
	Width, Height int
	Pix           []byte
}

// NewSurface returns a black surface.
func NewSurface(w, h int) *Surface {
	s := &Surface{Width: w, Height: h, Pix: make([]byte, 4*w*h)}
	s.Clear()
	return s
}

// Clear fills the surface with opaque black.
func (s *Surface) Clear() {
	for i := 0; i < len(s.Pix); i += 4 {
		s.Pix[i], s.Pix[i+1], s.Pix[i+2], s.Pix[i+3] = 0, 0, 0, 0xFF
	}
}

// Set writes an opaque pixel.
func (s *Surface) Set(x, y int, r, g, b uint8) {
	i := 4 * (y*s.Width + x)
	s.Pix[i], s.Pix[i+1], s.Pix[i+2], s.Pix[i+3] = r, g, b, 0xFF
}

// Value returns the pixel at (x, y) packed as r<<16 | g<<8 | b, or 0
// outside the surface.
func (s *Surface) Value(x, y int) uint32 {
	if x < 0 || x >= s.Width || y < 0 || y >= s.Height {
		return 0
	}
	i := 4 * (y*s.Width + x)
	return uint32(s.Pix[i])<<16 | uint32(s.Pix[i+1])<<8 | uint32(s.Pix[i+2])
}

// Image returns a top-down copy for encoding.
func (s *Surface) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	stride := 4 * s.Width
	for y := range s.Height {
		src := s.Pix[y*stride : (y+1)*stride]
		copy(img.Pix[(s.Height-1-y)*img.Stride:], src)
	}
	return img
}

// FindInRect returns the first non-zero value around (sx, sy).
//
// The center is tested first. Then for each distance d up to window/2 the
// ring at that Chebyshev distance is walked: the left and right columns
// row by row from bottom to top, then the bottom and top rows column by
// column, skipping the corners already visited. The order is fixed so the
// same buffer always yields the same answer.
func FindInRect(s *Surface, sx, sy, window int) uint32 {
	if v := s.Value(sx, sy); v != 0 {
		return v
	}
	for d := 1; d <= window/2; d++ {
		for y := sy - d; y <= sy+d; y++ {
			if y < 0 {
				continue
			}
			if y >= s.Height {
				break
			}
			if v := s.Value(sx-d, y); v != 0 {
				return v
			}
			if v := s.Value(sx+d, y); v != 0 {
				return v
			}
		}
		for x := sx - d + 1; x <= sx+d-1; x++ {
			if x < 0 {
				continue
			}
			if x >= s.Width {
				break
			}
			if v := s.Value(x, sy-d); v != 0 {
				return v
			}
			if v := s.Value(x, sy+d); v != 0 {
				return v
			}
		}
	}
	return 0
}

// PickMatrix returns the projection that maps a w×h window-space
// rectangle centered on (x, y) onto the whole clip volume. viewport is
// {x, y, width, height}. Premultiply it onto the view-projection.
func PickMatrix(x, y, w, h float32, viewport [4]float32) mgl32.Mat4 {
	var m mgl32.Mat4
	m[0] = viewport[2] / w
	m[5] = viewport[3] / h
	m[10] = 1
	m[12] = (viewport[2] + (viewport[0]-x)*2) / w
	m[13] = (viewport[3] + (viewport[1]-y)*2) / h
	m[15] = 1
	return m
}
