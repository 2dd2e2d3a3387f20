package synth

import (
	"fmt"

	"github.com/gogpu/anatomy/bundle"
	"github.com/gogpu/anatomy/codec"
)

// facing +z
var normalZ = [3]int16{0, 0, 127 << 7}

func vertex(x, y, z int16) codec.Vertex {
	return codec.Vertex{Position: [3]int16{x, y, z}, Normal: normalZ}
}

// Quad returns a rectangle at depth z as two counter-clockwise triangles.
func Quad(geometry string, x0, y0, x1, y1, z int16) Draw {
	return Draw{
		Geometry: geometry,
		Vertices: []codec.Vertex{
			vertex(x0, y0, z), vertex(x1, y0, z), vertex(x1, y1, z), vertex(x0, y1, z),
		},
		Indices: []uint16{0, 1, 2, 0, 2, 3},
	}
}

// Liver returns the two-draw organs layer used in examples: one draw
// group whose "liver" draw covers indices [0,300) over vertices 0..29 and
// whose "gallbladder" draw covers [300,330) over vertices 30..32.
//
// With an identity view-projection the liver fills x in [-60,-10] and the
// gallbladder is the triangle (20,-20) (50,-20) (35,30), in front of it.
func Liver() Layer {
	liver := Draw{Geometry: "liver"}
	for row := range 5 {
		for col := range 6 {
			liver.Vertices = append(liver.Vertices,
				vertex(int16(-60+10*col), int16(-40+20*row), 0))
		}
	}
	var cells []uint16
	for row := range 4 {
		for col := range 5 {
			v := uint16(row*6 + col)
			cells = append(cells, v, v+1, v+7, v, v+7, v+6)
		}
	}
	for len(liver.Indices) < 300 {
		liver.Indices = append(liver.Indices, cells[:min(len(cells), 300-len(liver.Indices))]...)
	}

	gall := Draw{
		Geometry: "gallbladder",
		Vertices: []codec.Vertex{vertex(20, -20, -10), vertex(50, -20, -10), vertex(35, 30, -10)},
	}
	for range 10 {
		gall.Indices = append(gall.Indices, 0, 1, 2)
	}

	return Layer{
		Layer:  bundle.Organs,
		Groups: []Group{{Texture: "Liver", Draws: []Draw{liver, gall}}},
	}
}

// Body returns a layer for every layer kind. Layer i holds groups of
// quads tiled over the view, further back the deeper the layer, so every
// layer is pickable where the outer ones leave gaps. Groups alternate
// between the raw, text and compressed blob encodings.
func Body(groupsPerLayer, drawsPerGroup int) []Layer {
	blobs := []string{"blobs/a.u16", "blobs/b.utf8", "blobs/c.u16.zst"}
	var layers []Layer
	for li := range bundle.NumLayers {
		l := bundle.Layer(li)
		z := int16(4 * (li - bundle.NumLayers))
		layer := Layer{Layer: l}
		for g := range groupsPerLayer {
			grp := Group{Blob: blobs[(li+g)%len(blobs)]}
			if g%2 == 0 {
				c := [3]float32{float32(li) / bundle.NumLayers, 0.5, 1}
				grp.Color = &c
			} else {
				grp.Texture = fmt.Sprintf("%s_%d", l, g)
			}
			for d := range drawsPerGroup {
				n := g*drawsPerGroup + d
				x0 := int16(-60 + (n%12)*10)
				y0 := int16(-60 + (n/12%12)*10)
				grp.Draws = append(grp.Draws,
					Quad(fmt.Sprintf("%s_%d_%d", l, g, d), x0, y0, x0+8-int16(li), y0+8-int16(li), z))
			}
			layer.Groups = append(layer.Groups, grp)
		}
		layers = append(layers, layer)
	}
	return layers
}
