package codec

import (
	"errors"
	"fmt"
)

// Encoder errors.
var (
	// ErrDeltaRange is returned when a vertex channel delta does not fit
	// the signed zigzag range [-16384, 16383].
	ErrDeltaRange = errors.New("codec: vertex delta out of range")

	// ErrNormalPrecision is returned when a normal component is not a
	// multiple of 128 and cannot be represented.
	ErrNormalPrecision = errors.New("codec: normal component not a multiple of 128")
)

const (
	minVertexDelta = -16384
	maxVertexDelta = 16383
)

// Vertex is one decoded vertex in the fixed eight-channel layout.
type Vertex struct {
	Position [3]int16
	Normal   [3]int16
	TexCoord [2]int16
}

// Components returns the vertex in stream channel order.
func (v Vertex) Components() [VertexComponents]int16 {
	return [VertexComponents]int16{
		v.Position[0], v.Position[1], v.Position[2],
		v.Normal[0], v.Normal[1], v.Normal[2],
		v.TexCoord[0], v.TexCoord[1],
	}
}

// VertexAt returns vertex i of a decoded vertex buffer.
func VertexAt(buf []int16, i int) Vertex {
	c := buf[i*VertexComponents : (i+1)*VertexComponents]
	return Vertex{
		Position: [3]int16{c[0], c[1], c[2]},
		Normal:   [3]int16{c[3], c[4], c[5]},
		TexCoord: [2]int16{c[6], c[7]},
	}
}

// EncodeIndices produces the delta-coded stream for an index buffer.
// Every index sequence is representable.
func EncodeIndices(indices []uint16) []uint16 {
	out := make([]uint16, len(indices))
	var prev uint16
	for i, idx := range indices {
		d := int16(idx - prev)
		out[i] = uint16((d << 1) ^ (d >> 15))
		prev = idx
	}
	return out
}

// EncodeVertices produces the delta-coded stream for a vertex buffer.
// It fails when a channel moves too far between consecutive vertices or a
// normal component carries bits the format drops.
func EncodeVertices(vertices []Vertex) ([]uint16, error) {
	out := make([]uint16, 0, len(vertices)*VertexComponents)
	var prev [VertexComponents]int16
	for i, v := range vertices {
		comps := v.Components()
		for c, value := range comps {
			acc, err := channelAccumulator(c, value)
			if err != nil {
				return nil, fmt.Errorf("vertex %d channel %d: %w", i, c, err)
			}
			d := acc - prev[c]
			if d < minVertexDelta || d > maxVertexDelta {
				return nil, fmt.Errorf("vertex %d channel %d: delta %d: %w", i, c, d, ErrDeltaRange)
			}
			out = append(out, uint16((d<<1)^(d>>15)))
			prev[c] = acc
		}
	}
	return out, nil
}

// channelAccumulator inverts channelValue.
func channelAccumulator(c int, value int16) (int16, error) {
	switch c {
	case 0:
		return value + positionXBias, nil
	case 1:
		return value + positionYBias, nil
	case 2:
		return value + positionZBias, nil
	case 3, 4, 5:
		if value&(1<<normalShift-1) != 0 {
			return 0, ErrNormalPrecision
		}
		return value>>normalShift + normalBias, nil
	case 6:
		return value, nil
	default:
		return texCoordVFlip - value, nil
	}
}
