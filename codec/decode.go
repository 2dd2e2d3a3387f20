package codec

// Channel output offsets applied to the vertex accumulators.
const (
	positionXBias = 8192
	positionYBias = 4096
	positionZBias = 8192
	normalBias    = 256
	normalShift   = 7
	texCoordVFlip = 512
)

// DecodeIndices decodes a delta-coded index stream into dst.
//
// Each word is interpreted as unsigned; the running sum is truncated to
// 16 bits. dst and src must have equal length.
func DecodeIndices(dst, src []uint16, s *Scratch) {
	if len(dst) != len(src) {
		panic("codec: index destination length mismatch")
	}
	win := s.window()

	var prev uint16
	for base := 0; base < len(src); {
		n := min(len(win), len(src)-base)
		out := win[:n]
		for i, word := range src[base : base+n] {
			prev += (word >> 1) ^ -(word & 1)
			out[i] = prev
		}
		copy(dst[base:], out)
		base += n
	}
}

// DecodeVertices decodes an interleaved vertex stream into dst.
//
// Each word is reinterpreted as a signed 16-bit value before the zigzag
// step, so the shift is arithmetic. Accumulated channels map to output as:
//
//	x  = acc0 - 8192
//	y  = acc1 - 4096
//	z  = acc2 - 8192
//	nx = (acc3 - 256) << 7   (ny, nz likewise)
//	u  = acc6
//	v  = 512 - acc7
//
// All arithmetic wraps at 16 bits. dst and src must have equal length and
// that length must be a multiple of VertexComponents.
func DecodeVertices(dst []int16, src []uint16, s *Scratch) {
	if len(dst) != len(src) {
		panic("codec: vertex destination length mismatch")
	}
	if len(src)%VertexComponents != 0 {
		panic("codec: vertex stream length is not a multiple of 8")
	}
	win := s.window()

	var acc [VertexComponents]int16
	for base := 0; base < len(src); {
		n := min(len(win), len(src)-base)
		out := win[:n]
		in := src[base : base+n]
		for i := 0; i < n; i += VertexComponents {
			for c := range VertexComponents {
				word := int16(in[i+c])
				acc[c] += (word >> 1) ^ -(word & 1)
				out[i+c] = uint16(channelValue(c, acc[c]))
			}
		}
		for i, v := range out {
			dst[base+i] = int16(v)
		}
		base += n
	}
}

// IndexBuffer allocates and decodes an index stream.
func IndexBuffer(src []uint16, s *Scratch) []uint16 {
	dst := make([]uint16, len(src))
	DecodeIndices(dst, src, s)
	return dst
}

// VertexBuffer allocates and decodes a vertex stream.
func VertexBuffer(src []uint16, s *Scratch) []int16 {
	dst := make([]int16, len(src))
	DecodeVertices(dst, src, s)
	return dst
}

// VertexCount returns the number of vertices held by a vertex stream of
// the given length in code units.
func VertexCount(length int) int {
	return length / VertexComponents
}

func channelValue(c int, acc int16) int16 {
	switch c {
	case 0:
		return acc - positionXBias
	case 1:
		return acc - positionYBias
	case 2:
		return acc - positionZBias
	case 3, 4, 5:
		return (acc - normalBias) << normalShift
	case 6:
		return acc
	default:
		return texCoordVFlip - acc
	}
}
