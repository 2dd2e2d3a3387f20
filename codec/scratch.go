package codec

// DefaultScratchSize is the scratch arena capacity in 16-bit code units.
const DefaultScratchSize = 8192

// VertexComponents is the number of interleaved channels per vertex.
const VertexComponents = 8

// Scratch is a fixed-capacity working buffer reused across decode calls.
//
// A Scratch is not safe for concurrent use. Give each decoding goroutine
// its own arena.
type Scratch struct {
	buf []uint16
}

// NewScratch returns an arena holding size code units. The size is rounded
// down to a whole number of vertices and never drops below one vertex.
// A size of 0 or less selects DefaultScratchSize.
func NewScratch(size int) *Scratch {
	if size <= 0 {
		size = DefaultScratchSize
	}
	if size < VertexComponents {
		size = VertexComponents
	}
	size -= size % VertexComponents
	return &Scratch{buf: make([]uint16, size)}
}

// Cap returns the arena capacity in code units.
func (s *Scratch) Cap() int {
	return len(s.buf)
}

// Release drops the backing storage. A released arena grows back to
// DefaultScratchSize on next use.
func (s *Scratch) Release() {
	s.buf = nil
}

func (s *Scratch) window() []uint16 {
	if s == nil {
		panic("codec: nil scratch arena")
	}
	if len(s.buf) == 0 {
		s.buf = make([]uint16, DefaultScratchSize)
	}
	return s.buf
}
