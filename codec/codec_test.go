package codec

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
)

func TestDecodeIndicesKnownStream(t *testing.T) {
	// +0, +1, +1, -1, +3, -3
	src := []uint16{0, 2, 2, 1, 6, 5}
	want := []uint16{0, 1, 2, 1, 4, 1}

	got := IndexBuffer(src, NewScratch(0))
	if !slices.Equal(got, want) {
		t.Errorf("IndexBuffer = %v, want %v", got, want)
	}
}

func TestDecodeIndicesWraps(t *testing.T) {
	// A single -1 delta from zero wraps to 65535.
	got := IndexBuffer([]uint16{1}, NewScratch(0))
	if got[0] != 0xFFFF {
		t.Errorf("got %d, want 65535", got[0])
	}
}

func TestDecodeVerticesZeroStream(t *testing.T) {
	got := VertexBuffer(make([]uint16, VertexComponents), NewScratch(0))
	want := []int16{-8192, -4096, -8192, -32768, -32768, -32768, 0, 512}
	if !slices.Equal(got, want) {
		t.Errorf("VertexBuffer(zeros) = %v, want %v", got, want)
	}
}

func TestDecodeVerticesArithmeticShift(t *testing.T) {
	// 0xFFFF as int16 is -1: (-1 >> 1) ^ -1 = 0, so the accumulator stays 0.
	// A logical shift would have produced 0x7FFF ^ 0xFFFF = 0x8000 instead.
	src := make([]uint16, VertexComponents)
	src[6] = 0xFFFF
	got := VertexBuffer(src, NewScratch(0))
	if got[6] != 0 {
		t.Errorf("u = %d, want 0", got[6])
	}
}

func TestIndexRoundTripAcrossRefills(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	indices := make([]uint16, 20_000)
	for i := range indices {
		indices[i] = uint16(rng.IntN(65536))
	}
	stream := EncodeIndices(indices)

	for _, size := range []int{8, 16, 1000, DefaultScratchSize, 1 << 16} {
		got := IndexBuffer(stream, NewScratch(size))
		if !slices.Equal(got, indices) {
			t.Fatalf("scratch %d: round trip mismatch", size)
		}
	}
}

func TestVertexRoundTripAcrossRefills(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	vertices := randomWalk(rng, 5000)
	stream, err := EncodeVertices(vertices)
	if err != nil {
		t.Fatalf("EncodeVertices: %v", err)
	}
	if len(stream) != len(vertices)*VertexComponents {
		t.Fatalf("stream length = %d, want %d", len(stream), len(vertices)*VertexComponents)
	}

	for _, size := range []int{8, 24, 4096, DefaultScratchSize} {
		buf := VertexBuffer(stream, NewScratch(size))
		if n := VertexCount(len(buf)); n != len(vertices) {
			t.Fatalf("scratch %d: vertex count = %d, want %d", size, n, len(vertices))
		}
		for i, want := range vertices {
			if got := VertexAt(buf, i); got != want {
				t.Fatalf("scratch %d: vertex %d = %+v, want %+v", size, i, got, want)
			}
		}
	}
}

func TestScratchSizeDoesNotChangeOutput(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	src := make([]uint16, 8*3001)
	for i := range src {
		// Arbitrary words, including ones above 0x8000.
		src[i] = uint16(rng.IntN(65536))
	}
	ref := VertexBuffer(src, NewScratch(1<<20))
	small := VertexBuffer(src, NewScratch(8))
	if !slices.Equal(ref, small) {
		t.Fatal("vertex decode depends on scratch size")
	}
	refIdx := IndexBuffer(src, NewScratch(1<<20))
	smallIdx := IndexBuffer(src, NewScratch(8))
	if !slices.Equal(refIdx, smallIdx) {
		t.Fatal("index decode depends on scratch size")
	}
}

func TestNewScratch(t *testing.T) {
	tests := []struct {
		size int
		want int
	}{
		{0, DefaultScratchSize},
		{-5, DefaultScratchSize},
		{3, 8},
		{17, 16},
		{8192, 8192},
	}
	for _, tt := range tests {
		if got := NewScratch(tt.size).Cap(); got != tt.want {
			t.Errorf("NewScratch(%d).Cap() = %d, want %d", tt.size, got, tt.want)
		}
	}
}

func TestReleasedScratchIsReusable(t *testing.T) {
	s := NewScratch(16)
	s.Release()
	got := IndexBuffer([]uint16{2, 2}, s)
	if !slices.Equal(got, []uint16{1, 2}) {
		t.Errorf("got %v", got)
	}
	if s.Cap() != DefaultScratchSize {
		t.Errorf("Cap = %d, want %d", s.Cap(), DefaultScratchSize)
	}
}

func TestDecodeContractViolationsPanic(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"vertex length", func() { VertexBuffer(make([]uint16, 7), NewScratch(0)) }},
		{"vertex dst", func() { DecodeVertices(make([]int16, 8), make([]uint16, 16), NewScratch(0)) }},
		{"index dst", func() { DecodeIndices(make([]uint16, 1), make([]uint16, 2), NewScratch(0)) }},
		{"nil scratch", func() { IndexBuffer([]uint16{0}, nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn()
		})
	}
}

func TestEncodeVerticesErrors(t *testing.T) {
	tests := []struct {
		name     string
		vertices []Vertex
		want     error
	}{
		{
			name:     "normal precision",
			vertices: []Vertex{{Normal: [3]int16{1, 0, 0}}},
			want:     ErrNormalPrecision,
		},
		{
			name: "position jump",
			vertices: []Vertex{
				{Position: [3]int16{-8192, 0, 0}},
				{Position: [3]int16{20000, 0, 0}},
			},
			want: ErrDeltaRange,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeVertices(tt.vertices)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

// randomWalk returns vertices whose channels move by small steps, the way
// neighboring mesh vertices do.
func randomWalk(rng *rand.Rand, n int) []Vertex {
	out := make([]Vertex, n)
	v := Vertex{
		Position: [3]int16{-8192, -4096, -8192},
		Normal:   [3]int16{0, 128 * 50, -128 * 20},
		TexCoord: [2]int16{0, 512},
	}
	step := func(x int16, span, unit int) int16 {
		return x + int16((rng.IntN(2*span+1)-span)*unit)
	}
	for i := range out {
		for c := range 3 {
			v.Position[c] = step(v.Position[c], 2000, 1)
			n := step(v.Normal[c], 20, 128)
			if n < -32768+128*32 || n > 32767-128*32 {
				n = 0
			}
			v.Normal[c] = n
		}
		v.TexCoord[0] = step(v.TexCoord[0], 300, 1)
		v.TexCoord[1] = step(v.TexCoord[1], 300, 1)
		out[i] = v
	}
	return out
}

func BenchmarkDecodeVertices(b *testing.B) {
	rng := rand.New(rand.NewPCG(7, 8))
	stream, err := EncodeVertices(randomWalk(rng, 10_000))
	if err != nil {
		b.Fatal(err)
	}
	dst := make([]int16, len(stream))
	s := NewScratch(0)
	b.SetBytes(int64(len(stream) * 2))
	b.ResetTimer()
	for range b.N {
		DecodeVertices(dst, stream, s)
	}
}

func BenchmarkDecodeIndices(b *testing.B) {
	indices := make([]uint16, 60_000)
	for i := range indices {
		indices[i] = uint16(i * 7)
	}
	stream := EncodeIndices(indices)
	dst := make([]uint16, len(stream))
	s := NewScratch(0)
	b.SetBytes(int64(len(stream) * 2))
	b.ResetTimer()
	for range b.N {
		DecodeIndices(dst, stream, s)
	}
}
