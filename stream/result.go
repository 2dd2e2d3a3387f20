package stream

import (
	"fmt"

	"github.com/gogpu/anatomy/manifest"
	"github.com/gogpu/anatomy/selection"
	"github.com/gogpu/anatomy/texture"
)

// DrawGroup is a decoded draw group, ready for upload.
type DrawGroup struct {
	// Indices is the decoded index buffer.
	Indices []uint16

	// Vertices holds 8 components per vertex: position, normal, texcoord.
	Vertices []int16

	// Colors holds the selection color of each vertex, 0 for vertices no
	// draw references.
	Colors []uint16

	// Texture is the diffuse texture.
	Texture *texture.Payload

	// NumIndices is the number of indices to draw.
	NumIndices int

	// Draws are the named sub-ranges of Indices.
	Draws []manifest.DrawSpec
}

// VertexCount returns the number of vertices in the group.
func (g *DrawGroup) VertexCount() int {
	return len(g.Colors)
}

// LoadResult is one completed layer. Ownership passes to the receiver.
type LoadResult struct {
	Layer  int
	Name   string
	Groups []*DrawGroup

	// Generation identifies the session that loaded the layer.
	Generation uint64

	// Colors is the selection table as of the end of this layer.
	Colors *selection.Snapshot

	// NextColor is the color the next draw would get, 0 once exhausted.
	NextColor uint16
}

// Receiver consumes completed layers on the dispatch goroutine.
// allDone is set on the delivery of the last submitted layer.
type Receiver interface {
	FinishLayerLoad(r *LoadResult, allDone bool)
}

// FailureReceiver is implemented by receivers that want to hear about
// layers that did not load. allDone is set when the failed layer was the
// last one, so the receiver learns the session finished even though no
// result carries the flag.
type FailureReceiver interface {
	LayerFailed(lerr *LayerError, allDone bool)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(r *LoadResult, allDone bool)

// FinishLayerLoad calls f(r, allDone).
func (f ReceiverFunc) FinishLayerLoad(r *LoadResult, allDone bool) { f(r, allDone) }

// LayerError reports a layer that failed to load.
type LayerError struct {
	Layer LayerSource
	// Generation identifies the session that failed to load the layer.
	Generation uint64
	Err        error
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("stream: layer %s (%d): %v", e.Layer.Name, e.Layer.ID, e.Err)
}

func (e *LayerError) Unwrap() error { return e.Err }
