package anatomy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/anatomy/bundle"
	"github.com/gogpu/anatomy/manifest"
	"github.com/gogpu/anatomy/pick"
	"github.com/gogpu/anatomy/selection"
	"github.com/gogpu/anatomy/stream"
)

// ErrNoView is returned by picks made before SetView.
var ErrNoView = errors.New("anatomy: viewport not set")

// PickOpacity is the opacity at or above which a layer is pickable.
const PickOpacity = 0.5

// Uploader moves draw groups to the GPU as layers arrive. It runs in the
// render context. Meshes are keyed by their *stream.DrawGroup.
type Uploader interface {
	Upload(meshes []pick.Mesh) error
	Forget(key any)
}

// layerState is the render-side state of one layer.
type layerState struct {
	groups []*stream.DrawGroup
	loaded bool

	opacity float32
	// visibleTarget keeps a faded layer pickable while one of its draws
	// is the selection.
	visibleTarget bool
}

// DrawRef addresses one draw inside a loaded group.
type DrawRef struct {
	Layer bundle.Layer
	Group *stream.DrawGroup
	Draw  manifest.DrawSpec
}

// Body is the render-side model. It receives completed layers from a
// loading session, tracks layer opacity, and answers picks.
//
// Body implements stream.Receiver and stream.FailureReceiver. It is safe
// for concurrent use.
type Body struct {
	mu sync.RWMutex

	layers    [bundle.NumLayers]layerState
	colors    *selection.Snapshot
	nextColor uint16
	done      bool
	gen       uint64

	width, height int
	viewProj      mgl32.Mat4

	picker   *pick.Picker
	uploader Uploader
}

var (
	_ stream.Receiver        = (*Body)(nil)
	_ stream.FailureReceiver = (*Body)(nil)
)

// NewBody returns an empty body. Only the skin starts opaque.
func NewBody(opts ...Option) *Body {
	o := applyOptions(opts)
	b := &Body{
		picker:   pick.NewPicker(o.renderer, pick.WithWindowSize(o.windowSize)),
		uploader: o.uploader,
	}
	b.layers[bundle.Skin].opacity = 1
	return b
}

// FinishLayerLoad implements stream.Receiver. The layer's previous groups
// are replaced and the color table advances to the result's snapshot.
// Results from a session older than the current one are dropped.
func (b *Body) FinishLayerLoad(r *stream.LoadResult, allDone bool) {
	l := bundle.Layer(r.Layer)
	if !l.Valid() {
		Logger().Warn("anatomy: result for unknown layer", "layer", r.Layer, "name", r.Name)
		return
	}

	b.mu.Lock()
	if !b.adoptLocked(r.Generation) {
		b.mu.Unlock()
		Logger().Debug("anatomy: stale result dropped", "layer", l, "generation", r.Generation)
		return
	}
	old := b.layers[l].groups
	b.layers[l].groups = r.Groups
	b.layers[l].loaded = true
	b.colors = r.Colors
	b.nextColor = r.NextColor
	b.done = allDone
	up := b.uploader
	b.mu.Unlock()

	if up != nil {
		for _, g := range old {
			up.Forget(g)
		}
		if err := up.Upload(meshes(r.Groups)); err != nil {
			Logger().Warn("anatomy: upload failed", "layer", l, "err", err)
		}
	}
	Logger().Info("anatomy: layer ready",
		"layer", l, "groups", len(r.Groups), "colors", r.Colors.Len(), "all_done", allDone)
}

// LayerFailed implements stream.FailureReceiver.
func (b *Body) LayerFailed(lerr *stream.LayerError, allDone bool) {
	b.mu.Lock()
	stale := !b.adoptLocked(lerr.Generation)
	if !stale && allDone {
		b.done = true
	}
	b.mu.Unlock()
	if stale {
		return
	}
	Logger().Warn("anatomy: layer failed", "layer", lerr.Layer.Name, "err", lerr.Err, "all_done", allDone)
}

// BeginLoad switches the body to session generation gen and clears the
// loaded flags. Groups stay drawable until their layer is delivered
// again. Older generations are ignored.
func (b *Body) BeginLoad(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.adoptLocked(gen)
}

// Generation returns the session generation the body is tracking.
func (b *Body) Generation() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.gen
}

// adoptLocked reports whether a delivery from generation gen applies. A
// newer generation resets the per-session state first.
func (b *Body) adoptLocked(gen uint64) bool {
	switch {
	case gen < b.gen:
		return false
	case gen > b.gen:
		b.gen = gen
		for i := range b.layers {
			b.layers[i].loaded = false
		}
		b.done = false
	}
	return true
}

// Loaded reports whether l was delivered by the current session.
func (b *Body) Loaded(l bundle.Layer) bool {
	if !l.Valid() {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.layers[l].loaded
}

// Done reports whether the current session has delivered or failed
// every layer.
func (b *Body) Done() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.done
}

// Groups returns the draw groups of l.
func (b *Body) Groups(l bundle.Layer) []*stream.DrawGroup {
	if !l.Valid() {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.layers[l].groups
}

// Colors returns the latest color table.
func (b *Body) Colors() *selection.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.colors
}

// NextColor returns the color the next draw would get, 0 once the color
// space is exhausted.
func (b *Body) NextColor() uint16 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextColor
}

// SetOpacity sets the opacity of l, clamped to [0, 1].
func (b *Body) SetOpacity(l bundle.Layer, v float32) error {
	if !l.Valid() {
		return fmt.Errorf("%w: %d", bundle.ErrUnknownLayer, int(l))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.layers[l].opacity = min(max(v, 0), 1)
	return nil
}

// Opacity returns the opacity of l.
func (b *Body) Opacity(l bundle.Layer) float32 {
	if !l.Valid() {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.layers[l].opacity
}

// SetVisibleTarget marks l as holding the current selection, which keeps
// it pickable while faded.
func (b *Body) SetVisibleTarget(l bundle.Layer, on bool) error {
	if !l.Valid() {
		return fmt.Errorf("%w: %d", bundle.ErrUnknownLayer, int(l))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.layers[l].visibleTarget = on
	return nil
}

// Pickable reports whether picks can hit l.
func (b *Body) Pickable(l bundle.Layer) bool {
	if !l.Valid() {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pickableLocked(l)
}

func (b *Body) pickableLocked(l bundle.Layer) bool {
	s := &b.layers[l]
	if s.groups == nil {
		return false
	}
	return s.opacity >= PickOpacity || s.visibleTarget
}

// DrawsFor finds the draw named geometry among the delivered layers, so
// a single structure can be drawn on its own.
func (b *Body) DrawsFor(geometry string) (DrawRef, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, l := range bundle.RenderOrder() {
		for _, g := range b.layers[l].groups {
			for _, d := range g.Draws {
				if d.Geometry == geometry {
					return DrawRef{Layer: l, Group: g, Draw: d}, true
				}
			}
		}
	}
	return DrawRef{}, false
}

// SetView sets the viewport size and the camera used by picks.
func (b *Body) SetView(width, height int, viewProj mgl32.Mat4) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width, b.height = width, height
	b.viewProj = viewProj
}

// Scene returns the picking scene: every pickable layer in render order.
func (b *Body) Scene() *pick.Scene {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sc := &pick.Scene{
		Width:          b.width,
		Height:         b.height,
		ViewProjection: b.viewProj,
		Colors:         b.colors,
	}
	for _, l := range bundle.RenderOrder() {
		if b.pickableLocked(l) {
			sc.Meshes = append(sc.Meshes, meshes(b.layers[l].groups)...)
		}
	}
	return sc
}

// PickEntry returns the draw under viewport point (x, y), y growing
// downwards.
func (b *Body) PickEntry(x, y int) (selection.Entry, bool, error) {
	sc := b.Scene()
	if sc.Width <= 0 || sc.Height <= 0 {
		return selection.Entry{}, false, ErrNoView
	}
	return b.picker.Pick(sc, x, y)
}

// Pick returns the geometry name under viewport point (x, y). Render
// errors are logged and count as misses.
func (b *Body) Pick(x, y int) (string, bool) {
	e, ok, err := b.PickEntry(x, y)
	if err != nil {
		Logger().Warn("anatomy: pick failed", "x", x, "y", y, "err", err)
		return "", false
	}
	return e.Geometry, ok
}

// meshes converts draw groups for picking, keyed by group.
func meshes(groups []*stream.DrawGroup) []pick.Mesh {
	out := make([]pick.Mesh, 0, len(groups))
	for _, g := range groups {
		out = append(out, pick.Mesh{
			Key:        g,
			Indices:    g.Indices,
			Vertices:   g.Vertices,
			Colors:     g.Colors,
			NumIndices: g.NumIndices,
		})
	}
	return out
}
