package anatomy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/anatomy/bundle"
	"github.com/gogpu/anatomy/stream"
	"github.com/gogpu/anatomy/texture"
)

// Model loads a bundle into a Body. It owns the loading controller, so at
// most one session runs at a time and colors stay unique across reloads.
type Model struct {
	bundle     *bundle.Bundle
	ownsBundle bool

	body     *Body
	textures *texture.Loader
	ctrl     *stream.Controller

	mu      sync.Mutex
	current bundle.Layer
}

// Open reads the bundle in dir and returns a model for it. Close releases
// the bundle.
func Open(dir string, opts ...Option) (*Model, error) {
	b, err := bundle.Open(dir)
	if err != nil {
		return nil, err
	}
	m := New(b, opts...)
	m.ownsBundle = true
	return m, nil
}

// New returns a model loading from b. The caller keeps ownership of b.
func New(b *bundle.Bundle, opts ...Option) *Model {
	o := applyOptions(opts)
	body := NewBody(opts...)
	textures := texture.NewLoader(b.FS, o.textureOpts...)
	deps := stream.Deps{
		Manifests:     b.FS,
		Fingerprints:  b.Fingerprints,
		Textures:      b.Textures,
		TextureLoader: textures,
		Blobs:         b,
		Receiver:      body,
	}
	return &Model{
		bundle:   b,
		body:     body,
		textures: textures,
		ctrl:     stream.NewController(deps, o.streamOpts...),
		current:  o.current,
	}
}

// Body returns the render-side model.
func (m *Model) Body() *Body {
	return m.body
}

// Bundle returns the dataset being loaded.
func (m *Model) Bundle() *bundle.Bundle {
	return m.bundle
}

// Textures returns the texture loader, for cache statistics.
func (m *Model) Textures() *texture.Loader {
	return m.textures
}

// Controller returns the loading controller.
func (m *Model) Controller() *stream.Controller {
	return m.ctrl
}

// CurrentLayer returns the layer loaded first.
func (m *Model) CurrentLayer() bundle.Layer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetCurrentLayer chooses the layer loaded first by the next Load.
func (m *Model) SetCurrentLayer(l bundle.Layer) error {
	if !l.Valid() {
		return fmt.Errorf("%w: %d", bundle.ErrUnknownLayer, int(l))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = l
	return nil
}

// Sources returns the bundle's layers in render order with the current
// layer moved to the front.
func (m *Model) Sources() []stream.LayerSource {
	var sources []stream.LayerSource
	for _, l := range bundle.RenderOrder() {
		path, ok := m.bundle.Manifest(l)
		if !ok {
			continue
		}
		sources = append(sources, stream.LayerSource{ID: int(l), Name: l.String(), Manifest: path})
	}
	return stream.PrioritizeLayer(sources, int(m.CurrentLayer()))
}

// Load cancels any running load and starts loading every layer. It
// returns once the new session has started. Deliveries still queued from
// earlier loads are ignored by the body from then on.
func (m *Model) Load(ctx context.Context) error {
	s, err := m.ctrl.Start(ctx, m.Sources())
	if err != nil {
		return err
	}
	m.body.BeginLoad(s.Generation())
	return nil
}

// Wait blocks until the running load finishes.
func (m *Model) Wait() error {
	return m.ctrl.Wait()
}

// Cancel stops the running load.
func (m *Model) Cancel() {
	m.ctrl.Cancel()
}

// Close cancels the running load, waits for it, and releases the bundle
// if the model opened it. It returns the load's error unless the load
// stopped because of the cancellation.
func (m *Model) Close() error {
	m.ctrl.Cancel()
	err := m.ctrl.Wait()
	if m.ownsBundle {
		m.bundle.Close()
	}
	if errors.Is(err, stream.ErrCancelled) {
		return nil
	}
	return err
}
