package anatomy

import (
	"github.com/gogpu/anatomy/bundle"
	"github.com/gogpu/anatomy/pick"
	"github.com/gogpu/anatomy/stream"
	"github.com/gogpu/anatomy/texture"
)

// Option configures a Body or a Model during creation.
//
// Example:
//
//	// Default software picking
//	m, err := anatomy.Open("data/body")
//
//	// GPU picking on a shared device, with uploads on layer arrival
//	r, _ := gpu.NewRendererFromProvider(provider)
//	m, err := anatomy.Open("data/body", anatomy.WithRenderer(r), anatomy.WithUploader(r))
type Option func(*options)

// options holds optional configuration.
type options struct {
	renderer    pick.Renderer
	windowSize  int
	uploader    Uploader
	current     bundle.Layer
	streamOpts  []stream.Option
	textureOpts []texture.Option
}

// defaultOptions returns the default options.
func defaultOptions() options {
	return options{
		renderer:   nil, // Will be set to a SoftwareRenderer if nil
		windowSize: pick.DefaultWindowSize,
		current:    bundle.Skin,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.renderer == nil {
		o.renderer = pick.NewSoftwareRenderer()
	}
	return o
}

// WithRenderer sets the renderer used for picking. Use this to inject
// the GPU renderer from package gpu.
func WithRenderer(r pick.Renderer) Option {
	return func(o *options) {
		o.renderer = r
	}
}

// WithWindowSize sets the side of the picking surface in pixels.
func WithWindowSize(n int) Option {
	return func(o *options) {
		o.windowSize = n
	}
}

// WithUploader sets the hook that receives draw groups as layers arrive.
func WithUploader(u Uploader) Option {
	return func(o *options) {
		o.uploader = u
	}
}

// WithCurrentLayer sets the layer loaded first.
func WithCurrentLayer(l bundle.Layer) Option {
	return func(o *options) {
		o.current = l
	}
}

// WithStreamOptions passes options to every loading session.
func WithStreamOptions(opts ...stream.Option) Option {
	return func(o *options) {
		o.streamOpts = append(o.streamOpts, opts...)
	}
}

// WithTextureOptions passes options to the texture loader.
func WithTextureOptions(opts ...texture.Option) Option {
	return func(o *options) {
		o.textureOpts = append(o.textureOpts, opts...)
	}
}
