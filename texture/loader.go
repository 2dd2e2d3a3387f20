package texture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io/fs"
	"math/bits"
	"path"
	"strings"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/gogpu/anatomy/internal/cache"
	"github.com/gogpu/anatomy/internal/logging"
	"github.com/gogpu/anatomy/manifest"
)

// DefaultCacheBudget is the default byte budget of the texture cache.
const DefaultCacheBudget = 64 << 20

// Option configures a Loader.
type Option func(*loaderOptions)

type loaderOptions struct {
	cacheBudget int
	powerOfTwo  bool
}

func defaultOptions() loaderOptions {
	return loaderOptions{cacheBudget: DefaultCacheBudget}
}

// WithCacheBudget sets the byte budget of the decoded texture cache.
// Zero or less disables eviction.
func WithCacheBudget(n int) Option {
	return func(o *loaderOptions) { o.cacheBudget = n }
}

// WithPowerOfTwo rescales raster textures whose sides are not powers of
// two. Some GLES2 drivers refuse to mipmap such textures.
func WithPowerOfTwo(enabled bool) Option {
	return func(o *loaderOptions) { o.powerOfTwo = enabled }
}

// Loader reads texture resources from a file system and caches the
// results. Loader is safe for concurrent use.
type Loader struct {
	fsys  fs.FS
	cache *cache.Cache[string, *Payload]
	opts  loaderOptions
}

// NewLoader returns a Loader reading from fsys.
func NewLoader(fsys fs.FS, opts ...Option) *Loader {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Loader{
		fsys:  fsys,
		cache: cache.New[string, *Payload](o.cacheBudget),
		opts:  o,
	}
}

// Load returns the payload for src. Solid sources are synthesized; file
// sources are read, decoded, and cached by path.
func (l *Loader) Load(ctx context.Context, src manifest.TextureSource) (*Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if src.Solid() {
		return SolidColor(src.Color), nil
	}
	if p, ok := l.cache.Get(src.Path); ok {
		return p, nil
	}

	data, err := fs.ReadFile(l.fsys, src.Path)
	if err != nil {
		return nil, fmt.Errorf("read texture %q: %w", src.Path, err)
	}
	var p *Payload
	switch strings.ToLower(path.Ext(src.Path)) {
	case ".pkm":
		p, err = ParsePKM(data)
	case ".png", ".jpg", ".jpeg", ".webp":
		p, err = l.decodeRaster(data)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupported, src.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("texture %q: %w", src.Path, err)
	}
	p.Source = src.Path

	logging.L().Debug("texture: loaded",
		"path", src.Path, "kind", p.Kind, "width", p.Width, "height", p.Height, "bytes", p.Size())
	l.cache.Set(src.Path, p, p.Size())
	return p, nil
}

// CacheStats returns the cache counters.
func (l *Loader) CacheStats() cache.Stats {
	return l.cache.Stats()
}

func (l *Loader) decodeRaster(data []byte) (*Payload, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if l.opts.powerOfTwo {
		w, h = ceilPow2(w), ceilPow2(h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	}
	return &Payload{Kind: Raster, Width: w, Height: h, Data: dst.Pix}, nil
}

func ceilPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
