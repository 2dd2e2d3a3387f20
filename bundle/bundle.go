// Package bundle reads an on-disk body dataset.
//
// A bundle is a directory (or any fs.FS) with a bundle.toml at its root:
//
//	name = "body"
//
//	[[layers]]
//	name = "skin"
//	manifest = "layers/skin.json"
//
//	[fingerprints]
//	a1 = { blob = "blobs/geom0.u16.zst", start = 0, length = 330 }
//
//	[textures]
//	liver = "textures/liver.pkm"
//
// Blobs hold 16-bit code units. See [ExtRaw], [ExtText] and [ExtZstd] for
// the supported encodings.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/klauspost/compress/zstd"

	"github.com/gogpu/anatomy/internal/logging"
	"github.com/gogpu/anatomy/manifest"
)

// ConfigFile is the name of the bundle description at the bundle root.
const ConfigFile = "bundle.toml"

// ErrConfig is returned for invalid bundle descriptions.
var ErrConfig = errors.New("bundle: invalid config")

// Config is the decoded bundle.toml.
type Config struct {
	Name         string                       `toml:"name"`
	Layers       []LayerConfig                `toml:"layers"`
	Fingerprints map[string]FingerprintConfig `toml:"fingerprints"`
	Textures     map[string]string            `toml:"textures"`
}

// LayerConfig names the manifest of one layer.
type LayerConfig struct {
	Name     string `toml:"name"`
	Manifest string `toml:"manifest"`
}

// FingerprintConfig locates one stream inside a blob, in code units.
type FingerprintConfig struct {
	Blob   string `toml:"blob"`
	Start  int    `toml:"start"`
	Length int    `toml:"length"`
}

// Bundle is an opened dataset. Its methods are safe for concurrent use.
type Bundle struct {
	// Name is the dataset name from the config.
	Name string

	// FS is the file system manifests and textures are read from.
	FS fs.FS

	// Fingerprints resolves the stream tokens of layer manifests.
	Fingerprints manifest.Table

	// Textures maps texture names to paths inside FS.
	Textures *manifest.TextureTable

	manifests map[Layer]string
	zr        *zstd.Decoder
}

// Open opens the bundle in directory dir.
func Open(dir string) (*Bundle, error) {
	return Load(os.DirFS(dir))
}

// Load reads and validates the bundle description at the root of fsys.
func Load(fsys fs.FS) (*Bundle, error) {
	var cfg Config
	md, err := toml.DecodeFS(fsys, ConfigFile, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		logging.L().Warn("bundle: unknown config keys", "keys", fmt.Sprint(undecoded))
	}

	b := &Bundle{
		Name:         cfg.Name,
		FS:           fsys,
		Fingerprints: make(manifest.Table, len(cfg.Fingerprints)),
		Textures:     manifest.NewTextureTable(cfg.Textures),
		manifests:    make(map[Layer]string, len(cfg.Layers)),
	}
	for _, lc := range cfg.Layers {
		l, err := LayerFromName(lc.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		if _, dup := b.manifests[l]; dup {
			return nil, fmt.Errorf("%w: layer %s listed twice", ErrConfig, l)
		}
		if lc.Manifest == "" {
			return nil, fmt.Errorf("%w: layer %s has no manifest", ErrConfig, l)
		}
		b.manifests[l] = lc.Manifest
	}
	for token, fp := range cfg.Fingerprints {
		if fp.Blob == "" || fp.Start < 0 || fp.Length < 0 {
			return nil, fmt.Errorf("%w: fingerprint %q: %+v", ErrConfig, token, fp)
		}
		b.Fingerprints[token] = manifest.Location{Blob: fp.Blob, Start: fp.Start, Length: fp.Length}
	}

	b.zr, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("bundle: zstd: %w", err)
	}

	logging.L().Info("bundle: loaded",
		"name", b.Name, "layers", len(b.manifests),
		"fingerprints", len(b.Fingerprints), "textures", b.Textures.Len())
	return b, nil
}

// Close releases the blob decompressor.
func (b *Bundle) Close() {
	if b.zr != nil {
		b.zr.Close()
	}
}

// Layers returns the layers present in the bundle, outermost first.
func (b *Bundle) Layers() []Layer {
	out := make([]Layer, 0, len(b.manifests))
	for l := range b.manifests {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Manifest returns the manifest path of layer l.
func (b *Bundle) Manifest(l Layer) (string, bool) {
	p, ok := b.manifests[l]
	return p, ok
}

// ReadBlob reads blob id fully and returns its code units.
func (b *Bundle) ReadBlob(ctx context.Context, id string) ([]uint16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(b.FS, id)
	if err != nil {
		return nil, fmt.Errorf("bundle: read blob: %w", err)
	}
	return decodeBlob(id, data, b.zr)
}
