// Package synth builds small body datasets in memory. Tests use it as a
// fixture and the bodyinspect tool writes its output to disk.
package synth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"testing/fstest"

	"github.com/BurntSushi/toml"
	"github.com/klauspost/compress/zstd"

	"github.com/gogpu/anatomy/bundle"
	"github.com/gogpu/anatomy/codec"
	"github.com/gogpu/anatomy/manifest"
	"github.com/gogpu/anatomy/texture"
)

// DefaultBlob receives the streams of groups that name no blob.
const DefaultBlob = "blobs/geometry.u16"

// Draw is one named mesh. Indices refer to Vertices.
type Draw struct {
	Geometry string
	Vertices []codec.Vertex
	Indices  []uint16
}

// Group is a draw group. Its draws are concatenated into one vertex and
// one index stream.
type Group struct {
	// Texture names a texture; a 4×4 PKM file is generated for it.
	Texture string
	// Color is the diffuse color used when Texture is empty.
	Color *[3]float32
	// Blob is the blob file the streams go to; DefaultBlob if empty.
	Blob  string
	Draws []Draw
}

// Layer is the content of one layer.
type Layer struct {
	Layer  bundle.Layer
	Groups []Group
}

// Dataset is a generated bundle.
type Dataset struct {
	// FS holds bundle.toml, the manifests, blobs and textures.
	FS fstest.MapFS

	Config       bundle.Config
	Fingerprints manifest.Table
	Textures     *manifest.TextureTable

	// Blobs holds the decoded code units of every blob file.
	Blobs map[string][]uint16

	// Manifests maps layers to their manifest paths.
	Manifests map[bundle.Layer]string
}

type jsonManifest struct {
	DrawGroups []jsonGroup `json:"draw_groups"`
}

type jsonGroup struct {
	Texture      string      `json:"texture,omitempty"`
	DiffuseColor *[3]float32 `json:"diffuse_color,omitempty"`
	Draws        []jsonDraw  `json:"draws"`
	Indices      string      `json:"indices"`
	Attribs      string      `json:"attribs"`
	NumIndices   int         `json:"numIndices"`
}

type jsonDraw struct {
	Geometry string `json:"geometry"`
	Range    [2]int `json:"range"`
}

// Build encodes layers into a dataset called name.
func Build(name string, layers ...Layer) (*Dataset, error) {
	ds := &Dataset{
		FS:           fstest.MapFS{},
		Config:       bundle.Config{Name: name, Fingerprints: map[string]bundle.FingerprintConfig{}, Textures: map[string]string{}},
		Fingerprints: manifest.Table{},
		Blobs:        map[string][]uint16{},
		Manifests:    map[bundle.Layer]string{},
	}

	for _, l := range layers {
		var jm jsonManifest
		for gi, g := range l.Groups {
			blob := g.Blob
			if blob == "" {
				blob = DefaultBlob
			}

			var (
				verts   []codec.Vertex
				indices []uint16
				jg      = jsonGroup{DiffuseColor: g.Color}
			)
			for _, d := range g.Draws {
				base := len(verts)
				if base+len(d.Vertices) > 1<<16 {
					return nil, fmt.Errorf("synth: %s group %d: more than 65536 vertices", l.Layer, gi)
				}
				jg.Draws = append(jg.Draws, jsonDraw{Geometry: d.Geometry, Range: [2]int{len(indices), len(d.Indices)}})
				verts = append(verts, d.Vertices...)
				for _, idx := range d.Indices {
					indices = append(indices, uint16(base+int(idx)))
				}
			}
			jg.NumIndices = len(indices)

			attribs, err := codec.EncodeVertices(verts)
			if err != nil {
				return nil, fmt.Errorf("synth: %s group %d: %w", l.Layer, gi, err)
			}
			token := fmt.Sprintf("%s-%d", l.Layer, gi)
			jg.Indices = ds.appendStream(token+"-i", blob, codec.EncodeIndices(indices))
			jg.Attribs = ds.appendStream(token+"-a", blob, attribs)

			if g.Texture != "" {
				jg.Texture = g.Texture
				p := "textures/" + strings.ToLower(g.Texture) + ".pkm"
				ds.Config.Textures[g.Texture] = p
				ds.FS[p] = &fstest.MapFile{Data: pkm4x4()}
			}
			jm.DrawGroups = append(jm.DrawGroups, jg)
		}

		data, err := json.MarshalIndent(jm, "", "  ")
		if err != nil {
			return nil, err
		}
		p := "layers/" + l.Layer.String() + ".json"
		ds.FS[p] = &fstest.MapFile{Data: data}
		ds.Manifests[l.Layer] = p
		ds.Config.Layers = append(ds.Config.Layers, bundle.LayerConfig{Name: l.Layer.String(), Manifest: p})
	}

	for blob, units := range ds.Blobs {
		data, err := encodeBlob(blob, units)
		if err != nil {
			return nil, err
		}
		ds.FS[blob] = &fstest.MapFile{Data: data}
	}

	var cfg bytes.Buffer
	if err := toml.NewEncoder(&cfg).Encode(ds.Config); err != nil {
		return nil, fmt.Errorf("synth: encode config: %w", err)
	}
	ds.FS[bundle.ConfigFile] = &fstest.MapFile{Data: cfg.Bytes()}
	ds.Textures = manifest.NewTextureTable(ds.Config.Textures)
	return ds, nil
}

// WriteDir writes the dataset files under dir, creating directories as
// needed. The result can be opened with bundle.Open.
func (ds *Dataset) WriteDir(dir string) error {
	names := make([]string, 0, len(ds.FS))
	for name := range ds.FS {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		dst := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("synth: %w", err)
		}
		if err := os.WriteFile(dst, ds.FS[name].Data, 0o644); err != nil {
			return fmt.Errorf("synth: %w", err)
		}
	}
	return nil
}

func (ds *Dataset) appendStream(token, blob string, units []uint16) string {
	loc := manifest.Location{Blob: blob, Start: len(ds.Blobs[blob]), Length: len(units)}
	ds.Blobs[blob] = append(ds.Blobs[blob], units...)
	ds.Fingerprints[token] = loc
	ds.Config.Fingerprints[token] = bundle.FingerprintConfig{Blob: blob, Start: loc.Start, Length: loc.Length}
	return token
}

func encodeBlob(name string, units []uint16) ([]byte, error) {
	base := strings.TrimSuffix(name, bundle.ExtZstd)
	var data []byte
	switch path.Ext(base) {
	case bundle.ExtRaw:
		data = bundle.EncodeRaw(units)
	case bundle.ExtText:
		var err error
		if data, err = bundle.EncodeText(units); err != nil {
			return nil, fmt.Errorf("synth: %s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("synth: %s: %w", name, bundle.ErrBlobType)
	}
	if base == name {
		return data, nil
	}
	zw, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer zw.Close()
	return zw.EncodeAll(data, nil), nil
}

func pkm4x4() []byte {
	return append(texture.EncodePKMHeader(4, 4), make([]byte, 8)...)
}
