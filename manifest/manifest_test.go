package manifest

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const organsManifest = `{
  "draw_groups": [
    {
      "texture": "Textures/Organs_Liver_Gall.jpg",
      "draws": [
        {"geometry": "liver", "range": [0, 300]},
        {"geometry": "gallbladder", "range": [300, 60]}
      ],
      "indices": "idx0",
      "attribs": "att0",
      "numIndices": 360
    },
    {
      "diffuse_color": [0.5, 0.25, 1.0],
      "draws": [{"geometry": "spleen", "range": [0, 12]}],
      "indices": "idx1",
      "attribs": "att1",
      "numIndices": 12
    }
  ]
}`

func TestParse(t *testing.T) {
	m, err := Parse(strings.NewReader(organsManifest))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := &LayerManifest{DrawGroups: []DrawGroupSpec{
		{
			Texture: "Textures/Organs_Liver_Gall.jpg",
			Draws: []DrawSpec{
				{Geometry: "liver", Offset: 0, Count: 300},
				{Geometry: "gallbladder", Offset: 300, Count: 60},
			},
			Indices:    "idx0",
			Attribs:    "att0",
			NumIndices: 360,
		},
		{
			DiffuseColor: &[3]float32{0.5, 0.25, 1.0},
			Draws:        []DrawSpec{{Geometry: "spleen", Offset: 0, Count: 12}},
			Indices:      "idx1",
			Attribs:      "att1",
			NumIndices:   12,
		},
	}}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
	if m.NumDraws() != 3 {
		t.Errorf("NumDraws = %d", m.NumDraws())
	}
	if g, d, ok := m.Find("gallbladder"); !ok || g != 0 || d != 1 {
		t.Errorf("Find(gallbladder) = %d, %d, %v", g, d, ok)
	}
	if _, _, ok := m.Find("appendix"); ok {
		t.Error("Find(appendix) succeeded")
	}
}

func TestParseTextureWinsOverColor(t *testing.T) {
	const doc = `{"draw_groups":[{"texture":"t.jpg","diffuse_color":[1,0,0],
		"draws":[],"indices":"i","attribs":"a","numIndices":0}]}`
	m, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	g := m.DrawGroups[0]
	if g.Texture != "t.jpg" || g.DiffuseColor != nil {
		t.Errorf("got texture %q color %v", g.Texture, g.DiffuseColor)
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"draw_groups": [`},
		{"no groups", `{}`},
		{"missing indices", `{"draw_groups":[{"draws":[],"attribs":"a","numIndices":0}]}`},
		{"missing attribs", `{"draw_groups":[{"draws":[],"indices":"i","numIndices":0}]}`},
		{"missing count", `{"draw_groups":[{"draws":[],"indices":"i","attribs":"a"}]}`},
		{"missing draws", `{"draw_groups":[{"indices":"i","attribs":"a","numIndices":0}]}`},
		{"negative count", `{"draw_groups":[{"draws":[],"indices":"i","attribs":"a","numIndices":-1}]}`},
		{"short range", `{"draw_groups":[{"draws":[{"geometry":"g","range":[0]}],"indices":"i","attribs":"a","numIndices":3}]}`},
		{"range past end", `{"draw_groups":[{"draws":[{"geometry":"g","range":[2,3]}],"indices":"i","attribs":"a","numIndices":3}]}`},
		{"no geometry", `{"draw_groups":[{"draws":[{"range":[0,3]}],"indices":"i","attribs":"a","numIndices":3}]}`},
		{"bad color", `{"draw_groups":[{"diffuse_color":[1,1],"draws":[],"indices":"i","attribs":"a","numIndices":0}]}`},
		{"wrong type", `{"draw_groups":[{"draws":[],"indices":7,"attribs":"a","numIndices":0}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse(strings.NewReader(tt.doc))
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("err = %v, want ErrMalformed", err)
			}
			if m != nil {
				t.Error("partial manifest returned")
			}
		})
	}
}

func TestTextureTableIgnoresCase(t *testing.T) {
	tt := NewTextureTable(map[string]string{
		"textures/organs_liver_gall.jpg": "textures/organs_liver_gall.pkm",
	})
	for _, name := range []string{
		"textures/organs_liver_gall.jpg",
		"Textures/Organs_Liver_Gall.JPG",
		"TEXTURES/ORGANS_LIVER_GALL.JPG",
	} {
		p, err := tt.Lookup(name)
		if err != nil || p != "textures/organs_liver_gall.pkm" {
			t.Errorf("Lookup(%q) = %q, %v", name, p, err)
		}
	}
	if _, err := tt.Lookup("textures/heart.jpg"); !errors.Is(err, ErrUnknownTexture) {
		t.Errorf("err = %v, want ErrUnknownTexture", err)
	}
	if tt.Len() != 1 || tt.Names()[0] != "textures/organs_liver_gall.jpg" {
		t.Errorf("Names = %v", tt.Names())
	}
}

func TestResolve(t *testing.T) {
	m, err := Parse(strings.NewReader(organsManifest))
	if err != nil {
		t.Fatal(err)
	}
	fps := Table{
		"idx0": {Blob: "organs.u16", Start: 0, Length: 360},
		"att0": {Blob: "organs.u16", Start: 360, Length: 800},
		"idx1": {Blob: "organs_b.u16", Start: 0, Length: 12},
		"att1": {Blob: "organs.u16", Start: 1160, Length: 64},
	}
	textures := NewTextureTable(map[string]string{
		"textures/organs_liver_gall.jpg": "tex/liver.pkm",
	})

	p, err := Resolve(m, fps, textures)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(p.Groups) != 2 {
		t.Fatalf("groups = %d", len(p.Groups))
	}
	g0, g1 := p.Groups[0], p.Groups[1]
	if g0.Texture.Solid() || g0.Texture.Path != "tex/liver.pkm" {
		t.Errorf("group 0 texture = %+v", g0.Texture)
	}
	if !g1.Texture.Solid() || g1.Texture.Color != [3]float32{0.5, 0.25, 1.0} {
		t.Errorf("group 1 texture = %+v", g1.Texture)
	}
	if g0.VertexCount() != 100 || g1.VertexCount() != 8 {
		t.Errorf("vertex counts = %d, %d", g0.VertexCount(), g1.VertexCount())
	}
	if g0.Attribs.End() != 1160 {
		t.Errorf("End = %d", g0.Attribs.End())
	}
}

func TestResolveDefaultColor(t *testing.T) {
	m := &LayerManifest{DrawGroups: []DrawGroupSpec{{Indices: "i", Attribs: "a"}}}
	fps := Table{"i": {Blob: "b"}, "a": {Blob: "b"}}
	p, err := Resolve(m, fps, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Groups[0].Texture; !got.Solid() || got.Color != DefaultColor {
		t.Errorf("texture = %+v", got)
	}
}

func TestResolveErrors(t *testing.T) {
	base := func() *LayerManifest {
		return &LayerManifest{DrawGroups: []DrawGroupSpec{{
			Indices: "i", Attribs: "a", NumIndices: 6,
		}}}
	}
	good := Table{
		"i": {Blob: "b", Length: 6},
		"a": {Blob: "b", Start: 6, Length: 16},
	}
	tests := []struct {
		name     string
		manifest *LayerManifest
		fps      Table
		want     error
	}{
		{"unknown index token", base(), Table{"a": good["a"]}, ErrUnknownFingerprint},
		{"unknown attrib token", base(), Table{"i": good["i"]}, ErrUnknownFingerprint},
		{"partial vertex", base(), Table{"i": good["i"], "a": {Blob: "b", Length: 12}}, ErrMalformed},
		{"short index stream", base(), Table{"i": {Blob: "b", Length: 5}, "a": good["a"]}, ErrMalformed},
		{"unknown texture", func() *LayerManifest {
			m := base()
			m.DrawGroups[0].Texture = "missing.jpg"
			return m
		}(), good, ErrUnknownTexture},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.manifest, tt.fps, NewTextureTable(nil))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
