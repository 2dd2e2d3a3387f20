package manifest

import (
	"fmt"
	"sort"

	"golang.org/x/text/cases"
)

// Location addresses a slice of a blob in 16-bit code units.
type Location struct {
	Blob   string
	Start  int
	Length int
}

// End returns the first code unit past the slice.
func (l Location) End() int {
	return l.Start + l.Length
}

// Resolver maps fingerprint tokens to blob locations.
type Resolver interface {
	Resolve(token string) (Location, error)
}

// Table is a map-backed Resolver.
type Table map[string]Location

// Resolve implements Resolver.
func (t Table) Resolve(token string) (Location, error) {
	loc, ok := t[token]
	if !ok {
		return Location{}, fmt.Errorf("%w: %q", ErrUnknownFingerprint, token)
	}
	return loc, nil
}

// TextureTable maps texture names to resource paths. Lookups ignore case.
type TextureTable struct {
	paths map[string]string
}

// NewTextureTable builds a table from name → path pairs.
func NewTextureTable(entries map[string]string) *TextureTable {
	t := &TextureTable{paths: make(map[string]string, len(entries))}
	for name, path := range entries {
		t.paths[foldName(name)] = path
	}
	return t
}

// Lookup returns the resource path for name.
func (t *TextureTable) Lookup(name string) (string, error) {
	if t != nil {
		if p, ok := t.paths[foldName(name)]; ok {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTexture, name)
}

// Len returns the number of entries.
func (t *TextureTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.paths)
}

// Names returns the folded names in sorted order.
func (t *TextureTable) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.paths))
	for n := range t.paths {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// foldName case-folds a texture name. A Caser holds state, so each call
// gets its own.
func foldName(name string) string {
	return cases.Fold().String(name)
}

// DefaultColor is used when a group names neither texture nor color.
var DefaultColor = [3]float32{1, 1, 1}

// TextureSource is the resolved material of a draw group.
type TextureSource struct {
	// Name is the manifest texture name; empty for solid colors.
	Name string
	// Path is the resource path; empty for solid colors.
	Path string
	// Color is the solid color used when Path is empty.
	Color [3]float32
}

// Solid reports whether the group uses a synthesized 1×1 color texture.
func (s TextureSource) Solid() bool {
	return s.Path == ""
}

// GroupPlan is a draw group with every reference resolved.
type GroupPlan struct {
	Spec    DrawGroupSpec
	Texture TextureSource
	Indices Location
	Attribs Location
}

// VertexCount returns the number of vertices the attribute stream holds.
func (g *GroupPlan) VertexCount() int {
	return g.Attribs.Length / 8
}

// Plan is a fully resolved layer manifest.
type Plan struct {
	Groups []GroupPlan
}

// Resolve resolves the fingerprints and textures of every group in m.
// It also checks the stream lengths the decoder relies on: attribute
// streams must hold whole vertices and index streams must cover
// numIndices.
func Resolve(m *LayerManifest, fps Resolver, textures *TextureTable) (*Plan, error) {
	p := &Plan{Groups: make([]GroupPlan, len(m.DrawGroups))}
	for i, g := range m.DrawGroups {
		gp := GroupPlan{Spec: g}

		switch {
		case g.Texture != "":
			path, err := textures.Lookup(g.Texture)
			if err != nil {
				return nil, fmt.Errorf("draw group %d: %w", i, err)
			}
			gp.Texture = TextureSource{Name: g.Texture, Path: path}
		case g.DiffuseColor != nil:
			gp.Texture = TextureSource{Color: *g.DiffuseColor}
		default:
			gp.Texture = TextureSource{Color: DefaultColor}
		}

		var err error
		if gp.Indices, err = fps.Resolve(g.Indices); err != nil {
			return nil, fmt.Errorf("draw group %d indices: %w", i, err)
		}
		if gp.Attribs, err = fps.Resolve(g.Attribs); err != nil {
			return nil, fmt.Errorf("draw group %d attribs: %w", i, err)
		}
		if err := gp.check(); err != nil {
			return nil, fmt.Errorf("%w: draw group %d: %w", ErrMalformed, i, err)
		}
		p.Groups[i] = gp
	}
	return p, nil
}

func (g *GroupPlan) check() error {
	for _, loc := range []Location{g.Indices, g.Attribs} {
		if loc.Start < 0 || loc.Length < 0 {
			return fmt.Errorf("negative location %+v", loc)
		}
	}
	if g.Attribs.Length%8 != 0 {
		return fmt.Errorf("attribute length %d is not a whole number of vertices", g.Attribs.Length)
	}
	if g.Indices.Length < g.Spec.NumIndices {
		return fmt.Errorf("index stream holds %d of %d indices", g.Indices.Length, g.Spec.NumIndices)
	}
	return nil
}
