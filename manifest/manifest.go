// Package manifest parses layer manifests and resolves their references.
//
// A layer manifest is a JSON document listing draw groups. Each group
// names an index stream and a vertex stream by fingerprint token, a
// texture or a diffuse color, and the draws (named sub-ranges of the index
// stream) it contains:
//
//	{"draw_groups": [{
//	    "texture": "textures/organs_liver_gall.jpg",
//	    "draws": [{"geometry": "liver", "range": [0, 300]}],
//	    "indices": "a1f3", "attribs": "9c02", "numIndices": 300
//	}]}
//
// [Parse] is eager and all-or-nothing: a manifest either parses completely
// or fails with [ErrMalformed]. [Resolve] turns a parsed manifest into a
// [Plan] with blob locations and texture paths.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Errors returned by the manifest package.
var (
	// ErrMalformed is returned for syntactically or structurally invalid
	// manifests.
	ErrMalformed = errors.New("manifest: malformed")

	// ErrUnknownFingerprint is returned when a token has no location.
	ErrUnknownFingerprint = errors.New("manifest: unknown fingerprint")

	// ErrUnknownTexture is returned when a texture name is not in the
	// texture table.
	ErrUnknownTexture = errors.New("manifest: unknown texture")
)

// LayerManifest is the parsed description of one layer.
type LayerManifest struct {
	DrawGroups []DrawGroupSpec
}

// DrawGroupSpec describes one draw group: a pair of streams sharing a
// material, split into named draws.
type DrawGroupSpec struct {
	// Texture is the texture name. Empty when the group is solid-colored.
	Texture string

	// DiffuseColor is the solid color, used only when Texture is empty.
	// Nil means no color was given.
	DiffuseColor *[3]float32

	Draws []DrawSpec

	// Indices and Attribs are fingerprint tokens.
	Indices string
	Attribs string

	NumIndices int
}

// DrawSpec is a named sub-range [Offset, Offset+Count) of a group's index
// stream.
type DrawSpec struct {
	Geometry string
	Offset   int
	Count    int
}

// Find returns the group and draw positions of the first draw named
// geometry.
func (m *LayerManifest) Find(geometry string) (group, draw int, ok bool) {
	for gi, g := range m.DrawGroups {
		for di, d := range g.Draws {
			if d.Geometry == geometry {
				return gi, di, true
			}
		}
	}
	return 0, 0, false
}

// NumDraws returns the total number of draws across all groups.
func (m *LayerManifest) NumDraws() int {
	n := 0
	for _, g := range m.DrawGroups {
		n += len(g.Draws)
	}
	return n
}

type rawManifest struct {
	DrawGroups *[]rawGroup `json:"draw_groups"`
}

type rawGroup struct {
	Texture      *string    `json:"texture"`
	DiffuseColor []float64  `json:"diffuse_color"`
	Draws        *[]rawDraw `json:"draws"`
	Indices      *string    `json:"indices"`
	Attribs      *string    `json:"attribs"`
	NumIndices   *int       `json:"numIndices"`
}

type rawDraw struct {
	Geometry *string `json:"geometry"`
	Range    []int   `json:"range"`
}

// Parse reads and validates a layer manifest.
func Parse(r io.Reader) (*LayerManifest, error) {
	var raw rawManifest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if raw.DrawGroups == nil {
		return nil, fmt.Errorf("%w: missing draw_groups", ErrMalformed)
	}

	m := &LayerManifest{DrawGroups: make([]DrawGroupSpec, len(*raw.DrawGroups))}
	for i, rg := range *raw.DrawGroups {
		g, err := rg.spec()
		if err != nil {
			return nil, fmt.Errorf("%w: draw group %d: %w", ErrMalformed, i, err)
		}
		m.DrawGroups[i] = g
	}
	return m, nil
}

func (rg *rawGroup) spec() (DrawGroupSpec, error) {
	var g DrawGroupSpec
	switch {
	case rg.Indices == nil:
		return g, errors.New("missing indices")
	case rg.Attribs == nil:
		return g, errors.New("missing attribs")
	case rg.NumIndices == nil:
		return g, errors.New("missing numIndices")
	case rg.Draws == nil:
		return g, errors.New("missing draws")
	case *rg.NumIndices < 0:
		return g, fmt.Errorf("negative numIndices %d", *rg.NumIndices)
	}
	g.Indices = *rg.Indices
	g.Attribs = *rg.Attribs
	g.NumIndices = *rg.NumIndices

	// A texture takes precedence over a diffuse color.
	if rg.Texture != nil {
		g.Texture = *rg.Texture
	} else if rg.DiffuseColor != nil {
		if len(rg.DiffuseColor) != 3 {
			return g, fmt.Errorf("diffuse_color has %d components", len(rg.DiffuseColor))
		}
		g.DiffuseColor = &[3]float32{
			float32(rg.DiffuseColor[0]),
			float32(rg.DiffuseColor[1]),
			float32(rg.DiffuseColor[2]),
		}
	}

	g.Draws = make([]DrawSpec, len(*rg.Draws))
	for j, rd := range *rg.Draws {
		if rd.Geometry == nil {
			return g, fmt.Errorf("draw %d: missing geometry", j)
		}
		if len(rd.Range) != 2 {
			return g, fmt.Errorf("draw %d: range has %d elements", j, len(rd.Range))
		}
		offset, count := rd.Range[0], rd.Range[1]
		if offset < 0 || count < 0 || offset+count > g.NumIndices {
			return g, fmt.Errorf("draw %d: range [%d,%d) outside %d indices", j, offset, offset+count, g.NumIndices)
		}
		g.Draws[j] = DrawSpec{Geometry: *rd.Geometry, Offset: offset, Count: count}
	}
	return g, nil
}
