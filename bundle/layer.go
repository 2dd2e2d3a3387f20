package bundle

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownLayer is returned for layer names outside the fixed set.
var ErrUnknownLayer = errors.New("bundle: unknown layer")

// Layer identifies one of the anatomical layers.
type Layer int

// Layers, outermost first.
const (
	Skin Layer = iota
	Muscle
	Skeleton
	Connective
	Organs
	Circulatory
	Nervous

	// NumLayers is the number of layers.
	NumLayers = 7
)

var layerNames = [NumLayers]string{
	Skin:        "skin",
	Muscle:      "muscle",
	Skeleton:    "skeleton",
	Connective:  "connective",
	Organs:      "organs",
	Circulatory: "circulatory",
	Nervous:     "nervous",
}

// String returns the lowercase layer name.
func (l Layer) String() string {
	if l < 0 || int(l) >= NumLayers {
		return fmt.Sprintf("Layer(%d)", int(l))
	}
	return layerNames[l]
}

// Valid reports whether l is one of the defined layers.
func (l Layer) Valid() bool {
	return l >= 0 && int(l) < NumLayers
}

// LayerFromName parses a layer name. Matching ignores case.
func LayerFromName(name string) (Layer, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, ln := range layerNames {
		if ln == n {
			return Layer(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLayer, name)
}

// RenderOrder returns the layers from the inside out, the order in which
// they are drawn and, by default, loaded.
func RenderOrder() []Layer {
	return []Layer{Nervous, Circulatory, Organs, Connective, Skeleton, Muscle, Skin}
}
