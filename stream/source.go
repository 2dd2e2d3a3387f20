package stream

import (
	"context"
	"io/fs"

	"github.com/gogpu/anatomy/manifest"
	"github.com/gogpu/anatomy/selection"
	"github.com/gogpu/anatomy/texture"
)

// LayerSource names a layer and where its manifest lives.
type LayerSource struct {
	ID       int
	Name     string
	Manifest string
}

// BlobSource reads whole blobs as 16-bit code units.
type BlobSource interface {
	ReadBlob(ctx context.Context, id string) ([]uint16, error)
}

// TextureLoader acquires the texture of a draw group.
type TextureLoader interface {
	Load(ctx context.Context, src manifest.TextureSource) (*texture.Payload, error)
}

// Deps are the collaborators a session reads from and writes to.
type Deps struct {
	// Manifests holds the layer manifests.
	Manifests fs.FS

	// Fingerprints resolves manifest stream tokens to blob locations.
	Fingerprints manifest.Resolver

	// Textures maps texture names to resource paths.
	Textures *manifest.TextureTable

	// TextureLoader reads texture resources.
	TextureLoader TextureLoader

	// Blobs reads geometry blobs.
	Blobs BlobSource

	// Colors is the live selection table. A Controller fills it in.
	Colors *selection.Store

	// Receiver gets every completed layer.
	Receiver Receiver
}

// PrioritizeLayer returns a copy of sources with the layer id moved to the
// front, so the layer on screen finishes first. Order is otherwise kept.
func PrioritizeLayer(sources []LayerSource, id int) []LayerSource {
	out := make([]LayerSource, 0, len(sources))
	for _, s := range sources {
		if s.ID == id {
			out = append(out, s)
		}
	}
	for _, s := range sources {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}
