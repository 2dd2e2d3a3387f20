// Package anatomy loads a layered 3D body model and finds the structure
// under a screen point.
//
// # Overview
//
// A body is split into seven fixed layers, from the skin to the nervous
// system. Each layer is described by a JSON manifest listing draw groups:
// meshes sharing a texture, whose vertex and index data live in shared
// blob files addressed by fingerprint tokens. A [Model] streams the
// layers in the background and hands each finished layer to a [Body],
// which keeps what the renderer draws and answers picks.
//
// # Quick Start
//
//	import "github.com/gogpu/anatomy"
//
//	m, err := anatomy.Open("data/body")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer m.Close()
//
//	m.Load(ctx)
//	m.Wait()
//
//	body := m.Body()
//	body.SetView(width, height, viewProj)
//	name, ok := body.Pick(x, y)
//
// # Picking
//
// Every draw gets a 16-bit selection color when its layer loads. A pick
// renders the pickable layers into a small window around the point with
// each draw flat-shaded in its color, then maps the nearest colored
// pixel back to the draw. A layer is pickable when its opacity is at
// least [PickOpacity] or while it holds the current selection.
//
// The default renderer rasterizes in software. Package gpu provides a
// renderer on a WebGPU device, see [WithRenderer] and [WithUploader].
//
// # Architecture
//
// The library is organized into:
//   - Public API: Model, Body, Option
//   - Data: bundle (dataset files), manifest (draw groups), codec (stream
//     decoding), texture (texture payloads)
//   - Loading: stream (sessions and the controller), selection (colors)
//   - Picking: pick (software renderer and window search), gpu (WebGPU)
//
// # Coordinate System
//
// Pick coordinates are viewport pixels:
//   - Origin (0,0) at top-left
//   - X increases right
//   - Y increases down
//
// Pick surfaces store rows bottom-up, like a GPU framebuffer.
package anatomy

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0-alpha.1"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = "alpha.1"
)
