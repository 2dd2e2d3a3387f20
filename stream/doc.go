// Package stream loads body layers in the background.
//
// A [Session] walks an ordered list of layers. For each layer it parses
// and resolves the manifest, acquires textures, reads every referenced
// blob once and decodes the streams that live in it, then assigns a
// selection color to each draw and stamps it into a per-vertex color
// buffer. Each completed layer is handed to a [Receiver] through a
// [Dispatcher], which normally hops to the render goroutine.
//
// Results are all-or-nothing: a layer that fails or is cancelled part way
// through is never delivered. Cancellation is cooperative; the session
// polls a flag between phases, before every blob and between decode tasks,
// so it stops within one blob's decode time.
//
// A [Controller] keeps at most one session running and owns the
// [selection.Store] shared by consecutive sessions.
package stream
