// Package codec decodes the zigzag delta-coded geometry streams of the
// anatomy asset bundles.
//
// Geometry is stored as sequences of 16-bit code units. Each code unit is a
// zigzag-encoded delta against the previous value of the same channel:
//
//	delta = (word >> 1) ^ -(word & 1)
//	value = previous + delta
//
// Index buffers form a single channel of unsigned 16-bit values. Vertex
// buffers interleave eight channels per vertex (x, y, z, nx, ny, nz, u, v),
// each with its own accumulator and a fixed output mapping (see
// [DecodeVertices]).
//
// Decoding works through a bounded [Scratch] arena. Output is produced into
// the arena and flushed to the destination each time it fills; channel
// accumulators persist across refills, so results never depend on the
// arena size.
//
// Length mismatches and vertex streams whose length is not a multiple of
// eight are programming errors and panic. Validating untrusted lengths is
// the caller's job (see package manifest).
package codec
