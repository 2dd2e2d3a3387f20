// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/anatomy/codec"
	"github.com/gogpu/anatomy/internal/logging"
	"github.com/gogpu/anatomy/pick"
)

// meshBuffers is the uploaded copy of one pick.Mesh.
type meshBuffers struct {
	index  hal.Buffer
	vertex hal.Buffer
	color  hal.Buffer

	// count is the number of indices drawn, a multiple of three.
	count uint32

	// Identity of the uploaded slices, used to detect changes.
	indices  *uint16
	vertices *int16
	colors   *uint16
	lens     [3]int
}

func (mb *meshBuffers) matches(m *pick.Mesh) bool {
	return mb.indices == first(m.Indices) &&
		mb.vertices == first(m.Vertices) &&
		mb.colors == first(m.Colors) &&
		mb.lens == [3]int{len(m.Indices), len(m.Vertices), len(m.Colors)} &&
		mb.count == drawCount(m)
}

func (mb *meshBuffers) destroy(device hal.Device) {
	for _, b := range []hal.Buffer{mb.index, mb.vertex, mb.color} {
		if b != nil {
			device.DestroyBuffer(b)
		}
	}
	mb.index, mb.vertex, mb.color = nil, nil, nil
}

func first[T any](s []T) *T {
	if len(s) == 0 {
		return nil
	}
	return &s[0]
}

// drawCount is the number of indices drawn for m.
func drawCount(m *pick.Mesh) uint32 {
	n := min(m.NumIndices, len(m.Indices))
	n -= n % 3
	return uint32(max(n, 0))
}

// checkMesh applies the same validation as the software renderer.
func checkMesh(m *pick.Mesh) error {
	nv := codec.VertexCount(len(m.Vertices))
	if len(m.Colors) < nv {
		return fmt.Errorf("%w: %d colors for %d vertices", pick.ErrBadMesh, len(m.Colors), nv)
	}
	for _, idx := range m.Indices[:drawCount(m)] {
		if int(idx) >= nv {
			return fmt.Errorf("%w: index %d of %d vertices", pick.ErrBadMesh, idx, nv)
		}
	}
	return nil
}

// align4 rounds n up to a multiple of four, the copy granularity of
// WriteBuffer.
func align4(n int) int {
	return (n + 3) &^ 3
}

func indexBytes(indices []uint16) []byte {
	b := make([]byte, align4(2*len(indices)))
	for i, v := range indices {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return b
}

func vertexBytes(vertices []int16) []byte {
	b := make([]byte, align4(2*len(vertices)))
	for i, v := range vertices {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(v))
	}
	return b
}

// colorBytes widens selection colors to 32 bits. WebGPU has no single
// 16-bit vertex format.
func colorBytes(colors []uint16) []byte {
	b := make([]byte, colorStride*len(colors))
	for i, v := range colors {
		binary.LittleEndian.PutUint32(b[colorStride*i:], uint32(v))
	}
	return b
}

func (r *Renderer) createBuffer(label string, usage gputypes.BufferUsage, data []byte) (hal.Buffer, error) {
	size := max(len(data), 4)
	buf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(size),
		Usage: usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s buffer: %w", label, err)
	}
	if len(data) > 0 {
		if err := r.queue.WriteBuffer(buf, 0, data); err != nil {
			r.device.DestroyBuffer(buf)
			return nil, fmt.Errorf("write %s buffer: %w", label, err)
		}
	}
	return buf, nil
}

// upload returns the buffers for m, creating them when m is new or its
// data changed. The caller holds r.mu.
func (r *Renderer) upload(m *pick.Mesh) (*meshBuffers, error) {
	cacheable := m.Key != nil
	if cacheable {
		if mb, ok := r.meshes[m.Key]; ok {
			if mb.matches(m) {
				return mb, nil
			}
			mb.destroy(r.device)
			delete(r.meshes, m.Key)
		}
	}
	if err := checkMesh(m); err != nil {
		return nil, err
	}

	mb := &meshBuffers{
		count:    drawCount(m),
		indices:  first(m.Indices),
		vertices: first(m.Vertices),
		colors:   first(m.Colors),
		lens:     [3]int{len(m.Indices), len(m.Vertices), len(m.Colors)},
	}
	var err error
	if mb.index, err = r.createBuffer("pick_index", gputypes.BufferUsageIndex, indexBytes(m.Indices)); err != nil {
		return nil, err
	}
	if mb.vertex, err = r.createBuffer("pick_vertex", gputypes.BufferUsageVertex, vertexBytes(m.Vertices)); err != nil {
		mb.destroy(r.device)
		return nil, err
	}
	if mb.color, err = r.createBuffer("pick_color", gputypes.BufferUsageVertex, colorBytes(m.Colors)); err != nil {
		mb.destroy(r.device)
		return nil, err
	}
	if cacheable {
		r.meshes[m.Key] = mb
	}
	return mb, nil
}

// Upload moves meshes to the GPU ahead of the first pick. Meshes without
// a key are skipped since they would not be kept.
func (r *Renderer) Upload(meshes []pick.Mesh) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	bytes := 0
	for i := range meshes {
		m := &meshes[i]
		if m.Key == nil {
			continue
		}
		if _, err := r.upload(m); err != nil {
			return fmt.Errorf("mesh %d: %w", i, err)
		}
		bytes += 2*len(m.Indices) + 2*len(m.Vertices) + colorStride*len(m.Colors)
	}
	logging.L().Debug("gpu: uploaded", "meshes", len(meshes), "bytes", bytes, "cached", len(r.meshes))
	return nil
}
