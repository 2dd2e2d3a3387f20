// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/anatomy/pick"
)

// copyPitchAlignment is the required BytesPerRow alignment of texture to
// buffer copies.
const copyPitchAlignment = 256

// target is the offscreen attachment set for one surface size.
type target struct {
	width, height uint32
	pitch         uint32

	color     hal.Texture
	colorView hal.TextureView
	depth     hal.Texture
	depthView hal.TextureView
	staging   hal.Buffer
}

func (t *target) destroy(device hal.Device) {
	if t.staging != nil {
		device.DestroyBuffer(t.staging)
	}
	if t.depthView != nil {
		device.DestroyTextureView(t.depthView)
	}
	if t.depth != nil {
		device.DestroyTexture(t.depth)
	}
	if t.colorView != nil {
		device.DestroyTextureView(t.colorView)
	}
	if t.color != nil {
		device.DestroyTexture(t.color)
	}
	*t = target{}
}

func alignedPitch(width uint32) uint32 {
	return (width*4 + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
}

func newTarget(device hal.Device, w, h uint32) (*target, error) {
	t := &target{width: w, height: h, pitch: alignedPitch(w)}
	size := hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1}
	var err error

	t.color, err = device.CreateTexture(&hal.TextureDescriptor{
		Label:         "pick_color",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        colorFormat,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create pick color texture: %w", err)
	}
	t.colorView, err = device.CreateTextureView(t.color, &hal.TextureViewDescriptor{
		Label: "pick_color_view",
	})
	if err != nil {
		t.destroy(device)
		return nil, fmt.Errorf("create pick color view: %w", err)
	}

	t.depth, err = device.CreateTexture(&hal.TextureDescriptor{
		Label:         "pick_depth",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        depthFormat,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		t.destroy(device)
		return nil, fmt.Errorf("create pick depth texture: %w", err)
	}
	t.depthView, err = device.CreateTextureView(t.depth, &hal.TextureViewDescriptor{
		Label: "pick_depth_view",
	})
	if err != nil {
		t.destroy(device)
		return nil, fmt.Errorf("create pick depth view: %w", err)
	}

	t.staging, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label: "pick_staging",
		Size:  uint64(t.pitch) * uint64(h),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		t.destroy(device)
		return nil, fmt.Errorf("create pick staging buffer: %w", err)
	}
	return t, nil
}

// ensure prepares the pipeline and a target of the given size. The caller
// holds r.mu.
func (r *Renderer) ensure(w, h uint32) error {
	if r.pipe == nil {
		p, err := newPipeline(r.device)
		if err != nil {
			return err
		}
		r.pipe = p
	}
	if r.target != nil && r.target.width == w && r.target.height == h {
		return nil
	}
	if r.target != nil {
		r.target.destroy(r.device)
		r.target = nil
	}
	t, err := newTarget(r.device, w, h)
	if err != nil {
		return err
	}
	r.target = t
	return nil
}

// RenderSelection implements pick.Renderer.
func (r *Renderer) RenderSelection(req *pick.Request, dst *pick.Surface) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if dst.Width <= 0 || dst.Height <= 0 {
		return fmt.Errorf("gpu: empty surface %dx%d", dst.Width, dst.Height)
	}
	if err := r.ensure(uint32(dst.Width), uint32(dst.Height)); err != nil {
		return err
	}

	draws := make([]*meshBuffers, 0, len(req.Meshes))
	var transient []*meshBuffers
	defer func() {
		for _, mb := range transient {
			mb.destroy(r.device)
		}
	}()
	for i := range req.Meshes {
		m := &req.Meshes[i]
		mb, err := r.upload(m)
		if err != nil {
			return fmt.Errorf("mesh %d: %w", i, err)
		}
		if m.Key == nil {
			transient = append(transient, mb)
		}
		draws = append(draws, mb)
	}

	if err := r.queue.WriteBuffer(r.pipe.uniformBuf, 0, encodeUniforms(req.ViewProjection, req.ColorScale)); err != nil {
		return fmt.Errorf("write pick uniforms: %w", err)
	}
	if err := r.submit(draws); err != nil {
		return err
	}
	return r.readback(dst)
}

func (r *Renderer) submit(draws []*meshBuffers) error {
	t := r.target
	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "pick_encoder",
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	defer encoder.Destroy()
	if err := encoder.BeginEncoding("pick_frame"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "pick_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       t.colorView,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		}},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:            t.depthView,
			DepthLoadOp:     gputypes.LoadOpClear,
			DepthStoreOp:    gputypes.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	})
	rp.SetPipeline(r.pipe.render)
	rp.SetBindGroup(0, r.pipe.bindGroup, nil)
	rp.SetViewport(0, 0, float32(t.width), float32(t.height), 0, 1)
	for _, mb := range draws {
		if mb.count == 0 {
			continue
		}
		rp.SetVertexBuffer(0, mb.vertex, 0)
		rp.SetVertexBuffer(1, mb.color, 0)
		rp.SetIndexBuffer(mb.index, gputypes.IndexFormatUint16, 0)
		rp.DrawIndexed(mb.count, 1, 0, 0, 0)
	}
	rp.End()

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.color,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(t.color, t.staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: t.pitch, RowsPerImage: t.height},
		TextureBase:  hal.ImageCopyTexture{Texture: t.color, MipLevel: 0},
		Size:         hal.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.color,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer r.device.FreeCommandBuffer(cmdBuf)

	idx, err := r.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return r.wait(idx)
}

// wait polls the queue until submission idx has completed.
func (r *Renderer) wait(idx uint64) error {
	deadline := time.Now().Add(r.timeout)
	for r.queue.PollCompleted() < idx {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: submission %d", ErrTimeout, idx)
		}
		time.Sleep(50 * time.Microsecond)
	}
	return nil
}

func (r *Renderer) readback(dst *pick.Surface) error {
	t := r.target
	size := uint64(t.pitch) * uint64(t.height)
	m, err := r.device.MapBuffer(t.staging, 0, size)
	if err != nil {
		return fmt.Errorf("map pick staging buffer: %w", err)
	}
	src := unsafe.Slice((*byte)(m.Ptr), size)
	copyRows(dst, src, int(t.pitch))
	if err := r.device.UnmapBuffer(t.staging); err != nil {
		return fmt.Errorf("unmap pick staging buffer: %w", err)
	}
	return nil
}

// copyRows copies a top-down, pitch-aligned RGBA8 readback into the
// bottom-up surface.
func copyRows(dst *pick.Surface, src []byte, pitch int) {
	row := 4 * dst.Width
	for y := range dst.Height {
		from := src[y*pitch : y*pitch+row]
		to := dst.Height - 1 - y
		copy(dst.Pix[to*row:(to+1)*row], from)
	}
}
