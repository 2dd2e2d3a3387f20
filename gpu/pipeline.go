// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/anatomy/codec"
	"github.com/gogpu/anatomy/internal/logging"
	"github.com/gogpu/anatomy/pick"
)

//go:embed shaders/pick.wgsl
var pickShaderSource string

const (
	colorFormat = gputypes.TextureFormatRGBA8Unorm
	depthFormat = gputypes.TextureFormatDepth32Float

	// vertexStride is the byte size of one decoded vertex.
	vertexStride = codec.VertexComponents * 2

	// colorStride is the byte size of one widened selection color.
	colorStride = 4

	// uniformSize is view_proj (64), color_scale and position_w, padded
	// to 16 bytes.
	uniformSize = 80
)

// pipeline holds the objects shared by every render.
type pipeline struct {
	shader        hal.ShaderModule
	uniformLayout hal.BindGroupLayout
	pipeLayout    hal.PipelineLayout
	render        hal.RenderPipeline
	uniformBuf    hal.Buffer
	bindGroup     hal.BindGroup
}

// shaderSource compiles the picking shader to SPIR-V. Backends that take
// WGSL directly get the source when compilation fails.
func shaderSource() hal.ShaderSource {
	spirv, err := compileSPIRV(pickShaderSource)
	if err != nil {
		logging.L().Warn("gpu: SPIR-V compilation failed, passing WGSL", "err", err)
		return hal.ShaderSource{WGSL: pickShaderSource}
	}
	return hal.ShaderSource{WGSL: pickShaderSource, SPIRV: spirv}
}

// compileSPIRV compiles WGSL to little-endian SPIR-V words.
func compileSPIRV(src string) ([]uint32, error) {
	b, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("compile shader: %d bytes is not whole words", len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return words, nil
}

func vertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: vertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatSint16x4, Offset: 0, ShaderLocation: 0}, // x, y, z, nx
			},
		},
		{
			ArrayStride: colorStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatUint32, Offset: 0, ShaderLocation: 1},
			},
		},
	}
}

func newPipeline(device hal.Device) (*pipeline, error) {
	p := &pipeline{}
	var err error

	p.shader, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "pick_shader",
		Source: shaderSource(),
	})
	if err != nil {
		return nil, fmt.Errorf("create pick shader: %w", err)
	}

	p.uniformLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "pick_uniform_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		p.destroy(device)
		return nil, fmt.Errorf("create pick uniform layout: %w", err)
	}

	p.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "pick_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.uniformLayout},
	})
	if err != nil {
		p.destroy(device)
		return nil, fmt.Errorf("create pick pipeline layout: %w", err)
	}

	p.render, err = device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "pick_pipeline",
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.shader,
			EntryPoint: "vs_main",
			Buffers:    vertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     p.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{Format: colorFormat, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            depthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  gputypes.CullModeBack,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		p.destroy(device)
		return nil, fmt.Errorf("create pick pipeline: %w", err)
	}

	p.uniformBuf, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label: "pick_uniforms",
		Size:  uniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		p.destroy(device)
		return nil, fmt.Errorf("create pick uniform buffer: %w", err)
	}

	p.bindGroup, err = device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "pick_bind_group",
		Layout: p.uniformLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: p.uniformBuf.NativeHandle(), Offset: 0, Size: uniformSize,
			}},
		},
	})
	if err != nil {
		p.destroy(device)
		return nil, fmt.Errorf("create pick bind group: %w", err)
	}
	return p, nil
}

// destroy releases the pipeline objects in reverse creation order.
func (p *pipeline) destroy(device hal.Device) {
	if p.bindGroup != nil {
		device.DestroyBindGroup(p.bindGroup)
		p.bindGroup = nil
	}
	if p.uniformBuf != nil {
		device.DestroyBuffer(p.uniformBuf)
		p.uniformBuf = nil
	}
	if p.render != nil {
		device.DestroyRenderPipeline(p.render)
		p.render = nil
	}
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.uniformLayout != nil {
		device.DestroyBindGroupLayout(p.uniformLayout)
		p.uniformLayout = nil
	}
	if p.shader != nil {
		device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}

// encodeUniforms lays out the uniform block of one request.
func encodeUniforms(vp mgl32.Mat4, colorScale uint32) []byte {
	buf := make([]byte, uniformSize)
	le := binary.LittleEndian
	for i, v := range vp {
		le.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	le.PutUint32(buf[64:], colorScale)
	le.PutUint32(buf[68:], math.Float32bits(pick.PositionW))
	return buf
}
