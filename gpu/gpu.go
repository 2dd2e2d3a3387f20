// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package gpu renders picking requests on a wgpu HAL device.
//
// Renderer implements pick.Renderer. Meshes are uploaded once per Mesh.Key
// and kept until Forget or Close. Each render draws into a small offscreen
// RGBA8 target with a Depth32Float attachment, copies it to a staging
// buffer and maps that buffer for readback.
//
// Build with the nogpu tag to leave this package out.
package gpu

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/anatomy/internal/logging"
)

// Errors returned by the gpu package.
var (
	// ErrNoDevice is returned when no usable device is available.
	ErrNoDevice = errors.New("gpu: no device")

	// ErrTimeout is returned when a submission does not complete in time.
	ErrTimeout = errors.New("gpu: timed out waiting for submission")

	// ErrClosed is returned by a closed Renderer.
	ErrClosed = errors.New("gpu: renderer closed")
)

// DefaultTimeout bounds the wait for one picking submission.
const DefaultTimeout = 2 * time.Second

// Option configures a Renderer.
type Option func(*Renderer)

// WithTimeout sets how long RenderSelection waits for the GPU.
func WithTimeout(d time.Duration) Option {
	return func(r *Renderer) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// Renderer draws picking requests with a HAL device. It is safe for
// concurrent use; renders are serialized.
type Renderer struct {
	mu sync.Mutex

	device hal.Device
	queue  hal.Queue

	// instance is set when the renderer opened its own device.
	instance hal.Instance
	owned    bool

	timeout time.Duration
	closed  bool

	pipe   *pipeline
	target *target
	meshes map[any]*meshBuffers
}

// NewRenderer returns a renderer on an existing device and queue. The
// caller keeps ownership of both.
func NewRenderer(device hal.Device, queue hal.Queue, opts ...Option) (*Renderer, error) {
	if device == nil || queue == nil {
		return nil, ErrNoDevice
	}
	r := &Renderer{
		device:  device,
		queue:   queue,
		timeout: DefaultTimeout,
		meshes:  make(map[any]*meshBuffers),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NewRendererFromProvider shares the device of a host application. The
// provider must also expose its HAL objects through HalDevice() any and
// HalQueue() any.
func NewRendererFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Renderer, error) {
	if provider == nil {
		return nil, ErrNoDevice
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrNoDevice)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrNoDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrNoDevice)
	}
	return NewRenderer(device, queue, opts...)
}

// Open creates a renderer on its own device from the given backend. The
// backend package must be linked in, for example by importing
// github.com/gogpu/wgpu/hal/vulkan or hal/noop.
func Open(variant gputypes.Backend, opts ...Option) (*Renderer, error) {
	backend, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("%w: backend %v not registered", ErrNoDevice, variant)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no adapters", ErrNoDevice)
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}
	logging.L().Info("gpu: device opened", "backend", variant, "adapter", selected.Info.Name)

	r, err := NewRenderer(openDev.Device, openDev.Queue, opts...)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	r.instance = instance
	r.owned = true
	return r, nil
}

// Forget releases the uploaded copy of the mesh with the given key.
func (r *Renderer) Forget(key any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mb, ok := r.meshes[key]; ok {
		mb.destroy(r.device)
		delete(r.meshes, key)
	}
}

// Uploaded returns the number of cached meshes.
func (r *Renderer) Uploaded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.meshes)
}

// Close releases every GPU resource. The device is destroyed only when
// the renderer opened it. Close is idempotent.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for k, mb := range r.meshes {
		mb.destroy(r.device)
		delete(r.meshes, k)
	}
	if r.target != nil {
		r.target.destroy(r.device)
		r.target = nil
	}
	if r.pipe != nil {
		r.pipe.destroy(r.device)
		r.pipe = nil
	}
	if r.owned {
		r.device.Destroy()
		if r.instance != nil {
			r.instance.Destroy()
		}
	}
	r.device = nil
	r.queue = nil
	r.instance = nil
}
