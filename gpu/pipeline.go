//go:build !nogpu

package gpu

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu"
)

// pipeline is a compiled kernel shader with its layouts.
type pipeline struct {
	shader   *wgpu.ShaderModule
	layout   *wgpu.BindGroupLayout
	plLayout *wgpu.PipelineLayout
	compute  *wgpu.ComputePipeline
	inputs   int
}

func (p *pipeline) release() {
	p.compute.Release()
	p.plLayout.Release()
	p.layout.Release()
	p.shader.Release()
}

// pipelineCache caches compute pipelines by shader source hash.
//
// Thread Safety:
// pipelineCache is safe for concurrent use. It uses RWMutex with
// double-check locking.
type pipelineCache struct {
	mu      sync.RWMutex
	entries map[uint64]*pipeline

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newPipelineCache() *pipelineCache {
	return &pipelineCache{entries: make(map[uint64]*pipeline)}
}

func hashSource(src string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(src))
	return h.Sum64()
}

// getOrCreate returns the pipeline for src, compiling it on first use.
func (c *pipelineCache) getOrCreate(dev *wgpu.Device, src string, inputs int) (*pipeline, error) {
	key := hashSource(src)

	c.mu.RLock()
	p, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.entries[key]; ok {
		c.hits.Add(1)
		return p, nil
	}
	c.misses.Add(1)

	p, err := createPipeline(dev, src, inputs)
	if err != nil {
		return nil, err
	}
	c.entries[key] = p
	return p, nil
}

// stats returns the cache hits and misses.
func (c *pipelineCache) stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// clear releases every cached pipeline.
func (c *pipelineCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, p := range c.entries {
		p.release()
		delete(c.entries, k)
	}
}

// Validate compiles a WGSL source with naga without touching a device.
func Validate(src string) error {
	if _, err := naga.Compile(src); err != nil {
		return fmt.Errorf("gpu: shader compilation: %w", err)
	}
	return nil
}

func createPipeline(dev *wgpu.Device, src string, inputs int) (*pipeline, error) {
	if err := Validate(src); err != nil {
		return nil, err
	}

	shader, err := dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "vision-kernel", WGSL: src,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create shader: %w", err)
	}

	entries := []wgpu.BindGroupLayoutEntry{
		{Binding: 0, Visibility: wgpu.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
	}
	for i := range inputs {
		entries = append(entries, wgpu.BindGroupLayoutEntry{
			Binding:    uint32(i + 1), //nolint:gosec // bounded by kernel inputs
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
		})
	}
	layout, err := dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "vision-kernel-bgl", Entries: entries,
	})
	if err != nil {
		shader.Release()
		return nil, fmt.Errorf("gpu: create bind group layout: %w", err)
	}

	plLayout, err := dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label: "vision-kernel-pl", BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		layout.Release()
		shader.Release()
		return nil, fmt.Errorf("gpu: create pipeline layout: %w", err)
	}

	compute, err := dev.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "vision-kernel", Layout: plLayout, Module: shader, EntryPoint: "main",
	})
	if err != nil {
		plLayout.Release()
		layout.Release()
		shader.Release()
		return nil, fmt.Errorf("gpu: create compute pipeline: %w", err)
	}

	return &pipeline{shader: shader, layout: layout, plLayout: plLayout, compute: compute, inputs: inputs}, nil
}
