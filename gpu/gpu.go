//go:build !nogpu

// Package gpu implements vision.Device on top of gogpu/wgpu.
//
// Every kernel is translated to one WGSL compute shader: each fused node
// becomes a function, operands are read through the border policy, and the
// result is written once per output pixel. Shaders are validated with naga
// and compiled pipelines are cached by source.
//
// Operations must implement vision.WGSLUnaryOp, vision.WGSLBinaryOp or
// vision.WGSLNeighborOp; all operations in package ops do. Sums are
// accumulated in f32, so results may differ from the cpu device in the
// last bits. A neighbour node whose filter window reaches past its declared
// halo is rejected with vision.ErrShape when its shader is generated.
//
// New only accepts hardware adapters; CPU renderers and the placeholder
// adapter wgpu returns without a usable backend fail with ErrNoHardware
// unless WithSoftwareAdapter is given.
//
// Usage:
//
//	dev, err := gpu.Register()
//	if err != nil {
//	    // no GPU (ErrNoHardware): fall back to cpu.New()
//	}
//	defer dev.Close()
//
// Build with -tags nogpu to exclude this package.
package gpu

import "github.com/gogpu/vision"

// Register creates a device on the default adapter and makes it the
// vision default device. If GPU initialization fails (no Vulkan, Metal or
// DX12 available) the error is logged and returned and the default device
// is left unchanged.
func Register() (*Device, error) {
	d, err := New()
	if err != nil {
		vision.Logger().Warn("gpu: device not available", "err", err)
		return nil, err
	}
	if _, err := vision.RegisterDevice(d); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}
