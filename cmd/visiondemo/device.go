package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/config"
	"github.com/gogpu/vision/cpu"
)

func openCPU(cfg *config.Config, log *slog.Logger) (vision.Device, func()) {
	d := cpu.New(cfg.CPUOptions()...)
	d.SetLogger(log)
	return d, d.Close
}

// dryBuffer is a buffer of dryDevice.
type dryBuffer struct{ desc vision.MemoryDescriptor }

func (b *dryBuffer) Descriptor() vision.MemoryDescriptor { return b.desc }

// dryDevice records kernels without evaluating them. plan uses it to
// print the kernels a cycle would submit.
type dryDevice struct {
	mu      sync.Mutex
	kernels []*vision.Kernel
}

func (d *dryDevice) Name() string { return "dry" }

func (d *dryDevice) Allocate(desc vision.MemoryDescriptor) (vision.Buffer, error) {
	return &dryBuffer{desc: desc}, nil
}

func (d *dryDevice) Upload(_ context.Context, img *vision.HostImage) (vision.Buffer, error) {
	return &dryBuffer{desc: img.Descriptor()}, nil
}

func (d *dryDevice) Submit(ctx context.Context, k *vision.Kernel, _ vision.Buffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kernels = append(d.kernels, k)
	return nil
}

func (d *dryDevice) Download(_ context.Context, b vision.Buffer) (*vision.HostImage, error) {
	desc := b.Descriptor()
	return vision.NewHostImage(desc.Type, desc.Dims)
}

func (d *dryDevice) Release(vision.Buffer) {}
