//go:build !nogpu

package main

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/config"
	"github.com/gogpu/vision/gpu"
)

// newGPU opens the gpu device. Only hardware adapters are accepted, so
// auto mode never picks a CPU renderer over the cpu device.
var newGPU = func() (*gpu.Device, error) { return gpu.New() }

// openDevice returns the configured device and its close function. In
// auto mode a missing GPU adapter falls back to the cpu device.
func openDevice(cfg *config.Config, log *slog.Logger) (vision.Device, func(), error) {
	if cfg.Device == config.DeviceCPU {
		d, closeFn := openCPU(cfg, log)
		return d, closeFn, nil
	}

	d, err := newGPU()
	if err != nil {
		if cfg.Device == config.DeviceGPU {
			return nil, nil, fmt.Errorf("gpu device: %w", err)
		}
		log.Info("gpu not available, using cpu", "err", err)
		cd, closeFn := openCPU(cfg, log)
		return cd, closeFn, nil
	}
	d.SetLogger(log)
	return d, d.Close, nil
}

// kernelSource returns the WGSL shader generated for k.
func kernelSource(k *vision.Kernel) (string, error) {
	return gpu.Source(k)
}
