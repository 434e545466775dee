//go:build nogpu

package main

import (
	"errors"
	"log/slog"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/config"
)

var errNoGPU = errors.New("built with -tags nogpu")

func openDevice(cfg *config.Config, log *slog.Logger) (vision.Device, func(), error) {
	if cfg.Device == config.DeviceGPU {
		return nil, nil, errNoGPU
	}
	d, closeFn := openCPU(cfg, log)
	return d, closeFn, nil
}

func kernelSource(*vision.Kernel) (string, error) {
	return "", errNoGPU
}
