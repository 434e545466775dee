//go:build !nogpu

package main

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/vision/config"
	"github.com/gogpu/vision/gpu"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withoutGPU makes every gpu device request fail for the test.
func withoutGPU(t *testing.T) {
	t.Helper()
	prev := newGPU
	newGPU = func() (*gpu.Device, error) {
		return nil, errors.New("gpu: no hardware adapter: \"Software Renderer\"")
	}
	t.Cleanup(func() { newGPU = prev })
}

func TestOpenDeviceAutoFallsBackToCPU(t *testing.T) {
	withoutGPU(t)

	dev, closeDev, err := openDevice(&config.Config{Device: config.DeviceAuto}, discardLogger())
	require.NoError(t, err)
	defer closeDev()
	assert.Equal(t, "cpu", dev.Name())
}

func TestOpenDeviceGPURequired(t *testing.T) {
	withoutGPU(t)

	_, _, err := openDevice(&config.Config{Device: config.DeviceGPU}, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpu device")
}

func TestOpenDeviceCPU(t *testing.T) {
	called := false
	prev := newGPU
	newGPU = func() (*gpu.Device, error) {
		called = true
		return nil, errors.New("unused")
	}
	t.Cleanup(func() { newGPU = prev })

	dev, closeDev, err := openDevice(&config.Config{Device: config.DeviceCPU}, discardLogger())
	require.NoError(t, err)
	defer closeDev()
	assert.Equal(t, "cpu", dev.Name())
	assert.False(t, called, "cpu mode must not touch the gpu")
}

func TestOpenDeviceAutoNeverPicksSoftwareAdapter(t *testing.T) {
	dev, closeDev, err := openDevice(&config.Config{Device: config.DeviceAuto}, discardLogger())
	require.NoError(t, err)
	defer closeDev()

	g, ok := dev.(*gpu.Device)
	if !ok {
		assert.Equal(t, "cpu", dev.Name())
		return
	}
	assert.True(t, strings.HasPrefix(g.Name(), "gpu:"))
	assert.NotEqual(t, "Software Renderer", g.AdapterInfo().Name)
}

func TestRunEdgeAutoIsNotBlack(t *testing.T) {
	in := writePNG(t, 16, 16)
	out := t.TempDir() + "/edge.png"
	execute(t, "run", "-p", "edge", "-o", out, in)

	img, err := decodeFile(out)
	require.NoError(t, err)
	nonZero := false
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y && !nonZero; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if r, _, _, _ := img.At(x, y).RGBA(); r != 0 {
				nonZero = true
				break
			}
		}
	}
	assert.True(t, nonZero, "edge image is entirely black")
}
