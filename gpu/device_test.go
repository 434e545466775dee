//go:build !nogpu

package gpu

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/cpu"
	"github.com/gogpu/vision/ops"
)

// newTestDevice returns a gpu device or skips when no adapter is available.
// Software adapters are accepted so the shaders run wherever wgpu does.
func newTestDevice(t *testing.T) *Device {
	t.Helper()
	d, err := New(WithSoftwareAdapter())
	if err != nil {
		t.Skipf("no GPU adapter: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestDeviceRoundTrip(t *testing.T) {
	d := newTestDevice(t)
	ctx := context.Background()

	img, _ := vision.FromSlice([]float32{1, 2, 3, 4, 5, 6}, 3, 2, 1)
	b, err := d.Upload(ctx, img)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	defer d.Release(b)

	got, err := d.Download(ctx, b)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	for i := range img.Pix {
		if got.Pix[i] != img.Pix[i] {
			t.Errorf("Pix[%d] = %v, want %v", i, got.Pix[i], img.Pix[i])
		}
	}
}

// stencilTree is dilate(scale(convolve(signal, box3) over 8x6), square3)
// over a 12x10 signal of type et. The shaped convolve has StencilConds set,
// so FuseAuto and FuseAll place different boundaries.
func stencilTree(t *testing.T, et vision.ElementType) vision.Node {
	t.Helper()
	img, err := vision.NewHostImage(et, vision.Dims{Cols: 12, Rows: 10})
	if err != nil {
		t.Fatalf("NewHostImage: %v", err)
	}
	for y := 0; y < 10; y++ {
		for x := 0; x < 12; x++ {
			var p vision.Pixel
			for c := range p {
				v := float32((x*7+y*5+c*3)%17) / 4
				if et.Scalar == vision.Uint8 {
					v = float32((x*7 + y*5 + c*3) % 17 * 13)
				}
				p[c] = v
			}
			img.Set(x, y, p)
		}
	}
	sig, _ := vision.NewLeaf(img, vision.StorageBuffer2D)
	box, _ := vision.NewLeaf(ops.BoxFilter(3), vision.StorageBuffer2D)
	se, _ := vision.NewLeaf(ops.SquareElement(3), vision.StorageBuffer2D)

	blur, err := vision.NeighbourShape(ops.Convolve{}, vision.Shape{Cols: 8, Rows: 6}, sig, box)
	if err != nil {
		t.Fatalf("NeighbourShape: %v", err)
	}
	scaled, err := vision.Point(ops.Scale{Factor: 0.5}, blur)
	if err != nil {
		t.Fatalf("Point: %v", err)
	}
	out, err := vision.Neighbour(ops.Dilate{}, scaled, se)
	if err != nil {
		t.Fatalf("Neighbour: %v", err)
	}
	return out
}

func TestDeviceMatchesCPU(t *testing.T) {
	d := newTestDevice(t)
	ref := cpu.New(cpu.WithWorkers(2))
	defer ref.Close()

	borders := []vision.BorderPolicy{vision.BorderClamp, vision.BorderZero, vision.BorderWrap, vision.BorderMirror}
	modes := []vision.FusionMode{vision.FuseAuto, vision.FuseAll}

	for _, scalar := range []vision.ScalarKind{vision.Float32, vision.Uint8} {
		for ch := 1; ch <= 4; ch++ {
			et := vision.ElementType{Scalar: scalar, Channels: ch}
			for _, mode := range modes {
				for _, b := range borders {
					name := fmt.Sprintf("%s/%s/%s", et, mode, b)
					t.Run(name, func(t *testing.T) {
						opts := []vision.RunOption{vision.WithBorder(b), vision.WithFusion(mode)}
						want := run(t, ref, stencilTree(t, et), opts...)
						got := run(t, d, stencilTree(t, et), opts...)
						if got.Type != want.Type || got.Dims != want.Dims {
							t.Fatalf("got %s %s, cpu gave %s %s", got.Type, got.Dims, want.Type, want.Dims)
						}
						for i := range want.Pix {
							if math.Abs(float64(got.Pix[i]-want.Pix[i])) > 1e-4 {
								t.Fatalf("Pix[%d] = %v, cpu gave %v", i, got.Pix[i], want.Pix[i])
							}
						}
					})
				}
			}
		}
	}

	if d.Live() != 0 {
		t.Errorf("Live() = %d after releasing every result", d.Live())
	}
	if hits, misses := d.PipelineStats(); misses == 0 || hits+misses == 0 {
		t.Error("no pipeline was compiled")
	}
}

func run(t *testing.T, d vision.Device, root vision.Node, opts ...vision.RunOption) *vision.HostImage {
	t.Helper()
	res, err := vision.Run(context.Background(), root, append(opts, vision.WithDevice(d))...)
	if err != nil {
		t.Fatalf("%s: Run: %v", d.Name(), err)
	}
	defer res.Release()
	out, err := res.Download(context.Background())
	if err != nil {
		t.Fatalf("%s: Download: %v", d.Name(), err)
	}
	return out
}

func TestDeviceHaloViolation(t *testing.T) {
	d := newTestDevice(t)

	img, _ := vision.FromSlice(make([]float32, 16), 4, 4, 1)
	sig, _ := vision.NewLeaf(img, vision.StorageBuffer2D)
	box, _ := vision.NewLeaf(ops.BoxFilter(3), vision.StorageBuffer2D)
	n, _ := vision.NeighbourHalo(ops.Convolve{}, vision.Halo{}, sig, box)

	_, err := vision.Run(context.Background(), n, vision.WithDevice(d))
	if !errors.Is(err, vision.ErrShape) {
		t.Fatalf("Run err = %v, want ErrShape", err)
	}
	if d.Live() != 0 {
		t.Errorf("Live() after failed cycle = %d, want 0", d.Live())
	}
}

func TestNewRequiresHardware(t *testing.T) {
	d, err := New()
	if err != nil {
		if !errors.Is(err, ErrNoHardware) {
			t.Skipf("no adapter: %v", err)
		}
		return
	}
	defer d.Close()
	if !hardware(d.AdapterInfo()) {
		t.Errorf("New accepted %+v", d.AdapterInfo())
	}
}

func TestHardware(t *testing.T) {
	tests := []struct {
		info gputypes.AdapterInfo
		want bool
	}{
		{gputypes.AdapterInfo{DeviceType: gputypes.DeviceTypeDiscreteGPU, Backend: gputypes.BackendVulkan}, true},
		{gputypes.AdapterInfo{DeviceType: gputypes.DeviceTypeIntegratedGPU, Backend: gputypes.BackendMetal}, true},
		{gputypes.AdapterInfo{DeviceType: gputypes.DeviceTypeVirtualGPU, Backend: gputypes.BackendVulkan}, true},
		{gputypes.AdapterInfo{DeviceType: gputypes.DeviceTypeCPU, Backend: gputypes.BackendVulkan}, false},
		{gputypes.AdapterInfo{DeviceType: gputypes.DeviceTypeOther, Backend: gputypes.BackendGL}, false},
		{gputypes.AdapterInfo{Name: "Software Renderer", DeviceType: gputypes.DeviceTypeDiscreteGPU, Backend: gputypes.BackendEmpty}, false},
	}
	for _, tt := range tests {
		if got := hardware(tt.info); got != tt.want {
			t.Errorf("hardware(%+v) = %v, want %v", tt.info, got, tt.want)
		}
	}
}

func TestProviderInfo(t *testing.T) {
	info := providerInfo(gpucontext.AdapterInfo{Name: "llvmpipe", Type: gpucontext.AdapterTypeSoftware})
	if info.Name != "llvmpipe" || info.DeviceType != gputypes.DeviceTypeCPU {
		t.Errorf("providerInfo = %+v", info)
	}
	if providerInfo(gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeDiscrete}).DeviceType != gputypes.DeviceTypeDiscreteGPU {
		t.Error("discrete adapter not mapped")
	}
}

func TestDeviceClosed(t *testing.T) {
	d := newTestDevice(t)
	d.Close()
	d.Close()

	desc, _ := vision.ResolveOutput(vision.GrayF32, vision.StorageBuffer2D, 2, 2, 0)
	if _, err := d.Allocate(desc); err != ErrClosed {
		t.Errorf("Allocate on closed device: err = %v, want ErrClosed", err)
	}
}
