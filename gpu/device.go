//go:build !nogpu

package gpu

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/vision"
	"github.com/gogpu/wgpu"
	"github.com/gogpu/wgpu/hal"

	// Register all available GPU backends (Vulkan, DX12, GLES, Metal, etc.)
	_ "github.com/gogpu/wgpu/hal/allbackends"
)

// ErrClosed is returned by operations on a closed device.
var ErrClosed = errors.New("gpu: device closed")

// ErrNoHardware is returned by New when only a non-GPU adapter is
// available.
var ErrNoHardware = errors.New("gpu: no hardware adapter")

// Device runs kernels as WGSL compute shaders.
//
// Thread Safety:
// Device is safe for concurrent use. Command submission is serialized.
type Device struct {
	mu       sync.Mutex
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	name     string
	info     gputypes.AdapterInfo
	closed   bool

	// external is true when the wgpu device wraps HAL objects owned by a
	// provider. It is never released by Close.
	external bool

	pipelines *pipelineCache
	live      atomic.Int64
}

var _ vision.Device = (*Device)(nil)

// Option configures New.
type Option func(*options)

type options struct {
	allowSoftware bool
}

// WithSoftwareAdapter lets New accept an adapter that is not a GPU, such
// as a CPU renderer or the placeholder adapter wgpu returns when no
// backend is usable.
func WithSoftwareAdapter() Option {
	return func(o *options) {
		o.allowSoftware = true
	}
}

// hardware reports whether info describes a real GPU.
func hardware(info gputypes.AdapterInfo) bool {
	if info.Backend == gputypes.BackendEmpty {
		return false
	}
	switch info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU, gputypes.DeviceTypeVirtualGPU:
		return true
	}
	return false
}

// New requests a high-performance adapter and creates a device on it.
// Unless WithSoftwareAdapter is given, New fails with ErrNoHardware when
// the adapter is not a discrete, integrated or virtual GPU.
func New(opts ...Option) (*Device, error) {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: create instance: %w", err)
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("gpu: request adapter: %w", err)
	}
	info := adapter.Info()
	if !o.allowSoftware && !hardware(info) {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: %q (%s, %s)", ErrNoHardware, info.Name, info.DeviceType, info.Backend)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("gpu: request device: %w", err)
	}

	d := &Device{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		name:      "gpu:" + info.Name,
		info:      info,
		pipelines: newPipelineCache(),
	}
	slogger().Info("gpu: device created", "adapter", info.Name, "type", info.DeviceType, "backend", info.Backend)
	return d, nil
}

// NewFromProvider creates a device sharing the GPU of an external
// provider, e.g. a gogpu application. The provider must also implement
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
//
// The shared device stays owned by the provider.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("gpu: provider does not expose HAL types")
	}
	halDevice, ok := hp.HalDevice().(hal.Device)
	if !ok || halDevice == nil {
		return nil, fmt.Errorf("gpu: provider HalDevice is not hal.Device")
	}
	halQueue, ok := hp.HalQueue().(hal.Queue)
	if !ok || halQueue == nil {
		return nil, fmt.Errorf("gpu: provider HalQueue is not hal.Queue")
	}

	device, err := wgpu.NewDeviceFromHAL(halDevice, halQueue, 0, wgpu.DefaultLimits(), "vision")
	if err != nil {
		return nil, fmt.Errorf("gpu: wrap provider device: %w", err)
	}

	info := providerInfo(provider.AdapterInfo())
	slogger().Info("gpu: using shared device", "adapter", info.Name)
	return &Device{
		device:    device,
		name:      "gpu:" + info.Name,
		info:      info,
		external:  true,
		pipelines: newPipelineCache(),
	}, nil
}

// providerInfo converts a provider's adapter description. The backend is
// not reported by providers and stays BackendEmpty.
func providerInfo(p gpucontext.AdapterInfo) gputypes.AdapterInfo {
	info := gputypes.AdapterInfo{Name: p.Name, DeviceType: gputypes.DeviceTypeOther}
	switch p.Type {
	case gpucontext.AdapterTypeDiscrete:
		info.DeviceType = gputypes.DeviceTypeDiscreteGPU
	case gpucontext.AdapterTypeIntegrated:
		info.DeviceType = gputypes.DeviceTypeIntegratedGPU
	case gpucontext.AdapterTypeSoftware:
		info.DeviceType = gputypes.DeviceTypeCPU
	}
	return info
}

// Name returns "gpu:" followed by the adapter name.
func (d *Device) Name() string { return d.name }

// AdapterInfo describes the adapter the device runs on.
func (d *Device) AdapterInfo() gputypes.AdapterInfo { return d.info }

// SetLogger receives the logger from vision.SetLogger.
func (d *Device) SetLogger(l *slog.Logger) { setLogger(l) }

// Live returns the number of buffers allocated and not yet released.
func (d *Device) Live() int { return int(d.live.Load()) }

// PipelineStats returns pipeline cache hits and misses.
func (d *Device) PipelineStats() (hits, misses uint64) { return d.pipelines.stats() }

// Close releases cached pipelines and, unless the device is shared, the
// device itself. Close is idempotent.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true

	if n := d.live.Load(); n > 0 {
		slogger().Warn("gpu: device closed with live buffers", "buffers", n)
	}
	d.pipelines.clear()
	if !d.external {
		d.device.Release()
		d.adapter.Release()
		d.instance.Release()
	}
	d.device = nil
}

// buffer is device memory holding Len() float32 values.
type buffer struct {
	dev      *Device
	desc     vision.MemoryDescriptor
	buf      *wgpu.Buffer
	released atomic.Bool
}

func (b *buffer) Descriptor() vision.MemoryDescriptor { return b.desc }

// Allocate creates a storage buffer for desc.
func (d *Device) Allocate(desc vision.MemoryDescriptor) (vision.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocateLocked(desc)
}

func (d *Device) allocateLocked(desc vision.MemoryDescriptor) (*buffer, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if desc.Len() <= 0 {
		return nil, fmt.Errorf("%w: cannot allocate %s", vision.ErrShape, desc)
	}
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.String(),
		Size:  desc.ByteSize(),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create buffer: %w", err)
	}
	d.live.Add(1)
	return &buffer{dev: d, desc: desc, buf: buf}, nil
}

// Upload copies a host image to a new buffer.
func (d *Device) Upload(_ context.Context, img *vision.HostImage) (vision.Buffer, error) {
	if img == nil {
		return nil, vision.ErrNilNode
	}
	desc := img.Descriptor()
	desc.Storage = vision.StorageBuffer2D
	if len(img.Pix) != desc.Len() {
		return nil, fmt.Errorf("%w: %d values for %s", vision.ErrShape, len(img.Pix), desc)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.allocateLocked(desc)
	if err != nil {
		return nil, err
	}
	if err := d.device.Queue().WriteBuffer(b.buf, 0, encode(img.Pix)); err != nil {
		d.releaseLocked(b)
		return nil, fmt.Errorf("gpu: write buffer: %w", err)
	}
	return b, nil
}

// Submit compiles k, or fetches it from the pipeline cache, and dispatches
// it over out.
func (d *Device) Submit(ctx context.Context, k *vision.Kernel, out vision.Buffer) error {
	ob, err := d.own(out)
	if err != nil {
		return err
	}
	if ob.desc.Dims != k.Output.Dims || ob.desc.Type != k.Output.Type {
		return fmt.Errorf("%w: kernel %s writes %s %s into a %s %s buffer", vision.ErrShape,
			k.Name, k.Output.Type, k.Output.Dims, ob.desc.Type, ob.desc.Dims)
	}
	inputs := make([]*buffer, len(k.Inputs))
	for i, in := range k.Inputs {
		if inputs[i], err = d.own(in); err != nil {
			return err
		}
	}

	src, err := Source(k)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	p, err := d.pipelines.getOrCreate(d.device, src, len(inputs))
	if err != nil {
		return err
	}

	entries := []wgpu.BindGroupEntry{{Binding: 0, Buffer: ob.buf, Size: ob.desc.ByteSize()}}
	for i, in := range inputs {
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: uint32(i + 1), //nolint:gosec // bounded by kernel inputs
			Buffer:  in.buf,
			Size:    in.desc.ByteSize(),
		})
	}
	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label: k.Name, Layout: p.layout, Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("gpu: create bind group: %w", err)
	}
	defer bg.Release()

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("gpu: create encoder: %w", err)
	}
	pass, err := encoder.BeginComputePass(nil)
	if err != nil {
		return fmt.Errorf("gpu: begin compute pass: %w", err)
	}
	pass.SetPipeline(p.compute)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(groups(k.Output.Dims.Cols, k.Tile.GroupCols), groups(k.Output.Dims.Rows, k.Tile.GroupRows), 1)
	if err := pass.End(); err != nil {
		return fmt.Errorf("gpu: end compute pass: %w", err)
	}
	cmd, err := encoder.Finish()
	if err != nil {
		return fmt.Errorf("gpu: finish encoder: %w", err)
	}
	if _, err := d.device.Queue().Submit(cmd); err != nil {
		return fmt.Errorf("gpu: submit: %w", err)
	}

	slogger().Debug("gpu: kernel submitted", "kernel", k.Name, "inputs", len(inputs), "output", k.Output.String())
	return nil
}

// Download copies a buffer back to host memory through a staging buffer.
func (d *Device) Download(ctx context.Context, b vision.Buffer) (*vision.HostImage, error) {
	src, err := d.own(b)
	if err != nil {
		return nil, err
	}
	size := src.desc.ByteSize()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "vision-staging",
		Size:  size,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("gpu: create staging buffer: %w", err)
	}
	defer staging.Release()

	err = d.copyLocked(src.buf, staging, size)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := staging.Map(ctx, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("gpu: map staging buffer: %w", err)
	}
	rng, err := staging.MappedRange(0, size)
	if err != nil {
		_ = staging.Unmap()
		return nil, fmt.Errorf("gpu: staging mapped range: %w", err)
	}
	img, err := vision.NewHostImage(src.desc.Type, src.desc.Dims)
	if err != nil {
		_ = staging.Unmap()
		return nil, err
	}
	decode(img.Pix, rng.Bytes())
	if err := staging.Unmap(); err != nil {
		return nil, fmt.Errorf("gpu: unmap staging buffer: %w", err)
	}
	return img, nil
}

func (d *Device) copyLocked(src, dst *wgpu.Buffer, size uint64) error {
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("gpu: create encoder: %w", err)
	}
	encoder.CopyBufferToBuffer(src, 0, dst, 0, size)
	cmd, err := encoder.Finish()
	if err != nil {
		return fmt.Errorf("gpu: finish encoder: %w", err)
	}
	if _, err := d.device.Queue().Submit(cmd); err != nil {
		return fmt.Errorf("gpu: submit copy: %w", err)
	}
	return nil
}

// Release frees a buffer. Releasing twice or releasing a foreign buffer is
// a no-op.
func (d *Device) Release(b vision.Buffer) {
	gb, ok := b.(*buffer)
	if !ok || gb.dev != d {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked(gb)
}

func (d *Device) releaseLocked(b *buffer) {
	if b.released.Swap(true) {
		return
	}
	b.buf.Release()
	d.live.Add(-1)
}

func (d *Device) own(b vision.Buffer) (*buffer, error) {
	gb, ok := b.(*buffer)
	if !ok || gb.dev != d {
		return nil, fmt.Errorf("gpu: buffer %T does not belong to %s", b, d.name)
	}
	if gb.released.Load() {
		return nil, fmt.Errorf("gpu: buffer %s was released", gb.desc)
	}
	return gb, nil
}

// groups returns the number of work-groups of size g covering n.
func groups(n, g int) uint32 {
	if g <= 0 {
		g = 1
	}
	return uint32((n + g - 1) / g) //nolint:gosec // extents are positive
}

func encode(pix []float32) []byte {
	out := make([]byte, len(pix)*4)
	for i, v := range pix {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func decode(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}
