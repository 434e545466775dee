// Package cpu implements vision.Device in software.
//
// Kernels are evaluated tile by tile on a work-stealing worker pool. Every
// channel is held as a float32; node outputs of Uint8 element types are
// rounded and saturated exactly where a gpu kernel would do it, so the cpu
// device serves as the reference for the other devices.
//
// Reads outside a neighbour node's halo are detected and reported as
// vision.ErrShape.
package cpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/internal/bufpool"
	"github.com/gogpu/vision/internal/parallel"
)

// ErrClosed is returned by operations on a closed device.
var ErrClosed = errors.New("cpu: device closed")

// Option configures a Device.
type Option func(*options)

type options struct {
	workers      int
	maxPerBucket int
}

// WithWorkers sets the number of worker goroutines. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithBufferReuse sets how many released buffers of each size are kept
// for reuse. Zero keeps all of them.
func WithBufferReuse(maxPerBucket int) Option {
	return func(o *options) {
		o.maxPerBucket = maxPerBucket
	}
}

// Device is the software device.
//
// Thread safety: Device is safe for concurrent use.
type Device struct {
	pool   *parallel.Pool
	bufs   *bufpool.Pool
	live   atomic.Int64
	closed atomic.Bool
}

// New creates a software device. Call Close to stop its workers.
func New(opts ...Option) *Device {
	o := options{maxPerBucket: 8}
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{
		pool: parallel.NewPool(o.workers),
		bufs: bufpool.New(o.maxPerBucket),
	}
	slogger().Debug("cpu: device created", "workers", d.pool.Workers())
	return d
}

// Name returns "cpu".
func (d *Device) Name() string { return "cpu" }

// SetLogger sets the logger for the device.
// Called by vision.SetLogger to propagate logging configuration.
func (d *Device) SetLogger(l *slog.Logger) {
	setLogger(l)
}

// Close stops the worker pool and drops pooled buffers. Buffers still held
// by callers stay readable.
func (d *Device) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.pool.Close()
	d.bufs.Reset()
	if n := d.live.Load(); n > 0 {
		slogger().Warn("cpu: device closed with live buffers", "buffers", n)
	}
}

// Live returns the number of buffers allocated and not yet released.
func (d *Device) Live() int { return int(d.live.Load()) }

// buffer is a device buffer in host memory.
type buffer struct {
	dev      *Device
	desc     vision.MemoryDescriptor
	pix      []float32
	released atomic.Bool
}

// Descriptor returns the layout the buffer was allocated with.
func (b *buffer) Descriptor() vision.MemoryDescriptor { return b.desc }

func (d *Device) newBuffer(desc vision.MemoryDescriptor) *buffer {
	d.live.Add(1)
	return &buffer{dev: d, desc: desc, pix: d.bufs.Get(desc.Len())}
}

// Allocate returns a zeroed buffer.
func (d *Device) Allocate(desc vision.MemoryDescriptor) (vision.Buffer, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if desc.Len() <= 0 {
		return nil, fmt.Errorf("cpu: cannot allocate empty buffer %s", desc)
	}
	return d.newBuffer(desc), nil
}

// Upload copies a host image into a new buffer.
func (d *Device) Upload(_ context.Context, img *vision.HostImage) (vision.Buffer, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	desc := img.Descriptor()
	if len(img.Pix) != desc.Len() {
		return nil, fmt.Errorf("cpu: upload of %d values for %s", len(img.Pix), desc)
	}
	b := d.newBuffer(desc)
	copy(b.pix, img.Pix)
	return b, nil
}

// Download copies a buffer into a new host image.
func (d *Device) Download(_ context.Context, vb vision.Buffer) (*vision.HostImage, error) {
	b, err := d.own(vb)
	if err != nil {
		return nil, err
	}
	if b.released.Load() {
		return nil, fmt.Errorf("cpu: download of released buffer %s", b.desc)
	}
	return &vision.HostImage{
		Type: b.desc.Type,
		Dims: b.desc.Dims,
		Pix:  append([]float32(nil), b.pix...),
	}, nil
}

// Release returns the buffer's memory to the device.
func (d *Device) Release(vb vision.Buffer) {
	b, ok := vb.(*buffer)
	if !ok || b.dev != d {
		return
	}
	if !b.released.CompareAndSwap(false, true) {
		return
	}
	d.live.Add(-1)
	if !d.closed.Load() {
		d.bufs.Put(b.pix)
	}
	b.pix = nil
}

// own checks that vb was created by d.
func (d *Device) own(vb vision.Buffer) (*buffer, error) {
	b, ok := vb.(*buffer)
	if !ok || b.dev != d {
		return nil, fmt.Errorf("cpu: foreign buffer %T", vb)
	}
	return b, nil
}

// Submit evaluates the kernel for every pixel of out.
func (d *Device) Submit(ctx context.Context, k *vision.Kernel, out vision.Buffer) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dst, err := d.own(out)
	if err != nil {
		return err
	}
	if dst.desc.Dims != k.Output.Dims || dst.desc.Type != k.Output.Type {
		return fmt.Errorf("%w: kernel %s writes %s %s into %s %s", vision.ErrShape,
			k.Name, k.Output.Type, k.Output.Dims, dst.desc.Type, dst.desc.Dims)
	}

	inputs := make([]*buffer, len(k.Inputs))
	for i, in := range k.Inputs {
		b, err := d.own(in)
		if err != nil {
			return err
		}
		if b.released.Load() {
			return fmt.Errorf("cpu: kernel %s reads released input %d", k.Name, i)
		}
		inputs[i] = b
	}

	var faults atomic.Int64
	root, err := compile(k.Expr, inputs, k.Border, &faults)
	if err != nil {
		return fmt.Errorf("cpu: kernel %s: %w", k.Name, err)
	}
	if root.dims() != dst.desc.Dims {
		return fmt.Errorf("%w: kernel %s evaluates %s for a %s output", vision.ErrShape,
			k.Name, root.dims(), dst.desc.Dims)
	}

	ch := dst.desc.Type.Channels
	cols := dst.desc.Dims.Cols
	tiles := parallel.Split(cols, dst.desc.Dims.Rows, k.Tile.TileCols, k.Tile.TileRows)
	d.pool.For(len(tiles), func(i int) {
		t := tiles[i]
		for y := t.Y; y < t.Y+t.Rows; y++ {
			row := dst.pix[y*cols*ch:]
			for x := t.X; x < t.X+t.Cols; x++ {
				p := root.at(x, y)
				copy(row[x*ch:x*ch+ch], p[:ch])
			}
		}
	})

	if n := faults.Load(); n > 0 {
		return fmt.Errorf("%w: kernel %s read outside its halo %d times", vision.ErrShape, k.Name, n)
	}

	slogger().Debug("cpu: kernel done",
		"kernel", k.Name,
		"tiles", len(tiles),
		"output", dst.desc.String())
	return nil
}
