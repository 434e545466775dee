package vision

import (
	"context"
	"fmt"
	"sync"
)

// Run performs one cycle over root: the decision pass, then the execution
// pass. It returns the root's value in a buffer owned by the caller.
//
// Every interior node is disarmed by the cycle. Running the same tree again
// without calling root.Reset(true) first fails with ErrStaleTree.
//
// Any error aborts the cycle. Buffers produced before the failure are
// released; nothing else needs to be undone, and a new cycle after Reset is
// always safe.
func Run(ctx context.Context, root Node, opts ...RunOption) (*Result, error) {
	o := newRunOptions(opts)
	dev := o.device
	if dev == nil {
		dev = DefaultDevice()
	}
	if dev == nil {
		return nil, ErrNoDevice
	}

	p := &planner{mode: o.fusion, log: Logger()}
	plan, err := p.plan(root)
	if err != nil {
		return nil, err
	}

	c := newCycle(dev, o)
	defer c.releaseUploads()

	buf, err := c.kernel(ctx, plan)
	if err != nil {
		c.log.Debug("vision: cycle failed", "device", dev.Name(), "error", err)
		return nil, err
	}

	kernels := int(c.kernels.Load())
	return &Result{
		Plan:           plan,
		Kernels:        kernels,
		Intermediates:  kernels - 1,
		BytesAllocated: c.bytes.Load(),
		buf:            buf,
		dev:            dev,
	}, nil
}

// Result is the output of one cycle.
type Result struct {
	// Plan is the fragment tree the cycle executed.
	Plan *Fragment

	// Kernels is the number of kernels submitted.
	Kernels int

	// Intermediates is the number of buffers materialized and released
	// within the cycle.
	Intermediates int

	// BytesAllocated is the total device memory allocated by the cycle,
	// uploads included.
	BytesAllocated uint64

	buf  Buffer
	dev  Device
	once sync.Once
}

// Buffer returns the buffer holding the root's value.
func (r *Result) Buffer() Buffer { return r.buf }

// Device returns the device owning Buffer.
func (r *Result) Device() Device { return r.dev }

// Descriptor returns the layout of the result buffer.
func (r *Result) Descriptor() MemoryDescriptor { return r.buf.Descriptor() }

// Download copies the result to host memory.
func (r *Result) Download(ctx context.Context) (*HostImage, error) {
	img, err := r.dev.Download(ctx, r.buf)
	if err != nil {
		return nil, deviceError("download", err)
	}
	return img, nil
}

// Release frees the result buffer. Leaves created with LeafFromResult must
// not be used afterwards. Release is idempotent.
func (r *Result) Release() {
	r.once.Do(func() {
		r.dev.Release(r.buf)
	})
}

// LeafFromResult wraps the result buffer in a leaf so that it can feed
// another tree on the same device without a round trip through host
// memory. The result keeps ownership of the buffer.
func LeafFromResult(r *Result) (*Leaf, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: result", ErrNilNode)
	}
	return LeafFromBuffer(r.dev, r.buf)
}
