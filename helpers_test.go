package vision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// Test helpers shared across vision tests.

// passOp is a unary identity operation.
type passOp struct{}

func (passOp) Name() string                      { return "pass" }
func (passOp) OutType(in ElementType) ElementType { return in }
func (passOp) Apply(p Pixel) Pixel                { return p }

// sumOp adds two operands.
type sumOp struct{}

func (sumOp) Name() string                           { return "sum" }
func (sumOp) OutType(l, _ ElementType) ElementType { return l }
func (sumOp) Apply(l, r Pixel) Pixel {
	for i := range l {
		l[i] += r[i]
	}
	return l
}

// centreOp returns the signal at the centre of the window.
type centreOp struct{}

func (centreOp) Name() string                                { return "centre" }
func (centreOp) OutType(signal, _ ElementType) ElementType { return signal }
func (centreOp) Apply(nbr Neighborhood, _ Window) Pixel      { return nbr.At(0, 0) }

// hostLeaf returns a GrayF32 leaf of the given size filled with v.
func hostLeaf(t *testing.T, cols, rows int, v float32) *Leaf {
	t.Helper()
	img, err := NewHostImage(GrayF32, Dims{Cols: cols, Rows: rows})
	if err != nil {
		t.Fatalf("NewHostImage: %v", err)
	}
	img.Fill(Pixel{v})
	l, err := NewLeaf(img, StorageBuffer2D)
	if err != nil {
		t.Fatalf("NewLeaf: %v", err)
	}
	return l
}

// stencil builds a neighbour node over signal with a 3x3 filter. A non-nil
// shape overrides the output extent.
func stencil(t *testing.T, signal Node, shape *Shape) *NeighborNode {
	t.Helper()
	filter := hostLeaf(t, 3, 3, 1)
	var (
		n   *NeighborNode
		err error
	)
	if shape != nil {
		n, err = NeighbourShape(centreOp{}, *shape, signal, filter)
	} else {
		n, err = Neighbour(centreOp{}, signal, filter)
	}
	if err != nil {
		t.Fatalf("neighbour: %v", err)
	}
	return n
}

func point(t *testing.T, in Node) *PointNode {
	t.Helper()
	n, err := Point(passOp{}, in)
	if err != nil {
		t.Fatalf("Point: %v", err)
	}
	return n
}

// fakeBuffer is a buffer of fakeDevice.
type fakeBuffer struct {
	desc MemoryDescriptor
	id   int
}

func (b *fakeBuffer) Descriptor() MemoryDescriptor { return b.desc }

// fakeDevice records the calls of a cycle without evaluating anything.
type fakeDevice struct {
	mu       sync.Mutex
	next     int
	live     map[int]bool
	uploads  int
	kernels  []*Kernel
	released int

	failSubmit error
	failUpload error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{live: make(map[int]bool)}
}

func (d *fakeDevice) Name() string { return "fake" }

func (d *fakeDevice) newBuffer(desc MemoryDescriptor) *fakeBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.live[d.next] = true
	return &fakeBuffer{desc: desc, id: d.next}
}

func (d *fakeDevice) Allocate(desc MemoryDescriptor) (Buffer, error) {
	return d.newBuffer(desc), nil
}

func (d *fakeDevice) Upload(_ context.Context, img *HostImage) (Buffer, error) {
	if d.failUpload != nil {
		return nil, d.failUpload
	}
	d.mu.Lock()
	d.uploads++
	d.mu.Unlock()
	return d.newBuffer(img.Descriptor()), nil
}

func (d *fakeDevice) Submit(_ context.Context, k *Kernel, _ Buffer) error {
	if d.failSubmit != nil {
		return d.failSubmit
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, in := range k.Inputs {
		if !d.live[in.(*fakeBuffer).id] {
			return fmt.Errorf("kernel %s input %d was released", k.Name, i)
		}
	}
	d.kernels = append(d.kernels, k)
	return nil
}

func (d *fakeDevice) Download(_ context.Context, b Buffer) (*HostImage, error) {
	return NewHostImage(b.Descriptor().Type, b.Descriptor().Dims)
}

func (d *fakeDevice) Release(b Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fb := b.(*fakeBuffer)
	if d.live[fb.id] {
		delete(d.live, fb.id)
		d.released++
	}
}

func (d *fakeDevice) liveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

var errInjected = errors.New("injected failure")
