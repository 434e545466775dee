package vision

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Buffer is a device-resident image buffer. Buffers are created by a
// Device and are only valid with the device that created them.
type Buffer interface {
	// Descriptor returns the layout the buffer was allocated with.
	Descriptor() MemoryDescriptor
}

// Device executes kernels over buffers it owns.
//
// Implementations are provided by device packages (cpu, gpu). All methods
// must be safe for concurrent use: sibling subtrees of a tree are
// materialized in parallel.
type Device interface {
	// Name returns the device name (e.g., "cpu", "wgpu:Intel Iris").
	Name() string

	// Allocate returns an uninitialized buffer for the descriptor.
	Allocate(desc MemoryDescriptor) (Buffer, error)

	// Upload copies a host image into a new buffer.
	Upload(ctx context.Context, img *HostImage) (Buffer, error)

	// Submit evaluates k for every pixel of out and blocks until the result
	// is visible to later submissions. Reads outside a neighbourhood's halo
	// fail with ErrShape.
	Submit(ctx context.Context, k *Kernel, out Buffer) error

	// Download copies a buffer back to host memory.
	Download(ctx context.Context, b Buffer) (*HostImage, error)

	// Release frees a buffer. Releasing a buffer twice is a no-op.
	Release(b Buffer)
}

// TileSpec carries work partition hints. The engine passes it through to
// every kernel unchanged.
type TileSpec struct {
	// GroupCols and GroupRows are the compute work-group size.
	GroupCols int
	GroupRows int

	// TileCols and TileRows are the block size software devices hand to one
	// worker.
	TileCols int
	TileRows int
}

// DefaultTileSpec returns 8x8 work-groups and 64x64 tiles.
func DefaultTileSpec() TileSpec {
	return TileSpec{GroupCols: 8, GroupRows: 8, TileCols: 64, TileRows: 64}
}

// withDefaults fills zero fields from DefaultTileSpec.
func (t TileSpec) withDefaults() TileSpec {
	d := DefaultTileSpec()
	if t.GroupCols <= 0 {
		t.GroupCols = d.GroupCols
	}
	if t.GroupRows <= 0 {
		t.GroupRows = d.GroupRows
	}
	if t.TileCols <= 0 {
		t.TileCols = d.TileCols
	}
	if t.TileRows <= 0 {
		t.TileRows = d.TileRows
	}
	return t
}

// Kernel is one fused device launch: the expression of every node between
// the kernel's output and its materialized inputs.
type Kernel struct {
	// Name is derived from the root operation and used in labels and logs.
	Name string

	// Expr is the fused expression. It contains only FragmentLazy and
	// FragmentInput fragments; inputs index into Inputs.
	Expr *Fragment

	// Inputs are the materialized operands read by Expr.
	Inputs []Buffer

	// Output describes the buffer Submit writes.
	Output MemoryDescriptor

	Tile   TileSpec
	Border BorderPolicy
}

// String returns the kernel name followed by its expression.
func (k *Kernel) String() string {
	return fmt.Sprintf("%s(%d inputs) = %s", k.Name, len(k.Inputs), k.Expr)
}

var (
	devMu      sync.RWMutex
	defaultDev Device
)

// RegisterDevice sets the device used by Run when no WithDevice option is
// given. Subsequent calls replace the previous device:
//
//	dev := cpu.New()
//	defer dev.Close()
//	vision.RegisterDevice(dev)
//
// The replaced device is returned so that the caller can close it.
func RegisterDevice(d Device) (Device, error) {
	if d == nil {
		return nil, errors.New("vision: device must not be nil")
	}
	devMu.Lock()
	old := defaultDev
	defaultDev = d
	devMu.Unlock()

	propagateLogger(d, Logger())
	Logger().Info("vision: device registered", "device", d.Name())
	return old, nil
}

// DefaultDevice returns the registered device, or nil if none.
func DefaultDevice() Device {
	devMu.RLock()
	d := defaultDev
	devMu.RUnlock()
	return d
}
