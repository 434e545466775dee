package vision

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ScalarKind is the storage type of one channel.
type ScalarKind uint8

const (
	// Uint8 channels hold integers in [0, 255].
	Uint8 ScalarKind = iota + 1

	// Float32 channels hold IEEE 754 single precision values.
	Float32
)

// String returns the scalar name.
func (s ScalarKind) String() string {
	switch s {
	case Uint8:
		return "u8"
	case Float32:
		return "f32"
	default:
		return fmt.Sprintf("scalar(%d)", uint8(s))
	}
}

// Size returns the number of bytes one channel occupies in host memory.
func (s ScalarKind) Size() int {
	switch s {
	case Uint8:
		return 1
	case Float32:
		return 4
	default:
		return 0
	}
}

// ElementType describes one pixel: a scalar kind and a channel count.
type ElementType struct {
	Scalar   ScalarKind
	Channels int
}

// Common element types.
var (
	Gray8   = ElementType{Scalar: Uint8, Channels: 1}
	RGBA8   = ElementType{Scalar: Uint8, Channels: 4}
	GrayF32 = ElementType{Scalar: Float32, Channels: 1}
	RGBF32  = ElementType{Scalar: Float32, Channels: 3}
	RGBAF32 = ElementType{Scalar: Float32, Channels: 4}
)

// Valid reports whether the element type has a known scalar and 1 to 4
// channels.
func (t ElementType) Valid() bool {
	return (t.Scalar == Uint8 || t.Scalar == Float32) && t.Channels >= 1 && t.Channels <= 4
}

// String returns a compact form such as "f32x4".
func (t ElementType) String() string {
	return fmt.Sprintf("%sx%d", t.Scalar, t.Channels)
}

// StorageCategory is where a node's output lives once materialized.
type StorageCategory uint8

const (
	// StorageBuffer2D is a row-major device buffer.
	StorageBuffer2D StorageCategory = iota

	// StorageBuffer1D is a single-row device buffer.
	StorageBuffer1D

	// StorageHost is host memory visible to the device.
	StorageHost

	// StorageImage is a device image backed by a texture format.
	StorageImage
)

// String returns the category name.
func (s StorageCategory) String() string {
	switch s {
	case StorageBuffer2D:
		return "buffer2d"
	case StorageBuffer1D:
		return "buffer1d"
	case StorageHost:
		return "host"
	case StorageImage:
		return "image"
	default:
		return fmt.Sprintf("storage(%d)", uint8(s))
	}
}

// Dims is a two-dimensional extent in pixels.
type Dims struct {
	Cols int
	Rows int
}

// Pixels returns Cols*Rows.
func (d Dims) Pixels() int { return d.Cols * d.Rows }

// Contains reports whether (x, y) lies inside the extent.
func (d Dims) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < d.Cols && y < d.Rows
}

// String returns "COLSxROWS".
func (d Dims) String() string { return fmt.Sprintf("%dx%d", d.Cols, d.Rows) }

// MemoryDescriptor is the canonical description of a node's output buffer.
type MemoryDescriptor struct {
	Type    ElementType
	Storage StorageCategory
	Dims    Dims
	Level   int

	// Format is the texture format a StorageImage descriptor would map to,
	// and TextureFormatUndefined for every other category. ResolveOutput
	// uses it to reject channel counts without a texture format. Devices
	// do not allocate textures: image outputs live in buffers like every
	// other category.
	Format gputypes.TextureFormat
}

// Len returns the number of float channels the buffer holds.
func (d MemoryDescriptor) Len() int { return d.Dims.Pixels() * d.Type.Channels }

// Stride returns the number of channels in one row.
func (d MemoryDescriptor) Stride() int { return d.Dims.Cols * d.Type.Channels }

// ByteSize returns the size of the buffer in device memory. Devices store
// every channel as a 32-bit float.
func (d MemoryDescriptor) ByteSize() uint64 { return uint64(d.Len()) * 4 } //nolint:gosec // Len is positive by construction

// String returns a compact form for logs and plans.
func (d MemoryDescriptor) String() string {
	return fmt.Sprintf("%s %s %s L%d", d.Storage, d.Type, d.Dims, d.Level)
}

// ResolveOutput returns the output descriptor for a node with the given
// element type, storage category, extent and tree level.
//
// It fails with ErrConstruction for unsupported combinations:
//   - invalid element types (unknown scalar, channels outside 1..4)
//   - non-positive dimensions or a negative level
//   - StorageBuffer1D with more than one row
//   - StorageImage with a channel count that has no texture format
//
// ResolveOutput has no side effects; builders call it once per node.
func ResolveOutput(t ElementType, s StorageCategory, cols, rows, level int) (MemoryDescriptor, error) {
	if !t.Valid() {
		return MemoryDescriptor{}, fmt.Errorf("%w: unsupported element type %s", ErrConstruction, t)
	}
	if cols <= 0 || rows <= 0 {
		return MemoryDescriptor{}, fmt.Errorf("%w: invalid dimensions %dx%d", ErrConstruction, cols, rows)
	}
	if level < 0 {
		return MemoryDescriptor{}, fmt.Errorf("%w: negative level %d", ErrConstruction, level)
	}

	desc := MemoryDescriptor{
		Type:    t,
		Storage: s,
		Dims:    Dims{Cols: cols, Rows: rows},
		Level:   level,
		Format:  gputypes.TextureFormatUndefined,
	}

	switch s {
	case StorageBuffer2D, StorageHost:
	case StorageBuffer1D:
		if rows != 1 {
			return MemoryDescriptor{}, fmt.Errorf("%w: %s requires a single row, got %d", ErrConstruction, s, rows)
		}
	case StorageImage:
		f, ok := textureFormat(t)
		if !ok {
			return MemoryDescriptor{}, fmt.Errorf("%w: no texture format for %s", ErrConstruction, t)
		}
		desc.Format = f
	default:
		return MemoryDescriptor{}, fmt.Errorf("%w: unknown storage category %s", ErrConstruction, s)
	}
	return desc, nil
}

// textureFormat maps an element type to the texture format backing image
// storage. Three-channel formats do not exist in WebGPU.
func textureFormat(t ElementType) (gputypes.TextureFormat, bool) {
	switch t.Scalar {
	case Uint8:
		switch t.Channels {
		case 1:
			return gputypes.TextureFormatR8Unorm, true
		case 2:
			return gputypes.TextureFormatRG8Unorm, true
		case 4:
			return gputypes.TextureFormatRGBA8Unorm, true
		}
	case Float32:
		switch t.Channels {
		case 1:
			return gputypes.TextureFormatR32Float, true
		case 2:
			return gputypes.TextureFormatRG32Float, true
		case 4:
			return gputypes.TextureFormatRGBA32Float, true
		}
	}
	return gputypes.TextureFormatUndefined, false
}
