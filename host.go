package vision

import (
	"fmt"
	"math"
)

// Scalar is the set of Go types a host image can be converted from and to.
type Scalar interface {
	uint8 | float32
}

// HostImage is image data in host memory. Every channel is stored as a
// float32 regardless of the element type; Uint8 images hold integral values
// in [0, 255].
type HostImage struct {
	Type ElementType
	Dims Dims

	// Pix holds Dims.Rows rows of Dims.Cols pixels, Type.Channels floats each.
	Pix []float32
}

// NewHostImage allocates a zeroed host image.
func NewHostImage(t ElementType, d Dims) (*HostImage, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unsupported element type %s", ErrConstruction, t)
	}
	if d.Cols <= 0 || d.Rows <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %s", ErrConstruction, d)
	}
	return &HostImage{Type: t, Dims: d, Pix: make([]float32, d.Pixels()*t.Channels)}, nil
}

// FromSlice builds a host image from interleaved channel data. The scalar
// kind follows T.
func FromSlice[T Scalar](data []T, cols, rows, channels int) (*HostImage, error) {
	t := ElementType{Scalar: scalarOf[T](), Channels: channels}
	h, err := NewHostImage(t, Dims{Cols: cols, Rows: rows})
	if err != nil {
		return nil, err
	}
	if len(data) != len(h.Pix) {
		return nil, fmt.Errorf("%w: %d values for %s %s", ErrConstruction, len(data), t, h.Dims)
	}
	for i, v := range data {
		h.Pix[i] = float32(v)
	}
	return h, nil
}

// ToSlice converts the image to interleaved T values. Conversion to uint8
// rounds to nearest and saturates to [0, 255].
func ToSlice[T Scalar](h *HostImage) []T {
	out := make([]T, len(h.Pix))
	if scalarOf[T]() == Uint8 {
		for i, v := range h.Pix {
			out[i] = T(quantize8(v))
		}
		return out
	}
	for i, v := range h.Pix {
		out[i] = T(v)
	}
	return out
}

// scalarOf returns the scalar kind for a Go element type.
func scalarOf[T Scalar]() ScalarKind {
	var zero T
	if _, ok := any(zero).(uint8); ok {
		return Uint8
	}
	return Float32
}

// Descriptor returns the host-storage descriptor of the image.
func (h *HostImage) Descriptor() MemoryDescriptor {
	return MemoryDescriptor{Type: h.Type, Storage: StorageHost, Dims: h.Dims}
}

// At returns the pixel at (x, y). Coordinates must be inside the image.
func (h *HostImage) At(x, y int) Pixel {
	var p Pixel
	ch := h.Type.Channels
	i := (y*h.Dims.Cols + x) * ch
	copy(p[:ch], h.Pix[i:i+ch])
	return p
}

// Set stores p at (x, y). Coordinates must be inside the image.
func (h *HostImage) Set(x, y int, p Pixel) {
	ch := h.Type.Channels
	i := (y*h.Dims.Cols + x) * ch
	copy(h.Pix[i:i+ch], p[:ch])
}

// Fill sets every pixel to p.
func (h *HostImage) Fill(p Pixel) {
	ch := h.Type.Channels
	for i := 0; i < len(h.Pix); i += ch {
		copy(h.Pix[i:i+ch], p[:ch])
	}
}

// Clone returns a deep copy.
func (h *HostImage) Clone() *HostImage {
	c := *h
	c.Pix = append([]float32(nil), h.Pix...)
	return &c
}

// Quantize converts p to the value range of t: Uint8 channels are rounded
// and saturated, unused channels are cleared. Devices apply it to the
// output of every node so that lazy and materialized evaluation agree.
func Quantize(t ElementType, p Pixel) Pixel {
	for i := t.Channels; i < len(p); i++ {
		p[i] = 0
	}
	if t.Scalar == Uint8 {
		for i := 0; i < t.Channels; i++ {
			p[i] = float32(quantize8(p[i]))
		}
	}
	return p
}

// quantize8 rounds half away from zero and saturates to [0, 255].
func quantize8(v float32) uint8 {
	if v != v { // NaN
		return 0
	}
	r := math.Round(float64(v))
	if r <= 0 {
		return 0
	}
	if r >= 255 {
		return 255
	}
	return uint8(r)
}
