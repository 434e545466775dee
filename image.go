package vision

import (
	"fmt"
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// HostFromImage converts a Go image into a host image of type t.
//
// Uint8 element types keep 8-bit channel values; Float32 element types are
// normalized to [0, 1]. One channel is luma, two channels are luma and
// alpha, three are RGB and four RGBA. Colors are not premultiplied.
//
// When size is non-zero and differs from the image bounds the image is
// resampled with Catmull-Rom first.
func HostFromImage(src image.Image, t ElementType, size Dims) (*HostImage, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: image", ErrNilNode)
	}
	b := src.Bounds()
	if size.Cols <= 0 || size.Rows <= 0 {
		size = Dims{Cols: b.Dx(), Rows: b.Dy()}
	}

	rgba := image.NewNRGBA(image.Rect(0, 0, size.Cols, size.Rows))
	if size.Cols == b.Dx() && size.Rows == b.Dy() {
		xdraw.Draw(rgba, rgba.Bounds(), src, b.Min, xdraw.Src)
	} else {
		xdraw.CatmullRom.Scale(rgba, rgba.Bounds(), src, b, xdraw.Src, nil)
	}

	h, err := NewHostImage(t, size)
	if err != nil {
		return nil, err
	}
	scale := float32(1)
	if t.Scalar == Float32 {
		scale = 1.0 / 255
	}
	for y := 0; y < size.Rows; y++ {
		for x := 0; x < size.Cols; x++ {
			c := rgba.NRGBAAt(x, y)
			var p Pixel
			switch t.Channels {
			case 1, 2:
				g := color.GrayModel.Convert(color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}).(color.Gray)
				p = Pixel{float32(g.Y), float32(c.A)}
			default:
				p = Pixel{float32(c.R), float32(c.G), float32(c.B), float32(c.A)}
			}
			for i := range p {
				p[i] *= scale
			}
			h.Set(x, y, p)
		}
	}
	return h, nil
}

// LeafFromImage converts a Go image into a leaf node of type t at its
// native size.
func LeafFromImage(src image.Image, t ElementType, storage StorageCategory) (*Leaf, error) {
	h, err := HostFromImage(src, t, Dims{})
	if err != nil {
		return nil, err
	}
	return NewLeaf(h, storage)
}

// ToImage converts the host image to an *image.NRGBA. One- and two-channel
// images are expanded to gray; missing alpha is opaque. Values outside the
// 8-bit range saturate.
func (h *HostImage) ToImage() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, h.Dims.Cols, h.Dims.Rows))
	scale := float32(1)
	if h.Type.Scalar == Float32 {
		scale = 255
	}
	for y := 0; y < h.Dims.Rows; y++ {
		for x := 0; x < h.Dims.Cols; x++ {
			p := h.At(x, y)
			for i := range p {
				p[i] *= scale
			}
			var c color.NRGBA
			switch h.Type.Channels {
			case 1:
				g := quantize8(p[0])
				c = color.NRGBA{R: g, G: g, B: g, A: 255}
			case 2:
				g := quantize8(p[0])
				c = color.NRGBA{R: g, G: g, B: g, A: quantize8(p[1])}
			case 3:
				c = color.NRGBA{R: quantize8(p[0]), G: quantize8(p[1]), B: quantize8(p[2]), A: 255}
			default:
				c = color.NRGBA{R: quantize8(p[0]), G: quantize8(p[1]), B: quantize8(p[2]), A: quantize8(p[3])}
			}
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}
