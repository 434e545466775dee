package vision

import "fmt"

// Halo is the border, in pixels, a neighbour operation reads around each
// output pixel of its signal.
type Halo struct {
	Top    int
	Left   int
	Bottom int
	Right  int
}

// DefaultHalo returns the halo for a filter of the given extent:
// (rows/2, cols/2, rows/2, cols/2) with truncating division.
//
// Odd filters are centred. Even filters get the same value on both sides,
// so the window is one pixel wider and taller than the filter; the filter
// origin sits at the top-left of the window.
func DefaultHalo(filter Dims) Halo {
	return Halo{
		Top:    filter.Rows / 2,
		Left:   filter.Cols / 2,
		Bottom: filter.Rows / 2,
		Right:  filter.Cols / 2,
	}
}

// Valid reports whether all four sides are non-negative.
func (h Halo) Valid() bool {
	return h.Top >= 0 && h.Left >= 0 && h.Bottom >= 0 && h.Right >= 0
}

// Contains reports whether the offset (dc, dr) from the centre pixel lies
// inside the halo.
func (h Halo) Contains(dc, dr int) bool {
	return dc >= -h.Left && dc <= h.Right && dr >= -h.Top && dr <= h.Bottom
}

// Extent returns the size of the window the halo spans around one pixel.
func (h Halo) Extent() Dims {
	return Dims{Cols: h.Left + h.Right + 1, Rows: h.Top + h.Bottom + 1}
}

// String returns "(top,left,bottom,right)".
func (h Halo) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", h.Top, h.Left, h.Bottom, h.Right)
}
