package ops

import "github.com/gogpu/vision"

// Test helpers shared across ops tests.

// hostWindow reads a host image by absolute position, clamping at edges.
type hostWindow struct {
	img *vision.HostImage
}

func (w hostWindow) At(c, r int) vision.Pixel {
	c, r, _ = vision.BorderClamp.Remap(c, r, w.img.Dims)
	return w.img.At(c, r)
}

func (w hostWindow) Dims() vision.Dims { return w.img.Dims }

func (w hostWindow) Channels() int { return w.img.Type.Channels }

// hostNeighborhood reads a host image around (x, y) and records reads
// outside its halo.
type hostNeighborhood struct {
	img    *vision.HostImage
	x, y   int
	halo   vision.Halo
	faults int
}

func (n *hostNeighborhood) At(dc, dr int) vision.Pixel {
	if !n.halo.Contains(dc, dr) {
		n.faults++
	}
	c, r, _ := vision.BorderClamp.Remap(n.x+dc, n.y+dr, n.img.Dims)
	return n.img.At(c, r)
}

func (n *hostNeighborhood) Halo() vision.Halo { return n.halo }

// filled returns a single-channel float image with every pixel set to v.
func filled(cols, rows int, v float32) *vision.HostImage {
	h, err := vision.NewHostImage(vision.GrayF32, vision.Dims{Cols: cols, Rows: rows})
	if err != nil {
		panic(err)
	}
	h.Fill(vision.Pixel{v})
	return h
}

// absf32 returns the absolute value of a float32.
func absf32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
