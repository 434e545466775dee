package ops

import (
	"fmt"
	"strings"

	"github.com/gogpu/vision"
)

// Convolve computes the filter-weighted sum of the signal window. Filter
// position (c, r) weights the signal at offset (c-Left, r-Top) of the
// node's halo. A single-channel filter weights all signal channels alike;
// otherwise channels are weighted independently.
//
// Sums are accumulated in float64.
type Convolve struct {
	// Out overrides the output scalar kind. Zero keeps the signal's.
	Out vision.ScalarKind
}

// Name returns "convolve".
func (Convolve) Name() string { return "convolve" }

// OutType returns the signal type, with the scalar kind replaced by Out
// when set.
func (c Convolve) OutType(signal, _ vision.ElementType) vision.ElementType {
	if c.Out != 0 {
		signal.Scalar = c.Out
	}
	return signal
}

// Apply returns the weighted sum for one output pixel.
func (Convolve) Apply(nbr vision.Neighborhood, filter vision.Window) vision.Pixel {
	h := nbr.Halo()
	fd := filter.Dims()
	broadcast := filter.Channels() == 1

	var acc [4]float64
	for r := 0; r < fd.Rows; r++ {
		for c := 0; c < fd.Cols; c++ {
			w := filter.At(c, r)
			if broadcast {
				w = vision.Pixel{w[0], w[0], w[0], w[0]}
			}
			s := nbr.At(c-h.Left, r-h.Top)
			for i := range acc {
				acc[i] += float64(s[i]) * float64(w[i])
			}
		}
	}

	var p vision.Pixel
	for i, v := range acc {
		p[i] = float32(v)
	}
	return p
}

// WGSLNeighbor returns the WGSL form of Apply.
func (Convolve) WGSLNeighbor(s vision.StencilSource) string {
	return stencilLoop(s, "var acc = vec4<f32>(0.0);",
		"acc = acc + "+s.Signal+"(x + c - %d, y + r - %d) * w;", "return acc;")
}

// Erode returns the per-channel minimum of the signal over the filter
// support, the positions where the filter's first channel is positive.
type Erode struct{}

// Name returns "erode".
func (Erode) Name() string { return "erode" }

// OutType returns the signal type.
func (Erode) OutType(signal, _ vision.ElementType) vision.ElementType { return signal }

// Apply returns the minimum over the support, or zero for an empty one.
func (Erode) Apply(nbr vision.Neighborhood, filter vision.Window) vision.Pixel {
	return morph(nbr, filter, func(a, b float32) float32 { return min(a, b) })
}

// WGSLNeighbor returns the WGSL form of Apply.
func (Erode) WGSLNeighbor(s vision.StencilSource) string {
	return morphWGSL(s, "min")
}

// Dilate returns the per-channel maximum of the signal over the filter
// support.
type Dilate struct{}

// Name returns "dilate".
func (Dilate) Name() string { return "dilate" }

// OutType returns the signal type.
func (Dilate) OutType(signal, _ vision.ElementType) vision.ElementType { return signal }

// Apply returns the maximum over the support, or zero for an empty one.
func (Dilate) Apply(nbr vision.Neighborhood, filter vision.Window) vision.Pixel {
	return morph(nbr, filter, func(a, b float32) float32 { return max(a, b) })
}

// WGSLNeighbor returns the WGSL form of Apply.
func (Dilate) WGSLNeighbor(s vision.StencilSource) string {
	return morphWGSL(s, "max")
}

func morph(nbr vision.Neighborhood, filter vision.Window, pick func(a, b float32) float32) vision.Pixel {
	h := nbr.Halo()
	fd := filter.Dims()

	var acc vision.Pixel
	found := false
	for r := 0; r < fd.Rows; r++ {
		for c := 0; c < fd.Cols; c++ {
			if filter.At(c, r)[0] <= 0 {
				continue
			}
			s := nbr.At(c-h.Left, r-h.Top)
			if !found {
				acc, found = s, true
				continue
			}
			for i := range acc {
				acc[i] = pick(acc[i], s[i])
			}
		}
	}
	return acc
}

func morphWGSL(s vision.StencilSource, fn string) string {
	return stencilLoop(s, "var acc = vec4<f32>(0.0);\n    var found = false;",
		"if (w.x > 0.0) {\n"+
			"            let v = "+s.Signal+"(x + c - %d, y + r - %d);\n"+
			"            if (found) { acc = "+fn+"(acc, v); } else { acc = v; found = true; }\n"+
			"        }",
		"return acc;")
}

// stencilLoop emits a loop over every filter position. The step template
// receives the halo's left and top; w holds the filter weight, broadcast
// for single-channel filters.
func stencilLoop(s vision.StencilSource, init, step, ret string) string {
	weight := s.Filter + "(c, r)"
	if s.FilterChannels == 1 {
		weight = "vec4<f32>(" + s.Filter + "(c, r).x)"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "    %s\n", init)
	fmt.Fprintf(&sb, "    for (var r: i32 = 0; r < %d; r = r + 1) {\n", s.FilterDims.Rows)
	fmt.Fprintf(&sb, "        for (var c: i32 = 0; c < %d; c = c + 1) {\n", s.FilterDims.Cols)
	fmt.Fprintf(&sb, "            let w = %s;\n", weight)
	fmt.Fprintf(&sb, "            "+step+"\n", s.Halo.Left, s.Halo.Top)
	sb.WriteString("        }\n")
	sb.WriteString("    }\n")
	fmt.Fprintf(&sb, "    %s\n", ret)
	return sb.String()
}
