package ops

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gogpu/vision"
)

// Scale multiplies every channel by Factor.
type Scale struct {
	Factor float32
}

// Name returns "scale".
func (Scale) Name() string { return "scale" }

// OutType returns in.
func (Scale) OutType(in vision.ElementType) vision.ElementType { return in }

// Apply returns p * Factor.
func (s Scale) Apply(p vision.Pixel) vision.Pixel {
	for i := range p {
		p[i] *= s.Factor
	}
	return p
}

// WGSLUnary returns the WGSL form of Apply.
func (s Scale) WGSLUnary(p string) string {
	return fmt.Sprintf("(%s * %s)", p, wgslFloat(s.Factor))
}

// Offset adds Delta to every channel.
type Offset struct {
	Delta float32
}

// Name returns "offset".
func (Offset) Name() string { return "offset" }

// OutType returns in.
func (Offset) OutType(in vision.ElementType) vision.ElementType { return in }

// Apply returns p + Delta.
func (o Offset) Apply(p vision.Pixel) vision.Pixel {
	for i := range p {
		p[i] += o.Delta
	}
	return p
}

// WGSLUnary returns the WGSL form of Apply.
func (o Offset) WGSLUnary(p string) string {
	return fmt.Sprintf("(%s + vec4<f32>(%s))", p, wgslFloat(o.Delta))
}

// Abs takes the absolute value of every channel.
type Abs struct{}

// Name returns "abs".
func (Abs) Name() string { return "abs" }

// OutType returns in.
func (Abs) OutType(in vision.ElementType) vision.ElementType { return in }

// Apply returns |p|.
func (Abs) Apply(p vision.Pixel) vision.Pixel {
	for i := range p {
		p[i] = float32(math.Abs(float64(p[i])))
	}
	return p
}

// WGSLUnary returns the WGSL form of Apply.
func (Abs) WGSLUnary(p string) string { return "abs(" + p + ")" }

// Threshold maps channels above Level to Max and all others to zero.
type Threshold struct {
	Level float32
	Max   float32
}

// Name returns "threshold".
func (Threshold) Name() string { return "threshold" }

// OutType returns in.
func (Threshold) OutType(in vision.ElementType) vision.ElementType { return in }

// Apply thresholds every channel.
func (t Threshold) Apply(p vision.Pixel) vision.Pixel {
	for i := range p {
		if p[i] > t.Level {
			p[i] = t.Max
		} else {
			p[i] = 0
		}
	}
	return p
}

// WGSLUnary returns the WGSL form of Apply.
func (t Threshold) WGSLUnary(p string) string {
	return fmt.Sprintf("select(vec4<f32>(0.0), vec4<f32>(%s), %s > vec4<f32>(%s))",
		wgslFloat(t.Max), p, wgslFloat(t.Level))
}

// Rec. 601 luma weights.
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// Gray converts an RGB or RGBA pixel to one luma channel. Operands with
// fewer than three channels are rejected at construction.
type Gray struct{}

// Name returns "gray".
func (Gray) Name() string { return "gray" }

// OutType returns one channel of the input scalar kind, or an invalid type
// for inputs without color channels.
func (Gray) OutType(in vision.ElementType) vision.ElementType {
	if in.Channels < 3 {
		return vision.ElementType{}
	}
	return vision.ElementType{Scalar: in.Scalar, Channels: 1}
}

// Apply returns the luma of p.
func (Gray) Apply(p vision.Pixel) vision.Pixel {
	return vision.Pixel{lumaR*p[0] + lumaG*p[1] + lumaB*p[2]}
}

// WGSLUnary returns the WGSL form of Apply.
func (Gray) WGSLUnary(p string) string {
	return fmt.Sprintf("vec4<f32>(dot((%s).xyz, vec3<f32>(%s, %s, %s)), 0.0, 0.0, 0.0)",
		p, wgslFloat(lumaR), wgslFloat(lumaG), wgslFloat(lumaB))
}

// Convert changes the scalar kind and keeps the channel count. Conversion
// to Uint8 rounds and saturates.
type Convert struct {
	To vision.ScalarKind
}

// Name returns "convert".
func (Convert) Name() string { return "convert" }

// OutType returns in with the scalar kind replaced.
func (c Convert) OutType(in vision.ElementType) vision.ElementType {
	return vision.ElementType{Scalar: c.To, Channels: in.Channels}
}

// Apply returns p unchanged; the device quantizes the output.
func (Convert) Apply(p vision.Pixel) vision.Pixel { return p }

// WGSLUnary returns p.
func (Convert) WGSLUnary(p string) string { return p }

// Add sums two operands channel by channel.
type Add struct{}

// Name returns "add".
func (Add) Name() string { return "add" }

// OutType returns the wider of the two types.
func (Add) OutType(l, r vision.ElementType) vision.ElementType { return wider(l, r) }

// Apply returns l + r.
func (Add) Apply(l, r vision.Pixel) vision.Pixel {
	for i := range l {
		l[i] += r[i]
	}
	return l
}

// WGSLBinary returns the WGSL form of Apply.
func (Add) WGSLBinary(l, r string) string { return "(" + l + " + " + r + ")" }

// Sub subtracts the right operand from the left.
type Sub struct{}

// Name returns "sub".
func (Sub) Name() string { return "sub" }

// OutType returns the wider of the two types.
func (Sub) OutType(l, r vision.ElementType) vision.ElementType { return wider(l, r) }

// Apply returns l - r.
func (Sub) Apply(l, r vision.Pixel) vision.Pixel {
	for i := range l {
		l[i] -= r[i]
	}
	return l
}

// WGSLBinary returns the WGSL form of Apply.
func (Sub) WGSLBinary(l, r string) string { return "(" + l + " - " + r + ")" }

// Mul multiplies two operands channel by channel.
type Mul struct{}

// Name returns "mul".
func (Mul) Name() string { return "mul" }

// OutType returns the wider of the two types.
func (Mul) OutType(l, r vision.ElementType) vision.ElementType { return wider(l, r) }

// Apply returns l * r.
func (Mul) Apply(l, r vision.Pixel) vision.Pixel {
	for i := range l {
		l[i] *= r[i]
	}
	return l
}

// WGSLBinary returns the WGSL form of Apply.
func (Mul) WGSLBinary(l, r string) string { return "(" + l + " * " + r + ")" }

// wider returns Float32 if either scalar is Float32, with the larger
// channel count.
func wider(l, r vision.ElementType) vision.ElementType {
	out := l
	if r.Scalar == vision.Float32 {
		out.Scalar = vision.Float32
	}
	out.Channels = max(l.Channels, r.Channels)
	return out
}

// wgslFloat formats v as a WGSL f32 literal.
func wgslFloat(v float32) string {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		v = 0
	}
	s := strconv.FormatFloat(float64(v), 'g', -1, 32)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	if v < 0 {
		s = "(" + s + ")"
	}
	return s
}
