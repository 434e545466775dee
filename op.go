package vision

// Pixel is the value of one pixel during evaluation. Channels beyond the
// element type's channel count are zero.
type Pixel [4]float32

// Splat returns a pixel with the first n channels set to v.
func Splat(v float32, n int) Pixel {
	var p Pixel
	for i := 0; i < n && i < len(p); i++ {
		p[i] = v
	}
	return p
}

// Operation is the common part of every operation descriptor.
type Operation interface {
	// Name identifies the operation in plans, logs and kernel labels.
	Name() string
}

// UnaryOp is a per-pixel operation over one operand.
type UnaryOp interface {
	Operation
	OutType(in ElementType) ElementType
	Apply(p Pixel) Pixel
}

// BinaryOp is a per-pixel operation over two operands of equal extent.
type BinaryOp interface {
	Operation
	OutType(left, right ElementType) ElementType
	Apply(left, right Pixel) Pixel
}

// NeighborOp is a stencil operation. Apply is called once per output pixel
// with the signal neighbourhood centred on that pixel and the whole filter.
type NeighborOp interface {
	Operation
	OutType(signal, filter ElementType) ElementType
	Apply(nbr Neighborhood, filter Window) Pixel
}

// Neighborhood reads the signal around one output pixel. Offsets are
// relative to the centre and must lie inside Halo; devices report reads
// outside the halo as ErrShape.
type Neighborhood interface {
	At(dc, dr int) Pixel
	Halo() Halo
}

// Window reads an operand by absolute position, for example the filter of a
// neighbour operation.
type Window interface {
	At(c, r int) Pixel
	Dims() Dims

	// Channels returns the channel count of the operand.
	Channels() int
}

// OperationKind distinguishes the three node variants.
type OperationKind uint8

const (
	// KindLeaf is a data node.
	KindLeaf OperationKind = iota

	// KindPoint is a per-pixel node with one or two operands.
	KindPoint

	// KindNeighbor is a stencil node with a signal and a filter operand.
	KindNeighbor
)

// String returns the kind name.
func (k OperationKind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindPoint:
		return "point"
	case KindNeighbor:
		return "neighbor"
	default:
		return "unknown"
	}
}

// WGSLUnaryOp is a unary operation the gpu device can compile. WGSLUnary
// returns a WGSL expression of type vec4<f32> over the operand expression p.
type WGSLUnaryOp interface {
	UnaryOp
	WGSLUnary(p string) string
}

// WGSLBinaryOp is a binary operation the gpu device can compile.
type WGSLBinaryOp interface {
	BinaryOp
	WGSLBinary(left, right string) string
}

// WGSLNeighborOp is a stencil operation the gpu device can compile.
// WGSLNeighbor returns the body of a WGSL function of (x: i32, y: i32)
// returning vec4<f32>.
type WGSLNeighborOp interface {
	NeighborOp
	WGSLNeighbor(s StencilSource) string
}

// StencilSource names what a generated stencil body may read.
type StencilSource struct {
	// Signal and Filter name WGSL functions of (x: i32, y: i32) returning
	// vec4<f32>. Signal takes absolute output coordinates; Filter takes
	// filter coordinates.
	Signal string
	Filter string

	FilterDims     Dims
	FilterChannels int
	Halo           Halo
}
