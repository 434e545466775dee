package cpu

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/vision"
)

// sampler evaluates one fragment of a kernel body at a position inside its
// extent. Callers resolve positions outside the extent with the kernel's
// border policy before calling at.
type sampler interface {
	at(x, y int) vision.Pixel
	dims() vision.Dims
	channels() int
}

// compile turns a kernel body into a sampler tree. Halo violations of
// stencil nodes are counted in faults.
func compile(f *vision.Fragment, inputs []*buffer, border vision.BorderPolicy, faults *atomic.Int64) (sampler, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: empty kernel body", vision.ErrNilNode)
	}

	switch f.Kind() {
	case vision.FragmentInput:
		i := f.Input()
		if i < 0 || i >= len(inputs) {
			return nil, fmt.Errorf("input #%d out of range (%d inputs)", i, len(inputs))
		}
		b := inputs[i]
		if want := f.Node().Dims(); b.desc.Dims != want {
			return nil, fmt.Errorf("%w: input #%d holds %s, node expects %s", vision.ErrShape, i, b.desc.Dims, want)
		}
		return &input{buf: b}, nil

	case vision.FragmentLazy:
	default:
		return nil, fmt.Errorf("unexpected %s fragment in kernel body", f.Kind())
	}

	lf, rf := f.Operands()
	left, err := compile(lf, inputs, border, faults)
	if err != nil {
		return nil, err
	}
	var right sampler
	if rf != nil {
		if right, err = compile(rf, inputs, border, faults); err != nil {
			return nil, err
		}
	}

	n := f.Node()
	base := node{out: n.OutType(), size: n.Dims(), border: border}
	switch n := n.(type) {
	case *vision.PointNode:
		if op := n.Binary(); op != nil {
			return &binary{node: base, op: op, left: left, right: right}, nil
		}
		return &unary{node: base, op: n.Unary(), in: left}, nil
	case *vision.NeighborNode:
		return &stencil{node: base, op: n.Op(), signal: left, filter: right, halo: n.Halo(), faults: faults}, nil
	default:
		return nil, fmt.Errorf("cannot evaluate %s node %s", n.Kind(), n.Name())
	}
}

// node is the common part of the interior samplers.
type node struct {
	out    vision.ElementType
	size   vision.Dims
	border vision.BorderPolicy
}

func (n *node) dims() vision.Dims { return n.size }
func (n *node) channels() int     { return n.out.Channels }

// read evaluates s at (x, y), applying the border policy when the position
// lies outside s.
func (n *node) read(s sampler, x, y int) vision.Pixel {
	x, y, ok := n.border.Remap(x, y, s.dims())
	if !ok {
		return vision.Pixel{}
	}
	return s.at(x, y)
}

// input reads a materialized buffer.
type input struct {
	buf *buffer
}

func (in *input) at(x, y int) vision.Pixel {
	var p vision.Pixel
	ch := in.buf.desc.Type.Channels
	i := (y*in.buf.desc.Dims.Cols + x) * ch
	copy(p[:ch], in.buf.pix[i:i+ch])
	return p
}

func (in *input) dims() vision.Dims { return in.buf.desc.Dims }
func (in *input) channels() int     { return in.buf.desc.Type.Channels }

type unary struct {
	node
	op vision.UnaryOp
	in sampler
}

func (u *unary) at(x, y int) vision.Pixel {
	return vision.Quantize(u.out, u.op.Apply(u.read(u.in, x, y)))
}

type binary struct {
	node
	op          vision.BinaryOp
	left, right sampler
}

func (b *binary) at(x, y int) vision.Pixel {
	return vision.Quantize(b.out, b.op.Apply(b.read(b.left, x, y), b.read(b.right, x, y)))
}

type stencil struct {
	node
	op     vision.NeighborOp
	signal sampler
	filter sampler
	halo   vision.Halo
	faults *atomic.Int64
}

func (s *stencil) at(x, y int) vision.Pixel {
	nbr := neighborhood{s: s, x: x, y: y}
	return vision.Quantize(s.out, s.op.Apply(&nbr, window{s: s}))
}

// neighborhood reads the signal of s around (x, y).
type neighborhood struct {
	s    *stencil
	x, y int
}

func (n *neighborhood) At(dc, dr int) vision.Pixel {
	if !n.s.halo.Contains(dc, dr) {
		n.s.faults.Add(1)
	}
	return n.s.read(n.s.signal, n.x+dc, n.y+dr)
}

func (n *neighborhood) Halo() vision.Halo { return n.s.halo }

// window reads the filter of s by absolute position.
type window struct {
	s *stencil
}

func (w window) At(c, r int) vision.Pixel { return w.s.read(w.s.filter, c, r) }
func (w window) Dims() vision.Dims        { return w.s.filter.dims() }
func (w window) Channels() int            { return w.s.filter.channels() }
