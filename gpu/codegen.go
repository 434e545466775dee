//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/vision"
)

// ErrUnsupported is returned for kernels containing an operation without a
// WGSL form.
var ErrUnsupported = errors.New("gpu: operation has no WGSL form")

// Source returns the WGSL compute shader that evaluates k.
//
// Binding 0 is the output buffer; bindings 1..n are the kernel inputs in
// order. Every buffer is an array of f32 with interleaved channels.
func Source(k *vision.Kernel) (string, error) {
	g := &generator{k: k, inputs: make(map[int]string)}
	return g.generate()
}

// generator emits one WGSL function per expression node. Node n<i> returns
// the node's value at an in-range position; b<i> applies the border policy
// first and is what parents call.
type generator struct {
	k      *vision.Kernel
	next   int
	inputs map[int]string
	fns    strings.Builder
}

func (g *generator) generate() (string, error) {
	if g.k == nil || g.k.Expr == nil {
		return "", fmt.Errorf("%w: empty kernel", vision.ErrNilNode)
	}
	out := g.k.Output
	if !out.Type.Valid() {
		return "", fmt.Errorf("%w: kernel output type %s", vision.ErrShape, out.Type)
	}

	root, err := g.expr(g.k.Expr)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("@group(0) @binding(0) var<storage, read_write> out_buf: array<f32>;\n")
	for i := range g.k.Inputs {
		fmt.Fprintf(&sb, "@group(0) @binding(%d) var<storage, read> in%d: array<f32>;\n", i+1, i)
	}
	sb.WriteString("\n")
	sb.WriteString(g.edgeFn())
	sb.WriteString(quantFn)
	sb.WriteString(keepFns)
	sb.WriteString(g.fns.String())

	tile := g.k.Tile
	fmt.Fprintf(&sb, "@compute @workgroup_size(%d, %d, 1)\n", tile.GroupCols, tile.GroupRows)
	sb.WriteString("fn main(@builtin(global_invocation_id) id: vec3<u32>) {\n")
	sb.WriteString("    let x = i32(id.x);\n")
	sb.WriteString("    let y = i32(id.y);\n")
	fmt.Fprintf(&sb, "    if (x >= %d || y >= %d) {\n        return;\n    }\n", out.Dims.Cols, out.Dims.Rows)
	fmt.Fprintf(&sb, "    let v = %s(x, y);\n", root)
	fmt.Fprintf(&sb, "    let i = (y * %d + x) * %d;\n", out.Dims.Cols, out.Type.Channels)
	for c := 0; c < out.Type.Channels; c++ {
		fmt.Fprintf(&sb, "    out_buf[i + %d] = v.%c;\n", c, "xyzw"[c])
	}
	sb.WriteString("}\n")
	return sb.String(), nil
}

// expr emits the functions for f and returns the name of its value
// function.
func (g *generator) expr(f *vision.Fragment) (string, error) {
	if f.Kind() == vision.FragmentInput {
		return g.input(f)
	}
	if f.Kind() != vision.FragmentLazy {
		return "", fmt.Errorf("gpu: unexpected %s fragment in kernel body", f.Kind())
	}

	left, right := f.Operands()
	var l, r string
	var err error
	if left != nil {
		if l, err = g.expr(left); err != nil {
			return "", err
		}
		l = g.border(left.Node().Dims(), l)
	}
	if right != nil {
		if r, err = g.expr(right); err != nil {
			return "", err
		}
		r = g.border(right.Node().Dims(), r)
	}

	n := f.Node()
	name := g.name("n")
	switch node := n.(type) {
	case *vision.PointNode:
		if op := node.Unary(); op != nil {
			w, ok := op.(vision.WGSLUnaryOp)
			if !ok {
				return "", fmt.Errorf("%w: %s", ErrUnsupported, op.Name())
			}
			g.fn(name, fmt.Sprintf("    let p = %s(x, y);\n    return %s;\n", l,
				quantize(n.OutType(), w.WGSLUnary("p"))))
			return name, nil
		}
		w, ok := node.Binary().(vision.WGSLBinaryOp)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnsupported, node.Name())
		}
		g.fn(name, fmt.Sprintf("    let l = %s(x, y);\n    let r = %s(x, y);\n    return %s;\n", l, r,
			quantize(n.OutType(), w.WGSLBinary("l", "r"))))
		return name, nil

	case *vision.NeighborNode:
		w, ok := node.Op().(vision.WGSLNeighborOp)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnsupported, node.Name())
		}
		_, filter := node.Operands()
		if err := fitsHalo(node, filter.Dims()); err != nil {
			return "", err
		}
		stencil := g.name("s")
		g.fn(stencil, w.WGSLNeighbor(vision.StencilSource{
			Signal:         l,
			Filter:         r,
			FilterDims:     filter.Dims(),
			FilterChannels: filter.OutType().Channels,
			Halo:           node.Halo(),
		}))
		g.fn(name, fmt.Sprintf("    return %s;\n", quantize(n.OutType(), stencil+"(x, y)")))
		return name, nil
	}
	return "", fmt.Errorf("%w: %s node", ErrUnsupported, n.Kind())
}

// input emits the loader of one kernel input. Loaders are shared between
// fragments reading the same input.
func (g *generator) input(f *vision.Fragment) (string, error) {
	i := f.Input()
	if name, ok := g.inputs[i]; ok {
		return name, nil
	}
	if i < 0 || i >= len(g.k.Inputs) {
		return "", fmt.Errorf("%w: kernel input #%d of %d", vision.ErrShape, i, len(g.k.Inputs))
	}
	desc := g.k.Inputs[i].Descriptor()
	if desc.Dims != f.Node().Dims() || desc.Type.Channels != f.Node().OutType().Channels {
		return "", fmt.Errorf("%w: input #%d is %s %s, node %s reads %s %s", vision.ErrShape,
			i, desc.Type, desc.Dims, f.Node().Name(), f.Node().OutType(), f.Node().Dims())
	}

	ch := desc.Type.Channels
	comps := make([]string, 4)
	for c := range comps {
		if c < ch {
			comps[c] = fmt.Sprintf("in%d[i + %d]", i, c)
		} else {
			comps[c] = "0.0"
		}
	}
	name := g.name("load")
	g.fn(name, fmt.Sprintf("    let i = (y * %d + x) * %d;\n    return vec4<f32>(%s);\n",
		desc.Dims.Cols, ch, strings.Join(comps, ", ")))
	g.inputs[i] = name
	return name, nil
}

// border wraps the value function of an operand of extent d in the
// kernel's border policy.
func (g *generator) border(d vision.Dims, value string) string {
	name := g.name("b")
	var outside string
	if g.k.Border == vision.BorderZero {
		outside = "    return vec4<f32>(0.0);\n"
	} else {
		outside = fmt.Sprintf("    return %s(edge(x, %d), edge(y, %d));\n", value, d.Cols, d.Rows)
	}
	g.fn(name, fmt.Sprintf("    if (x >= 0 && y >= 0 && x < %d && y < %d) {\n        return %s(x, y);\n    }\n%s",
		d.Cols, d.Rows, value, outside))
	return name
}

func (g *generator) name(prefix string) string {
	g.next++
	return fmt.Sprintf("%s%d", prefix, g.next)
}

func (g *generator) fn(name, body string) {
	fmt.Fprintf(&g.fns, "fn %s(x: i32, y: i32) -> vec4<f32> {\n%s}\n\n", name, body)
}

// edgeFn returns the coordinate remapping of the kernel's border policy.
// Zero padding never calls it.
func (g *generator) edgeFn() string {
	var body string
	switch g.k.Border {
	case vision.BorderWrap:
		body = "    return ((v % n) + n) % n;\n"
	case vision.BorderMirror:
		body = "    if (n == 1) {\n        return 0;\n    }\n" +
			"    let period = 2 * (n - 1);\n" +
			"    var m = ((v % period) + period) % period;\n" +
			"    if (m >= n) {\n        m = period - m;\n    }\n" +
			"    return m;\n"
	default:
		body = "    return clamp(v, 0, n - 1);\n"
	}
	return "fn edge(v: i32, n: i32) -> i32 {\n" + body + "}\n\n"
}

// quantFn rounds half away from zero for the non-negative range and
// saturates, matching vision.Quantize for Uint8.
const quantFn = `fn q_u8(v: vec4<f32>) -> vec4<f32> {
    return clamp(floor(v + vec4<f32>(0.5)), vec4<f32>(0.0), vec4<f32>(255.0));
}

`

// keepFns clear the channels past the first n. They build the vector
// component by component; select on a constant vec4<bool> mask is lowered
// incorrectly by some backends.
const keepFns = `fn keep1(v: vec4<f32>) -> vec4<f32> {
    return vec4<f32>(v.x, 0.0, 0.0, 0.0);
}

fn keep2(v: vec4<f32>) -> vec4<f32> {
    return vec4<f32>(v.x, v.y, 0.0, 0.0);
}

fn keep3(v: vec4<f32>) -> vec4<f32> {
    return vec4<f32>(v.x, v.y, v.z, 0.0);
}

`

// quantize wraps expr in the conversion to t: unused channels are cleared
// and Uint8 values rounded.
func quantize(t vision.ElementType, expr string) string {
	if t.Scalar == vision.Uint8 {
		expr = "q_u8(" + expr + ")"
	}
	if t.Channels >= 4 {
		return expr
	}
	return fmt.Sprintf("keep%d(%s)", t.Channels, expr)
}

// fitsHalo reports an ErrShape when the filter window of n reaches past
// its declared halo. Stencil loops read signal offsets
// [-Left, filter.Cols-1-Left] x [-Top, filter.Rows-1-Top].
func fitsHalo(n *vision.NeighborNode, filter vision.Dims) error {
	h := n.Halo()
	if filter.Cols-1-h.Left > h.Right || filter.Rows-1-h.Top > h.Bottom {
		return fmt.Errorf("%w: %s reads a %s window outside halo %s", vision.ErrShape, n.Name(), filter, h)
	}
	return nil
}
