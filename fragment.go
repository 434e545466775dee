package vision

import (
	"fmt"
	"strings"
)

// FragmentKind distinguishes the states of an evaluated fragment.
type FragmentKind uint8

const (
	// FragmentLeaf stands for a leaf node: data that needs no kernel.
	FragmentLeaf FragmentKind = iota

	// FragmentLazy is a node composed over its operand fragments. It is
	// evaluated inside the kernel of the nearest materialized ancestor.
	FragmentLazy

	// FragmentKernel is a node that materializes into its own buffer. Its
	// operand fragments form the kernel body.
	FragmentKernel

	// FragmentInput appears only in Kernel.Expr and reads Kernel.Inputs.
	FragmentInput
)

// String returns the kind name.
func (k FragmentKind) String() string {
	switch k {
	case FragmentLeaf:
		return "leaf"
	case FragmentLazy:
		return "lazy"
	case FragmentKernel:
		return "kernel"
	case FragmentInput:
		return "input"
	default:
		return fmt.Sprintf("fragment(%d)", uint8(k))
	}
}

// Fragment is the result of deciding one node: a leaf, a lazy composition
// or a kernel boundary. The decision pass returns a fragment tree mirroring
// the expression tree; devices see fragments again as kernel bodies.
type Fragment struct {
	kind    FragmentKind
	node    Node
	left    *Fragment
	right   *Fragment
	stencil bool
	input   int
}

// Kind returns the fragment kind.
func (f *Fragment) Kind() FragmentKind { return f.kind }

// Node returns the node the fragment was decided for. For FragmentInput it
// is the node whose materialized value the input holds.
func (f *Fragment) Node() Node { return f.node }

// Operands returns the operand fragments; either may be nil.
func (f *Fragment) Operands() (left, right *Fragment) { return f.left, f.right }

// StencilConds reports the StencilConds flag of the node at decision time.
func (f *Fragment) StencilConds() bool { return f.stencil }

// Input returns the index into Kernel.Inputs of a FragmentInput.
func (f *Fragment) Input() int { return f.input }

// Boundaries returns the nodes that materialize into their own kernel,
// leaves first. The root of a planned tree is always the last entry.
func (f *Fragment) Boundaries() []Node {
	var out []Node
	var visit func(*Fragment)
	visit = func(f *Fragment) {
		if f == nil {
			return
		}
		visit(f.left)
		visit(f.right)
		if f.kind == FragmentKernel {
			out = append(out, f.node)
		}
	}
	visit(f)
	return out
}

// Kernels returns the number of kernels the fragment tree submits.
func (f *Fragment) Kernels() int { return len(f.Boundaries()) }

// String renders the fragment tree on one line. Kernel boundaries are
// written in square brackets, inputs as #index:
//
//	[abs(convolve(leaf, leaf))]
func (f *Fragment) String() string {
	var sb strings.Builder
	f.format(&sb)
	return sb.String()
}

func (f *Fragment) format(sb *strings.Builder) {
	if f == nil {
		sb.WriteString("<nil>")
		return
	}
	switch f.kind {
	case FragmentLeaf:
		sb.WriteString("leaf")
		return
	case FragmentInput:
		fmt.Fprintf(sb, "#%d", f.input)
		return
	case FragmentKernel:
		sb.WriteByte('[')
	}

	sb.WriteString(f.node.Name())
	if f.left != nil {
		sb.WriteByte('(')
		f.left.format(sb)
		if f.right != nil {
			sb.WriteString(", ")
			f.right.format(sb)
		}
		sb.WriteByte(')')
	}

	if f.kind == FragmentKernel {
		sb.WriteByte(']')
	}
}
