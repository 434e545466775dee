package vision

// Node is one operation in an expression tree. The variant set is closed:
// *Leaf, *PointNode and *NeighborNode.
//
// All metadata is computed once by the builders and is read-only
// afterwards. The only mutable state is the execution flag toggled by Reset
// and by the decision pass; a tree must therefore be driven by one cycle at
// a time.
type Node interface {
	// Kind returns the node variant.
	Kind() OperationKind

	// Name returns the operation name, "leaf" for leaves.
	Name() string

	// Descriptor returns the output memory descriptor.
	Descriptor() MemoryDescriptor

	// OutType returns the output element type.
	OutType() ElementType

	// Dims returns the output extent.
	Dims() Dims

	// Storage returns the output storage category.
	Storage() StorageCategory

	// Level returns the tree level: 0 for leaves, 1 + max(operand levels)
	// otherwise.
	Level() int

	// Halo returns the halo read around each output pixel. It is zero for
	// leaves and point nodes.
	Halo() Halo

	// StencilConds reports whether the node's output shape differs from
	// its left operand's shape.
	StencilConds() bool

	// FusionNeeded reports whether StencilConds holds anywhere in the
	// subtree rooted at this node.
	FusionNeeded() bool

	// Operands returns the left and right operands; either may be nil.
	Operands() (left, right Node)

	// Reset resets both operands and then sets the node's execution flag.
	// Reset(true) re-arms a tree for another cycle.
	Reset(flag bool)

	// Armed reports whether the node may be evaluated by the next cycle.
	Armed() bool

	meta() *nodeMeta
}

// nodeMeta holds the metadata shared by all node variants.
type nodeMeta struct {
	desc         MemoryDescriptor
	halo         Halo
	stencilConds bool
	fusionNeeded bool
	armed        bool
}

func (m *nodeMeta) meta() *nodeMeta                { return m }
func (m *nodeMeta) Descriptor() MemoryDescriptor { return m.desc }
func (m *nodeMeta) OutType() ElementType         { return m.desc.Type }
func (m *nodeMeta) Dims() Dims                   { return m.desc.Dims }
func (m *nodeMeta) Storage() StorageCategory     { return m.desc.Storage }
func (m *nodeMeta) Level() int                   { return m.desc.Level }
func (m *nodeMeta) Halo() Halo                   { return m.halo }
func (m *nodeMeta) StencilConds() bool           { return m.stencilConds }
func (m *nodeMeta) FusionNeeded() bool           { return m.fusionNeeded }
func (m *nodeMeta) Armed() bool                  { return m.armed }

// Leaf is a data node. Its data lives either in host memory or in a device
// buffer produced by an earlier cycle. Leaves carry no execution state and
// may appear in several places of one tree.
type Leaf struct {
	nodeMeta
	host *HostImage
	buf  Buffer
	dev  Device
}

// Kind returns KindLeaf.
func (l *Leaf) Kind() OperationKind { return KindLeaf }

// Name returns "leaf".
func (l *Leaf) Name() string { return "leaf" }

// Operands returns nil, nil.
func (l *Leaf) Operands() (left, right Node) { return nil, nil }

// Reset sets the leaf's flag. Leaves are always evaluable, so the flag has
// no effect on cycles.
func (l *Leaf) Reset(flag bool) { l.armed = flag }

// Host returns the host image backing the leaf, or nil for device leaves.
func (l *Leaf) Host() *HostImage { return l.host }

// Buffer returns the device buffer backing the leaf, or nil for host leaves.
func (l *Leaf) Buffer() Buffer { return l.buf }

// Device returns the device owning Buffer, or nil for host leaves.
func (l *Leaf) Device() Device { return l.dev }

// PointNode applies a per-pixel operation to one or two operands.
type PointNode struct {
	nodeMeta
	unary  UnaryOp
	binary BinaryOp
	left   Node
	right  Node
}

// Kind returns KindPoint.
func (p *PointNode) Kind() OperationKind { return KindPoint }

// Name returns the operation name.
func (p *PointNode) Name() string {
	if p.binary != nil {
		return p.binary.Name()
	}
	return p.unary.Name()
}

// Operands returns the operands; right is nil for unary nodes.
func (p *PointNode) Operands() (left, right Node) { return p.left, p.right }

// Unary returns the operation of a unary node, or nil.
func (p *PointNode) Unary() UnaryOp { return p.unary }

// Binary returns the operation of a binary node, or nil.
func (p *PointNode) Binary() BinaryOp { return p.binary }

// Reset resets the operands, then sets the node's flag.
func (p *PointNode) Reset(flag bool) {
	p.left.Reset(flag)
	if p.right != nil {
		p.right.Reset(flag)
	}
	p.armed = flag
}

// NeighborNode applies a stencil operation to a signal using a filter.
type NeighborNode struct {
	nodeMeta
	op     NeighborOp
	signal Node
	filter Node
}

// Kind returns KindNeighbor.
func (n *NeighborNode) Kind() OperationKind { return KindNeighbor }

// Name returns the operation name.
func (n *NeighborNode) Name() string { return n.op.Name() }

// Operands returns the signal and the filter.
func (n *NeighborNode) Operands() (left, right Node) { return n.signal, n.filter }

// Op returns the stencil operation.
func (n *NeighborNode) Op() NeighborOp { return n.op }

// Reset resets the signal and the filter, then sets the node's flag.
func (n *NeighborNode) Reset(flag bool) {
	n.signal.Reset(flag)
	n.filter.Reset(flag)
	n.armed = flag
}

// Walk visits n and its operands depth-first, left before right, until fn
// returns false.
func Walk(n Node, fn func(Node) bool) {
	walk(n, fn)
}

func walk(n Node, fn func(Node) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n) {
		return false
	}
	l, r := n.Operands()
	return walk(l, fn) && walk(r, fn)
}
