package vision

import "fmt"

// Shape is an explicit output configuration for a neighbour node.
type Shape struct {
	Cols    int
	Rows    int
	Storage StorageCategory
}

// NewLeaf wraps host image data in a leaf node with the given storage
// category.
func NewLeaf(img *HostImage, storage StorageCategory) (*Leaf, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: leaf image", ErrNilNode)
	}
	if len(img.Pix) != img.Dims.Pixels()*img.Type.Channels {
		return nil, fmt.Errorf("%w: leaf holds %d values for %s %s",
			ErrConstruction, len(img.Pix), img.Type, img.Dims)
	}
	desc, err := ResolveOutput(img.Type, storage, img.Dims.Cols, img.Dims.Rows, 0)
	if err != nil {
		return nil, err
	}
	return &Leaf{nodeMeta: nodeMeta{desc: desc, armed: true}, host: img}, nil
}

// LeafFromBuffer wraps a buffer owned by dev in a leaf node. It is used to
// feed the result of one cycle into another tree.
func LeafFromBuffer(dev Device, buf Buffer) (*Leaf, error) {
	if dev == nil || buf == nil {
		return nil, fmt.Errorf("%w: leaf buffer", ErrNilNode)
	}
	d := buf.Descriptor()
	desc, err := ResolveOutput(d.Type, d.Storage, d.Dims.Cols, d.Dims.Rows, 0)
	if err != nil {
		return nil, err
	}
	return &Leaf{nodeMeta: nodeMeta{desc: desc, armed: true}, buf: buf, dev: dev}, nil
}

// Point builds a unary per-pixel node. The output keeps the operand's
// extent and storage category.
func Point(op UnaryOp, in Node) (*PointNode, error) {
	if op == nil || in == nil {
		return nil, fmt.Errorf("%w: point operand", ErrNilNode)
	}
	d := in.Descriptor()
	desc, err := ResolveOutput(op.OutType(in.OutType()), d.Storage, d.Dims.Cols, d.Dims.Rows, 1+in.Level())
	if err != nil {
		return nil, fmt.Errorf("point %s: %w", op.Name(), err)
	}
	return &PointNode{
		nodeMeta: nodeMeta{
			desc:         desc,
			fusionNeeded: in.FusionNeeded(),
			armed:        true,
		},
		unary: op,
		left:  in,
	}, nil
}

// Point2 builds a binary per-pixel node. Both operands must have the same
// extent; the output takes the left operand's storage category.
func Point2(op BinaryOp, left, right Node) (*PointNode, error) {
	if op == nil || left == nil || right == nil {
		return nil, fmt.Errorf("%w: point operand", ErrNilNode)
	}
	if left.Dims() != right.Dims() {
		return nil, fmt.Errorf("%w: %s operands differ in extent: %s vs %s",
			ErrConstruction, op.Name(), left.Dims(), right.Dims())
	}
	d := left.Descriptor()
	level := 1 + max(left.Level(), right.Level())
	desc, err := ResolveOutput(op.OutType(left.OutType(), right.OutType()), d.Storage, d.Dims.Cols, d.Dims.Rows, level)
	if err != nil {
		return nil, fmt.Errorf("point %s: %w", op.Name(), err)
	}
	return &PointNode{
		nodeMeta: nodeMeta{
			desc:         desc,
			fusionNeeded: left.FusionNeeded() || right.FusionNeeded(),
			armed:        true,
		},
		binary: op,
		left:   left,
		right:  right,
	}, nil
}

// NeighbourShape builds a neighbour node with an explicit output shape and
// the default halo of the filter.
func NeighbourShape(op NeighborOp, shape Shape, signal, filter Node) (*NeighborNode, error) {
	return newNeighbor(op, signal, filter, &shape, nil)
}

// Neighbour builds a neighbour node whose output shape and storage follow
// the signal and whose halo is the default halo of the filter.
func Neighbour(op NeighborOp, signal, filter Node) (*NeighborNode, error) {
	return newNeighbor(op, signal, filter, nil, nil)
}

// NeighbourShapeHalo builds a neighbour node with an explicit output shape
// and an explicit halo.
func NeighbourShapeHalo(op NeighborOp, shape Shape, halo Halo, signal, filter Node) (*NeighborNode, error) {
	return newNeighbor(op, signal, filter, &shape, &halo)
}

// NeighbourHalo builds a neighbour node whose output shape follows the
// signal, with an explicit halo for asymmetric filters.
func NeighbourHalo(op NeighborOp, halo Halo, signal, filter Node) (*NeighborNode, error) {
	return newNeighbor(op, signal, filter, nil, &halo)
}

func newNeighbor(op NeighborOp, signal, filter Node, shape *Shape, halo *Halo) (*NeighborNode, error) {
	if op == nil || signal == nil || filter == nil {
		return nil, fmt.Errorf("%w: neighbour operand", ErrNilNode)
	}

	s := Shape{Cols: signal.Dims().Cols, Rows: signal.Dims().Rows, Storage: signal.Storage()}
	if shape != nil {
		s = *shape
	}
	h := DefaultHalo(filter.Dims())
	if halo != nil {
		h = *halo
	}
	if !h.Valid() {
		return nil, fmt.Errorf("%w: %s has negative halo %s", ErrConstruction, op.Name(), h)
	}

	level := 1 + max(signal.Level(), filter.Level())
	desc, err := ResolveOutput(op.OutType(signal.OutType(), filter.OutType()), s.Storage, s.Cols, s.Rows, level)
	if err != nil {
		return nil, fmt.Errorf("neighbour %s: %w", op.Name(), err)
	}

	stencil := s.Cols != signal.Dims().Cols || s.Rows != signal.Dims().Rows
	return &NeighborNode{
		nodeMeta: nodeMeta{
			desc:         desc,
			halo:         h,
			stencilConds: stencil,
			fusionNeeded: stencil || signal.FusionNeeded() || filter.FusionNeeded(),
			armed:        true,
		},
		op:     op,
		signal: signal,
		filter: filter,
	}, nil
}
