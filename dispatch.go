package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// cycle is the execution pass of one Run. It turns the kernel fragments of
// a plan into device submissions, leaves first. Independent operands of a
// kernel are materialized concurrently; the kernel itself is submitted only
// after all of them completed.
type cycle struct {
	dev  Device
	opts runOptions
	log  *slog.Logger

	mu      sync.Mutex
	uploads map[*Leaf]*upload

	kernels atomic.Int64
	bytes   atomic.Uint64
}

// upload is the once-per-cycle copy of a host leaf.
type upload struct {
	once sync.Once
	buf  Buffer
	err  error
}

// operand is a materialized kernel input. Owned operands are intermediates
// of this cycle and are released once their consumer was submitted.
type operand struct {
	buf   Buffer
	owned bool
}

func newCycle(dev Device, o runOptions) *cycle {
	return &cycle{
		dev:     dev,
		opts:    o,
		log:     Logger(),
		uploads: make(map[*Leaf]*upload),
	}
}

// materialize returns the buffer holding the value of f.
func (c *cycle) materialize(ctx context.Context, f *Fragment) (operand, error) {
	switch f.kind {
	case FragmentLeaf:
		b, err := c.leaf(ctx, f.node.(*Leaf))
		if err != nil {
			return operand{}, err
		}
		return operand{buf: b}, nil
	case FragmentKernel:
		b, err := c.kernel(ctx, f)
		if err != nil {
			return operand{}, err
		}
		return operand{buf: b, owned: true}, nil
	default:
		return operand{}, fmt.Errorf("vision: cannot materialize %s fragment of %s", f.kind, f.node.Name())
	}
}

// leaf returns the buffer backing l, uploading host data at most once per
// cycle even when l appears under several parents.
func (c *cycle) leaf(ctx context.Context, l *Leaf) (Buffer, error) {
	if l.buf != nil {
		if l.dev != c.dev {
			return nil, fmt.Errorf("%w: leaf buffer belongs to %s, cycle runs on %s",
				ErrDevice, l.dev.Name(), c.dev.Name())
		}
		return l.buf, nil
	}

	c.mu.Lock()
	u, ok := c.uploads[l]
	if !ok {
		u = &upload{}
		c.uploads[l] = u
	}
	c.mu.Unlock()

	u.once.Do(func() {
		b, err := c.dev.Upload(ctx, l.host)
		if err != nil {
			u.err = deviceError("upload", err)
			return
		}
		if got := b.Descriptor(); got.Dims != l.Dims() || got.Type != l.OutType() {
			c.dev.Release(b)
			u.err = fmt.Errorf("%w: upload returned %s %s for leaf %s %s",
				ErrShape, got.Type, got.Dims, l.OutType(), l.Dims())
			return
		}
		u.buf = b
		c.bytes.Add(b.Descriptor().ByteSize())
	})
	return u.buf, u.err
}

// kernel materializes a kernel fragment: its inputs first, then one
// submission writing a freshly allocated buffer.
func (c *cycle) kernel(ctx context.Context, f *Fragment) (Buffer, error) {
	expr, inputs := kernelBody(f)

	ops := make([]operand, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		g.Go(func() error {
			op, err := c.materialize(gctx, in)
			ops[i] = op
			return err
		})
	}
	err := g.Wait()
	defer c.releaseOwned(ops)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k := &Kernel{
		Name:   kernelName(f),
		Expr:   expr,
		Inputs: make([]Buffer, len(ops)),
		Output: f.node.Descriptor(),
		Tile:   c.opts.tile,
		Border: c.opts.border,
	}
	for i, op := range ops {
		k.Inputs[i] = op.buf
	}

	out, err := c.dev.Allocate(k.Output)
	if err != nil {
		return nil, deviceError("allocate "+k.Name, err)
	}
	c.bytes.Add(k.Output.ByteSize())

	c.log.Debug("vision: submit",
		"kernel", k.Name,
		"inputs", len(k.Inputs),
		"output", k.Output.String(),
		"expr", expr.String())

	if err := c.dev.Submit(ctx, k, out); err != nil {
		c.dev.Release(out)
		return nil, deviceError("submit "+k.Name, err)
	}
	c.kernels.Add(1)
	return out, nil
}

func (c *cycle) releaseOwned(ops []operand) {
	for _, op := range ops {
		if op.owned && op.buf != nil {
			c.dev.Release(op.buf)
		}
	}
}

// releaseUploads frees the host leaves uploaded during the cycle.
func (c *cycle) releaseUploads() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for l, u := range c.uploads {
		if u.buf != nil {
			c.dev.Release(u.buf)
		}
		delete(c.uploads, l)
	}
}

// kernelBody builds the expression a kernel fragment evaluates. Lazy
// descendants are inlined; leaves and nested kernels become inputs. A leaf
// read twice by the same kernel is bound once.
func kernelBody(f *Fragment) (*Fragment, []*Fragment) {
	var inputs []*Fragment
	leaves := make(map[Node]int)

	bind := func(src *Fragment) *Fragment {
		if src.kind == FragmentLeaf {
			if i, ok := leaves[src.node]; ok {
				return &Fragment{kind: FragmentInput, node: src.node, input: i}
			}
			leaves[src.node] = len(inputs)
		}
		inputs = append(inputs, src)
		return &Fragment{kind: FragmentInput, node: src.node, input: len(inputs) - 1}
	}

	var inline func(*Fragment) *Fragment
	inline = func(src *Fragment) *Fragment {
		if src == nil {
			return nil
		}
		if src.kind != FragmentLazy {
			return bind(src)
		}
		return &Fragment{
			kind:    FragmentLazy,
			node:    src.node,
			left:    inline(src.left),
			right:   inline(src.right),
			stencil: src.stencil,
		}
	}

	// A bare leaf at the root is copied into the result buffer.
	if f.node.Kind() == KindLeaf {
		return bind(&Fragment{kind: FragmentLeaf, node: f.node}), inputs
	}
	body := &Fragment{
		kind:    FragmentLazy,
		node:    f.node,
		left:    inline(f.left),
		right:   inline(f.right),
		stencil: f.stencil,
	}
	return body, inputs
}

func kernelName(f *Fragment) string {
	if f.node.Kind() == KindLeaf {
		return "copy"
	}
	return f.node.Name()
}

// deviceError wraps a device failure in ErrDevice. Shape violations and
// context errors pass through unchanged.
func deviceError(op string, err error) error {
	if errors.Is(err, ErrShape) || errors.Is(err, ErrDevice) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrDevice, op, err)
}
