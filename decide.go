package vision

import (
	"context"
	"fmt"
	"log/slog"
)

// FusionMode selects how the decision pass places kernel boundaries. All
// modes produce the same output values; they differ in kernel count and
// intermediate memory.
type FusionMode uint8

const (
	// FuseAuto materializes a node only when its parent forces it. A node
	// whose output shape differs from its signal forces both operands.
	// This is the default.
	FuseAuto FusionMode = iota

	// FuseConservative additionally materializes every node whose subtree
	// contains a shape change, and forces the operands of every node that
	// materializes.
	FuseConservative

	// FuseNone materializes every interior node.
	FuseNone

	// FuseAll materializes only the root: the whole tree becomes one
	// kernel.
	FuseAll
)

// String returns the mode name.
func (m FusionMode) String() string {
	switch m {
	case FuseAuto:
		return "auto"
	case FuseConservative:
		return "conservative"
	case FuseNone:
		return "none"
	case FuseAll:
		return "all"
	default:
		return fmt.Sprintf("fusion(%d)", uint8(m))
	}
}

// ParseFusionMode parses the name returned by String.
func ParseFusionMode(s string) (FusionMode, error) {
	switch s {
	case "auto", "":
		return FuseAuto, nil
	case "conservative":
		return FuseConservative, nil
	case "none":
		return FuseNone, nil
	case "all":
		return FuseAll, nil
	}
	return FuseAuto, fmt.Errorf("vision: unknown fusion mode %q", s)
}

// obligations returns whether n materializes and whether its operands are
// forced, given the obligation passed down by its parent.
func (m FusionMode) obligations(n Node, forcedByParent bool) (here, children bool) {
	switch m {
	case FuseConservative:
		here = forcedByParent || n.FusionNeeded()
		return here, here || n.StencilConds()
	case FuseNone:
		return true, true
	case FuseAll:
		return false, false
	default:
		// Own StencilConds never materializes the node itself.
		return forcedByParent, n.StencilConds()
	}
}

// planner runs the decision pass.
type planner struct {
	mode FusionMode
	log  *slog.Logger
}

// Plan runs the decision pass over root and returns the fragment tree. The
// root fragment is always a kernel. Plan disarms every interior node it
// visits, exactly like Run; call root.Reset(true) before the next cycle.
//
// Only WithFusion affects the plan; the other options are ignored.
func Plan(root Node, opts ...RunOption) (*Fragment, error) {
	o := newRunOptions(opts)
	p := &planner{mode: o.fusion, log: Logger()}
	return p.plan(root)
}

func (p *planner) plan(root Node) (*Fragment, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: root", ErrNilNode)
	}
	f, err := p.decide(root, false)
	if err != nil {
		return nil, err
	}
	// The cycle's result always lives in its own buffer.
	f.kind = FragmentKernel
	p.log.Debug("vision: plan",
		"mode", p.mode,
		"kernels", f.Kernels(),
		"plan", f.String())
	return f, nil
}

// decide returns the fragment for n. The first call is made at the root
// with forcedByParent false.
func (p *planner) decide(n Node, forcedByParent bool) (*Fragment, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: operand", ErrNilNode)
	}
	if n.Kind() == KindLeaf {
		return &Fragment{kind: FragmentLeaf, node: n}, nil
	}

	m := n.meta()
	if !m.armed {
		return nil, fmt.Errorf("%w: %s at level %d", ErrStaleTree, n.Name(), n.Level())
	}
	m.armed = false

	here, forceChildren := p.mode.obligations(n, forcedByParent)
	if p.log.Enabled(context.Background(), slog.LevelDebug) {
		p.log.Debug("vision: decide",
			"op", n.Name(),
			"level", n.Level(),
			"forced", forcedByParent,
			"stencil", n.StencilConds(),
			"fusionNeeded", n.FusionNeeded(),
			"materialize", here)
	}

	l, r := n.Operands()
	lf, err := p.decide(l, forceChildren)
	if err != nil {
		return nil, err
	}
	var rf *Fragment
	if r != nil {
		if rf, err = p.decide(r, forceChildren); err != nil {
			return nil, err
		}
	}
	return execute(n.StencilConds(), here, n, lf, rf), nil
}

// execute composes template over the operand fragments. Unforced nodes
// stay lazy; forced nodes become kernel boundaries that the execution pass
// materializes. No device is touched here.
func execute(stencilConds, forced bool, template Node, left, right *Fragment) *Fragment {
	kind := FragmentLazy
	if forced {
		kind = FragmentKernel
	}
	return &Fragment{
		kind:    kind,
		node:    template,
		left:    left,
		right:   right,
		stencil: stencilConds,
	}
}
