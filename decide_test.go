package vision

import (
	"errors"
	"math/rand"
	"slices"
	"testing"
)

// chain builds leaf -> point -> neighbour(shape) -> point -> neighbour, where
// the first neighbour changes the extent.
//
//	n2 = centre(p1(n1(p0(leaf))))
//	n1 has StencilConds
func chain(t *testing.T) (root *NeighborNode, n1 *NeighborNode, p0, p1 *PointNode) {
	t.Helper()
	p0 = point(t, hostLeaf(t, 8, 8, 1))
	n1 = stencil(t, p0, &Shape{Cols: 4, Rows: 4, Storage: StorageBuffer2D})
	p1 = point(t, n1)
	root = stencil(t, p1, nil)
	return root, n1, p0, p1
}

// =============================================================================
// Fusion modes
// =============================================================================

func TestPlanAutoFusesWithoutStencil(t *testing.T) {
	root := stencil(t, point(t, point(t, hostLeaf(t, 8, 8, 1))), nil)

	plan, err := Plan(root)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got := plan.Boundaries(); len(got) != 1 || got[0] != root {
		t.Errorf("Boundaries() = %v, want only the root", got)
	}
	if want := "[centre(pass(pass(leaf)), leaf)]"; plan.String() != want {
		t.Errorf("String() = %q, want %q", plan.String(), want)
	}
}

func TestPlanStencilForcesOperands(t *testing.T) {
	root, n1, p0, p1 := chain(t)

	plan, err := Plan(root)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	// n1 is neither the root nor forced by its parent, so it stays lazy;
	// its own StencilConds forces its signal p0 to materialize.
	want := []Node{p0, root}
	if got := plan.Boundaries(); !slices.Equal(got, want) {
		t.Errorf("Boundaries() = %v, want [p0 root]", names(got))
	}

	for _, n := range []Node{n1, p1} {
		if slices.Contains(plan.Boundaries(), n) {
			t.Errorf("%s materialized without being forced", n.Name())
		}
	}
}

func TestPlanStencilForcesFilterToo(t *testing.T) {
	sig := hostLeaf(t, 8, 8, 1)
	filter := point(t, hostLeaf(t, 3, 3, 1))
	n, err := NeighbourShape(centreOp{}, Shape{Cols: 6, Rows: 6}, sig, filter)
	if err != nil {
		t.Fatalf("NeighbourShape: %v", err)
	}
	root := point(t, n)

	plan, err := Plan(root)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := []Node{filter, root}
	if got := plan.Boundaries(); !slices.Equal(got, want) {
		t.Errorf("Boundaries() = %v, want [filter root]", names(got))
	}
}

func TestPlanModes(t *testing.T) {
	tests := []struct {
		mode FusionMode
		want func(root *NeighborNode, n1 *NeighborNode, p0, p1 *PointNode) []Node
	}{
		{FuseAuto, func(root, _ *NeighborNode, p0, _ *PointNode) []Node { return []Node{p0, root} }},
		{FuseConservative, func(root, n1 *NeighborNode, p0, p1 *PointNode) []Node { return []Node{p0, n1, p1, root} }},
		{FuseNone, func(root, n1 *NeighborNode, p0, p1 *PointNode) []Node { return []Node{p0, n1, p1, root} }},
		{FuseAll, func(root, _ *NeighborNode, _, _ *PointNode) []Node { return []Node{root} }},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			root, n1, p0, p1 := chain(t)
			plan, err := Plan(root, WithFusion(tt.mode))
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			want := tt.want(root, n1, p0, p1)
			if got := plan.Boundaries(); !slices.Equal(got, want) {
				t.Errorf("Boundaries() = %v, want %v", names(got), names(want))
			}
		})
	}
}

func TestConservativeKeepsPureSubtreesLazy(t *testing.T) {
	// No StencilConds anywhere: conservative fusion behaves like auto.
	root := stencil(t, point(t, hostLeaf(t, 8, 8, 1)), nil)
	plan, err := Plan(root, WithFusion(FuseConservative))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Kernels() != 1 {
		t.Errorf("Kernels() = %d, want 1", plan.Kernels())
	}
}

func TestPlanBareLeaf(t *testing.T) {
	l := hostLeaf(t, 2, 2, 1)
	plan, err := Plan(l)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Kind() != FragmentKernel || plan.Node() != l {
		t.Errorf("Plan(leaf) = %s %v, want a kernel for the leaf", plan.Kind(), plan)
	}
}

func TestPlanNil(t *testing.T) {
	if _, err := Plan(nil); !errors.Is(err, ErrNilNode) {
		t.Errorf("Plan(nil) err = %v, want ErrNilNode", err)
	}
}

// =============================================================================
// Determinism and reset
// =============================================================================

func TestPlanDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for range 100 {
		root := randomTree(t, rng, 1+rng.Intn(4))
		if root.Kind() == KindLeaf {
			continue
		}

		first, err := Plan(root)
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}
		root.Reset(true)
		second, err := Plan(root)
		if err != nil {
			t.Fatalf("Plan after Reset: %v", err)
		}

		if !slices.Equal(first.Boundaries(), second.Boundaries()) {
			t.Fatalf("boundaries differ: %v vs %v", names(first.Boundaries()), names(second.Boundaries()))
		}
		if first.String() != second.String() {
			t.Fatalf("plans differ: %s vs %s", first, second)
		}
	}
}

func TestPlanStaleTree(t *testing.T) {
	root, _, _, _ := chain(t)

	if _, err := Plan(root); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if root.Armed() {
		t.Error("root still armed after a decision pass")
	}
	if _, err := Plan(root); !errors.Is(err, ErrStaleTree) {
		t.Errorf("second Plan without Reset: err = %v, want ErrStaleTree", err)
	}

	root.Reset(true)
	Walk(root, func(n Node) bool {
		if !n.Armed() {
			t.Errorf("%s not armed after Reset(true)", n.Name())
		}
		return true
	})
	if _, err := Plan(root); err != nil {
		t.Errorf("Plan after Reset: %v", err)
	}
}

func TestResetFalseDisarms(t *testing.T) {
	root, _, p0, _ := chain(t)
	root.Reset(false)
	if p0.Armed() {
		t.Error("Reset(false) did not reach the deepest interior node")
	}
	if _, err := Plan(root); !errors.Is(err, ErrStaleTree) {
		t.Errorf("Plan on disarmed tree: err = %v, want ErrStaleTree", err)
	}
}

func TestSharedLeafIsNotStale(t *testing.T) {
	l := hostLeaf(t, 4, 4, 1)
	root, err := Point2(sumOp{}, point(t, l), point(t, l))
	if err != nil {
		t.Fatalf("Point2: %v", err)
	}
	if _, err := Plan(root); err != nil {
		t.Errorf("Plan with a shared leaf: %v", err)
	}
}

func TestParseFusionMode(t *testing.T) {
	for _, m := range []FusionMode{FuseAuto, FuseConservative, FuseNone, FuseAll} {
		got, err := ParseFusionMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseFusionMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseFusionMode("greedy"); err == nil {
		t.Error("ParseFusionMode(greedy) succeeded")
	}
}

func names(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}
