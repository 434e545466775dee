// Package vision builds image-processing pipelines as lazy expression trees
// and decides, before any kernel runs, how the tree is split into fused
// device kernels.
//
// # Overview
//
// A pipeline is a tree of nodes. Leaves hold image data, point nodes apply a
// per-pixel operation to one or two operands, and neighbour nodes apply a
// stencil operation to a signal operand using a filter operand:
//
//	src, _ := vision.NewLeaf(img, vision.StorageBuffer2D)
//	box, _ := vision.NewLeaf(ops.BoxFilter(3), vision.StorageBuffer2D)
//
//	blur, _ := vision.Neighbour(ops.Convolve{}, src, box)
//	edge, _ := vision.Point(ops.Abs{}, blur)
//
//	dev := cpu.New()
//	defer dev.Close()
//
//	res, err := vision.Run(ctx, edge, vision.WithDevice(dev))
//	if err != nil {
//	    return err
//	}
//	defer res.Release()
//	out, err := res.Download(ctx)
//
// Every node freezes its metadata at construction: element type, dimensions,
// storage category, tree level, halo and the two fusion flags. StencilConds
// is set when a node's output shape differs from its signal's shape and
// FusionNeeded is the OR of StencilConds over the whole subtree.
//
// # Fusion
//
// [Run] performs one cycle: a structural decision pass from the root down
// followed by an execution pass from the leaves up. A node materializes only
// when its parent forces it; a node with StencilConds forces both of its
// operands. Everything between two materialization boundaries is evaluated
// inside one kernel. [Plan] runs the decision pass alone, which is useful
// for inspecting kernel boundaries without a device.
//
// A tree can be replayed: call Reset(true) on the root before every new
// cycle.
//
// # Devices
//
// The package does not execute kernels itself. A [Device] allocates buffers
// and runs [Kernel] descriptors. Two implementations ship with the module:
//   - cpu: tile-parallel software evaluation (reference)
//   - gpu: WGSL code generation executed through gogpu/wgpu
//
// # Borders
//
// Reads past the edge of an operand are resolved by the [BorderPolicy] of
// the cycle. The default is [BorderClamp], which replicates edge pixels.
package vision
