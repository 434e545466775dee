// Package ops provides a small library of operations for vision trees.
//
// Point operations (one operand):
//   - Scale, Offset: affine channel transforms
//   - Abs, Threshold: per-channel nonlinearities
//   - Gray: luma of an RGB(A) pixel
//   - Convert: change the scalar kind
//
// Binary point operations: Add, Sub, Mul.
//
// Neighbour operations take a signal and a filter operand:
//   - Convolve: filter-weighted sum over the window
//   - Erode, Dilate: minimum and maximum over the filter support
//
// Filter constructors (BoxFilter, GaussianFilter, SobelX, SobelY,
// SquareElement) return host images meant to be wrapped with
// vision.NewLeaf.
//
// Every operation implements the WGSL interfaces of package vision and can
// run on the gpu device.
package ops
