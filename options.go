package vision

// RunOption configures one cycle started by Run or Plan.
//
// Example:
//
//	// Default device, engine-chosen boundaries, clamped borders
//	res, err := vision.Run(ctx, root)
//
//	// One kernel for the whole tree, zero padding
//	res, err := vision.Run(ctx, root,
//	    vision.WithFusion(vision.FuseAll),
//	    vision.WithBorder(vision.BorderZero))
type RunOption func(*runOptions)

// runOptions holds the configuration of one cycle.
type runOptions struct {
	device Device
	tile   TileSpec
	border BorderPolicy
	fusion FusionMode
}

// defaultRunOptions returns the default cycle options.
func defaultRunOptions() runOptions {
	return runOptions{
		device: nil, // Resolved from DefaultDevice if nil
		tile:   DefaultTileSpec(),
		border: BorderClamp,
		fusion: FuseAuto,
	}
}

func newRunOptions(opts []RunOption) runOptions {
	o := defaultRunOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.tile = o.tile.withDefaults()
	return o
}

// WithDevice sets the device kernels are submitted to. Without it Run uses
// the device registered with RegisterDevice.
func WithDevice(d Device) RunOption {
	return func(o *runOptions) {
		o.device = d
	}
}

// WithTileSpec sets the work partition hints passed to every kernel.
// Zero fields keep their defaults.
func WithTileSpec(t TileSpec) RunOption {
	return func(o *runOptions) {
		o.tile = t
	}
}

// WithBorder sets the policy for reads past the edge of an operand.
func WithBorder(b BorderPolicy) RunOption {
	return func(o *runOptions) {
		o.border = b
	}
}

// WithFusion selects how the decision pass places kernel boundaries.
func WithFusion(m FusionMode) RunOption {
	return func(o *runOptions) {
		o.fusion = m
	}
}
