package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/vision"
)

func newPlanCmd(a *app) *cobra.Command {
	var (
		pipeline string
		extent   string
		wgsl     bool
		p        params
	)
	cmd := &cobra.Command{
		Use:   "plan [image]",
		Short: "Show where kernel boundaries fall",
		Long: `Build a pipeline and run only the decision pass. Each materialized node
is listed with its element type, extent, level and halo; bracketed groups
in the expression are kernels.

Without an image the pipeline is built over a blank RGBA image of --extent.
With --wgsl the cycle is also run on a recording device and the shader
generated for each kernel is printed.`,
		Example: `  visiondemo plan --pipeline edge
  visiondemo plan --pipeline unsharp --fusion none
  visiondemo plan --pipeline blur --wgsl`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := planSource(args, extent)
			if err != nil {
				return err
			}
			root, err := buildPipeline(pipeline, src, p)
			if err != nil {
				return err
			}
			opts, err := a.runOptions(nil)
			if err != nil {
				return err
			}

			plan, err := vision.Plan(root, opts...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			writePlan(out, pipeline, plan)
			if !wgsl {
				return nil
			}

			root.Reset(true)
			dry := &dryDevice{}
			res, err := vision.Run(cmd.Context(), root, append(opts, vision.WithDevice(dry))...)
			if err != nil {
				return err
			}
			res.Release()
			for i, k := range dry.kernels {
				code, err := kernelSource(k)
				if err != nil {
					return fmt.Errorf("kernel %d (%s): %w", i, k.Name, err)
				}
				fmt.Fprintf(out, "\n// kernel %d: %s\n%s", i, k, code)
			}
			return nil
		},
	}

	bindParams(cmd.Flags(), &pipeline, &p)
	cmd.Flags().StringVar(&extent, "extent", "64x64", "extent of the blank image, COLSxROWS")
	cmd.Flags().BoolVar(&wgsl, "wgsl", false, "print the generated WGSL for each kernel")
	return cmd
}

// planSource returns a leaf of the image named in args, or a blank image
// of the given extent.
func planSource(args []string, extent string) (*vision.Leaf, error) {
	if len(args) == 1 {
		img, err := decodeFile(args[0])
		if err != nil {
			return nil, err
		}
		return vision.LeafFromImage(img, vision.RGBAF32, vision.StorageBuffer2D)
	}
	d, err := parseExtent(extent)
	if err != nil {
		return nil, err
	}
	h, err := vision.NewHostImage(vision.RGBAF32, d)
	if err != nil {
		return nil, err
	}
	return vision.NewLeaf(h, vision.StorageBuffer2D)
}

// parseExtent parses "COLSxROWS".
func parseExtent(s string) (vision.Dims, error) {
	cols, rows, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return vision.Dims{}, fmt.Errorf("invalid extent %q: want COLSxROWS", s)
	}
	c, err := strconv.Atoi(cols)
	if err != nil {
		return vision.Dims{}, fmt.Errorf("invalid extent %q: %w", s, err)
	}
	r, err := strconv.Atoi(rows)
	if err != nil {
		return vision.Dims{}, fmt.Errorf("invalid extent %q: %w", s, err)
	}
	if c <= 0 || r <= 0 {
		return vision.Dims{}, fmt.Errorf("invalid extent %q: must be positive", s)
	}
	return vision.Dims{Cols: c, Rows: r}, nil
}
