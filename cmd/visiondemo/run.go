package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gogpu/vision"
)

func bindParams(fs *pflag.FlagSet, pipeline *string, p *params) {
	d := defaultParams()
	fs.StringVarP(pipeline, "pipeline", "p", "blur", fmt.Sprintf("pipeline to build %v", pipelineNames()))
	fs.Float64Var(&p.Sigma, "sigma", d.Sigma, "gaussian sigma (blur, unsharp)")
	fs.Float32Var(&p.Amount, "amount", d.Amount, "sharpening amount (unsharp)")
	fs.Float32Var(&p.Threshold, "threshold", d.Threshold, "edge threshold in [0, 1], 0 keeps magnitudes (edge)")
	fs.IntVar(&p.Size, "size", d.Size, "structuring element size (open)")
}

func newRunCmd(a *app) *cobra.Command {
	var (
		pipeline string
		output   string
		p        params
	)
	cmd := &cobra.Command{
		Use:   "run <image>",
		Short: "Run a pipeline over an image",
		Long: `Decode an image (PNG, JPEG, BMP or TIFF), run the selected pipeline on
the configured device and write the result. The output format follows the
extension of --output.`,
		Example: `  # Gaussian blur on the default device
  visiondemo run photo.png

  # Thresholded edges on the gpu, one kernel for the whole tree
  visiondemo run --pipeline edge --threshold 0.3 --device gpu --fusion all -o edges.png photo.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := decodeFile(args[0])
			if err != nil {
				return err
			}
			src, err := vision.LeafFromImage(img, vision.RGBAF32, vision.StorageBuffer2D)
			if err != nil {
				return err
			}
			root, err := buildPipeline(pipeline, src, p)
			if err != nil {
				return err
			}

			dev, closeDev, err := openDevice(a.cfg, a.log)
			if err != nil {
				return err
			}
			defer closeDev()

			opts, err := a.runOptions(dev)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			start := time.Now()
			res, err := vision.Run(ctx, root, opts...)
			if err != nil {
				return fmt.Errorf("run %s: %w", pipeline, err)
			}
			defer res.Release()

			host, err := res.Download(ctx)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			if err := encodeFile(output, host.ToImage()); err != nil {
				return err
			}
			newReport(pipeline, res, a.cfg, elapsed).write(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "  written        %s\n", output)
			return nil
		},
	}

	bindParams(cmd.Flags(), &pipeline, &p)
	cmd.Flags().StringVarP(&output, "output", "o", "out.png", "output file")
	return cmd
}
