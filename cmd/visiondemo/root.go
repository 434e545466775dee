package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/config"
)

// app is the state shared by all subcommands once configuration is loaded.
type app struct {
	cfgFile string
	cfg     *config.Config
	log     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "visiondemo",
		Short: "Run fused stencil pipelines over images",
		Long: `visiondemo builds small image pipelines (blur, edge detection,
morphological opening, unsharp masking) as lazy expression trees and runs
them on the cpu or gpu device.

Settings are read from ./vision.yaml, VISION_ environment variables and
flags, in increasing priority.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return a.load(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./vision.yaml)")
	config.BindFlags(root.PersistentFlags())

	for _, name := range []string{"device", "fusion", "border", "log-level"} {
		values := completions[name]
		_ = root.RegisterFlagCompletionFunc(name, func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return values, cobra.ShellCompDirectiveNoFileComp
		})
	}

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newPlanCmd(a))
	return root
}

var completions = map[string][]string{
	"device":    {config.DeviceAuto, config.DeviceCPU, config.DeviceGPU},
	"fusion":    {"auto", "conservative", "none", "all"},
	"border":    {"clamp", "zero", "wrap", "mirror"},
	"log-level": {"debug", "info", "warn", "error"},
}

// load reads the configuration and installs the logger.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile, cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	vision.SetLogger(a.log)
	if cfg.File != "" {
		a.log.Debug("using config file", "path", cfg.File)
	}
	return nil
}

// runOptions returns the configured cycle options bound to dev.
func (a *app) runOptions(dev vision.Device) ([]vision.RunOption, error) {
	opts, err := a.cfg.RunOptions()
	if err != nil {
		return nil, err
	}
	if dev != nil {
		opts = append(opts, vision.WithDevice(dev))
	}
	return opts, nil
}
