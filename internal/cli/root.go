// Package cli provides the convprobe command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/born-ml/convprobe/internal/check"
	"github.com/born-ml/convprobe/internal/config"
)

// Version is set at build time.
var Version = "0.1.0-dev"

// ErrMismatch is returned under --strict when a scenario is out of tolerance.
var ErrMismatch = errors.New("grouped and split results disagree")

// app carries state from PersistentPreRunE to the commands.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

// NewRootCmd creates the root command. Without a subcommand it runs every
// scenario.
func NewRootCmd() *cobra.Command {
	a := &app{logger: slog.New(slog.DiscardHandler)}

	rootCmd := &cobra.Command{
		Use:   "convprobe",
		Short: "Check grouped Conv3D against its per-group split",
		Long: `convprobe builds a grouped 3-D convolution, runs it forward and backward,
then repeats the computation with one ungrouped convolution per group and
compares outputs and gradients.`,
		Version: Version,
		Args:    cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChecks(cmd, nil)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	d := check.DefaultConfig()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: ./convprobe.yaml)")
	pf.StringP("output", "o", string(check.FormatText), "Output format (text|table|markdown|json)")
	pf.String("log-level", "warn", "Log level (debug|info|warn|error)")
	pf.Bool("strict", false, "Exit non-zero when a scenario is out of tolerance")
	pf.String("plot-dir", "", "Write |diff| plots into this directory")
	pf.String("dump-dir", "", "Write compared tensors as SafeTensors into this directory")

	pf.Int("batch", d.Batch, "Batch size")
	pf.Int("in-channels", d.InChannels, "Input channels")
	pf.Int("out-channels", d.OutChannels, "Output channels")
	pf.Int("groups", d.Groups, "Convolution groups")
	pf.IntSlice("kernel", d.Kernel[:], "Kernel size (1 or 3 values)")
	pf.IntSlice("volume", d.Volume[:], "Input depth, height, width (1 or 3 values)")
	pf.IntSlice("stride", d.Stride[:], "Stride (1 or 3 values)")
	pf.IntSlice("padding", d.Padding[:], "Zero padding (1 or 3 values)")
	pf.IntSlice("dilation", d.Dilation[:], "Dilation (1 or 3 values)")
	pf.Bool("bias", d.Bias, "Use a bias term")
	pf.String("dtype", d.DType.String(), "Element type (float32|float64)")
	pf.String("device", d.Device.String(), "Device (cpu|cuda|webgpu)")
	pf.Int64("seed", d.Seed, "Random seed (0 picks one and reports it)")
	pf.Float64("input-scale", d.InputScale, "Scale applied to N(0,1) samples")
	pf.Float64("abs-tol", d.AbsTol, "Absolute tolerance")
	pf.Float64("rel-tol", d.RelTol, "Relative tolerance")
	pf.Int("workers", d.Workers, "CPU workers (0 uses every core)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		formats := make([]string, 0, len(check.Formats()))
		for _, f := range check.Formats() {
			formats = append(formats, string(f))
		}
		return formats, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newRunCommand(a))
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newVersionCommand(Version))

	return rootCmd
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile, cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	lvl, err := cfg.Level()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}))
	if cfg.File != "" {
		a.logger.Debug("using config file", "path", cfg.File)
	}
	return nil
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// mismatchError reports failed scenarios. Out-of-tolerance results are only
// an error under strict.
func mismatchError(reports []*check.Report, strict bool) error {
	var failed []string
	for _, r := range reports {
		if !r.Pass() {
			failed = append(failed, r.Scenario)
		}
	}
	if len(failed) == 0 || !strict {
		return nil
	}
	return fmt.Errorf("%w: %d of %d scenarios (%v)", ErrMismatch, len(failed), len(reports), failed)
}
