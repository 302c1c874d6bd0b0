package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/convprobe/internal/check"
)

func newRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run equivalence scenarios",
		Long: `Run the named scenarios in order, or every scenario when none is given.
See "convprobe list" for the available names.`,
		ValidArgsFunction: func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return check.DefaultScenarioNames(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChecks(cmd, args)
		},
	}
}

func (a *app) runChecks(cmd *cobra.Command, names []string) error {
	cfg, err := a.cfg.Check()
	if err != nil {
		return err
	}
	format, err := a.cfg.Format()
	if err != nil {
		return err
	}

	reports, runErr := check.RunAll(cmd.Context(), names, cfg, a.logger)
	if err := check.Render(cmd.OutOrStdout(), format, reports); err != nil {
		return fmt.Errorf("render reports: %w", err)
	}
	if runErr != nil {
		return runErr
	}

	if a.cfg.PlotDir != "" {
		paths, err := check.WritePlots(a.cfg.PlotDir, reports)
		if err != nil {
			return err
		}
		a.logger.Info("wrote plots", "paths", paths)
	}

	if a.cfg.DumpDir != "" {
		paths, err := check.WriteTensors(a.cfg.DumpDir, reports)
		if err != nil {
			return err
		}
		a.logger.Info("wrote tensors", "paths", paths)
	}

	for _, r := range reports {
		if !r.Pass() {
			a.logger.Warn("scenario out of tolerance", "scenario", r.Scenario, "seed", r.Seed,
				"output_max_abs_diff", r.Output.MaxAbsDiff, "input_grad_max_abs_diff", r.InputGrad.MaxAbsDiff)
		}
	}
	return mismatchError(reports, a.cfg.Strict)
}
