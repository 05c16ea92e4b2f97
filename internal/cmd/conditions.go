package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/brainnet/internal/config"
	"github.com/Iron-Ham/brainnet/internal/trial"
)

var conditionsCmd = &cobra.Command{
	Use:   "conditions",
	Short: "Manage trial order files",
}

var conditionsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write one shuffled trial order per condition",
	Long: `Write one shuffled trial order per condition into experiment.order_dir.

Each order holds experiment.experimental_trials experimental trials and
experiment.control_trials control trials. The shuffle is seeded by the
condition number, so regenerating yields the same files.`,
	Args: cobra.NoArgs,
	RunE: runConditionsGenerate,
}

var conditionsShowCmd = &cobra.Command{
	Use:   "show <condition>",
	Short: "Print the trial order of one condition",
	Args:  cobra.ExactArgs(1),
	RunE:  runConditionsShow,
}

var conditionsDir string

func init() {
	conditionsCmd.PersistentFlags().StringVar(&conditionsDir, "dir", "", "order directory (default experiment.order_dir)")
	conditionsCmd.AddCommand(conditionsGenerateCmd)
	conditionsCmd.AddCommand(conditionsShowCmd)
}

func orderDir(cfg *config.Config) string {
	if conditionsDir != "" {
		return conditionsDir
	}
	return cfg.Experiment.OrderDir
}

func runConditionsGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	e := cfg.Experiment
	paths, err := trial.GenerateAll(orderDir(cfg), e.Conditions, e.ExperimentalTrials, e.ControlTrials)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range paths {
		fmt.Fprintln(out, p)
	}
	fmt.Fprintf(out, "Wrote %d conditions (%d experimental, %d control trials each).\n",
		len(paths), e.ExperimentalTrials, e.ControlTrials)
	return nil
}

func runConditionsShow(cmd *cobra.Command, args []string) error {
	condition, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid condition %q: %w", args[0], err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	order, err := trial.Load(trial.Path(orderDir(cfg), condition))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, tag := range order {
		fmt.Fprintf(out, "%3d  %s\n", i, tag)
	}
	exp, ctrl := order.Count()
	fmt.Fprintf(out, "%d experimental, %d control\n", exp, ctrl)
	return nil
}
