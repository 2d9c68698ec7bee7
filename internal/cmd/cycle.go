package cmd

// #region imports
import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/newswire-labs/selflearn-controller/internal/cycle"
)

// #endregion

// #region cycle-command

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one scheduled learning cycle",
	Long: `Run one learning cycle over the feedback window: evaluate quality
gates, check for regressions, update the bandit and prompt variants,
recalibrate the budget, and roll routing back if the window is
unhealthy.

Intended to be invoked by a scheduler. Exit codes:
  0  cycle succeeded (including minimal cycles)
  1  cycle failed
  2  cycle executed a rollback`,
	RunE: runCycle,
}

func runCycle(cmd *cobra.Command, args []string) error {
	c, err := buildComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	runner, err := cycle.NewRunner(cycle.Config{
		WindowDays:       c.cfg.WindowDays,
		CompareDays:      c.cfg.CompareDays,
		MinSamplesRoute:  c.cfg.MinSamplesRoute,
		MinSamplesPrompt: c.cfg.MinSamplesPrompt,
	}, c.store, c.evaluator, c.detector, c.bandit, c.tuner, c.calibrator, c.db)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	fmt.Println(string(out))

	if sum.Status == cycle.StatusRollback {
		exitRollback = true
	}
	return nil
}

// #endregion
