package cmd

// #region imports
import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newswire-labs/selflearn-controller/internal/bandit"
	"github.com/newswire-labs/selflearn-controller/internal/budget"
	"github.com/newswire-labs/selflearn-controller/internal/cycle"
	"github.com/newswire-labs/selflearn-controller/internal/prompt"
)

// #endregion

// #region status-command

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show budget, routing, and learning state",
	RunE:  runStatus,
}

type statusOutput struct {
	Budget     budget.Status     `json:"budget"`
	Adjustment budget.Adjustment `json:"routing_adjustment"`
	Bandit     bandit.Stats      `json:"bandit"`
	Prompts    prompt.Stats      `json:"prompts"`
	LastCycle  *cycle.Summary    `json:"last_cycle,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := buildComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	var out statusOutput
	if out.Budget, err = c.calibrator.Status(); err != nil {
		return err
	}
	out.Adjustment = c.calibrator.SafeAdjustment()
	if out.Bandit, err = c.bandit.Statistics(); err != nil {
		return err
	}
	if out.Prompts, err = c.tuner.Statistics(); err != nil {
		return err
	}

	runner, err := cycle.NewRunner(cycle.DefaultConfig(), c.store, c.evaluator, c.detector,
		c.bandit, c.tuner, c.calibrator, c.db)
	if err != nil {
		return err
	}
	if sum, ok, err := runner.Latest(); err != nil {
		return err
	} else if ok {
		out.LastCycle = &sum
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// #endregion
