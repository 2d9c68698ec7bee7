package cmd

// #region imports
import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newswire-labs/selflearn-controller/internal/feedback"
	"github.com/newswire-labs/selflearn-controller/internal/sim"
)

// #endregion

// #region simulate-command

var (
	simItems       int
	simSeed        int64
	simEconomyMean float64
	simPremiumMean float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the bandit against a synthetic reward scenario",
	Long: `Run a fresh bandit against synthetic items whose rewards are
Bernoulli draws around the configured per-tier means, and report how
traffic converged. Useful for sanity-checking routing parameters
before a deployment.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().IntVar(&simItems, "items", 500, "number of synthetic items")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 1, "random seed")
	simulateCmd.Flags().Float64Var(&simEconomyMean, "economy-mean", 0.35, "true mean reward of the economy tier")
	simulateCmd.Flags().Float64Var(&simPremiumMean, "premium-mean", 0.75, "true mean reward of the premium tier")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	sc := sim.DefaultScenario()
	sc.Items = simItems
	sc.Seed = simSeed
	sc.TrueMeans = map[feedback.Tier]float64{
		feedback.TierEconomy: simEconomyMean,
		feedback.TierPremium: simPremiumMean,
	}

	result, err := sim.Run(sc)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// #endregion
