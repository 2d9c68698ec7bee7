package sim

// #region imports
import (
	"fmt"
	"math/rand"

	"github.com/newswire-labs/selflearn-controller/internal/bandit"
	"github.com/newswire-labs/selflearn-controller/internal/feedback"
	"github.com/newswire-labs/selflearn-controller/internal/statedb"
)

// #endregion

// #region scenario

// Scenario drives a fresh bandit against synthetic items whose rewards
// are Bernoulli draws around configured per-tier means.
type Scenario struct {
	Name      string                    `yaml:"name"`
	Items     int                       `yaml:"items"`
	Seed      int64                     `yaml:"seed"`
	TrueMeans map[feedback.Tier]float64 `yaml:"true_means"`
	Context   feedback.Context          `yaml:"context"`
}

// DefaultScenario models a context where premium clearly outperforms.
func DefaultScenario() Scenario {
	return Scenario{
		Name:  "premium-pays-off",
		Items: 500,
		Seed:  1,
		TrueMeans: map[feedback.Tier]float64{
			feedback.TierEconomy: 0.35,
			feedback.TierPremium: 0.75,
		},
		Context: feedback.Context{
			Locale: "en", Country: "US", Topic: "technology",
			Complexity: 0.4, Risk: 0.2, SourceReputation: 0.6,
		},
	}
}

// Result summarizes one simulated run.
type Result struct {
	Scenario  string                    `json:"scenario"`
	Items     int                       `json:"items"`
	TierShare map[feedback.Tier]float64 `json:"tier_share"`
	AvgReward float64                   `json:"avg_reward"`
}

// #endregion

// #region run

// Run executes the scenario against an in-memory bandit and reports
// how traffic converged. The run is deterministic for a fixed seed.
func Run(sc Scenario) (Result, error) {
	if sc.Items <= 0 {
		return Result{}, fmt.Errorf("scenario needs a positive item count")
	}

	db, err := statedb.Open(":memory:")
	if err != nil {
		return Result{}, fmt.Errorf("open scratch db: %w", err)
	}
	defer db.Close()

	b, err := bandit.NewBanditWithSource(db, bandit.DefaultConfig(), rand.NewSource(sc.Seed))
	if err != nil {
		return Result{}, fmt.Errorf("init bandit: %w", err)
	}
	rng := rand.New(rand.NewSource(sc.Seed + 1))

	counts := make(map[feedback.Tier]int)
	totalReward := 0.0
	for i := 0; i < sc.Items; i++ {
		choice, err := b.Choose(sc.Context)
		if err != nil {
			return Result{}, fmt.Errorf("choose item %d: %w", i, err)
		}
		counts[choice.Tier]++

		reward := 0.0
		if rng.Float64() < sc.TrueMeans[choice.Tier] {
			reward = 1.0
		}
		totalReward += reward
		if err := b.Update(sc.Context, choice.Tier, reward); err != nil {
			return Result{}, fmt.Errorf("update item %d: %w", i, err)
		}
	}

	result := Result{
		Scenario:  sc.Name,
		Items:     sc.Items,
		TierShare: make(map[feedback.Tier]float64),
		AvgReward: totalReward / float64(sc.Items),
	}
	for tier, n := range counts {
		result.TierShare[tier] = float64(n) / float64(sc.Items)
	}
	return result, nil
}

// #endregion
