package bandit

import "github.com/newswire-labs/selflearn-controller/internal/feedback"

// #region config

// Algorithm names for arm selection.
const (
	AlgorithmThompson = "thompson"
	AlgorithmUCB      = "ucb"
)

// Config holds the routing policy parameters.
type Config struct {
	Algorithm        string  `yaml:"algorithm"`
	QualityWeight    float64 `yaml:"quality_weight"`
	CostWeight       float64 `yaml:"cost_weight"`
	CostReferenceEUR float64 `yaml:"cost_reference_eur"`
	// ColdStartPremium lists patterns forcing the premium tier before
	// any statistics exist. "fi/*" matches locale "fi" or country "FI";
	// other entries match topic substrings.
	ColdStartPremium []string `yaml:"cold_start_premium"`
}

// DefaultConfig returns the production routing parameters.
func DefaultConfig() Config {
	return Config{
		Algorithm:        AlgorithmThompson,
		QualityWeight:    1.0,
		CostWeight:       0.3,
		CostReferenceEUR: 0.05,
		ColdStartPremium: []string{"fi/*", "central_banking", "monetary_policy", "natsec"},
	}
}

// #endregion config

// #region arm

// Arm holds the Beta posterior and counters for one (context key, tier).
type Arm struct {
	Alpha       float64
	Beta        float64
	Trials      int
	TotalReward float64
}

// newArm returns the uniform Beta(1,1) prior.
func newArm() Arm {
	return Arm{Alpha: 1, Beta: 1}
}

// MeanReward is the observed average reward for the arm.
func (a Arm) MeanReward() float64 {
	if a.Trials == 0 {
		return 0
	}
	return a.TotalReward / float64(a.Trials)
}

// #endregion arm

// #region choice

// Choice is the bandit's tier selection for one item.
type Choice struct {
	Tier    feedback.Tier
	Explore bool
	Reason  string
}

// #endregion choice

// #region stats

// TierStats summarizes one tier across all contexts.
type TierStats struct {
	Trials    int     `json:"trials"`
	AvgReward float64 `json:"avg_reward"`
}

// Stats summarizes the bandit state for inspection.
type Stats struct {
	TotalEvents  int                         `json:"total_events"`
	ContextCount int                         `json:"context_count"`
	PerTier      map[feedback.Tier]TierStats `json:"per_tier"`
}

// #endregion stats
