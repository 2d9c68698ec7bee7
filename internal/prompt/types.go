package prompt

import "time"

// #region config
// Config bounds the prompt variant pool and its exploration rate.
type Config struct {
	VariantsPerTier  int     `yaml:"variants_per_tier"`
	ExplorationShare float64 `yaml:"exploration_share"`
}

// DefaultConfig returns the production tuner parameters.
func DefaultConfig() Config {
	return Config{
		VariantsPerTier:  4,
		ExplorationShare: 0.2,
	}
}

// #endregion config

// #region variant
// Variant is one prompt template under evaluation for a (tier, locale).
type Variant struct {
	ID        string    `json:"id"`
	Tier      string    `json:"tier"`
	Locale    string    `json:"locale"`
	Template  string    `json:"template"`
	Trials    int       `json:"trials"`
	Successes int       `json:"successes"`
	Score     float64   `json:"total_score"`
	CreatedAt time.Time `json:"created_at"`
}

// AvgScore is the mean observed score for the variant.
func (v Variant) AvgScore() float64 {
	if v.Trials == 0 {
		return 0
	}
	return v.Score / float64(v.Trials)
}

// SuccessRate is the fraction of trials counted as successes.
func (v Variant) SuccessRate() float64 {
	if v.Trials == 0 {
		return 0
	}
	return float64(v.Successes) / float64(v.Trials)
}

// #endregion variant

// #region stats
// VariantStats summarizes one variant for inspection output.
type VariantStats struct {
	ID          string  `json:"id"`
	Trials      int     `json:"trials"`
	SuccessRate float64 `json:"success_rate"`
	AvgScore    float64 `json:"avg_score"`
}

// Stats groups variant summaries by tier and locale.
type Stats struct {
	TotalVariants int                       `json:"total_variants"`
	TotalTrials   int                       `json:"total_trials"`
	ByGroup       map[string][]VariantStats `json:"by_group"`
}

// #endregion stats
