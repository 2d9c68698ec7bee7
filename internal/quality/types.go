package quality

import (
	"fmt"
	"time"

	"github.com/newswire-labs/selflearn-controller/internal/feedback"
)

// #region gate-config
// GateConfig holds the thresholds every healthy window must satisfy.
type GateConfig struct {
	MinPassRate  float64 `yaml:"min_pass_rate"`
	MinCoverage  float64 `yaml:"min_coverage"`
	MaxHalluRate float64 `yaml:"max_hallu_rate"`
	MaxRefMiss   float64 `yaml:"max_ref_miss_rate"`
}

// DefaultGateConfig returns the production gate thresholds.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinPassRate:  0.9,
		MinCoverage:  0.85,
		MaxHalluRate: 0.05,
		MaxRefMiss:   0.15,
	}
}

// #endregion gate-config

// #region metrics
// Interval is a two-sided confidence interval.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Metrics aggregates outcome fields over a set of events.
type Metrics struct {
	PassRate         float64 `json:"pass_rate"`
	Coverage         float64 `json:"coverage"`
	HalluRate        float64 `json:"hallu_rate"`
	RefMissRate      float64 `json:"ref_miss_rate"`
	EditorAcceptRate float64 `json:"editor_accept_rate"`
	Engagement       float64 `json:"user_engagement"`
	AvgCostEUR       float64 `json:"avg_cost_eur"`
	TotalCostEUR     float64 `json:"total_cost_eur"`
	SampleSize       int     `json:"sample_size"`

	// 95% Wilson intervals for the binary metrics, present at n >= 30.
	PassRateCI     *Interval `json:"pass_rate_ci,omitempty"`
	EditorAcceptCI *Interval `json:"editor_accept_ci,omitempty"`
}

// #endregion metrics

// #region gate-failure
// GateFailure names one gate that did not hold, with actual vs threshold.
type GateFailure struct {
	Gate      string  `json:"gate"`
	Actual    float64 `json:"actual"`
	Threshold float64 `json:"threshold"`
}

func (f GateFailure) String() string {
	return fmt.Sprintf("%s: %.3f vs threshold %.3f", f.Gate, f.Actual, f.Threshold)
}

// #endregion gate-failure

// #region batch-report
// BatchReport is the output of EvaluateBatch.
type BatchReport struct {
	Timestamp   time.Time                 `json:"timestamp"`
	TotalEvents int                       `json:"total_events"`
	NoData      bool                      `json:"no_data"`
	Passed      bool                      `json:"passed"`
	Overall     Metrics                   `json:"overall"`
	ByTier      map[feedback.Tier]Metrics `json:"by_tier,omitempty"`
	BySegment   map[string]Metrics        `json:"by_segment,omitempty"`
	Failures    []GateFailure             `json:"failures,omitempty"`
}

// #endregion batch-report

// #region regression-config
// RegressionConfig controls the regression detector.
type RegressionConfig struct {
	Guardrail bool `yaml:"regression_guardrail"`
	// MustNotWorsen lists metric names checked between windows.
	// hallu_rate and ref_miss_rate flag when rising; everything else
	// flags when falling.
	MustNotWorsen []string `yaml:"must_not_worsen"`
}

// DefaultRegressionConfig returns the production must-not-worsen set.
func DefaultRegressionConfig() RegressionConfig {
	return RegressionConfig{
		Guardrail:     true,
		MustNotWorsen: []string{"pass_rate", "hallu_rate", "ref_miss_rate"},
	}
}

// #endregion regression-config

// #region verdict
// Verdict is the regression detector's output, carrying both metric
// snapshots for audit.
type Verdict struct {
	Rollback         bool     `json:"rollback"`
	InsufficientData bool     `json:"insufficient_data"`
	Reasons          []string `json:"reasons,omitempty"`
	Recent           Metrics  `json:"recent"`
	Historical       Metrics  `json:"historical"`
}

// #endregion verdict
