package budget

import "time"

// #region config
// Config holds the budget envelope and cap thresholds.
type Config struct {
	TargetBudgetEUR float64 `yaml:"target_budget_eur_month"`
	SoftCap         float64 `yaml:"soft_cap"`
	HardCap         float64 `yaml:"hard_cap"`
	PeriodDays      int     `yaml:"period_days"`
}

// DefaultConfig returns the production budget envelope.
func DefaultConfig() Config {
	return Config{
		TargetBudgetEUR: 30.0,
		SoftCap:         0.85,
		HardCap:         1.25,
		PeriodDays:      30,
	}
}

// #endregion config

// #region state
// State is the accounting snapshot for the current period.
type State struct {
	Period       string             `json:"period"`
	EconomySpent float64            `json:"economy_spent"`
	PremiumSpent float64            `json:"premium_spent"`
	TotalSpent   float64            `json:"total_spent"`
	Daily        map[string]float64 `json:"daily_spending"`
	DailyRate    float64            `json:"daily_rate_eur"`
	LastReset    time.Time          `json:"last_reset"`
}

// #endregion state

// #region status
// Status is the derived budget picture used by the calibrator.
type Status struct {
	Spending struct {
		Economy float64 `json:"economy"`
		Premium float64 `json:"premium"`
		Total   float64 `json:"total"`
	} `json:"spending"`
	Budget struct {
		Target      float64 `json:"target"`
		Utilization float64 `json:"utilization"`
		Remaining   float64 `json:"remaining"`
	} `json:"budget"`
	Projection struct {
		EndOfPeriod    float64 `json:"end_of_period_spending"`
		EndUtilization float64 `json:"end_of_period_utilization"`
		DailyRate      float64 `json:"daily_rate"`
	} `json:"projection"`
	Thresholds struct {
		SoftCap       bool `json:"soft_cap_triggered"`
		HardCap       bool `json:"hard_cap_triggered"`
		ProjectedOver bool `json:"projected_over_budget"`
	} `json:"thresholds"`
}

// #endregion status

// #region adjustment
// Adjustment is the routing throttle read by the router before every
// decision. PremiumMultiplier gates premium usage via a Bernoulli draw;
// Frozen stops experimentation; Emergency is the hard-cap lockdown;
// CriticalOnly restricts premium to the critical-content allow-list.
type Adjustment struct {
	PremiumMultiplier float64   `json:"premium_multiplier"`
	Frozen            bool      `json:"frozen"`
	Emergency         bool      `json:"emergency"`
	CriticalOnly      bool      `json:"critical_only"`
	Reason            string    `json:"reason,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DefaultAdjustment is the unrestricted steady state.
func DefaultAdjustment() Adjustment {
	return Adjustment{PremiumMultiplier: 1.0}
}

// ConservativeAdjustment is the fixed fallback used by rollback and by
// the router when the stored adjustment cannot be read: premium stays
// available but only for critical contexts, and experimentation stops.
func ConservativeAdjustment(reason string) Adjustment {
	return Adjustment{
		PremiumMultiplier: 1.0,
		Frozen:            true,
		CriticalOnly:      true,
		Reason:            reason,
	}
}

// #endregion adjustment

// #region calibration-result
// CalibrationResult reports what a calibration pass changed.
type CalibrationResult struct {
	AdjustmentsMade []string   `json:"adjustments_made,omitempty"`
	Adjustment      Adjustment `json:"adjustment"`
	Status          Status     `json:"status"`
}

// #endregion calibration-result
