package cycle

import (
	"time"

	"github.com/newswire-labs/selflearn-controller/internal/quality"
)

// #region config
// Config sets the learning windows and activation thresholds.
type Config struct {
	WindowDays       int `yaml:"window_days"`
	CompareDays      int `yaml:"compare_days"`
	MinSamplesRoute  int `yaml:"min_samples_route"`
	MinSamplesPrompt int `yaml:"min_samples_prompt"`
}

// DefaultConfig returns the production cycle parameters.
func DefaultConfig() Config {
	return Config{
		WindowDays:       7,
		CompareDays:      7,
		MinSamplesRoute:  50,
		MinSamplesPrompt: 5,
	}
}

// #endregion config

// #region status
// Cycle statuses. A rollback is a successful cycle whose outcome was
// reverting routing to the conservative state.
const (
	StatusSuccess  = "success"
	StatusMinimal  = "minimal_cycle"
	StatusError    = "error"
	StatusRollback = "rollback_executed"
)

// #endregion status

// #region summary
// Summary is the persisted record of one learning cycle.
type Summary struct {
	ID         string    `json:"cycle_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`

	EventsRead     int `json:"events_read"`
	CompleteEvents int `json:"complete_events"`
	BanditUpdates  int `json:"bandit_updates"`
	PromptUpdates  int `json:"prompt_updates"`

	Report          *quality.BatchReport `json:"quality_report,omitempty"`
	Regression      *quality.Verdict     `json:"regression,omitempty"`
	Calibration     []string             `json:"calibration_adjustments,omitempty"`
	RollbackReasons []string             `json:"rollback_reasons,omitempty"`
	Error           string               `json:"error,omitempty"`
}

// #endregion summary
