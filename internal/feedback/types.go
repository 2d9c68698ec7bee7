package feedback

import (
	"fmt"
	"time"
)

// #region tier
// Tier names a downstream generation path with a distinct cost/quality profile.
type Tier string

const (
	TierEconomy Tier = "economy"
	TierPremium Tier = "premium"
)

// Tiers lists all routing tiers in stable order.
var Tiers = []Tier{TierEconomy, TierPremium}

// #endregion tier

// #region context
// Context is the immutable per-item feature snapshot used for routing and learning.
// Continuous features are in [0,1].
type Context struct {
	Locale           string  `json:"locale" yaml:"locale"`
	Country          string  `json:"country" yaml:"country"`
	Topic            string  `json:"topic" yaml:"topic"`
	Complexity       float64 `json:"complexity" yaml:"complexity"`
	Risk             float64 `json:"risk" yaml:"risk"`
	SourceReputation float64 `json:"source_reputation" yaml:"source_reputation"`
}

// keyVersion is bumped whenever the discretization below changes, so that
// learned state keyed under an older scheme is never silently reused.
const keyVersion = "v1"

// Key derives the finite context key by discretizing continuous features
// into fixed buckets. The derivation is total: every Context maps to a key.
func (c Context) Key() string {
	return fmt.Sprintf("%s|locale:%s|country:%s|topic:%s|cx:%s|rep:%s|risk:%s",
		keyVersion, c.Locale, c.Country, c.Topic,
		levelBucket(c.Complexity), reputationBucket(c.SourceReputation), levelBucket(c.Risk))
}

// levelBucket maps a [0,1] score to low/med/high.
func levelBucket(v float64) string {
	switch {
	case v > 0.6:
		return "high"
	case v > 0.3:
		return "med"
	default:
		return "low"
	}
}

// reputationBucket maps source reputation to low/medium/trusted.
func reputationBucket(v float64) string {
	switch {
	case v > 0.7:
		return "trusted"
	case v > 0.4:
		return "medium"
	default:
		return "low"
	}
}

// #endregion context

// #region decision
// Decision records which tier and prompt variant were chosen for one item.
type Decision struct {
	Tier      Tier   `json:"tier"`
	VariantID string `json:"prompt_variant"`
	Explore   bool   `json:"explore"`
	Reason    string `json:"reason"`
}

// #endregion decision

// #region outcome
// Cost carries the self-reported usage of one generation call.
type Cost struct {
	EUR         float64 `json:"eur"`
	InputUnits  int     `json:"input_units"`
	OutputUnits int     `json:"output_units"`
}

// Outcome holds the measured quality of one routed item.
// EditorAccepted and Engagement are normalized to [0,1] by the caller.
type Outcome struct {
	SchemaOK       bool    `json:"schema_ok"`
	CoverageOK     bool    `json:"coverage_ok"`
	Hallucination  float64 `json:"hallu_score"`
	RefMissRate    float64 `json:"ref_miss_rate"`
	EditorAccepted float64 `json:"editor_accepted"`
	Engagement     float64 `json:"user_engagement"`
	Cost           Cost    `json:"cost"`
}

// #endregion outcome

// #region event
// Event kinds. A decision event is the primary record for one routed item;
// a feedback event is a later addendum linked to it via ParentID.
const (
	KindDecision = "decision"
	KindFeedback = "feedback"
)

// Event is one immutable record in the append-only feedback log.
type Event struct {
	TS        time.Time `json:"ts"`
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	ContentID string    `json:"content_id,omitempty"`

	Context  *Context  `json:"input,omitempty"`
	Decision *Decision `json:"route,omitempty"`
	Outcome  *Outcome  `json:"output,omitempty"`

	User   map[string]float64 `json:"user,omitempty"`
	Editor map[string]float64 `json:"editor,omitempty"`

	// Addendum fields, set only when Kind == KindFeedback.
	ParentID     string         `json:"parent_id,omitempty"`
	FeedbackKind string         `json:"feedback_kind,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// Complete reports whether the event carries everything the learning
// cycle needs: context, decision, and outcome.
func (e Event) Complete() bool {
	return e.Kind == KindDecision && e.Context != nil && e.Decision != nil && e.Outcome != nil
}

// #endregion event
