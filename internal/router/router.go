package router

// #region imports
import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/newswire-labs/selflearn-controller/internal/bandit"
	"github.com/newswire-labs/selflearn-controller/internal/budget"
	"github.com/newswire-labs/selflearn-controller/internal/feedback"
	"github.com/newswire-labs/selflearn-controller/internal/prompt"
)

// #endregion

// #region router-struct

// Router combines the bandit's tier choice, the budget throttle, and
// the prompt tuner into one routing decision per item. Failures degrade
// toward the cheap tier and the base prompt, never toward unrestricted
// premium usage.
type Router struct {
	store  *feedback.Store
	bandit *bandit.Bandit
	tuner  *prompt.Tuner
	budget *budget.Calibrator
	mu     sync.Mutex
}

// New assembles a Router from its learned components.
func New(store *feedback.Store, b *bandit.Bandit, t *prompt.Tuner, c *budget.Calibrator) *Router {
	return &Router{store: store, bandit: b, tuner: t, budget: c}
}

// #endregion

// #region route

// Route decides tier and prompt variant for one item. The bandit
// proposes a tier, the budget calibrator gets the final say, and the
// tuner picks the variant (base only while experiments are frozen).
func (r *Router) Route(ctx feedback.Context) feedback.Decision {
	choice, err := r.bandit.Choose(ctx)
	if err != nil {
		log.Printf("[ROUTER] bandit unavailable, falling back to economy: %v", err)
		choice = bandit.Choice{Tier: feedback.TierEconomy, Reason: "bandit_error_fallback"}
	}

	coldStart := strings.HasPrefix(choice.Reason, "cold_start:")
	tier := feedback.TierEconomy
	reason := choice.Reason
	if r.budget.ShouldUsePremium(choice.Tier == feedback.TierPremium, coldStart, ctx) {
		tier = feedback.TierPremium
	} else if choice.Tier == feedback.TierPremium {
		reason = choice.Reason + "|budget_throttled"
	}

	return feedback.Decision{
		Tier:      tier,
		VariantID: r.pickVariant(tier, ctx.Locale),
		Explore:   choice.Explore,
		Reason:    reason,
	}
}

// pickVariant returns the tuner's proposal, or the base variant while
// experimentation is frozen. When even the base cannot be read the
// decision carries a fallback id the provider resolves to its built-in
// default prompt.
func (r *Router) pickVariant(tier feedback.Tier, locale string) string {
	var v prompt.Variant
	var err error
	if r.budget.ShouldExperiment() {
		v, err = r.tuner.Propose(tier, locale)
	} else {
		v, err = r.tuner.Base(tier, locale)
	}
	if err != nil {
		log.Printf("[ROUTER] variant selection failed, using fallback: %v", err)
		return fmt.Sprintf("%s_fallback", tier)
	}
	return v.ID
}

// #endregion

// #region record-outcome

// RecordOutcome logs the completed item to the event store and folds
// its reward into the bandit, tuner, and budget. The event append and
// spending update happen under one lock so cost accounting matches the
// log. Learning-state errors are logged but do not fail the call once
// the event is durably recorded.
func (r *Router) RecordOutcome(contentID string, ctx feedback.Context, dec feedback.Decision, out feedback.Outcome) (string, error) {
	r.mu.Lock()
	id, err := r.store.LogEvent(contentID, ctx, dec, out, nil, nil)
	if err != nil {
		r.mu.Unlock()
		return "", fmt.Errorf("log event: %w", err)
	}
	if err := r.budget.UpdateSpending(dec.Tier, out.Cost.EUR); err != nil {
		log.Printf("[ROUTER] spending update failed for %s: %v", id, err)
	}
	r.mu.Unlock()

	reward := r.bandit.CalculateReward(out)
	if err := r.bandit.Update(ctx, dec.Tier, reward); err != nil {
		log.Printf("[ROUTER] bandit update failed for %s: %v", id, err)
	}
	if dec.VariantID != "" {
		if err := r.tuner.Record(dec.VariantID, out); err != nil {
			log.Printf("[ROUTER] variant record failed for %s: %v", id, err)
		}
	}
	return id, nil
}

// #endregion
