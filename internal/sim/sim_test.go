package sim

import (
	"testing"

	"github.com/newswire-labs/selflearn-controller/internal/feedback"
)

func TestRunConvergesToBetterTier(t *testing.T) {
	result, err := Run(DefaultScenario())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Items != 500 {
		t.Fatalf("expected 500 items, got %d", result.Items)
	}
	if result.TierShare[feedback.TierPremium] <= 0.5 {
		t.Fatalf("expected premium majority, got share %f", result.TierShare[feedback.TierPremium])
	}
	if result.AvgReward <= 0.4 {
		t.Fatalf("expected learning to lift average reward, got %f", result.AvgReward)
	}
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	first, err := Run(DefaultScenario())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := Run(DefaultScenario())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.AvgReward != second.AvgReward {
		t.Fatalf("expected identical runs, got %f vs %f", first.AvgReward, second.AvgReward)
	}
	for tier, share := range first.TierShare {
		if second.TierShare[tier] != share {
			t.Fatalf("tier share drifted for %s: %f vs %f", tier, share, second.TierShare[tier])
		}
	}
}

func TestRunRejectsEmptyScenario(t *testing.T) {
	if _, err := Run(Scenario{}); err == nil {
		t.Fatal("expected error for empty scenario")
	}
}
