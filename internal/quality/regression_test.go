package quality

import (
	"strings"
	"testing"

	"github.com/newswire-labs/selflearn-controller/internal/feedback"
)

func TestShouldRollbackOnRealRegression(t *testing.T) {
	d := NewDetector(DefaultRegressionConfig())

	recent := makeEvents(50, 0.60, feedback.TierEconomy, "en", "US")
	historical := makeEvents(50, 0.95, feedback.TierEconomy, "en", "US")

	verdict := d.ShouldRollback(recent, historical)

	if !verdict.Rollback {
		t.Fatalf("expected rollback, reasons: %v", verdict.Reasons)
	}
	found := false
	for _, r := range verdict.Reasons {
		if strings.Contains(r, "pass_rate") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected pass_rate cited, got %v", verdict.Reasons)
	}
	if verdict.Recent.SampleSize != 50 || verdict.Historical.SampleSize != 50 {
		t.Fatal("expected both metric snapshots in verdict")
	}
}

func TestShouldRollbackStableWindowsNotFlagged(t *testing.T) {
	d := NewDetector(DefaultRegressionConfig())

	recent := makeEvents(50, 0.90, feedback.TierEconomy, "en", "US")
	historical := makeEvents(50, 0.90, feedback.TierEconomy, "en", "US")

	verdict := d.ShouldRollback(recent, historical)
	if verdict.Rollback {
		t.Fatalf("identical windows must not flag, reasons: %v", verdict.Reasons)
	}
	if verdict.InsufficientData {
		t.Fatal("50 events per window is sufficient")
	}
}

func TestShouldRollbackInsufficientData(t *testing.T) {
	d := NewDetector(DefaultRegressionConfig())

	recent := makeEvents(10, 0.5, feedback.TierEconomy, "en", "US")
	historical := makeEvents(50, 0.95, feedback.TierEconomy, "en", "US")

	verdict := d.ShouldRollback(recent, historical)
	if verdict.Rollback {
		t.Fatal("must not roll back on insufficient data")
	}
	if !verdict.InsufficientData {
		t.Fatal("expected insufficient-data verdict")
	}
}

func TestShouldRollbackWorseningHalluRate(t *testing.T) {
	d := NewDetector(DefaultRegressionConfig())

	recent := makeEvents(50, 0.95, feedback.TierEconomy, "en", "US")
	for i := range recent {
		recent[i].Outcome.Hallucination = 0.2
	}
	historical := makeEvents(50, 0.95, feedback.TierEconomy, "en", "US")

	// hallu_rate 0.2 vs 0.02 flags, but the pass rates match so the
	// significance check on the primary metric suppresses the flag.
	verdict := d.ShouldRollback(recent, historical)
	if verdict.Rollback {
		t.Fatalf("expected suppression by significance check, reasons: %v", verdict.Reasons)
	}
	suppressed := false
	for _, r := range verdict.Reasons {
		if strings.Contains(r, "suppressed") {
			suppressed = true
		}
	}
	if !suppressed {
		t.Fatalf("expected suppression reason, got %v", verdict.Reasons)
	}
}

func TestGuardrailDisabled(t *testing.T) {
	cfg := DefaultRegressionConfig()
	cfg.Guardrail = false
	d := NewDetector(cfg)

	recent := makeEvents(50, 0.10, feedback.TierEconomy, "en", "US")
	historical := makeEvents(50, 0.95, feedback.TierEconomy, "en", "US")

	if verdict := d.ShouldRollback(recent, historical); verdict.Rollback {
		t.Fatal("disabled guardrail must never roll back")
	}
}

func TestTwoProportionP(t *testing.T) {
	// 30/50 vs 47/50 is a large, significant difference.
	if p := twoProportionP(30, 50, 47, 50); p > 0.01 {
		t.Fatalf("expected highly significant, got p=%f", p)
	}
	// 45/50 vs 45/50 is no difference at all.
	if p := twoProportionP(45, 50, 45, 50); p < 0.99 {
		t.Fatalf("expected p close to 1, got p=%f", p)
	}
	if p := twoProportionP(0, 0, 10, 20); p != 1.0 {
		t.Fatalf("empty window must yield p=1, got %f", p)
	}
}
