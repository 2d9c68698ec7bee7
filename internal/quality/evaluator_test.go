package quality

import (
	"math"
	"testing"
	"time"

	"github.com/newswire-labs/selflearn-controller/internal/feedback"
)

// makeEvents builds n complete decision events; passRate controls the
// exact share with SchemaOK set.
func makeEvents(n int, passRate float64, tier feedback.Tier, locale, country string) []feedback.Event {
	events := make([]feedback.Event, 0, n)
	passed := int(math.Round(passRate * float64(n)))
	for i := 0; i < n; i++ {
		pass := i < passed
		ctx := feedback.Context{Locale: locale, Country: country, Topic: "markets", Complexity: 0.5, Risk: 0.2, SourceReputation: 0.8}
		dec := feedback.Decision{Tier: tier, VariantID: string(tier) + "_en_base"}
		out := feedback.Outcome{
			SchemaOK:       pass,
			CoverageOK:     true,
			Hallucination:  0.02,
			RefMissRate:    0.05,
			EditorAccepted: 0.9,
			Engagement:     0.5,
			Cost:           feedback.Cost{EUR: 0.02},
		}
		events = append(events, feedback.Event{
			TS:       time.Now().UTC(),
			ID:       "ev",
			Kind:     feedback.KindDecision,
			Context:  &ctx,
			Decision: &dec,
			Outcome:  &out,
		})
	}
	return events
}

func TestEvaluateBatchEmptyInput(t *testing.T) {
	e := NewEvaluator(DefaultGateConfig())
	report := e.EvaluateBatch(nil)

	if !report.NoData {
		t.Fatal("expected explicit no-data report")
	}
	if !report.Passed {
		t.Fatal("no-data report must not count as a gate failure")
	}
	if report.TotalEvents != 0 {
		t.Fatalf("expected 0 events, got %d", report.TotalEvents)
	}
}

func TestEvaluateBatchPassesCleanBatch(t *testing.T) {
	e := NewEvaluator(DefaultGateConfig())
	report := e.EvaluateBatch(makeEvents(40, 1.0, feedback.TierEconomy, "en", "US"))

	if report.NoData {
		t.Fatal("unexpected no-data report")
	}
	if !report.Passed {
		t.Fatalf("expected gates to pass, failures: %v", report.Failures)
	}
	if report.Overall.PassRate != 1.0 {
		t.Fatalf("expected pass rate 1.0, got %f", report.Overall.PassRate)
	}
	if report.Overall.SampleSize != 40 {
		t.Fatalf("expected sample size 40, got %d", report.Overall.SampleSize)
	}
}

func TestEvaluateBatchReportsFailingGates(t *testing.T) {
	e := NewEvaluator(DefaultGateConfig())
	report := e.EvaluateBatch(makeEvents(50, 0.5, feedback.TierEconomy, "en", "US"))

	if report.Passed {
		t.Fatal("expected gate failure at 50% pass rate")
	}
	found := false
	for _, f := range report.Failures {
		if f.Gate == "min_pass_rate" {
			found = true
			if f.Threshold != DefaultGateConfig().MinPassRate {
				t.Fatalf("expected threshold %f, got %f", DefaultGateConfig().MinPassRate, f.Threshold)
			}
			if f.Actual >= f.Threshold {
				t.Fatalf("failure actual %f should be below threshold %f", f.Actual, f.Threshold)
			}
		}
	}
	if !found {
		t.Fatalf("expected min_pass_rate failure, got %v", report.Failures)
	}
}

func TestEvaluateBatchSegments(t *testing.T) {
	e := NewEvaluator(DefaultGateConfig())

	events := makeEvents(15, 1.0, feedback.TierPremium, "fi", "FI")
	events = append(events, makeEvents(5, 1.0, feedback.TierEconomy, "en", "US")...)

	report := e.EvaluateBatch(events)

	if _, ok := report.BySegment["fi_FI"]; !ok {
		t.Fatal("expected fi_FI segment with >= 10 events")
	}
	if _, ok := report.BySegment["en_US"]; ok {
		t.Fatal("en_US segment has < 10 events, must be omitted")
	}
	if _, ok := report.ByTier[feedback.TierPremium]; !ok {
		t.Fatal("expected premium tier metrics")
	}
	if _, ok := report.ByTier[feedback.TierEconomy]; ok {
		t.Fatal("economy tier has < 10 events, must be omitted")
	}
}

func TestConfidenceIntervalsAtThirtyEvents(t *testing.T) {
	e := NewEvaluator(DefaultGateConfig())

	small := e.EvaluateBatch(makeEvents(20, 1.0, feedback.TierEconomy, "en", "US"))
	if small.Overall.PassRateCI != nil {
		t.Fatal("no CI expected below 30 events")
	}

	large := e.EvaluateBatch(makeEvents(30, 0.9, feedback.TierEconomy, "en", "US"))
	ci := large.Overall.PassRateCI
	if ci == nil {
		t.Fatal("expected CI at 30 events")
	}
	if ci.Lower < 0 || ci.Upper > 1 || ci.Lower >= ci.Upper {
		t.Fatalf("malformed interval: [%f, %f]", ci.Lower, ci.Upper)
	}
	p := large.Overall.PassRate
	if p < ci.Lower || p > ci.Upper {
		t.Fatalf("point estimate %f outside interval [%f, %f]", p, ci.Lower, ci.Upper)
	}
}

func TestWilsonKnownValue(t *testing.T) {
	// 90/100: Wilson 95% interval is roughly [0.825, 0.944].
	ci := wilson(90, 100)
	if ci.Lower < 0.81 || ci.Lower > 0.84 {
		t.Fatalf("lower bound %f out of expected range", ci.Lower)
	}
	if ci.Upper < 0.93 || ci.Upper > 0.96 {
		t.Fatalf("upper bound %f out of expected range", ci.Upper)
	}
}
