package quality

// #region imports
import (
	"fmt"
	"math"
	"time"

	"github.com/newswire-labs/selflearn-controller/internal/feedback"
)

// #endregion

// Minimum sample sizes for segment metrics and confidence intervals.
const (
	minSegmentSample = 10
	minCISample      = 30
)

// #region evaluator

// Evaluator computes aggregate quality metrics and checks them against
// the configured gates.
type Evaluator struct {
	gates GateConfig
}

// NewEvaluator creates an evaluator with the given gate thresholds.
func NewEvaluator(gates GateConfig) *Evaluator {
	return &Evaluator{gates: gates}
}

// #endregion

// #region evaluate-batch

// EvaluateBatch computes overall, per-tier, and per-segment metrics over
// the batch and checks the overall metrics against the quality gates.
// Empty input returns an explicit no-data report, never an error.
func (e *Evaluator) EvaluateBatch(events []feedback.Event) BatchReport {
	report := BatchReport{
		Timestamp:   time.Now().UTC(),
		TotalEvents: len(events),
	}

	complete := completeOnly(events)
	if len(complete) == 0 {
		report.NoData = true
		report.Passed = true
		return report
	}

	report.Overall = computeMetrics(complete)

	byTier := make(map[feedback.Tier][]feedback.Event)
	bySegment := make(map[string][]feedback.Event)
	for _, ev := range complete {
		byTier[ev.Decision.Tier] = append(byTier[ev.Decision.Tier], ev)
		seg := fmt.Sprintf("%s_%s", ev.Context.Locale, ev.Context.Country)
		bySegment[seg] = append(bySegment[seg], ev)
	}

	report.ByTier = make(map[feedback.Tier]Metrics)
	for tier, tierEvents := range byTier {
		if len(tierEvents) >= minSegmentSample {
			report.ByTier[tier] = computeMetrics(tierEvents)
		}
	}
	report.BySegment = make(map[string]Metrics)
	for seg, segEvents := range bySegment {
		if len(segEvents) >= minSegmentSample {
			report.BySegment[seg] = computeMetrics(segEvents)
		}
	}

	report.Failures = e.checkGates(report.Overall)
	report.Passed = len(report.Failures) == 0
	return report
}

// #endregion

// #region check-gates

// checkGates returns one failure per gate that does not hold.
func (e *Evaluator) checkGates(m Metrics) []GateFailure {
	var failures []GateFailure
	if m.PassRate < e.gates.MinPassRate {
		failures = append(failures, GateFailure{Gate: "min_pass_rate", Actual: m.PassRate, Threshold: e.gates.MinPassRate})
	}
	if m.Coverage < e.gates.MinCoverage {
		failures = append(failures, GateFailure{Gate: "min_coverage", Actual: m.Coverage, Threshold: e.gates.MinCoverage})
	}
	if m.HalluRate > e.gates.MaxHalluRate {
		failures = append(failures, GateFailure{Gate: "max_hallu_rate", Actual: m.HalluRate, Threshold: e.gates.MaxHalluRate})
	}
	if m.RefMissRate > e.gates.MaxRefMiss {
		failures = append(failures, GateFailure{Gate: "max_ref_miss_rate", Actual: m.RefMissRate, Threshold: e.gates.MaxRefMiss})
	}
	return failures
}

// #endregion

// #region compute-metrics

// computeMetrics aggregates outcome fields over complete events.
func computeMetrics(events []feedback.Event) Metrics {
	n := len(events)
	if n == 0 {
		return Metrics{}
	}

	var passSum, coverageSum, halluSum, refMissSum, editorSum, engagementSum, costSum float64
	var passCount, editorCount int
	for _, ev := range events {
		out := ev.Outcome
		if out.SchemaOK {
			passSum++
			passCount++
		}
		if out.CoverageOK {
			coverageSum++
		}
		halluSum += out.Hallucination
		refMissSum += out.RefMissRate
		editorSum += out.EditorAccepted
		if out.EditorAccepted > 0.5 {
			editorCount++
		}
		engagementSum += out.Engagement
		costSum += out.Cost.EUR
	}

	fn := float64(n)
	m := Metrics{
		PassRate:         passSum / fn,
		Coverage:         coverageSum / fn,
		HalluRate:        halluSum / fn,
		RefMissRate:      refMissSum / fn,
		EditorAcceptRate: editorSum / fn,
		Engagement:       engagementSum / fn,
		AvgCostEUR:       costSum / fn,
		TotalCostEUR:     costSum,
		SampleSize:       n,
	}

	if n >= minCISample {
		passCI := wilson(passCount, n)
		editorCI := wilson(editorCount, n)
		m.PassRateCI = &passCI
		m.EditorAcceptCI = &editorCI
	}
	return m
}

func completeOnly(events []feedback.Event) []feedback.Event {
	out := make([]feedback.Event, 0, len(events))
	for _, ev := range events {
		if ev.Complete() {
			out = append(out, ev)
		}
	}
	return out
}

// #endregion

// #region wilson

// wilson computes the 95% Wilson score interval for a proportion.
func wilson(successes, n int) Interval {
	if n == 0 {
		return Interval{}
	}
	const z = 1.96
	p := float64(successes) / float64(n)
	fn := float64(n)

	denom := 1 + z*z/fn
	centre := (p + z*z/(2*fn)) / denom
	margin := z * math.Sqrt(p*(1-p)/fn+z*z/(4*fn*fn)) / denom

	return Interval{
		Lower: math.Max(0, centre-margin),
		Upper: math.Min(1, centre+margin),
	}
}

// #endregion
