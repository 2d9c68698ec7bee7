package quality

// #region imports
import (
	"fmt"
	"math"

	"github.com/newswire-labs/selflearn-controller/internal/feedback"
)

// #endregion

// Sample-size floors: below minCompareSample per window the detector
// declines to judge; the significance check needs minSignifSample.
const (
	minCompareSample = 20
	minSignifSample  = 30
)

// Ratio thresholds: a metric flags when it is 20% worse than the
// historical window in its bad direction.
const (
	worsenUpFactor   = 1.2
	worsenDownFactor = 0.8
)

// #region detector

// Detector compares a recent window against a historical one and decides
// whether quality has regressed enough to warrant a rollback.
type Detector struct {
	cfg RegressionConfig
}

// NewDetector creates a detector with the given configuration.
func NewDetector(cfg RegressionConfig) *Detector {
	return &Detector{cfg: cfg}
}

// #endregion

// #region should-rollback

// ShouldRollback flags a regression when any must-not-worsen metric is
// 20% worse than historical. With >= 30 events per window, a
// two-proportion z-test on the pass rate suppresses flags that are not
// statistically significant (p > 0.05), so noise cannot trigger a
// rollback.
func (d *Detector) ShouldRollback(recent, historical []feedback.Event) Verdict {
	recent = completeOnly(recent)
	historical = completeOnly(historical)

	verdict := Verdict{
		Recent:     computeMetrics(recent),
		Historical: computeMetrics(historical),
	}

	if !d.cfg.Guardrail {
		verdict.Reasons = append(verdict.Reasons, "regression guardrail disabled")
		return verdict
	}
	if len(recent) < minCompareSample || len(historical) < minCompareSample {
		verdict.InsufficientData = true
		verdict.Reasons = append(verdict.Reasons,
			fmt.Sprintf("insufficient data: recent=%d historical=%d (need %d each)",
				len(recent), len(historical), minCompareSample))
		return verdict
	}

	flagged := false
	for _, name := range d.cfg.MustNotWorsen {
		cur, ok := metricValue(verdict.Recent, name)
		if !ok {
			continue
		}
		hist, _ := metricValue(verdict.Historical, name)

		if shouldDecrease(name) {
			if cur > hist*worsenUpFactor {
				flagged = true
				verdict.Reasons = append(verdict.Reasons,
					fmt.Sprintf("%s worsened: %.3f > %.3f (20%% threshold)", name, cur, hist))
			}
		} else if cur < hist*worsenDownFactor {
			flagged = true
			verdict.Reasons = append(verdict.Reasons,
				fmt.Sprintf("%s worsened: %.3f < %.3f (20%% threshold)", name, cur, hist))
		}
	}

	if flagged && len(recent) >= minSignifSample && len(historical) >= minSignifSample {
		p := passRateSignificance(recent, historical)
		if p > 0.05 {
			flagged = false
			verdict.Reasons = append(verdict.Reasons,
				fmt.Sprintf("suppressed: pass-rate change not significant (p=%.3f)", p))
		}
	}

	verdict.Rollback = flagged
	return verdict
}

// #endregion

// #region metric-lookup

// shouldDecrease reports whether a lower value is better for the metric.
func shouldDecrease(name string) bool {
	return name == "hallu_rate" || name == "ref_miss_rate"
}

func metricValue(m Metrics, name string) (float64, bool) {
	switch name {
	case "pass_rate":
		return m.PassRate, true
	case "coverage":
		return m.Coverage, true
	case "hallu_rate":
		return m.HalluRate, true
	case "ref_miss_rate":
		return m.RefMissRate, true
	case "editor_accept_rate":
		return m.EditorAcceptRate, true
	default:
		return 0, false
	}
}

// #endregion

// #region significance

// passRateSignificance runs a two-proportion z-test on the schema pass
// rate and returns the two-tailed p-value.
func passRateSignificance(recent, historical []feedback.Event) float64 {
	x1, n1 := passCounts(recent)
	x2, n2 := passCounts(historical)
	return twoProportionP(x1, n1, x2, n2)
}

func passCounts(events []feedback.Event) (successes, n int) {
	for _, ev := range events {
		if ev.Outcome.SchemaOK {
			successes++
		}
	}
	return successes, len(events)
}

// twoProportionP computes the two-tailed p-value of a pooled
// two-proportion z-test.
func twoProportionP(x1, n1, x2, n2 int) float64 {
	if n1 == 0 || n2 == 0 {
		return 1.0
	}
	p1 := float64(x1) / float64(n1)
	p2 := float64(x2) / float64(n2)
	pooled := float64(x1+x2) / float64(n1+n2)

	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 1.0
	}

	z := (p1 - p2) / se
	return 2 * (1 - normalCDF(math.Abs(z)))
}

// normalCDF is the standard normal cumulative distribution function.
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// #endregion
