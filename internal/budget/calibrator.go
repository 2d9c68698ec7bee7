package budget

// #region imports
import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/newswire-labs/selflearn-controller/internal/feedback"
)

// #endregion

// #region schema

const budgetSchema = `
CREATE TABLE IF NOT EXISTS budget_state (
	id             INTEGER PRIMARY KEY CHECK (id = 1),
	period         TEXT NOT NULL,
	economy_spent  REAL NOT NULL DEFAULT 0,
	premium_spent  REAL NOT NULL DEFAULT 0,
	total_spent    REAL NOT NULL DEFAULT 0,
	daily_json     TEXT NOT NULL DEFAULT '{}',
	daily_rate     REAL NOT NULL DEFAULT 0,
	last_reset     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS routing_adjustment (
	id                 INTEGER PRIMARY KEY CHECK (id = 1),
	premium_multiplier REAL NOT NULL,
	frozen             INTEGER NOT NULL DEFAULT 0,
	emergency          INTEGER NOT NULL DEFAULT 0,
	critical_only      INTEGER NOT NULL DEFAULT 0,
	reason             TEXT NOT NULL DEFAULT '',
	updated_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS adjustment_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          TEXT NOT NULL,
	action      TEXT NOT NULL,
	reason      TEXT NOT NULL,
	multiplier  REAL NOT NULL
);
`

// #endregion

// #region calibrator-struct

// Calibrator tracks period spending and throttles premium routing when
// the budget envelope tightens. All mutations go through SQLite so that
// restarts pick up exactly where the last cycle left off.
type Calibrator struct {
	db  *sql.DB
	cfg Config
	rng *rand.Rand
	now func() time.Time
	mu  sync.Mutex
}

// NewCalibrator initializes the budget tables and returns a Calibrator.
func NewCalibrator(db *sql.DB, cfg Config) (*Calibrator, error) {
	return newCalibrator(db, cfg, time.Now, rand.NewSource(time.Now().UnixNano()))
}

func newCalibrator(db *sql.DB, cfg Config, now func() time.Time, src rand.Source) (*Calibrator, error) {
	if _, err := db.Exec(budgetSchema); err != nil {
		return nil, fmt.Errorf("migrate budget: %w", err)
	}
	c := &Calibrator{db: db, cfg: cfg, rng: rand.New(src), now: now}

	ts := c.now().UTC().Format(time.RFC3339Nano)
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO budget_state (id, period, last_reset) VALUES (1, ?, ?)`,
		c.period(), ts,
	); err != nil {
		return nil, fmt.Errorf("seed budget state: %w", err)
	}
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO routing_adjustment (id, premium_multiplier, updated_at) VALUES (1, 1.0, ?)`,
		ts,
	); err != nil {
		return nil, fmt.Errorf("seed adjustment: %w", err)
	}
	return c, nil
}

func (c *Calibrator) period() string {
	return c.now().UTC().Format("2006-01")
}

// #endregion

// #region spending

// UpdateSpending accounts one item's cost against the current period.
// When the period has rolled over, state and adjustment are reset in
// the same transaction before the new cost is applied.
func (c *Calibrator) UpdateSpending(tier feedback.Tier, costEUR float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	state, err := loadStateTx(tx)
	if err != nil {
		return err
	}

	now := c.now().UTC()
	if state.Period != c.period() {
		log.Printf("[BUDGET] period rollover %s -> %s, resetting state", state.Period, c.period())
		state = State{Period: c.period(), Daily: map[string]float64{}, LastReset: now}
		ts := now.Format(time.RFC3339Nano)
		if _, err := tx.Exec(
			`UPDATE routing_adjustment SET premium_multiplier = 1.0, frozen = 0, emergency = 0,
			 critical_only = 0, reason = 'period_reset', updated_at = ? WHERE id = 1`, ts,
		); err != nil {
			return fmt.Errorf("reset adjustment: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO adjustment_log (ts, action, reason, multiplier) VALUES (?, 'reset', 'period_rollover', 1.0)`, ts,
		); err != nil {
			return fmt.Errorf("log reset: %w", err)
		}
	}

	switch tier {
	case feedback.TierPremium:
		state.PremiumSpent += costEUR
	default:
		state.EconomySpent += costEUR
	}
	state.TotalSpent += costEUR

	day := now.Format("2006-01-02")
	state.Daily[day] += costEUR
	state.DailyRate = trailingDailyRate(state.Daily, now)

	if err := saveStateTx(tx, state); err != nil {
		return err
	}
	return tx.Commit()
}

// trailingDailyRate averages spending over the last 7 calendar days.
func trailingDailyRate(daily map[string]float64, now time.Time) float64 {
	sum := 0.0
	days := 0
	for i := 0; i < 7; i++ {
		key := now.AddDate(0, 0, -i).Format("2006-01-02")
		if v, ok := daily[key]; ok {
			sum += v
			days++
		}
	}
	if days == 0 {
		return 0
	}
	return sum / float64(days)
}

// #endregion

// #region status

// Status computes the derived budget picture for the current period.
func (c *Calibrator) Status() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, err := c.loadState()
	if err != nil {
		return Status{}, err
	}
	return c.statusFrom(state), nil
}

func (c *Calibrator) statusFrom(state State) Status {
	var s Status
	s.Spending.Economy = state.EconomySpent
	s.Spending.Premium = state.PremiumSpent
	s.Spending.Total = state.TotalSpent

	s.Budget.Target = c.cfg.TargetBudgetEUR
	s.Budget.Remaining = c.cfg.TargetBudgetEUR - state.TotalSpent
	if c.cfg.TargetBudgetEUR > 0 {
		s.Budget.Utilization = state.TotalSpent / c.cfg.TargetBudgetEUR
	}

	day := c.now().UTC().Day()
	if day > c.cfg.PeriodDays {
		day = c.cfg.PeriodDays
	}
	remainingDays := c.cfg.PeriodDays - day
	s.Projection.DailyRate = state.DailyRate
	s.Projection.EndOfPeriod = state.TotalSpent + state.DailyRate*float64(remainingDays)
	if c.cfg.TargetBudgetEUR > 0 {
		s.Projection.EndUtilization = s.Projection.EndOfPeriod / c.cfg.TargetBudgetEUR
	}

	s.Thresholds.SoftCap = s.Budget.Utilization >= c.cfg.SoftCap
	s.Thresholds.HardCap = s.Budget.Utilization >= c.cfg.HardCap
	s.Thresholds.ProjectedOver = s.Projection.EndUtilization > 1.0
	return s
}

// #endregion

// #region calibration

// CalibrateRouting inspects the budget status and moves the routing
// adjustment through one of four modes: emergency lockdown at the hard
// cap, graduated throttling when the soft cap or projection trips,
// gradual recovery when spending is healthy, and no-op otherwise. The
// pass is idempotent: the adjustment and audit log are only written
// when something actually changes.
func (c *Calibrator) CalibrateRouting() (CalibrationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.loadState()
	if err != nil {
		return CalibrationResult{}, err
	}
	status := c.statusFrom(state)

	current, err := c.CurrentAdjustment()
	if err != nil {
		return CalibrationResult{}, err
	}

	next, made := c.nextAdjustment(current, status)
	result := CalibrationResult{AdjustmentsMade: made, Adjustment: next, Status: status}
	if len(made) == 0 {
		return result, nil
	}

	log.Printf("[BUDGET] calibration: %s (multiplier %.2f -> %.2f)",
		strings.Join(made, "; "), current.PremiumMultiplier, next.PremiumMultiplier)
	if err := c.saveAdjustment(next, "calibrate"); err != nil {
		return CalibrationResult{}, err
	}
	return result, nil
}

func (c *Calibrator) nextAdjustment(cur Adjustment, status Status) (Adjustment, []string) {
	next := cur
	var made []string

	util := status.Budget.Utilization
	switch {
	case status.Thresholds.HardCap:
		next.PremiumMultiplier = 0.1
		next.Frozen = true
		next.Emergency = true
		next.CriticalOnly = true
		next.Reason = fmt.Sprintf("hard_cap utilization=%.2f", util)
		if !adjEqual(cur, next) {
			made = append(made, "emergency_mode")
		}

	case status.Thresholds.SoftCap || status.Thresholds.ProjectedOver:
		if cur.Emergency {
			// Back below the hard cap: leave emergency but stay throttled.
			next.Emergency = false
			next.CriticalOnly = false
			next.PremiumMultiplier = 0.8
			next.Reason = fmt.Sprintf("emergency_exit utilization=%.2f", util)
			made = append(made, "emergency_exit")
			break
		}
		factor, floor := throttleBand(status.Projection.EndUtilization)
		reduced := math.Max(floor, cur.PremiumMultiplier*factor)
		if reduced < cur.PremiumMultiplier {
			next.PremiumMultiplier = reduced
			next.Reason = fmt.Sprintf("throttle utilization=%.2f projected=%.2f", util, status.Projection.EndUtilization)
			made = append(made, fmt.Sprintf("premium_multiplier->%.2f", reduced))
		}
		if status.Projection.EndUtilization > 1.3 && !cur.Frozen {
			next.Frozen = true
			made = append(made, "experiments_frozen")
		}

	default:
		if cur.Emergency {
			next.Emergency = false
			next.CriticalOnly = false
			next.PremiumMultiplier = 0.8
			next.Reason = fmt.Sprintf("emergency_exit utilization=%.2f", util)
			made = append(made, "emergency_exit")
			break
		}
		if cur.PremiumMultiplier < 1.0 {
			grown := math.Min(1.0, cur.PremiumMultiplier*1.1)
			next.PremiumMultiplier = grown
			next.Reason = fmt.Sprintf("recovery utilization=%.2f", util)
			made = append(made, fmt.Sprintf("premium_multiplier->%.2f", grown))
		}
		if cur.Frozen && util < 0.8 {
			next.Frozen = false
			made = append(made, "experiments_unfrozen")
		}
	}

	if adjEqual(cur, next) {
		return cur, nil
	}
	return next, made
}

// throttleBand picks the reduction factor and floor from how far the
// end-of-period projection overshoots.
func throttleBand(projected float64) (factor, floor float64) {
	switch {
	case projected > 1.2:
		return 0.7, 0.3
	case projected > 1.1:
		return 0.8, 0.5
	default:
		return 0.9, 0.7
	}
}

func adjEqual(a, b Adjustment) bool {
	return math.Abs(a.PremiumMultiplier-b.PremiumMultiplier) < 1e-9 &&
		a.Frozen == b.Frozen &&
		a.Emergency == b.Emergency &&
		a.CriticalOnly == b.CriticalOnly
}

// #endregion

// #region gating

// criticalContext is the emergency allow-list: high-complexity Finnish
// content keeps premium access even under lockdown.
func criticalContext(ctx feedback.Context) bool {
	return ctx.Locale == "fi" && ctx.Complexity > 0.8
}

// ShouldUsePremium applies the current adjustment to a base routing
// decision. Cold-start picks skip the Bernoulli throttle but still obey
// emergency and critical-only gating.
func (c *Calibrator) ShouldUsePremium(base, coldStart bool, ctx feedback.Context) bool {
	adj := c.SafeAdjustment()

	if adj.Emergency {
		return criticalContext(ctx)
	}
	if adj.CriticalOnly {
		return base && criticalContext(ctx)
	}
	if !base {
		return false
	}
	if coldStart || adj.PremiumMultiplier >= 1.0 {
		return true
	}
	c.mu.Lock()
	draw := c.rng.Float64()
	c.mu.Unlock()
	return draw < adj.PremiumMultiplier
}

// ShouldExperiment reports whether prompt experimentation is allowed.
func (c *Calibrator) ShouldExperiment() bool {
	return !c.SafeAdjustment().Frozen
}

// SafeAdjustment returns the stored adjustment, falling back to the
// conservative default when the read fails. Routing must never go
// unrestricted because state became unreadable.
func (c *Calibrator) SafeAdjustment() Adjustment {
	adj, err := c.CurrentAdjustment()
	if err != nil {
		log.Printf("[BUDGET] adjustment read failed, using conservative fallback: %v", err)
		return ConservativeAdjustment("adjustment_read_failed")
	}
	return adj
}

// #endregion

// #region rollback

// Rollback replaces the adjustment with the conservative fallback and
// records the triggering reasons in the audit log.
func (c *Calibrator) Rollback(reasons []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	reason := "rollback: " + strings.Join(reasons, "; ")
	log.Printf("[BUDGET] %s", reason)
	return c.saveAdjustment(ConservativeAdjustment(reason), "rollback")
}

// #endregion

// #region persistence

// CurrentAdjustment reads the stored routing adjustment.
func (c *Calibrator) CurrentAdjustment() (Adjustment, error) {
	var adj Adjustment
	var frozen, emergency, critical int
	var updated string
	err := c.db.QueryRow(
		`SELECT premium_multiplier, frozen, emergency, critical_only, reason, updated_at
		 FROM routing_adjustment WHERE id = 1`,
	).Scan(&adj.PremiumMultiplier, &frozen, &emergency, &critical, &adj.Reason, &updated)
	if err != nil {
		return Adjustment{}, fmt.Errorf("load adjustment: %w", err)
	}
	adj.Frozen = frozen != 0
	adj.Emergency = emergency != 0
	adj.CriticalOnly = critical != 0
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		adj.UpdatedAt = t
	}
	return adj, nil
}

func (c *Calibrator) saveAdjustment(adj Adjustment, action string) error {
	ts := c.now().UTC().Format(time.RFC3339Nano)
	_, err := c.db.Exec(
		`UPDATE routing_adjustment SET premium_multiplier = ?, frozen = ?, emergency = ?,
		 critical_only = ?, reason = ?, updated_at = ? WHERE id = 1`,
		adj.PremiumMultiplier, boolInt(adj.Frozen), boolInt(adj.Emergency),
		boolInt(adj.CriticalOnly), adj.Reason, ts,
	)
	if err != nil {
		return fmt.Errorf("save adjustment: %w", err)
	}
	_, err = c.db.Exec(
		`INSERT INTO adjustment_log (ts, action, reason, multiplier) VALUES (?, ?, ?, ?)`,
		ts, action, adj.Reason, adj.PremiumMultiplier,
	)
	if err != nil {
		return fmt.Errorf("log adjustment: %w", err)
	}
	return nil
}

func (c *Calibrator) loadState() (State, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return State{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	state, err := loadStateTx(tx)
	if err != nil {
		return State{}, err
	}
	return state, tx.Commit()
}

func loadStateTx(tx *sql.Tx) (State, error) {
	var state State
	var dailyJSON, lastReset string
	err := tx.QueryRow(
		`SELECT period, economy_spent, premium_spent, total_spent, daily_json, daily_rate, last_reset
		 FROM budget_state WHERE id = 1`,
	).Scan(&state.Period, &state.EconomySpent, &state.PremiumSpent, &state.TotalSpent,
		&dailyJSON, &state.DailyRate, &lastReset)
	if err != nil {
		return State{}, fmt.Errorf("load budget state: %w", err)
	}
	state.Daily = map[string]float64{}
	if err := json.Unmarshal([]byte(dailyJSON), &state.Daily); err != nil {
		return State{}, fmt.Errorf("decode daily spending: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, lastReset); err == nil {
		state.LastReset = t
	}
	return state, nil
}

func saveStateTx(tx *sql.Tx, state State) error {
	dailyJSON, err := json.Marshal(state.Daily)
	if err != nil {
		return fmt.Errorf("encode daily spending: %w", err)
	}
	_, err = tx.Exec(
		`UPDATE budget_state SET period = ?, economy_spent = ?, premium_spent = ?,
		 total_spent = ?, daily_json = ?, daily_rate = ?, last_reset = ? WHERE id = 1`,
		state.Period, state.EconomySpent, state.PremiumSpent, state.TotalSpent,
		string(dailyJSON), state.DailyRate, state.LastReset.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save budget state: %w", err)
	}
	return nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// #endregion
