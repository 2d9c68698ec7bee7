package cycle

// #region imports
import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/newswire-labs/selflearn-controller/internal/bandit"
	"github.com/newswire-labs/selflearn-controller/internal/budget"
	"github.com/newswire-labs/selflearn-controller/internal/feedback"
	"github.com/newswire-labs/selflearn-controller/internal/prompt"
	"github.com/newswire-labs/selflearn-controller/internal/quality"
)

// #endregion

// #region schema

const cycleSchema = `
CREATE TABLE IF NOT EXISTS cycle_summaries (
	cycle_id     TEXT PRIMARY KEY,
	started_at   TEXT NOT NULL,
	finished_at  TEXT NOT NULL,
	status       TEXT NOT NULL,
	summary_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS latest_cycle (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	cycle_id  TEXT NOT NULL
);
`

// #endregion

// #region runner-struct

// Runner drives one scheduled learning cycle over the feedback log:
// evaluate the window, check for regressions, fold rewards into the
// bandit and prompt tuner, recalibrate the budget, and roll routing
// back to the conservative state when the window looks unhealthy.
type Runner struct {
	cfg        Config
	store      *feedback.Store
	evaluator  *quality.Evaluator
	detector   *quality.Detector
	bandit     *bandit.Bandit
	tuner      *prompt.Tuner
	calibrator *budget.Calibrator
	db         *sql.DB
}

// NewRunner initializes the summary tables and returns a Runner.
func NewRunner(cfg Config, store *feedback.Store, ev *quality.Evaluator, det *quality.Detector,
	b *bandit.Bandit, t *prompt.Tuner, c *budget.Calibrator, db *sql.DB) (*Runner, error) {
	if _, err := db.Exec(cycleSchema); err != nil {
		return nil, fmt.Errorf("migrate cycle: %w", err)
	}
	return &Runner{
		cfg:        cfg,
		store:      store,
		evaluator:  ev,
		detector:   det,
		bandit:     b,
		tuner:      t,
		calibrator: c,
		db:         db,
	}, nil
}

// #endregion

// #region run

// Run executes one full cycle. Cancellation is cooperative between
// stages; a stage error aborts the remaining stages and the cycle is
// persisted with status "error", leaving prior learned state
// authoritative. The summary is persisted on every path.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now().UTC()
	sum := Summary{
		ID:        fmt.Sprintf("cycle_%s_%s", start.Format("20060102_150405"), uuid.NewString()[:8]),
		StartedAt: start,
		Status:    StatusSuccess,
	}
	log.Printf("[CYCLE] %s starting", sum.ID)

	err := r.stages(ctx, &sum)
	if err != nil {
		sum.Status = StatusError
		sum.Error = err.Error()
		log.Printf("[CYCLE] %s failed: %v", sum.ID, err)
	}

	sum.FinishedAt = time.Now().UTC()
	if perr := r.persist(sum); perr != nil {
		log.Printf("[CYCLE] %s summary persist failed: %v", sum.ID, perr)
		if err == nil {
			err = perr
		}
	}
	log.Printf("[CYCLE] %s finished: %s (%d events, %d complete)",
		sum.ID, sum.Status, sum.EventsRead, sum.CompleteEvents)
	return sum, err
}

func (r *Runner) stages(ctx context.Context, sum *Summary) error {
	// INGEST covers both comparison windows in one read.
	events, err := r.store.ReadEvents(r.cfg.WindowDays + r.cfg.CompareDays)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	sum.EventsRead = len(events)

	cutoff := time.Now().UTC().Add(-time.Duration(r.cfg.CompareDays) * 24 * time.Hour)
	var recent, historical []feedback.Event
	for _, ev := range events {
		if !ev.Complete() {
			continue
		}
		sum.CompleteEvents++
		if ev.TS.Before(cutoff) {
			historical = append(historical, ev)
		} else {
			recent = append(recent, ev)
		}
	}

	// Too little signal: keep spending caps honest, touch nothing else.
	if len(recent) < r.cfg.MinSamplesRoute {
		log.Printf("[CYCLE] %d recent events below minimum %d, minimal cycle",
			len(recent), r.cfg.MinSamplesRoute)
		sum.Status = StatusMinimal
		result, err := r.calibrator.CalibrateRouting()
		if err != nil {
			return fmt.Errorf("calibrate: %w", err)
		}
		sum.Calibration = result.AdjustmentsMade
		return nil
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled before evaluate: %w", err)
	}
	report := r.evaluator.EvaluateBatch(recent)
	sum.Report = &report

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled before regression check: %w", err)
	}
	verdict := r.detector.ShouldRollback(recent, historical)
	sum.Regression = &verdict

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled before bandit update: %w", err)
	}
	if err := r.updateBandit(recent, sum); err != nil {
		return fmt.Errorf("bandit update: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled before prompt tuning: %w", err)
	}
	r.updatePrompts(recent, sum)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled before calibration: %w", err)
	}
	result, err := r.calibrator.CalibrateRouting()
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	sum.Calibration = result.AdjustmentsMade

	// ROLLBACK-CHECK: any unhealthy signal reverts routing to the
	// conservative state.
	var reasons []string
	if !report.Passed {
		reasons = append(reasons, "quality_gates_failed")
	}
	if verdict.Rollback {
		reasons = append(reasons, verdict.Reasons...)
	}
	if result.Adjustment.Emergency {
		reasons = append(reasons, "budget_emergency")
	}
	if len(reasons) > 0 {
		if err := r.calibrator.Rollback(reasons); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		sum.Status = StatusRollback
		sum.RollbackReasons = reasons
	}
	return nil
}

// #endregion

// #region learning-stages

// updateBandit replays the recent window into the posteriors. Replays
// are additive: at-least-once delivery shifts the posterior slightly
// toward repeated observations but never corrupts it.
func (r *Runner) updateBandit(events []feedback.Event, sum *Summary) error {
	for _, ev := range events {
		reward := r.bandit.CalculateReward(*ev.Outcome)
		if err := r.bandit.Update(*ev.Context, ev.Decision.Tier, reward); err != nil {
			return err
		}
		sum.BanditUpdates++
	}
	return nil
}

// updatePrompts records results for (tier, variant) groups with enough
// events to be meaningful. Unknown variant ids are skipped with a
// warning so a renamed pool never aborts a cycle.
func (r *Runner) updatePrompts(events []feedback.Event, sum *Summary) {
	groups := make(map[string][]feedback.Event)
	for _, ev := range events {
		if ev.Decision.VariantID == "" {
			continue
		}
		key := string(ev.Decision.Tier) + "/" + ev.Decision.VariantID
		groups[key] = append(groups[key], ev)
	}

	for key, group := range groups {
		if len(group) < r.cfg.MinSamplesPrompt {
			continue
		}
		for _, ev := range group {
			if err := r.tuner.Record(ev.Decision.VariantID, *ev.Outcome); err != nil {
				log.Printf("[CYCLE] skipping prompt record for %s: %v", key, err)
				break
			}
			sum.PromptUpdates++
		}
	}
}

// #endregion

// #region persistence

// persist stores the summary and swaps the latest-cycle pointer in one
// transaction. Prior summaries are never deleted.
func (r *Runner) persist(sum Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO cycle_summaries (cycle_id, started_at, finished_at, status, summary_json)
		 VALUES (?, ?, ?, ?, ?)`,
		sum.ID, sum.StartedAt.Format(time.RFC3339Nano), sum.FinishedAt.Format(time.RFC3339Nano),
		sum.Status, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO latest_cycle (id, cycle_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET cycle_id = excluded.cycle_id`,
		sum.ID,
	)
	if err != nil {
		return fmt.Errorf("update latest pointer: %w", err)
	}
	return tx.Commit()
}

// Latest returns the most recent cycle summary, or false when no cycle
// has run yet.
func (r *Runner) Latest() (Summary, bool, error) {
	var data string
	err := r.db.QueryRow(
		`SELECT s.summary_json FROM latest_cycle l
		 JOIN cycle_summaries s ON s.cycle_id = l.cycle_id WHERE l.id = 1`,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return Summary{}, false, nil
	}
	if err != nil {
		return Summary{}, false, fmt.Errorf("load latest cycle: %w", err)
	}
	var sum Summary
	if err := json.Unmarshal([]byte(data), &sum); err != nil {
		return Summary{}, false, fmt.Errorf("decode latest cycle: %w", err)
	}
	return sum, true, nil
}

// #endregion
