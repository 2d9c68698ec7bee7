package bandit

// #region imports
import (
	"database/sql"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/newswire-labs/selflearn-controller/internal/feedback"
)

// #endregion

// #region schema

const armsSchema = `
CREATE TABLE IF NOT EXISTS bandit_arms (
	context_key   TEXT NOT NULL,
	tier          TEXT NOT NULL,
	alpha         REAL NOT NULL,
	beta          REAL NOT NULL,
	trials        INTEGER NOT NULL DEFAULT 0,
	total_reward  REAL NOT NULL DEFAULT 0,
	updated_at    TEXT NOT NULL,
	PRIMARY KEY (context_key, tier)
);

CREATE TABLE IF NOT EXISTS bandit_global (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	total_events  INTEGER NOT NULL DEFAULT 0,
	last_update   TEXT
);
`

// #endregion

// #region bandit-struct

// Bandit is a contextual Thompson Sampling router over (context key, tier)
// Beta posteriors. Arms are created lazily with a Beta(1,1) prior and
// persisted synchronously on every update.
type Bandit struct {
	db  *sql.DB
	cfg Config
	rng *rand.Rand
	mu  sync.Mutex
}

// NewBandit initializes the bandit tables and returns a Bandit.
func NewBandit(db *sql.DB, cfg Config) (*Bandit, error) {
	return NewBanditWithSource(db, cfg, rand.NewSource(time.Now().UnixNano()))
}

// NewBanditWithSource creates a Bandit with an injected random source
// for reproducible sampling in tests.
func NewBanditWithSource(db *sql.DB, cfg Config, src rand.Source) (*Bandit, error) {
	if _, err := db.Exec(armsSchema); err != nil {
		return nil, fmt.Errorf("migrate bandit: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO bandit_global (id, total_events) VALUES (1, 0)`); err != nil {
		return nil, fmt.Errorf("seed global: %w", err)
	}
	return &Bandit{db: db, cfg: cfg, rng: rand.New(src)}, nil
}

// #endregion

// #region choose

// Choose picks a tier for the context. The static cold-start allow-list
// is checked first and forces premium unconditionally; otherwise arms
// are selected by Thompson Sampling (or UCB1 when configured).
func (b *Bandit) Choose(ctx feedback.Context) (Choice, error) {
	for _, rule := range b.cfg.ColdStartPremium {
		if matchColdStart(rule, ctx) {
			return Choice{
				Tier:   feedback.TierPremium,
				Reason: "cold_start:" + rule,
			}, nil
		}
	}

	key := ctx.Key()
	arms, err := b.loadArms(key)
	if err != nil {
		return Choice{}, err
	}

	b.mu.Lock()
	var tier feedback.Tier
	if b.cfg.Algorithm == AlgorithmUCB {
		tier = b.ucb(arms)
	} else {
		tier = b.thompson(arms)
	}
	b.mu.Unlock()

	return Choice{
		Tier:    tier,
		Explore: isExploration(arms, tier),
		Reason:  fmt.Sprintf("%s:%s", b.cfg.Algorithm, key),
	}, nil
}

// matchColdStart checks a context against one allow-list pattern.
func matchColdStart(rule string, ctx feedback.Context) bool {
	if rule == "fi/*" {
		return ctx.Locale == "fi" || ctx.Country == "FI"
	}
	return strings.Contains(strings.ToLower(ctx.Topic), strings.ToLower(rule))
}

// thompson samples each arm's posterior and picks the larger draw.
func (b *Bandit) thompson(arms map[feedback.Tier]Arm) feedback.Tier {
	best := feedback.TierEconomy
	bestSample := -1.0
	for _, tier := range feedback.Tiers {
		arm := arms[tier]
		s := sampleBeta(b.rng, arm.Alpha, arm.Beta)
		if s > bestSample {
			bestSample = s
			best = tier
		}
	}
	return best
}

// ucb applies UCB1; unvisited arms are prioritized.
func (b *Bandit) ucb(arms map[feedback.Tier]Arm) feedback.Tier {
	total := 0
	for _, arm := range arms {
		total += arm.Trials
	}
	if total == 0 {
		return feedback.Tiers[b.rng.Intn(len(feedback.Tiers))]
	}

	best := feedback.TierEconomy
	bestValue := math.Inf(-1)
	for _, tier := range feedback.Tiers {
		arm := arms[tier]
		var value float64
		if arm.Trials == 0 {
			value = math.Inf(1)
		} else {
			value = arm.MeanReward() + math.Sqrt(2*math.Log(float64(total))/float64(arm.Trials))
		}
		if value > bestValue {
			bestValue = value
			best = tier
		}
	}
	return best
}

// isExploration marks a choice as exploratory when the chosen tier holds
// under half of the context's trials. Diagnostic only.
func isExploration(arms map[feedback.Tier]Arm, chosen feedback.Tier) bool {
	total := 0
	for _, arm := range arms {
		total += arm.Trials
	}
	if total < 10 {
		return true
	}
	return float64(arms[chosen].Trials)/float64(total) < 0.5
}

// #endregion

// #region update

// Update folds one observed reward into the arm's posterior and persists
// the new state synchronously. Rewards are clamped to [0,1]; alpha and
// beta only ever grow, so neither can reach zero.
func (b *Bandit) Update(ctx feedback.Context, tier feedback.Tier, reward float64) error {
	reward = clamp01(reward)
	key := ctx.Key()

	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	arm, err := loadArmTx(tx, key, tier)
	if err != nil {
		return err
	}

	if reward > 0.5 {
		arm.Alpha += reward
	} else {
		arm.Beta += 1.0 - reward
	}
	arm.Trials++
	arm.TotalReward += reward

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.Exec(`
		INSERT INTO bandit_arms (context_key, tier, alpha, beta, trials, total_reward, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(context_key, tier) DO UPDATE SET
			alpha = excluded.alpha,
			beta = excluded.beta,
			trials = excluded.trials,
			total_reward = excluded.total_reward,
			updated_at = excluded.updated_at`,
		key, string(tier), arm.Alpha, arm.Beta, arm.Trials, arm.TotalReward, now,
	)
	if err != nil {
		return fmt.Errorf("upsert arm: %w", err)
	}

	_, err = tx.Exec(`UPDATE bandit_global SET total_events = total_events + 1, last_update = ? WHERE id = 1`, now)
	if err != nil {
		return fmt.Errorf("update global: %w", err)
	}

	return tx.Commit()
}

// #endregion

// #region reward

// CalculateReward combines quality metrics and cost into one [0,1] reward.
func (b *Bandit) CalculateReward(out feedback.Outcome) float64 {
	quality := 0.4*out.EditorAccepted +
		0.3*out.Engagement +
		0.2*boolScore(out.SchemaOK) +
		0.1*(1.0-out.RefMissRate)

	quality = math.Max(0, quality-out.Hallucination-out.RefMissRate)

	normalizedCost := math.Min(1.0, out.Cost.EUR/b.cfg.CostReferenceEUR)
	reward := b.cfg.QualityWeight*quality - b.cfg.CostWeight*normalizedCost
	return clamp01(reward)
}

func boolScore(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// #endregion

// #region load-arms

// loadArms reads both arms for a context key, defaulting missing rows
// to the Beta(1,1) prior.
func (b *Bandit) loadArms(key string) (map[feedback.Tier]Arm, error) {
	arms := map[feedback.Tier]Arm{
		feedback.TierEconomy: newArm(),
		feedback.TierPremium: newArm(),
	}

	rows, err := b.db.Query(
		`SELECT tier, alpha, beta, trials, total_reward FROM bandit_arms WHERE context_key = ?`, key)
	if err != nil {
		return nil, fmt.Errorf("load arms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tier string
		var arm Arm
		if err := rows.Scan(&tier, &arm.Alpha, &arm.Beta, &arm.Trials, &arm.TotalReward); err != nil {
			return nil, fmt.Errorf("scan arm: %w", err)
		}
		arms[feedback.Tier(tier)] = arm
	}
	return arms, rows.Err()
}

func loadArmTx(tx *sql.Tx, key string, tier feedback.Tier) (Arm, error) {
	arm := newArm()
	err := tx.QueryRow(
		`SELECT alpha, beta, trials, total_reward FROM bandit_arms WHERE context_key = ? AND tier = ?`,
		key, string(tier),
	).Scan(&arm.Alpha, &arm.Beta, &arm.Trials, &arm.TotalReward)
	if err != nil && err != sql.ErrNoRows {
		return Arm{}, fmt.Errorf("load arm: %w", err)
	}
	return arm, nil
}

// Arms exposes the per-tier state for one context, for inspection.
func (b *Bandit) Arms(ctx feedback.Context) (map[feedback.Tier]Arm, error) {
	return b.loadArms(ctx.Key())
}

// #endregion

// #region statistics

// Statistics aggregates bandit performance across all contexts.
func (b *Bandit) Statistics() (Stats, error) {
	stats := Stats{PerTier: make(map[feedback.Tier]TierStats)}

	err := b.db.QueryRow(`SELECT total_events FROM bandit_global WHERE id = 1`).Scan(&stats.TotalEvents)
	if err != nil {
		return Stats{}, fmt.Errorf("global stats: %w", err)
	}
	err = b.db.QueryRow(`SELECT COUNT(DISTINCT context_key) FROM bandit_arms`).Scan(&stats.ContextCount)
	if err != nil {
		return Stats{}, fmt.Errorf("context count: %w", err)
	}

	rows, err := b.db.Query(`SELECT tier, SUM(trials), SUM(total_reward) FROM bandit_arms GROUP BY tier`)
	if err != nil {
		return Stats{}, fmt.Errorf("tier stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tier string
		var trials sql.NullInt64
		var total sql.NullFloat64
		if err := rows.Scan(&tier, &trials, &total); err != nil {
			return Stats{}, fmt.Errorf("scan tier stats: %w", err)
		}
		ts := TierStats{Trials: int(trials.Int64)}
		if ts.Trials > 0 {
			ts.AvgReward = total.Float64 / float64(ts.Trials)
		}
		stats.PerTier[feedback.Tier(tier)] = ts
	}
	return stats, rows.Err()
}

// #endregion
