package prompt

// #region imports
import (
	"database/sql"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/newswire-labs/selflearn-controller/internal/feedback"
)

// #endregion

// #region schema

const variantsSchema = `
CREATE TABLE IF NOT EXISTS prompt_variants (
	variant_id   TEXT PRIMARY KEY,
	tier         TEXT NOT NULL,
	locale       TEXT NOT NULL,
	template     TEXT NOT NULL,
	trials       INTEGER NOT NULL DEFAULT 0,
	successes    INTEGER NOT NULL DEFAULT 0,
	total_score  REAL NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_variants_group ON prompt_variants (tier, locale);
`

// #endregion

// #region templates

// Base instruction per locale. Mutations append one style directive so
// every variant stays schema-compatible with the base.
var baseTemplates = map[string]string{
	"fi": "Kirjoita uutiskatsaus annetuista lähteistä. Vastaa JSON-muodossa kentillä headline, summary, key_points ja references. Käytä vain annettuja lähteitä.",
	"en": "Write a news brief from the supplied sources. Respond as JSON with headline, summary, key_points and references fields. Use only the supplied sources.",
}

var mutations = map[string]map[string]string{
	"fi": {
		"tight":      "Pidä tiivistelmä alle 80 sanassa.",
		"analytical": "Lisää yksi kappale taustasta ja seurauksista.",
		"sourced":    "Viittaa jokaisessa väitteessä lähteeseen hakasulkeissa.",
	},
	"en": {
		"tight":      "Keep the summary under 80 words.",
		"analytical": "Add one paragraph on background and likely consequences.",
		"sourced":    "Cite a source in brackets for every claim.",
	},
}

// mutation order is fixed so seeding is deterministic.
var mutationOrder = []string{"tight", "analytical", "sourced"}

func localeTemplates(locale string) (string, map[string]string) {
	if base, ok := baseTemplates[locale]; ok {
		return base, mutations[locale]
	}
	return baseTemplates["en"], mutations["en"]
}

// #endregion

// #region tuner-struct

// Tuner maintains a small pool of prompt variants per (tier, locale)
// and splits traffic between exploring under-tried variants and
// exploiting the best-scoring one. Results persist immediately.
type Tuner struct {
	db  *sql.DB
	cfg Config
	rng *rand.Rand
	mu  sync.Mutex
}

// NewTuner initializes the variant table and returns a Tuner.
func NewTuner(db *sql.DB, cfg Config) (*Tuner, error) {
	return NewTunerWithSource(db, cfg, rand.NewSource(time.Now().UnixNano()))
}

// NewTunerWithSource creates a Tuner with an injected random source for
// reproducible selection in tests.
func NewTunerWithSource(db *sql.DB, cfg Config, src rand.Source) (*Tuner, error) {
	if _, err := db.Exec(variantsSchema); err != nil {
		return nil, fmt.Errorf("migrate prompt variants: %w", err)
	}
	return &Tuner{db: db, cfg: cfg, rng: rand.New(src)}, nil
}

// #endregion

// #region seeding

func baseID(tier feedback.Tier, locale string) string {
	return fmt.Sprintf("%s_%s_base", tier, locale)
}

// ensureSeeded creates the base variant and its mutations for a
// (tier, locale) group that has no rows yet.
func (t *Tuner) ensureSeeded(tier feedback.Tier, locale string) error {
	var count int
	err := t.db.QueryRow(
		`SELECT COUNT(*) FROM prompt_variants WHERE tier = ? AND locale = ?`,
		string(tier), locale,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("count variants: %w", err)
	}
	if count > 0 {
		return nil
	}

	base, muts := localeTemplates(locale)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	insert := func(id, template string) error {
		_, err := t.db.Exec(
			`INSERT INTO prompt_variants (variant_id, tier, locale, template, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			id, string(tier), locale, template, now,
		)
		if err != nil {
			return fmt.Errorf("seed variant %s: %w", id, err)
		}
		return nil
	}

	if err := insert(baseID(tier, locale), base); err != nil {
		return err
	}
	seeded := 1
	for _, style := range mutationOrder {
		if seeded >= t.cfg.VariantsPerTier {
			break
		}
		id := fmt.Sprintf("%s_%s_%s", tier, locale, style)
		if err := insert(id, base+" "+muts[style]); err != nil {
			return err
		}
		seeded++
	}
	return nil
}

// #endregion

// #region propose

const (
	exploreMaxTrials = 10
	exploitMinTrials = 5
)

// Propose picks a variant for the next item. A slice of traffic goes to
// under-tried variants weighted toward the least tried; the rest goes
// to the best average score among sufficiently-tried variants. With no
// qualified variant the least-tried one is used.
func (t *Tuner) Propose(tier feedback.Tier, locale string) (Variant, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureSeeded(tier, locale); err != nil {
		return Variant{}, err
	}
	variants, err := t.loadGroup(tier, locale)
	if err != nil {
		return Variant{}, err
	}
	if len(variants) == 0 {
		return Variant{}, fmt.Errorf("no variants for %s/%s", tier, locale)
	}

	if t.rng.Float64() < t.cfg.ExplorationShare {
		if v, ok := t.pickExploration(variants); ok {
			return v, nil
		}
	}
	if v, ok := pickExploitation(variants); ok {
		return v, nil
	}
	return leastTried(variants), nil
}

// pickExploration samples among under-tried variants, weighted
// inversely by trial count.
func (t *Tuner) pickExploration(variants []Variant) (Variant, bool) {
	var pool []Variant
	var weights []float64
	total := 0.0
	for _, v := range variants {
		if v.Trials < exploreMaxTrials {
			w := 1.0 / float64(1+v.Trials)
			pool = append(pool, v)
			weights = append(weights, w)
			total += w
		}
	}
	if len(pool) == 0 {
		return Variant{}, false
	}
	draw := t.rng.Float64() * total
	for i, w := range weights {
		draw -= w
		if draw <= 0 {
			return pool[i], true
		}
	}
	return pool[len(pool)-1], true
}

func pickExploitation(variants []Variant) (Variant, bool) {
	var best Variant
	found := false
	for _, v := range variants {
		if v.Trials < exploitMinTrials {
			continue
		}
		if !found || v.AvgScore() > best.AvgScore() {
			best = v
			found = true
		}
	}
	return best, found
}

func leastTried(variants []Variant) Variant {
	best := variants[0]
	for _, v := range variants[1:] {
		if v.Trials < best.Trials {
			best = v
		}
	}
	return best
}

// Base returns the deterministic base variant for a (tier, locale),
// used while experimentation is frozen.
func (t *Tuner) Base(tier feedback.Tier, locale string) (Variant, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureSeeded(tier, locale); err != nil {
		return Variant{}, err
	}
	return t.loadVariant(baseID(tier, locale))
}

// #endregion

// #region record

// Record folds one observed outcome into a variant and persists it.
// Success requires a valid schema, editor acceptance, and a low
// hallucination score; the score rewards the same signals softly.
func (t *Tuner) Record(variantID string, out feedback.Outcome) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := 0
	if out.SchemaOK && out.EditorAccepted > 0.5 && out.Hallucination < 0.1 {
		s = 1
	}
	schemaOK := 0.0
	if out.SchemaOK {
		schemaOK = 1.0
	}
	score := 0.4*out.EditorAccepted + 0.3*out.Engagement + 0.2*schemaOK + 0.1*(1.0-out.Hallucination)
	res, err := t.db.Exec(
		`UPDATE prompt_variants SET trials = trials + 1, successes = successes + ?,
		 total_score = total_score + ? WHERE variant_id = ?`,
		s, score, variantID,
	)
	if err != nil {
		return fmt.Errorf("record variant result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record variant result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("unknown variant %q", variantID)
	}
	return nil
}

// #endregion

// #region queries

func (t *Tuner) loadGroup(tier feedback.Tier, locale string) ([]Variant, error) {
	rows, err := t.db.Query(
		`SELECT variant_id, tier, locale, template, trials, successes, total_score, created_at
		 FROM prompt_variants WHERE tier = ? AND locale = ? ORDER BY variant_id`,
		string(tier), locale,
	)
	if err != nil {
		return nil, fmt.Errorf("load variants: %w", err)
	}
	defer rows.Close()

	var variants []Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func (t *Tuner) loadVariant(id string) (Variant, error) {
	row := t.db.QueryRow(
		`SELECT variant_id, tier, locale, template, trials, successes, total_score, created_at
		 FROM prompt_variants WHERE variant_id = ?`, id)
	v, err := scanVariant(row)
	if err != nil {
		return Variant{}, fmt.Errorf("load variant %s: %w", id, err)
	}
	return v, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVariant(row rowScanner) (Variant, error) {
	var v Variant
	var created string
	err := row.Scan(&v.ID, &v.Tier, &v.Locale, &v.Template, &v.Trials, &v.Successes, &v.Score, &created)
	if err != nil {
		return Variant{}, fmt.Errorf("scan variant: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		v.CreatedAt = ts
	}
	return v, nil
}

// Statistics summarizes all variants grouped by tier and locale.
func (t *Tuner) Statistics() (Stats, error) {
	rows, err := t.db.Query(
		`SELECT variant_id, tier, locale, template, trials, successes, total_score, created_at
		 FROM prompt_variants ORDER BY tier, locale, variant_id`)
	if err != nil {
		return Stats{}, fmt.Errorf("load variants: %w", err)
	}
	defer rows.Close()

	stats := Stats{ByGroup: make(map[string][]VariantStats)}
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return Stats{}, err
		}
		stats.TotalVariants++
		stats.TotalTrials += v.Trials
		key := v.Tier + "/" + v.Locale
		stats.ByGroup[key] = append(stats.ByGroup[key], VariantStats{
			ID:          v.ID,
			Trials:      v.Trials,
			SuccessRate: v.SuccessRate(),
			AvgScore:    v.AvgScore(),
		})
	}
	return stats, rows.Err()
}

// #endregion
