package router

import (
	"database/sql"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/newswire-labs/selflearn-controller/internal/bandit"
	"github.com/newswire-labs/selflearn-controller/internal/budget"
	"github.com/newswire-labs/selflearn-controller/internal/feedback"
	"github.com/newswire-labs/selflearn-controller/internal/prompt"
	"github.com/newswire-labs/selflearn-controller/internal/statedb"
)

type fixture struct {
	router *Router
	store  *feedback.Store
	bandit *bandit.Bandit
	tuner  *prompt.Tuner
	budget *budget.Calibrator
	db     *sql.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	db, err := statedb.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("statedb.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := feedback.NewStore(filepath.Join(dir, "events.jsonl"))
	if err != nil {
		t.Fatalf("feedback.NewStore: %v", err)
	}
	b, err := bandit.NewBanditWithSource(db, bandit.DefaultConfig(), rand.NewSource(1))
	if err != nil {
		t.Fatalf("bandit.NewBanditWithSource: %v", err)
	}
	tn, err := prompt.NewTunerWithSource(db, prompt.DefaultConfig(), rand.NewSource(2))
	if err != nil {
		t.Fatalf("prompt.NewTunerWithSource: %v", err)
	}
	c, err := budget.NewCalibrator(db, budget.DefaultConfig())
	if err != nil {
		t.Fatalf("budget.NewCalibrator: %v", err)
	}

	return &fixture{
		router: New(store, b, tn, c),
		store:  store,
		bandit: b,
		tuner:  tn,
		budget: c,
		db:     db,
	}
}

func finnishCritical() feedback.Context {
	return feedback.Context{Locale: "fi", Country: "FI", Topic: "central_banking", Complexity: 0.9, Risk: 0.7, SourceReputation: 0.8}
}

func routineEnglish() feedback.Context {
	return feedback.Context{Locale: "en", Country: "US", Topic: "technology", Complexity: 0.3, Risk: 0.2, SourceReputation: 0.6}
}

func TestRouteColdStartGetsPremium(t *testing.T) {
	f := newFixture(t)

	dec := f.router.Route(finnishCritical())
	if dec.Tier != feedback.TierPremium {
		t.Fatalf("expected premium for cold-start context, got %s", dec.Tier)
	}
	if !strings.HasPrefix(dec.Reason, "cold_start:") {
		t.Fatalf("expected cold-start reason, got %q", dec.Reason)
	}
	if dec.VariantID == "" {
		t.Fatal("expected a prompt variant on every decision")
	}
}

func TestRouteEmergencyLockdown(t *testing.T) {
	f := newFixture(t)

	// Blow past the hard cap and calibrate into emergency mode.
	if err := f.budget.UpdateSpending(feedback.TierPremium, 40.0); err != nil {
		t.Fatalf("UpdateSpending: %v", err)
	}
	if _, err := f.budget.CalibrateRouting(); err != nil {
		t.Fatalf("CalibrateRouting: %v", err)
	}

	// Routine content is forced to economy on every call.
	for i := 0; i < 10; i++ {
		dec := f.router.Route(routineEnglish())
		if dec.Tier != feedback.TierEconomy {
			t.Fatalf("emergency mode must deny premium for routine content, got %s", dec.Tier)
		}
	}

	// Critical Finnish content keeps premium even under lockdown.
	dec := f.router.Route(finnishCritical())
	if dec.Tier != feedback.TierPremium {
		t.Fatalf("critical content must keep premium in emergency, got %s", dec.Tier)
	}
}

func TestRouteFrozenUsesBaseVariant(t *testing.T) {
	f := newFixture(t)

	if _, err := f.db.Exec(`UPDATE routing_adjustment SET frozen = 1 WHERE id = 1`); err != nil {
		t.Fatalf("freeze adjustment: %v", err)
	}

	for i := 0; i < 5; i++ {
		dec := f.router.Route(routineEnglish())
		if !strings.HasSuffix(dec.VariantID, "_base") {
			t.Fatalf("frozen routing must use the base variant, got %s", dec.VariantID)
		}
	}
}

func TestRecordOutcomeFeedsAllComponents(t *testing.T) {
	f := newFixture(t)
	ctx := routineEnglish()

	dec := f.router.Route(ctx)
	out := feedback.Outcome{
		SchemaOK:       true,
		CoverageOK:     true,
		EditorAccepted: 1.0,
		Engagement:     0.6,
		Cost:           feedback.Cost{EUR: 0.02, InputUnits: 900, OutputUnits: 300},
	}

	id, err := f.router.RecordOutcome("story-123", ctx, dec, out)
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if id == "" {
		t.Fatal("expected event id")
	}

	events, err := f.store.ReadEvents(1)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 1 || !events[0].Complete() {
		t.Fatalf("expected one complete event, got %d", len(events))
	}
	if events[0].ContentID != "story-123" {
		t.Fatalf("unexpected content id %s", events[0].ContentID)
	}

	status, err := f.budget.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if math.Abs(status.Spending.Total-0.02) > 1e-9 {
		t.Fatalf("expected cost accounted, got %f", status.Spending.Total)
	}

	arms, err := f.bandit.Arms(ctx)
	if err != nil {
		t.Fatalf("Arms: %v", err)
	}
	if arms[dec.Tier].Trials != 1 {
		t.Fatalf("expected bandit trial recorded, got %d", arms[dec.Tier].Trials)
	}

	stats, err := f.tuner.Statistics()
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalTrials != 1 {
		t.Fatalf("expected variant trial recorded, got %d", stats.TotalTrials)
	}
}
