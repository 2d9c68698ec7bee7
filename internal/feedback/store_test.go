package feedback

import (
	"os"
	"path/filepath"
	"testing"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func sampleContext() Context {
	return Context{
		Locale:           "fi",
		Country:          "FI",
		Topic:            "central_banking",
		Complexity:       0.7,
		Risk:             0.4,
		SourceReputation: 0.8,
	}
}

func sampleOutcome() Outcome {
	return Outcome{
		SchemaOK:       true,
		CoverageOK:     true,
		Hallucination:  0.02,
		RefMissRate:    0.1,
		EditorAccepted: 0.8,
		Engagement:     0.6,
		Cost:           Cost{EUR: 0.032, InputUnits: 1500, OutputUnits: 600},
	}
}

func TestLogEventAndReadBack(t *testing.T) {
	s := tempStore(t)

	id, err := s.LogEvent("content-1", sampleContext(), Decision{Tier: TierPremium, VariantID: "premium_fi_base"}, sampleOutcome(), nil, nil)
	if err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty event id")
	}

	events, err := s.ReadEvents(7)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	ev := events[0]
	if ev.ID != id {
		t.Fatalf("expected id %s, got %s", id, ev.ID)
	}
	if !ev.Complete() {
		t.Fatal("expected a complete decision event")
	}
	if ev.Decision.Tier != TierPremium {
		t.Fatalf("expected premium tier, got %s", ev.Decision.Tier)
	}
	if ev.Outcome.Cost.EUR != 0.032 {
		t.Fatalf("expected cost 0.032, got %f", ev.Outcome.Cost.EUR)
	}
}

func TestAppendFeedbackIsLinkedRecord(t *testing.T) {
	s := tempStore(t)

	id, err := s.LogEvent("content-1", sampleContext(), Decision{Tier: TierEconomy}, sampleOutcome(), nil, nil)
	if err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if err := s.AppendFeedback(id, "editor", map[string]any{"accepted": 1.0}); err != nil {
		t.Fatalf("AppendFeedback: %v", err)
	}

	events, err := s.ReadEvents(7)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 records, got %d", len(events))
	}

	// Original record untouched, addendum links back.
	if events[0].ID != id {
		t.Fatalf("original event id changed: %s", events[0].ID)
	}
	fb := events[1]
	if fb.Kind != KindFeedback {
		t.Fatalf("expected feedback kind, got %s", fb.Kind)
	}
	if fb.ParentID != id {
		t.Fatalf("expected parent id %s, got %s", id, fb.ParentID)
	}
	if fb.Complete() {
		t.Fatal("addendum must not count as a complete decision event")
	}
}

func TestReadEventsSkipsMalformedLines(t *testing.T) {
	s := tempStore(t)

	if _, err := s.LogEvent("a", sampleContext(), Decision{Tier: TierEconomy}, sampleOutcome(), nil, nil); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	// Corrupt the log with a garbage line in the middle.
	f, err := os.OpenFile(s.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("{not valid json\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	if _, err := s.LogEvent("b", sampleContext(), Decision{Tier: TierPremium}, sampleOutcome(), nil, nil); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	events, err := s.ReadEvents(7)
	if err != nil {
		t.Fatalf("ReadEvents should not fail on corrupt lines: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 valid events, got %d", len(events))
	}
}

func TestReadEventsMissingFile(t *testing.T) {
	s := tempStore(t)
	events, err := s.ReadEvents(7)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestContextKeyStableBuckets(t *testing.T) {
	c := sampleContext()
	key := c.Key()
	want := "v1|locale:fi|country:FI|topic:central_banking|cx:high|rep:trusted|risk:med"
	if key != want {
		t.Fatalf("expected %q, got %q", want, key)
	}

	// Same buckets, different raw values: key must not change.
	c2 := c
	c2.Complexity = 0.61
	c2.SourceReputation = 0.99
	c2.Risk = 0.31
	if c2.Key() != key {
		t.Fatalf("expected stable key, got %q vs %q", c2.Key(), key)
	}

	// Crossing a bucket boundary changes the key.
	c3 := c
	c3.Complexity = 0.2
	if c3.Key() == key {
		t.Fatal("expected different key for low complexity")
	}
}
