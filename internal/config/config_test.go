package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WindowDays != 7 || cfg.MinSamplesRoute != 50 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Budget.TargetBudgetEUR != 30.0 {
		t.Fatalf("unexpected budget default %f", cfg.Budget.TargetBudgetEUR)
	}
	if cfg.Bandit.Algorithm != "thompson" {
		t.Fatalf("unexpected bandit default %s", cfg.Bandit.Algorithm)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
window_days: 14
budget:
  target_budget_eur_month: 60
  soft_cap: 0.8
  hard_cap: 1.2
  period_days: 30
quality_gates:
  min_pass_rate: 0.95
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WindowDays != 14 {
		t.Fatalf("expected file override, got %d", cfg.WindowDays)
	}
	if cfg.Budget.TargetBudgetEUR != 60 {
		t.Fatalf("expected budget override, got %f", cfg.Budget.TargetBudgetEUR)
	}
	if cfg.Gates.MinPassRate != 0.95 {
		t.Fatalf("expected gate override, got %f", cfg.Gates.MinPassRate)
	}
	// Untouched sections keep their defaults.
	if cfg.CompareDays != 7 {
		t.Fatalf("expected default compare_days, got %d", cfg.CompareDays)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("SELFLEARN_DB", "/tmp/other.db")
	t.Setenv("PROVIDER_ADDR", "provider:9000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.StateDB != "/tmp/other.db" {
		t.Fatalf("expected env override, got %s", cfg.Paths.StateDB)
	}
	if cfg.Provider.Addr != "provider:9000" {
		t.Fatalf("expected env override, got %s", cfg.Provider.Addr)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadRejectsInvalidCaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
budget:
  target_budget_eur_month: 30
  soft_cap: 1.5
  hard_cap: 1.2
  period_days: 30
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for inverted caps")
	}
}
