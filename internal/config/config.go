package config

// #region imports
import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/newswire-labs/selflearn-controller/internal/bandit"
	"github.com/newswire-labs/selflearn-controller/internal/budget"
	"github.com/newswire-labs/selflearn-controller/internal/prompt"
	"github.com/newswire-labs/selflearn-controller/internal/quality"
)

// #endregion

// #region types

// Paths locates the persistent state on disk.
type Paths struct {
	StateDB    string `yaml:"state_db"`
	EventsFile string `yaml:"events_file"`
}

// Provider locates the generation provider.
type Provider struct {
	Addr string `yaml:"addr"`
}

// Config is the full controller configuration, loaded from YAML with
// environment overrides for the deployment-specific fields.
type Config struct {
	WindowDays       int `yaml:"window_days"`
	CompareDays      int `yaml:"compare_days"`
	MinSamplesRoute  int `yaml:"min_samples_route"`
	MinSamplesPrompt int `yaml:"min_samples_prompt"`

	Bandit     bandit.Config            `yaml:"bandit"`
	Gates      quality.GateConfig       `yaml:"quality_gates"`
	Regression quality.RegressionConfig `yaml:"regression"`
	Budget     budget.Config            `yaml:"budget"`
	Prompt     prompt.Config            `yaml:"prompts"`

	Paths    Paths    `yaml:"paths"`
	Provider Provider `yaml:"provider"`
}

// #endregion

// #region defaults

// Default returns the production configuration.
func Default() Config {
	return Config{
		WindowDays:       7,
		CompareDays:      7,
		MinSamplesRoute:  50,
		MinSamplesPrompt: 20,
		Bandit:           bandit.DefaultConfig(),
		Gates:            quality.DefaultGateConfig(),
		Regression:       quality.DefaultRegressionConfig(),
		Budget:           budget.DefaultConfig(),
		Prompt:           prompt.DefaultConfig(),
		Paths: Paths{
			StateDB:    "data/state.db",
			EventsFile: "data/events.jsonl",
		},
		Provider: Provider{Addr: "localhost:50051"},
	}
}

// #endregion

// #region load

// Load reads the configuration file at path, or at SELFLEARN_CONFIG
// when path is empty. With neither set the defaults apply. Fields
// absent from the file keep their defaults; SELFLEARN_DB,
// SELFLEARN_EVENTS and PROVIDER_ADDR override the file.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("SELFLEARN_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if explicit || !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Paths.StateDB = envOr("SELFLEARN_DB", cfg.Paths.StateDB)
	cfg.Paths.EventsFile = envOr("SELFLEARN_EVENTS", cfg.Paths.EventsFile)
	cfg.Provider.Addr = envOr("PROVIDER_ADDR", cfg.Provider.Addr)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.WindowDays <= 0 || c.CompareDays <= 0 {
		return fmt.Errorf("window_days and compare_days must be positive")
	}
	if c.MinSamplesRoute < 0 || c.MinSamplesPrompt < 0 {
		return fmt.Errorf("minimum sample counts must not be negative")
	}
	if c.Budget.TargetBudgetEUR <= 0 {
		return fmt.Errorf("budget target must be positive")
	}
	if c.Budget.SoftCap <= 0 || c.Budget.HardCap <= c.Budget.SoftCap {
		return fmt.Errorf("hard cap must exceed soft cap")
	}
	if c.Paths.StateDB == "" || c.Paths.EventsFile == "" {
		return fmt.Errorf("state paths must be set")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion
