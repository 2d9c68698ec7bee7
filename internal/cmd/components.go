package cmd

// #region imports
import (
	"database/sql"
	"fmt"

	"github.com/newswire-labs/selflearn-controller/internal/bandit"
	"github.com/newswire-labs/selflearn-controller/internal/budget"
	"github.com/newswire-labs/selflearn-controller/internal/config"
	"github.com/newswire-labs/selflearn-controller/internal/feedback"
	"github.com/newswire-labs/selflearn-controller/internal/prompt"
	"github.com/newswire-labs/selflearn-controller/internal/quality"
	"github.com/newswire-labs/selflearn-controller/internal/router"
	"github.com/newswire-labs/selflearn-controller/internal/statedb"
)

// #endregion

// #region components

// components wires the full controller stack from configuration.
type components struct {
	cfg        config.Config
	db         *sql.DB
	store      *feedback.Store
	bandit     *bandit.Bandit
	tuner      *prompt.Tuner
	calibrator *budget.Calibrator
	evaluator  *quality.Evaluator
	detector   *quality.Detector
	router     *router.Router
}

func buildComponents() (*components, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	db, err := statedb.Open(cfg.Paths.StateDB)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	store, err := feedback.NewStore(cfg.Paths.EventsFile)
	if err != nil {
		db.Close()
		return nil, err
	}
	b, err := bandit.NewBandit(db, cfg.Bandit)
	if err != nil {
		db.Close()
		return nil, err
	}
	tuner, err := prompt.NewTuner(db, cfg.Prompt)
	if err != nil {
		db.Close()
		return nil, err
	}
	calibrator, err := budget.NewCalibrator(db, cfg.Budget)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &components{
		cfg:        cfg,
		db:         db,
		store:      store,
		bandit:     b,
		tuner:      tuner,
		calibrator: calibrator,
		evaluator:  quality.NewEvaluator(cfg.Gates),
		detector:   quality.NewDetector(cfg.Regression),
		router:     router.New(store, b, tuner, calibrator),
	}, nil
}

func (c *components) Close() {
	c.db.Close()
}

// #endregion
