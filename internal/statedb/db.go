// Package statedb opens the shared SQLite database backing all learned
// state: bandit arms, prompt variants, budget state, routing adjustments,
// and cycle summaries. Each package creates its own tables on the handle.
package statedb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// #region open
// Open opens (or creates) the state database and applies pragmas.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	return db, nil
}

// #endregion open
