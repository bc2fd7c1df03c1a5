package graph

import (
	"fmt"

	"go.uber.org/zap"
)

// migration represents a single database migration.
type migration struct {
	version int
	name    string
	up      func() error
}

// runMigrations executes database schema migrations.
func (s *Store) runMigrations() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return err
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "triples", up: s.migration001Triples},
	}

	for _, m := range migrations {
		if version >= m.version {
			continue
		}
		s.logger.Info("running graph migration", zap.Int("version", m.version), zap.String("name", m.name))
		if err := m.up(); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			return err
		}
	}
	return nil
}

// migration001Triples creates the triples table.
// seq preserves insertion order, which the pick strategies rely on.
func (s *Store) migration001Triples() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS triples (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			subject TEXT NOT NULL,
			predicate TEXT NOT NULL,
			object TEXT NOT NULL,
			kind TEXT NOT NULL,
			lang TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return fmt.Errorf("failed to create triples table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_triples_spo
		ON triples(subject, predicate, object, kind, lang)
	`); err != nil {
		return fmt.Errorf("failed to create triples spo index: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_triples_po
		ON triples(predicate, object)
	`); err != nil {
		return fmt.Errorf("failed to create triples po index: %w", err)
	}
	return nil
}
