package graph

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// TripleReader is the read side of a triple store.
// Every method returns values in store insertion order.
type TripleReader interface {
	// Objects returns the objects of (subject, predicate, ?).
	Objects(ctx context.Context, subject, predicate string) ([]Term, error)

	// Subjects returns the subjects of (?, predicate, object), matching the
	// object value regardless of kind or language.
	Subjects(ctx context.Context, predicate, object string) ([]string, error)

	// DistinctObjects returns each distinct object of (?, predicate, ?) once.
	DistinctObjects(ctx context.Context, predicate string) ([]Term, error)
}

// Stats summarizes the contents of a store.
type Stats struct {
	Triples  int `json:"triples"`
	Subjects int `json:"subjects"`
	Tags     int `json:"tags"`
}

// Store is a SQLite-backed triple store.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

var _ TripleReader = (*Store)(nil)

// Open opens (creating if needed) the triple store at path and runs migrations.
// The special path ":memory:" opens a private in-memory store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create graph directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph database: %w", err)
	}
	// One connection keeps ":memory:" stores coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping graph database: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run graph migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close graph database: %w", err)
	}
	s.db = nil
	return nil
}

// Insert adds triples in one transaction, ignoring exact duplicates.
// It returns the number of triples actually added.
func (s *Store) Insert(ctx context.Context, triples []Triple) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO triples (subject, predicate, object, kind, lang)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, t := range triples {
		res, err := stmt.ExecContext(ctx, t.Subject, t.Predicate, t.Object.Value, string(t.Object.Kind), t.Object.Lang)
		if err != nil {
			return 0, fmt.Errorf("failed to insert triple %s %s: %w", t.Subject, t.Predicate, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit triples: %w", err)
	}
	return added, nil
}

// Objects implements TripleReader.
func (s *Store) Objects(ctx context.Context, subject, predicate string) ([]Term, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT object, kind, lang FROM triples
		WHERE subject = ? AND predicate = ?
		ORDER BY seq
	`, subject, predicate)
	if err != nil {
		return nil, fmt.Errorf("failed to query objects: %w", err)
	}
	return scanTerms(rows)
}

// Subjects implements TripleReader.
func (s *Store) Subjects(ctx context.Context, predicate, object string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject FROM triples
		WHERE predicate = ? AND object = ?
		GROUP BY subject
		ORDER BY MIN(seq)
	`, predicate, object)
	if err != nil {
		return nil, fmt.Errorf("failed to query subjects: %w", err)
	}
	defer rows.Close()

	var subjects []string
	for rows.Next() {
		var subject string
		if err := rows.Scan(&subject); err != nil {
			return nil, fmt.Errorf("failed to scan subject: %w", err)
		}
		subjects = append(subjects, subject)
	}
	return subjects, rows.Err()
}

// DistinctObjects implements TripleReader.
func (s *Store) DistinctObjects(ctx context.Context, predicate string) ([]Term, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT object, kind, lang FROM triples
		WHERE predicate = ?
		GROUP BY object, kind, lang
		ORDER BY MIN(seq)
	`, predicate)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct objects: %w", err)
	}
	return scanTerms(rows)
}

// Stats returns triple, subject and tag counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM triples),
			(SELECT COUNT(DISTINCT subject) FROM triples),
			(SELECT COUNT(DISTINCT subject) FROM triples WHERE predicate = ? AND object = ?)
	`, PredInstanceOf, ItemTag)
	if err := row.Scan(&st.Triples, &st.Subjects, &st.Tags); err != nil {
		return Stats{}, fmt.Errorf("failed to read graph stats: %w", err)
	}
	return st, nil
}

func scanTerms(rows *sql.Rows) ([]Term, error) {
	defer rows.Close()

	var terms []Term
	for rows.Next() {
		var t Term
		var kind string
		if err := rows.Scan(&t.Value, &kind, &t.Lang); err != nil {
			return nil, fmt.Errorf("failed to scan term: %w", err)
		}
		t.Kind = TermKind(kind)
		terms = append(terms, t)
	}
	return terms, rows.Err()
}
