package storage

import (
	"time"

	"go.uber.org/zap"
)

// RecordSearch records a search query for analytics.
func (s *SQLiteStorage) RecordSearch(search SearchRecord) error {
	if !s.enabled || s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO search_history (search_id, kind, query_hash, timestamp, results_count)
		VALUES (?, ?, ?, ?, ?)
	`

	if _, err := s.db.Exec(query,
		search.SearchID,
		search.Kind,
		search.QueryHash,
		search.Timestamp.UTC().Format(time.RFC3339),
		search.ResultsCount,
	); err != nil {
		s.logger.Warn("failed to record search", zap.Error(err))
	}

	return nil
}

// SearchSummary aggregates searches recorded since the given time.
func (s *SQLiteStorage) SearchSummary(since time.Time) (SearchSummary, error) {
	if !s.enabled || s.db == nil {
		return SearchSummary{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN results_count = 0 THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT query_hash)
		FROM search_history
		WHERE timestamp >= ?
	`

	var sum SearchSummary
	if err := s.db.QueryRow(query, since.UTC().Format(time.RFC3339)).Scan(&sum.Total, &sum.ZeroResults, &sum.Distinct); err != nil {
		s.logger.Warn("failed to summarize searches", zap.Error(err))
		return SearchSummary{}, nil
	}
	return sum, nil
}

// Cleanup removes old records based on retention policy.
func (s *SQLiteStorage) Cleanup(retention time.Duration) error {
	if !s.enabled || s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retention).UTC().Format(time.RFC3339)

	if _, err := s.db.Exec("DELETE FROM search_history WHERE timestamp < ?", cutoff); err != nil {
		s.logger.Warn("failed to cleanup search_history", zap.Error(err))
	}

	if _, err := s.db.Exec("DELETE FROM embeddings WHERE created_at < ?", cutoff); err != nil {
		s.logger.Warn("failed to cleanup embeddings", zap.Error(err))
	}

	if _, err := s.db.Exec("VACUUM"); err != nil {
		s.logger.Warn("failed to vacuum database", zap.Error(err))
	}

	return nil
}
