package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SaveEmbedding caches an embedding vector keyed on (text, model).
func (s *SQLiteStorage) SaveEmbedding(text, model string, vector []float32) error {
	if !s.enabled || s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vectorJSON, err := vectorToJSON(vector)
	if err != nil {
		return err
	}

	query := `
		INSERT OR REPLACE INTO embeddings (text_hash, model, vector, dimension, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	if _, err := s.db.Exec(query,
		HashQuery(text),
		model,
		vectorJSON,
		len(vector),
		time.Now().Format(time.RFC3339),
	); err != nil {
		s.logger.Warn("failed to save embedding", zap.Error(err))
	}

	return nil
}

// GetEmbedding retrieves a cached embedding for (text, model).
func (s *SQLiteStorage) GetEmbedding(text, model string) ([]float32, bool, error) {
	if !s.enabled || s.db == nil {
		return nil, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT vector
		FROM embeddings
		WHERE text_hash = ? AND model = ?
	`

	var vectorJSON string
	err := s.db.QueryRow(query, HashQuery(text), model).Scan(&vectorJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		s.logger.Warn("failed to query embedding", zap.Error(err))
		return nil, false, nil
	}

	vector, err := jsonToVector(vectorJSON)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt cached embedding: %w", err)
	}

	return vector, true, nil
}
