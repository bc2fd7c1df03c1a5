/*
Package index defines the retrieval index contract shared by the search engine
and the indexing jobs.

A backend holds named indexes of Documents and answers one combined query: a
lexical match on the document name plus an optional nearest-neighbour search on
the embedding. The backend fuses both signals into a single score per hit; the
fusion method is backend specific and callers treat the score as opaque.
*/
package index

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/khanglvm/osm-tag-search/internal/apperror"
)

// Document is the unit stored in an index.
type Document struct {
	// ID is assigned by the backend when empty.
	ID string `json:"-"`

	// Name is the canonical, lower-cased name matched lexically.
	Name string `json:"name"`

	// MappingToken is an opaque JSON value returned to callers.
	MappingToken json.RawMessage `json:"mapping_token,omitempty"`

	Description string    `json:"description,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	ClusterID   string    `json:"cluster_id,omitempty"`

	// Descriptors is an optional side payload, such as colour values.
	Descriptors []string `json:"descriptors,omitempty"`
}

// Schema describes the documents of one index.
type Schema struct {
	// Dimension is the embedding length. Zero means the index is lexical only
	// and documents must not carry embeddings.
	Dimension int `json:"dimension"`
}

// Query is a combined lexical and vector query.
type Query struct {
	// Text is matched against the name field.
	Text string

	// Vector, when set, adds a nearest-neighbour leg on the embedding field.
	Vector        []float32
	K             int
	NumCandidates int

	// MinSimilarity drops neighbours whose cosine similarity is below it.
	MinSimilarity float64

	// Size is the maximum number of hits returned.
	Size int
}

// Hit is one ranked result.
type Hit struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Result holds the total candidate count and the top hits in descending score order.
type Result struct {
	Total int   `json:"total"`
	Hits  []Hit `json:"hits"`
}

// Index is a retrieval backend holding named indexes.
type Index interface {
	// Create creates the named index with schema if it does not exist.
	Create(ctx context.Context, name string, schema Schema) error

	// Delete removes the named index if it exists.
	Delete(ctx context.Context, name string) error

	// Write stores docs. Every document is validated before anything is written.
	Write(ctx context.Context, name string, docs []Document) error

	// Search runs a combined query.
	Search(ctx context.Context, name string, q Query) (*Result, error)

	// Count returns the number of documents.
	Count(ctx context.Context, name string) (int, error)

	// Version identifies the index contents; it changes on every write or rebuild.
	Version(ctx context.Context, name string) (string, error)

	// Close releases backend resources.
	Close() error
}

// Validate checks docs against schema and returns ErrSchemaMismatch for the
// first offending document.
func Validate(schema Schema, docs []Document) error {
	for i, d := range docs {
		if d.Name == "" {
			return fmt.Errorf("document %d has no name: %w", i, apperror.ErrSchemaMismatch)
		}
		if len(d.Embedding) != schema.Dimension {
			return fmt.Errorf("document %d (%s) has embedding dimension %d, schema expects %d: %w",
				i, d.Name, len(d.Embedding), schema.Dimension, apperror.ErrSchemaMismatch)
		}
		if len(d.MappingToken) > 0 && !json.Valid(d.MappingToken) {
			return fmt.Errorf("document %d (%s) has an invalid mapping token: %w", i, d.Name, apperror.ErrSchemaMismatch)
		}
	}
	return nil
}

// NotFound wraps ErrNotFound for a missing index.
func NotFound(name string) error {
	return fmt.Errorf("index %q: %w", name, apperror.ErrNotFound)
}
