package storage

import "time"

// SearchRecord represents a search query for analytics.
type SearchRecord struct {
	// SearchID is a unique identifier for this search (UUID).
	SearchID string `json:"search_id"`

	// Kind is the search flow, "tag" or "category".
	Kind string `json:"kind"`

	// QueryHash is the SHA256 hash of the search query for privacy.
	QueryHash string `json:"query_hash"`

	// Timestamp is when the search was performed.
	Timestamp time.Time `json:"timestamp"`

	// ResultsCount is the number of results returned.
	ResultsCount int `json:"results_count"`
}

// SearchSummary aggregates recorded searches.
type SearchSummary struct {
	Total       int `json:"total"`
	ZeroResults int `json:"zero_results"`
	Distinct    int `json:"distinct_queries"`
}

// CachedEmbedding represents a cached embedding vector.
type CachedEmbedding struct {
	// TextHash is the SHA256 hash of the embedded text.
	TextHash string `json:"text_hash"`

	// Model is the model version used to generate the embedding.
	Model string `json:"model"`

	// Vector is the embedding vector (serialized as JSON).
	Vector []float32 `json:"vector"`

	// CreatedAt is when the embedding was generated.
	CreatedAt time.Time `json:"created_at"`
}
