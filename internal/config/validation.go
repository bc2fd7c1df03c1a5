package config

import (
	"errors"
	"fmt"
	"regexp"
)

var indexName = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]*$`)

// Validate checks value ranges and enumerations. All problems are reported
// together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Graph.DBPath == "" {
		add("graph.db_path must be set")
	}

	s := c.Search
	switch s.Backend {
	case BackendBleve:
	case BackendElasticsearch:
		if len(s.Elasticsearch.Addresses) == 0 {
			add("search.elasticsearch.addresses must not be empty")
		}
	default:
		add("search.backend must be %q or %q, got %q", BackendBleve, BackendElasticsearch, s.Backend)
	}
	for key, name := range map[string]string{"search.tag_index": s.TagIndex, "search.color_index": s.ColorIndex} {
		if !indexName.MatchString(name) {
			add("%s %q must be lower-case letters, digits, '_' or '-'", key, name)
		}
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		add("search.confidence must be within [0, 1], got %v", s.Confidence)
	}
	if s.DefaultLimit < 1 {
		add("search.default_limit must be positive, got %d", s.DefaultLimit)
	}
	if s.K < 1 {
		add("search.k must be positive, got %d", s.K)
	}
	if s.NumCandidates < s.K {
		add("search.num_candidates (%d) must be at least search.k (%d)", s.NumCandidates, s.K)
	}
	if s.MinSimilarity < -1 || s.MinSimilarity > 1 {
		add("search.min_similarity must be within [-1, 1], got %v", s.MinSimilarity)
	}
	if s.Timeout <= 0 {
		add("search.timeout must be positive, got %s", s.Timeout)
	}
	if s.Fusion.SemanticWeight < 0 || s.Fusion.KeywordWeight < 0 {
		add("search.fusion weights must not be negative")
	}

	e := c.Embedding
	switch e.Provider {
	case ProviderHashing:
	case ProviderGenAI:
		if e.APIKey == "" {
			add("embedding.api_key is required for the genai provider")
		}
	default:
		add("embedding.provider must be %q or %q, got %q", ProviderHashing, ProviderGenAI, e.Provider)
	}
	if e.Dimension < 1 {
		add("embedding.dimension must be positive, got %d", e.Dimension)
	}

	for i, r := range c.Labels.Rules {
		if r.Match == "" {
			add("labels.rules[%d].match must be set", i)
		}
	}

	if c.Server.Address == "" {
		add("server.address must be set")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		add("log.format must be json or console, got %q", c.Log.Format)
	}

	return errors.Join(errs...)
}
