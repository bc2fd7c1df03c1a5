package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Search.Backend != BackendBleve {
		t.Errorf("backend = %q, want %q", cfg.Search.Backend, BackendBleve)
	}
	if cfg.Search.TagIndex != "manual_mapping" || cfg.Search.ColorIndex != "color_mappings" {
		t.Errorf("indexes = %q/%q", cfg.Search.TagIndex, cfg.Search.ColorIndex)
	}
	if cfg.Search.K != 10 || cfg.Search.NumCandidates != 100 {
		t.Errorf("k/num_candidates = %d/%d", cfg.Search.K, cfg.Search.NumCandidates)
	}
	if cfg.Search.Timeout != 30*time.Second {
		t.Errorf("timeout = %s", cfg.Search.Timeout)
	}
	if cfg.Embedding.Dimension != 300 {
		t.Errorf("dimension = %d", cfg.Embedding.Dimension)
	}
	want := filepath.Join(home, ".osm-tag-search", "graph.db")
	if cfg.Graph.DBPath != want {
		t.Errorf("db_path = %q, want %q", cfg.Graph.DBPath, want)
	}
	if len(cfg.Labels.Rules) == 0 {
		t.Error("expected default label rules")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
search:
  backend: elasticsearch
  elasticsearch:
    addresses: [http://es:9200]
  confidence: 0.8
  timeout: 5s
embedding:
  dimension: 64
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Search.Backend != BackendElasticsearch {
		t.Errorf("backend = %q", cfg.Search.Backend)
	}
	if len(cfg.Search.Elasticsearch.Addresses) != 1 || cfg.Search.Elasticsearch.Addresses[0] != "http://es:9200" {
		t.Errorf("addresses = %v", cfg.Search.Elasticsearch.Addresses)
	}
	if cfg.Search.Confidence != 0.8 {
		t.Errorf("confidence = %v", cfg.Search.Confidence)
	}
	if cfg.Search.Timeout != 5*time.Second {
		t.Errorf("timeout = %s", cfg.Search.Timeout)
	}
	if cfg.Embedding.Dimension != 64 {
		t.Errorf("dimension = %d", cfg.Embedding.Dimension)
	}
	// untouched keys keep their defaults
	if cfg.Search.TagIndex != "manual_mapping" {
		t.Errorf("tag_index = %q", cfg.Search.TagIndex)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "log:\n  level: warn\n")
	t.Setenv("OSMTAG_LOG_LEVEL", "debug")
	t.Setenv("OSMTAG_SEARCH_DEFAULT_LIMIT", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Search.DefaultLimit != 7 {
		t.Errorf("default_limit = %d, want 7", cfg.Search.DefaultLimit)
	}
}

func TestLoadExplicitMissingPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

	var notFound *ConfigNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ConfigNotFoundError, got %v", err)
	}
	if !strings.Contains(err.Error(), "config init") {
		t.Errorf("hint missing from %q", err.Error())
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "search: [unterminated\n")

	_, err := Load(path)
	var invalid *InvalidConfigError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidConfigError, got %v", err)
	}
	if invalid.Path != path {
		t.Errorf("path = %q", invalid.Path)
	}
}

func TestLoadRejectsOutOfRange(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "search:\n  confidence: 1.5\n")

	_, err := Load(path)
	var invalid *InvalidConfigError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidConfigError, got %v", err)
	}
	if !strings.Contains(invalid.Message, "search.confidence") {
		t.Errorf("message = %q", invalid.Message)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"backend", func(c *Config) { c.Search.Backend = "solr" }, "search.backend"},
		{"es addresses", func(c *Config) {
			c.Search.Backend = BackendElasticsearch
			c.Search.Elasticsearch.Addresses = nil
		}, "search.elasticsearch.addresses"},
		{"index name", func(c *Config) { c.Search.TagIndex = "Bad Name" }, "search.tag_index"},
		{"limit", func(c *Config) { c.Search.DefaultLimit = 0 }, "search.default_limit"},
		{"candidates", func(c *Config) { c.Search.NumCandidates = 5 }, "search.num_candidates"},
		{"timeout", func(c *Config) { c.Search.Timeout = 0 }, "search.timeout"},
		{"provider", func(c *Config) { c.Embedding.Provider = "other" }, "embedding.provider"},
		{"genai key", func(c *Config) { c.Embedding.Provider = ProviderGenAI }, "embedding.api_key"},
		{"dimension", func(c *Config) { c.Embedding.Dimension = 0 }, "embedding.dimension"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Defaults(t.TempDir())
	cfg.Search.Backend = "solr"
	cfg.Embedding.Dimension = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"search.backend", "embedding.dimension"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("%q missing from %q", key, err.Error())
		}
	}
}

func TestLoadEnvSetsSecrets(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OSMTAG_EMBEDDING_PROVIDER", "genai")
	t.Setenv("OSMTAG_EMBEDDING_API_KEY", "from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Embedding.Provider != ProviderGenAI || cfg.Embedding.APIKey != "from-env" {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
}
