/*
Package config handles loading and saving osm-tag-search configuration.

Configuration is read from ~/.osm-tag-search.yaml (or the --config path),
layered over built-in defaults. A .env file in the working directory is loaded
first, and every key can be overridden by an OSMTAG_* environment variable,
for example OSMTAG_SEARCH_BACKEND=elasticsearch or OSMTAG_EMBEDDING_API_KEY.

Schema:

	graph:
	  db_path: ~/.osm-tag-search/graph.db
	  deprecated_sentinels: [https://wiki.openstreetmap.org/entity/Q6255]
	search:
	  backend: bleve            # bleve | elasticsearch
	  bleve_path: ~/.osm-tag-search/index
	  elasticsearch:
	    addresses: [http://localhost:9200]
	  tag_index: manual_mapping
	  color_index: color_mappings
	  confidence: 0.5
	  default_limit: 1
	  timeout: 30s
	embedding:
	  provider: hashing         # hashing | genai
	  dimension: 300
	server:
	  address: ":8000"
	log:
	  level: info
	  format: console
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/khanglvm/osm-tag-search/internal/embedding"
	"github.com/khanglvm/osm-tag-search/internal/graph"
	"github.com/khanglvm/osm-tag-search/internal/index/bleveindex"
	"github.com/khanglvm/osm-tag-search/internal/index/elastic"
	"github.com/khanglvm/osm-tag-search/internal/labels"
	"github.com/khanglvm/osm-tag-search/internal/search"
)

// Backend names.
const (
	BackendBleve         = "bleve"
	BackendElasticsearch = "elasticsearch"
)

// Embedding provider names.
const (
	ProviderHashing = "hashing"
	ProviderGenAI   = "genai"
)

// Config represents the root configuration structure.
type Config struct {
	Graph     GraphConfig     `mapstructure:"graph" yaml:"graph"`
	Labels    LabelsConfig    `mapstructure:"labels" yaml:"labels"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Indexing  IndexingConfig  `mapstructure:"indexing" yaml:"indexing"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// GraphConfig locates the triple store.
type GraphConfig struct {
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// DeprecatedSentinels are status item IRIs that mark a tag deprecated.
	DeprecatedSentinels []string `mapstructure:"deprecated_sentinels" yaml:"deprecated_sentinels"`
}

// LabelsConfig holds the label normalization rules.
type LabelsConfig struct {
	Rules []labels.Rule `mapstructure:"rules" yaml:"rules"`
}

// SearchConfig selects the retrieval backend and query defaults.
type SearchConfig struct {
	Backend       string                  `mapstructure:"backend" yaml:"backend"`
	BlevePath     string                  `mapstructure:"bleve_path" yaml:"bleve_path"`
	Fusion        bleveindex.FusionConfig `mapstructure:"fusion" yaml:"fusion"`
	Elasticsearch elastic.Config          `mapstructure:"elasticsearch" yaml:"elasticsearch"`

	search.Options `mapstructure:",squash" yaml:",inline"`

	// Confidence is the score floor applied to HTTP and CLI searches.
	Confidence float64 `mapstructure:"confidence" yaml:"confidence"`

	// DefaultLimit applies when a request does not carry a limit.
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit"`
}

// EmbeddingConfig selects the embedding gateway.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`
	Model     string `mapstructure:"model" yaml:"model"`
	Dimension int    `mapstructure:"dimension" yaml:"dimension"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`

	// CachePath is the SQLite file for cached vectors and search history.
	// Empty disables persistence.
	CachePath string `mapstructure:"cache_path" yaml:"cache_path"`
	CacheSize int    `mapstructure:"cache_size" yaml:"cache_size"`
}

// IndexingConfig tunes the offline indexing jobs.
type IndexingConfig struct {
	LockDir   string `mapstructure:"lock_dir" yaml:"lock_dir"`
	Workers   int    `mapstructure:"workers" yaml:"workers"`
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Address string `mapstructure:"address" yaml:"address"`

	// RecordHistory stores anonymised search history in the cache database.
	RecordHistory bool `mapstructure:"record_history" yaml:"record_history"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DataDir returns ~/.osm-tag-search.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".osm-tag-search"), nil
}

// GetDefaultConfigPath returns the path to ~/.osm-tag-search.yaml
func GetDefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".osm-tag-search.yaml"), nil
}

// Defaults returns the built-in configuration rooted at dataDir.
func Defaults(dataDir string) *Config {
	opts := search.DefaultOptions()
	opts.CacheSize = 1024

	return &Config{
		Graph: GraphConfig{
			DBPath:              filepath.Join(dataDir, "graph.db"),
			DeprecatedSentinels: append([]string(nil), graph.DefaultDeprecatedSentinels...),
		},
		Labels: LabelsConfig{Rules: labels.DefaultRules()},
		Search: SearchConfig{
			Backend:       BackendBleve,
			BlevePath:     filepath.Join(dataDir, "index"),
			Fusion:        bleveindex.DefaultFusionConfig,
			Elasticsearch: elastic.Config{Addresses: []string{"http://localhost:9200"}},
			Options:       opts,
			Confidence:    0.5,
			DefaultLimit:  1,
		},
		Embedding: EmbeddingConfig{
			Provider:  ProviderHashing,
			Dimension: embedding.DefaultDimension,
			CachePath: filepath.Join(dataDir, "cache.db"),
			CacheSize: 4096,
		},
		Indexing: IndexingConfig{
			LockDir:   filepath.Join(dataDir, "locks"),
			BatchSize: 500,
		},
		Server: ServerConfig{
			Address:       ":8000",
			RecordHistory: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

