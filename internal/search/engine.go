/*
Package search implements the hybrid query engine over a retrieval index.

A tag search encodes the query, sends one combined lexical and nearest
neighbour request, then truncates and confidence-filters the ranked hits. A
category search is lexical only and returns the side payload of the single
best hit.
*/
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/khanglvm/osm-tag-search/internal/apperror"
	"github.com/khanglvm/osm-tag-search/internal/embedding"
	"github.com/khanglvm/osm-tag-search/internal/index"
	"github.com/khanglvm/osm-tag-search/internal/metrics"
)

const (
	kindTag   = "tag"
	kindColor = "color"
)

// Options configures the engine. Zero values select the defaults.
type Options struct {
	TagIndex   string `mapstructure:"tag_index" yaml:"tag_index"`
	ColorIndex string `mapstructure:"color_index" yaml:"color_index"`

	K             int     `mapstructure:"k" yaml:"k"`
	NumCandidates int     `mapstructure:"num_candidates" yaml:"num_candidates"`
	MinSimilarity float64 `mapstructure:"min_similarity" yaml:"min_similarity"`

	// Timeout bounds the embedding and index round trips of one call.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// FilterBeforeTruncate drops low-confidence hits before applying the limit.
	// The default truncates first, so a limit can yield fewer results than
	// there are confident hits.
	FilterBeforeTruncate bool `mapstructure:"filter_before_truncate" yaml:"filter_before_truncate"`

	// CacheSize enables the result cache when positive.
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return Options{
		TagIndex:      "manual_mapping",
		ColorIndex:    "color_mappings",
		K:             10,
		NumCandidates: 100,
		MinSimilarity: 0.3,
		Timeout:       30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TagIndex == "" {
		o.TagIndex = d.TagIndex
	}
	if o.ColorIndex == "" {
		o.ColorIndex = d.ColorIndex
	}
	if o.K <= 0 {
		o.K = d.K
	}
	if o.NumCandidates < o.K {
		o.NumCandidates = max(d.NumCandidates, o.K)
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	return o
}

// Match is one tag search result.
type Match struct {
	MappingToken json.RawMessage `json:"mappingToken"`
	Name         string          `json:"name"`
	Score        float64         `json:"score"`
}

// CategoryMatch is the result of a category search.
type CategoryMatch struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type cacheKey struct {
	kind       string
	query      string
	limit      int
	confidence float64
	filter     bool
	version    string
}

type cached struct {
	matches  []Match
	category *CategoryMatch
}

// Engine answers search requests. It is safe for concurrent use and never
// writes to the index.
type Engine struct {
	idx     index.Index
	gateway embedding.Gateway
	opts    Options
	cache   *lru.Cache[cacheKey, cached]
	metrics *metrics.Metrics
	log     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records search metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an engine over idx using gateway for query vectors.
func New(idx index.Index, gateway embedding.Gateway, opts Options, options ...Option) (*Engine, error) {
	e := &Engine{
		idx:     idx,
		gateway: gateway,
		opts:    opts.withDefaults(),
		log:     zap.NewNop(),
	}
	for _, o := range options {
		o(e)
	}
	if e.opts.CacheSize > 0 {
		c, err := lru.New[cacheKey, cached](e.opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}
		e.cache = c
	}
	return e, nil
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// Search runs a hybrid tag search. limit must be positive and hits scoring
// below confidence are dropped. No match is an empty slice.
func (e *Engine) Search(ctx context.Context, query string, limit int, confidence float64) (matches []Match, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveSearch(kindTag, start, len(matches), err) }()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.NewBadRequest("query must not be empty")
	}
	if limit < 1 {
		return nil, apperror.NewBadRequest(fmt.Sprintf("limit must be positive, got %d", limit))
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	key := cacheKey{kind: kindTag, query: query, limit: limit, confidence: confidence, filter: e.opts.FilterBeforeTruncate}
	if hit, ok := e.lookup(ctx, e.opts.TagIndex, &key); ok {
		return append([]Match(nil), hit.matches...), nil
	}

	vector, err := e.gateway.Encode(ctx, query)
	if err != nil {
		return nil, backendErr("embed query", err)
	}

	size := limit
	if e.opts.FilterBeforeTruncate {
		size = max(limit, e.opts.K)
	}
	res, err := e.idx.Search(ctx, e.opts.TagIndex, index.Query{
		Text:          query,
		Vector:        vector,
		K:             e.opts.K,
		NumCandidates: e.opts.NumCandidates,
		MinSimilarity: e.opts.MinSimilarity,
		Size:          size,
	})
	if err != nil {
		return nil, backendErr("search", err)
	}

	matches = rank(res, limit, confidence, e.opts.FilterBeforeTruncate)
	e.log.Debug("tag search",
		zap.String("query", query),
		zap.Int("total", res.Total),
		zap.Int("matches", len(matches)),
	)
	e.store(key, cached{matches: append([]Match(nil), matches...)})
	return matches, nil
}

// rank applies the limit and the confidence floor to backend-ordered hits.
func rank(res *index.Result, limit int, confidence float64, filterFirst bool) []Match {
	matches := []Match{}
	if res == nil || res.Total == 0 {
		return matches
	}

	hits := res.Hits
	if !filterFirst && len(hits) > limit {
		hits = hits[:limit]
	}
	for _, h := range hits {
		if h.Score < confidence {
			continue
		}
		matches = append(matches, Match{
			MappingToken: h.Document.MappingToken,
			Name:         h.Document.Name,
			Score:        h.Score,
		})
		if len(matches) == limit {
			break
		}
	}
	return matches
}

// CategorySearch runs a lexical search on the colour index and returns the
// best hit with its values, or nil when nothing matches.
func (e *Engine) CategorySearch(ctx context.Context, query string) (match *CategoryMatch, err error) {
	start := time.Now()
	defer func() {
		n := 0
		if match != nil {
			n = 1
		}
		e.metrics.ObserveSearch(kindColor, start, n, err)
	}()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.NewBadRequest("query must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	key := cacheKey{kind: kindColor, query: query, limit: 1}
	if hit, ok := e.lookup(ctx, e.opts.ColorIndex, &key); ok {
		return hit.category, nil
	}

	res, err := e.idx.Search(ctx, e.opts.ColorIndex, index.Query{Text: query, Size: 1})
	if err != nil {
		return nil, backendErr("category search", err)
	}
	if res.Total > 0 && len(res.Hits) > 0 {
		doc := res.Hits[0].Document
		values := doc.Descriptors
		if values == nil {
			values = []string{}
		}
		match = &CategoryMatch{Name: doc.Name, Values: values}
	}
	e.store(key, cached{category: match})
	return match, nil
}

// lookup fills key.version and returns a cached result for it. A failure
// to read the version disables caching for the call.
func (e *Engine) lookup(ctx context.Context, name string, key *cacheKey) (cached, bool) {
	if e.cache == nil {
		return cached{}, false
	}
	version, err := e.idx.Version(ctx, name)
	if err != nil {
		e.log.Debug("index version unavailable, bypassing cache", zap.String("index", name), zap.Error(err))
		return cached{}, false
	}
	key.version = version
	hit, ok := e.cache.Get(*key)
	if ok {
		e.metrics.CacheHit(key.kind)
	}
	return hit, ok
}

func (e *Engine) store(key cacheKey, val cached) {
	if e.cache == nil || key.version == "" {
		return
	}
	e.cache.Add(key, val)
}

// backendErr reports timeouts and a missing index as backend unavailability
// and leaves other errors unchanged. A missing index is a deployment problem,
// never a miss.
func backendErr(op string, err error) error {
	if errors.Is(err, apperror.ErrBackendUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, apperror.ErrNotFound) {
		return apperror.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
