/*
Package cli implements the osm-tag-search commands.

Every command loads the configuration once and builds only the components it
needs. Nothing is global: clients are constructed here, injected into the
engine, the indexing job or the HTTP server, and closed when the command
returns.
*/
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/khanglvm/osm-tag-search/internal/catalog"
	"github.com/khanglvm/osm-tag-search/internal/config"
	"github.com/khanglvm/osm-tag-search/internal/embedding"
	"github.com/khanglvm/osm-tag-search/internal/graph"
	"github.com/khanglvm/osm-tag-search/internal/index"
	"github.com/khanglvm/osm-tag-search/internal/index/bleveindex"
	"github.com/khanglvm/osm-tag-search/internal/index/elastic"
	"github.com/khanglvm/osm-tag-search/internal/indexing"
	"github.com/khanglvm/osm-tag-search/internal/labels"
	"github.com/khanglvm/osm-tag-search/internal/logging"
	"github.com/khanglvm/osm-tag-search/internal/metrics"
	"github.com/khanglvm/osm-tag-search/internal/search"
	"github.com/khanglvm/osm-tag-search/internal/storage"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
}

// app owns the components built for one command run.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics

	graphStore *graph.Store
	idx        index.Index
	store      *storage.SQLiteStorage
	gateway    embedding.Gateway
}

func newApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, metrics: metrics.New()}, nil
}

// Close releases everything that was opened. Safe to call more than once.
func (a *app) Close() error {
	var errs []error
	if a.idx != nil {
		errs = append(errs, a.idx.Close())
		a.idx = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.graphStore != nil {
		errs = append(errs, a.graphStore.Close())
		a.graphStore = nil
	}
	_ = a.log.Sync()
	return errors.Join(errs...)
}

// graph opens the triple store and wraps it in an accessor.
func (a *app) graph() (*graph.Accessor, error) {
	if a.graphStore == nil {
		s, err := graph.Open(a.cfg.Graph.DBPath, a.log.Named("graph"))
		if err != nil {
			return nil, err
		}
		a.graphStore = s
	}
	return graph.NewAccessor(a.graphStore,
		graph.WithDeprecatedSentinels(a.cfg.Graph.DeprecatedSentinels),
		graph.WithLogger(a.log.Named("graph")),
	), nil
}

// catalog builds the tag enumerator over the graph.
func (a *app) catalog() (*catalog.Enumerator, error) {
	acc, err := a.graph()
	if err != nil {
		return nil, err
	}
	return catalog.New(acc, labels.NewResolver(), a.normalizer(), a.log.Named("catalog")), nil
}

func (a *app) normalizer() *labels.Normalizer {
	return labels.NewNormalizer(a.cfg.Labels.Rules)
}

// index opens the configured retrieval backend.
func (a *app) index() (index.Index, error) {
	if a.idx != nil {
		return a.idx, nil
	}

	var (
		idx index.Index
		err error
	)
	switch a.cfg.Search.Backend {
	case config.BackendElasticsearch:
		idx, err = elastic.New(a.cfg.Search.Elasticsearch, a.log.Named("elastic"))
	default:
		idx, err = bleveindex.New(a.cfg.Search.BlevePath, a.cfg.Search.Fusion, a.log.Named("bleve"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", a.cfg.Search.Backend, err)
	}
	a.idx = idx
	return idx, nil
}

// storage opens the cache database. It returns nil when persistence is
// disabled or the database cannot be opened.
func (a *app) storage() *storage.SQLiteStorage {
	if a.store != nil {
		return a.store
	}
	if a.cfg.Embedding.CachePath == "" {
		return nil
	}
	s := storage.NewStorage(a.cfg.Embedding.CachePath, a.log.Named("storage"))
	if err := s.Init(); err != nil {
		a.log.Warn("cache database unavailable, continuing without it", zap.Error(err))
		return nil
	}
	a.store = s
	return s
}

// embedder builds the configured gateway behind the vector cache.
func (a *app) embedder(ctx context.Context) (embedding.Gateway, error) {
	if a.gateway != nil {
		return a.gateway, nil
	}

	e := a.cfg.Embedding
	var (
		base embedding.Gateway
		err  error
	)
	switch e.Provider {
	case config.ProviderGenAI:
		base, err = embedding.NewGenAI(ctx, embedding.GenAIConfig{
			APIKey:    e.APIKey,
			Model:     e.Model,
			Dimension: e.Dimension,
		}, embedding.WithLogger(a.log.Named("genai")))
	default:
		base = embedding.NewHashing(e.Dimension)
	}
	if err != nil {
		return nil, err
	}

	var vectors embedding.VectorStore
	if s := a.storage(); s != nil {
		vectors = s
	}
	cached, err := embedding.NewCached(base, vectors, e.CacheSize, a.log.Named("embedding"))
	if err != nil {
		return nil, err
	}
	a.gateway = cached
	return cached, nil
}

// engine builds the query engine over the configured backend.
func (a *app) engine(ctx context.Context) (*search.Engine, error) {
	idx, err := a.index()
	if err != nil {
		return nil, err
	}
	gw, err := a.embedder(ctx)
	if err != nil {
		return nil, err
	}
	return search.New(idx, gw, a.cfg.Search.Options,
		search.WithMetrics(a.metrics),
		search.WithLogger(a.log.Named("search")),
	)
}

// job builds an indexing job over the configured backend.
func (a *app) job(ctx context.Context, workers int) (*indexing.Job, error) {
	idx, err := a.index()
	if err != nil {
		return nil, err
	}
	gw, err := a.embedder(ctx)
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = a.cfg.Indexing.Workers
	}
	return indexing.New(idx, gw, a.normalizer(), indexing.Options{
		LockDir:   a.cfg.Indexing.LockDir,
		Workers:   workers,
		BatchSize: a.cfg.Indexing.BatchSize,
	}, a.metrics, a.log.Named("indexing")), nil
}

// withApp runs fn with a freshly built app and closes it afterwards.
func withApp(opts *rootOptions, fn func(a *app) error) (err error) {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func openInput(path string) (*os.File, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}
