// Package httpapi exposes tag search, colour lookup and the graph read
// operations over HTTP.
//
// Every endpoint is a GET returning JSON. A query that matches nothing answers
// 200 with [] or null. A backend that is down or an index that was never
// built answers 503 backend_unavailable. Errors use the {"error": {...}}
// envelope rendered by apperror.HTTPErrorHandler.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/khanglvm/osm-tag-search/internal/apperror"
	"github.com/khanglvm/osm-tag-search/internal/graph"
	"github.com/khanglvm/osm-tag-search/internal/metrics"
	"github.com/khanglvm/osm-tag-search/internal/search"
	"github.com/khanglvm/osm-tag-search/internal/storage"
)

// TagSearcher runs the hybrid tag search.
type TagSearcher interface {
	Search(ctx context.Context, query string, limit int, confidence float64) ([]search.Match, error)
}

// ColorSearcher runs the lexical category search.
type ColorSearcher interface {
	CategorySearch(ctx context.Context, query string) (*search.CategoryMatch, error)
}

// GraphReader is the subset of graph.Accessor served over HTTP.
type GraphReader interface {
	TagProperties(ctx context.Context, uriOrRawKey string) (*graph.TagEntity, bool, error)
	AllCategories(ctx context.Context) ([]graph.Category, error)
	TagsInCategory(ctx context.Context, name string) ([]graph.TagRef, error)
	AllActiveTags(ctx context.Context) ([]graph.TagRef, error)
}

// HistoryRecorder stores anonymised search history.
type HistoryRecorder interface {
	RecordSearch(record storage.SearchRecord) error
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps are the components behind the endpoints. History and Checks are
// optional.
type Deps struct {
	Tags    TagSearcher
	Colors  ColorSearcher
	Graph   GraphReader
	History HistoryRecorder
	Checks  map[string]HealthCheck
}

// Config holds request defaults.
type Config struct {
	// Confidence is the score floor applied to every tag search.
	Confidence float64

	// DefaultLimit applies when the limit parameter is absent.
	DefaultLimit int
}

// Server is the HTTP surface.
type Server struct {
	echo    *echo.Echo
	deps    Deps
	cfg     Config
	metrics *metrics.Metrics
	log     *zap.Logger
	startAt time.Time
}

// New builds the server and registers all routes.
func New(deps Deps, cfg Config, m *metrics.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DefaultLimit < 1 {
		cfg.DefaultLimit = 1
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(log)

	s := &Server{
		echo:    e,
		deps:    deps,
		cfg:     cfg,
		metrics: m,
		log:     log,
		startAt: time.Now(),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: []string{"*"}}))
	e.Use(s.observe)
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/search_osm_tag_v2", s.searchTags)
	s.echo.GET("/color_mapping", s.colorMapping)
	s.echo.GET("/fetch_tag_properties", s.tagProperties)
	s.echo.GET("/fetch_all_categories", s.allCategories)
	s.echo.GET("/fetch_tags_per_category", s.tagsPerCategory)
	s.echo.GET("/fetch_all_osm_tags", s.allTags)
	s.echo.GET("/health", s.health)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.Info("http server listening", zap.String("address", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
