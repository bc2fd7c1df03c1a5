package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/khanglvm/osm-tag-search/internal/apperror"
	"github.com/khanglvm/osm-tag-search/internal/graph"
	"github.com/khanglvm/osm-tag-search/internal/storage"
	"github.com/khanglvm/osm-tag-search/internal/version"
)

// Search kinds recorded in the history.
const (
	kindTag      = "tag"
	kindCategory = "category"
)

// searchTags handles GET /search_osm_tag_v2?word=...&limit=...
func (s *Server) searchTags(c echo.Context) error {
	word, err := requiredParam(c, "word")
	if err != nil {
		return err
	}

	limit := s.cfg.DefaultLimit
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return apperror.NewBadRequest("limit must be a positive integer")
		}
	}

	matches, err := s.deps.Tags.Search(c.Request().Context(), word, limit, s.cfg.Confidence)
	if err != nil {
		return err
	}
	s.record(kindTag, word, len(matches))
	return c.JSON(http.StatusOK, matches)
}

// colorMapping handles GET /color_mapping?color=...
func (s *Server) colorMapping(c echo.Context) error {
	color, err := requiredParam(c, "color")
	if err != nil {
		return err
	}

	match, err := s.deps.Colors.CategorySearch(c.Request().Context(), color)
	if err != nil {
		return err
	}

	n := 0
	if match != nil {
		n = 1
	}
	s.record(kindCategory, color, n)
	return c.JSON(http.StatusOK, match)
}

// tagProperties handles GET /fetch_tag_properties?osm_tag=...
func (s *Server) tagProperties(c echo.Context) error {
	key, err := requiredParam(c, "osm_tag")
	if err != nil {
		return err
	}

	entity, ok, err := s.deps.Graph.TagProperties(c.Request().Context(), key)
	if err != nil {
		return err
	}
	if !ok {
		return c.JSON(http.StatusOK, nil)
	}
	return c.JSON(http.StatusOK, entity)
}

func (s *Server) allCategories(c echo.Context) error {
	cats, err := s.deps.Graph.AllCategories(c.Request().Context())
	if err != nil {
		return err
	}
	if cats == nil {
		cats = []graph.Category{}
	}
	return c.JSON(http.StatusOK, cats)
}

func (s *Server) tagsPerCategory(c echo.Context) error {
	category, err := requiredParam(c, "category")
	if err != nil {
		return err
	}

	refs, err := s.deps.Graph.TagsInCategory(c.Request().Context(), category)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(refs))
}

func (s *Server) allTags(c echo.Context) error {
	refs, err := s.deps.Graph.AllActiveTags(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(refs))
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version version.Info      `json:"version"`
	Checks  map[string]string `json:"checks"`
}

func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:  "healthy",
		Uptime:  time.Since(s.startAt).Round(time.Second).String(),
		Version: version.Get(),
		Checks:  make(map[string]string, len(s.deps.Checks)),
	}
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unhealthy"
			continue
		}
		resp.Checks[name] = "ok"
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

// record stores a history entry. Failures are logged, never returned.
func (s *Server) record(kind, query string, results int) {
	if s.deps.History == nil {
		return
	}
	err := s.deps.History.RecordSearch(storage.SearchRecord{
		SearchID:     uuid.NewString(),
		Kind:         kind,
		QueryHash:    storage.HashQuery(query),
		Timestamp:    time.Now().UTC(),
		ResultsCount: results,
	})
	if err != nil {
		s.log.Warn("failed to record search", zap.String("kind", kind), zap.Error(err))
	}
}

func requiredParam(c echo.Context, name string) (string, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return "", apperror.NewBadRequest(name + " is required")
	}
	return v, nil
}

func nonNil(refs []graph.TagRef) []graph.TagRef {
	if refs == nil {
		return []graph.TagRef{}
	}
	return refs
}
