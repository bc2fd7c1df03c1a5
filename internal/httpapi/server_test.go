package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanglvm/osm-tag-search/internal/apperror"
	"github.com/khanglvm/osm-tag-search/internal/graph"
	"github.com/khanglvm/osm-tag-search/internal/metrics"
	"github.com/khanglvm/osm-tag-search/internal/search"
	"github.com/khanglvm/osm-tag-search/internal/storage"
)

type fakeTags struct {
	matches    []search.Match
	err        error
	limit      int
	confidence float64
}

func (f *fakeTags) Search(_ context.Context, _ string, limit int, confidence float64) ([]search.Match, error) {
	f.limit, f.confidence = limit, confidence
	return f.matches, f.err
}

type fakeColors struct {
	match *search.CategoryMatch
	err   error
}

func (f *fakeColors) CategorySearch(context.Context, string) (*search.CategoryMatch, error) {
	return f.match, f.err
}

type fakeGraph struct {
	entities   map[string]*graph.TagEntity
	categories []graph.Category
	byCategory map[string][]graph.TagRef
	active     []graph.TagRef
}

func (f *fakeGraph) TagProperties(_ context.Context, key string) (*graph.TagEntity, bool, error) {
	e, ok := f.entities[key]
	return e, ok, nil
}

func (f *fakeGraph) AllCategories(context.Context) ([]graph.Category, error) {
	return f.categories, nil
}

func (f *fakeGraph) TagsInCategory(_ context.Context, name string) ([]graph.TagRef, error) {
	return f.byCategory[name], nil
}

func (f *fakeGraph) AllActiveTags(context.Context) ([]graph.TagRef, error) {
	return f.active, nil
}

type fakeHistory struct {
	records []storage.SearchRecord
}

func (f *fakeHistory) RecordSearch(r storage.SearchRecord) error {
	f.records = append(f.records, r)
	return nil
}

type fixture struct {
	tags    *fakeTags
	colors  *fakeColors
	graph   *fakeGraph
	history *fakeHistory
	metrics *metrics.Metrics
	server  *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tags:    &fakeTags{matches: []search.Match{}},
		colors:  &fakeColors{},
		graph:   &fakeGraph{},
		history: &fakeHistory{},
		metrics: metrics.New(),
	}
	f.server = New(Deps{
		Tags:    f.tags,
		Colors:  f.colors,
		Graph:   f.graph,
		History: f.history,
	}, Config{Confidence: 0.5, DefaultLimit: 1}, f.metrics, nil)
	return f
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSearchTags(t *testing.T) {
	f := newFixture(t)
	f.tags.matches = []search.Match{
		{MappingToken: json.RawMessage(`{"amenity":"fast_food"}`), Name: "fast food", Score: 0.93},
	}

	rec := f.get(t, "/search_osm_tag_v2?word=fast+food&limit=3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"mappingToken":{"amenity":"fast_food"},"name":"fast food","score":0.93}]`, rec.Body.String())
	assert.Equal(t, 3, f.tags.limit)
	assert.Equal(t, 0.5, f.tags.confidence)

	require.Len(t, f.history.records, 1)
	rec0 := f.history.records[0]
	assert.Equal(t, "tag", rec0.Kind)
	assert.Equal(t, storage.HashQuery("fast food"), rec0.QueryHash)
	assert.Equal(t, 1, rec0.ResultsCount)
	assert.NotEmpty(t, rec0.SearchID)
}

func TestSearchTagsDefaultLimit(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/search_osm_tag_v2?word=zzz_no_such_tag")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.Equal(t, 1, f.tags.limit)
}

func TestSearchTagsBadParameters(t *testing.T) {
	for _, target := range []string{
		"/search_osm_tag_v2",
		"/search_osm_tag_v2?word=%20",
		"/search_osm_tag_v2?word=cafe&limit=0",
		"/search_osm_tag_v2?word=cafe&limit=many",
	} {
		t.Run(target, func(t *testing.T) {
			f := newFixture(t)
			rec := f.get(t, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"bad_request"`)
			assert.Empty(t, f.history.records)
		})
	}
}

func TestSearchTagsBackendUnavailable(t *testing.T) {
	f := newFixture(t)
	f.tags.err = apperror.Unavailable("search", errors.New("connection refused"))

	rec := f.get(t, "/search_osm_tag_v2?word=cafe")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"backend_unavailable"`)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestColorMapping(t *testing.T) {
	f := newFixture(t)
	f.colors.match = &search.CategoryMatch{Name: "red", Values: []string{"#ff0000", "crimson"}}

	rec := f.get(t, "/color_mapping?color=red")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name":"red","values":["#ff0000","crimson"]}`, rec.Body.String())

	require.Len(t, f.history.records, 1)
	assert.Equal(t, "category", f.history.records[0].Kind)
}

func TestColorMappingNoMatch(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/color_mapping?color=zzz_no_such_tag")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
	assert.Equal(t, 0, f.history.records[0].ResultsCount)
}

func TestTagProperties(t *testing.T) {
	f := newFixture(t)
	f.graph.entities = map[string]*graph.TagEntity{
		"amenity=cafe": {URI: "https://wiki.openstreetmap.org/entity/Q10", RawKey: "amenity=cafe", Label: "cafe", Status: graph.StatusActive},
	}

	rec := f.get(t, "/fetch_tag_properties?osm_tag=amenity%3Dcafe")
	require.Equal(t, http.StatusOK, rec.Code)

	var got graph.TagEntity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "cafe", got.Label)
	assert.Equal(t, graph.StatusActive, got.Status)

	rec = f.get(t, "/fetch_tag_properties?osm_tag=amenity%3Dnothing")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestGraphListings(t *testing.T) {
	f := newFixture(t)
	f.graph.categories = []graph.Category{{URI: "https://wiki.openstreetmap.org/entity/Q5", Name: "health"}}
	f.graph.byCategory = map[string][]graph.TagRef{
		"health": {{URI: "https://wiki.openstreetmap.org/entity/Q20", RawKey: "amenity=pharmacy"}},
	}
	f.graph.active = []graph.TagRef{{URI: "https://wiki.openstreetmap.org/entity/Q10", RawKey: "amenity=cafe"}}

	rec := f.get(t, "/fetch_all_categories")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"uri":"https://wiki.openstreetmap.org/entity/Q5","name":"health"}]`, rec.Body.String())

	rec = f.get(t, "/fetch_tags_per_category?category=health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"uri":"https://wiki.openstreetmap.org/entity/Q20","osm_tag":"amenity=pharmacy"}]`, rec.Body.String())

	rec = f.get(t, "/fetch_tags_per_category?category=unknown")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.get(t, "/fetch_all_osm_tags")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"uri":"https://wiki.openstreetmap.org/entity/Q10","osm_tag":"amenity=cafe"}]`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.server.deps.Checks = map[string]HealthCheck{
		"index": func(context.Context) error { return nil },
	}

	rec := f.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Checks["index"])

	f.server.deps.Checks["graph"] = func(context.Context) error { return fmt.Errorf("database is locked") }
	rec = f.get(t, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is locked")
}

func TestRequestMetrics(t *testing.T) {
	f := newFixture(t)
	f.get(t, "/search_osm_tag_v2?word=cafe")
	f.get(t, "/search_osm_tag_v2")

	reg := f.metrics.Registry()
	require.NotNil(t, reg)

	rec := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `osm_tag_search_http_requests_total{code="200",route="/search_osm_tag_v2"} 1`)
	assert.Contains(t, body, `osm_tag_search_http_requests_total{code="400",route="/search_osm_tag_v2"} 1`)

	n, err := testutil.GatherAndCount(reg, "osm_tag_search_http_requests_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2)
}
