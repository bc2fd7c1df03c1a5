package elastic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanglvm/osm-tag-search/internal/apperror"
	"github.com/khanglvm/osm-tag-search/internal/index"
)

type request struct {
	method string
	path   string
	body   string
}

// fakeCluster answers a fixed set of routes and records every request.
type fakeCluster struct {
	mu       sync.Mutex
	requests []request
	routes   map[string]func(w http.ResponseWriter, body string)
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, request{method: r.Method, path: r.URL.Path, body: string(body)})
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	if h, ok := f.routes[r.Method+" "+r.URL.Path]; ok {
		h(w, string(body))
		return
	}
	w.WriteHeader(http.StatusNotFound)
	io.WriteString(w, `{"error":{"type":"index_not_found_exception"},"status":404}`)
}

func (f *fakeCluster) saw(method, path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.method == method && r.path == path {
			return true
		}
	}
	return false
}

func reply(status int, body string) func(http.ResponseWriter, string) {
	return func(w http.ResponseWriter, _ string) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func newTestBackend(t *testing.T, routes map[string]func(http.ResponseWriter, string)) (*Backend, *fakeCluster) {
	t.Helper()
	fake := &fakeCluster{routes: routes}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	b, err := New(Config{Addresses: []string{srv.URL}}, nil)
	require.NoError(t, err)
	return b, fake
}

const tagsMapping = `{"tags":{"mappings":{"properties":{"name":{"type":"text"},"embedding":{"type":"dense_vector","dims":2}}}}}`

func TestSearch_CombinedRequest(t *testing.T) {
	var sent map[string]interface{}
	b, _ := newTestBackend(t, map[string]func(http.ResponseWriter, string){
		"POST /tags/_search": func(w http.ResponseWriter, body string) {
			require.NoError(t, json.Unmarshal([]byte(body), &sent))
			io.WriteString(w, `{"hits":{"total":{"value":2},"hits":[
				{"_id":"a","_score":0.95,"_source":{"name":"fast food","mapping_token":"https://wiki.openstreetmap.org/wiki/Item:Q6961"}},
				{"_id":"b","_score":0.70,"_source":{"name":"restaurant","mapping_token":{"amenity":"restaurant"}}}]}}`)
		},
	})

	res, err := b.Search(context.Background(), "tags", index.Query{
		Text: "fast food", Vector: []float32{1, 0}, K: 10, NumCandidates: 100, MinSimilarity: 0.3, Size: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "a", res.Hits[0].Document.ID)
	assert.Equal(t, 0.95, res.Hits[0].Score)
	assert.JSONEq(t, `"https://wiki.openstreetmap.org/wiki/Item:Q6961"`, string(res.Hits[0].Document.MappingToken))
	assert.JSONEq(t, `{"amenity":"restaurant"}`, string(res.Hits[1].Document.MappingToken))

	assert.Equal(t, map[string]interface{}{"match": map[string]interface{}{"name": "fast food"}}, sent["query"])
	knn, ok := sent["knn"].(map[string]interface{})
	require.True(t, ok, "request must carry a knn clause")
	assert.Equal(t, "embedding", knn["field"])
	assert.Equal(t, float64(10), knn["k"])
	assert.Equal(t, float64(100), knn["num_candidates"])
	assert.Equal(t, 0.3, knn["similarity"])
	assert.Equal(t, float64(1), sent["size"])
}

func TestSearch_LexicalOnlyOmitsKNN(t *testing.T) {
	body := searchBody(index.Query{Text: "red", Size: 1})
	assert.NotContains(t, body, "knn")
	assert.Contains(t, body, "query")
}

func TestSearch_ZeroHits(t *testing.T) {
	b, _ := newTestBackend(t, map[string]func(http.ResponseWriter, string){
		"POST /tags/_search": reply(200, `{"hits":{"total":{"value":0},"hits":[]}}`),
	})

	res, err := b.Search(context.Background(), "tags", index.Query{Text: "zzz_no_such_tag"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Empty(t, res.Hits)
}

func TestSearch_ServerErrorIsUnavailable(t *testing.T) {
	b, _ := newTestBackend(t, map[string]func(http.ResponseWriter, string){
		"POST /tags/_search": reply(503, `{"error":"unavailable"}`),
	})

	_, err := b.Search(context.Background(), "tags", index.Query{Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrBackendUnavailable)
	assert.True(t, apperror.IsRetryable(err))
}

func TestSearch_TransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	b, err := New(Config{Addresses: []string{srv.URL}}, nil)
	require.NoError(t, err)

	_, err = b.Search(context.Background(), "tags", index.Query{Text: "x"})
	assert.ErrorIs(t, err, apperror.ErrBackendUnavailable)
}

func TestCount_MissingIndex(t *testing.T) {
	b, _ := newTestBackend(t, nil)

	_, err := b.Count(context.Background(), "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCreate(t *testing.T) {
	var created string
	b, fake := newTestBackend(t, map[string]func(http.ResponseWriter, string){
		"PUT /tags": func(w http.ResponseWriter, body string) {
			created = body
			io.WriteString(w, `{"acknowledged":true}`)
		},
	})

	require.NoError(t, b.Create(context.Background(), "tags", index.Schema{Dimension: 300}))
	assert.True(t, fake.saw(http.MethodPut, "/tags"))
	assert.Contains(t, created, `"dense_vector"`)
	assert.Contains(t, created, `"dims":300`)
}

func TestCreate_ExistingMismatch(t *testing.T) {
	b, fake := newTestBackend(t, map[string]func(http.ResponseWriter, string){
		"GET /tags/_mapping": reply(200, tagsMapping),
	})

	require.NoError(t, b.Create(context.Background(), "tags", index.Schema{Dimension: 2}))
	assert.ErrorIs(t, b.Create(context.Background(), "tags", index.Schema{Dimension: 300}), apperror.ErrSchemaMismatch)
	assert.False(t, fake.saw(http.MethodPut, "/tags"))
}

func TestDelete_Missing(t *testing.T) {
	b, _ := newTestBackend(t, nil)
	assert.NoError(t, b.Delete(context.Background(), "missing"))
}

func TestWrite_ValidatesBeforeBulk(t *testing.T) {
	b, fake := newTestBackend(t, map[string]func(http.ResponseWriter, string){
		"GET /tags/_mapping": reply(200, tagsMapping),
		"POST /tags/_bulk":   reply(200, `{"errors":false,"items":[]}`),
	})

	docs := []index.Document{
		{Name: "good", Embedding: []float32{1, 0}},
		{Name: "bad", Embedding: []float32{1, 0, 0}},
	}
	err := b.Write(context.Background(), "tags", docs)
	assert.ErrorIs(t, err, apperror.ErrSchemaMismatch)
	assert.False(t, fake.saw(http.MethodPost, "/tags/_bulk"))
}

func TestWrite_Bulk(t *testing.T) {
	var lines []string
	b, _ := newTestBackend(t, map[string]func(http.ResponseWriter, string){
		"GET /tags/_mapping": reply(200, tagsMapping),
		"POST /tags/_bulk": func(w http.ResponseWriter, body string) {
			lines = strings.Split(strings.TrimSpace(body), "\n")
			io.WriteString(w, `{"errors":false,"items":[]}`)
		},
		"PUT /tags/_mapping": reply(200, `{"acknowledged":true}`),
	})

	docs := []index.Document{
		{ID: "fixed", Name: "fast food", Embedding: []float32{1, 0}, MappingToken: json.RawMessage(`"Q6961"`)},
		{Name: "church", Embedding: []float32{0, 1}},
	}
	require.NoError(t, b.Write(context.Background(), "tags", docs))
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":{"_index":"tags","_id":"fixed"}}`, lines[0])
	assert.Contains(t, lines[1], `"mapping_token":"Q6961"`)
	assert.Contains(t, lines[2], `"_id"`)
}

func TestWrite_BulkItemError(t *testing.T) {
	b, _ := newTestBackend(t, map[string]func(http.ResponseWriter, string){
		"GET /tags/_mapping": reply(200, tagsMapping),
		"POST /tags/_bulk": reply(200, `{"errors":true,"items":[{"index":{"_id":"x","error":{"type":"mapper_parsing_exception","reason":"bad"}}}]}`),
	})

	err := b.Write(context.Background(), "tags", []index.Document{{Name: "a", Embedding: []float32{1, 0}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestVersion_WithoutWriteID(t *testing.T) {
	b, _ := newTestBackend(t, map[string]func(http.ResponseWriter, string){
		"GET /tags/_settings": reply(200, `{"tags":{"settings":{"index":{"uuid":"abc123"}}}}`),
		"GET /tags/_mapping":  reply(200, tagsMapping),
		"POST /tags/_count":   reply(200, `{"count":3}`),
		"GET /tags/_count":    reply(200, `{"count":3}`),
	})

	v, err := b.Version(context.Background(), "tags")
	require.NoError(t, err)
	assert.Equal(t, "abc123.n3", v)
}

// mappingState keeps the _meta write id the way the cluster would.
type mappingState struct {
	mu      sync.Mutex
	writeID string
	puts    int
}

func (m *mappingState) get(w http.ResponseWriter, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintf(w, `{"tags":{"mappings":{"_meta":{"write_id":%q},"properties":{"embedding":{"type":"dense_vector","dims":2}}}}}`, m.writeID)
}

func (m *mappingState) put(w http.ResponseWriter, body string) {
	var req struct {
		Meta map[string]string `json:"_meta"`
	}
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	m.writeID = req.Meta["write_id"]
	m.puts++
	m.mu.Unlock()
	io.WriteString(w, `{"acknowledged":true}`)
}

func TestVersion_ChangesOnUpsert(t *testing.T) {
	state := &mappingState{writeID: "initial"}
	b, _ := newTestBackend(t, map[string]func(http.ResponseWriter, string){
		"GET /tags/_settings": reply(200, `{"tags":{"settings":{"index":{"uuid":"abc123"}}}}`),
		"GET /tags/_mapping":  state.get,
		"PUT /tags/_mapping":  state.put,
		"POST /tags/_bulk":    reply(200, `{"errors":false,"items":[]}`),
	})
	ctx := context.Background()

	v1, err := b.Version(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, "abc123.initial", v1)

	// same ids and the same count both times
	docs := []index.Document{{ID: "fixed", Name: "fast food", Embedding: []float32{1, 0}}}
	require.NoError(t, b.Write(ctx, "tags", docs))
	v2, err := b.Version(ctx, "tags")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)

	require.NoError(t, b.Write(ctx, "tags", docs))
	v3, err := b.Version(ctx, "tags")
	require.NoError(t, err)
	assert.NotEqual(t, v2, v3)

	state.mu.Lock()
	defer state.mu.Unlock()
	assert.Equal(t, 2, state.puts)
}
