// Package elastic is the Elasticsearch retrieval backend. Search issues one
// request combining a match query on the name with a kNN clause on the
// embedding and lets the cluster fuse both scores.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khanglvm/osm-tag-search/internal/apperror"
	"github.com/khanglvm/osm-tag-search/internal/index"
)

const (
	batchSize   = 500
	defaultSize = 10

	// metaWriteID is the mapping _meta key stamped with a fresh id after
	// every write, including overwrites of existing document ids.
	metaWriteID = "write_id"
)

// Config holds the cluster connection settings.
type Config struct {
	Addresses []string `mapstructure:"addresses" yaml:"addresses"`
	Username  string   `mapstructure:"username" yaml:"username"`
	Password  string   `mapstructure:"password" yaml:"password"`
	APIKey    string   `mapstructure:"api_key" yaml:"api_key"`

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper `mapstructure:"-" yaml:"-"`
}

// Backend implements index.Index on an Elasticsearch cluster.
type Backend struct {
	es  *elasticsearch.Client
	log *zap.Logger
}

var _ index.Index = (*Backend)(nil)

// New creates a backend. No request is made until the first operation.
func New(cfg Config, log *zap.Logger) (*Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Backend{es: es, log: log}, nil
}

func mappingFor(schema index.Schema) map[string]interface{} {
	properties := map[string]interface{}{
		"name":          map[string]interface{}{"type": "text"},
		"description":   map[string]interface{}{"type": "text", "index": false},
		"mapping_token": map[string]interface{}{"type": "object", "enabled": false},
		"cluster_id":    map[string]interface{}{"type": "keyword"},
		"descriptors":   map[string]interface{}{"type": "keyword", "index": false},
	}
	if schema.Dimension > 0 {
		properties["embedding"] = map[string]interface{}{
			"type":       "dense_vector",
			"dims":       schema.Dimension,
			"index":      true,
			"similarity": "cosine",
		}
	}
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"_meta":      map[string]interface{}{metaWriteID: uuid.NewString()},
			"properties": properties,
		},
	}
}

// Create implements index.Index.
func (b *Backend) Create(ctx context.Context, name string, schema index.Schema) error {
	stored, exists, err := b.storedMapping(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		if stored.dims != schema.Dimension {
			return fmt.Errorf("index %q has dimension %d, requested %d: %w",
				name, stored.dims, schema.Dimension, apperror.ErrSchemaMismatch)
		}
		return nil
	}

	body, err := json.Marshal(mappingFor(schema))
	if err != nil {
		return err
	}
	res, err := b.es.Indices.Create(name,
		b.es.Indices.Create.WithContext(ctx),
		b.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err := check("create index", name, res, err, nil); err != nil {
		return err
	}
	b.log.Info("created index", zap.String("index", name), zap.Int("dimension", schema.Dimension))
	return nil
}

type storedMapping struct {
	dims    int
	writeID string
}

// storedMapping reads the embedding dimension and last write id of an
// existing index.
func (b *Backend) storedMapping(ctx context.Context, name string) (storedMapping, bool, error) {
	res, err := b.es.Indices.GetMapping(
		b.es.Indices.GetMapping.WithContext(ctx),
		b.es.Indices.GetMapping.WithIndex(name),
	)
	var body map[string]struct {
		Mappings struct {
			Meta struct {
				WriteID string `json:"write_id"`
			} `json:"_meta"`
			Properties struct {
				Embedding struct {
					Dims int `json:"dims"`
				} `json:"embedding"`
			} `json:"properties"`
		} `json:"mappings"`
	}
	if err := check("get mapping", name, res, err, &body); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return storedMapping{}, false, nil
		}
		return storedMapping{}, false, err
	}
	m, ok := body[name]
	if !ok {
		return storedMapping{}, false, nil
	}
	return storedMapping{dims: m.Mappings.Properties.Embedding.Dims, writeID: m.Mappings.Meta.WriteID}, true, nil
}

// stampWrite records a fresh write id in the index mapping.
func (b *Backend) stampWrite(ctx context.Context, name string) error {
	body, err := json.Marshal(map[string]interface{}{
		"_meta": map[string]string{metaWriteID: uuid.NewString()},
	})
	if err != nil {
		return err
	}
	res, err := b.es.Indices.PutMapping([]string{name}, bytes.NewReader(body),
		b.es.Indices.PutMapping.WithContext(ctx),
	)
	return check("put mapping", name, res, err, nil)
}

// Delete implements index.Index.
func (b *Backend) Delete(ctx context.Context, name string) error {
	res, err := b.es.Indices.Delete([]string{name},
		b.es.Indices.Delete.WithContext(ctx),
		b.es.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err := check("delete index", name, res, err, nil); err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	b.log.Info("deleted index", zap.String("index", name))
	return nil
}

// Write implements index.Index. The schema is read from the cluster and every
// document validated before the first bulk request.
func (b *Backend) Write(ctx context.Context, name string, docs []index.Document) error {
	stored, exists, err := b.storedMapping(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return index.NotFound(name)
	}
	if err := index.Validate(index.Schema{Dimension: stored.dims}, docs); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		if err := b.bulk(ctx, name, docs[start:end]); err != nil {
			return err
		}
	}
	if err := b.stampWrite(ctx, name); err != nil {
		return err
	}
	b.log.Debug("wrote documents", zap.String("index", name), zap.Int("count", len(docs)))
	return nil
}

func (b *Backend) bulk(ctx context.Context, name string, docs []index.Document) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		action := map[string]interface{}{"index": map[string]string{"_index": name, "_id": id}}
		if err := enc.Encode(action); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode document %s: %w", id, err)
		}
	}

	res, err := b.es.Bulk(bytes.NewReader(buf.Bytes()),
		b.es.Bulk.WithContext(ctx),
		b.es.Bulk.WithIndex(name),
		b.es.Bulk.WithRefresh("wait_for"),
	)
	var body struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID    string `json:"_id"`
			Error *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := check("bulk", name, res, err, &body); err != nil {
		return err
	}
	if body.Errors {
		for _, item := range body.Items {
			for _, r := range item {
				if r.Error != nil {
					return fmt.Errorf("bulk index %q: document %s: %s: %s", name, r.ID, r.Error.Type, r.Error.Reason)
				}
			}
		}
		return fmt.Errorf("bulk index %q reported errors", name)
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string         `json:"_id"`
			Score  float64        `json:"_score"`
			Source index.Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func searchBody(q index.Query) map[string]interface{} {
	size := q.Size
	if size <= 0 {
		size = defaultSize
	}
	body := map[string]interface{}{
		"size":             size,
		"track_total_hits": true,
	}
	if q.Text != "" {
		body["query"] = map[string]interface{}{
			"match": map[string]interface{}{"name": q.Text},
		}
	}
	if len(q.Vector) > 0 {
		knn := map[string]interface{}{
			"field":          "embedding",
			"query_vector":   q.Vector,
			"k":              q.K,
			"num_candidates": q.NumCandidates,
		}
		if q.MinSimilarity > 0 {
			knn["similarity"] = q.MinSimilarity
		}
		body["knn"] = knn
	}
	return body
}

// Search implements index.Index.
func (b *Backend) Search(ctx context.Context, name string, q index.Query) (*index.Result, error) {
	body, err := json.Marshal(searchBody(q))
	if err != nil {
		return nil, err
	}

	res, err := b.es.Search(
		b.es.Search.WithContext(ctx),
		b.es.Search.WithIndex(name),
		b.es.Search.WithBody(bytes.NewReader(body)),
	)
	var parsed searchResponse
	if err := check("search", name, res, err, &parsed); err != nil {
		return nil, err
	}

	result := &index.Result{
		Total: parsed.Hits.Total.Value,
		Hits:  make([]index.Hit, 0, len(parsed.Hits.Hits)),
	}
	for _, h := range parsed.Hits.Hits {
		doc := h.Source
		doc.ID = h.ID
		result.Hits = append(result.Hits, index.Hit{Document: doc, Score: h.Score})
	}
	return result, nil
}

// Count implements index.Index.
func (b *Backend) Count(ctx context.Context, name string) (int, error) {
	res, err := b.es.Count(
		b.es.Count.WithContext(ctx),
		b.es.Count.WithIndex(name),
	)
	var body struct {
		Count int `json:"count"`
	}
	if err := check("count", name, res, err, &body); err != nil {
		return 0, err
	}
	return body.Count, nil
}

// Version implements index.Index. The index uuid changes on every rebuild and
// the mapping write id on every Write. An index created elsewhere carries no
// write id and falls back to its document count.
func (b *Backend) Version(ctx context.Context, name string) (string, error) {
	res, err := b.es.Indices.GetSettings(
		b.es.Indices.GetSettings.WithContext(ctx),
		b.es.Indices.GetSettings.WithIndex(name),
	)
	var body map[string]struct {
		Settings struct {
			Index struct {
				UUID string `json:"uuid"`
			} `json:"index"`
		} `json:"settings"`
	}
	if err := check("get settings", name, res, err, &body); err != nil {
		return "", err
	}
	settings, ok := body[name]
	if !ok {
		return "", index.NotFound(name)
	}

	stored, exists, err := b.storedMapping(ctx, name)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", index.NotFound(name)
	}
	if stored.writeID != "" {
		return settings.Settings.Index.UUID + "." + stored.writeID, nil
	}

	count, err := b.Count(ctx, name)
	if err != nil {
		return "", err
	}
	return settings.Settings.Index.UUID + ".n" + strconv.Itoa(count), nil
}

// Close implements index.Index. The client holds no resources of its own.
func (b *Backend) Close() error { return nil }

// check turns a client result into an error and decodes the body into out.
// Transport failures, timeouts and 5xx/429 responses are ErrBackendUnavailable.
func check(op, name string, res *esapi.Response, err error, out interface{}) error {
	op = "elasticsearch " + op
	if err != nil {
		return apperror.Unavailable(op, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		switch {
		case res.StatusCode == http.StatusNotFound:
			return index.NotFound(name)
		case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
			return apperror.Unavailable(op, fmt.Errorf("status %d: %s", res.StatusCode, msg))
		default:
			return fmt.Errorf("%s %q: status %d: %s", op, name, res.StatusCode, msg)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %q: failed to decode response: %w", op, name, err)
	}
	return nil
}
