/*
Package bleveindex is the in-process retrieval backend.

Each named index is a Bleve index holding the document name for BM25 matching
and the full document as a stored source field. Nearest-neighbour scoring is
exact: every embedding is compared with the query vector. Indexes live in
memory, or under a directory when one is configured.
*/
package bleveindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/index/scorch"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khanglvm/osm-tag-search/internal/apperror"
	"github.com/khanglvm/osm-tag-search/internal/index"
)

const batchSize = 1000

// Backend manages named Bleve indexes.
type Backend struct {
	dir     string
	fusion  FusionConfig
	log     *zap.Logger
	mu      sync.RWMutex
	indexes map[string]*namedIndex
}

var _ index.Index = (*Backend)(nil)

type namedIndex struct {
	bleve      bleve.Index
	schema     index.Schema
	created    string
	generation uint64
	docs       map[string]index.Document
}

// New creates a backend. An empty dir keeps every index in memory.
func New(dir string, fusion FusionConfig, log *zap.Logger) (*Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if fusion.SemanticWeight == 0 && fusion.KeywordWeight == 0 {
		fusion = DefaultFusionConfig
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}
	return &Backend{
		dir:     dir,
		fusion:  fusion,
		log:     log,
		indexes: make(map[string]*namedIndex),
	}, nil
}

func (b *Backend) path(name string) string {
	return filepath.Join(b.dir, name+".bleve")
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return apperror.NewBadRequest(fmt.Sprintf("invalid index name %q", name))
	}
	return nil
}

// Create implements index.Index. An existing index with a different schema
// is a schema mismatch.
func (b *Backend) Create(ctx context.Context, name string, schema index.Schema) error {
	if err := checkName(name); err != nil {
		return err
	}
	if schema.Dimension < 0 {
		return fmt.Errorf("negative dimension %d: %w", schema.Dimension, apperror.ErrSchemaMismatch)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	existing, err := b.load(name)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	if existing != nil {
		if existing.schema != schema {
			return fmt.Errorf("index %q has dimension %d, requested %d: %w",
				name, existing.schema.Dimension, schema.Dimension, apperror.ErrSchemaMismatch)
		}
		return nil
	}

	var bi bleve.Index
	if b.dir == "" {
		bi, err = bleve.NewMemOnly(buildIndexMapping())
	} else {
		bi, err = bleve.NewUsing(b.path(name), buildIndexMapping(), scorch.Name, scorch.Name, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to create bleve index %q: %w", name, err)
	}

	ni := &namedIndex{
		bleve:   bi,
		schema:  schema,
		created: uuid.NewString(),
		docs:    make(map[string]index.Document),
	}
	if err := ni.saveMeta(); err != nil {
		bi.Close()
		return err
	}

	b.indexes[name] = ni
	b.log.Info("created index", zap.String("index", name), zap.Int("dimension", schema.Dimension))
	return nil
}

// Delete implements index.Index.
func (b *Backend) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if ni, ok := b.indexes[name]; ok {
		if err := ni.bleve.Close(); err != nil {
			b.log.Warn("failed to close index", zap.String("index", name), zap.Error(err))
		}
		delete(b.indexes, name)
	}
	if b.dir != "" {
		if err := os.RemoveAll(b.path(name)); err != nil {
			return fmt.Errorf("failed to remove index %q: %w", name, err)
		}
	}
	b.log.Info("deleted index", zap.String("index", name))
	return nil
}

// Write implements index.Index. All documents are validated before the first
// batch is applied.
func (b *Backend) Write(ctx context.Context, name string, docs []index.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ni, err := b.load(name)
	if err != nil {
		return err
	}
	if err := index.Validate(ni.schema, docs); err != nil {
		return err
	}

	prepared := make([]index.Document, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		prepared[i] = doc
	}

	for start := 0; start < len(prepared); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(prepared))

		batch := ni.bleve.NewBatch()
		for _, doc := range prepared[start:end] {
			fields, err := toBleve(doc)
			if err != nil {
				return err
			}
			if err := batch.Index(doc.ID, fields); err != nil {
				return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
			}
		}
		if err := ni.bleve.Batch(batch); err != nil {
			return fmt.Errorf("failed to batch index documents: %w", err)
		}
		for _, doc := range prepared[start:end] {
			ni.docs[doc.ID] = doc
		}
	}

	ni.generation++
	if err := ni.saveMeta(); err != nil {
		return err
	}
	b.log.Debug("wrote documents", zap.String("index", name), zap.Int("count", len(prepared)))
	return nil
}

// Count implements index.Index.
func (b *Backend) Count(ctx context.Context, name string) (int, error) {
	ni, err := b.rlock(name)
	if err != nil {
		return 0, err
	}
	defer b.mu.RUnlock()

	n, err := ni.bleve.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to get doc count: %w", err)
	}
	return int(n), nil
}

// Version implements index.Index. It combines the creation id with the write
// generation, so both a rebuild and a write change it.
func (b *Backend) Version(ctx context.Context, name string) (string, error) {
	ni, err := b.rlock(name)
	if err != nil {
		return "", err
	}
	defer b.mu.RUnlock()
	return ni.created + "." + strconv.FormatUint(ni.generation, 10), nil
}

// Close closes every open index.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for name, ni := range b.indexes {
		if err := ni.bleve.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(b.indexes, name)
	}
	return errors.Join(errs...)
}

// rlock returns a loaded index, opening it from disk on first use, with the
// read lock held. On success the caller must call b.mu.RUnlock. The index
// is looked up again under the read lock, so a concurrent Delete can never
// close it while the caller uses it.
func (b *Backend) rlock(name string) (*namedIndex, error) {
	for {
		b.mu.RLock()
		if ni, ok := b.indexes[name]; ok {
			return ni, nil
		}
		b.mu.RUnlock()

		b.mu.Lock()
		_, err := b.load(name)
		b.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
}

// load must be called with the write lock held.
func (b *Backend) load(name string) (*namedIndex, error) {
	if ni, ok := b.indexes[name]; ok {
		return ni, nil
	}
	if err := checkName(name); err != nil {
		return nil, err
	}
	if b.dir == "" {
		return nil, index.NotFound(name)
	}
	if _, err := os.Stat(b.path(name)); err != nil {
		if os.IsNotExist(err) {
			return nil, index.NotFound(name)
		}
		return nil, fmt.Errorf("failed to stat index %q: %w", name, err)
	}

	bi, err := bleve.Open(b.path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to open index %q: %w", name, err)
	}

	ni := &namedIndex{bleve: bi, docs: make(map[string]index.Document)}
	if err := ni.loadMeta(); err != nil {
		bi.Close()
		return nil, err
	}
	if err := ni.loadDocs(); err != nil {
		bi.Close()
		return nil, err
	}

	b.indexes[name] = ni
	b.log.Debug("opened index", zap.String("index", name), zap.Int("documents", len(ni.docs)))
	return ni, nil
}

func (ni *namedIndex) saveMeta() error {
	schema, err := json.Marshal(ni.schema)
	if err != nil {
		return err
	}
	meta := map[string][]byte{
		internalSchema:     schema,
		internalCreated:    []byte(ni.created),
		internalGeneration: []byte(strconv.FormatUint(ni.generation, 10)),
	}
	for key, val := range meta {
		if err := ni.bleve.SetInternal([]byte(key), val); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
	}
	return nil
}

func (ni *namedIndex) loadMeta() error {
	raw, err := ni.bleve.GetInternal([]byte(internalSchema))
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	if err := json.Unmarshal(raw, &ni.schema); err != nil {
		return fmt.Errorf("invalid stored schema: %w", err)
	}

	created, err := ni.bleve.GetInternal([]byte(internalCreated))
	if err != nil {
		return fmt.Errorf("failed to read creation id: %w", err)
	}
	ni.created = string(created)

	gen, err := ni.bleve.GetInternal([]byte(internalGeneration))
	if err != nil {
		return fmt.Errorf("failed to read generation: %w", err)
	}
	if len(gen) > 0 {
		if ni.generation, err = strconv.ParseUint(string(gen), 10, 64); err != nil {
			return fmt.Errorf("invalid stored generation: %w", err)
		}
	}
	return nil
}

func (ni *namedIndex) loadDocs() error {
	count, err := ni.bleve.DocCount()
	if err != nil {
		return fmt.Errorf("failed to get doc count: %w", err)
	}
	if count == 0 {
		return nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	req.Fields = []string{fieldSource}

	results, err := ni.bleve.Search(req)
	if err != nil {
		return fmt.Errorf("failed to read documents: %w", err)
	}
	for _, hit := range results.Hits {
		doc, err := decodeSource(hit.ID, hit.Fields)
		if err != nil {
			return err
		}
		ni.docs[doc.ID] = doc
	}
	return nil
}
