/*
Package indexing builds retrieval indexes offline.

A job turns one source (resolved catalog tags, manual mapping rows or colour
bundles) into documents, embeds their descriptions with bounded parallelism,
validates the whole set against the index schema and only then writes it in
batches. Each job holds an exclusive file lock on the index name.
*/
package indexing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khanglvm/osm-tag-search/internal/catalog"
	"github.com/khanglvm/osm-tag-search/internal/embedding"
	"github.com/khanglvm/osm-tag-search/internal/index"
	"github.com/khanglvm/osm-tag-search/internal/labels"
	"github.com/khanglvm/osm-tag-search/internal/metrics"
)

// DefaultBatchSize is the number of documents per write.
const DefaultBatchSize = 500

var (
	// tagNamespace derives stable document ids from tag URIs.
	tagNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://wiki.openstreetmap.org/"))

	// clusterNamespace derives cluster ids from normalized names.
	clusterNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("osm-tag-search/cluster"))
)

// Options configures a Job.
type Options struct {
	// LockDir holds the per-index lock files.
	LockDir string

	// Workers bounds concurrent embedding requests.
	Workers int

	BatchSize int
}

// Result summarizes one run.
type Result struct {
	Index    string        `json:"index"`
	Written  int           `json:"written"`
	Skipped  int           `json:"skipped"`
	Count    int           `json:"count"`
	Duration time.Duration `json:"duration"`
}

// Job writes documents to a retrieval index.
type Job struct {
	idx        index.Index
	gateway    embedding.Gateway
	normalizer *labels.Normalizer
	opts       Options
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// New creates a Job. gateway may be nil for lexical-only jobs.
func New(idx index.Index, gateway embedding.Gateway, normalizer *labels.Normalizer, opts Options, m *metrics.Metrics, log *zap.Logger) *Job {
	if log == nil {
		log = zap.NewNop()
	}
	if normalizer == nil {
		normalizer = labels.NewNormalizer(nil)
	}
	if opts.LockDir == "" {
		opts.LockDir = filepath.Join(os.TempDir(), "osm-tag-search-locks")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Job{idx: idx, gateway: gateway, normalizer: normalizer, opts: opts, metrics: m, log: log}
}

// ClusterID groups documents whose names normalize to the same string.
func (j *Job) ClusterID(name string) string {
	return uuid.NewSHA1(clusterNamespace, []byte(j.normalizer.Normalize(name))).String()
}

// IndexTags indexes resolved catalog entries. The mapping token is the tag
// URI and the description falls back to the label.
func (j *Job) IndexTags(ctx context.Context, name string, entries []catalog.Entry, clear bool) (*Result, error) {
	docs := make([]index.Document, 0, len(entries))
	for _, e := range entries {
		token, err := json.Marshal(e.URI)
		if err != nil {
			return nil, err
		}
		description := e.Description
		if description == "" {
			description = e.Label
		}
		docs = append(docs, index.Document{
			ID:           uuid.NewSHA1(tagNamespace, []byte(e.URI)).String(),
			Name:         strings.ToLower(e.Label),
			MappingToken: token,
			Description:  description,
			ClusterID:    j.ClusterID(e.Label),
		})
	}
	return j.run(ctx, name, docs, true, clear, 0)
}

// IndexMappings indexes manual mapping rows. The name is the first keyword,
// the description every keyword, and the mapping token the row's rule.
func (j *Job) IndexMappings(ctx context.Context, name string, rows []MappingRow, clear bool) (*Result, error) {
	docs := make([]index.Document, 0, len(rows))
	skipped := 0
	for i, row := range rows {
		keywords := row.Keywords()
		if len(keywords) == 0 || len(row.IMR) == 0 {
			j.log.Warn("skipping mapping row without keywords or rule", zap.Int("row", i))
			skipped++
			continue
		}
		for k := range keywords {
			keywords[k] = strings.ToLower(keywords[k])
		}
		docs = append(docs, index.Document{
			Name:         keywords[0],
			MappingToken: row.IMR,
			Description:  strings.Join(keywords, " "),
			ClusterID:    j.ClusterID(keywords[0]),
		})
	}
	return j.run(ctx, name, docs, true, clear, skipped)
}

// IndexColors indexes one lexical-only document per colour descriptor.
func (j *Job) IndexColors(ctx context.Context, name string, bundles []ColorBundle, clear bool) (*Result, error) {
	var docs []index.Document
	for _, b := range bundles {
		for _, d := range b.Descriptors {
			docs = append(docs, index.Document{
				Name:        strings.ToLower(d),
				Descriptors: b.Values,
			})
		}
	}
	return j.run(ctx, name, docs, false, clear, 0)
}

func (j *Job) run(ctx context.Context, name string, docs []index.Document, embed, clear bool, skipped int) (*Result, error) {
	start := time.Now()

	lock, err := acquireLock(j.opts.LockDir, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := releaseLock(lock); err != nil {
			j.log.Warn("failed to release index lock", zap.String("index", name), zap.Error(err))
		}
	}()

	schema := index.Schema{}
	if embed {
		if j.gateway == nil {
			return nil, fmt.Errorf("index %q needs an embedding gateway", name)
		}
		schema.Dimension = j.gateway.Dimension()
	}

	// The live index is only touched once every document is embedded and valid.
	if embed {
		if err := j.embed(ctx, docs); err != nil {
			return nil, err
		}
	}
	if err := index.Validate(schema, docs); err != nil {
		return nil, err
	}

	if clear {
		if err := j.idx.Delete(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to clear index %q: %w", name, err)
		}
		j.log.Info("cleared index", zap.String("index", name))
	}
	if err := j.idx.Create(ctx, name, schema); err != nil {
		return nil, fmt.Errorf("failed to create index %q: %w", name, err)
	}

	for startAt := 0; startAt < len(docs); startAt += j.opts.BatchSize {
		end := min(startAt+j.opts.BatchSize, len(docs))
		if err := j.idx.Write(ctx, name, docs[startAt:end]); err != nil {
			return nil, fmt.Errorf("failed to write batch %d-%d: %w", startAt, end, err)
		}
		j.log.Debug("wrote batch", zap.String("index", name), zap.Int("from", startAt), zap.Int("to", end))
	}
	j.metrics.AddIndexed(name, len(docs))

	count, err := j.idx.Count(ctx, name)
	if err != nil {
		return nil, err
	}

	res := &Result{Index: name, Written: len(docs), Skipped: skipped, Count: count, Duration: time.Since(start)}
	j.log.Info("indexed documents",
		zap.String("index", name),
		zap.Int("written", res.Written),
		zap.Int("skipped", res.Skipped),
		zap.Int("count", res.Count),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// embed fills every document embedding from its description.
func (j *Job) embed(ctx context.Context, docs []index.Document) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.opts.Workers)

	for i := range docs {
		g.Go(func() error {
			text := docs[i].Description
			if text == "" {
				text = docs[i].Name
			}
			vec, err := j.gateway.Encode(gctx, text)
			if err != nil {
				return fmt.Errorf("failed to embed %q: %w", docs[i].Name, err)
			}
			docs[i].Embedding = vec
			return nil
		})
	}
	return g.Wait()
}
