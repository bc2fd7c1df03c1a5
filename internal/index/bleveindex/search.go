package bleveindex

import (
	"context"
	"fmt"
	"sort"

	"github.com/blevesearch/bleve/v2"

	"github.com/khanglvm/osm-tag-search/internal/apperror"
	"github.com/khanglvm/osm-tag-search/internal/embedding"
	"github.com/khanglvm/osm-tag-search/internal/index"
)

const (
	defaultSize = 10
	defaultK    = 10
)

// FusionConfig defines weights for hybrid score fusion.
type FusionConfig struct {
	SemanticWeight float64 `mapstructure:"semantic_weight" yaml:"semantic_weight"`
	KeywordWeight  float64 `mapstructure:"keyword_weight" yaml:"keyword_weight"`
}

// DefaultFusionConfig provides balanced fusion (70% semantic, 30% keyword).
var DefaultFusionConfig = FusionConfig{
	SemanticWeight: 0.7,
	KeywordWeight:  0.3,
}

type scored struct {
	id    string
	score float64
}

// Search implements index.Index.
//
// Lexical scores are min-max normalised and neighbour scores are the raw
// cosine, the same scale MinSimilarity is expressed in. With both legs active
// every document gets the weighted sum and a missing leg counts as zero. A
// vector on a lexical only index is ignored and the lexical score is used as is.
func (b *Backend) Search(ctx context.Context, name string, q index.Query) (*index.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ni, err := b.rlock(name)
	if err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	size := q.Size
	if size <= 0 {
		size = defaultSize
	}

	lexical, err := ni.searchBM25(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	fused := normalizeScores(lexical)
	if len(q.Vector) > 0 && ni.schema.Dimension > 0 {
		if len(q.Vector) != ni.schema.Dimension {
			return nil, fmt.Errorf("query vector has dimension %d, index %q expects %d: %w",
				len(q.Vector), name, ni.schema.Dimension, apperror.ErrSchemaMismatch)
		}
		fused = fuseScores(fused, ni.searchKNN(q), b.fusion)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		a, c := ni.docs[fused[i].id], ni.docs[fused[j].id]
		if a.Name != c.Name {
			return a.Name < c.Name
		}
		return a.ID < c.ID
	})

	result := &index.Result{Total: len(fused)}
	if len(fused) > size {
		fused = fused[:size]
	}
	result.Hits = make([]index.Hit, 0, len(fused))
	for _, s := range fused {
		result.Hits = append(result.Hits, index.Hit{Document: ni.docs[s.id], Score: s.score})
	}
	return result, nil
}

// searchBM25 returns every document whose name matches text.
func (ni *namedIndex) searchBM25(ctx context.Context, text string) ([]scored, error) {
	if text == "" || len(ni.docs) == 0 {
		return nil, nil
	}

	matchQuery := bleve.NewMatchQuery(text)
	matchQuery.SetField(fieldName)

	searchRequest := bleve.NewSearchRequestOptions(matchQuery, len(ni.docs), 0, false)
	results, err := ni.bleve.SearchInContext(ctx, searchRequest)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperror.Unavailable("bleve search", ctx.Err())
		}
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	hits := make([]scored, 0, len(results.Hits))
	for _, hit := range results.Hits {
		hits = append(hits, scored{id: hit.ID, score: hit.Score})
	}
	return hits, nil
}

// searchKNN scores every embedding against the query vector and keeps the K
// nearest at or above the similarity floor.
func (ni *namedIndex) searchKNN(q index.Query) []scored {
	k := q.K
	if k <= 0 {
		k = defaultK
	}

	type neighbour struct {
		doc index.Document
		cos float64
	}
	var neighbours []neighbour
	for _, doc := range ni.docs {
		cos := embedding.Cosine(q.Vector, doc.Embedding)
		if cos < q.MinSimilarity {
			continue
		}
		neighbours = append(neighbours, neighbour{doc: doc, cos: cos})
	}

	sort.Slice(neighbours, func(i, j int) bool {
		if neighbours[i].cos != neighbours[j].cos {
			return neighbours[i].cos > neighbours[j].cos
		}
		if neighbours[i].doc.Name != neighbours[j].doc.Name {
			return neighbours[i].doc.Name < neighbours[j].doc.Name
		}
		return neighbours[i].doc.ID < neighbours[j].doc.ID
	})
	if len(neighbours) > k {
		neighbours = neighbours[:k]
	}

	hits := make([]scored, len(neighbours))
	for i, n := range neighbours {
		hits[i] = scored{id: n.doc.ID, score: max(n.cos, 0)}
	}
	return hits
}

// fuseScores combines keyword and semantic results using weighted fusion. A
// document missing from one leg scores zero on it.
func fuseScores(keyword, semantic []scored, config FusionConfig) []scored {
	semanticMap := make(map[string]float64, len(semantic))
	for _, s := range semantic {
		semanticMap[s.id] = s.score
	}

	fused := make([]scored, 0, len(keyword)+len(semantic))
	seen := make(map[string]bool, len(keyword))

	for _, k := range keyword {
		seen[k.id] = true
		fused = append(fused, scored{id: k.id, score: config.SemanticWeight*semanticMap[k.id] + config.KeywordWeight*k.score})
	}
	for _, s := range semantic {
		if !seen[s.id] {
			fused = append(fused, scored{id: s.id, score: config.SemanticWeight * s.score})
		}
	}
	return fused
}

// normalizeScores normalizes scores to [0, 1] range.
func normalizeScores(results []scored) []scored {
	if len(results) == 0 {
		return results
	}

	minScore, maxScore := results[0].score, results[0].score
	for _, r := range results {
		minScore = min(minScore, r.score)
		maxScore = max(maxScore, r.score)
	}

	normalized := make([]scored, len(results))
	for i, r := range results {
		normalized[i] = r
		// all scores equal
		if maxScore == minScore {
			normalized[i].score = 1.0
			continue
		}
		normalized[i].score = (r.score - minScore) / (maxScore - minScore)
	}
	return normalized
}
