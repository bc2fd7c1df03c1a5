/*
Package labels chooses canonical display labels for tag entities.

A tag may link to several external items, each carrying its own label. The
Resolver picks the candidate closest to the tag's permanent key using a token
set similarity, and the Normalizer collapses generic forms such as
"restaurant building" before labels are indexed or compared.
*/
package labels

import "sort"

// Scorer rates the similarity of two strings in 0..100.
type Scorer func(a, b string) int

// Resolution is the outcome of label resolution.
type Resolution struct {
	Label string `json:"label"`
	Score int    `json:"score"`
}

// Resolver picks one canonical label out of a candidate set.
type Resolver struct {
	score Scorer
}

// NewResolver creates a Resolver using TokenSetRatio.
func NewResolver() *Resolver {
	return &Resolver{score: TokenSetRatio}
}

// NewResolverWithScorer creates a Resolver with a custom scorer.
func NewResolverWithScorer(s Scorer) *Resolver {
	return &Resolver{score: s}
}

// Resolve scores every distinct candidate against key and returns the best.
// Candidates are sorted before scoring, so ties go to the lexically smallest.
// An empty candidate set is unresolved and yields false.
func (r *Resolver) Resolve(key string, candidates []string) (Resolution, bool) {
	unique := dedupe(candidates)
	if len(unique) == 0 {
		return Resolution{}, false
	}
	sort.Strings(unique)

	best := Resolution{Label: unique[0], Score: r.score(key, unique[0])}
	for _, c := range unique[1:] {
		if s := r.score(key, c); s > best.Score {
			best = Resolution{Label: c, Score: s}
		}
	}
	return best, true
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
