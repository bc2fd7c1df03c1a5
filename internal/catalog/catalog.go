// Package catalog enumerates the indexable corpus of active, resolvable tags.
package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/khanglvm/osm-tag-search/internal/apperror"
	"github.com/khanglvm/osm-tag-search/internal/graph"
	"github.com/khanglvm/osm-tag-search/internal/labels"
)

// Source is the part of the graph accessor the enumerator needs.
type Source interface {
	AllActiveTags(ctx context.Context) ([]graph.TagRef, error)
	TagProperties(ctx context.Context, uriOrRawKey string) (*graph.TagEntity, bool, error)
	CandidateLabels(ctx context.Context, uri string) ([]string, error)
}

// Entry is one indexable tag.
type Entry struct {
	URI           string          `json:"uri"`
	RawKey        string          `json:"raw_key"`
	Label         string          `json:"label"`
	LabelScore    int             `json:"label_score"`
	Description   string          `json:"description,omitempty"`
	Group         *graph.Category `json:"group,omitempty"`
	AppliesTo     graph.AppliesTo `json:"applies_to"`
	Combinations  []graph.Ref     `json:"combinations"`
	DifferentFrom []graph.Ref     `json:"different_from"`
}

// Report lists data-quality problems found while enumerating.
type Report struct {
	Active     int            `json:"active"`
	Emitted    int            `json:"emitted"`
	Unresolved []graph.TagRef `json:"unresolved"`
}

// Enumerator produces catalog entries from the graph.
type Enumerator struct {
	src        Source
	resolver   *labels.Resolver
	normalizer *labels.Normalizer
	logger     *zap.Logger
}

// New creates an Enumerator.
func New(src Source, resolver *labels.Resolver, normalizer *labels.Normalizer, logger *zap.Logger) *Enumerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enumerator{src: src, resolver: resolver, normalizer: normalizer, logger: logger}
}

// Enumerate returns one entry per active tag with a resolvable label, in URI order.
// Unresolved tags are skipped and reported. A broken one-to-one raw key mapping
// aborts the run.
func (e *Enumerator) Enumerate(ctx context.Context) ([]Entry, *Report, error) {
	refs, err := e.src.AllActiveTags(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list active tags: %w", err)
	}
	if err := graph.CheckOneToOne(refs); err != nil {
		return nil, nil, err
	}

	report := &Report{Active: len(refs)}
	entries := make([]Entry, 0, len(refs))

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		entry, ok, err := e.entry(ctx, ref)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			report.Unresolved = append(report.Unresolved, ref)
			continue
		}
		entries = append(entries, entry)
	}

	report.Emitted = len(entries)
	if len(report.Unresolved) > 0 {
		e.logger.Warn("tags skipped with unresolved labels", zap.Int("count", len(report.Unresolved)))
	}
	return entries, report, nil
}

func (e *Enumerator) entry(ctx context.Context, ref graph.TagRef) (Entry, bool, error) {
	candidates, err := e.src.CandidateLabels(ctx, ref.URI)
	if err != nil {
		return Entry{}, false, fmt.Errorf("candidate labels of %s: %w", ref.URI, err)
	}

	res, ok := e.resolver.Resolve(ref.RawKey, candidates)
	if !ok {
		e.logger.Warn("label unresolved",
			zap.String("uri", ref.URI),
			zap.String("raw_key", ref.RawKey),
			zap.Error(apperror.ErrUnresolved),
		)
		return Entry{}, false, nil
	}

	props, found, err := e.src.TagProperties(ctx, ref.URI)
	if err != nil {
		return Entry{}, false, fmt.Errorf("properties of %s: %w", ref.URI, err)
	}
	if !found {
		return Entry{}, false, fmt.Errorf("properties of %s: %w", ref.URI, apperror.ErrNotFound)
	}

	return Entry{
		URI:           ref.URI,
		RawKey:        ref.RawKey,
		Label:         e.normalizer.Normalize(res.Label),
		LabelScore:    res.Score,
		Description:   props.Description,
		Group:         props.Group,
		AppliesTo:     props.AppliesTo,
		Combinations:  props.Combinations,
		DifferentFrom: props.DifferentFrom,
	}, true, nil
}
