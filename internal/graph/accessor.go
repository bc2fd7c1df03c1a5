package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Accessor answers tag queries over a TripleReader.
// It holds no mutable state and is safe for concurrent use.
type Accessor struct {
	reader     TripleReader
	strategies Strategies
	deprecated map[string]struct{}
	logger     *zap.Logger
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithStrategies overrides the per-predicate pick strategies.
func WithStrategies(s Strategies) Option {
	return func(a *Accessor) { a.strategies = s }
}

// WithDeprecatedSentinels sets the status IRIs treated as deprecated.
func WithDeprecatedSentinels(iris []string) Option {
	return func(a *Accessor) {
		a.deprecated = make(map[string]struct{}, len(iris))
		for _, iri := range iris {
			a.deprecated[iri] = struct{}{}
		}
	}
}

// WithLogger sets the logger used for data-quality warnings.
func WithLogger(l *zap.Logger) Option {
	return func(a *Accessor) { a.logger = l }
}

// NewAccessor creates an Accessor over reader.
func NewAccessor(reader TripleReader, opts ...Option) *Accessor {
	a := &Accessor{
		reader:     reader,
		strategies: DefaultStrategies(),
		logger:     zap.NewNop(),
	}
	WithDeprecatedSentinels(DefaultDeprecatedSentinels)(a)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AllActiveTags returns every tag entity that is not deprecated, sorted by URI.
// Entities without a permanent tag ID are skipped with a warning.
func (a *Accessor) AllActiveTags(ctx context.Context) ([]TagRef, error) {
	subjects, err := a.reader.Subjects(ctx, PredInstanceOf, ItemTag)
	if err != nil {
		return nil, err
	}

	refs := make([]TagRef, 0, len(subjects))
	for _, s := range subjects {
		deprecated, err := a.isDeprecated(ctx, s)
		if err != nil {
			return nil, err
		}
		if deprecated {
			continue
		}

		rawKey, ok, err := a.value(ctx, s, PredPermanentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			a.logger.Warn("tag has no permanent id", zap.String("uri", s))
			continue
		}
		refs = append(refs, TagRef{URI: s, RawKey: rawKey.Value})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].URI < refs[j].URI })
	return refs, nil
}

// TagProperties returns the projection of a tag given its wiki URI or raw key.
// The boolean is false when no such tag exists.
func (a *Accessor) TagProperties(ctx context.Context, uriOrRawKey string) (*TagEntity, bool, error) {
	uri, ok, err := a.resolveSubject(ctx, uriOrRawKey)
	if err != nil || !ok {
		return nil, false, err
	}

	e := &TagEntity{URI: uri, Status: StatusActive}

	if v, ok, err := a.value(ctx, uri, PredPermanentID); err != nil {
		return nil, false, err
	} else if ok {
		e.RawKey = v.Value
	}

	if e.Label, _, err = a.englishLabel(ctx, uri); err != nil {
		return nil, false, err
	}

	deprecated, err := a.isDeprecated(ctx, uri)
	if err != nil {
		return nil, false, err
	}
	if deprecated {
		e.Status = StatusDeprecated
	}

	if g, ok, err := a.value(ctx, uri, PredGroup); err != nil {
		return nil, false, err
	} else if ok {
		name, _, err := a.englishLabel(ctx, g.Value)
		if err != nil {
			return nil, false, err
		}
		e.Group = &Category{URI: g.Value, Name: name}
	}

	if e.AppliesTo, err = a.appliesTo(ctx, uri); err != nil {
		return nil, false, err
	}

	descriptions, err := a.english(ctx, uri, PredDescription)
	if err != nil {
		return nil, false, err
	}
	if d, ok := a.strategies.pick(PredDescription, descriptions); ok {
		e.Description = d.Value
	}

	if e.Combinations, err = a.refs(ctx, uri, PredCombination); err != nil {
		return nil, false, err
	}
	if e.DifferentFrom, err = a.refs(ctx, uri, PredDifferentFrom); err != nil {
		return nil, false, err
	}

	same, err := a.reader.Objects(ctx, uri, PredSameAs)
	if err != nil {
		return nil, false, err
	}
	e.ExternalLabelRefs = iriValues(same)
	if len(e.ExternalLabelRefs) > 0 {
		if v, ok, err := a.value(ctx, e.ExternalLabelRefs[0], PredLabel); err != nil {
			return nil, false, err
		} else if ok {
			e.ExternalLabel = v.Value
		}
	}

	return e, true, nil
}

// CandidateLabels returns the deduplicated, lexically sorted labels reachable
// through the tag's external label references.
func (a *Accessor) CandidateLabels(ctx context.Context, uri string) ([]string, error) {
	same, err := a.reader.Objects(ctx, uri, PredSameAs)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var labels []string
	for _, ref := range iriValues(same) {
		v, ok, err := a.value(ctx, ref, PredLabel)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if _, dup := seen[v.Value]; dup {
			continue
		}
		seen[v.Value] = struct{}{}
		labels = append(labels, v.Value)
	}
	sort.Strings(labels)
	return labels, nil
}

// CategoriesOf returns the groups a tag belongs to.
func (a *Accessor) CategoriesOf(ctx context.Context, uri string) ([]Category, error) {
	groups, err := a.reader.Objects(ctx, uri, PredGroup)
	if err != nil {
		return nil, err
	}
	return a.categories(ctx, groups)
}

// AllCategories returns every group used by any tag that has an English name.
func (a *Accessor) AllCategories(ctx context.Context) ([]Category, error) {
	groups, err := a.reader.DistinctObjects(ctx, PredGroup)
	if err != nil {
		return nil, err
	}
	return a.categories(ctx, groups)
}

// TagsInCategory returns the active tags whose group has the English name name,
// sorted by URI.
func (a *Accessor) TagsInCategory(ctx context.Context, name string) ([]TagRef, error) {
	cats, err := a.AllCategories(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var refs []TagRef
	for _, c := range cats {
		if c.Name != name {
			continue
		}
		subjects, err := a.reader.Subjects(ctx, PredGroup, c.URI)
		if err != nil {
			return nil, err
		}
		for _, s := range subjects {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}

			isTag, err := a.isTag(ctx, s)
			if err != nil {
				return nil, err
			}
			deprecated, err := a.isDeprecated(ctx, s)
			if err != nil {
				return nil, err
			}
			if !isTag || deprecated {
				continue
			}

			ref := TagRef{URI: s}
			if v, ok, err := a.value(ctx, s, PredPermanentID); err != nil {
				return nil, err
			} else if ok {
				ref.RawKey = v.Value
			}
			refs = append(refs, ref)
		}
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].URI < refs[j].URI })
	return refs, nil
}

// resolveSubject maps a wiki URI or raw key onto a tag URI.
// When a raw key is shared by several entities the first active one wins.
func (a *Accessor) resolveSubject(ctx context.Context, key string) (string, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, nil
	}

	if strings.Contains(key, "wiki.openstreetmap.org") {
		ok, err := a.isTag(ctx, key)
		return key, ok, err
	}

	subjects, err := a.reader.Subjects(ctx, PredPermanentID, key)
	if err != nil {
		return "", false, err
	}
	if len(subjects) == 0 {
		return "", false, nil
	}
	for _, s := range subjects {
		deprecated, err := a.isDeprecated(ctx, s)
		if err != nil {
			return "", false, err
		}
		if !deprecated {
			return s, true, nil
		}
	}
	return subjects[0], true, nil
}

func (a *Accessor) isTag(ctx context.Context, uri string) (bool, error) {
	types, err := a.reader.Objects(ctx, uri, PredInstanceOf)
	if err != nil {
		return false, err
	}
	for _, t := range types {
		if t.Value == ItemTag {
			return true, nil
		}
	}
	return false, nil
}

// isDeprecated reports whether any status of uri is a deprecated sentinel or
// an item whose English label is "deprecated".
func (a *Accessor) isDeprecated(ctx context.Context, uri string) (bool, error) {
	statuses, err := a.reader.Objects(ctx, uri, PredStatus)
	if err != nil {
		return false, err
	}
	for _, st := range statuses {
		if _, ok := a.deprecated[st.Value]; ok {
			return true, nil
		}
		if st.Kind == KindLiteral {
			if strings.EqualFold(st.Value, LabelDeprecated) {
				return true, nil
			}
			continue
		}
		label, _, err := a.englishLabel(ctx, st.Value)
		if err != nil {
			return false, err
		}
		if strings.EqualFold(strings.TrimSpace(label), LabelDeprecated) {
			return true, nil
		}
	}
	return false, nil
}

func (a *Accessor) appliesTo(ctx context.Context, uri string) (AppliesTo, error) {
	var flags AppliesTo
	targets := []struct {
		pred string
		flag *bool
	}{
		{PredOnNode, &flags.Node},
		{PredOnWay, &flags.Way},
		{PredOnArea, &flags.Area},
		{PredOnRelation, &flags.Relation},
	}

	for _, t := range targets {
		v, ok, err := a.value(ctx, uri, t.pred)
		if err != nil {
			return AppliesTo{}, err
		}
		if !ok {
			continue
		}
		label := v.Value
		if v.Kind != KindLiteral {
			l, _, err := a.value(ctx, v.Value, PredLabel)
			if err != nil {
				return AppliesTo{}, err
			}
			label = l.Value
		}
		*t.flag = label == LabelApplicable
	}
	return flags, nil
}

// refs returns the related entities of uri through predicate, in store order.
func (a *Accessor) refs(ctx context.Context, uri, predicate string) ([]Ref, error) {
	objects, err := a.reader.Objects(ctx, uri, predicate)
	if err != nil {
		return nil, err
	}

	refs := make([]Ref, 0, len(objects))
	seen := make(map[string]struct{})
	for _, o := range iriValues(objects) {
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}

		ref := Ref{URI: o}
		if ref.Label, _, err = a.englishLabel(ctx, o); err != nil {
			return nil, err
		}
		if typ, ok, err := a.value(ctx, o, PredInstanceOf); err != nil {
			return nil, err
		} else if ok {
			l, _, err := a.value(ctx, typ.Value, PredLabel)
			if err != nil {
				return nil, err
			}
			ref.Type = l.Value
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (a *Accessor) categories(ctx context.Context, groups []Term) ([]Category, error) {
	seen := make(map[string]struct{})
	var cats []Category
	for _, g := range iriValues(groups) {
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}

		name, ok, err := a.englishLabel(ctx, g)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		cats = append(cats, Category{URI: g, Name: name})
	}
	return cats, nil
}

// value applies the predicate's pick strategy to all objects of (subject, predicate).
func (a *Accessor) value(ctx context.Context, subject, predicate string) (Term, bool, error) {
	objects, err := a.reader.Objects(ctx, subject, predicate)
	if err != nil {
		return Term{}, false, fmt.Errorf("lookup %s of %s: %w", predicate, subject, err)
	}
	t, ok := a.strategies.pick(predicate, objects)
	return t, ok, nil
}

func (a *Accessor) english(ctx context.Context, subject, predicate string) ([]Term, error) {
	objects, err := a.reader.Objects(ctx, subject, predicate)
	if err != nil {
		return nil, fmt.Errorf("lookup %s of %s: %w", predicate, subject, err)
	}
	out := objects[:0:0]
	for _, o := range objects {
		if o.IsEnglish() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (a *Accessor) englishLabel(ctx context.Context, subject string) (string, bool, error) {
	labels, err := a.english(ctx, subject, PredLabel)
	if err != nil {
		return "", false, err
	}
	t, ok := a.strategies.pick(PredLabel, labels)
	return t.Value, ok, nil
}

func iriValues(terms []Term) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t.Kind == KindIRI {
			out = append(out, t.Value)
		}
	}
	return out
}
