/*
Package graph provides read-only access to the OSM tag knowledge graph.

The graph is stored as triples in SQLite and populated by the importer.
Lookups return explicit found flags: a missing entity is never represented by a
zero value that could be confused with real data.
*/
package graph

import "strings"

// TermKind distinguishes IRIs, blank nodes and literals in the triple store.
type TermKind string

const (
	KindIRI     TermKind = "iri"
	KindBlank   TermKind = "blank"
	KindLiteral TermKind = "literal"
)

// Term is the object of a triple.
type Term struct {
	Value string
	Kind  TermKind
	Lang  string
}

// IRI builds an IRI term.
func IRI(v string) Term { return Term{Value: v, Kind: KindIRI} }

// Literal builds a plain literal term, optionally language tagged.
func Literal(v, lang string) Term { return Term{Value: v, Kind: KindLiteral, Lang: lang} }

// IsEnglish reports whether the term is a literal tagged en or en-*.
func (t Term) IsEnglish() bool {
	if t.Kind != KindLiteral {
		return false
	}
	lang := strings.ToLower(t.Lang)
	return lang == "en" || strings.HasPrefix(lang, "en-")
}

// Triple is a single subject-predicate-object statement.
type Triple struct {
	Subject   string
	Predicate string
	Object    Term
}

// Status is the lifecycle state of a tag entity.
type Status string

const (
	StatusActive     Status = "active"
	StatusDeprecated Status = "deprecated"
)

// AppliesTo holds the OSM element types a tag may be used on.
type AppliesTo struct {
	Node     bool `json:"node"`
	Way      bool `json:"way"`
	Area     bool `json:"area"`
	Relation bool `json:"relation"`
}

// TagRef identifies a tag entity by URI and permanent tag ID.
type TagRef struct {
	URI    string `json:"uri"`
	RawKey string `json:"osm_tag"`
}

// Ref is a related entity as shown in a tag projection.
type Ref struct {
	URI   string `json:"uri"`
	Label string `json:"osm_tag"`
	Type  string `json:"type"`
}

// Category is a tag group with its English name.
type Category struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// TagEntity is the full projection of one tag.
type TagEntity struct {
	URI           string    `json:"uri"`
	RawKey        string    `json:"raw_key"`
	Label         string    `json:"label"`
	Status        Status    `json:"status"`
	Group         *Category `json:"group,omitempty"`
	AppliesTo     AppliesTo `json:"applies_to"`
	Description   string    `json:"description,omitempty"`
	Combinations  []Ref     `json:"combinations"`
	DifferentFrom []Ref     `json:"different_from"`

	// ExternalLabelRefs are the owl:sameAs targets in the external vocabulary.
	ExternalLabelRefs []string `json:"external_label_refs"`

	// ExternalLabel is the first label of the first external ref.
	ExternalLabel string `json:"external_label,omitempty"`
}

// Active reports whether the tag is not deprecated.
func (e *TagEntity) Active() bool {
	return e.Status != StatusDeprecated
}
