package graph

// Namespaces used by the OSM wiki knowledge graph.
const (
	NSEntity   = "https://wiki.openstreetmap.org/entity/"
	NSDirect   = "https://wiki.openstreetmap.org/prop/direct/"
	NSSchema   = "http://schema.org/"
	NSWikidata = "http://www.wikidata.org/entity/"
	NSRDFS     = "http://www.w3.org/2000/01/rdf-schema#"
	NSOWL      = "http://www.w3.org/2002/07/owl#"
)

// Predicates.
const (
	PredInstanceOf    = NSDirect + "P2"
	PredStatus        = NSDirect + "P6"
	PredDifferentFrom = NSDirect + "P18"
	PredPermanentID   = NSDirect + "P19"
	PredGroup         = NSDirect + "P25"
	PredOnNode        = NSDirect + "P33"
	PredOnWay         = NSDirect + "P34"
	PredOnArea        = NSDirect + "P35"
	PredOnRelation    = NSDirect + "P36"
	PredCombination   = NSDirect + "P46"
	PredLabel         = NSRDFS + "label"
	PredSameAs        = NSOWL + "sameAs"
	PredDescription   = NSSchema + "description"
)

// Well-known items.
const (
	// ItemTag is the class every tag entity is an instance of.
	ItemTag = NSEntity + "Q2"

	// LabelApplicable is the English label of the applies-to value meaning "yes".
	LabelApplicable = "is applicable"

	// LabelDeprecated is the English label of the deprecated status item.
	LabelDeprecated = "deprecated"
)

// DefaultDeprecatedSentinels are status items known to mean "deprecated".
var DefaultDeprecatedSentinels = []string{
	NSEntity + "Q6255",
	NSEntity + "Q1184",
}
